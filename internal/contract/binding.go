// Package contract wraps ABI handling for the contracts this service calls.
package contract

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Binding ties a deployed contract address to its parsed ABI.
type Binding struct {
	address common.Address
	abi     abi.ABI
}

// NewBinding creates a Binding from an already parsed ABI.
func NewBinding(address common.Address, contractABI abi.ABI) *Binding {
	return &Binding{address: address, abi: contractABI}
}

// NewBindingFromJSON creates a Binding from a hex address and ABI JSON.
func NewBindingFromJSON(address string, abiJSON string) (*Binding, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("contract: invalid contract address %q", address)
	}
	parsed, err := ParseABI(abiJSON)
	if err != nil {
		return nil, fmt.Errorf("contract: failed to parse ABI: %w", err)
	}
	return NewBinding(common.HexToAddress(address), parsed), nil
}

// ParseABI parses a JSON ABI definition.
func ParseABI(abiJSON string) (abi.ABI, error) {
	return abi.JSON(strings.NewReader(abiJSON))
}

// MustParseABI is like ParseABI but panics on error.
func MustParseABI(abiJSON string) abi.ABI {
	parsed, err := ParseABI(abiJSON)
	if err != nil {
		panic(err)
	}
	return parsed
}

// Address returns the deployed contract address.
func (b *Binding) Address() common.Address {
	return b.address
}

// ABI returns the parsed contract ABI.
func (b *Binding) ABI() abi.ABI {
	return b.abi
}

// HasMethod reports whether the ABI defines the given function.
func (b *Binding) HasMethod(function string) bool {
	_, ok := b.abi.Methods[function]
	return ok
}

// Pack encodes a method call with already typed arguments.
func (b *Binding) Pack(function string, args ...interface{}) ([]byte, error) {
	if _, ok := b.abi.Methods[function]; !ok {
		return nil, &MethodNotFoundError{Contract: b.address, Method: function}
	}
	return b.abi.Pack(function, args...)
}

// PackDecimalArgs encodes a method call from decimal string arguments. Every
// input of the method must be a uint256, anything else is rejected. This is
// the boundary where queue payloads and CLI flags turn into calldata.
func (b *Binding) PackDecimalArgs(function string, args []string) ([]byte, error) {
	method, ok := b.abi.Methods[function]
	if !ok {
		return nil, &MethodNotFoundError{Contract: b.address, Method: function}
	}

	if len(args) != len(method.Inputs) {
		return nil, fmt.Errorf("contract: method %q takes %d argument(s), got %d", function, len(method.Inputs), len(args))
	}

	typed := make([]interface{}, len(args))
	for i, input := range method.Inputs {
		if input.Type.T != abi.UintTy || input.Type.Size != 256 {
			return nil, &ArgumentError{Method: function, Index: i, Err: fmt.Errorf("unsupported abi type %s", input.Type)}
		}
		value, ok := new(big.Int).SetString(args[i], 10)
		if !ok {
			return nil, &ArgumentError{Method: function, Index: i, Err: fmt.Errorf("invalid decimal value %q", args[i])}
		}
		if value.Sign() < 0 {
			return nil, &ArgumentError{Method: function, Index: i, Err: fmt.Errorf("negative value %q for uint256", args[i])}
		}
		// The encoder wraps mod 2^256, reject out-of-range values here
		if value.BitLen() > 256 {
			return nil, &ArgumentError{Method: function, Index: i, Err: fmt.Errorf("value %q overflows uint256", args[i])}
		}
		typed[i] = value
	}

	return b.Pack(function, typed...)
}

// UnpackUint256 decodes a single uint256 return value.
func (b *Binding) UnpackUint256(function string, output []byte) (*big.Int, error) {
	method, ok := b.abi.Methods[function]
	if !ok {
		return nil, &MethodNotFoundError{Contract: b.address, Method: function}
	}
	if len(method.Outputs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoReturnValue, function)
	}

	values, err := b.abi.Unpack(function, output)
	if err != nil {
		return nil, fmt.Errorf("contract: failed to decode %q return data: %w", function, err)
	}

	value, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("contract: method %q does not return uint256", function)
	}
	return value, nil
}
