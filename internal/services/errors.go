package services

import (
	"errors"
	"fmt"
)

// Op names one node round-trip. Errors carry the op so callers can tell
// which step of a submission failed and decide their own retry policy.
type Op string

const (
	OpChainID  Op = "chain_id"
	OpNonce    Op = "nonce"
	OpGasPrice Op = "gas_price"
	OpSend     Op = "send"
	OpReceipt  Op = "receipt"
	OpCall     Op = "call"
)

// OpError wraps a failure of a single node round-trip.
type OpError struct {
	Op  Op
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("services: %s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func opError(op Op, err error) *OpError {
	return &OpError{Op: op, Err: err}
}

var (
	// ErrReverted indicates the transaction was mined but its receipt
	// reports failure. The state change did not happen.
	ErrReverted = errors.New("services: transaction reverted")

	// ErrWaitTimeout indicates no receipt appeared within the wait window.
	// The transaction may still be mined later.
	ErrWaitTimeout = errors.New("services: timed out waiting for receipt")

	// ErrKeyMismatch indicates the resolved private key does not belong to
	// the configured caller address.
	ErrKeyMismatch = errors.New("services: signing key does not match caller address")
)
