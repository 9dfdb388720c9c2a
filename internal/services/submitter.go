package services

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/chainstacklabs/contract-caller/internal/chain"
	"github.com/chainstacklabs/contract-caller/internal/contract"
	"github.com/chainstacklabs/contract-caller/internal/keys"
)

const defaultGasLimit = uint64(300000)
const defaultWaitTimeout = 2 * time.Minute
const defaultPollInterval = 5 * time.Second

type SubmitterServiceInterface interface {
	BuildCallTransaction(ctx context.Context, binding *contract.Binding, function string, args []string) (*TransactionRequest, error)
	Sign(ctx context.Context, req *TransactionRequest) (*SignedTransaction, error)
	Send(ctx context.Context, signed *SignedTransaction) error
	WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	SubmitCall(ctx context.Context, binding *contract.Binding, function string, args []string) (*Submission, error)
	Call(ctx context.Context, binding *contract.Binding, function string, args []string) ([]byte, error)
	ReadUint256(ctx context.Context, binding *contract.Binding, function string, args []string) (*big.Int, error)
}

var _ SubmitterServiceInterface = (*SubmitterService)(nil)

// TransactionRequest is everything fetched and encoded for one contract
// call, assembled before signing.
type TransactionRequest struct {
	ChainID  *big.Int
	From     common.Address
	Nonce    uint64
	To       common.Address
	GasPrice *big.Int
	GasLimit uint64
	Data     []byte
}

// Assemble builds the unsigned legacy transaction. Calls carry no value.
func (r *TransactionRequest) Assemble() *types.Transaction {
	return types.NewTransaction(r.Nonce, r.To, big.NewInt(0), r.GasLimit, r.GasPrice, r.Data)
}

// SignedTransaction pairs a signed transaction with its raw encoding.
type SignedTransaction struct {
	Tx   *types.Transaction
	Raw  []byte
	Hash common.Hash
}

// Submission is the result of a full submit: the request that was built,
// the transaction hash, and the receipt once mined.
type Submission struct {
	Request *TransactionRequest
	Hash    common.Hash
	Receipt *types.Receipt
}

// SubmitterService builds, signs, sends and confirms contract calls for a
// single caller account against a single chain. It never retries on its
// own, callers own the retry policy.
type SubmitterService struct {
	client       *chain.Client
	keys         keys.ProviderInterface
	caller       common.Address
	waitTimeout  time.Duration
	pollInterval time.Duration
}

func NewSubmitterService(client *chain.Client, keyProvider keys.ProviderInterface, caller common.Address, waitTimeout, pollInterval time.Duration) *SubmitterService {
	s := &SubmitterService{
		client:       client,
		keys:         keyProvider,
		caller:       caller,
		waitTimeout:  defaultWaitTimeout,
		pollInterval: defaultPollInterval,
	}
	if waitTimeout > 0 {
		s.waitTimeout = waitTimeout
	}
	if pollInterval > 0 {
		s.pollInterval = pollInterval
	}
	return s
}

// BuildCallTransaction encodes the call and fetches nonce, gas price, gas
// limit and chain id from the node. The nonce is fetched fresh here, never
// reused from an earlier build.
func (s *SubmitterService) BuildCallTransaction(ctx context.Context, binding *contract.Binding, function string, args []string) (*TransactionRequest, error) {
	data, err := binding.PackDecimalArgs(function, args)
	if err != nil {
		slog.Error("Failed to encode call data", "function", function, "error", err)
		return nil, err
	}

	contractAddr := binding.Address()

	// === Get Nonce ===
	nonce, err := s.client.PendingNonceAt(ctx, s.caller)
	if err != nil {
		slog.Error("Failed to get nonce", "caller", s.caller.Hex(), "error", err)
		return nil, opError(OpNonce, err)
	}

	// === Suggest Gas Price ===
	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		slog.Error("Failed to suggest gas price", "error", err)
		return nil, opError(OpGasPrice, err)
	}

	// === Estimate Gas Limit ===
	msg := ethereum.CallMsg{
		From: s.caller,
		To:   &contractAddr,
		Data: data,
	}

	gasLimit, err := s.client.EstimateGas(ctx, msg)
	if err != nil {
		slog.Error("Failed to estimate gas, using default gas limit", "function", function, "error", err)
		gasLimit = defaultGasLimit // Set a default gas limit if estimation fails
	}

	// === Get Chain ID ===
	chainID, err := s.client.ChainID(ctx)
	if err != nil {
		slog.Error("Failed to get chain id", "error", err)
		return nil, opError(OpChainID, err)
	}

	return &TransactionRequest{
		ChainID:  chainID,
		From:     s.caller,
		Nonce:    nonce,
		To:       contractAddr,
		GasPrice: gasPrice,
		GasLimit: gasLimit,
		Data:     data,
	}, nil
}

// Sign resolves the caller's private key and signs the request with the
// EIP-155 signer for the request's chain id.
func (s *SubmitterService) Sign(ctx context.Context, req *TransactionRequest) (*SignedTransaction, error) {
	key, err := s.keys.PrivateKey(ctx, req.From.Hex())
	if err != nil {
		slog.Error("Failed to resolve signing key", "caller", req.From.Hex(), "error", err)
		return nil, fmt.Errorf("failed to resolve signing key: %w", err)
	}

	// === Load Private Key ===
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(key, "0x"))
	if err != nil {
		slog.Error("Invalid private key", "caller", req.From.Hex())
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	// === Derive Public Address ===
	publicKey := privateKey.Public()
	publicKeyECDSA, ok := publicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("cannot assert type: publicKey is not of type *ecdsa.PublicKey")
	}
	fromAddress := crypto.PubkeyToAddress(*publicKeyECDSA)
	if fromAddress != req.From {
		slog.Error("Signing key does not match caller", "caller", req.From.Hex(), "derived", fromAddress.Hex())
		return nil, fmt.Errorf("%w: key resolves to %s", ErrKeyMismatch, fromAddress.Hex())
	}

	// === Sign the Transaction ===
	signedTx, err := types.SignTx(req.Assemble(), types.NewEIP155Signer(req.ChainID), privateKey)
	if err != nil {
		slog.Error("Failed to sign transaction", "caller", req.From.Hex(), "error", err)
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	raw, err := signedTx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode signed transaction: %w", err)
	}

	return &SignedTransaction{
		Tx:   signedTx,
		Raw:  raw,
		Hash: signedTx.Hash(),
	}, nil
}

// Send broadcasts the signed transaction.
func (s *SubmitterService) Send(ctx context.Context, signed *SignedTransaction) error {
	if err := s.client.SendTransaction(ctx, signed.Tx); err != nil {
		slog.Error("Failed to send transaction", "txHash", signed.Hash.Hex(), "error", err)
		return opError(OpSend, err)
	}
	return nil
}

// WaitMined polls for the receipt until it appears or the wait window
// closes. A missing receipt keeps the poll going, a reverted receipt is
// returned together with ErrReverted.
func (s *SubmitterService) WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.waitTimeout)
	defer cancel()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-waitCtx.Done():
			slog.Warn("Receipt wait timed out", "txHash", txHash.Hex(), "timeout", s.waitTimeout)
			return nil, fmt.Errorf("%w: transaction can still be mined, txHash: %s", ErrWaitTimeout, txHash.Hex())

		case <-ticker.C:
			receipt, err := s.client.TransactionReceipt(waitCtx, txHash)
			if err != nil {
				if errors.Is(err, ethereum.NotFound) {
					// Receipt not yet available
					slog.Debug("Transaction not yet mined", "txHash", txHash.Hex())
					continue
				}
				slog.Error("Error retrieving receipt", "txHash", txHash.Hex(), "error", err)
				return nil, opError(OpReceipt, err)
			}

			slog.Info("Transaction mined", "txHash", txHash.Hex(), "status", receipt.Status, "blockNumber", receipt.BlockNumber)
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("%w: txHash: %s", ErrReverted, txHash.Hex())
			}
			return receipt, nil
		}
	}
}

// SubmitCall runs the full build, sign, send and wait sequence. Once the
// transaction is sent the returned Submission carries its hash even when a
// later step fails.
func (s *SubmitterService) SubmitCall(ctx context.Context, binding *contract.Binding, function string, args []string) (*Submission, error) {
	slog.Info("Executing contract call", "contract", binding.Address().Hex(), "function", function, "args", args)

	req, err := s.BuildCallTransaction(ctx, binding, function, args)
	if err != nil {
		return nil, err
	}

	signed, err := s.Sign(ctx, req)
	if err != nil {
		return nil, err
	}

	sub := &Submission{Request: req, Hash: signed.Hash}

	if err := s.Send(ctx, signed); err != nil {
		return sub, err
	}

	slog.Info("Transaction sent",
		"from", req.From.Hex(),
		"to", req.To.Hex(),
		"nonce", req.Nonce,
		"gasPrice", req.GasPrice,
		"gasLimit", req.GasLimit,
		"chainID", req.ChainID,
		"txHash", signed.Hash.Hex())

	// === Monitor the Transaction ===
	receipt, err := s.WaitMined(ctx, signed.Hash)
	sub.Receipt = receipt
	if err != nil {
		return sub, err
	}

	return sub, nil
}

// Call executes a read-only call against the latest block.
func (s *SubmitterService) Call(ctx context.Context, binding *contract.Binding, function string, args []string) ([]byte, error) {
	data, err := binding.PackDecimalArgs(function, args)
	if err != nil {
		slog.Error("Failed to encode call data", "function", function, "error", err)
		return nil, err
	}

	contractAddr := binding.Address()
	msg := ethereum.CallMsg{
		From: s.caller,
		To:   &contractAddr,
		Data: data,
	}

	output, err := s.client.CallContract(ctx, msg, nil)
	if err != nil {
		slog.Error("Contract call failed", "function", function, "error", err)
		return nil, opError(OpCall, err)
	}
	return output, nil
}

// ReadUint256 calls a view function returning a single uint256.
func (s *SubmitterService) ReadUint256(ctx context.Context, binding *contract.Binding, function string, args []string) (*big.Int, error) {
	output, err := s.Call(ctx, binding, function, args)
	if err != nil {
		return nil, err
	}
	return binding.UnpackUint256(function, output)
}
