package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

const (
	defaultDialTimeout = 10 * time.Second
	defaultCallTimeout = 30 * time.Second
)

// NodeClientInterface is the JSON-RPC surface this service uses. It is
// satisfied by *ethclient.Client and mocked in tests.
type NodeClientInterface interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	Close()
}

var _ NodeClientInterface = (*ethclient.Client)(nil)

type Options struct {
	DialTimeout time.Duration
	CallTimeout time.Duration
}

// Client wraps a node connection with per-call timeouts and a pinned
// chain id. Every method derives its deadline from the caller's context,
// a hung node never blocks an operation for longer than the call timeout.
type Client struct {
	node        NodeClientInterface
	callTimeout time.Duration

	mx      sync.RWMutex
	chainId *big.Int
}

func NewClient(node NodeClientInterface, opts Options) *Client {
	c := &Client{
		node:        node,
		callTimeout: defaultCallTimeout,
	}
	if opts.CallTimeout > 0 {
		c.callTimeout = opts.CallTimeout
	}
	return c
}

// Dial connects to the node and verifies that it reports the chain id the
// configuration expects. A node that cannot answer at dial is tolerated,
// only a mismatching answer fails. expectedChainId 0 skips the check.
func Dial(ctx context.Context, rawUrl string, expectedChainId uint64, opts Options) (*Client, error) {
	if rawUrl == "" {
		return nil, ErrNodeUrlEmpty
	}

	dialTimeout := defaultDialTimeout
	if opts.DialTimeout > 0 {
		dialTimeout = opts.DialTimeout
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	node, err := ethclient.DialContext(dialCtx, rawUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to node %s: %w", rawUrl, err)
	}

	client := NewClient(node, opts)
	if err := client.verifyChainID(ctx, expectedChainId); err != nil {
		client.Close()
		return nil, err
	}

	return client, nil
}

func (c *Client) verifyChainID(ctx context.Context, expectedChainId uint64) error {
	chainId, err := c.ChainID(ctx)
	if err != nil {
		// An unreachable node is not fatal at dial, the connectivity check
		// and every later call report their own errors.
		slog.Warn("Could not verify chain id at dial", "error", err)
		return nil
	}
	if expectedChainId != 0 && chainId.Uint64() != expectedChainId {
		return fmt.Errorf("%w: node reports %s, config expects %d", ErrChainIDMismatch, chainId, expectedChainId)
	}
	return nil
}

// CheckConnectivity asks the node for its head block. Callers decide whether
// a failure is fatal, the client stays usable either way.
func (c *Client) CheckConnectivity(ctx context.Context) error {
	blockNumber, err := c.BlockNumber(ctx)
	if err != nil {
		return err
	}
	slog.Debug("Node reachable", "blockNumber", blockNumber)
	return nil
}

// ChainID returns the node's chain id, cached after the first call.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	c.mx.RLock()
	chainId := c.chainId
	c.mx.RUnlock()
	if chainId != nil {
		return new(big.Int).Set(chainId), nil
	}

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	chainId, err := c.node.ChainID(callCtx)
	if err != nil {
		return nil, err
	}

	c.mx.Lock()
	c.chainId = new(big.Int).Set(chainId)
	c.mx.Unlock()

	return chainId, nil
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	return c.node.BlockNumber(callCtx)
}

func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	return c.node.PendingNonceAt(callCtx, account)
}

func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	return c.node.SuggestGasPrice(callCtx)
}

func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	return c.node.EstimateGas(callCtx, msg)
}

func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	return c.node.SendTransaction(callCtx, tx)
}

func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	return c.node.TransactionReceipt(callCtx, txHash)
}

func (c *Client) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	return c.node.CallContract(callCtx, call, blockNumber)
}

func (c *Client) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	return c.node.BalanceAt(callCtx, account, blockNumber)
}

func (c *Client) Close() {
	c.node.Close()
}
