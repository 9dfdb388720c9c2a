package services

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainstacklabs/contract-caller/internal/chain"
	"github.com/chainstacklabs/contract-caller/internal/contract"
	"github.com/chainstacklabs/contract-caller/internal/keys"
)

const (
	testCaller     = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	testPrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

	otherPrivateKey = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
)

var testABI = contract.MustParseABI(contract.SimpleStorageABI)

// mockNode scripts the node side of a submission and records the order of
// round-trips.
type mockNode struct {
	mu    sync.Mutex
	calls []string

	chainId     *big.Int
	nonce       uint64
	nonceErr    error
	gasPrice    *big.Int
	gasPriceErr error
	estimateGas uint64
	estimateErr error
	sendErr     error

	// receipts are withheld for this many polls
	pendingPolls int
	receipt      *types.Receipt
	receiptErr   error
	receiptCalls int

	sentTx *types.Transaction

	// simulated contract storage, updated when the receipt is delivered
	mineStored  bool
	storedValue *big.Int
	callErr     error
}

func newMockNode() *mockNode {
	return &mockNode{
		chainId:     big.NewInt(5),
		nonce:       5,
		gasPrice:    big.NewInt(1000000000),
		estimateGas: 43000,
	}
}

func (m *mockNode) ChainID(ctx context.Context) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "chain_id")
	return m.chainId, nil
}

func (m *mockNode) BlockNumber(ctx context.Context) (uint64, error) {
	return 1, nil
}

func (m *mockNode) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "nonce")
	if m.nonceErr != nil {
		return 0, m.nonceErr
	}
	return m.nonce, nil
}

func (m *mockNode) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "gas_price")
	if m.gasPriceErr != nil {
		return nil, m.gasPriceErr
	}
	return m.gasPrice, nil
}

func (m *mockNode) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "estimate_gas")
	if m.estimateErr != nil {
		return 0, m.estimateErr
	}
	return m.estimateGas, nil
}

func (m *mockNode) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "send")
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sentTx = tx
	return nil
}

func (m *mockNode) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "receipt")
	m.receiptCalls++
	if m.receiptErr != nil {
		return nil, m.receiptErr
	}
	if m.receiptCalls <= m.pendingPolls || m.receipt == nil {
		return nil, ethereum.NotFound
	}
	if m.mineStored && m.sentTx != nil {
		m.applySentTxLocked()
	}
	return m.receipt, nil
}

// applySentTxLocked mimics the contract: a mined saveNumber(v) updates the
// stored value.
func (m *mockNode) applySentTxLocked() {
	method := testABI.Methods["saveNumber"]
	data := m.sentTx.Data()
	if len(data) < 4 || !bytes.Equal(data[:4], method.ID) {
		return
	}
	values, err := method.Inputs.Unpack(data[4:])
	if err == nil && len(values) == 1 {
		m.storedValue = values[0].(*big.Int)
	}
}

func (m *mockNode) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "call")
	if m.callErr != nil {
		return nil, m.callErr
	}
	value := m.storedValue
	if value == nil {
		value = big.NewInt(0)
	}
	return testABI.Methods["getNumber"].Outputs.Pack(value)
}

func (m *mockNode) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (m *mockNode) Close() {}

func (m *mockNode) callLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockNode) receiptCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.receiptCalls
}

func successReceipt() *types.Receipt {
	return &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		BlockNumber: big.NewInt(100),
	}
}

func failedReceipt() *types.Receipt {
	return &types.Receipt{
		Status:      types.ReceiptStatusFailed,
		BlockNumber: big.NewInt(100),
	}
}

func newTestSubmitter(node *mockNode) *SubmitterService {
	client := chain.NewClient(node, chain.Options{})
	provider := keys.NewStaticKeyProvider(testCaller, testPrivateKey)
	return NewSubmitterService(client, provider, common.HexToAddress(testCaller), time.Second, time.Millisecond)
}

func testBinding() *contract.Binding {
	return contract.NewBinding(common.HexToAddress(contract.SimpleStorageAddress), testABI)
}

func indexOf(calls []string, name string) int {
	for i, c := range calls {
		if c == name {
			return i
		}
	}
	return -1
}

func TestBuildCallTransaction(t *testing.T) {
	node := newMockNode()
	submitter := newTestSubmitter(node)

	req, err := submitter.BuildCallTransaction(context.Background(), testBinding(), "saveNumber", []string{"12"})
	require.NoError(t, err)

	assert.Equal(t, uint64(5), req.Nonce)
	assert.Equal(t, int64(5), req.ChainID.Int64())
	assert.Equal(t, common.HexToAddress(testCaller), req.From)
	assert.Equal(t, common.HexToAddress(contract.SimpleStorageAddress), req.To)
	assert.Equal(t, big.NewInt(1000000000), req.GasPrice)
	assert.Equal(t, uint64(43000), req.GasLimit)

	method := testABI.Methods["saveNumber"]
	require.Equal(t, method.ID, req.Data[:4])
	values, err := method.Inputs.Unpack(req.Data[4:])
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(12), values[0].(*big.Int))

	// The nonce is fetched from the node before anything else
	calls := node.callLog()
	assert.Equal(t, "nonce", calls[0])
}

func TestBuildCallTransactionGasFallback(t *testing.T) {
	node := newMockNode()
	node.estimateErr = errors.New("execution reverted")
	submitter := newTestSubmitter(node)

	req, err := submitter.BuildCallTransaction(context.Background(), testBinding(), "saveNumber", []string{"12"})
	require.NoError(t, err)
	assert.Equal(t, defaultGasLimit, req.GasLimit)
}

func TestBuildCallTransactionOpErrors(t *testing.T) {
	t.Run("nonce failure", func(t *testing.T) {
		node := newMockNode()
		node.nonceErr = errors.New("connection reset")
		submitter := newTestSubmitter(node)

		_, err := submitter.BuildCallTransaction(context.Background(), testBinding(), "saveNumber", []string{"12"})
		var opErr *OpError
		require.ErrorAs(t, err, &opErr)
		assert.Equal(t, OpNonce, opErr.Op)
	})

	t.Run("gas price failure", func(t *testing.T) {
		node := newMockNode()
		node.gasPriceErr = errors.New("connection reset")
		submitter := newTestSubmitter(node)

		_, err := submitter.BuildCallTransaction(context.Background(), testBinding(), "saveNumber", []string{"12"})
		var opErr *OpError
		require.ErrorAs(t, err, &opErr)
		assert.Equal(t, OpGasPrice, opErr.Op)
	})
}

func TestSign(t *testing.T) {
	node := newMockNode()
	submitter := newTestSubmitter(node)
	ctx := context.Background()

	req, err := submitter.BuildCallTransaction(ctx, testBinding(), "saveNumber", []string{"12"})
	require.NoError(t, err)

	signed, err := submitter.Sign(ctx, req)
	require.NoError(t, err)

	// EIP-155 signature for the node-reported chain id
	assert.Equal(t, int64(5), signed.Tx.ChainId().Int64())
	assert.Equal(t, uint64(5), signed.Tx.Nonce())

	sender, err := types.Sender(types.NewEIP155Signer(big.NewInt(5)), signed.Tx)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testCaller), sender)

	assert.Equal(t, signed.Tx.Hash(), signed.Hash)
	assert.NotEmpty(t, signed.Raw)
}

func TestSignKeyMismatch(t *testing.T) {
	node := newMockNode()
	client := chain.NewClient(node, chain.Options{})
	// The provider answers for the caller address but holds someone
	// else's key
	provider := keys.NewStaticKeyProvider(testCaller, otherPrivateKey)
	submitter := NewSubmitterService(client, provider, common.HexToAddress(testCaller), time.Second, time.Millisecond)
	ctx := context.Background()

	req, err := submitter.BuildCallTransaction(ctx, testBinding(), "saveNumber", []string{"12"})
	require.NoError(t, err)

	_, err = submitter.Sign(ctx, req)
	require.True(t, errors.Is(err, ErrKeyMismatch))
}

func TestSubmitCall(t *testing.T) {
	node := newMockNode()
	node.pendingPolls = 2
	node.receipt = successReceipt()
	submitter := newTestSubmitter(node)

	sub, err := submitter.SubmitCall(context.Background(), testBinding(), "saveNumber", []string{"12"})
	require.NoError(t, err)

	require.NotNil(t, sub.Receipt)
	assert.Equal(t, types.ReceiptStatusSuccessful, sub.Receipt.Status)
	assert.Equal(t, node.sentTx.Hash(), sub.Hash)
	assert.GreaterOrEqual(t, node.receiptCallCount(), 3)

	calls := node.callLog()
	assert.Less(t, indexOf(calls, "nonce"), indexOf(calls, "send"))
}

func TestSubmitCallSendFailure(t *testing.T) {
	node := newMockNode()
	node.sendErr = errors.New("insufficient funds for gas * price + value")
	submitter := newTestSubmitter(node)

	sub, err := submitter.SubmitCall(context.Background(), testBinding(), "saveNumber", []string{"12"})

	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, OpSend, opErr.Op)

	// The hash of the signed transaction is known, but no receipt was
	// ever polled for
	require.NotNil(t, sub)
	assert.NotEqual(t, common.Hash{}, sub.Hash)
	assert.Nil(t, sub.Receipt)
	assert.Equal(t, 0, node.receiptCallCount())
}

func TestSubmitCallReverted(t *testing.T) {
	node := newMockNode()
	node.receipt = failedReceipt()
	submitter := newTestSubmitter(node)

	sub, err := submitter.SubmitCall(context.Background(), testBinding(), "saveNumber", []string{"12"})
	require.True(t, errors.Is(err, ErrReverted))
	require.NotNil(t, sub)
	assert.NotNil(t, sub.Receipt)
}

func TestWaitMinedTimeout(t *testing.T) {
	node := newMockNode()
	// No receipt ever appears
	node.pendingPolls = 1 << 30
	client := chain.NewClient(node, chain.Options{})
	provider := keys.NewStaticKeyProvider(testCaller, testPrivateKey)
	submitter := NewSubmitterService(client, provider, common.HexToAddress(testCaller), 30*time.Millisecond, time.Millisecond)

	_, err := submitter.WaitMined(context.Background(), common.HexToHash("0xdead"))
	require.True(t, errors.Is(err, ErrWaitTimeout))
}

func TestWaitMinedReceiptError(t *testing.T) {
	node := newMockNode()
	node.receiptErr = errors.New("rpc failure")
	submitter := newTestSubmitter(node)

	_, err := submitter.WaitMined(context.Background(), common.HexToHash("0xdead"))
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, OpReceipt, opErr.Op)
}

// TestSubmitThenRead covers the script's full round trip: the stored value
// changes only once the transaction is mined, and the read-back after a
// confirmed receipt returns the saved number.
func TestSubmitThenRead(t *testing.T) {
	node := newMockNode()
	node.mineStored = true
	node.storedValue = big.NewInt(7)
	node.pendingPolls = 2
	node.receipt = successReceipt()
	submitter := newTestSubmitter(node)
	ctx := context.Background()

	// Before the transaction the contract still holds the old value
	before, err := submitter.ReadUint256(ctx, testBinding(), "getNumber", nil)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(7), before)

	_, err = submitter.SubmitCall(ctx, testBinding(), "saveNumber", []string{"12"})
	require.NoError(t, err)

	after, err := submitter.ReadUint256(ctx, testBinding(), "getNumber", nil)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(12), after)
}

func TestReadUint256CallError(t *testing.T) {
	node := newMockNode()
	node.callErr = errors.New("execution reverted")
	submitter := newTestSubmitter(node)

	_, err := submitter.ReadUint256(context.Background(), testBinding(), "getNumber", nil)
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, OpCall, opErr.Op)
}
