package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chainstacklabs/contract-caller/internal/contract"
	"github.com/chainstacklabs/contract-caller/internal/domain"
	broker "github.com/chainstacklabs/contract-caller/internal/message-broker/interface"
	"github.com/chainstacklabs/contract-caller/internal/status"
)

const (
	// Topic to consume call requests from, for rabbitmq this is the exchange name
	calls_topic = "contract_calls"
)

type WorkerServiceInterface interface {
	SetupCallListener() error
	Shutdown()
}

var _ WorkerServiceInterface = (*WorkerService)(nil)

// WorkerService consumes call requests from the message broker and runs
// them through the submitter with a bounded worker pool. Every request ends
// up with a status record, confirmed or failed.
type WorkerService struct {
	messageBroker broker.MessageBrokerInterface
	submitter     SubmitterServiceInterface
	statusStore   status.StatusStoreInterface
	abiJSON       string
	chainId       int

	priorities     []int
	ctx            context.Context
	cancel         context.CancelFunc
	workerPoolSize int
	taskQueue      chan domain.CallRequest
	wg             sync.WaitGroup
}

func NewWorkerService(messageBroker broker.MessageBrokerInterface, submitter SubmitterServiceInterface, statusStore status.StatusStoreInterface, abiJSON string, chainId int, priorities []int, ctx context.Context, workerPoolSize int) *WorkerService {
	ctxWorkerService, cancel := context.WithCancel(ctx)
	w := &WorkerService{
		messageBroker:  messageBroker,
		submitter:      submitter,
		statusStore:    statusStore,
		abiJSON:        abiJSON,
		chainId:        chainId,
		priorities:     priorities,
		ctx:            ctxWorkerService,
		cancel:         cancel,
		workerPoolSize: workerPoolSize,
		taskQueue:      make(chan domain.CallRequest, 100),
	}
	return w
}

func (w *WorkerService) SetupCallListener() error {
	// Listen for new call requests
	slog.Info("Setting up call request listener")

	// Start worker pool to process the requests as they arrive from the message broker
	for i := 0; i < w.workerPoolSize; i++ {
		w.wg.Add(1)
		go w.worker(i + 1)
	}

	for _, p := range w.priorities {
		w.wg.Add(1)
		go w.listenForNewCallsForPriority(p, make(chan domain.CallRequest))
	}

	return nil
}

func (w *WorkerService) listenForNewCallsForPriority(priority int, chNewCall chan domain.CallRequest) {
	defer w.wg.Done()

	// Listen for new call requests
	slog.Info("Listening for new call requests", "priority", priority)

	w.messageBroker.ListenForMessages(calls_topic, priority, func(body []byte, ctx context.Context) {
		req := &domain.CallRequest{}
		err := json.Unmarshal(body, req)
		if err != nil {
			slog.Error("Failed to unmarshal message", "error", err)
			return
		}
		// The channel is never closed. A delivery racing shutdown is
		// dropped here instead of crashing the consumer.
		select {
		case chNewCall <- *req:
		case <-w.ctx.Done():
			slog.Warn("Dropping call request delivered during shutdown", "id", req.Id, "priority", priority)
		}
	})

	for {
		select {
		case req := <-chNewCall:
			select {
			case w.taskQueue <- req:
			case <-w.ctx.Done():
				return
			}
		case <-w.ctx.Done():
			slog.Info("Shutting down call listener", "priority", priority)
			return
		}
	}
}

// executeCall runs one request end to end: id, build, sign, send, wait,
// status record. Failures are recorded and never confirmed.
func (w *WorkerService) executeCall(req *domain.CallRequest) {
	if req.Id == "" {
		id, err := w.statusStore.NextID(req.AppName)
		if err != nil {
			slog.Error("Failed to generate call id", "app", req.AppName, "error", err)
			return
		}
		req.Id = id
	}

	slog.Info("Executing call request", "id", req.Id, "function", req.Function, "contract", req.ContractAddress)

	if req.ChainID != w.chainId {
		w.markFailed(req.Id, "", fmt.Errorf("unsupported chain id %d, this worker serves chain %d", req.ChainID, w.chainId))
		return
	}

	binding, err := contract.NewBindingFromJSON(req.ContractAddress, w.abiJSON)
	if err != nil {
		w.markFailed(req.Id, "", err)
		return
	}

	txReq, err := w.submitter.BuildCallTransaction(w.ctx, binding, req.Function, req.Args)
	if err != nil {
		w.markFailed(req.Id, "", err)
		return
	}

	signed, err := w.submitter.Sign(w.ctx, txReq)
	if err != nil {
		w.markFailed(req.Id, "", err)
		return
	}

	if err := w.submitter.Send(w.ctx, signed); err != nil {
		w.markFailed(req.Id, signed.Hash.Hex(), err)
		return
	}

	if err := w.statusStore.MarkSubmitted(req.Id, signed.Hash.Hex()); err != nil {
		slog.Error("Failed to record status", "id", req.Id, "error", err)
	}

	receipt, err := w.submitter.WaitMined(w.ctx, signed.Hash)
	if err != nil {
		w.markFailed(req.Id, signed.Hash.Hex(), err)
		return
	}

	slog.Info("Call request confirmed", "id", req.Id, "txHash", signed.Hash.Hex(), "blockNumber", receipt.BlockNumber)
	if err := w.statusStore.MarkConfirmed(req.Id, signed.Hash.Hex()); err != nil {
		slog.Error("Failed to record status", "id", req.Id, "error", err)
	}
}

func (w *WorkerService) markFailed(id string, txHash string, cause error) {
	slog.Error("Call request failed", "id", id, "txHash", txHash, "error", cause)
	if err := w.statusStore.MarkFailed(id, txHash, cause); err != nil {
		slog.Error("Failed to record status", "id", id, "error", err)
	}
}

func (w *WorkerService) Shutdown() {
	slog.Info("Closing Worker Service")
	w.cancel()
	w.wg.Wait()
	slog.Info("Worker Service shut down gracefully")
}

// Worker function to process tasks
func (w *WorkerService) worker(id int) {
	defer w.wg.Done()
	slog.Debug("Worker started", "worker_id", id)
	for {
		select {
		case req := <-w.taskQueue:
			w.executeCall(&req)
		case <-w.ctx.Done():
			slog.Debug("Worker received shutdown signal", "worker_id", id)
			return
		}
	}
}
