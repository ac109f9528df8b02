package tracker

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"vaulttrust/internal/blockchain"
	"vaulttrust/internal/logger"
	"vaulttrust/internal/metrics"
	"vaulttrust/internal/notify"
	"vaulttrust/internal/storage"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

type Config struct {
	ContractAddress common.Address
	// StartBlock is used when no cursor is stored yet. Zero means the chain
	// head at start time.
	StartBlock      uint64
	PollInterval    time.Duration
	BlockWindowSize uint64
}

type Tracker struct {
	storage   storage.Storage
	contract  *blockchain.Contract
	publisher notify.Publisher
	metrics   *metrics.Metrics
	config    Config

	listening atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type Func[T any] func() (T, error)

func infinityRateLimitRetry[T any](
	ctx context.Context,
	fn Func[T],
) (T, error) {
	for {
		result, err := fn()
		if err != nil && isRateLimited(err) {
			logger.Debug("tracker: rate limited by rpc endpoint, retrying...")
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(RateLimitBackoff):
				continue
			}
		}

		return result, err
	}
}

func isRateLimited(err error) bool {
	var e rpc.HTTPError
	return errors.As(err, &e) && e.StatusCode == http.StatusTooManyRequests
}

func NewTracker(
	storage storage.Storage,
	backend blockchain.Backend,
	publisher notify.Publisher,
	m *metrics.Metrics,
	config Config,
) *Tracker {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.BlockWindowSize == 0 {
		config.BlockWindowSize = DefaultBlockWindowSize
	}
	if publisher == nil {
		publisher = notify.NopPublisher{}
	}
	if m == nil {
		m = metrics.New(nil)
	}

	logger.Debug("tracker initialization: done",
		zap.String("contract", config.ContractAddress.Hex()),
		zap.Uint64("start block", config.StartBlock),
		zap.Duration("poll interval", config.PollInterval),
		zap.Uint64("block window size", config.BlockWindowSize),
	)
	return &Tracker{
		storage:   storage,
		contract:  blockchain.NewContract(backend, config.ContractAddress),
		publisher: publisher,
		metrics:   m,
		config:    config,
	}
}

// Start begins polling for ReserveSubmitted events in the background. Calling
// Start while the tracker is already listening is a no-op.
func (t *Tracker) Start(ctx context.Context) error {
	if !t.listening.CompareAndSwap(false, true) {
		logger.Info("tracker: already listening to contract events")
		return nil
	}

	logger.Info("tracker: starting to listen for ReserveSubmitted events...", zap.String("contract", t.contract.Address().Hex()))

	if err := t.VerifyContract(ctx); err != nil {
		t.listening.Store(false)
		return err
	}

	fromBlock, err := t.GetStartBlock(ctx)
	if err != nil {
		t.listening.Store(false)
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	t.mu.Lock()
	t.cancel = cancel
	t.done = done
	t.mu.Unlock()

	go func() {
		defer close(done)
		defer t.listening.Store(false)
		t.loop(runCtx, fromBlock)
	}()

	logger.Info("tracker: successfully started listening", zap.Uint64("from block", fromBlock))
	return nil
}

// Stop cancels the polling loop and waits for it to exit.
func (t *Tracker) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}

	logger.Info("tracker: stopping event listener...")
	cancel()
	<-done
	t.listening.Store(false)
	logger.Info("tracker: stopped")
}

func (t *Tracker) Listening() bool {
	return t.listening.Load()
}

func (t *Tracker) loop(ctx context.Context, fromBlock uint64) {
	ticker := time.NewTicker(t.config.PollInterval)
	defer ticker.Stop()

	for {
		fromBlock = t.Run(ctx, fromBlock)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Run processes every block from fromBlock up to the current head and
// returns the next block to poll from. Event failures are logged and skipped.
func (t *Tracker) Run(ctx context.Context, fromBlock uint64) uint64 {
	t.metrics.TrackerPolls.Inc()

	head, err := infinityRateLimitRetry(ctx, func() (uint64, error) {
		return t.contract.LatestBlock(ctx)
	})
	if err != nil {
		logger.Error("tracker: cannot get latest block", zap.Error(err))
		return fromBlock
	}

	if head < fromBlock {
		return fromBlock
	}

	for windowStart := fromBlock; windowStart <= head; {
		if ctx.Err() != nil {
			return windowStart
		}

		windowEnd := min(windowStart+t.config.BlockWindowSize-1, head)
		err := t.collectReserveSubmitted(ctx, windowStart, windowEnd)
		if err != nil {
			logger.Error("tracker: cannot collect ReserveSubmitted events",
				zap.Uint64("from", windowStart),
				zap.Uint64("to", windowEnd),
				zap.Error(err),
			)
			return windowStart
		}

		windowStart = windowEnd + 1
	}

	return head + 1
}
