package tracker

import (
	"context"

	"vaulttrust/internal/blockchain"
	"vaulttrust/internal/logger"
	"vaulttrust/internal/storage"

	"go.uber.org/zap"
)

// GetStartBlock resumes after the stored cursor. Without a cursor it starts at
// the configured block, or right after the current head.
func (t *Tracker) GetStartBlock(ctx context.Context) (uint64, error) {
	lastBlock, found, err := t.storage.GetTrackerCursor(ctx, t.contract.Address().Hex(), blockchain.ReserveSubmittedEvent)
	if err != nil {
		return 0, err
	}
	if found {
		logger.Debug("get start block: resuming after stored cursor", zap.Uint64("block", lastBlock))
		return lastBlock + 1, nil
	}

	if t.config.StartBlock > 0 {
		return t.config.StartBlock, nil
	}

	head, err := infinityRateLimitRetry(ctx, func() (uint64, error) {
		return t.contract.LatestBlock(ctx)
	})
	if err != nil {
		return 0, err
	}

	return head + 1, nil
}

func (t *Tracker) synchronizeCursor(ctx context.Context, block uint64) error {
	err := t.storage.UpdateTrackerCursor(ctx, &storage.TrackerCursor{
		ContractAddress: t.contract.Address().Hex(),
		EventName:       blockchain.ReserveSubmittedEvent,
		BlockNumber:     block,
	})
	if err != nil {
		logger.Error("synchronize cursor: cannot update tracker cursor", zap.Uint64("block", block), zap.Error(err))
		return err
	}

	t.metrics.TrackerBlock.Set(float64(block))
	return nil
}
