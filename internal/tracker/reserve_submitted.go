package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"vaulttrust/internal/logger"
	"vaulttrust/internal/metrics"
	"vaulttrust/internal/notify"
	"vaulttrust/internal/storage"

	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

type reserveSubmittedDetails struct {
	ReserveID       int64  `json:"reserveId"`
	TokenSymbol     string `json:"tokenSymbol"`
	DataType        string `json:"dataType"`
	TransactionHash string `json:"transactionHash"`
}

func (t *Tracker) collectReserveSubmitted(ctx context.Context, fromBlock uint64, toBlock uint64) error {
	logger.Debug("reserve submitted: collect logs...", zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))

	logs, err := infinityRateLimitRetry(ctx, func() ([]types.Log, error) {
		return t.contract.FilterReserveSubmitted(ctx, fromBlock, toBlock)
	})
	if err != nil {
		return err
	}

	for _, log := range logs {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := t.HandleLog(ctx, log); err != nil {
			logger.Error("reserve submitted: error handling event",
				zap.String("transaction hash", log.TxHash.Hex()),
				zap.Uint64("block", log.BlockNumber),
				zap.Error(err),
			)
		}
	}

	if err := t.synchronizeCursor(ctx, toBlock); err != nil {
		return err
	}

	logger.Debug("reserve submitted: collect logs... done", zap.Int("logs", len(logs)))
	return nil
}

// HandleLog mirrors one ReserveSubmitted log into a Submission and an
// AuditLog. A log already mirrored is ignored.
func (t *Tracker) HandleLog(ctx context.Context, log types.Log) error {
	event, err := t.contract.ParseReserveSubmitted(log)
	if err != nil {
		t.metrics.TrackerEvents.WithLabelValues(metrics.EventFailed).Inc()
		return err
	}

	if event.Removed {
		logger.Debug("reserve submitted: log removed by reorg, skip", zap.String("transaction hash", event.TransactionHash.Hex()))
		t.metrics.TrackerEvents.WithLabelValues(metrics.EventSkipped).Inc()
		return nil
	}

	logger.Info("reserve submitted: new event",
		zap.String("user", event.User.Hex()),
		zap.String("reserve id", event.ReserveID.String()),
		zap.String("timestamp", event.Timestamp.String()),
		zap.Uint64("block", event.BlockNumber),
		zap.String("transaction hash", event.TransactionHash.Hex()),
	)

	if !event.ReserveID.IsInt64() {
		t.metrics.TrackerEvents.WithLabelValues(metrics.EventFailed).Inc()
		return fmt.Errorf("reserve id %s overflows int64", event.ReserveID)
	}
	reserveID := event.ReserveID.Int64()

	info, err := t.contract.GetReserveInfo(ctx, event.User, event.ReserveID)
	if err != nil {
		t.metrics.TrackerEvents.WithLabelValues(metrics.EventFailed).Inc()
		return err
	}

	userAddress := event.User.Hex()
	contractAddress := t.contract.Address().Hex()
	transactionHash := event.TransactionHash.Hex()

	submission := &storage.Submission{
		UserAddress:      userAddress,
		ReserveID:        reserveID,
		TokenSymbol:      info.TokenSymbol,
		DataType:         info.DataType,
		EncryptedBalance: storage.EncryptedOnChain,
		TransactionHash:  transactionHash,
		BlockNumber:      int64(event.BlockNumber),
		Timestamp:        info.Time(),
		Verified:         info.Verified,
	}
	if info.Verified {
		auditor := info.Auditor.Hex()
		verifiedAt := time.Now().UTC()
		submission.VerifiedBy = &auditor
		submission.VerifiedAt = &verifiedAt
	}

	detailsJSON, err := json.Marshal(reserveSubmittedDetails{
		ReserveID:       reserveID,
		TokenSymbol:     info.TokenSymbol,
		DataType:        info.DataType,
		TransactionHash: transactionHash,
	})
	if err != nil {
		t.metrics.TrackerEvents.WithLabelValues(metrics.EventFailed).Inc()
		return err
	}
	details := string(detailsJSON)

	auditLog := &storage.AuditLog{
		Action:        ReserveSubmittedAction,
		PerformedBy:   userAddress,
		TargetAddress: &contractAddress,
		Details:       &details,
	}

	err = t.storage.RecordSubmission(ctx, submission, auditLog)
	if errors.Is(err, storage.ErrDuplicate) {
		logger.Debug("reserve submitted: submission already stored, skip", zap.String("transaction hash", transactionHash))
		t.metrics.TrackerEvents.WithLabelValues(metrics.EventDuplicate).Inc()
		return nil
	}
	if err != nil {
		t.metrics.TrackerEvents.WithLabelValues(metrics.EventFailed).Inc()
		return err
	}

	if err := t.publisher.Publish(ctx, notify.FromAuditLog(auditLog)); err != nil {
		logger.Warn("reserve submitted: cannot publish audit event", zap.Error(err))
		t.metrics.PublishFailure.Inc()
	}

	t.metrics.TrackerEvents.WithLabelValues(metrics.EventStored).Inc()
	logger.Info("reserve submitted: submission stored in database", zap.String("id", submission.ID))
	return nil
}
