package tracker

import (
	"context"
	"errors"
	"fmt"

	"vaulttrust/internal/logger"

	"go.uber.org/zap"
)

var ErrContractNotDeployed = errors.New("no contract code at address")

func (t *Tracker) VerifyContract(ctx context.Context) error {
	logger.Debug("verify contract: verifying proof of reserves address...", zap.String("contract", t.contract.Address().Hex()))

	hasCode, err := infinityRateLimitRetry(ctx, func() (bool, error) {
		return t.contract.HasCode(ctx)
	})
	if err != nil {
		logger.Error("verify contract: failed to get contract code", zap.Error(err))
		return err
	}

	if !hasCode {
		return fmt.Errorf("%w %s", ErrContractNotDeployed, t.contract.Address().Hex())
	}

	logger.Debug("verify contract: verifying proof of reserves address... done")
	return nil
}
