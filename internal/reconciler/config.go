package reconciler

import (
	"context"

	"bank-reconciliation-service/internal/matcher"
	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"
)

// EnsureConfig returns the active matching config, saving the defaults when
// none exists yet. Matching itself never creates one.
func (cs *ConciliacionService) EnsureConfig(ctx context.Context) (*matcher.MatchingConfig, error) {
	config, err := cs.repo.FindActiveConfig(ctx)
	if err != nil {
		return nil, err
	}
	if config != nil {
		return config, nil
	}

	config = matcher.DefaultMatchingConfig()
	if err := cs.repo.SaveConfig(ctx, config); err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryStorage, errors.CodeWriteFailed, "save default matching config")
	}
	cs.logger.WithField("config", config.String()).Info("Created default matching config")
	return config, nil
}

// UpdateConfig applies patch to the active config in place. An invalid result
// is rejected and the stored config is left untouched.
func (cs *ConciliacionService) UpdateConfig(ctx context.Context, patch matcher.ConfigPatch) (*matcher.MatchingConfig, error) {
	if patch.IsEmpty() {
		return nil, errors.ValidationError(errors.CodeMissingField, "config_patch", nil, nil).
			WithSuggestion("Set at least one matching parameter")
	}

	config, err := cs.EnsureConfig(ctx)
	if err != nil {
		return nil, err
	}
	before := config.String()
	if err := config.Update(patch); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "matching_config", before, err)
	}
	if err := cs.repo.SaveConfig(ctx, config); err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryStorage, errors.CodeWriteFailed, "save matching config")
	}

	cs.logger.WithFields(logger.Fields{
		"before": before,
		"after":  config.String(),
	}).Info("Matching config updated")
	return config, nil
}
