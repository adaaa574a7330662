package reconciler

import (
	"context"
	"sync"
	"time"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"
)

// Orchestrator reconciles a range of months for one account, one period after the
// other, reporting progress to registered callbacks. A failing period is recorded and
// the remaining periods still run unless StopOnError is set.
type Orchestrator struct {
	service *ConciliacionService
	logger  logger.Logger

	// StopOnError aborts the batch at the first failing period
	StopOnError bool

	progressCallbacks []ProgressCallback
	progressMutex     sync.RWMutex
	currentProgress   *BatchProgress
}

// BatchProgress tracks a multi-period run
type BatchProgress struct {
	TotalPeriods     int           `json:"total_periods"`
	CompletedPeriods int           `json:"completed_periods"`
	CurrentPeriod    string        `json:"current_period"`
	PercentComplete  float64       `json:"percent_complete"`
	StartTime        time.Time     `json:"start_time"`
	ElapsedTime      time.Duration `json:"elapsed_time"`
	MatchesSaved     int           `json:"matches_saved"`
	Errors           []string      `json:"errors,omitempty"`
}

// ProgressCallback is called after every period
type ProgressCallback func(*BatchProgress)

// BatchResult collects the per-period results of a batch
type BatchResult struct {
	Periods []*PeriodResult      `json:"periods"`
	Failed  map[string]string    `json:"failed,omitempty"`
	Errors  *errors.ErrorSummary `json:"errors,omitempty"`
	Elapsed time.Duration        `json:"elapsed"`
}

// NewOrchestrator creates a batch orchestrator over the given service
func NewOrchestrator(service *ConciliacionService, log logger.Logger) (*Orchestrator, error) {
	if service == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "conciliacion_service", nil, nil).
			WithSuggestion("Provide a valid ConciliacionService instance")
	}
	return &Orchestrator{
		service: service,
		logger:  logger.OrGlobal(log).WithComponent("orchestrator"),
	}, nil
}

// AddProgressCallback adds a progress callback function
func (o *Orchestrator) AddProgressCallback(callback ProgressCallback) {
	o.progressCallbacks = append(o.progressCallbacks, callback)
}

// MonthRange lists the periods of an account from (fromYear, fromMonth) to
// (toYear, toMonth), both inclusive
func MonthRange(accountID int64, fromYear, fromMonth, toYear, toMonth int) ([]models.Period, error) {
	start := time.Date(fromYear, time.Month(fromMonth), 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(toYear, time.Month(toMonth), 1, 0, 0, 0, 0, time.UTC)
	if end.Before(start) {
		return nil, errors.ValidationError(errors.CodeOutOfRange, "month_range",
			start.Format("2006-01")+".."+end.Format("2006-01"), nil).
			WithSuggestion("The first month must not come after the last one")
	}

	var periods []models.Period
	for d := start; !d.After(end); d = d.AddDate(0, 1, 0) {
		p := models.Period{AccountID: accountID, Year: d.Year(), Month: int(d.Month())}
		if err := p.Validate(); err != nil {
			return nil, errors.ValidationError(errors.CodeOutOfRange, "period", p.String(), err)
		}
		periods = append(periods, p)
	}
	return periods, nil
}

// RunPeriods reconciles each period in order
func (o *Orchestrator) RunPeriods(ctx context.Context, periods []models.Period) (*BatchResult, error) {
	startTime := time.Now()
	o.initializeProgress(len(periods), startTime)

	o.logger.WithField("periods", len(periods)).Info("Starting batch reconciliation")

	result := &BatchResult{Failed: make(map[string]string)}
	var failures []*errors.ReconcilerError

	for i, period := range periods {
		if err := ctx.Err(); err != nil {
			return result, errors.ReconciliationError(errors.CodeBatchFailed, "batch_reconciliation", err)
		}

		o.updateProgress(period.String(), i, 0, "")

		pr, err := o.service.RunPeriod(ctx, period)
		if err != nil {
			rerr := errors.WrapIfNeeded(err, errors.CategoryReconciliation, errors.CodeMatchingFailed, "period reconciliation failed").
				WithContext("period", period.String())
			failures = append(failures, rerr)
			result.Failed[period.String()] = rerr.Error()
			o.updateProgress(period.String(), i+1, 0, rerr.Error())

			o.logger.WithError(err).WithField("period", period.String()).Error("Period reconciliation failed")
			if o.StopOnError {
				break
			}
			continue
		}

		result.Periods = append(result.Periods, pr)
		o.updateProgress(period.String(), i+1, len(pr.Matches), "")
	}

	result.Elapsed = time.Since(startTime)
	if len(failures) > 0 {
		result.Errors = errors.NewErrorSummary(failures)
	}

	o.logger.WithFields(logger.Fields{
		"periods":   len(periods),
		"succeeded": len(result.Periods),
		"failed":    len(failures),
		"elapsed":   result.Elapsed,
	}).Info("Batch reconciliation completed")

	if result.Errors != nil && len(result.Periods) == 0 {
		return result, result.Errors
	}
	return result, nil
}

// Progress returns a copy of the current progress
func (o *Orchestrator) Progress() BatchProgress {
	o.progressMutex.RLock()
	defer o.progressMutex.RUnlock()
	if o.currentProgress == nil {
		return BatchProgress{}
	}
	p := *o.currentProgress
	p.Errors = append([]string(nil), o.currentProgress.Errors...)
	return p
}

func (o *Orchestrator) initializeProgress(total int, start time.Time) {
	o.progressMutex.Lock()
	defer o.progressMutex.Unlock()
	o.currentProgress = &BatchProgress{TotalPeriods: total, StartTime: start}
}

func (o *Orchestrator) updateProgress(period string, completed, saved int, failure string) {
	o.progressMutex.Lock()
	p := o.currentProgress
	p.CurrentPeriod = period
	p.CompletedPeriods = completed
	p.MatchesSaved += saved
	p.ElapsedTime = time.Since(p.StartTime)
	if p.TotalPeriods > 0 {
		p.PercentComplete = float64(completed) / float64(p.TotalPeriods) * 100
	}
	if failure != "" {
		p.Errors = append(p.Errors, failure)
	}
	snapshot := *p
	snapshot.Errors = append([]string(nil), p.Errors...)
	o.progressMutex.Unlock()

	for _, callback := range o.progressCallbacks {
		callback(&snapshot)
	}
}
