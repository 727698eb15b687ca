// Package reconciler compares a month of settled revenue against the POS
// transaction log.
//
// Reconcile is the pure engine: it takes the two per-branch, per-date
// ledgers and produces branch, category and grand totals, the branches whose
// difference exceeds the materiality threshold, and their daily breakdown.
//
// ReconciliationService runs a whole month: it reads the settlement sheet,
// pages through the POS reports and hands both ledgers to Reconcile,
// reporting progress along the way.
//
// Example usage:
//
//	service, err := reconciler.NewReconciliationService(settlementParser, aggregator, config)
//	service.AddProgressCallback(func(progress *reconciler.ReconciliationProgress) {
//		fmt.Printf("%.0f%% - %s\n", progress.PercentComplete, progress.CurrentStep)
//	})
//
//	result, err := service.ProcessReconciliation(ctx, &reconciler.ReconciliationRequest{
//		SettlementFile: "december.csv",
//		Period:         models.YearMonth{Year: 2025, Month: 12},
//	})
package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"settlement-reconciliation-service/internal/matcher"
	"settlement-reconciliation-service/internal/models"
	"settlement-reconciliation-service/internal/parsers"
	"settlement-reconciliation-service/internal/pos"
	"settlement-reconciliation-service/pkg/errors"
	"settlement-reconciliation-service/pkg/logger"

	"github.com/google/uuid"
)

// SettlementSource produces the settlement ledger for a month
type SettlementSource interface {
	ParseFile(ctx context.Context, path string, period models.YearMonth) (models.DailyLedger, *parsers.ParseStats, error)
}

// TransactionSource produces the POS ledger for a month
type TransactionSource interface {
	Aggregate(ctx context.Context, period models.YearMonth) (models.DailyLedger, *pos.AggregateStats, error)
}

// pageNotifier is implemented by transaction sources that report each
// fetched page, such as *pos.Aggregator.
type pageNotifier interface {
	SetPageCallback(callback pos.PageCallback)
}

const totalSteps = 3

// ReconciliationProgress tracks the progress of a reconciliation run
type ReconciliationProgress struct {
	TotalSteps      int           `json:"total_steps"`
	CompletedSteps  int           `json:"completed_steps"`
	CurrentStep     string        `json:"current_step"`
	PercentComplete float64       `json:"percent_complete"`
	StartTime       time.Time     `json:"start_time"`
	ElapsedTime     time.Duration `json:"elapsed_time"`

	PagesFetched   int `json:"pages_fetched"`
	RecordsFetched int `json:"records_fetched"`

	Warnings []string `json:"warnings,omitempty"`
}

// ProgressCallback is called to report reconciliation progress
type ProgressCallback func(*ReconciliationProgress)

// ReconciliationService orchestrates the complete reconciliation process
type ReconciliationService struct {
	settlement   SettlementSource
	transactions TransactionSource
	resolver     *matcher.BranchResolver
	config       *Config
	logger       logger.Logger

	progressCallbacks []ProgressCallback
	currentProgress   *ReconciliationProgress
	progressMutex     sync.Mutex
}

// NewReconciliationService creates a new reconciliation service
func NewReconciliationService(
	settlement SettlementSource,
	transactions TransactionSource,
	config *Config,
) (*ReconciliationService, error) {

	if settlement == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "settlement_source", nil, nil).
			WithSuggestion("Provide a settlement parser")
	}
	if transactions == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "transaction_source", nil, nil).
			WithSuggestion("Provide a POS transaction aggregator")
	}

	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "reconciliation", config, err)
	}

	rs := &ReconciliationService{
		settlement:      settlement,
		transactions:    transactions,
		config:          config,
		logger:          logger.GetGlobalLogger().WithComponent("reconciliation_service"),
		currentProgress: &ReconciliationProgress{TotalSteps: totalSteps},
	}

	if notifier, ok := transactions.(pageNotifier); ok {
		notifier.SetPageCallback(rs.pageFetched)
	}

	return rs, nil
}

// SetResolver attaches the branch resolver used by the settlement source so
// unresolved and ambiguous labels end up in the run metadata.
func (rs *ReconciliationService) SetResolver(resolver *matcher.BranchResolver) {
	rs.resolver = resolver
}

// AddProgressCallback adds a progress callback function
func (rs *ReconciliationService) AddProgressCallback(callback ProgressCallback) {
	rs.progressCallbacks = append(rs.progressCallbacks, callback)
}

// GetConfiguration returns the current configuration
func (rs *ReconciliationService) GetConfiguration() *Config {
	return rs.config
}

// ProcessReconciliation reads the settlement file, fetches the POS
// transactions for the same month and reconciles them.
//
// Only an unreadable settlement file or an invalid request aborts the run.
// POS failures leave the affected category partial and are reported as
// warnings on the result.
func (rs *ReconciliationService) ProcessReconciliation(
	ctx context.Context,
	request *ReconciliationRequest,
) (*ReconciliationResult, error) {

	if request == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "reconciliation_request", nil, nil)
	}
	if err := request.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "reconciliation_request", request, err).
			WithSuggestion("Check --settlement-file, --year and --month")
	}

	log := rs.logger.WithFields(logger.Fields{
		"settlement_file": request.SettlementFile,
		"period":          request.Period.Prefix(),
	})

	op := logger.NewOperationLogger("reconciliation", log).
		WithField("run_started", time.Now().Format(time.RFC3339))

	result, err := rs.process(ctx, request, log, op)
	if err != nil {
		op.Error(err, "Reconciliation failed")
		return nil, err
	}

	op.WithField("run_id", result.RunID).Success("Reconciliation completed")
	return result, nil
}

func (rs *ReconciliationService) process(
	ctx context.Context,
	request *ReconciliationRequest,
	log logger.Logger,
	op *logger.OperationLogger,
) (*ReconciliationResult, error) {

	rs.initializeProgress()
	startTime := time.Now()

	// Step 1: settlement sheet
	rs.updateProgress(op, "Parsing settlement file", 0)
	settlement, settlementStats, err := rs.settlement.ParseFile(ctx, request.SettlementFile, request.Period)
	if err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryFile, errors.CodeFileCorrupted,
			"failed to read settlement file")
	}
	log.WithField("branches", len(settlement)).Info("Settlement ledger loaded")

	// Step 2: POS transactions
	rs.updateProgress(op, "Fetching POS transactions", 1)
	transactions, transactionStats, err := rs.transactions.Aggregate(ctx, request.Period)
	if err != nil {
		return nil, sourceError("POS aggregation", err)
	}
	if ctx.Err() != nil {
		return nil, errors.InternalError(errors.CodeCancelled, "reconciliation", ctx.Err())
	}
	log.WithField("branches", len(transactions)).Info("POS ledger loaded")

	// Step 3: compare
	rs.updateProgress(op, "Reconciling", 2)
	result := Reconcile(settlement, transactions, rs.config)
	result.RunID = uuid.NewString()
	result.Period = request.Period

	metadata := &RunMetadata{
		SettlementFile: request.SettlementFile,
		ProcessedAt:    startTime,
		Settlement:     settlementStats,
		Transactions:   transactionStats,
	}
	metadata.Warnings = rs.collectWarnings(transactionStats, log)
	rs.recordResolution(metadata, log)
	metadata.Duration = time.Since(startTime)
	result.Metadata = metadata

	for _, warning := range metadata.Warnings {
		rs.addWarning(warning)
	}
	rs.updateProgress(op, "Completed", totalSteps)

	log.WithFields(logger.Fields{
		"run_id":     result.RunID,
		"branches":   len(result.Branches),
		"divergent":  len(result.Divergent),
		"difference": result.GrandTotal.Difference.String(),
		"partial":    metadata.Partial(),
	}).Info("Reconciliation finished")

	return result, nil
}

func (rs *ReconciliationService) collectWarnings(stats *pos.AggregateStats, log logger.Logger) []string {
	if stats == nil {
		return nil
	}

	var warnings []string
	var failures []*errors.ReconcilerError
	for _, category := range stats.Categories {
		if category.Failed() {
			err := sourceError(fmt.Sprintf("%s transaction fetch", category.Category), category.Err)
			failures = append(failures, err)
			log.WithError(err).WithFields(logger.Fields{
				"category": string(category.Category),
				"pages":    category.Pages,
			}).Debug("POS category fetch stopped early")
			warnings = append(warnings, fmt.Sprintf("%s transactions incomplete after %d page(s): %s",
				category.Category, category.Pages, category.Error))
		}
		if category.Truncated {
			warnings = append(warnings, fmt.Sprintf("%s transactions truncated at %d pages",
				category.Category, category.Pages))
		}
	}

	if len(failures) > 0 {
		summary := errors.NewErrorSummary(failures)
		log.WithError(summary).WithFields(logger.Fields{
			"failed_categories": summary.Total,
			"network":           summary.HasCategory(errors.CategoryNetwork),
		}).Warn("POS data is partial; continuing with what was fetched")
	}
	return warnings
}

// sourceError keeps categorized errors from the POS layer and marks anything
// else as an unavailable source.
func sourceError(operation string, err error) *errors.ReconcilerError {
	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return reconcilerErr
	}
	return errors.ReconciliationError(errors.CodeSourceUnavailable, operation, err)
}

func (rs *ReconciliationService) recordResolution(metadata *RunMetadata, log logger.Logger) {
	if rs.resolver == nil {
		return
	}

	metadata.ResolutionStrategy = rs.resolver.Strategy().String()
	metadata.UnresolvedLabels = rs.resolver.MissedLabels()
	metadata.AmbiguousLabels = rs.resolver.Ambiguous()

	for label, count := range rs.resolver.Misses() {
		log.WithFields(logger.Fields{
			"label": label,
			"rows":  count,
		}).Debug("Settlement label has no synonym entry; kept as its own branch")
	}
	if len(metadata.AmbiguousLabels) > 0 {
		log.WithField("labels", metadata.AmbiguousLabels).
			Warn("Normalized synonym keys collide; those labels only resolve exactly")
	}
}

func (rs *ReconciliationService) pageFetched(category pos.TransactionCategory, page, records int) {
	rs.progressMutex.Lock()
	rs.currentProgress.PagesFetched++
	rs.currentProgress.RecordsFetched += records
	rs.currentProgress.CurrentStep = fmt.Sprintf("Fetching %s transactions (page %d)", category, page)
	rs.currentProgress.ElapsedTime = time.Since(rs.currentProgress.StartTime)
	snapshot := *rs.currentProgress
	rs.progressMutex.Unlock()

	rs.notify(&snapshot)
}

func (rs *ReconciliationService) initializeProgress() {
	rs.progressMutex.Lock()
	defer rs.progressMutex.Unlock()

	rs.currentProgress = &ReconciliationProgress{
		TotalSteps: totalSteps,
		StartTime:  time.Now(),
	}
}

func (rs *ReconciliationService) updateProgress(op *logger.OperationLogger, step string, completed int) {
	op.Step(step)

	rs.progressMutex.Lock()
	rs.currentProgress.CurrentStep = step
	rs.currentProgress.CompletedSteps = completed
	rs.currentProgress.ElapsedTime = time.Since(rs.currentProgress.StartTime)
	rs.currentProgress.PercentComplete = float64(completed) / float64(rs.currentProgress.TotalSteps) * 100
	snapshot := *rs.currentProgress
	rs.progressMutex.Unlock()

	rs.notify(&snapshot)
}

func (rs *ReconciliationService) addWarning(message string) {
	rs.progressMutex.Lock()
	defer rs.progressMutex.Unlock()
	rs.currentProgress.Warnings = append(rs.currentProgress.Warnings, message)
}

func (rs *ReconciliationService) notify(progress *ReconciliationProgress) {
	for _, callback := range rs.progressCallbacks {
		callback(progress)
	}
}
