package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/aura-ai-core/internal/logging"
)

// AnalysisRecord is the audit row persisted for every diagnosis attempt.
type AnalysisRecord struct {
	ID         uint      `gorm:"primaryKey"`
	RequestID  string    `gorm:"column:request_id;uniqueIndex;size:64"`
	CaseID     string    `gorm:"column:case_id;size:64"`
	FileName   string    `gorm:"column:file_name;size:255"`
	Status     string    `gorm:"column:status;size:16"`
	Diagnosis  string    `gorm:"column:diagnosis;type:text"`
	RiskScore  float64   `gorm:"column:risk_score"`
	RiskLevel  string    `gorm:"column:risk_level;size:16"`
	HeatmapURL string    `gorm:"column:heatmap_url;type:text"`
	Strategy   string    `gorm:"column:strategy;size:32"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (AnalysisRecord) TableName() string {
	return "analysis_records"
}

// MetricsAggregation holds raw aggregates computed by the database.
type MetricsAggregation struct {
	TotalCount    int64
	SuccessCount  int64
	RejectedCount int64
	AverageScore  float64
}

// AnalysisRepository provides persistence APIs for analysis records.
type AnalysisRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewAnalysisRepository creates a new repository instance.
func NewAnalysisRepository(db *gorm.DB, logger *zap.Logger) *AnalysisRepository {
	return &AnalysisRepository{
		db:             db,
		logger:         logger.Named("analysis_repository"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// AutoMigrate ensures the schema is available.
func (r *AnalysisRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&AnalysisRecord{})
}

// SaveRecord persists an analysis record, retrying transient failures.
func (r *AnalysisRepository) SaveRecord(ctx context.Context, record *AnalysisRecord) error {
	return r.executeWithRetry(ctx, "repository.save_record", record.RequestID, func() error {
		return r.db.WithContext(ctx).Create(record).Error
	})
}

// FindByRequestID retrieves the record for a past diagnosis request.
func (r *AnalysisRepository) FindByRequestID(ctx context.Context, requestID string) (*AnalysisRecord, error) {
	var record AnalysisRecord
	if err := r.db.WithContext(ctx).First(&record, "request_id = ?", requestID).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// AggregateMetrics computes totals across all persisted analyses.
func (r *AnalysisRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var agg MetricsAggregation
	row := r.db.WithContext(ctx).
		Model(&AnalysisRecord{}).
		Select(
			"COUNT(*) AS total_count",
			"COUNT(*) FILTER (WHERE status = 'success') AS success_count",
			"COUNT(*) FILTER (WHERE status = 'rejected') AS rejected_count",
			"COALESCE(AVG(risk_score) FILTER (WHERE status = 'success'), 0) AS average_score",
		).
		Row()
	if err := row.Scan(&agg.TotalCount, &agg.SuccessCount, &agg.RejectedCount, &agg.AverageScore); err != nil {
		return nil, err
	}
	return &agg, nil
}

func (r *AnalysisRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	if r.retryAttempts <= 1 {
		return logging.NewOperationError(operation, requestID, fn())
	}

	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < r.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("database operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransientError(err) || attempt == r.retryAttempts-1 {
			opLogger.Error("database operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient database error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
