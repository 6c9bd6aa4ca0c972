package diagnosis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/aura-ai-core/internal/analyzer"
	"github.com/example/aura-ai-core/internal/loader"
	"github.com/example/aura-ai-core/internal/logging"
	"github.com/example/aura-ai-core/internal/repository"
	"github.com/example/aura-ai-core/internal/validator"
	"github.com/example/aura-ai-core/internal/vision"
)

// Outcome statuses.
const (
	StatusSuccess  = "Success"
	StatusRejected = "Rejected"
	StatusFailed   = "Failed"
)

// TopicDiagnosisCompleted is published on the in-process event bus after
// every diagnosis attempt, successful or not.
const TopicDiagnosisCompleted = "diagnosis:completed"

const artifactPrefix = "heatmap_"

// Outcome is the orchestrator's final envelope for one diagnosis.
type Outcome struct {
	RequestID  string                 `json:"request_id"`
	Status     string                 `json:"status"`
	Diagnosis  string                 `json:"diagnosis"`
	RiskScore  float64                `json:"risk_score"`
	RiskLevel  string                 `json:"risk_level"`
	HeatmapURL string                 `json:"heatmap_url"`
	Error      string                 `json:"error,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// ImageLoader resolves an image reference to decoded pixels.
type ImageLoader interface {
	Load(ctx context.Context, req loader.ImageRequest) (*vision.Matrix, error)
}

// RetinaGate accepts or rejects an image as a plausible fundus photograph.
type RetinaGate interface {
	Validate(img *vision.Matrix) validator.Verdict
}

// RecordStore persists analysis audit rows.
type RecordStore interface {
	SaveRecord(ctx context.Context, record *repository.AnalysisRecord) error
	FindByRequestID(ctx context.Context, requestID string) (*repository.AnalysisRecord, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// EventPublisher fans diagnosis events out inside the process.
type EventPublisher interface {
	Publish(topic string, args ...interface{})
}

// Orchestrator sequences loader, validator and strategy, persists the
// overlay artifact and normalizes everything into one Outcome shape.
type Orchestrator struct {
	loader        ImageLoader
	gate          RetinaGate
	strategy      analyzer.Strategy
	repo          RecordStore
	cache         Cache
	bus           EventPublisher
	logger        *zap.Logger
	resultsDir    string
	publicBaseURL string

	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewOrchestrator constructs the diagnosis use case.
func NewOrchestrator(
	imageLoader ImageLoader,
	gate RetinaGate,
	strategy analyzer.Strategy,
	repo RecordStore,
	cache Cache,
	bus EventPublisher,
	resultsDir, publicBaseURL string,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		loader:         imageLoader,
		gate:           gate,
		strategy:       strategy,
		repo:           repo,
		cache:          cache,
		bus:            bus,
		logger:         logger.Named("diagnosis_orchestrator"),
		resultsDir:     resultsDir,
		publicBaseURL:  strings.TrimRight(publicBaseURL, "/"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// Diagnose runs the full pipeline for one request. Acquisition failures and
// validation rejections are data, not errors: they come back as Failed and
// Rejected outcomes. Only unexpected faults return a non-nil error.
func (o *Orchestrator) Diagnose(ctx context.Context, req loader.ImageRequest) (*Outcome, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(o.logger, "diagnosis.diagnose", requestID)

	img, err := o.loader.Load(ctx, req)
	if err != nil {
		opLogger.Warn("image acquisition failed", zap.String("file_name", req.FileName), zap.Error(err))
		outcome := &Outcome{
			RequestID: requestID,
			Status:    StatusFailed,
			RiskLevel: analyzer.RiskNone,
			Error:     err.Error(),
		}
		o.finish(ctx, req, outcome, opLogger)
		return outcome, nil
	}

	verdict := o.gate.Validate(img)
	if !verdict.Accepted {
		opLogger.Info("image rejected by retina gate", zap.String("reason", verdict.Reason))
		outcome := &Outcome{
			RequestID: requestID,
			Status:    StatusRejected,
			Diagnosis: verdict.Reason,
			RiskScore: 0,
			RiskLevel: analyzer.RiskNone,
			Metadata:  verdictMetadata(verdict, o.strategy.Name()),
		}
		o.finish(ctx, req, outcome, opLogger)
		return outcome, nil
	}

	result, err := o.strategy.Analyze(verdict.Normalized)
	if err != nil {
		wrapped := logging.NewOperationError("diagnosis.analyze", requestID, err)
		opLogger.Error("analysis strategy failed", zap.Error(wrapped))
		o.finish(ctx, req, &Outcome{
			RequestID: requestID,
			Status:    StatusFailed,
			RiskLevel: analyzer.RiskNone,
			Error:     wrapped.Error(),
		}, opLogger)
		return nil, wrapped
	}

	level := analyzer.NormalizeLevel(result.RiskLevel, result.RiskScore)

	heatmapURL, err := o.persistOverlay(req, requestID, result.Overlay)
	if err != nil {
		wrapped := logging.NewOperationError("diagnosis.persist_overlay", requestID, err)
		opLogger.Error("failed to persist overlay artifact", zap.Error(wrapped))
		return nil, wrapped
	}

	metadata := verdictMetadata(verdict, o.strategy.Name())
	metadata["regions"] = result.Regions
	metadata["doctor_notes"] = NotesForLevel(level)

	outcome := &Outcome{
		RequestID:  requestID,
		Status:     StatusSuccess,
		Diagnosis:  result.Diagnosis,
		RiskScore:  result.RiskScore,
		RiskLevel:  level,
		HeatmapURL: heatmapURL,
		Metadata:   metadata,
	}
	o.finish(ctx, req, outcome, opLogger)
	return outcome, nil
}

// GetOutcome retrieves a past outcome, cache first, then the audit log.
func (o *Orchestrator) GetOutcome(ctx context.Context, requestID string) (*Outcome, error) {
	cacheKey := outcomeCacheKey(requestID)
	if cached, err := o.withRedisGet(ctx, requestID, "cache.get.outcome", cacheKey); err == nil {
		var outcome Outcome
		if err := json.Unmarshal([]byte(cached), &outcome); err == nil {
			return &outcome, nil
		}
		logging.WithOperation(o.logger, "diagnosis.get_outcome", requestID).Warn("failed to decode cached outcome")
	} else if !errors.Is(err, redis.Nil) {
		logging.WithOperation(o.logger, "diagnosis.get_outcome", requestID).Warn("failed to read cache", zap.Error(err))
	}

	record, err := o.repo.FindByRequestID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return &Outcome{
		RequestID:  record.RequestID,
		Status:     record.Status,
		Diagnosis:  record.Diagnosis,
		RiskScore:  record.RiskScore,
		RiskLevel:  record.RiskLevel,
		HeatmapURL: record.HeatmapURL,
	}, nil
}

// NotesForLevel maps a risk band to the reviewing doctor's suggested action.
func NotesForLevel(level string) string {
	switch level {
	case analyzer.RiskHigh:
		return "Immediate ophthalmology referral recommended."
	case analyzer.RiskMedium:
		return "Schedule a follow-up examination within three months."
	case analyzer.RiskLow:
		return "No immediate action required. Continue routine screening."
	}
	return ""
}

// finish persists the audit row, caches the outcome and publishes the
// completion event. All three are best-effort: the diagnosis itself already
// concluded, durability is the upstream service's responsibility.
func (o *Orchestrator) finish(ctx context.Context, req loader.ImageRequest, outcome *Outcome, opLogger *zap.Logger) {
	record := &repository.AnalysisRecord{
		RequestID:  outcome.RequestID,
		CaseID:     req.CaseID,
		FileName:   req.FileName,
		Status:     strings.ToLower(outcome.Status),
		Diagnosis:  outcome.Diagnosis,
		RiskScore:  outcome.RiskScore,
		RiskLevel:  outcome.RiskLevel,
		HeatmapURL: outcome.HeatmapURL,
		Strategy:   o.strategy.Name(),
		CreatedAt:  time.Now().UTC(),
	}
	if err := o.repo.SaveRecord(ctx, record); err != nil {
		opLogger.Warn("failed to persist analysis record", zap.Error(err))
	}

	if serialized, err := json.Marshal(outcome); err == nil {
		if err := o.withRedisRetry(ctx, outcome.RequestID, "cache.set.outcome", func() error {
			return o.cache.Set(ctx, outcomeCacheKey(outcome.RequestID), string(serialized), 5*time.Minute)
		}); err != nil {
			opLogger.Warn("failed to cache outcome", zap.Error(err))
		}
	}

	if o.bus != nil {
		o.bus.Publish(TopicDiagnosisCompleted, outcome)
	}
}

func (o *Orchestrator) persistOverlay(req loader.ImageRequest, requestID string, overlay *vision.Matrix) (string, error) {
	if err := os.MkdirAll(o.resultsDir, 0o755); err != nil {
		return "", err
	}

	name := artifactName(req.FileName, requestID)
	f, err := os.Create(filepath.Join(o.resultsDir, name))
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := overlay.EncodePNG(f); err != nil {
		return "", err
	}
	return o.publicBaseURL + "/results/" + name, nil
}

// artifactName derives a deterministic artifact name from the input file
// name so that repeated diagnoses of the same file overwrite one artifact.
func artifactName(fileName, requestID string) string {
	base := filepath.Base(fileName)
	if base == "." || base == "/" || base == "" {
		base = requestID
	}
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return artifactPrefix + base + ".png"
}

func verdictMetadata(verdict validator.Verdict, strategyName string) map[string]interface{} {
	metadata := map[string]interface{}{"strategy": strategyName}
	if verdict.Center != nil {
		metadata["center"] = *verdict.Center
	}
	if verdict.VesselDensity > 0 {
		metadata["vessel_density"] = verdict.VesselDensity
	}
	return metadata
}

func outcomeCacheKey(requestID string) string {
	return fmt.Sprintf("diagnosis:%s", requestID)
}

func (o *Orchestrator) withRedisRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	if o.retryAttempts <= 1 {
		return logging.NewOperationError(operation, requestID, fn())
	}

	backoff := o.initialBackoff
	opLogger := logging.WithOperation(o.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < o.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= o.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransientError(err) || attempt == o.retryAttempts-1 {
			opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func (o *Orchestrator) withRedisGet(ctx context.Context, requestID, operation, cacheKey string) (string, error) {
	var result string
	err := o.withRedisRetry(ctx, requestID, operation, func() error {
		value, err := o.cache.Get(ctx, cacheKey)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
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
