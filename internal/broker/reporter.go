package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// DiagnosisReport is the callback payload pushed to the imaging service.
type DiagnosisReport struct {
	PredictionResult string  `json:"predictionResult"`
	ConfidenceScore  float64 `json:"confidenceScore"`
	RiskLevel        string  `json:"riskLevel"`
	HeatmapURL       string  `json:"heatmapUrl"`
	DoctorNotes      string  `json:"doctorNotes"`
}

// Reporter pushes diagnosis results to the imaging service callback
// endpoint. A circuit breaker keeps a dead upstream from stalling the
// consumer loop; delivery stays at-most-once either way.
type Reporter struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewReporter constructs a reporter against the imaging service base URL.
func NewReporter(baseURL string, logger *zap.Logger) *Reporter {
	log := logger.Named("result_reporter")
	settings := gobreaker.Settings{
		Name:        "imaging-callback",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Reporter{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  log,
	}
}

// Report PUTs the diagnosis result for the given image. Callers decide what
// to do with failures; this method never retries.
func (r *Reporter) Report(ctx context.Context, imageID string, report DiagnosisReport) error {
	_, err := r.breaker.Execute(func() (interface{}, error) {
		payload, err := json.Marshal(report)
		if err != nil {
			return nil, err
		}

		url := fmt.Sprintf("%s/%s/diagnosis", r.baseURL, imageID)
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := r.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("callback returned status %d", resp.StatusCode)
		}
		return nil, nil
	})
	return err
}
