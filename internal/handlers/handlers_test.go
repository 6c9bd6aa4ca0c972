package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/example/aura-ai-core/internal/diagnosis"
	"github.com/example/aura-ai-core/internal/hardware"
	"github.com/example/aura-ai-core/internal/loader"
)

type stubService struct {
	outcome     *diagnosis.Outcome
	diagnoseErr error
	outcomeErr  error
	summary     *diagnosis.MetricsSummary
	summaryErr  error
}

func (s *stubService) Diagnose(ctx context.Context, req loader.ImageRequest) (*diagnosis.Outcome, error) {
	return s.outcome, s.diagnoseErr
}

func (s *stubService) GetOutcome(ctx context.Context, requestID string) (*diagnosis.Outcome, error) {
	return s.outcome, s.outcomeErr
}

func (s *stubService) GetMetricsSummary(ctx context.Context) (*diagnosis.MetricsSummary, error) {
	return s.summary, s.summaryErr
}

func newTestRouter(t *testing.T, svc DiagnosisService, authMiddleware gin.HandlerFunc) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	device := hardware.Info{Device: "cpu", Cores: 8}
	RegisterRoutes(router, svc, authMiddleware, device, t.TempDir())
	return router
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, &stubService{}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "healthy" || body["service"] != "ai-core" {
		t.Fatalf("unexpected body %v", body)
	}
	if _, ok := body["hardware"]; !ok {
		t.Fatal("health response must describe the hardware")
	}
}

func TestDiagnoseEndpoint(t *testing.T) {
	svc := &stubService{outcome: &diagnosis.Outcome{
		RequestID: "req-1",
		Status:    diagnosis.StatusSuccess,
		RiskScore: 42,
		RiskLevel: "Medium",
	}}
	router := newTestRouter(t, svc, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/diagnose",
		strings.NewReader(`{"file_name": "scan.jpg"}`)))

	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", w.Code, w.Body.String())
	}
	var outcome diagnosis.Outcome
	if err := json.Unmarshal(w.Body.Bytes(), &outcome); err != nil {
		t.Fatal(err)
	}
	if outcome.RequestID != "req-1" || outcome.RiskScore != 42 {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
}

func TestDiagnoseEndpointValidation(t *testing.T) {
	router := newTestRouter(t, &stubService{}, nil)

	for _, body := range []string{"{not json", "{}", `{"case_id": "c-1"}`} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/diagnose", strings.NewReader(body)))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, w.Code)
		}
	}
}

func TestDiagnoseEndpointFault(t *testing.T) {
	router := newTestRouter(t, &stubService{diagnoseErr: errors.New("strategy fault")}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/diagnose",
		strings.NewReader(`{"file_name": "scan.jpg"}`)))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestGetDiagnosisNotFound(t *testing.T) {
	router := newTestRouter(t, &stubService{outcomeErr: errors.New("not there")}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/diagnoses/unknown", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestGetDiagnosisFound(t *testing.T) {
	svc := &stubService{outcome: &diagnosis.Outcome{RequestID: "req-2", Status: diagnosis.StatusRejected}}
	router := newTestRouter(t, svc, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/diagnoses/req-2", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestMetricsSummaryEndpoint(t *testing.T) {
	svc := &stubService{summary: &diagnosis.MetricsSummary{TotalRequests: 4, SuccessRate: 0.75}}
	router := newTestRouter(t, svc, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics/summary", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var summary diagnosis.MetricsSummary
	if err := json.Unmarshal(w.Body.Bytes(), &summary); err != nil {
		t.Fatal(err)
	}
	if summary.TotalRequests != 4 || summary.SuccessRate != 0.75 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestAuthMiddlewareGuardsAPI(t *testing.T) {
	deny := func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "no token"})
	}
	router := newTestRouter(t, &stubService{}, deny)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/diagnose",
		strings.NewReader(`{"file_name": "scan.jpg"}`)))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	// health stays open for orchestration probes
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected open health endpoint, got %d", w.Code)
	}
}
