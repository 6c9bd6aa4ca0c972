package analyzer

import (
	"math"

	"github.com/example/aura-ai-core/internal/vision"
)

const (
	maxLesionRegions = 15
	lesionNoiseFloor = 20
	lesionEdgeThresh = 200.0
	riskPerLesion    = 6.5
)

// LesionStrategy detects candidate lesions as edge-dense regions and scores
// risk by lesion count. Cheap, deterministic, trained-model-free.
type LesionStrategy struct{}

// NewLesionStrategy constructs the heuristic variant.
func NewLesionStrategy() *LesionStrategy {
	return &LesionStrategy{}
}

// Name identifies the variant in logs and outcome metadata.
func (s *LesionStrategy) Name() string { return "lesion" }

// Analyze finds up to 15 of the largest edge regions, scores risk at 6.5
// points per region capped at 99.9, and renders a heat overlay.
func (s *LesionStrategy) Analyze(img *vision.Matrix) (*Result, error) {
	gray := vision.Grayscale(img)
	edges := vision.SobelEdges(gray, lesionEdgeThresh)

	regions := vision.Components(edges, lesionNoiseFloor)
	if len(regions) > maxLesionRegions {
		regions = regions[:maxLesionRegions]
	}

	score := math.Min(99.9, math.Round(float64(len(regions))*riskPerLesion*10)/10)

	overlay, err := heatOverlay(img)
	if err != nil {
		return nil, err
	}

	return &Result{
		Diagnosis: diagnosisForScore(score),
		RiskScore: score,
		Overlay:   overlay,
		Regions:   regions,
	}, nil
}
