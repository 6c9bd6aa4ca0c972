package analyzer

import "github.com/example/aura-ai-core/internal/vision"

// Risk band vocabulary.
const (
	RiskLow    = "Low"
	RiskMedium = "Medium"
	RiskHigh   = "High"
	RiskNone   = "None"
)

// Result is the outcome of one analysis pass. Overlay always matches the
// dimensions of the analyzed image.
type Result struct {
	Diagnosis string
	RiskScore float64
	RiskLevel string
	Overlay   *vision.Matrix
	Regions   []vision.Region
}

// Strategy turns a validated, normalized image into an analysis result.
// Implementations must be deterministic (same image, same result), must not
// mutate their input, and must not perform I/O.
type Strategy interface {
	Name() string
	Analyze(img *vision.Matrix) (*Result, error)
}

// LevelFromScore maps a risk score to its band.
func LevelFromScore(score float64) string {
	switch {
	case score >= 80:
		return RiskHigh
	case score >= 40:
		return RiskMedium
	default:
		return RiskLow
	}
}

// NormalizeLevel passes recognized levels through unchanged and derives the
// band from the score otherwise.
func NormalizeLevel(level string, score float64) string {
	switch level {
	case RiskLow, RiskMedium, RiskHigh, RiskNone:
		return level
	}
	return LevelFromScore(score)
}

func diagnosisForScore(score float64) string {
	switch {
	case score > 75:
		return "Proliferative diabetic retinopathy suspected"
	case score > 30:
		return "Early signs of non-proliferative retinopathy"
	default:
		return "No retinal abnormality detected"
	}
}

// heatOverlay blends the original with a JET-colorized equalized grayscale,
// 70% original to 30% heat.
func heatOverlay(img *vision.Matrix) (*vision.Matrix, error) {
	heat := vision.ColorMapJet(vision.EqualizeHist(vision.Grayscale(img)))
	return vision.Blend(img, 0.7, heat, 0.3)
}
