package validator

import "github.com/example/aura-ai-core/internal/vision"

// Rejection reasons, stable strings consumed by downstream services.
const (
	ReasonNoOcularStructure = "no ocular structure detected"
	ReasonLowVesselDensity  = "insufficient vascular signature"
	ReasonColorProfile      = "color profile inconsistent with retinal tissue"
)

const (
	canonicalSize = 512

	// geometric gate
	circlePerfectness = 0.8

	// vessel gate
	thresholdBlock   = 25
	thresholdBias    = 7
	minVesselDensity = 0.020
	morphOpenRadius  = 1

	// spectral gate: retinal tissue is strongly red-dominant
	minRedGreenRatio = 1.35
)

// Point is a pixel coordinate in the normalized 512x512 frame.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Verdict is the outcome of the retina gate. Normalized is populated only
// when the image is accepted.
type Verdict struct {
	Accepted      bool
	Reason        string
	Normalized    *vision.Matrix
	Center        *Point
	VesselDensity float64
}

// RetinaValidator decides whether an image is plausibly a fundus photograph.
// It is a deterministic, pure function of pixel data: no I/O, no randomness.
type RetinaValidator struct{}

// New constructs a validator.
func New() *RetinaValidator {
	return &RetinaValidator{}
}

// Validate runs the gate pipeline. Each stage short-circuits to a rejection:
// normalize, geometric check, vessel-density check, color-biology check.
func (v *RetinaValidator) Validate(img *vision.Matrix) Verdict {
	normalized := vision.EqualizeLuminance(vision.Resize(img, canonicalSize, canonicalSize))
	gray := vision.Grayscale(normalized)

	// an eyeball boundary shows up as a near-perfect circle between a
	// quarter and half of the frame height
	circle, found := vision.DetectCircle(gray, canonicalSize/4, canonicalSize/2, circlePerfectness)
	if !found {
		return Verdict{Reason: ReasonNoOcularStructure}
	}
	center := &Point{X: circle.X, Y: circle.Y}

	vessels := vision.MorphOpen(vision.AdaptiveThreshold(gray, thresholdBlock, thresholdBias), morphOpenRadius)
	density := discForegroundRatio(vessels, circle)
	if density < minVesselDensity {
		return Verdict{Reason: ReasonLowVesselDensity, Center: center}
	}

	rMean, gMean, _ := normalized.ChannelMeans()
	if gMean <= 0 || rMean/gMean < minRedGreenRatio {
		return Verdict{Reason: ReasonColorProfile, Center: center, VesselDensity: density}
	}

	return Verdict{
		Accepted:      true,
		Normalized:    normalized,
		Center:        center,
		VesselDensity: density,
	}
}

// discForegroundRatio measures foreground only inside the detected disc,
// shrunk by the threshold window so the disc boundary itself never counts
// toward the vessel estimate.
func discForegroundRatio(p *vision.Plane, c vision.Circle) float64 {
	margin := thresholdBlock/2 + 2*morphOpenRadius + 2
	r := c.R - margin
	if r <= 0 {
		return 0
	}
	r2 := r * r
	total, fg := 0, 0
	for y := 0; y < p.H; y++ {
		dy := y - c.Y
		for x := 0; x < p.W; x++ {
			dx := x - c.X
			if dx*dx+dy*dy > r2 {
				continue
			}
			total++
			if p.At(x, y) != 0 {
				fg++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(fg) / float64(total)
}
