package validator

import (
	"bytes"
	"testing"

	"github.com/example/aura-ai-core/internal/vision"
)

// syntheticFundus draws a 512x512 disc of the given body color with dark
// stripes standing in for the vascular tree. Stripes are wide enough to
// survive morphological opening.
func syntheticFundus(body, stripe [3]uint8, withVessels bool) *vision.Matrix {
	const size, cx, cy, r = 512, 256, 256, 160
	m := vision.NewMatrix(size, size)
	r2 := r * r
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy > r2 {
				continue
			}
			c := body
			if withVessels && x%16 < 5 {
				c = stripe
			}
			m.SetRGB(x, y, c[0], c[1], c[2])
		}
	}
	return m
}

func TestValidateAcceptsSyntheticRetina(t *testing.T) {
	img := syntheticFundus([3]uint8{180, 90, 60}, [3]uint8{60, 30, 20}, true)

	verdict := New().Validate(img)
	if !verdict.Accepted {
		t.Fatalf("expected acceptance, got rejection: %s", verdict.Reason)
	}
	if verdict.Normalized == nil {
		t.Fatal("accepted verdict must carry the normalized image")
	}
	if verdict.Normalized.W != 512 || verdict.Normalized.H != 512 {
		t.Fatalf("unexpected normalized size %dx%d", verdict.Normalized.W, verdict.Normalized.H)
	}
	if verdict.Center == nil {
		t.Fatal("accepted verdict must carry the disc center")
	}
	if abs(verdict.Center.X-256) > 8 || abs(verdict.Center.Y-256) > 8 {
		t.Fatalf("unexpected disc center (%d,%d)", verdict.Center.X, verdict.Center.Y)
	}
	if verdict.VesselDensity < 0.02 {
		t.Fatalf("vessel density %f below gate", verdict.VesselDensity)
	}
}

func TestValidateRejectsWithoutOcularStructure(t *testing.T) {
	checker := vision.NewMatrix(512, 512)
	for y := 0; y < 512; y++ {
		for x := 0; x < 512; x++ {
			if (x/8+y/8)%2 == 0 {
				checker.SetRGB(x, y, 200, 120, 90)
			} else {
				checker.SetRGB(x, y, 70, 40, 30)
			}
		}
	}

	verdict := New().Validate(checker)
	if verdict.Accepted {
		t.Fatal("checkerboard should not pass the geometric gate")
	}
	if verdict.Reason != ReasonNoOcularStructure {
		t.Fatalf("unexpected reason %q", verdict.Reason)
	}
	if verdict.Center != nil {
		t.Fatal("geometric rejection must not report a center")
	}
	if verdict.Normalized != nil {
		t.Fatal("rejected verdict must not carry an image")
	}
}

func TestValidateRejectsAvascularDisc(t *testing.T) {
	img := syntheticFundus([3]uint8{180, 90, 60}, [3]uint8{0, 0, 0}, false)

	verdict := New().Validate(img)
	if verdict.Accepted {
		t.Fatal("featureless disc should not pass the vessel gate")
	}
	if verdict.Reason != ReasonLowVesselDensity {
		t.Fatalf("unexpected reason %q", verdict.Reason)
	}
	if verdict.Center == nil {
		t.Fatal("vessel rejection happens after the disc was found")
	}
}

func TestValidateRejectsGreenDominantDisc(t *testing.T) {
	// same geometry and vasculature, red and green channels swapped
	img := syntheticFundus([3]uint8{90, 180, 60}, [3]uint8{30, 60, 20}, true)

	verdict := New().Validate(img)
	if verdict.Accepted {
		t.Fatal("green-dominant disc should not pass the color gate")
	}
	if verdict.Reason != ReasonColorProfile {
		t.Fatalf("unexpected reason %q", verdict.Reason)
	}
}

func TestValidateIsDeterministic(t *testing.T) {
	img := syntheticFundus([3]uint8{180, 90, 60}, [3]uint8{60, 30, 20}, true)

	v := New()
	first := v.Validate(img)
	second := v.Validate(img)
	if first.Accepted != second.Accepted || first.VesselDensity != second.VesselDensity {
		t.Fatal("verdicts differ between identical runs")
	}
	if !bytes.Equal(first.Normalized.Pix, second.Normalized.Pix) {
		t.Fatal("normalized images differ between identical runs")
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
