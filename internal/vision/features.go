package vision

import (
	"math"
	"sort"
)

// Circle is a detected circular structure.
type Circle struct {
	X, Y, R int
	Score   float64
}

// Region is an axis-aligned bounding box of a connected component.
type Region struct {
	X    int `json:"x"`
	Y    int `json:"y"`
	W    int `json:"w"`
	H    int `json:"h"`
	Area int `json:"-"`
}

const (
	circleEdgeThreshold = 100.0
	circleBinSize       = 4
	circleRadiusStep    = 4
	circleRadialSlack   = 6
	circleAngleSamples  = 360
	// gradient must align with the radial direction within ~20 degrees
	circleMinAlignment = 0.94
)

// DetectCircle searches for a circular structure with radius in [minR, maxR].
// A gradient-direction Hough transform proposes one candidate center per
// radius; each candidate is then verified by sampling its circumference and
// measuring the fraction of samples backed by a radially aligned edge. That
// fraction is the perfectness score a candidate must reach.
func DetectCircle(p *Plane, minR, maxR int, perfectness float64) (Circle, bool) {
	if minR < 1 || maxR < minR {
		return Circle{}, false
	}
	gx, gy := sobelGradients(p)

	radii := make([]int, 0, (maxR-minR)/circleRadiusStep+1)
	for r := minR; r <= maxR; r += circleRadiusStep {
		radii = append(radii, r)
	}

	bw := p.W/circleBinSize + 1
	bh := p.H/circleBinSize + 1
	acc := make([]int32, len(radii)*bw*bh)

	for y := 1; y < p.H-1; y++ {
		for x := 1; x < p.W-1; x++ {
			i := y*p.W + x
			mag := math.Hypot(gx[i], gy[i])
			if mag < circleEdgeThreshold {
				continue
			}
			ux, uy := gx[i]/mag, gy[i]/mag
			for ri, r := range radii {
				fr := float64(r)
				// gradients point either toward or away from the center
				for _, sign := range [2]float64{1, -1} {
					cx := int(math.Round(float64(x) + sign*ux*fr))
					cy := int(math.Round(float64(y) + sign*uy*fr))
					if cx < 0 || cx >= p.W || cy < 0 || cy >= p.H {
						continue
					}
					acc[(ri*bh+cy/circleBinSize)*bw+cx/circleBinSize]++
				}
			}
		}
	}

	best := Circle{}
	for ri, r := range radii {
		base := ri * bh * bw
		peakVotes := int32(0)
		peakX, peakY := 0, 0
		for by := 0; by < bh; by++ {
			for bx := 0; bx < bw; bx++ {
				votes := int32(0)
				for dy := -1; dy <= 1; dy++ {
					ny := by + dy
					if ny < 0 || ny >= bh {
						continue
					}
					for dx := -1; dx <= 1; dx++ {
						nx := bx + dx
						if nx >= 0 && nx < bw {
							votes += acc[base+ny*bw+nx]
						}
					}
				}
				if votes > peakVotes {
					peakVotes = votes
					peakX = bx*circleBinSize + circleBinSize/2
					peakY = by*circleBinSize + circleBinSize/2
				}
			}
		}
		if peakVotes == 0 {
			continue
		}

		support := circleSupport(p, gx, gy, peakX, peakY, r)
		if support > best.Score {
			best = Circle{X: peakX, Y: peakY, R: r, Score: support}
		}
	}

	if best.Score < perfectness {
		return Circle{}, false
	}
	return best, true
}

// circleSupport samples the candidate circumference and returns the fraction
// of angles backed by a strong, radially aligned edge within a small radial
// slack. Straight texture edges fail the alignment requirement on most of
// the circumference, which keeps edge-dense non-circular images out.
func circleSupport(p *Plane, gx, gy []float64, cx, cy, r int) float64 {
	supported := 0
	for s := 0; s < circleAngleSamples; s++ {
		theta := 2 * math.Pi * float64(s) / circleAngleSamples
		dirX, dirY := math.Cos(theta), math.Sin(theta)

		for d := -circleRadialSlack; d <= circleRadialSlack; d++ {
			fr := float64(r + d)
			x := int(math.Round(float64(cx) + dirX*fr))
			y := int(math.Round(float64(cy) + dirY*fr))
			if x < 1 || x >= p.W-1 || y < 1 || y >= p.H-1 {
				continue
			}
			i := y*p.W + x
			mag := math.Hypot(gx[i], gy[i])
			if mag < circleEdgeThreshold {
				continue
			}
			alignment := math.Abs((gx[i]*dirX + gy[i]*dirY) / mag)
			if alignment >= circleMinAlignment {
				supported++
				break
			}
		}
	}
	return float64(supported) / circleAngleSamples
}

// Components labels connected foreground components (8-connectivity) and
// returns their bounding regions, largest first. Regions whose box area does
// not exceed minBoxArea are discarded as noise.
func Components(p *Plane, minBoxArea int) []Region {
	visited := make([]bool, p.W*p.H)
	stack := make([]int, 0, 256)
	var regions []Region

	for start := range p.Pix {
		if p.Pix[start] == 0 || visited[start] {
			continue
		}
		minX, minY := p.W, p.H
		maxX, maxY := 0, 0
		area := 0

		visited[start] = true
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := i%p.W, i/p.W
			area++
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}

			for dy := -1; dy <= 1; dy++ {
				ny := y + dy
				if ny < 0 || ny >= p.H {
					continue
				}
				for dx := -1; dx <= 1; dx++ {
					nx := x + dx
					if nx < 0 || nx >= p.W {
						continue
					}
					ni := ny*p.W + nx
					if p.Pix[ni] != 0 && !visited[ni] {
						visited[ni] = true
						stack = append(stack, ni)
					}
				}
			}
		}

		w := maxX - minX + 1
		h := maxY - minY + 1
		if w*h > minBoxArea {
			regions = append(regions, Region{X: minX, Y: minY, W: w, H: h, Area: area})
		}
	}

	sort.Slice(regions, func(i, j int) bool {
		return regions[i].W*regions[i].H > regions[j].W*regions[j].H
	})
	return regions
}

// ColorMapJet maps a grayscale plane through the JET colormap.
func ColorMapJet(p *Plane) *Matrix {
	out := NewMatrix(p.W, p.H)
	for i, v := range p.Pix {
		x := float64(v) / 255.0
		r := jetChannel(1.5 - math.Abs(4*x-3))
		g := jetChannel(1.5 - math.Abs(4*x-2))
		b := jetChannel(1.5 - math.Abs(4*x-1))
		dst := i * 3
		out.Pix[dst], out.Pix[dst+1], out.Pix[dst+2] = r, g, b
	}
	return out
}

func jetChannel(v float64) uint8 {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return uint8(v*255 + 0.5)
}
