package vision

import "math"

// Grayscale converts an RGB matrix into a luminance plane (Rec. 601 weights).
func Grayscale(m *Matrix) *Plane {
	out := NewPlane(m.W, m.H)
	src := 0
	for i := range out.Pix {
		r := int(m.Pix[src])
		g := int(m.Pix[src+1])
		b := int(m.Pix[src+2])
		out.Pix[i] = uint8((299*r + 587*g + 114*b + 500) / 1000)
		src += 3
	}
	return out
}

// EqualizeHist performs global histogram equalization.
func EqualizeHist(p *Plane) *Plane {
	var hist [256]int
	for _, v := range p.Pix {
		hist[v]++
	}
	total := len(p.Pix)
	out := NewPlane(p.W, p.H)
	if total == 0 {
		return out
	}
	var lut [256]uint8
	cdf := 0
	for i := 0; i < 256; i++ {
		cdf += hist[i]
		lut[i] = uint8(cdf * 255 / total)
	}
	for i, v := range p.Pix {
		out.Pix[i] = lut[v]
	}
	return out
}

// CLAHE applies contrast-limited adaptive histogram equalization over a
// tiles x tiles grid. clipLimit is relative to the uniform bin count, so a
// value of 2.0 caps each histogram bin at twice its uniform share.
func CLAHE(p *Plane, tiles int, clipLimit float64) *Plane {
	if tiles < 1 {
		tiles = 1
	}
	tileW := (p.W + tiles - 1) / tiles
	tileH := (p.H + tiles - 1) / tiles
	if tileW == 0 || tileH == 0 {
		return EqualizeHist(p)
	}

	luts := make([][256]uint8, tiles*tiles)
	for ty := 0; ty < tiles; ty++ {
		for tx := 0; tx < tiles; tx++ {
			x0, y0 := tx*tileW, ty*tileH
			x1, y1 := minInt(x0+tileW, p.W), minInt(y0+tileH, p.H)

			var hist [256]int
			count := 0
			for y := y0; y < y1; y++ {
				row := y * p.W
				for x := x0; x < x1; x++ {
					hist[p.Pix[row+x]]++
					count++
				}
			}

			lut := &luts[ty*tiles+tx]
			if count == 0 {
				for i := range lut {
					lut[i] = uint8(i)
				}
				continue
			}

			clip := int(clipLimit * float64(count) / 256.0)
			if clip < 1 {
				clip = 1
			}
			excess := 0
			for i := range hist {
				if hist[i] > clip {
					excess += hist[i] - clip
					hist[i] = clip
				}
			}
			share := excess / 256
			for i := range hist {
				hist[i] += share
			}

			cdf := 0
			for i := 0; i < 256; i++ {
				cdf += hist[i]
				lut[i] = uint8(minInt(255, cdf*255/count))
			}
		}
	}

	out := NewPlane(p.W, p.H)
	for y := 0; y < p.H; y++ {
		gy := (float64(y)+0.5)/float64(tileH) - 0.5
		ty0 := int(math.Floor(gy))
		wy := gy - float64(ty0)
		ty1 := clampInt(ty0+1, 0, tiles-1)
		ty0 = clampInt(ty0, 0, tiles-1)

		for x := 0; x < p.W; x++ {
			gx := (float64(x)+0.5)/float64(tileW) - 0.5
			tx0 := int(math.Floor(gx))
			wx := gx - float64(tx0)
			tx1 := clampInt(tx0+1, 0, tiles-1)
			tx0 = clampInt(tx0, 0, tiles-1)

			v := p.Pix[y*p.W+x]
			v00 := float64(luts[ty0*tiles+tx0][v])
			v01 := float64(luts[ty0*tiles+tx1][v])
			v10 := float64(luts[ty1*tiles+tx0][v])
			v11 := float64(luts[ty1*tiles+tx1][v])

			top := v00*(1-wx) + v01*wx
			bottom := v10*(1-wx) + v11*wx
			out.Pix[y*p.W+x] = clampU8(top*(1-wy) + bottom*wy)
		}
	}
	return out
}

// EqualizeLuminance applies CLAHE to the luminance channel only and rescales
// the color channels proportionally, stabilizing vessel visibility without
// shifting the spectral balance.
func EqualizeLuminance(m *Matrix) *Matrix {
	luma := Grayscale(m)
	eq := CLAHE(luma, 8, 2.0)

	out := NewMatrix(m.W, m.H)
	for i := range luma.Pix {
		old := float64(luma.Pix[i])
		if old == 0 {
			continue
		}
		scale := float64(eq.Pix[i]) / old
		src := i * 3
		out.Pix[src] = clampU8(float64(m.Pix[src]) * scale)
		out.Pix[src+1] = clampU8(float64(m.Pix[src+1]) * scale)
		out.Pix[src+2] = clampU8(float64(m.Pix[src+2]) * scale)
	}
	return out
}

// AdaptiveThreshold binarizes the plane: pixels darker than their local
// block mean by more than bias become foreground (255). Vessels are darker
// than the surrounding tissue, so this yields a vessel mask.
func AdaptiveThreshold(p *Plane, block, bias int) *Plane {
	if block%2 == 0 {
		block++
	}
	r := block / 2

	// summed-area table for O(1) window means
	stride := p.W + 1
	integral := make([]int64, stride*(p.H+1))
	for y := 0; y < p.H; y++ {
		var rowSum int64
		for x := 0; x < p.W; x++ {
			rowSum += int64(p.Pix[y*p.W+x])
			integral[(y+1)*stride+x+1] = integral[y*stride+x+1] + rowSum
		}
	}

	out := NewPlane(p.W, p.H)
	for y := 0; y < p.H; y++ {
		y0, y1 := maxInt(0, y-r), minInt(p.H-1, y+r)
		for x := 0; x < p.W; x++ {
			x0, x1 := maxInt(0, x-r), minInt(p.W-1, x+r)
			area := int64((y1 - y0 + 1) * (x1 - x0 + 1))
			sum := integral[(y1+1)*stride+x1+1] - integral[y0*stride+x1+1] -
				integral[(y1+1)*stride+x0] + integral[y0*stride+x0]
			mean := sum / area
			if int64(p.Pix[y*p.W+x]) < mean-int64(bias) {
				out.Pix[y*p.W+x] = 255
			}
		}
	}
	return out
}

// MorphOpen erodes then dilates a binary plane with a square kernel of the
// given radius, removing foreground specks smaller than the kernel.
func MorphOpen(p *Plane, radius int) *Plane {
	return dilate(erode(p, radius), radius)
}

func erode(p *Plane, radius int) *Plane {
	out := NewPlane(p.W, p.H)
	for y := 0; y < p.H; y++ {
		for x := 0; x < p.W; x++ {
			keep := true
			for dy := -radius; dy <= radius && keep; dy++ {
				ny := y + dy
				if ny < 0 || ny >= p.H {
					keep = false
					break
				}
				for dx := -radius; dx <= radius; dx++ {
					nx := x + dx
					if nx < 0 || nx >= p.W || p.Pix[ny*p.W+nx] == 0 {
						keep = false
						break
					}
				}
			}
			if keep {
				out.Pix[y*p.W+x] = 255
			}
		}
	}
	return out
}

func dilate(p *Plane, radius int) *Plane {
	out := NewPlane(p.W, p.H)
	for y := 0; y < p.H; y++ {
		for x := 0; x < p.W; x++ {
			hit := false
			for dy := -radius; dy <= radius && !hit; dy++ {
				ny := y + dy
				if ny < 0 || ny >= p.H {
					continue
				}
				for dx := -radius; dx <= radius; dx++ {
					nx := x + dx
					if nx >= 0 && nx < p.W && p.Pix[ny*p.W+nx] != 0 {
						hit = true
						break
					}
				}
			}
			if hit {
				out.Pix[y*p.W+x] = 255
			}
		}
	}
	return out
}

// ForegroundRatio returns the fraction of non-zero pixels.
func ForegroundRatio(p *Plane) float64 {
	if len(p.Pix) == 0 {
		return 0
	}
	count := 0
	for _, v := range p.Pix {
		if v != 0 {
			count++
		}
	}
	return float64(count) / float64(len(p.Pix))
}

// SobelEdges binarizes gradient magnitude above the threshold.
func SobelEdges(p *Plane, threshold float64) *Plane {
	gx, gy := sobelGradients(p)
	out := NewPlane(p.W, p.H)
	for i := range out.Pix {
		if math.Hypot(gx[i], gy[i]) > threshold {
			out.Pix[i] = 255
		}
	}
	return out
}

func sobelGradients(p *Plane) ([]float64, []float64) {
	gx := make([]float64, p.W*p.H)
	gy := make([]float64, p.W*p.H)
	for y := 1; y < p.H-1; y++ {
		for x := 1; x < p.W-1; x++ {
			i := y*p.W + x
			tl := float64(p.Pix[i-p.W-1])
			tc := float64(p.Pix[i-p.W])
			tr := float64(p.Pix[i-p.W+1])
			ml := float64(p.Pix[i-1])
			mr := float64(p.Pix[i+1])
			bl := float64(p.Pix[i+p.W-1])
			bc := float64(p.Pix[i+p.W])
			br := float64(p.Pix[i+p.W+1])

			gx[i] = (tr + 2*mr + br) - (tl + 2*ml + bl)
			gy[i] = (bl + 2*bc + br) - (tl + 2*tc + tr)
		}
	}
	return gx, gy
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
