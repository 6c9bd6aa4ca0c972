package vision

import (
	"errors"
	"image"
	"image/png"
	"io"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	xdraw "golang.org/x/image/draw"
)

// Matrix is an 8-bit RGB pixel matrix (height x width x 3 channels). It is
// owned exclusively by the call that produced it; transforms in this package
// always allocate a new Matrix instead of mutating their input.
type Matrix struct {
	W, H int
	Pix  []uint8 // interleaved RGB, len = W*H*3
}

// Plane is a single 8-bit channel (grayscale or binary mask).
type Plane struct {
	W, H int
	Pix  []uint8
}

// NewMatrix allocates a zeroed RGB matrix.
func NewMatrix(w, h int) *Matrix {
	return &Matrix{W: w, H: h, Pix: make([]uint8, w*h*3)}
}

// NewPlane allocates a zeroed single channel plane.
func NewPlane(w, h int) *Plane {
	return &Plane{W: w, H: h, Pix: make([]uint8, w*h)}
}

// RGB returns the pixel at (x, y).
func (m *Matrix) RGB(x, y int) (uint8, uint8, uint8) {
	i := (y*m.W + x) * 3
	return m.Pix[i], m.Pix[i+1], m.Pix[i+2]
}

// SetRGB writes the pixel at (x, y).
func (m *Matrix) SetRGB(x, y int, r, g, b uint8) {
	i := (y*m.W + x) * 3
	m.Pix[i], m.Pix[i+1], m.Pix[i+2] = r, g, b
}

// Clone returns a deep copy.
func (m *Matrix) Clone() *Matrix {
	out := NewMatrix(m.W, m.H)
	copy(out.Pix, m.Pix)
	return out
}

// At returns the value at (x, y).
func (p *Plane) At(x, y int) uint8 { return p.Pix[y*p.W+x] }

// Set writes the value at (x, y).
func (p *Plane) Set(x, y int, v uint8) { p.Pix[y*p.W+x] = v }

// Decode reads an encoded image (JPEG, PNG, GIF, WEBP or BMP) into a Matrix.
func Decode(r io.Reader) (*Matrix, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, err
	}
	return FromImage(img), nil
}

// FromImage converts a decoded image into a Matrix, dropping alpha.
func FromImage(img image.Image) *Matrix {
	bounds := img.Bounds()
	out := NewMatrix(bounds.Dx(), bounds.Dy())
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			out.Pix[i] = uint8(r >> 8)
			out.Pix[i+1] = uint8(g >> 8)
			out.Pix[i+2] = uint8(b >> 8)
			i += 3
		}
	}
	return out
}

// ToRGBA converts the matrix into a standard library image.
func (m *Matrix) ToRGBA() *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, m.W, m.H))
	src := 0
	for y := 0; y < m.H; y++ {
		dst := y * out.Stride
		for x := 0; x < m.W; x++ {
			out.Pix[dst] = m.Pix[src]
			out.Pix[dst+1] = m.Pix[src+1]
			out.Pix[dst+2] = m.Pix[src+2]
			out.Pix[dst+3] = 0xFF
			src += 3
			dst += 4
		}
	}
	return out
}

// EncodePNG writes the matrix as a PNG stream.
func (m *Matrix) EncodePNG(w io.Writer) error {
	return png.Encode(w, m.ToRGBA())
}

// Resize scales the matrix to w x h using bilinear interpolation.
func Resize(m *Matrix, w, h int) *Matrix {
	if m.W == w && m.H == h {
		return m.Clone()
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), m.ToRGBA(), image.Rect(0, 0, m.W, m.H), xdraw.Src, nil)
	return FromImage(dst)
}

// Blend computes wa*a + wb*b per channel. Both inputs must share dimensions.
func Blend(a *Matrix, wa float64, b *Matrix, wb float64) (*Matrix, error) {
	if a.W != b.W || a.H != b.H {
		return nil, errors.New("vision: blend inputs differ in size")
	}
	out := NewMatrix(a.W, a.H)
	for i := range a.Pix {
		v := wa*float64(a.Pix[i]) + wb*float64(b.Pix[i])
		out.Pix[i] = clampU8(v)
	}
	return out, nil
}

// ChannelMeans returns the mean intensity of each channel.
func (m *Matrix) ChannelMeans() (float64, float64, float64) {
	if m.W == 0 || m.H == 0 {
		return 0, 0, 0
	}
	var r, g, b float64
	for i := 0; i < len(m.Pix); i += 3 {
		r += float64(m.Pix[i])
		g += float64(m.Pix[i+1])
		b += float64(m.Pix[i+2])
	}
	n := float64(m.W * m.H)
	return r / n, g / n, b / n
}

func clampU8(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}
