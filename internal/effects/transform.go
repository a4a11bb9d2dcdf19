// Concrete frame transforms: inversion, axis flips and uniform scaling
package effects

import (
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"
)

// Transform is a pure frame operation. Apply consumes its input: it either
// mutates it in place and returns it, or returns a new Mat and closes the
// input. On error the input is returned still valid and owned by the caller.
type Transform interface {
	Name() string
	Apply(input gocv.Mat) (gocv.Mat, error)
	// Resizes reports whether the output may differ in size from the input.
	Resizes() bool
}

// Invert negates every channel value. Works in place.
type Invert struct{}

func NewInvert() *Invert {
	return &Invert{}
}

func (i *Invert) Name() string { return "Invert" }
func (i *Invert) Resizes() bool { return false }

func (i *Invert) Apply(input gocv.Mat) (gocv.Mat, error) {
	if input.Empty() {
		return input, fmt.Errorf("input image is empty")
	}

	if err := gocv.BitwiseNot(input, &input); err != nil {
		return input, fmt.Errorf("bitwise not failed: %w", err)
	}
	return input, nil
}

// FlipAxis selects the reflection performed by Flip, using OpenCV flip codes.
type FlipAxis int

const (
	// FlipAroundX mirrors rows (upside down).
	FlipAroundX FlipAxis = 0
	// FlipAroundY mirrors columns (left to right).
	FlipAroundY FlipAxis = 1
)

// Flip reflects the frame around one axis into a new buffer.
type Flip struct {
	axis FlipAxis
}

// NewFlipHorizontal mirrors the frame left to right.
func NewFlipHorizontal() *Flip {
	return &Flip{axis: FlipAroundY}
}

// NewFlipVertical mirrors the frame top to bottom.
func NewFlipVertical() *Flip {
	return &Flip{axis: FlipAroundX}
}

func (f *Flip) Name() string {
	if f.axis == FlipAroundX {
		return "Vertical flip"
	}
	return "Horizontal flip"
}

func (f *Flip) Resizes() bool { return false }

func (f *Flip) Apply(input gocv.Mat) (gocv.Mat, error) {
	if input.Empty() {
		return input, fmt.Errorf("input image is empty")
	}

	output := gocv.NewMat()
	if err := gocv.Flip(input, &output, int(f.axis)); err != nil {
		output.Close()
		return input, fmt.Errorf("flip failed: %w", err)
	}

	input.Close()
	return output, nil
}

// DefaultScaleFactor doubles both frame dimensions.
const DefaultScaleFactor = 2.0

// Scale resizes the frame uniformly by a fixed factor.
type Scale struct {
	factor        float64
	interpolation gocv.InterpolationFlags
}

// NewScale creates a scale transform. Non-positive factors fall back to DefaultScaleFactor.
func NewScale(factor float64) *Scale {
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		factor = DefaultScaleFactor
	}
	return &Scale{
		factor:        factor,
		interpolation: gocv.InterpolationArea,
	}
}

func (s *Scale) Name() string { return "Scale" }
func (s *Scale) Resizes() bool { return true }
func (s *Scale) Factor() float64 { return s.factor }

// OutputSize returns the dimensions Apply produces for a width x height input.
func (s *Scale) OutputSize(width, height int) image.Point {
	w := int(math.Round(float64(width) * s.factor))
	h := int(math.Round(float64(height) * s.factor))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return image.Point{X: w, Y: h}
}

func (s *Scale) Apply(input gocv.Mat) (gocv.Mat, error) {
	if input.Empty() {
		return input, fmt.Errorf("input image is empty")
	}

	size := s.OutputSize(input.Cols(), input.Rows())
	output := gocv.NewMat()
	if err := gocv.Resize(input, &output, size, 0, 0, s.interpolation); err != nil {
		output.Close()
		return input, fmt.Errorf("resize to %dx%d failed: %w", size.X, size.Y, err)
	}

	input.Close()
	return output, nil
}
