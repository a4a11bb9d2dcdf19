// Frame metadata, validation and pixel format handling for captured buffers
package core

import (
	"fmt"
	"strings"

	"gocv.io/x/gocv"
)

// Frames larger than this on either axis are rejected.
const MaxDimension = 16384

// FrameInfo describes the geometry of a frame buffer
type FrameInfo struct {
	Width    int
	Height   int
	Channels int
	Stride   int
	Type     gocv.MatType
}

// Describe returns the geometry of frame. An empty Mat yields a zero FrameInfo.
func Describe(frame gocv.Mat) FrameInfo {
	if frame.Empty() {
		return FrameInfo{}
	}
	return FrameInfo{
		Width:    frame.Cols(),
		Height:   frame.Rows(),
		Channels: frame.Channels(),
		Stride:   frame.Step(),
		Type:     frame.Type(),
	}
}

// SameSize reports whether both frames have identical width and height.
func (fi FrameInfo) SameSize(other FrameInfo) bool {
	return fi.Width == other.Width && fi.Height == other.Height
}

func (fi FrameInfo) String() string {
	return fmt.Sprintf("%dx%d/%dch", fi.Width, fi.Height, fi.Channels)
}

// ValidateFrame checks that a captured Mat is a usable frame
func ValidateFrame(frame gocv.Mat) error {
	if frame.Empty() {
		return fmt.Errorf("frame is empty")
	}

	if frame.Cols() <= 0 || frame.Rows() <= 0 {
		return fmt.Errorf("invalid dimensions: %dx%d", frame.Cols(), frame.Rows())
	}

	channels := frame.Channels()
	if channels != 1 && channels != 3 && channels != 4 {
		return fmt.Errorf("unsupported channel count: %d", channels)
	}

	if frame.Cols() > MaxDimension || frame.Rows() > MaxDimension {
		return fmt.Errorf("frame too large: %dx%d (max: %d)", frame.Cols(), frame.Rows(), MaxDimension)
	}

	return nil
}

// PixelFormat is the channel layout every frame of a session is delivered in.
type PixelFormat int

const (
	FormatBGR PixelFormat = iota
	FormatGray
)

// ParsePixelFormat maps a configuration value to a PixelFormat
func ParsePixelFormat(name string) (PixelFormat, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "bgr", "color":
		return FormatBGR, nil
	case "gray", "grey", "mono":
		return FormatGray, nil
	default:
		return FormatBGR, fmt.Errorf("unknown pixel format: %s", name)
	}
}

func (f PixelFormat) String() string {
	switch f {
	case FormatGray:
		return "gray"
	default:
		return "bgr"
	}
}

// Channels returns the number of samples per pixel
func (f PixelFormat) Channels() int {
	if f == FormatGray {
		return 1
	}
	return 3
}

// MatType returns the 8-bit Mat type matching the format
func (f PixelFormat) MatType() gocv.MatType {
	if f == FormatGray {
		return gocv.MatTypeCV8UC1
	}
	return gocv.MatTypeCV8UC3
}

// ConvertFormat consumes frame and returns it in the requested format.
// A frame already in that format is returned as is. On error the input
// is returned unchanged and stays owned by the caller.
func ConvertFormat(frame gocv.Mat, format PixelFormat) (gocv.Mat, error) {
	channels := frame.Channels()
	if channels == format.Channels() {
		return frame, nil
	}

	var code gocv.ColorConversionCode
	switch {
	case format == FormatGray && channels == 3:
		code = gocv.ColorBGRToGray
	case format == FormatGray && channels == 4:
		code = gocv.ColorBGRAToGray
	case format == FormatBGR && channels == 1:
		code = gocv.ColorGrayToBGR
	case format == FormatBGR && channels == 4:
		code = gocv.ColorBGRAToBGR
	default:
		return frame, fmt.Errorf("cannot convert %d channels to %s", channels, format)
	}

	converted := gocv.NewMat()
	if err := gocv.CvtColor(frame, &converted, code); err != nil {
		converted.Close()
		return frame, fmt.Errorf("failed to convert frame to %s: %w", format, err)
	}

	frame.Close()
	return converted, nil
}
