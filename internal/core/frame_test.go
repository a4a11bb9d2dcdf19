package core

import (
	"testing"

	"gocv.io/x/gocv"
)

func TestValidateFrame(t *testing.T) {
	tests := []struct {
		name    string
		mat     func() gocv.Mat
		wantErr bool
	}{
		{"empty", func() gocv.Mat { return gocv.NewMat() }, true},
		{"bgr", func() gocv.Mat { return gocv.NewMatWithSize(4, 6, gocv.MatTypeCV8UC3) }, false},
		{"gray", func() gocv.Mat { return gocv.NewMatWithSize(4, 6, gocv.MatTypeCV8UC1) }, false},
		{"two channels", func() gocv.Mat { return gocv.NewMatWithSize(4, 6, gocv.MatTypeCV8UC2) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mat := tt.mat()
			defer mat.Close()

			err := ValidateFrame(mat)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateFrame() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDescribe(t *testing.T) {
	mat := gocv.NewMatWithSize(4, 6, gocv.MatTypeCV8UC3)
	defer mat.Close()

	info := Describe(mat)
	if info.Width != 6 || info.Height != 4 || info.Channels != 3 {
		t.Fatalf("unexpected info: %+v", info)
	}
	if info.Stride != 18 {
		t.Errorf("expected stride 18, got %d", info.Stride)
	}

	empty := gocv.NewMat()
	defer empty.Close()
	if got := Describe(empty); got != (FrameInfo{}) {
		t.Errorf("expected zero info for empty frame, got %+v", got)
	}
}

func TestParsePixelFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    PixelFormat
		wantErr bool
	}{
		{"", FormatBGR, false},
		{"BGR", FormatBGR, false},
		{"gray", FormatGray, false},
		{" mono ", FormatGray, false},
		{"yuyv", FormatBGR, true},
	}

	for _, tt := range tests {
		got, err := ParsePixelFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePixelFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePixelFormat(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestConvertFormat(t *testing.T) {
	t.Run("matching format is passthrough", func(t *testing.T) {
		mat := gocv.NewMatWithSize(2, 2, gocv.MatTypeCV8UC3)
		out, err := ConvertFormat(mat, FormatBGR)
		if err != nil {
			t.Fatalf("ConvertFormat() error = %v", err)
		}
		defer out.Close()
		if out.Channels() != 3 || out.Cols() != 2 {
			t.Errorf("unexpected result: %s", Describe(out))
		}
	})

	t.Run("bgr to gray", func(t *testing.T) {
		mat := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV8UC3)
		out, err := ConvertFormat(mat, FormatGray)
		if err != nil {
			t.Fatalf("ConvertFormat() error = %v", err)
		}
		defer out.Close()
		if out.Channels() != 1 || out.Cols() != 3 || out.Rows() != 2 {
			t.Errorf("unexpected result: %s", Describe(out))
		}
	})

	t.Run("gray to bgr", func(t *testing.T) {
		mat := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV8UC1)
		out, err := ConvertFormat(mat, FormatBGR)
		if err != nil {
			t.Fatalf("ConvertFormat() error = %v", err)
		}
		defer out.Close()
		if out.Channels() != 3 {
			t.Errorf("expected 3 channels, got %d", out.Channels())
		}
	})
}
