package preview

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

const escapeKey = 27

// cvWindow is the part of gocv.Window the preview drives.
type cvWindow interface {
	IMShow(img gocv.Mat) error
	WaitKey(delay int) int
	CreateTrackbar(name string, max int) *gocv.Trackbar
	Close() error
}

// HighGUI uses an OpenCV window. Toggles are 0/1 trackbars polled after
// every frame, so everything runs on the pipeline goroutine.
type HighGUI struct {
	window  cvWindow
	toggles []*trackbarToggle
	stop    bool
	logger  logrus.FieldLogger
}

type trackbarToggle struct {
	label    string
	trackbar *gocv.Trackbar
	position int
	onToggle func()
}

func NewHighGUI(title string, logger logrus.FieldLogger) *HighGUI {
	return &HighGUI{
		window: gocv.NewWindow(title),
		logger: logger,
	}
}

// Host runs body on the calling goroutine, which must be the main thread on some platforms.
func (h *HighGUI) Host(body func()) {
	body()
}

func (h *HighGUI) Show(frame gocv.Mat) error {
	if err := h.window.IMShow(frame); err != nil {
		return fmt.Errorf("imshow failed: %w", err)
	}
	if key := h.window.WaitKey(1); key == escapeKey {
		h.logger.Info("Stop requested from preview")
		h.stop = true
	}
	h.pollToggles()
	return nil
}

func (h *HighGUI) AddToggle(label string, onToggle func()) error {
	h.toggles = append(h.toggles, &trackbarToggle{
		label:    label,
		trackbar: h.window.CreateTrackbar(label, 1),
		onToggle: onToggle,
	})
	return nil
}

func (h *HighGUI) pollToggles() {
	for _, toggle := range h.toggles {
		position := toggle.trackbar.GetPos()
		if position != toggle.position {
			toggle.position = position
			toggle.onToggle()
		}
	}
}

func (h *HighGUI) StopRequested() bool {
	return h.stop
}

func (h *HighGUI) Close() error {
	if h.window == nil {
		return nil
	}
	err := h.window.Close()
	h.window = nil
	return err
}
