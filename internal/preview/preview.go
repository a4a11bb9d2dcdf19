// Preview surfaces: on-screen display of the current frame plus effect toggles
package preview

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// DefaultTitle is the preview window title
const DefaultTitle = "video capture"

// Sink displays frames and exposes one toggle control per effect.
// Show must not retain frame after returning.
type Sink interface {
	Show(frame gocv.Mat) error
	AddToggle(label string, onToggle func()) error
	StopRequested() bool
	Close() error
}

// Host runs the pipeline body. Toolkits that need the main thread keep it
// and run body elsewhere; Host returns once the surface has shut down.
type Host interface {
	Host(body func())
}

// Surface is a preview that can also host the pipeline
type Surface interface {
	Sink
	Host
}

// Kind names a preview implementation in configuration
type Kind string

const (
	KindFyne    Kind = "fyne"
	KindHighGUI Kind = "highgui"
	KindConsole Kind = "console"
)

func ParseKind(name string) (Kind, error) {
	switch kind := Kind(strings.ToLower(strings.TrimSpace(name))); kind {
	case KindFyne, KindHighGUI, KindConsole:
		return kind, nil
	case "":
		return KindFyne, nil
	default:
		return "", fmt.Errorf("unknown preview kind: %s", name)
	}
}

// Options for New
type Options struct {
	Title string
	// Input feeds console commands; ignored by graphical previews.
	Input io.Reader
}

// New creates the preview surface selected by kind
func New(kind Kind, opts Options, logger logrus.FieldLogger) (Surface, error) {
	if opts.Title == "" {
		opts.Title = DefaultTitle
	}

	switch kind {
	case KindFyne:
		return NewFyne(opts.Title, logger), nil
	case KindHighGUI:
		return NewHighGUI(opts.Title, logger), nil
	case KindConsole:
		return NewConsole(opts.Input, logger), nil
	default:
		return nil, fmt.Errorf("unknown preview kind: %s", kind)
	}
}
