package preview

import (
	"fmt"
	"sync"
	"sync/atomic"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

const AppID = "com.camfx.live-effects"

// Fyne shows frames in a fyne window with a check box per effect.
// Escape or closing the window requests a stop.
type Fyne struct {
	app      fyne.App
	window   fyne.Window
	image    *canvas.Image
	controls *fyne.Container
	status   *widget.Label
	logger   logrus.FieldLogger

	stop      atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
}

func NewFyne(title string, logger logrus.FieldLogger) *Fyne {
	return newFyne(app.NewWithID(AppID), title, logger)
}

func newFyne(a fyne.App, title string, logger logrus.FieldLogger) *Fyne {
	a.SetIcon(theme.MediaVideoIcon())
	window := a.NewWindow(title)
	window.Resize(fyne.NewSize(1280, 720))

	img := canvas.NewImageFromImage(nil)
	img.FillMode = canvas.ImageFillContain
	img.ScaleMode = canvas.ImageScaleFastest

	p := &Fyne{
		app:      a,
		window:   window,
		image:    img,
		controls: container.NewVBox(widget.NewLabel("Effects")),
		status:   widget.NewLabel("Starting"),
		logger:   logger,
	}

	window.SetContent(container.NewBorder(nil, p.status, p.controls, nil, img))
	window.Canvas().SetOnTypedKey(func(ev *fyne.KeyEvent) {
		if ev.Name == fyne.KeyEscape {
			p.requestStop("escape key")
		}
	})
	window.SetCloseIntercept(func() {
		p.requestStop("window closed")
	})

	return p
}

// Host runs body on its own goroutine and keeps the main thread for the fyne event loop.
func (p *Fyne) Host(body func()) {
	p.window.Show()
	go body()
	p.app.Run()
}

func (p *Fyne) Show(frame gocv.Mat) error {
	img, err := frame.ToImage()
	if err != nil {
		return fmt.Errorf("failed to convert frame for display: %w", err)
	}

	fyne.Do(func() {
		p.image.Image = img
		p.image.Refresh()
	})
	return nil
}

func (p *Fyne) AddToggle(label string, onToggle func()) error {
	fyne.Do(func() {
		check := widget.NewCheck(label, func(bool) {
			onToggle()
			// a focused check swallows key events, Escape included
			p.window.Canvas().Unfocus()
		})
		p.controls.Add(check)
	})
	return nil
}

// SetStatus replaces the status line under the preview
func (p *Fyne) SetStatus(text string) {
	if p.closed.Load() {
		return
	}
	fyne.Do(func() {
		p.status.SetText(text)
	})
}

func (p *Fyne) StopRequested() bool {
	return p.stop.Load()
}

func (p *Fyne) Close() error {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		fyne.Do(func() {
			p.window.Close()
			p.app.Quit()
		})
	})
	return nil
}

func (p *Fyne) requestStop(reason string) {
	if p.stop.CompareAndSwap(false, true) {
		p.logger.WithField("reason", reason).Info("Stop requested from preview")
	}
}
