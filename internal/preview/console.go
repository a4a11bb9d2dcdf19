package preview

import (
	"bufio"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// Console is a headless preview. Frames are counted, not drawn; effects
// are toggled by typing their label (or its dashed form) on Input, and
// "q" or "quit" requests a stop.
type Console struct {
	input  io.Reader
	logger logrus.FieldLogger

	mu      sync.Mutex
	toggles map[string]func()

	frames atomic.Uint64
	stop   atomic.Bool
	listen sync.Once
	done   chan struct{}
}

func NewConsole(input io.Reader, logger logrus.FieldLogger) *Console {
	return &Console{
		input:   input,
		logger:  logger,
		toggles: make(map[string]func()),
		done:    make(chan struct{}),
	}
}

// Host starts reading commands and runs body on the calling goroutine.
func (c *Console) Host(body func()) {
	c.Listen()
	body()
}

// Listen starts the command reader once. It is a no-op without input.
func (c *Console) Listen() {
	c.listen.Do(func() {
		if c.input == nil {
			close(c.done)
			return
		}
		go c.readCommands()
	})
}

// Done is closed when the command reader has hit end of input.
func (c *Console) Done() <-chan struct{} {
	return c.done
}

func (c *Console) readCommands() {
	defer close(c.done)

	scanner := bufio.NewScanner(c.input)
	for scanner.Scan() {
		command := commandKey(scanner.Text())
		switch command {
		case "":
			continue
		case "q", "quit", "exit":
			c.logger.Info("Stop requested from console")
			c.stop.Store(true)
			return
		case "list", "help":
			c.logger.WithField("effects", c.labels()).Info("Available effects")
			continue
		}

		c.mu.Lock()
		toggle, ok := c.toggles[command]
		c.mu.Unlock()

		if !ok {
			c.logger.WithField("command", command).Warn("Unknown effect")
			continue
		}
		toggle()
	}

	if err := scanner.Err(); err != nil {
		c.logger.WithError(err).Warn("Console input failed")
	}
}

func (c *Console) Show(gocv.Mat) error {
	c.frames.Add(1)
	return nil
}

// Frames returns how many frames were handed to Show
func (c *Console) Frames() uint64 {
	return c.frames.Load()
}

func (c *Console) AddToggle(label string, onToggle func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toggles[commandKey(label)] = onToggle
	return nil
}

func (c *Console) StopRequested() bool {
	return c.stop.Load()
}

func (c *Console) Close() error {
	c.logger.WithField("frames", c.Frames()).Info("Console preview closed")
	return nil
}

func (c *Console) labels() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	labels := make([]string, 0, len(c.toggles))
	for label := range c.toggles {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// commandKey lowercases and dashes a label: "Horizontal flip" -> "horizontal-flip".
func commandKey(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), "-")
}
