// Ordered effect chain applied once per captured frame
package effects

import (
	"fmt"
	"image"
	"time"

	"gocv.io/x/gocv"
)

// Observer receives the duration of every effect the chain applies.
type Observer interface {
	ObserveEffect(name string, elapsed time.Duration)
}

// Chain applies its enabled effects in a fixed order
type Chain struct {
	effects  []*Effect
	byName   map[string]*Effect
	observer Observer
}

// NewChain builds a chain in the given order. Names must be unique.
func NewChain(effects ...*Effect) (*Chain, error) {
	c := &Chain{
		effects: make([]*Effect, 0, len(effects)),
		byName:  make(map[string]*Effect, len(effects)),
	}

	for i, effect := range effects {
		if effect == nil {
			return nil, fmt.Errorf("effect at position %d is nil", i)
		}
		if effect.transform == nil {
			return nil, fmt.Errorf("effect %q has no transform", effect.name)
		}
		if _, exists := c.byName[effect.name]; exists {
			return nil, fmt.Errorf("duplicate effect name: %s", effect.name)
		}
		c.byName[effect.name] = effect
		c.effects = append(c.effects, effect)
	}

	return c, nil
}

// SetObserver installs an optional timing observer. Call before the pipeline runs.
func (c *Chain) SetObserver(observer Observer) {
	c.observer = observer
}

// Effects returns the effects in application order
func (c *Chain) Effects() []*Effect {
	result := make([]*Effect, len(c.effects))
	copy(result, c.effects)
	return result
}

// Lookup finds an effect by its unique name
func (c *Chain) Lookup(name string) (*Effect, bool) {
	effect, ok := c.byName[name]
	return effect, ok
}

func (c *Chain) Len() int {
	return len(c.effects)
}

// sizer is implemented by transforms whose output size is known up front.
type sizer interface {
	OutputSize(width, height int) image.Point
}

// MaxOutputSize returns the frame size produced from a width x height input
// when every effect is enabled.
func (c *Chain) MaxOutputSize(width, height int) image.Point {
	size := image.Point{X: width, Y: height}
	for _, effect := range c.effects {
		if s, ok := effect.transform.(sizer); ok {
			size = s.OutputSize(size.X, size.Y)
		}
	}
	return size
}

// RunAll takes ownership of frame and returns the result of every enabled
// effect applied in order. Each flag is read exactly once. With nothing
// enabled the input is returned untouched. The returned Mat always belongs
// to the caller, including on error.
func (c *Chain) RunAll(frame gocv.Mat) (gocv.Mat, error) {
	working := frame

	for _, effect := range c.effects {
		if !effect.Enabled() {
			continue
		}

		start := time.Now()
		output, err := effect.Apply(working)
		working = output
		if err != nil {
			return working, err
		}

		if c.observer != nil {
			c.observer.ObserveEffect(effect.name, time.Since(start))
		}
	}

	return working, nil
}
