package capture

import (
	"sync"
	"sync/atomic"
)

// State is the phase a capture pipeline is in. It only moves forward, except
// that any goroutine may force Error.
type State int32

const (
	BeforeCapture State = iota
	Capturing
	Transferring
	Writing
	Complete
	Error
)

func (s State) String() string {
	switch s {
	case BeforeCapture:
		return "before-capture"
	case Capturing:
		return "capturing"
	case Transferring:
		return "transferring"
	case Writing:
		return "writing"
	case Complete:
		return "complete"
	case Error:
		return "error"
	}
	return "unknown"
}

// Terminal reports whether s is Complete or Error.
func (s State) Terminal() bool {
	return s == Complete || s == Error
}

// stateCell is the only mutable value shared between the render goroutine,
// the compositor and the writer. Error is sticky: once stored, cas never
// succeeds again and aborted is closed.
type stateCell struct {
	v       atomic.Int32
	once    sync.Once
	aborted chan struct{}

	mu  sync.Mutex
	err error
}

func newStateCell() *stateCell {
	return &stateCell{aborted: make(chan struct{})}
}

func (c *stateCell) load() State {
	return State(c.v.Load())
}

func (c *stateCell) cas(from, to State) bool {
	return c.v.CompareAndSwap(int32(from), int32(to))
}

// fail moves the cell to Error and records err if this call made the
// transition. Complete is left alone.
func (c *stateCell) fail(err error) bool {
	for {
		cur := c.load()
		if cur == Error || cur == Complete {
			return false
		}
		if c.v.CompareAndSwap(int32(cur), int32(Error)) {
			c.mu.Lock()
			c.err = err
			c.mu.Unlock()
			c.once.Do(func() { close(c.aborted) })
			return true
		}
	}
}

func (c *stateCell) error() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}
