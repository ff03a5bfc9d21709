package capture

import (
	"image"
	"sync"
	"sync/atomic"
)

// Chunk is a rendered window on its way to the canvas. It belongs to the
// renderer, the queue or the compositor, never to two of them at once.
type Chunk struct {
	Image *image.RGBA
	Dest  image.Rectangle

	released atomic.Bool
}

// release drops the bitmap. It reports false if the chunk was already
// released.
func (c *Chunk) release() bool {
	if !c.released.CompareAndSwap(false, true) {
		return false
	}
	c.Image = nil
	return true
}

// workQueue carries chunks from the render goroutine to the compositor.
type workQueue struct {
	ch        chan *Chunk
	closeOnce sync.Once
}

func newWorkQueue(depth int) *workQueue {
	return &workQueue{ch: make(chan *Chunk, depth)}
}

// push hands c to the compositor, waiting for room. It gives up when
// aborted is closed; the caller keeps ownership of c in that case.
func (q *workQueue) push(c *Chunk, aborted <-chan struct{}) error {
	select {
	case <-aborted:
		return ErrAborted
	default:
	}
	select {
	case q.ch <- c:
		return nil
	case <-aborted:
		return ErrAborted
	}
}

// close marks the end of production.
func (q *workQueue) close() {
	q.closeOnce.Do(func() { close(q.ch) })
}

// drain releases every chunk that is currently queued without blocking and
// returns how many it released.
func (q *workQueue) drain() int {
	n := 0
	for {
		select {
		case c, ok := <-q.ch:
			if !ok {
				return n
			}
			if c.release() {
				n++
			}
		default:
			return n
		}
	}
}

func (q *workQueue) len() int {
	return len(q.ch)
}
