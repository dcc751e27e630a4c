// Package cache implements the bounded producer/consumer frame buffer that
// decouples a pull-based sample producer from the mixer, tracking which
// input format produced each run of buffered frames.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/fluxmix/mixcore/pkg/audio"
)

var (
	// ErrZeroCapacity is returned by Open when capacityFrames is not positive.
	ErrZeroCapacity = errors.New("cache: capacity must be greater than zero")
	// ErrNilCallback is returned by Open when mode is Thread but input is nil —
	// nothing would drive the producer goroutine. A nil callback is valid in
	// OnDemand mode: it denotes a pure push sink fed only through Write.
	ErrNilCallback = errors.New("cache: thread mode requires a non-nil input callback")
	// ErrCapacityTooSmall is returned by SetCapacity when the requested
	// capacity is smaller than the current fill level.
	ErrCapacityTooSmall = errors.New("cache: new capacity smaller than current fill")
)

// Mode selects how a Cache is kept full.
type Mode int

const (
	// Thread mode spawns a dedicated producer goroutine that repeatedly
	// calls the input callback and copies into the ring buffer.
	Thread Mode = iota
	// OnDemand mode tops the buffer up from within Read, using a try-lock
	// so external callers can quiesce the producer deterministically.
	OnDemand
)

// InputFunc is the pull-based sample producer contract: it fills dst with
// up to len(dst)/channels frames and reports the format of what it
// returned through outFmt (sentinel allowed to mean "unchanged"). A
// non-nil error return is a terminal failure.
type InputFunc[S audio.Sample] func(dst []S, outFmt *audio.FormatDescriptor) (frames int, err error)

// producerScratchFrames bounds how far ahead of the ring buffer the
// Thread-mode producer goroutine is willing to read before yielding, mirroring the original's fixed scratch region ahead of the
// cache mutex-guarded copy.
const producerScratchFrames = 256

// Cache is a bounded FIFO of fixed-width frames carrying an in-band
// sequence of format-change markers. The zero value is not usable; use
// Open.
type Cache[S audio.Sample] struct {
	// state mutex: guards everything below except inputLock itself.
	mu          sync.Mutex
	channels    int
	capacity    int
	buf         []S
	head        int
	count       int
	ready       bool
	markers     markerList
	producerErr error

	// inputLock is the semaphore gating callback admission: a token
	// present means "unlocked." Lock/tryLock receive the token, Unlock
	// returns it.
	inputLock chan struct{}

	mode  Mode
	input InputFunc[S]

	stop         chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
	flushPending bool

	limiter *rate.Limiter
}

// Open creates a Cache with the given capacity (in frames) and channel
// width. In Thread mode a producer goroutine is started immediately; it is
// joined by Close.
func Open[S audio.Sample](capacityFrames, channels int, mode Mode, input InputFunc[S]) (*Cache[S], error) {
	if capacityFrames <= 0 {
		return nil, ErrZeroCapacity
	}
	if mode == Thread && input == nil {
		return nil, ErrNilCallback
	}

	c := &Cache[S]{
		channels:  channels,
		capacity:  capacityFrames,
		buf:       make([]S, capacityFrames*channels),
		mode:      mode,
		input:     input,
		inputLock: make(chan struct{}, 1),
		stop:      make(chan struct{}),
		limiter:   rate.NewLimiter(rate.Every(time.Millisecond), 1),
	}
	c.inputLock <- struct{}{} // starts unlocked

	if mode == Thread {
		c.wg.Add(1)
		go c.produceLoop()
	}

	return c, nil
}

// Lock acquires the input-lock, blocking until it is available. Callers use
// this to quiesce the producer during a flush or format transition.
func (c *Cache[S]) Lock() {
	<-c.inputLock
}

// Unlock releases the input-lock. It is safe to call even when already
// unlocked (never blocks, never panics) — the mixer/transport layer may
// call it speculatively after a flush.
func (c *Cache[S]) Unlock() {
	select {
	case c.inputLock <- struct{}{}:
	default:
	}
}

// tryLock attempts to acquire the input-lock without blocking.
func (c *Cache[S]) tryLock() bool {
	select {
	case <-c.inputLock:
		return true
	default:
		return false
	}
}

// IsReady reports whether the cache has filled to capacity at least once
// since it last emptied.
func (c *Cache[S]) IsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// Filling reports buffering progress as a percentage: 100 when ready, else
// fill*100/capacity.
func (c *Cache[S]) Filling() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ready {
		return 100
	}
	return c.count * 100 / c.capacity
}

// Delay reports the number of frames currently pending in the cache.
func (c *Cache[S]) Delay() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// SetCapacity reallocates the backing buffer. It fails if the requested
// capacity is smaller than the current fill level.
func (c *Cache[S]) SetCapacity(frames int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if frames < c.count {
		return ErrCapacityTooSmall
	}

	newBuf := make([]S, frames*c.channels)
	for i := 0; i < c.count; i++ {
		src := (c.head + i) % c.capacity
		copy(newBuf[i*c.channels:(i+1)*c.channels], c.buf[src*c.channels:(src+1)*c.channels])
	}
	c.buf = newBuf
	c.capacity = frames
	c.head = 0
	return nil
}

// Write accepts externally-pushed frames (the push-path: write → resampler
// → cache). It returns the number of frames actually accepted, which may
// be less than frames if the cache is near capacity.
func (c *Cache[S]) Write(src []S, frames int, format audio.FormatDescriptor) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.depositLocked(src, frames, format)
}

// depositLocked copies up to frames frames from src into the ring buffer
// tail and records the format marker. Caller must hold mu.
func (c *Cache[S]) depositLocked(src []S, frames int, format audio.FormatDescriptor) int {
	accept := c.capacity - c.count
	if accept > frames {
		accept = frames
	}
	if accept <= 0 {
		return 0
	}

	tail := (c.head + c.count) % c.capacity
	for i := 0; i < accept; i++ {
		f := (tail + i) % c.capacity
		copy(c.buf[f*c.channels:(f+1)*c.channels], src[i*c.channels:(i+1)*c.channels])
	}
	c.count += accept
	c.markers.deposit(format, accept)
	if c.count == c.capacity {
		c.ready = true
	}
	return accept
}

// Read drains up to maxFrames frames of a single input format into dst. It
// returns 0 with a nil error when the cache is not yet ready (the consumer
// must poll), and a non-nil error only when the producer has permanently
// failed and the cache has nothing left to deliver.
func (c *Cache[S]) Read(dst []S, maxFrames int) (int, audio.FormatDescriptor, error) {
	c.mu.Lock()
	var produced int
	var format audio.FormatDescriptor
	// A terminal producer failure drains whatever is left before the error
	// surfaces, even below the ready threshold — the buffered frames are
	// still good audio, only the producer is dead.
	if c.ready || (c.producerErr != nil && c.count > 0) {
		n := maxFrames
		if n > c.count {
			n = c.count
		}
		format = c.markers.headFormat()
		if c.markers.head != nil && c.markers.head.next != nil && c.markers.head.run < n {
			n = c.markers.head.run
		}

		for i := 0; i < n; i++ {
			f := (c.head + i) % c.capacity
			copy(dst[i*c.channels:(i+1)*c.channels], c.buf[f*c.channels:(f+1)*c.channels])
		}
		c.head = (c.head + n) % c.capacity
		c.count -= n

		if c.markers.head != nil {
			c.markers.head.run -= n
			if c.markers.head.run == 0 && c.markers.head.next != nil {
				c.markers.retireHead()
			}
		}
		if c.count == 0 {
			c.ready = false
		}
		produced = n
	}
	err := c.producerErr
	c.mu.Unlock()

	if produced == 0 && err != nil {
		return 0, format, err
	}

	c.topUp()

	return produced, format, nil
}

// topUp implements the on-demand production path: Read itself fills the
// cache from the input callback, gated by a try-lock on the input-lock so a
// failed acquisition simply skips the top-up rather than blocking.
func (c *Cache[S]) topUp() {
	if c.mode != OnDemand || c.input == nil {
		return
	}

	c.mu.Lock()
	need := c.capacity - c.count
	c.mu.Unlock()
	if need <= 0 {
		return
	}
	if !c.tryLock() {
		return
	}

	scratch := make([]S, need*c.channels)
	var fmtBuf audio.FormatDescriptor
	n, err := c.input(scratch, &fmtBuf)
	if n > 0 {
		c.mu.Lock()
		c.depositLocked(scratch, n, fmtBuf)
		c.mu.Unlock()
	}
	if err != nil {
		c.mu.Lock()
		c.producerErr = err
		c.mu.Unlock()
	}
	c.Unlock()
}

// Flush clears the buffer and format markers. It acquires the input-lock
// first and does NOT release it — the caller (typically Stream) must call
// Unlock explicitly once the downstream filters have also been reset,
// guaranteeing a quiet window with no new admissions in between.
func (c *Cache[S]) Flush() {
	c.Lock()

	c.mu.Lock()
	c.head = 0
	c.count = 0
	c.ready = false
	c.markers.reset()
	c.producerErr = nil
	if c.mode == Thread {
		c.flushPending = true
	}
	c.mu.Unlock()
}

// produceLoop is the Thread-mode producer goroutine.
func (c *Cache[S]) produceLoop() {
	defer c.wg.Done()

	scratch := make([]S, producerScratchFrames*c.channels)
	scratchLen := 0
	var fmtBuf audio.FormatDescriptor

	for {
		select {
		case <-c.stop:
			return
		default:
		}

		c.Lock()

		c.mu.Lock()
		if c.flushPending {
			c.flushPending = false
			scratchLen = 0
		}
		c.mu.Unlock()

		if scratchLen < producerScratchFrames {
			n, err := c.input(scratch[scratchLen*c.channels:], &fmtBuf)
			if err != nil {
				c.mu.Lock()
				c.producerErr = err
				c.mu.Unlock()
				c.Unlock()
				return
			}
			scratchLen += n
		}

		c.mu.Lock()
		accept := c.capacity - c.count
		if accept > scratchLen {
			accept = scratchLen
		}
		if accept > 0 {
			c.depositLocked(scratch[:scratchLen*c.channels], accept, fmtBuf)
		}
		c.mu.Unlock()

		if accept > 0 && accept < scratchLen {
			copy(scratch, scratch[accept*c.channels:scratchLen*c.channels])
		}
		scratchLen -= accept

		c.Unlock()

		if scratchLen >= producerScratchFrames {
			c.limiter.Wait(context.Background())
		}
	}
}

// Close stops the producer goroutine (if any) and releases the input-lock
// first, so a caller or the producer blocked on it can observe the stop
// signal and return rather than deadlock.
func (c *Cache[S]) Close() {
	c.stopOnce.Do(func() {
		c.Unlock()
		close(c.stop)
		c.wg.Wait()
	})
}
