// Package engine composes a Mixer, a Sink, and a contiguous table of
// Streams behind the API surface external code actually drives: open,
// close, master volume, add/remove stream, and one wrapper per Stream
// operation keyed by StreamID.
package engine

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fluxmix/mixcore/pkg/audio"
	"github.com/fluxmix/mixcore/pkg/cache"
	"github.com/fluxmix/mixcore/pkg/mixer"
	"github.com/fluxmix/mixcore/pkg/resample"
	"github.com/fluxmix/mixcore/pkg/sink"
	"github.com/fluxmix/mixcore/pkg/stream"
)

// StreamID addresses a stream across the engine's API surface, minted once
// per AddStream call.
type StreamID = uuid.UUID

var (
	ErrStreamNotFound = errors.New("engine: stream not found")
	ErrEngineClosed   = errors.New("engine: closed")
)

// Config carries engine-wide tuning, threaded down to the Mixer.
type Config struct {
	OutputRate     int
	OutputChannels int
	CacheFrames    int
	BlockFrames    int
	TickInterval   time.Duration
	MaxSilence     time.Duration
}

// streamSlot is one entry of the engine's contiguous stream table. A nil
// Stream marks a tombstone left by a removed or ended stream, reused by the
// next AddStreamPull/AddStreamPush rather than compacted away —
// this replaces the "null out the cache pointer while the mixer still
// traverses" pattern with a table the mixer and the transport layer both
// read under the same engine mutex.
type streamSlot[S audio.Sample] struct {
	id     StreamID
	stream *stream.Stream[S]
}

// Engine owns the stream table, the sink, and the mixer goroutine.
type Engine[S audio.Sample] struct {
	mu sync.Mutex

	cfg          Config
	masterVolume int

	slots []streamSlot[S]
	index map[StreamID]int

	mix *mixer.Mixer[S]
	snk sink.Sink[S]

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Open constructs an Engine bound to snk and starts its mixer goroutine.
func Open[S audio.Sample](arith audio.Arithmetic[S], snk sink.Sink[S], cfg Config) *Engine[S] {
	mixCfg := mixer.Config{
		BlockFrames:  cfg.BlockFrames,
		TickInterval: cfg.TickInterval,
		MaxSilence:   cfg.MaxSilence,
	}

	e := &Engine[S]{
		cfg:          cfg,
		masterVolume: audio.VolumeMax,
		index:        make(map[StreamID]int),
		mix:          mixer.New[S](arith, snk, cfg.OutputChannels, mixCfg),
		snk:          snk,
		stop:         make(chan struct{}),
	}

	e.wg.Add(1)
	go e.run()
	return e
}

// run is the mixer thread: a ticker loop holding the engine mutex for
// exactly the duration of one Tick.
func (e *Engine[S]) run() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			e.mu.Lock()
			streams := e.liveStreams()
			if err := e.mix.Tick(streams, e.masterVolume); err != nil {
				log.Printf("engine: mixer tick failed: %v", err)
				e.mu.Unlock()
				return
			}
			e.reapEnded()
			e.mu.Unlock()
		}
	}
}

// liveStreams returns the non-tombstoned streams in table order. Caller
// must hold mu.
func (e *Engine[S]) liveStreams() []*stream.Stream[S] {
	live := make([]*stream.Stream[S], 0, len(e.slots))
	for _, slot := range e.slots {
		if slot.stream != nil {
			live = append(live, slot.stream)
		}
	}
	return live
}

// reapEnded tombstones any slot whose stream observed end-of-stream this
// tick. The mixer itself already tore down the stream's cache and
// resampler; this only drops the engine's reference and frees the id for
// reuse in the index map. Caller must hold mu.
func (e *Engine[S]) reapEnded() {
	for i := range e.slots {
		s := e.slots[i].stream
		if s != nil && s.EndOfStream() {
			delete(e.index, e.slots[i].id)
			e.slots[i].stream = nil
		}
	}
}

// allocSlot finds a tombstoned slot to reuse, or appends a new one. Caller
// must hold mu.
func (e *Engine[S]) allocSlot(id StreamID, s *stream.Stream[S]) {
	for i := range e.slots {
		if e.slots[i].stream == nil {
			e.slots[i] = streamSlot[S]{id: id, stream: s}
			e.index[id] = i
			return
		}
	}
	e.slots = append(e.slots, streamSlot[S]{id: id, stream: s})
	e.index[id] = len(e.slots) - 1
}

// AddStreamPull builds a pull-path stream (callback-driven production) and
// returns its id.
func (e *Engine[S]) AddStreamPull(inRate, inChannels int, mode cache.Mode, input resample.ReadFunc[S]) (StreamID, error) {
	s, err := stream.NewPull[S](inRate, inChannels, e.cfg.OutputRate, e.cfg.OutputChannels, e.cfg.CacheFrames, mode, input)
	if err != nil {
		return StreamID{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	id := uuid.New()
	e.allocSlot(id, s)
	return id, nil
}

// AddStreamPush builds a push-path stream (caller feeds samples via
// Write) and returns its id.
func (e *Engine[S]) AddStreamPush(inRate, inChannels int) (StreamID, error) {
	s, err := stream.NewPush[S](inRate, inChannels, e.cfg.OutputRate, e.cfg.OutputChannels, e.cfg.CacheFrames)
	if err != nil {
		return StreamID{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	id := uuid.New()
	e.allocSlot(id, s)
	return id, nil
}

// RemoveStream tears a stream's pipeline down and tombstones its slot.
func (e *Engine[S]) RemoveStream(id StreamID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	i, ok := e.index[id]
	if !ok {
		return ErrStreamNotFound
	}
	e.slots[i].stream.Remove()
	e.slots[i].stream = nil
	delete(e.index, id)
	return nil
}

func (e *Engine[S]) lookup(id StreamID) (*stream.Stream[S], error) {
	i, ok := e.index[id]
	if !ok {
		return nil, ErrStreamNotFound
	}
	return e.slots[i].stream, nil
}

// SetMasterVolume clamps and sets the engine's overall output gain.
func (e *Engine[S]) SetMasterVolume(v int) {
	switch {
	case v < 0:
		v = 0
	case v > audio.VolumeMax:
		v = audio.VolumeMax
	}
	e.mu.Lock()
	e.masterVolume = v
	e.mu.Unlock()
}

// MasterVolume returns the engine's current overall output gain.
func (e *Engine[S]) MasterVolume() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.masterVolume
}

// Play starts (or resumes) the named stream.
func (e *Engine[S]) Play(id StreamID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.lookup(id)
	if err != nil {
		return err
	}
	s.Play()
	return nil
}

// Pause suspends the named stream without clearing buffered data.
func (e *Engine[S]) Pause(id StreamID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.lookup(id)
	if err != nil {
		return err
	}
	s.Pause()
	return nil
}

// Flush clears the named stream's cache and resampler.
func (e *Engine[S]) Flush(id StreamID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.lookup(id)
	if err != nil {
		return err
	}
	s.Flush()
	return nil
}

// Write pushes frames into the named push-path stream.
func (e *Engine[S]) Write(id StreamID, src []S, frames int, format audio.FormatDescriptor) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.lookup(id)
	if err != nil {
		return 0, err
	}
	return s.Write(src, frames, format), nil
}

// SetVolume sets the named stream's 0..VolumeMax gain.
func (e *Engine[S]) SetVolume(id StreamID, v int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.lookup(id)
	if err != nil {
		return err
	}
	s.SetVolume(v)
	return nil
}

// Volume returns the named stream's current gain.
func (e *Engine[S]) Volume(id StreamID) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.lookup(id)
	if err != nil {
		return 0, err
	}
	return s.Volume(), nil
}

// SetCacheSize resizes the named stream's cache.
func (e *Engine[S]) SetCacheSize(id StreamID, frames int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.lookup(id)
	if err != nil {
		return err
	}
	return s.SetCacheSize(frames)
}

// Status reports the named stream's current status keys.
func (e *Engine[S]) Status(id StreamID) (stream.Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.lookup(id)
	if err != nil {
		return stream.Status{}, err
	}
	return s.Status(), nil
}

// SetEventCallback installs the named stream's lifecycle event callback.
func (e *Engine[S]) SetEventCallback(id StreamID, cb stream.EventCallback) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.lookup(id)
	if err != nil {
		return err
	}
	s.SetEventCallback(cb)
	return nil
}

// Abort stops the named stream and reports total played duration,
// including whatever remains buffered, in milliseconds.
func (e *Engine[S]) Abort(id StreamID) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.lookup(id)
	if err != nil {
		return 0, err
	}
	return s.Abort(), nil
}

// Restore reseeds the named stream's played counter from a millisecond
// value.
func (e *Engine[S]) Restore(id StreamID, ms int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.lookup(id)
	if err != nil {
		return err
	}
	s.Restore(ms)
	return nil
}

// Close stops the mixer goroutine, tears down every remaining stream, and
// closes the sink.
func (e *Engine[S]) Close() error {
	e.stopOnce.Do(func() {
		close(e.stop)
	})
	e.wg.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.slots {
		if e.slots[i].stream != nil {
			e.slots[i].stream.Remove()
			e.slots[i].stream = nil
		}
	}
	e.index = make(map[StreamID]int)
	return e.snk.Close()
}
