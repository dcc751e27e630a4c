// Package stream implements the per-input pipeline: a cache, an optional
// resampler bound ahead of it, gain, and the lifecycle/status surface the
// mixer and the transport layer drive.
package stream

import (
	"github.com/fluxmix/mixcore/pkg/audio"
	"github.com/fluxmix/mixcore/pkg/cache"
	"github.com/fluxmix/mixcore/pkg/resample"
)

// State is the coarse playback state reported by Status.
type State int

const (
	StatePlaying State = iota
	StatePaused
	StateEnded
)

// CacheStatus mirrors the cache's readiness for the mixer-visible status
// surface.
type CacheStatus int

const (
	CacheReady CacheStatus = iota
	CacheBuffering
)

// Status is a point-in-time snapshot of a stream's status keys.
type Status struct {
	State        State
	PlayedMs     int64
	CacheStatus  CacheStatus
	CacheFilling int
	CacheDelay   int
}

// EventKind identifies a mixer-emitted lifecycle event.
type EventKind int

const (
	EventBuffering EventKind = iota
	EventReady
	EventEnd
)

// Event is delivered to a stream's EventCallback.
type Event struct {
	Kind EventKind
}

// EventCallback receives lifecycle events as the mixer observes them.
type EventCallback func(Event)

// Stream binds one input source to the mixer through a cache and a
// resampler. Construct with NewPull or NewPush depending on whether the
// caller drives production by callback or by explicit Write calls.
type Stream[S audio.Sample] struct {
	outRate, outChannels int

	cache     *cache.Cache[S]
	resampler *resample.Linear[S]

	playing     bool
	endOfStream bool
	aborted     bool
	played      uint64
	volume      int
	buffering   bool
	eventCb     EventCallback

	// configuredDelay is the cache capacity requested at construction — the
	// static "how much buffer does this stream carry" value the mixer gates
	// buffering on, independent of the cache's live pending count.
	configuredDelay int
}

// NewPull builds callback → resampler → cache, where the cache pulls from
// the resampler (which in turn pulls from input) either on a dedicated
// producer thread or on demand, per mode.
func NewPull[S audio.Sample](inRate, inChannels, outRate, outChannels, capacityFrames int, mode cache.Mode, input resample.ReadFunc[S]) (*Stream[S], error) {
	rs, err := resample.Open[S](inRate, inChannels, outRate, outChannels, input, nil)
	if err != nil {
		return nil, err
	}

	cacheInput := func(dst []S, outFmt *audio.FormatDescriptor) (int, error) {
		return rs.Read(dst, len(dst)/outChannels, outFmt)
	}
	c, err := cache.Open[S](capacityFrames, outChannels, mode, cacheInput)
	if err != nil {
		return nil, err
	}

	return &Stream[S]{
		outRate:         outRate,
		outChannels:     outChannels,
		cache:           c,
		resampler:       rs,
		volume:          audio.VolumeMax,
		configuredDelay: capacityFrames,
	}, nil
}

// NewPush builds write → resampler → cache, where external code feeds
// samples by calling Write; the resampler forwards converted frames to the
// cache via its Write method bound as a WriteFunc.
func NewPush[S audio.Sample](inRate, inChannels, outRate, outChannels, capacityFrames int) (*Stream[S], error) {
	c, err := cache.Open[S](capacityFrames, outChannels, cache.OnDemand, nil)
	if err != nil {
		return nil, err
	}

	rs, err := resample.Open[S](inRate, inChannels, outRate, outChannels, nil, c.Write)
	if err != nil {
		c.Close()
		return nil, err
	}

	return &Stream[S]{
		outRate:         outRate,
		outChannels:     outChannels,
		cache:           c,
		resampler:       rs,
		volume:          audio.VolumeMax,
		configuredDelay: capacityFrames,
	}, nil
}

// Play marks the stream playing and re-arms cache production. This is the
// counterpart to a prior Pause or a Flush issued while paused.
func (s *Stream[S]) Play() {
	s.playing = true
	s.cache.Unlock()
}

// Pause marks the stream not-playing. Unlike Play, it does not touch the
// cache's input-lock: a paused-then-flushed stream keeps its lock held
// until the next Play, guaranteeing no samples enter while paused.
func (s *Stream[S]) Pause() {
	s.playing = false
}

// Flush clears the cache and resampler and zeros the played counter. If
// the stream was playing, production resumes immediately; otherwise the
// input-lock stays held until Play.
func (s *Stream[S]) Flush() {
	s.cache.Flush()
	s.resampler.Flush()
	s.played = 0
	if s.playing {
		s.cache.Unlock()
	}
}

// Write pushes frames into the resampler on a push-path stream. It is a
// no-op once the stream has been aborted.
func (s *Stream[S]) Write(src []S, frames int, format audio.FormatDescriptor) int {
	if s.aborted {
		return 0
	}
	return s.resampler.Write(src, frames, format)
}

// SetVolume clamps and sets the stream's 0..VolumeMax gain.
func (s *Stream[S]) SetVolume(v int) {
	switch {
	case v < 0:
		v = 0
	case v > audio.VolumeMax:
		v = audio.VolumeMax
	}
	s.volume = v
}

// Volume returns the stream's current gain.
func (s *Stream[S]) Volume() int {
	return s.volume
}

// SetCacheSize resizes the backing cache, rejecting a shrink below the
// current fill level.
func (s *Stream[S]) SetCacheSize(frames int) error {
	return s.cache.SetCapacity(frames)
}

// SetEventCallback installs the callback the mixer notifies of lifecycle
// events for this stream.
func (s *Stream[S]) SetEventCallback(cb EventCallback) {
	s.eventCb = cb
}

// ConfiguredDelay returns the cache frames requested when the stream was
// built, i.e. how much buffer it carries — not how much is pending right
// now. The mixer gates buffering events on this rather than on the live
// pending count, matching the original's `s->delay` (the requested cache
// size, set once at stream-add time).
func (s *Stream[S]) ConfiguredDelay() int {
	return s.configuredDelay
}

// Status reports the stream's current status keys.
func (s *Stream[S]) Status() Status {
	state := StatePaused
	switch {
	case s.endOfStream:
		state = StateEnded
	case s.playing:
		state = StatePlaying
	}

	cacheStatus := CacheReady
	cacheFilling := 100
	if s.configuredDelay > 0 {
		if s.buffering {
			cacheStatus = CacheBuffering
		}
		cacheFilling = s.cache.Filling()
	}

	return Status{
		State:        state,
		PlayedMs:     int64(s.played) * 1000 / int64(s.outRate),
		CacheStatus:  cacheStatus,
		CacheFilling: cacheFilling,
		CacheDelay:   s.cache.Delay(),
	}
}

// Abort stops further callback invocations and further Write acceptance,
// and reports the total played duration plus whatever remains buffered in
// the cache and resampler, in milliseconds.
func (s *Stream[S]) Abort() int64 {
	s.aborted = true
	s.playing = false
	s.cache.Lock()

	pending := uint64(s.cache.Delay() + s.resampler.Delay())
	total := s.played + pending
	return int64(total) * 1000 / int64(s.outRate)
}

// Restore reseeds the played counter from a millisecond value, typically
// used to resume a stream at a known playback position.
func (s *Stream[S]) Restore(ms int64) {
	s.played = uint64(ms) * uint64(s.outRate) / 1000
}

// Remove tears down the stream's cache and resampler. Called by the engine
// on explicit removal or engine close, or by the mixer once it has
// observed end-of-stream.
func (s *Stream[S]) Remove() {
	s.cache.Close()
	s.resampler.Close()
}

// --- mixer-facing accessors ---

// Playing reports whether the stream is currently eligible for mixing.
func (s *Stream[S]) Playing() bool { return s.playing }

// EndOfStream reports whether the mixer has already observed a terminal
// producer failure on this stream.
func (s *Stream[S]) EndOfStream() bool { return s.endOfStream }

// ReadCache drains up to maxFrames frames from the stream's cache.
func (s *Stream[S]) ReadCache(dst []S, maxFrames int) (int, audio.FormatDescriptor, error) {
	return s.cache.Read(dst, maxFrames)
}

// AddPlayed advances the played-frame counter, called by the mixer after a
// successful contribution to the output block.
func (s *Stream[S]) AddPlayed(frames int) {
	s.played += uint64(frames)
}

// MarkBuffering transitions the stream into the buffering state and emits
// an EventBuffering notification exactly once per edge.
func (s *Stream[S]) MarkBuffering() {
	if !s.buffering {
		s.buffering = true
		s.notify(EventBuffering)
	}
}

// MarkReady clears the buffering state and emits an EventReady
// notification exactly once per edge.
func (s *Stream[S]) MarkReady() {
	if s.buffering {
		s.buffering = false
		s.notify(EventReady)
	}
}

// MarkEnded records terminal end-of-stream and emits EventEnd.
func (s *Stream[S]) MarkEnded() {
	s.endOfStream = true
	s.notify(EventEnd)
}

func (s *Stream[S]) notify(kind EventKind) {
	if s.eventCb != nil {
		s.eventCb(Event{Kind: kind})
	}
}
