// Package player models a playback handle over a media file: a clock that
// advances while playing, play/pause/end events, and frame capture at the
// current position.
package player

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bdougie/motionwatch/internal/extractor"
	"github.com/bdougie/motionwatch/internal/models"
)

// EventType identifies a playback transition.
type EventType int

const (
	EventLoad EventType = iota
	EventPlay
	EventPause
	EventEnded
)

func (e EventType) String() string {
	switch e {
	case EventLoad:
		return "load"
	case EventPlay:
		return "play"
	case EventPause:
		return "pause"
	case EventEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Event is delivered to listeners after each transition.
type Event struct {
	Type     EventType
	Media    string
	Position time.Duration
}

// Decoder produces the frame shown at a playback position.
type Decoder interface {
	FrameAt(ctx context.Context, at time.Duration) (*image.RGBA, error)
}

// Media is a loaded media item.
type Media struct {
	Name     string
	Duration time.Duration
	Decoder  Decoder
}

type videoDecoder struct {
	path    string
	grabber *extractor.Grabber
}

func (d videoDecoder) FrameAt(ctx context.Context, at time.Duration) (*image.RGBA, error) {
	return d.grabber.GrabFrame(ctx, d.path, at)
}

// OpenVideo probes videoPath and returns it as Media decoded by grabber.
func OpenVideo(ctx context.Context, videoPath string, grabber *extractor.Grabber) (Media, error) {
	duration, err := extractor.Probe(ctx, grabber.Run, videoPath)
	if err != nil {
		return Media{}, err
	}
	return Media{
		Name:     mediaName(videoPath),
		Duration: duration,
		Decoder:  videoDecoder{path: videoPath, grabber: grabber},
	}, nil
}

type stillsDecoder struct{ stills *extractor.Stills }

func (d stillsDecoder) FrameAt(ctx context.Context, at time.Duration) (*image.RGBA, error) {
	return d.stills.FrameAt(at)
}

// OpenStills wraps a directory of extracted frames as Media.
func OpenStills(dir string, interval time.Duration, width, height int) (Media, error) {
	stills, err := extractor.OpenStills(dir, interval, width, height)
	if err != nil {
		return Media{}, err
	}
	return Media{
		Name:     filepath.Base(filepath.Clean(dir)),
		Duration: stills.Duration(),
		Decoder:  stillsDecoder{stills: stills},
	}, nil
}

func mediaName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// Clock abstracts time for the playback position and end-of-media timer.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Player tracks playback of one media item at a time. It is safe for
// concurrent use; listeners run on the goroutine that caused the event and
// must not call back into the Player.
type Player struct {
	clock Clock

	mu        sync.Mutex
	media     *Media
	playing   bool
	offset    time.Duration // position when playback last started or stopped
	startedAt time.Time
	stopEnd   func() bool
	listeners []func(Event)
}

// New returns a Player on the wall clock.
func New() *Player { return NewWithClock(realClock{}) }

func NewWithClock(clock Clock) *Player {
	return &Player{clock: clock}
}

// Subscribe registers fn for all subsequent events.
func (p *Player) Subscribe(fn func(Event)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Load pauses any current playback and replaces the media, rewinding to 0.
func (p *Player) Load(m Media) {
	p.mu.Lock()
	var events []Event
	if p.playing {
		events = append(events, p.pauseLocked())
	}
	p.media = &m
	p.offset = 0
	events = append(events, Event{Type: EventLoad, Media: m.Name})
	p.mu.Unlock()
	p.emit(events...)
}

// Play starts or resumes playback. Playing finished media restarts it.
// It is a no-op when nothing is loaded or playback is already running.
func (p *Player) Play() {
	p.mu.Lock()
	if p.media == nil || p.playing {
		p.mu.Unlock()
		return
	}
	if p.offset >= p.media.Duration {
		p.offset = 0
	}
	p.playing = true
	p.startedAt = p.clock.Now()
	p.stopEnd = p.clock.AfterFunc(p.media.Duration-p.offset, p.end)
	ev := Event{Type: EventPlay, Media: p.media.Name, Position: p.offset}
	p.mu.Unlock()
	p.emit(ev)
}

// Pause stops playback at the current position.
func (p *Player) Pause() {
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		return
	}
	ev := p.pauseLocked()
	p.mu.Unlock()
	p.emit(ev)
}

func (p *Player) pauseLocked() Event {
	p.offset = p.positionLocked()
	p.playing = false
	if p.stopEnd != nil {
		p.stopEnd()
		p.stopEnd = nil
	}
	return Event{Type: EventPause, Media: p.media.Name, Position: p.offset}
}

func (p *Player) end() {
	p.mu.Lock()
	if !p.playing || p.media == nil {
		p.mu.Unlock()
		return
	}
	p.playing = false
	p.stopEnd = nil
	p.offset = p.media.Duration
	ev := Event{Type: EventEnded, Media: p.media.Name, Position: p.offset}
	p.mu.Unlock()
	p.emit(ev)
}

func (p *Player) emit(events ...Event) {
	p.mu.Lock()
	listeners := append([]func(Event){}, p.listeners...)
	p.mu.Unlock()
	for _, ev := range events {
		for _, fn := range listeners {
			fn(ev)
		}
	}
}

// Playing reports whether playback is running.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Media returns the loaded media name, or "" when nothing is loaded.
func (p *Player) Media() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.media == nil {
		return ""
	}
	return p.media.Name
}

// Position returns the current playback position.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

func (p *Player) positionLocked() time.Duration {
	pos := p.offset
	if p.playing {
		pos += p.clock.Now().Sub(p.startedAt)
	}
	if p.media != nil && pos > p.media.Duration {
		pos = p.media.Duration
	}
	return pos
}

// Snapshot captures the frame at the current position.
func (p *Player) Snapshot(ctx context.Context) (models.Snapshot, error) {
	p.mu.Lock()
	if p.media == nil {
		p.mu.Unlock()
		return models.Snapshot{}, fmt.Errorf("no media loaded")
	}
	decoder := p.media.Decoder
	pos := p.positionLocked()
	p.mu.Unlock()

	img, err := decoder.FrameAt(ctx, pos)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to capture frame at %s: %w", models.FormatTimestamp(pos), err)
	}
	return models.Snapshot{Image: img, Position: pos, CapturedAt: p.clock.Now()}, nil
}
