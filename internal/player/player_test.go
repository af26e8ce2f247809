package player

import (
	"context"
	"errors"
	"image"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/motionwatch/internal/extractor"
)

type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	pending func()
	stopped int
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) func() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = f
	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.stopped++
		c.pending = nil
		return true
	}
}

// fireEnd runs the end-of-media timer if one is armed.
func (c *fakeClock) fireEnd() {
	c.mu.Lock()
	f := c.pending
	c.pending = nil
	c.mu.Unlock()
	if f != nil {
		f()
	}
}

type posDecoder struct {
	mu  sync.Mutex
	got []time.Duration
	err error
}

func (d *posDecoder) FrameAt(ctx context.Context, at time.Duration) (*image.RGBA, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.got = append(d.got, at)
	if d.err != nil {
		return nil, d.err
	}
	return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
}

func recordEvents(p *Player) *[]Event {
	var events []Event
	p.Subscribe(func(e Event) { events = append(events, e) })
	return &events
}

func types(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func TestPlayer_Lifecycle(t *testing.T) {
	clock := newFakeClock()
	p := NewWithClock(clock)
	events := recordEvents(p)

	p.Play() // nothing loaded
	assert.Empty(t, *events)

	p.Load(Media{Name: "ward", Duration: 10 * time.Second, Decoder: &posDecoder{}})
	p.Play()
	p.Play() // already playing
	assert.True(t, p.Playing())

	clock.Advance(3 * time.Second)
	assert.Equal(t, 3*time.Second, p.Position())

	p.Pause()
	clock.Advance(time.Hour)
	assert.Equal(t, 3*time.Second, p.Position())
	assert.Equal(t, 1, clock.stopped)

	p.Play()
	clock.Advance(7 * time.Second)
	clock.fireEnd()
	assert.False(t, p.Playing())
	assert.Equal(t, 10*time.Second, p.Position())

	assert.Equal(t, []EventType{EventLoad, EventPlay, EventPause, EventPlay, EventEnded}, types(*events))
	assert.Equal(t, 3*time.Second, (*events)[3].Position)
}

func TestPlayer_PlayAfterEndRestarts(t *testing.T) {
	clock := newFakeClock()
	p := NewWithClock(clock)
	p.Load(Media{Name: "ward", Duration: 2 * time.Second, Decoder: &posDecoder{}})
	p.Play()
	clock.Advance(2 * time.Second)
	clock.fireEnd()

	p.Play()
	assert.Equal(t, time.Duration(0), p.Position())
}

func TestPlayer_LoadPausesAndRewinds(t *testing.T) {
	clock := newFakeClock()
	p := NewWithClock(clock)
	events := recordEvents(p)

	p.Load(Media{Name: "a", Duration: time.Minute, Decoder: &posDecoder{}})
	p.Play()
	clock.Advance(5 * time.Second)
	p.Load(Media{Name: "b", Duration: time.Minute, Decoder: &posDecoder{}})

	assert.False(t, p.Playing())
	assert.Equal(t, "b", p.Media())
	assert.Equal(t, time.Duration(0), p.Position())
	assert.Equal(t, []EventType{EventLoad, EventPlay, EventPause, EventLoad}, types(*events))
	assert.Equal(t, "a", (*events)[2].Media)
}

func TestPlayer_Snapshot(t *testing.T) {
	clock := newFakeClock()
	p := NewWithClock(clock)

	_, err := p.Snapshot(context.Background())
	assert.Error(t, err)

	dec := &posDecoder{}
	p.Load(Media{Name: "ward", Duration: time.Minute, Decoder: dec})
	p.Play()
	clock.Advance(1500 * time.Millisecond)

	snap, err := p.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, snap.Position)
	assert.Equal(t, clock.Now(), snap.CapturedAt)
	assert.Equal(t, []time.Duration{1500 * time.Millisecond}, dec.got)

	dec.err = errors.New("decode failed")
	_, err = p.Snapshot(context.Background())
	assert.ErrorContains(t, err, "0:01")
}

func TestOpenVideo(t *testing.T) {
	grabber := &extractor.Grabber{Width: 4, Height: 4, Run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte("30.0"), nil
	}}
	path := t.TempDir() + "/ward-camera.mp4"
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	m, err := OpenVideo(context.Background(), path, grabber)
	require.NoError(t, err)
	assert.Equal(t, "ward-camera", m.Name)
	assert.Equal(t, 30*time.Second, m.Duration)
}

func TestEventTypeString(t *testing.T) {
	assert.Equal(t, "ended", EventEnded.String())
	assert.Equal(t, "unknown", EventType(42).String())
}
