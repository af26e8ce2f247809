// Package monitor runs the sampling loop: while playback is active it
// captures a frame every interval, compares it with the previous capture
// and sends frames that moved (and the first frame of each media) to the
// analyzer. Abnormal verdicts land in a storage.FindingLog.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/bdougie/motionwatch/internal/analyzer"
	"github.com/bdougie/motionwatch/internal/metrics"
	"github.com/bdougie/motionwatch/internal/models"
	"github.com/bdougie/motionwatch/internal/motion"
	"github.com/bdougie/motionwatch/internal/player"
	"github.com/bdougie/motionwatch/internal/schedule"
	"github.com/bdougie/motionwatch/internal/storage"
)

// DecisionIdle is reported by Tick when the session is not running.
const DecisionIdle = "idle"

// FrameSource captures the frame currently shown by playback.
type FrameSource interface {
	Snapshot(ctx context.Context) (models.Snapshot, error)
}

// Analyzer classifies a snapshot.
type Analyzer interface {
	Invoke(ctx context.Context, snap models.Snapshot, prompt string) (string, error)
}

// FindingSink receives a copy of every stored finding.
type FindingSink interface {
	Submit(f models.Finding) error
}

// Options configures a Session. Zero values fall back to defaults.
type Options struct {
	Interval        time.Duration
	Threshold       float64
	Stride          int
	Prompt          string
	AnalysisTimeout time.Duration

	// MaxInFlight caps concurrent analyzer calls; triggers over the cap are
	// dropped. 0 disables the cap.
	MaxInFlight int
	// MaxPerMinute caps analyzer calls per minute. 0 disables the cap.
	MaxPerMinute int

	Scheduler schedule.Scheduler
	Sink      FindingSink
	OnFinding func(models.Finding)
	OnPending func(pending int)
	Logger    *slog.Logger
}

// TickResult reports what a single tick decided.
type TickResult struct {
	Decision string
	Score    float64
}

// Session owns the sampling state of one playback surface.
type Session struct {
	source   FrameSource
	analyzer Analyzer
	log      *storage.FindingLog
	opts     Options
	logger   *slog.Logger

	sem     *semaphore.Weighted
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// serializes ticks
	tickMu sync.Mutex

	mu        sync.Mutex
	previous  *models.Snapshot
	running   bool
	task      schedule.Task
	sessionID string
	media     string
	pending   int
}

// NewSession returns an idle Session recording into log.
func NewSession(source FrameSource, a Analyzer, log *storage.FindingLog, opts Options) *Session {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.Threshold < 0 {
		opts.Threshold = 15
	}
	if opts.Stride <= 0 {
		opts.Stride = motion.DefaultStride
	}
	if opts.AnalysisTimeout <= 0 {
		opts.AnalysisTimeout = 60 * time.Second
	}
	if opts.Scheduler == nil {
		opts.Scheduler = schedule.Ticker{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		source:    source,
		analyzer:  a,
		log:       log,
		opts:      opts,
		logger:    opts.Logger.With("component", "monitor"),
		ctx:       ctx,
		cancel:    cancel,
		sessionID: uuid.NewString(),
	}
	if opts.MaxInFlight > 0 {
		s.sem = semaphore.NewWeighted(int64(opts.MaxInFlight))
	}
	if opts.MaxPerMinute > 0 {
		s.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.MaxPerMinute)), opts.MaxPerMinute)
	}
	return s
}

// Start schedules periodic ticks. Calling Start on a running session does
// nothing.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.task = s.opts.Scheduler.Every(s.opts.Interval, func() { s.Tick(s.ctx) })
	s.logger.Info("sampling started", "media", s.media, "interval", s.opts.Interval)
}

// Stop cancels the periodic task. The previous snapshot is kept so that
// resuming compares against the last frame seen. In-flight analyses are
// not cancelled and still record their findings.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	if s.task != nil {
		s.task.Stop()
		s.task = nil
	}
	s.logger.Info("sampling stopped", "media", s.media)
}

// Reset prepares the session for newly loaded media: the log is cleared,
// the baseline is dropped and a new session id is issued. Analyses still
// in flight for the old media are discarded when they complete.
func (s *Session) Reset(media string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.Clear()
	s.previous = nil
	s.media = media
	s.sessionID = uuid.NewString()
	s.logger.Info("session reset", "media", media, "session_id", s.sessionID)
}

// Clear empties the finding log and drops the baseline frame.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.Clear()
	s.previous = nil
}

// Tick captures one frame and applies the gating decision.
func (s *Session) Tick(ctx context.Context) TickResult {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return TickResult{Decision: DecisionIdle}
	}
	id := s.sessionID
	s.mu.Unlock()

	snap, err := s.source.Snapshot(ctx)
	if err != nil {
		s.logger.Warn("frame capture failed", "error", err)
		metrics.TicksTotal.WithLabelValues(metrics.DecisionNoFrame).Inc()
		return TickResult{Decision: metrics.DecisionNoFrame}
	}

	s.mu.Lock()
	if !s.running || id != s.sessionID {
		// stopped or reloaded during capture
		s.mu.Unlock()
		return TickResult{Decision: DecisionIdle}
	}
	result := TickResult{Decision: metrics.DecisionBootstrap}
	if s.previous != nil {
		result.Score = motion.ScoreStride(s.previous.Image, snap.Image, s.opts.Stride)
		metrics.MotionScore.Observe(result.Score)
		if result.Score > s.opts.Threshold {
			result.Decision = metrics.DecisionMotion
		} else {
			result.Decision = metrics.DecisionSkipped
		}
	}
	s.previous = &snap
	started := false
	if result.Decision != metrics.DecisionSkipped {
		result.Decision, started = s.dispatchLocked(result.Decision)
	}
	pending := s.pending
	media := s.media
	s.mu.Unlock()

	if started {
		s.notifyPending(pending)
		go s.analyze(snap, id, media)
	}

	metrics.TicksTotal.WithLabelValues(result.Decision).Inc()
	s.logger.Debug("tick",
		"position", models.FormatTimestamp(snap.Position),
		"score", result.Score,
		"decision", result.Decision,
	)
	return result
}

// dispatchLocked reserves an analysis slot unless the in-flight cap or the
// rate budget refuses it. It must be called with s.mu held so that Stop and
// Wait observe the reservation.
func (s *Session) dispatchLocked(decision string) (string, bool) {
	if s.sem != nil && !s.sem.TryAcquire(1) {
		return metrics.DecisionBusy, false
	}
	if s.limiter != nil && !s.limiter.Allow() {
		if s.sem != nil {
			s.sem.Release(1)
		}
		return metrics.DecisionThrottled, false
	}

	s.wg.Add(1)
	s.pending++
	return decision, true
}

func (s *Session) analyze(snap models.Snapshot, id, media string) {
	defer s.wg.Done()
	defer s.donePending()
	if s.sem != nil {
		defer s.sem.Release(1)
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.opts.AnalysisTimeout)
	defer cancel()

	timestamp := models.FormatTimestamp(snap.Position)
	start := time.Now()
	verdict, err := s.analyzer.Invoke(ctx, snap, s.opts.Prompt)
	metrics.AnalysisDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		outcome := classify(err)
		metrics.AnalysesTotal.WithLabelValues(outcome).Inc()
		s.logger.Warn("analysis failed", "timestamp", timestamp, "outcome", outcome, "error", err)
		return
	}

	f := models.Finding{
		Timestamp:  timestamp,
		Analysis:   verdict,
		SessionID:  id,
		Media:      media,
		Position:   snap.Position,
		DetectedAt: time.Now(),
		Signature:  motion.Signature(snap.Image, motion.SignatureGrid),
	}

	s.mu.Lock()
	if id != s.sessionID {
		s.mu.Unlock()
		metrics.AnalysesTotal.WithLabelValues(metrics.OutcomeStale).Inc()
		s.logger.Debug("discarding verdict for previous media", "timestamp", timestamp, "media", media)
		return
	}
	stored := s.log.Record(f)
	s.mu.Unlock()

	if !stored {
		metrics.AnalysesTotal.WithLabelValues(metrics.OutcomeNormal).Inc()
		return
	}

	metrics.AnalysesTotal.WithLabelValues(metrics.OutcomeAbnormal).Inc()
	metrics.FindingsTotal.Inc()
	s.logger.Info("abnormal event", "timestamp", timestamp, "analysis", f.Analysis)

	if s.opts.OnFinding != nil {
		s.opts.OnFinding(f)
	}
	if s.opts.Sink != nil {
		if err := s.opts.Sink.Submit(f); err != nil {
			s.logger.Debug("finding not archived", "timestamp", timestamp, "error", err)
		}
	}
}

func classify(err error) string {
	var transportErr *analyzer.TransportError
	var malformedErr *analyzer.MalformedResponseError
	switch {
	case errors.As(err, &transportErr):
		return metrics.OutcomeTransport
	case errors.As(err, &malformedErr):
		return metrics.OutcomeMalformed
	default:
		return metrics.OutcomeError
	}
}

func (s *Session) donePending() {
	s.mu.Lock()
	s.pending--
	n := s.pending
	s.mu.Unlock()
	s.notifyPending(n)
}

func (s *Session) notifyPending(n int) {
	metrics.AnalysesInFlight.Set(float64(n))
	if s.opts.OnPending != nil {
		s.opts.OnPending(n)
	}
}

// OnPlayback maps player events onto the session lifecycle.
func (s *Session) OnPlayback(e player.Event) {
	switch e.Type {
	case player.EventLoad:
		s.Reset(e.Media)
	case player.EventPlay:
		s.Start()
	case player.EventPause, player.EventEnded:
		s.Stop()
	}
}

// Wait blocks until every in-flight analysis has completed.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Close stops sampling, waits for a tick already capturing and for
// in-flight analyses, and releases the session context.
func (s *Session) Close() {
	s.Stop()
	s.tickMu.Lock()
	s.tickMu.Unlock()
	s.Wait()
	s.cancel()
}

// Pending returns the number of analyses in flight.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Running reports whether ticks are scheduled.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SessionID identifies the currently loaded media session.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// HasBaseline reports whether a previous snapshot is held.
func (s *Session) HasBaseline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.previous != nil
}

// Previous returns the baseline snapshot, if any.
func (s *Session) Previous() (models.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.previous == nil {
		return models.Snapshot{}, false
	}
	return *s.previous, true
}

// Log returns the finding log the session records into.
func (s *Session) Log() *storage.FindingLog {
	return s.log
}
