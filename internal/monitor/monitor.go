// Package monitor runs the polling loop that samples an audio source, feeds
// the silence detector and dispatches the resulting events to listeners.
package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-silencewatch/internal/audio"
	"github.com/oszuidwest/zwfm-silencewatch/internal/config"
	"github.com/oszuidwest/zwfm-silencewatch/internal/silence"
	"github.com/oszuidwest/zwfm-silencewatch/internal/types"
	"github.com/oszuidwest/zwfm-silencewatch/internal/util"
)

// Sentinel errors for monitor operations.
var (
	ErrNoSource       = errors.New("no audio source available")
	ErrAlreadyRunning = errors.New("monitor already running")
)

// Listener receives detector events. Calls are made synchronously from the
// polling loop, so implementations must not block.
type Listener interface {
	SilenceDetected(s silence.Silence)
	SilenceAlert(a silence.Alert)
}

// StateListener is optionally implemented by listeners that track the
// monitor lifecycle.
type StateListener interface {
	MonitorStateChanged(state types.MonitorState)
}

// LevelListener is optionally implemented by listeners that want every update.
type LevelListener interface {
	LevelUpdated(u silence.Update)
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock replaces the wall clock used by the polling loop.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithBufferSize sets how many samples are pulled per tick.
func WithBufferSize(n int) Option {
	return func(m *Monitor) { m.buf = make([]float64, n) }
}

// Monitor owns the polling loop. It is safe for concurrent use.
type Monitor struct {
	cfg      *config.Config
	detector *silence.Detector
	peak     *audio.PeakHolder
	now      func() time.Time

	// tickMu serializes ticks and owns buf.
	tickMu sync.Mutex
	buf    []float64

	mu         sync.RWMutex
	listeners  []Listener
	source     audio.Source
	sourceName string
	state      types.MonitorState
	cancel     context.CancelFunc
	done       chan struct{}
	startTime  time.Time
	ticks      uint64
	last       silence.Update
	lastErr    string
}

// New creates a stopped monitor without a source.
func New(cfg *config.Config, opts ...Option) *Monitor {
	m := &Monitor{
		cfg:      cfg,
		detector: silence.NewDetector(),
		peak:     audio.NewPeakHolder(),
		now:      time.Now,
		buf:      make([]float64, audio.DefaultBufferSize),
		state:    types.StateStopped,
		last:     silence.Update{LevelDB: audio.SilenceFloorDB, State: silence.NoRun},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Detector exposes the silence log for queries.
func (m *Monitor) Detector() *silence.Detector {
	return m.detector
}

// AddListener registers l for detector events.
func (m *Monitor) AddListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Initialize attaches the audio source. A nil source leaves the monitor
// unable to start and returns ErrNoSource.
func (m *Monitor) Initialize(src audio.Source, name string) error {
	if src == nil {
		return ErrNoSource
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.source = src
	m.sourceName = name
	m.lastErr = ""
	return nil
}

// SwapSource replaces the audio source and closes the previous one. It is
// safe while the monitor is running; the next tick reads from src.
func (m *Monitor) SwapSource(src audio.Source, name string) error {
	if src == nil {
		return ErrNoSource
	}
	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	m.mu.Lock()
	old := m.source
	m.source = src
	m.sourceName = name
	m.lastErr = ""
	m.mu.Unlock()

	slog.Info("audio source changed", "source", name)
	if old != nil && old != src {
		return old.Close()
	}
	return nil
}

// Start begins polling at the configured interval.
func (m *Monitor) Start() error {
	m.mu.Lock()
	if m.source == nil {
		m.mu.Unlock()
		return ErrNoSource
	}
	if m.state != types.StateStopped {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.state = types.StateRunning
	m.startTime = m.now()
	m.peak.Reset()
	interval := m.interval()
	name := m.sourceName
	go m.run(ctx, m.done, interval)
	m.mu.Unlock()

	slog.Info("silence monitor started", "source", name, "interval", interval)
	m.emitState(types.StateRunning)
	return nil
}

// Stop halts polling. The open run is flushed before the timer is released.
// Stopping a stopped monitor is a no-op.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if m.state != types.StateRunning {
		m.mu.Unlock()
		return nil
	}
	m.state = types.StateStopping
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	<-done

	m.mu.Lock()
	m.state = types.StateStopped
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()

	slog.Info("silence monitor stopped")
	m.emitState(types.StateStopped)
	return nil
}

// Close stops the monitor and closes its source.
func (m *Monitor) Close() error {
	err := m.Stop()
	m.mu.Lock()
	src := m.source
	m.source = nil
	m.mu.Unlock()
	if src != nil {
		err = errors.Join(err, src.Close())
	}
	return err
}

// Reset clears the silence log and any open run.
func (m *Monitor) Reset() {
	m.detector.Reset()
	m.peak.Reset()
	slog.Info("silence log reset")
}

func (m *Monitor) run(ctx context.Context, done chan struct{}, interval time.Duration) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.flush(m.now())
			return
		case <-ticker.C:
			m.Tick(m.now())
			if next := m.interval(); next != interval {
				slog.Info("polling interval changed", "from", interval, "to", next)
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

// Tick pulls one buffer from the source and folds its level into the detector.
func (m *Monitor) Tick(now time.Time) silence.Update {
	upd, _ := m.tick(now)
	return upd
}

// tick is Tick that also reports the source error. A source at end of
// stream leaves the detector untouched and returns io.EOF; any other error
// reads as silence.
func (m *Monitor) tick(now time.Time) (silence.Update, error) {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	m.mu.RLock()
	src := m.source
	m.mu.RUnlock()

	n := 0
	var pullErr error
	if src != nil {
		n, pullErr = src.Pull(m.buf)
		if pullErr != nil {
			n = 0
			m.recordSourceError(pullErr)
			if errors.Is(pullErr, io.EOF) {
				m.mu.RLock()
				last := m.last
				m.mu.RUnlock()
				return last, pullErr
			}
		}
	}

	level := audio.LevelDB(m.buf[:n])
	snap := m.cfg.Snapshot()
	upd := m.detector.Update(level, snap.Silence(), now)
	m.peak.Update(level, now)

	m.mu.Lock()
	m.last = upd
	m.ticks++
	m.mu.Unlock()

	m.emitLevel(upd)
	m.emit(upd)
	return upd, pullErr
}

// Drain ticks on a virtual clock from start, one configured interval per
// buffer, until the source reports io.EOF or fails, then flushes the open
// run. It returns the amount of audio processed and any read error other
// than io.EOF. The monitor must be stopped.
func (m *Monitor) Drain(start time.Time) (time.Duration, error) {
	m.mu.RLock()
	state, src := m.state, m.source
	m.mu.RUnlock()
	if src == nil {
		return 0, ErrNoSource
	}
	if state != types.StateStopped {
		return 0, ErrAlreadyRunning
	}

	step := m.interval()
	now := start
	var err error
	for {
		if _, err = m.tick(now); err != nil {
			break
		}
		now = now.Add(step)
	}
	m.flush(now)
	if errors.Is(err, io.EOF) {
		err = nil
	}
	return now.Sub(start), err
}

func (m *Monitor) flush(now time.Time) {
	snap := m.cfg.Snapshot()
	if s := m.detector.Flush(snap.Silence(), now); s != nil {
		slog.Info("open silence flushed on stop", "duration", util.FormatDuration(s.DurationMs))
		m.emit(silence.Update{Silence: s, State: silence.NoRun})
	}
}

func (m *Monitor) recordSourceError(err error) {
	m.mu.Lock()
	changed := m.lastErr != err.Error()
	m.lastErr = err.Error()
	m.mu.Unlock()
	if changed && !errors.Is(err, io.EOF) {
		slog.Warn("audio source read failed", "error", err)
	}
}

func (m *Monitor) interval() time.Duration {
	snap := m.cfg.Snapshot()
	return snap.Interval()
}

func (m *Monitor) snapshotListeners() []Listener {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Listener(nil), m.listeners...)
}

func (m *Monitor) emit(upd silence.Update) {
	for _, l := range m.snapshotListeners() {
		if upd.Alert != nil {
			l.SilenceAlert(*upd.Alert)
		}
		if upd.Silence != nil {
			l.SilenceDetected(*upd.Silence)
		}
	}
}

func (m *Monitor) emitLevel(upd silence.Update) {
	for _, l := range m.snapshotListeners() {
		if ll, ok := l.(LevelListener); ok {
			ll.LevelUpdated(upd)
		}
	}
}

func (m *Monitor) emitState(state types.MonitorState) {
	for _, l := range m.snapshotListeners() {
		if sl, ok := l.(StateListener); ok {
			sl.MonitorStateChanged(state)
		}
	}
}

// State returns the lifecycle state.
func (m *Monitor) State() types.MonitorState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Status returns a summary of the monitor's operational state.
func (m *Monitor) Status() types.MonitorStatus {
	snap := m.cfg.Snapshot()
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := types.MonitorStatus{
		State:      m.state,
		Source:     m.sourceName,
		LastError:  m.lastErr,
		Ticks:      m.ticks,
		IntervalMs: snap.SilenceIntervalMs,
	}
	if m.state == types.StateRunning {
		status.Uptime = util.FormatDuration(m.now().Sub(m.startTime).Milliseconds())
	}
	return status
}

// Levels returns the latest loudness reading and open run.
func (m *Monitor) Levels() types.Levels {
	m.mu.RLock()
	last := m.last
	m.mu.RUnlock()

	levels := types.Levels{
		LevelDB: last.LevelDB,
		PeakDB:  m.peak.Held(),
		Silent:  last.Silent,
	}
	if run, ok := m.detector.CurrentRun(); ok {
		levels.Run = types.RunStatus{
			Open:       true,
			StartTime:  run.StartTime,
			DurationMs: run.DurationMs(m.now()),
			AvgDB:      run.AvgDB,
			AlertSent:  run.AlertSent,
		}
	}
	return levels
}
