package silence

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Detector accumulates silence runs from loudness samples and keeps the log
// of finalized silences. It is safe for concurrent use.
type Detector struct {
	mu    sync.Mutex
	run   *Run
	log   []Silence
	newID func() string
}

// NewDetector creates a detector with an empty log.
func NewDetector() *Detector {
	return &Detector{newID: uuid.NewString}
}

// Update folds one loudness sample taken at now into the detector.
// cfg is read per call, so setting changes apply to the next sample without
// touching the open run or recorded silences.
func (d *Detector) Update(levelDB float64, cfg Config, now time.Time) Update {
	d.mu.Lock()
	defer d.mu.Unlock()

	upd := Update{
		LevelDB: levelDB,
		Silent:  levelDB < cfg.ThresholdDB,
	}

	switch {
	case upd.Silent && d.run == nil:
		d.run = &Run{StartTime: now, AvgDB: levelDB, Samples: 1}
	case upd.Silent:
		n := float64(d.run.Samples)
		d.run.AvgDB = (d.run.AvgDB*n + levelDB) / (n + 1)
		d.run.Samples++
		upd.Alert = checkAlert(d.run, cfg, now)
	case d.run != nil:
		upd.Silence = d.finalizeLocked(cfg, now)
	}

	upd.State = d.stateLocked()
	if d.run != nil {
		run := *d.run
		upd.Run = &run
	}
	return upd
}

// Flush closes any open run at now. It returns the finalized silence when the
// run was long enough to be recorded, nil otherwise.
func (d *Detector) Flush(cfg Config, now time.Time) *Silence {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.run == nil {
		return nil
	}
	return d.finalizeLocked(cfg, now)
}

// State returns the accumulator state.
func (d *Detector) State() RunState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stateLocked()
}

// CurrentRun returns a copy of the open run, if any.
func (d *Detector) CurrentRun() (Run, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.run == nil {
		return Run{}, false
	}
	return *d.run, true
}

// Reset discards the open run and clears the log.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.run = nil
	d.log = nil
}

func (d *Detector) stateLocked() RunState {
	if d.run == nil {
		return NoRun
	}
	return OpenRun
}

// finalizeLocked ends the open run. Runs shorter than the minimum duration
// are dropped without a trace.
func (d *Detector) finalizeLocked(cfg Config, now time.Time) *Silence {
	run := d.run
	d.run = nil

	duration := run.DurationMs(now)
	if duration < cfg.MinDurationMs {
		return nil
	}

	s := Silence{
		ID:         d.newID(),
		StartTime:  run.StartTime,
		EndTime:    now,
		DurationMs: duration,
		AvgDB:      run.AvgDB,
		Category:   Classify(duration, cfg.NaturalMaxMs),
		AlertSent:  run.AlertSent,
	}
	if cfg.Assess {
		a := Assess(duration, run.AvgDB, d.log, cfg)
		s.Assessment = &a
	}

	d.log = append(d.log, s)
	return &s
}
