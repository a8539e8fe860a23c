// Package report builds silence summaries and archives them on a schedule.
package report

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/oszuidwest/zwfm-silencewatch/internal/silence"
	"github.com/oszuidwest/zwfm-silencewatch/internal/util"
)

// Source provides the data a report summarizes. *silence.Detector
// satisfies it.
type Source interface {
	Statistics() silence.Statistics
	Unnatural() []silence.Silence
}

// Report is a point-in-time summary of the silence log.
type Report struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Station     string             `json:"station"`
	Statistics  silence.Statistics `json:"statistics"`
	Unnatural   []silence.Silence  `json:"unnatural_silences"`
}

// Build summarizes src as of now.
func Build(src Source, station string, now time.Time) *Report {
	unnatural := src.Unnatural()
	if unnatural == nil {
		unnatural = []silence.Silence{}
	}
	return &Report{
		GeneratedAt: now.UTC(),
		Station:     station,
		Statistics:  src.Statistics(),
		Unnatural:   unnatural,
	}
}

// JSON returns the indented JSON encoding of the report.
func (r *Report) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, util.WrapError("marshal report", err)
	}
	return data, nil
}

// Key returns the object key the report is archived under.
func (r *Report) Key(prefix string) string {
	ts := r.GeneratedAt.UTC()
	return path.Join(strings.Trim(prefix, "/"), ts.Format(time.DateOnly),
		fmt.Sprintf("silence-report-%s.json", ts.Format("20060102T150405Z")))
}

// Subject returns the email subject for the report.
func (r *Report) Subject() string {
	return fmt.Sprintf("[REPORT] Silence summary - %s", r.Station)
}

// Text renders the report as a plain-text email body.
func (r *Report) Text() string {
	var b strings.Builder
	s := r.Statistics
	fmt.Fprintf(&b, "Silence report for %s\n", r.Station)
	fmt.Fprintf(&b, "Generated: %s\n\n", util.FormatTime(r.GeneratedAt))
	fmt.Fprintf(&b, "Total silences:   %d\n", s.Total)
	fmt.Fprintf(&b, "Natural:          %d\n", s.Natural)
	fmt.Fprintf(&b, "Unnatural:        %d\n", s.Unnatural)
	fmt.Fprintf(&b, "Alerts sent:      %d\n", s.AlertsSent)
	fmt.Fprintf(&b, "Average duration: %s\n", util.FormatDuration(s.AvgDurationMs))
	fmt.Fprintf(&b, "Total duration:   %s\n", util.FormatDuration(s.TotalDurationMs))

	if len(r.Unnatural) > 0 {
		b.WriteString("\nUnnatural silences:\n")
		for _, u := range r.Unnatural {
			fmt.Fprintf(&b, "- %s  %s  %.1f dB\n",
				util.FormatTime(u.StartTime), util.FormatDuration(u.DurationMs), u.AvgDB)
		}
	}
	return b.String()
}
