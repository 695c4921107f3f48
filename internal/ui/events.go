package ui

import "time"

// Stage is the phase a test is in.
type Stage string

const (
	StageQueued    Stage = "queued"
	StageRun       Stage = "run"
	StageFuzz      Stage = "fuzz"
	StageArtifacts Stage = "artifacts"
	StageDone      Stage = "done"
)

// Event reports progress for a test, or for the session when Test is empty.
type Event struct {
	Test    string
	Stage   Stage
	Status  string // verdict when Stage is StageDone
	Trials  uint32 // finished trials so far, for StageFuzz
	Total   uint32 // requested trials, for StageFuzz
	Elapsed time.Duration
}

// ProgressSink consumes progress events. Implementations must be
// goroutine-safe.
type ProgressSink interface {
	OnEvent(Event)
}

// ChannelSink forwards events into a channel.
type ChannelSink struct {
	Ch chan<- Event
}

func (s ChannelSink) OnEvent(ev Event) {
	if s.Ch == nil {
		return
	}
	s.Ch <- ev
}

// NopSink drops events.
type NopSink struct{}

func (NopSink) OnEvent(Event) {}
