package bridge

import (
	"github.com/0xlemi/tunecoach/internal/engine"
)

// NotePayload is sent as NOTE_EVENT.
type NotePayload struct {
	MIDI       int     `json:"midi"`
	Name       string  `json:"name"`
	Freq       float64 `json:"freq"`
	CentsOff   float64 `json:"centsOff"`
	Confidence float64 `json:"confidence"`
}

// OnsetPayload is sent as ONSET_EVENT. TS is milliseconds since session start.
type OnsetPayload struct {
	TS int64 `json:"ts"`
}

// PCMPayload is sent as PCM_DATA.
type PCMPayload struct {
	Samples    []float32 `json:"samples"`
	SampleRate int       `json:"sampleRate"`
}

// StallPayload is sent as STREAM_STALLED.
type StallPayload struct {
	WaitedMs int64 `json:"waitedMs"`
}

// RecoveredPayload is sent as STREAM_RECOVERED.
type RecoveredPayload struct {
	OutageMs int64 `json:"outageMs"`
}

// EndedPayload is sent as CAPTURE_ENDED.
type EndedPayload struct {
	Error string `json:"error,omitempty"`
}

// StatePayload is sent to a client when it connects.
type StatePayload struct {
	State string `json:"state"`
	Tier  string `json:"tier"`
}

// ErrorPayload carries a command failure.
type ErrorPayload struct {
	Message string `json:"message"`
}

// StartRequest is the argument of the start command. Zero fields use the
// server defaults.
type StartRequest struct {
	BufferSize int `json:"bufferSize"`
	SampleRate int `json:"sampleRate"`
}

// PCMPush is the argument of the pcm command.
type PCMPush struct {
	Samples    []float32 `json:"samples"`
	SampleRate int       `json:"sampleRate"`
}

// Payload maps an engine event to its wire name and body.
func Payload(ev engine.Event) (string, any, bool) {
	switch e := ev.(type) {
	case engine.PitchDetected:
		return EventNote, NotePayload{
			MIDI:       e.Note.MIDI,
			Name:       e.Note.Name,
			Freq:       e.Frequency,
			CentsOff:   e.CentsOff,
			Confidence: e.Confidence,
		}, true
	case engine.OnsetDetected:
		return EventOnset, OnsetPayload{TS: e.Millis()}, true
	case engine.SamplesBatch:
		return EventPCM, PCMPayload{Samples: e.Samples, SampleRate: e.SampleRate}, true
	case engine.StreamStalled:
		return EventStalled, StallPayload{WaitedMs: e.Waited.Milliseconds()}, true
	case engine.StreamRecovered:
		return EventRecovered, RecoveredPayload{OutageMs: e.Outage.Milliseconds()}, true
	case engine.CaptureEnded:
		p := EndedPayload{}
		if e.Err != nil {
			p.Error = e.Err.Error()
		}
		return EventEnded, p, true
	}
	return "", nil, false
}
