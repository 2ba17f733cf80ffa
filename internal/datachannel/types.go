package datachannel

import "encoding/json"

// Envelope is the top-level wrapper for all data channel messages.
type Envelope struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	ActionID  string          `json:"actionId,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// CommandStart is the payload for therapy.start and therapy.toggle.
type CommandStart struct {
	Sound string `json:"sound"`
}

// CommandSound is the payload for therapy.sound (live switch).
type CommandSound struct {
	Sound string `json:"sound"`
}

// CommandFrequency is the payload for therapy.frequency.
type CommandFrequency struct {
	FrequencyHz int `json:"frequencyHz"`
}

// CommandVolume is the payload for therapy.volume.
type CommandVolume struct {
	Volume float64 `json:"volume"`
}

// EventState is the payload for therapy.state events, sent after every
// command so the page renders from server truth.
type EventState struct {
	FrequencyHz     int     `json:"frequencyHz"`
	Volume          float64 `json:"volume"`
	Sound           string  `json:"sound"`
	TestTonePlaying bool    `json:"testTonePlaying"`
	TherapyPlaying  bool    `json:"therapyPlaying"`
	ElapsedSeconds  int     `json:"elapsedSeconds"`
}

// EventAutoStop is the payload for therapy.autostop events.
type EventAutoStop struct {
	AfterSeconds int `json:"afterSeconds"`
}

// EventError is the payload for error events.
type EventError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
