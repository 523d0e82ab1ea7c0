package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientAudioChunk MessageType = "client_audio_chunk"
	TypeClientControl    MessageType = "client_control"
	TypeClientPlayedClip MessageType = "client_played_clip"
	TypeMicLevel         MessageType = "mic_level"
	TypeSTTPartial       MessageType = "stt_partial"
	TypeSTTCommitted     MessageType = "stt_committed"
	TypeCallerSentence   MessageType = "caller_sentence"
	TypeCallerAudio      MessageType = "caller_audio_chunk"
	TypeCallerTurnEnd    MessageType = "caller_turn_end"
	TypeCallState        MessageType = "call_state"
	TypeSystemEvent      MessageType = "system_event"
	TypeErrorEvent       MessageType = "error_event"
)

// Client control actions accepted over the websocket.
const (
	ActionAnswer  = "answer"
	ActionPause   = "pause"
	ActionResume  = "resume"
	ActionHangup  = "hangup"
	ActionRestart = "restart"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientAudioChunk carries dispatcher microphone audio into the pipeline.
type ClientAudioChunk struct {
	Type        MessageType `json:"type"`
	CallID      string      `json:"call_id"`
	Seq         int         `json:"seq"`
	PCM16Base64 string      `json:"pcm16_base64"`
	SampleRate  int         `json:"sample_rate"`
	TSMs        int64       `json:"ts_ms"`
}

type ClientControl struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"call_id"`
	Action string      `json:"action"`
}

// ClientPlayedClip acknowledges that the browser finished playing one caller
// clip. The audio pipeline paces playback on these.
type ClientPlayedClip struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"call_id"`
	Seq    int         `json:"seq"`
}

// MicLevel is a throttled RMS reading of the dispatcher microphone.
type MicLevel struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"call_id"`
	Level  float64     `json:"level"`
	TSMs   int64       `json:"ts_ms"`
}

type STTPartial struct {
	Type       MessageType `json:"type"`
	CallID     string      `json:"call_id"`
	Text       string      `json:"text"`
	Confidence float64     `json:"confidence"`
	TSMs       int64       `json:"ts_ms"`
}

type STTCommitted struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"call_id"`
	Text   string      `json:"text"`
	TSMs   int64       `json:"ts_ms"`
}

// CallerSentence is one cleaned caller sentence, sent before its audio so
// the UI can show the transcript in sync with playback.
type CallerSentence struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"call_id"`
	Seq    int         `json:"seq"`
	Text   string      `json:"text"`
}

type CallerAudioChunk struct {
	Type        MessageType `json:"type"`
	CallID      string      `json:"call_id"`
	Seq         int         `json:"seq"`
	Format      string      `json:"format"`
	AudioBase64 string      `json:"audio_base64"`
}

type CallerTurnEnd struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"call_id"`
	TurnID string      `json:"turn_id"`
	Reason string      `json:"reason"`
}

// CallState announces lifecycle transitions (ringing, active, paused, ended).
type CallState struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"call_id"`
	State  string      `json:"state"`
	Detail string      `json:"detail,omitempty"`
}

type SystemEvent struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"call_id"`
	Code   string      `json:"code"`
	Detail string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	CallID    string      `json:"call_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ValidControlAction(action string) bool {
	switch action {
	case ActionAnswer, ActionPause, ActionResume, ActionHangup, ActionRestart:
		return true
	default:
		return false
	}
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientAudioChunk:
		var msg ClientAudioChunk
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.CallID == "" || msg.PCM16Base64 == "" || msg.SampleRate <= 0 {
			return nil, errors.New("invalid client_audio_chunk")
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.CallID == "" || !ValidControlAction(msg.Action) {
			return nil, errors.New("invalid client_control")
		}
		return msg, nil
	case TypeClientPlayedClip:
		var msg ClientPlayedClip
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.CallID == "" || msg.Seq < 0 {
			return nil, errors.New("invalid client_played_clip")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
