package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mkaran/dispatchsim/internal/reliability"
)

type DeepgramConfig struct {
	APIKey    string
	WSBaseURL string
	Model     string
	Language  string
}

// DeepgramProvider speaks the Deepgram realtime listen protocol over a
// websocket. Audio goes out as binary PCM frames, results come back as JSON.
type DeepgramProvider struct {
	cfg DeepgramConfig
}

func NewDeepgramProvider(cfg DeepgramConfig) *DeepgramProvider {
	if strings.TrimSpace(cfg.WSBaseURL) == "" {
		cfg.WSBaseURL = "wss://api.deepgram.com"
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = "nova-2"
	}
	if strings.TrimSpace(cfg.Language) == "" {
		cfg.Language = "en-US"
	}
	return &DeepgramProvider{cfg: cfg}
}

func (p *DeepgramProvider) Connect(ctx context.Context, _ string, sampleRate int) (Stream, <-chan Event, error) {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	u, err := url.Parse(strings.TrimRight(p.cfg.WSBaseURL, "/") + "/v1/listen")
	if err != nil {
		return nil, nil, err
	}
	q := u.Query()
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("channels", "1")
	q.Set("model", p.cfg.Model)
	q.Set("language", p.cfg.Language)
	q.Set("interim_results", "true")
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	q.Set("numerals", "true")
	q.Set("endpointing", "500")
	q.Set("vad_events", "true")
	u.RawQuery = q.Encode()

	headers := http.Header{}
	if p.cfg.APIKey != "" {
		headers.Set("Authorization", "Token "+p.cfg.APIKey)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return nil, nil, fmt.Errorf("dial stt websocket: %w", err)
	}

	events := make(chan Event, 256)
	s := &deepgramStream{conn: conn, events: events}
	go s.readLoop()
	return s, events, nil
}

type deepgramStream struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	events    chan Event
}

func (s *deepgramStream) SendAudio(_ context.Context, pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, pcm)
}

// Finish sends the documented CloseStream control message so the provider
// flushes any buffered transcript before closing with code 1000.
func (s *deepgramStream) Finish(_ context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
}

type deepgramResult struct {
	Type    string `json:"type"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
	IsFinal     bool `json:"is_final"`
	SpeechFinal bool `json:"speech_final"`
	Error       struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *deepgramStream) readLoop() {
	defer s.safeClose()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			code := websocket.CloseAbnormalClosure
			if ce, ok := err.(*websocket.CloseError); ok {
				code = ce.Code
			}
			s.events <- Event{
				Type:      EventClosed,
				Code:      strconv.Itoa(code),
				Detail:    err.Error(),
				Retryable: !reliability.IsCleanCloseCode(code),
				Timestamp: time.Now().UnixMilli(),
			}
			return
		}

		var msg deepgramResult
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "Results":
			if len(msg.Channel.Alternatives) == 0 {
				continue
			}
			alt := msg.Channel.Alternatives[0]
			if strings.TrimSpace(alt.Transcript) == "" {
				continue
			}
			typ := EventPartial
			if msg.IsFinal || msg.SpeechFinal {
				typ = EventCommitted
			}
			s.events <- Event{
				Type:       typ,
				Text:       alt.Transcript,
				Confidence: alt.Confidence,
				Timestamp:  time.Now().UnixMilli(),
			}
		case "SpeechStarted":
			s.events <- Event{Type: EventSpeechStarted, Timestamp: time.Now().UnixMilli()}
		case "Metadata", "UtteranceEnd", "":
			// control traffic, nothing to surface
		case "Error":
			s.events <- Event{
				Type:      EventError,
				Code:      msg.Error.Code,
				Detail:    msg.Error.Message,
				Retryable: true,
				Timestamp: time.Now().UnixMilli(),
			}
		}
	}
}

func (s *deepgramStream) Close() error {
	var retErr error
	s.closeOnce.Do(func() {
		retErr = s.conn.Close()
		close(s.events)
	})
	return retErr
}

func (s *deepgramStream) safeClose() {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
		close(s.events)
	})
}
