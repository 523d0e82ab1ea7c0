package audio

import (
	"encoding/base64"
	"fmt"
	"math"
	"sync"
)

// Frame is one chunk of captured microphone audio: mono PCM16LE at the
// capture sample rate. Frames are forwarded to the transcription stream in
// capture order and fed to the level meter.
type Frame struct {
	PCM        []byte
	SampleRate int
}

// Source yields captured audio frames. Frames() is closed when the capture
// ends. The component that starts a source owns it until Close.
type Source interface {
	Frames() <-chan Frame
	Close() error
}

// DecodeFrame decodes a base64 PCM16 payload as received on the client
// websocket into a Frame.
func DecodeFrame(pcm16Base64 string, sampleRate int) (Frame, error) {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	pcm, err := base64.StdEncoding.DecodeString(pcm16Base64)
	if err != nil {
		return Frame{}, fmt.Errorf("decode pcm16 payload: %w", err)
	}
	if len(pcm)%2 != 0 {
		return Frame{}, fmt.Errorf("pcm16 payload has odd length %d", len(pcm))
	}
	return Frame{PCM: pcm, SampleRate: sampleRate}, nil
}

// Float32ToPCM16 converts normalized [-1, 1] samples to little-endian PCM16
// bytes, clamping out-of-range values.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		var v int16
		if s < 0 {
			v = int16(s * 0x8000)
		} else {
			v = int16(s * 0x7FFF)
		}
		out[2*i] = byte(v)
		out[2*i+1] = byte(v >> 8)
	}
	return out
}

// Level computes an RMS loudness estimate for a PCM16LE frame, scaled to
// 0-100 for the microphone level indicator.
func Level(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
		f := float64(v) / 32768
		sum += f * f
	}
	rms := math.Sqrt(sum / float64(n))
	level := rms * 300
	if level > 100 {
		level = 100
	}
	return level
}

// ChanSource adapts a frame channel into a Source. The websocket pump pushes
// decoded frames in; the transcription manager consumes them.
type ChanSource struct {
	mu     sync.Mutex
	closed bool
	frames chan Frame
	done   chan struct{}
}

func NewChanSource(buffer int) *ChanSource {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChanSource{
		frames: make(chan Frame, buffer),
		done:   make(chan struct{}),
	}
}

func (s *ChanSource) Frames() <-chan Frame { return s.frames }

// Push offers a frame to the source, dropping it if the consumer lags or the
// source is closed. Capture must never block the caller.
func (s *ChanSource) Push(f Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.frames <- f:
		return true
	default:
		return false
	}
}

func (s *ChanSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	close(s.frames)
	return nil
}

// Done is closed once the source has been closed.
func (s *ChanSource) Done() <-chan struct{} { return s.done }
