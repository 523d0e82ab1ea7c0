package audio

import "sync"

// CaptureRing keeps the most recent seconds of captured PCM for the
// recognition debug endpoint. Old bytes are discarded as new frames arrive.
type CaptureRing struct {
	mu         sync.Mutex
	buf        []byte
	max        int
	sampleRate int
}

// NewCaptureRing sizes the ring for roughly seconds of mono PCM16 audio at
// sampleRate.
func NewCaptureRing(seconds, sampleRate int) *CaptureRing {
	if seconds <= 0 {
		seconds = 10
	}
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &CaptureRing{
		max:        seconds * sampleRate * 2,
		sampleRate: sampleRate,
	}
}

func (r *CaptureRing) Write(pcm []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = append(r.buf, pcm...)
	if over := len(r.buf) - r.max; over > 0 {
		r.buf = append(r.buf[:0], r.buf[over:]...)
	}
}

// Snapshot returns a copy of the buffered PCM and its sample rate.
func (r *CaptureRing) Snapshot() ([]byte, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]byte, len(r.buf))
	copy(out, r.buf)
	return out, r.sampleRate
}

func (r *CaptureRing) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = r.buf[:0]
}
