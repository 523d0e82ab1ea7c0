package audio

import (
	"encoding/base64"
	"testing"
)

func TestFloat32ToPCM16Clamps(t *testing.T) {
	got := Float32ToPCM16([]float32{0, 1.5, -1.5})
	if len(got) != 6 {
		t.Fatalf("len = %d, want 6", len(got))
	}
	if v := int16(uint16(got[2]) | uint16(got[3])<<8); v != 0x7FFF {
		t.Fatalf("positive clamp = %d, want %d", v, 0x7FFF)
	}
	if v := int16(uint16(got[4]) | uint16(got[5])<<8); v != -0x8000 {
		t.Fatalf("negative clamp = %d, want %d", v, -0x8000)
	}
}

func TestLevel(t *testing.T) {
	if got := Level(nil); got != 0 {
		t.Fatalf("Level(nil) = %v, want 0", got)
	}

	loud := Float32ToPCM16([]float32{0.9, -0.9, 0.9, -0.9})
	quiet := Float32ToPCM16([]float32{0.01, -0.01, 0.01, -0.01})
	if Level(loud) <= Level(quiet) {
		t.Fatalf("loud level %v not above quiet level %v", Level(loud), Level(quiet))
	}
	if got := Level(loud); got > 100 {
		t.Fatalf("level %v exceeds 100", got)
	}
}

func TestDecodeFrame(t *testing.T) {
	pcm := Float32ToPCM16([]float32{0.5, -0.5})
	f, err := DecodeFrame(base64.StdEncoding.EncodeToString(pcm), 0)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if f.SampleRate != 16000 {
		t.Fatalf("sample rate = %d, want 16000 default", f.SampleRate)
	}
	if len(f.PCM) != len(pcm) {
		t.Fatalf("pcm length = %d, want %d", len(f.PCM), len(pcm))
	}

	if _, err := DecodeFrame("AA==", 16000); err == nil {
		t.Fatalf("expected odd-length error")
	}
	if _, err := DecodeFrame("not base64!!", 16000); err == nil {
		t.Fatalf("expected base64 error")
	}
}

func TestChanSourcePushAfterClose(t *testing.T) {
	s := NewChanSource(4)
	if !s.Push(Frame{PCM: []byte{0, 0}, SampleRate: 16000}) {
		t.Fatalf("push on open source failed")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if s.Push(Frame{PCM: []byte{0, 0}, SampleRate: 16000}) {
		t.Fatalf("push succeeded after close")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	// The buffered frame is still readable, then the channel closes.
	if _, ok := <-s.Frames(); !ok {
		t.Fatalf("buffered frame missing")
	}
	if _, ok := <-s.Frames(); ok {
		t.Fatalf("frames channel not closed")
	}
}

func TestCaptureRingDiscardsOldAudio(t *testing.T) {
	r := NewCaptureRing(1, 4) // 8 bytes max
	r.Write([]byte{1, 2, 3, 4, 5, 6})
	r.Write([]byte{7, 8, 9, 10})
	got, rate := r.Snapshot()
	if rate != 4 {
		t.Fatalf("rate = %d, want 4", rate)
	}
	want := []byte{3, 4, 5, 6, 7, 8, 9, 10}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %d, want %d", i, got[i], want[i])
		}
	}

	r.Reset()
	if got, _ := r.Snapshot(); len(got) != 0 {
		t.Fatalf("ring not empty after reset")
	}
}

func TestEncodeWAVPCM16LEHeader(t *testing.T) {
	pcm := []byte{1, 2, 3, 4}
	wav, err := EncodeWAVPCM16LE(pcm, 16000)
	if err != nil {
		t.Fatalf("EncodeWAVPCM16LE: %v", err)
	}
	if len(wav) != 44+len(pcm) {
		t.Fatalf("wav length = %d, want %d", len(wav), 44+len(pcm))
	}
	if string(wav[:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatalf("bad container header: %q %q", wav[:4], wav[8:12])
	}
}
