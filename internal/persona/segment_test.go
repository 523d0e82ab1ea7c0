package persona

import (
	"reflect"
	"testing"
)

func TestSegmenterSplitsOnTerminators(t *testing.T) {
	s := NewSegmenter()
	var got []string
	got = append(got, s.Consume("Help me! My husband")...)
	got = append(got, s.Consume(" collapsed. He's not")...)
	got = append(got, s.Consume(" breathing")...)
	if rest := s.Finalize(); rest != "" {
		got = append(got, rest)
	}

	want := []string{"Help me!", "My husband collapsed.", "He's not breathing"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("sentences = %q, want %q", got, want)
	}
}

func TestSegmenterKeepsPunctuationRuns(t *testing.T) {
	s := NewSegmenter()
	got := s.Consume("What?! He's here. ")
	want := []string{"What?!", "He's here."}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("sentences = %q, want %q", got, want)
	}
}

func TestSegmenterDoesNotSplitDecimals(t *testing.T) {
	s := NewSegmenter()
	got := s.Consume("It's about 3.")
	if len(got) != 0 {
		t.Fatalf("premature split: %q", got)
	}
	got = s.Consume("5 miles away. ")
	want := []string{"It's about 3.5 miles away."}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("sentences = %q, want %q", got, want)
	}
}

func TestSegmenterFinalizeFlushesRemainder(t *testing.T) {
	s := NewSegmenter()
	if got := s.Consume("please hurry"); len(got) != 0 {
		t.Fatalf("unexpected sentences: %q", got)
	}
	if rest := s.Finalize(); rest != "please hurry" {
		t.Fatalf("Finalize() = %q, want %q", rest, "please hurry")
	}
	if rest := s.Finalize(); rest != "" {
		t.Fatalf("second Finalize() = %q, want empty", rest)
	}
}
