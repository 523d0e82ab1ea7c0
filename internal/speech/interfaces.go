package speech

import "context"

// Clip is one synthesized caller sentence ready for playback.
type Clip struct {
	Seq    int
	Text   string
	Format string
	Audio  []byte
}

// Synthesizer renders one sentence of caller speech.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (audio []byte, format string, err error)
}

// Player delivers one clip to the trainee and returns when playback is done.
// The context is cancelled when the clip's turn is interrupted.
type Player interface {
	Play(ctx context.Context, clip Clip) error
}
