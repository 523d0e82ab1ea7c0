package speech

import (
	"context"
	"log"
	"sync"
	"time"
)

// PipelineConfig wires a pipeline's collaborators and hooks. Hooks are
// optional and called outside the pipeline lock.
type PipelineConfig struct {
	Synthesizer Synthesizer
	Player      Player
	// Prefetch is how many sentences may be synthesized ahead of the
	// playback cursor.
	Prefetch int

	OnSpoken       func(seq int, text string)
	OnCancelled    func(dropped int)
	OnDrained      func()
	OnSynthLatency func(d time.Duration)
	// OnError fires when a sentence is skipped after its playback-time
	// synthesis retry also failed.
	OnError func(seq int, text string, err error)
}

type clipEntry struct {
	text    string
	audio   []byte
	format  string
	started bool
	ready   bool
	failed  bool
}

// Pipeline plays caller sentences strictly in enqueue order while
// synthesizing a few sentences ahead. CancelAll drops everything queued,
// interrupts the clip being played, and discards any synthesis still in
// flight from before the cancel.
type Pipeline struct {
	cfg PipelineConfig

	mu        sync.Mutex
	cond      *sync.Cond
	gen       int64
	genCtx    context.Context
	genCancel context.CancelFunc
	entries   map[int]*clipEntry
	cursor    int
	next      int
	closed    bool
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 3
	}
	p := &Pipeline{
		cfg:     cfg,
		entries: make(map[int]*clipEntry),
	}
	p.cond = sync.NewCond(&p.mu)
	p.genCtx, p.genCancel = context.WithCancel(context.Background())
	go p.playLoop()
	return p
}

// Enqueue adds one sentence and returns its playback sequence number.
// Sequence numbers increase for the lifetime of the pipeline, across
// cancels.
func (p *Pipeline) Enqueue(text string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return -1
	}
	seq := p.next
	p.next++
	p.entries[seq] = &clipEntry{text: text}
	p.startSynthLocked()
	p.cond.Broadcast()
	return seq
}

// CancelAll interrupts the current clip and drops every queued sentence.
func (p *Pipeline) CancelAll() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	dropped := p.next - p.cursor
	p.genCancel()
	p.gen++
	p.genCtx, p.genCancel = context.WithCancel(context.Background())
	p.entries = make(map[int]*clipEntry)
	p.cursor = p.next
	p.cond.Broadcast()
	p.mu.Unlock()

	if dropped > 0 && p.cfg.OnCancelled != nil {
		p.cfg.OnCancelled(dropped)
	}
}

// Pending reports how many sentences are queued or playing.
func (p *Pipeline) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.next - p.cursor
}

func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.genCancel()
	p.cond.Broadcast()
	p.mu.Unlock()
}

// startSynthLocked launches synthesis for queued sentences within the
// prefetch window. Caller holds p.mu.
func (p *Pipeline) startSynthLocked() {
	for seq := p.cursor; seq < p.cursor+p.cfg.Prefetch && seq < p.next; seq++ {
		e := p.entries[seq]
		if e == nil || e.started {
			continue
		}
		e.started = true
		go p.synthesize(p.gen, p.genCtx, seq, e.text)
	}
}

func (p *Pipeline) synthesize(gen int64, ctx context.Context, seq int, text string) {
	started := time.Now()
	audio, format, err := p.cfg.Synthesizer.Synthesize(ctx, text)

	p.mu.Lock()
	if p.closed || p.gen != gen {
		p.mu.Unlock()
		return
	}
	e := p.entries[seq]
	if e == nil {
		p.mu.Unlock()
		return
	}
	if err != nil {
		// Marked failed but still ready; the play loop retries once when
		// the cursor reaches it. A sentence cancelled before then never
		// gets a second attempt.
		log.Printf("speech: synth seq=%d failed, will retry at playback: %v", seq, err)
		e.failed = true
	} else {
		e.audio = audio
		e.format = format
	}
	e.ready = true
	p.cond.Broadcast()
	p.mu.Unlock()

	if err == nil && p.cfg.OnSynthLatency != nil {
		p.cfg.OnSynthLatency(time.Since(started))
	}
}

func (p *Pipeline) playLoop() {
	for {
		p.mu.Lock()
		for !p.closed {
			if e := p.entries[p.cursor]; e != nil && e.ready {
				break
			}
			p.cond.Wait()
		}
		if p.closed {
			p.mu.Unlock()
			return
		}
		gen := p.gen
		ctx := p.genCtx
		seq := p.cursor
		e := p.entries[seq]
		p.mu.Unlock()

		if e.failed && ctx.Err() == nil {
			// One on-demand retry, then the sentence is skipped rather
			// than stalling everything behind it.
			started := time.Now()
			audio, format, err := p.cfg.Synthesizer.Synthesize(ctx, e.text)
			if err == nil {
				e.audio = audio
				e.format = format
				e.failed = false
				if p.cfg.OnSynthLatency != nil {
					p.cfg.OnSynthLatency(time.Since(started))
				}
			} else if ctx.Err() == nil {
				log.Printf("speech: synth seq=%d skipped: %v", seq, err)
				if p.cfg.OnError != nil {
					p.cfg.OnError(seq, e.text, err)
				}
			}
		}

		played := false
		if !e.failed {
			if err := p.cfg.Player.Play(ctx, Clip{Seq: seq, Text: e.text, Format: e.format, Audio: e.audio}); err == nil {
				played = true
			} else if ctx.Err() == nil {
				log.Printf("speech: play seq=%d failed: %v", seq, err)
			}
		}

		p.mu.Lock()
		if p.gen != gen {
			// Cancelled mid-play; the new generation owns the cursor.
			p.mu.Unlock()
			continue
		}
		delete(p.entries, seq)
		p.cursor++
		p.startSynthLocked()
		drained := p.cursor == p.next
		p.mu.Unlock()

		if played && p.cfg.OnSpoken != nil {
			p.cfg.OnSpoken(seq, e.text)
		}
		if drained && p.cfg.OnDrained != nil {
			p.cfg.OnDrained()
		}
	}
}
