package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mkaran/dispatchsim/internal/call"
	"github.com/mkaran/dispatchsim/internal/config"
	"github.com/mkaran/dispatchsim/internal/history"
	"github.com/mkaran/dispatchsim/internal/httpapi"
	"github.com/mkaran/dispatchsim/internal/observability"
	"github.com/mkaran/dispatchsim/internal/persona"
	"github.com/mkaran/dispatchsim/internal/scenario"
	"github.com/mkaran/dispatchsim/internal/speech"
	"github.com/mkaran/dispatchsim/internal/transcribe"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	stages := observability.NewStageWindow(256)

	ctx := context.Background()
	transcripts, err := history.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("transcript store init failed: %v", err)
	}
	defer transcripts.Close()

	scenarios, err := scenario.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("scenario store init failed: %v", err)
	}
	defer scenarios.Close()

	providers := buildProviders(cfg)

	calls := call.NewManager(5 * time.Minute)
	calls.SetExpireHook(func(_ *call.Call) {
		metrics.CallEvents.WithLabelValues("expired").Inc()
		metrics.ActiveCalls.Set(float64(calls.ActiveCount()))
	})

	api := httpapi.New(cfg, calls, scenarios, transcripts, providers, metrics, stages)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	calls.StartJanitor(runCtx, 5*time.Second)

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}

// buildProviders resolves the transcription, generation, and synthesis
// backends. "auto" uses real providers when the keys are present and falls
// back to mocks so the trainer runs without any credentials.
func buildProviders(cfg config.Config) httpapi.Providers {
	var providers httpapi.Providers

	sttMode := strings.ToLower(strings.TrimSpace(cfg.STTProvider))
	switch sttMode {
	case "deepgram":
		if strings.TrimSpace(cfg.DeepgramAPIKey) == "" {
			log.Fatalf("STT_PROVIDER=deepgram but DEEPGRAM_API_KEY is not set")
		}
		providers.STT = newDeepgram(cfg)
		log.Printf("stt provider: deepgram (%s)", cfg.DeepgramModel)
	case "mock":
		providers.STT = transcribe.NewMockProvider()
		log.Printf("stt provider: mock")
	case "auto", "":
		if strings.TrimSpace(cfg.DeepgramAPIKey) != "" {
			providers.STT = newDeepgram(cfg)
			log.Printf("stt provider: deepgram (%s)", cfg.DeepgramModel)
		} else {
			providers.STT = transcribe.NewMockProvider()
			log.Printf("stt provider: mock (no deepgram key)")
		}
	default:
		log.Fatalf("invalid STT_PROVIDER: %q (expected auto|deepgram|mock)", cfg.STTProvider)
	}

	speechMode := strings.ToLower(strings.TrimSpace(cfg.SpeechProvider))
	switch speechMode {
	case "openai":
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			log.Fatalf("SPEECH_PROVIDER=openai but OPENAI_API_KEY is not set")
		}
		providers.Generator, providers.Synthesizer = newOpenAI(cfg)
		log.Printf("speech provider: openai (%s, %s/%s)", cfg.ChatModel, cfg.TTSModel, cfg.TTSVoice)
	case "mock":
		providers.Generator = persona.NewMockGenerator()
		providers.Synthesizer = speech.NewMockSynthesizer()
		log.Printf("speech provider: mock")
	case "auto", "":
		if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
			providers.Generator, providers.Synthesizer = newOpenAI(cfg)
			log.Printf("speech provider: openai (%s, %s/%s)", cfg.ChatModel, cfg.TTSModel, cfg.TTSVoice)
		} else {
			providers.Generator = persona.NewMockGenerator()
			providers.Synthesizer = speech.NewMockSynthesizer()
			log.Printf("speech provider: mock (no openai key)")
		}
	default:
		log.Fatalf("invalid SPEECH_PROVIDER: %q (expected auto|openai|mock)", cfg.SpeechProvider)
	}

	return providers
}

func newDeepgram(cfg config.Config) *transcribe.DeepgramProvider {
	return transcribe.NewDeepgramProvider(transcribe.DeepgramConfig{
		APIKey:    cfg.DeepgramAPIKey,
		WSBaseURL: cfg.DeepgramWSBaseURL,
		Model:     cfg.DeepgramModel,
		Language:  cfg.DeepgramLanguage,
	})
}

func newOpenAI(cfg config.Config) (persona.Generator, speech.Synthesizer) {
	gen := persona.NewOpenAIGenerator(persona.OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.ChatModel,
	})
	synth := speech.NewOpenAISynthesizer(speech.OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.TTSModel,
		Voice:   cfg.TTSVoice,
		Speed:   cfg.TTSSpeed,
	})
	return gen, synth
}
