package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"companion/internal/logger"
	"companion/internal/models"
	"companion/internal/service/textgen"

	"github.com/google/uuid"
)

const (
	DefaultGenerationFallback = "The assistant could not reply because of a system error."
	DefaultSynthesisFallback  = "Audio generation failed."
	audioPathPrefix           = "static/audio/"
)

var ErrEmptyMessage = errors.New("message must not be empty")

// Outcome is the terminal state of one chat.
type Outcome string

const (
	OutcomeCompleted        Outcome = "completed"
	OutcomeGenerationFailed Outcome = "generation_failed"
	OutcomeSynthesisFailed  Outcome = "synthesis_failed"
)

type HistoryStore interface {
	History(ctx context.Context, scope models.Scope) ([]models.HistoryEntry, error)
	AppendExchange(ctx context.Context, scope models.Scope, userContent, modelContent string) error
}

type Generator = textgen.Generator

type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice, baseName string) (*models.AudioArtifact, error)
}

type ArtifactStore interface {
	Save(ctx context.Context, artifact *models.AudioArtifact) (string, error)
}

type Request struct {
	Scope   models.Scope
	Message string
	Voice   string
	// BaseURL prefixes the audio locator; a trailing slash is added when missing.
	BaseURL string
}

type Result struct {
	ReplyText string
	AudioURL  string
	Outcome   Outcome
}

type Options struct {
	GenerationFallback string
	SynthesisFallback  string
}

// Orchestrator runs history → reply → audio → persistence for a single message.
// Turns are only written once the audio file is stored.
type Orchestrator struct {
	store       HistoryStore
	generator   Generator
	synthesizer Synthesizer
	artifacts   ArtifactStore
	opts        Options
	newName     func() string
}

func NewOrchestrator(store HistoryStore, generator Generator, synthesizer Synthesizer, artifacts ArtifactStore, opts Options) *Orchestrator {
	if opts.GenerationFallback == "" {
		opts.GenerationFallback = DefaultGenerationFallback
	}
	if opts.SynthesisFallback == "" {
		opts.SynthesisFallback = DefaultSynthesisFallback
	}
	return &Orchestrator{
		store:       store,
		generator:   generator,
		synthesizer: synthesizer,
		artifacts:   artifacts,
		opts:        opts,
		newName:     func() string { return uuid.NewString() },
	}
}

func (o *Orchestrator) Chat(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}
	start := time.Now()
	log := logger.FromContext(ctx).With("scope", string(req.Scope))

	history, err := o.store.History(ctx, req.Scope)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	reply, ok, err := o.generator.Reply(textgen.WithToolScope(ctx, req.Scope), req.Message, history)
	if err != nil {
		return nil, fmt.Errorf("generate reply: %w", err)
	}
	if !ok {
		log.Warn("chat finished", "outcome", OutcomeGenerationFailed, "duration", time.Since(start))
		return &Result{ReplyText: o.opts.GenerationFallback, Outcome: OutcomeGenerationFailed}, nil
	}

	fileName, err := o.renderAudio(ctx, reply, req.Voice)
	if err != nil {
		log.Warn("chat finished", "outcome", OutcomeSynthesisFailed, "duration", time.Since(start), "error", err)
		return &Result{ReplyText: o.opts.SynthesisFallback, Outcome: OutcomeSynthesisFailed}, nil
	}

	if err := o.store.AppendExchange(ctx, req.Scope, req.Message, reply); err != nil {
		return nil, fmt.Errorf("persist exchange: %w", err)
	}

	result := &Result{
		ReplyText: reply,
		AudioURL:  AudioURL(req.BaseURL, fileName),
		Outcome:   OutcomeCompleted,
	}
	log.Info("chat finished", "outcome", OutcomeCompleted, "duration", time.Since(start), "audio", fileName)
	return result, nil
}

func (o *Orchestrator) renderAudio(ctx context.Context, text, voice string) (string, error) {
	artifact, err := o.synthesizer.Synthesize(ctx, text, voice, o.newName())
	if err != nil {
		return "", err
	}
	if artifact == nil {
		return "", errors.New("synthesizer returned no artifact")
	}
	fileName, err := o.artifacts.Save(ctx, artifact)
	if err != nil {
		return "", fmt.Errorf("save audio: %w", err)
	}
	return fileName, nil
}

// AudioURL builds {base}static/audio/{file}.
func AudioURL(baseURL, fileName string) string {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return baseURL + audioPathPrefix + fileName
}
