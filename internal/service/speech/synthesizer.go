package speech

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"companion/internal/logger"
	"companion/internal/models"
)

// ErrNoAudio means the stream ended before any chunk carried audio bytes.
var ErrNoAudio = errors.New("audio stream ended without payload")

// Chunk is one element of a streamed generation response. Only chunks with a
// non-empty Data carry audio; the rest are progress or commentary.
type Chunk struct {
	Text     string
	MIMEType string
	Data     []byte
}

// Request describes what to speak and with which voice.
type Request struct {
	Text  string
	Voice string
}

// ChunkSource opens a lazy, finite, non-restartable chunk stream. Stopping the
// iteration early releases the underlying stream.
type ChunkSource interface {
	Stream(ctx context.Context, req Request) iter.Seq2[*Chunk, error]
}

// Synthesizer turns reply text into a single container-wrapped audio artifact.
type Synthesizer struct {
	source       ChunkSource
	defaultVoice string
}

func NewSynthesizer(source ChunkSource, defaultVoice string) *Synthesizer {
	return &Synthesizer{source: source, defaultVoice: defaultVoice}
}

// Synthesize stops at the first chunk that carries audio and returns it as the
// artifact; later chunks are never read.
// TODO: confirm whether the TTS stream can split one utterance across several
// audio chunks; if so, concatenate PCM payloads before wrapping.
func (s *Synthesizer) Synthesize(ctx context.Context, text, voice, baseName string) (*models.AudioArtifact, error) {
	log := logger.FromContext(ctx)
	req := Request{Text: text, Voice: s.voice(voice)}

	for chunk, err := range s.source.Stream(ctx, req) {
		if err != nil {
			return nil, fmt.Errorf("read audio stream: %w", err)
		}
		if chunk == nil || len(chunk.Data) == 0 {
			if chunk != nil && chunk.Text != "" {
				log.Debug("speech stream commentary", "text", chunk.Text)
			}
			continue
		}
		ext, data, err := ResolveContainer(chunk.MIMEType, chunk.Data)
		if err != nil {
			return nil, fmt.Errorf("package audio %q: %w", chunk.MIMEType, err)
		}
		log.Debug("speech chunk resolved", "mime_type", chunk.MIMEType, "extension", ext, "bytes", len(data))
		return &models.AudioArtifact{
			Name:      baseName,
			Extension: ext,
			MIMEType:  chunk.MIMEType,
			Data:      data,
		}, nil
	}
	return nil, ErrNoAudio
}

func (s *Synthesizer) voice(requested string) string {
	requested = strings.TrimSpace(requested)
	if requested == "" || strings.EqualFold(requested, "default") {
		return s.defaultVoice
	}
	return requested
}
