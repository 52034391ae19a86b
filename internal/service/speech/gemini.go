package speech

import (
	"context"
	"iter"

	"google.golang.org/genai"
)

// GeminiSource streams speech from a Gemini TTS model.
type GeminiSource struct {
	client      *genai.Client
	model       string
	temperature float32
}

func NewGeminiSource(client *genai.Client, model string, temperature float32) *GeminiSource {
	return &GeminiSource{client: client, model: model, temperature: temperature}
}

func (g *GeminiSource) Stream(ctx context.Context, req Request) iter.Seq2[*Chunk, error] {
	contents := []*genai.Content{genai.NewContentFromText(req.Text, genai.RoleUser)}
	cfg := &genai.GenerateContentConfig{
		Temperature:        genai.Ptr(g.temperature),
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: req.Voice},
			},
		},
	}
	return func(yield func(*Chunk, error) bool) {
		for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents, cfg) {
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(chunkFromResponse(resp), nil) {
				return
			}
		}
	}
}

// chunkFromResponse reads the first part of the first candidate only.
func chunkFromResponse(resp *genai.GenerateContentResponse) *Chunk {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return &Chunk{}
	}
	content := resp.Candidates[0].Content
	if content == nil || len(content.Parts) == 0 || content.Parts[0] == nil {
		return &Chunk{}
	}
	part := content.Parts[0]
	if part.InlineData != nil && len(part.InlineData.Data) > 0 {
		return &Chunk{MIMEType: part.InlineData.MIMEType, Data: part.InlineData.Data}
	}
	return &Chunk{Text: part.Text}
}
