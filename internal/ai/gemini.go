package ai

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/tbourn/go-socialcart-backend/internal/config"
)

// Gemini is a Generator backed by the Gemini API.
type Gemini struct {
	client *genai.Client
	cfg    config.AIConfig
}

// NewGenerator returns a Gemini generator, or Disabled when cfg has no API key.
func NewGenerator(ctx context.Context, cfg config.AIConfig) (Generator, error) {
	if cfg.APIKey == "" {
		return Disabled{}, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	return &Gemini{client: client, cfg: cfg}, nil
}

func toContent(parts []Part) []*genai.Content {
	out := make([]*genai.Part, 0, len(parts))
	for _, p := range parts {
		if len(p.Data) > 0 {
			out = append(out, genai.NewPartFromBytes(p.Data, p.MIMEType))
			continue
		}
		out = append(out, genai.NewPartFromText(p.Text))
	}
	return []*genai.Content{genai.NewContentFromParts(out, genai.RoleUser)}
}

// GenerateJSON implements Generator.
func (g *Gemini) GenerateJSON(ctx context.Context, req JSONRequest) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.TextModel, toContent(req.Parts), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   req.Schema,
	})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// GenerateImage implements Generator.
func (g *Gemini) GenerateImage(ctx context.Context, prompt string) ([]byte, string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.ImageModel,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		&genai.GenerateContentConfig{ResponseModalities: []string{"TEXT", "IMAGE"}},
	)
	if err != nil {
		return nil, "", err
	}
	if blob := firstInline(resp); blob != nil {
		return blob.Data, blob.MIMEType, nil
	}
	return nil, "", errors.New("no image in response")
}

// Speak implements Generator.
func (g *Gemini) Speak(ctx context.Context, text string) ([]byte, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.SpeechModel,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.GenerateContentConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &genai.SpeechConfig{
				VoiceConfig: &genai.VoiceConfig{
					PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: g.cfg.Voice},
				},
			},
		},
	)
	if err != nil {
		return nil, err
	}
	if blob := firstInline(resp); blob != nil {
		return blob.Data, nil
	}
	return nil, errors.New("no audio in response")
}

func firstInline(resp *genai.GenerateContentResponse) *genai.Blob {
	if resp == nil {
		return nil
	}
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if p != nil && p.InlineData != nil && len(p.InlineData.Data) > 0 {
				return p.InlineData
			}
		}
	}
	return nil
}
