package llm

import (
	"context"
	"errors"
	"strings"
)

type GeminiService struct {
	apiKey   string
	endpoint string
	model    string
	pricing  Pricing
}

func NewGeminiService(apiKey, model string) (*GeminiService, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini api key is not configured")
	}
	if strings.TrimSpace(model) == "" {
		model = "gemini-2.5-flash-image-preview"
	}

	return &GeminiService{
		apiKey: apiKey,
		model:  model,
		pricing: Pricing{
			Shape:            PricingToken,
			InputPerMTokUSD:  0.30,
			OutputPerMTokUSD: 2.50,
			PerImageUSD:      0.039,
		},
	}, nil
}

func (g *GeminiService) ProviderID() string {
	return "gemini"
}

func (g *GeminiService) Pricing() Pricing {
	return g.pricing
}

func (g *GeminiService) GenerateImages(ctx context.Context, request GenerateRequest) (*GenerateResult, error) {
	providerLogger(ctx, g.ProviderID(), g.model).WithField("prompt_preview", logSnippet(request.Prompt)).Info("llm_generate_images_start")

	images, thinking, tokensIn, tokensOut, err := GenerateImagesByGeminiProtocol(ctx, g.apiKey, g.endpoint, g.model, request.Prompt, request.References)
	if err != nil {
		return nil, err
	}

	return &GenerateResult{
		Images:    images,
		Thinking:  thinking,
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
	}, nil
}
