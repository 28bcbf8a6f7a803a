package llm

import (
	"context"
	"errors"
	"strings"
)

type OpenRouter struct {
	apiKey   string
	endpoint string
	model    string
	pricing  Pricing
}

func NewOpenRouter(apiKey, model string) (*OpenRouter, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("openrouter api key is not configured")
	}
	if strings.TrimSpace(model) == "" {
		model = "google/gemini-2.5-flash-image-preview"
	}

	return &OpenRouter{
		apiKey:   apiKey,
		endpoint: "https://openrouter.ai/api/v1/chat/completions",
		model:    model,
		pricing: Pricing{
			Shape:            PricingToken,
			InputPerMTokUSD:  0.30,
			OutputPerMTokUSD: 2.50,
			PerImageUSD:      0.04,
		},
	}, nil
}

func (o *OpenRouter) ProviderID() string {
	return "openrouter"
}

func (o *OpenRouter) Pricing() Pricing {
	return o.pricing
}

func (o *OpenRouter) GenerateImages(ctx context.Context, request GenerateRequest) (*GenerateResult, error) {
	providerLogger(ctx, o.ProviderID(), o.model).WithField("prompt_preview", logSnippet(request.Prompt)).Info("llm_generate_images_start")

	images, thinking, tokensIn, tokensOut, err := GenerateImagesByOpenaiProtocol(ctx, o.apiKey, o.endpoint, o.model, request.Prompt, request.References)
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
