package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
)

type Volcengine struct {
	apiKey  string
	model   string
	pricing Pricing
}

func NewVolcengine(apiKey, model string) (*Volcengine, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("volcengine api key is not configured")
	}
	if strings.TrimSpace(model) == "" {
		model = "doubao-seedream-4-0-250828"
	}

	return &Volcengine{
		apiKey: apiKey,
		model:  model,
		// Seedream 不按 token 计费，流式响应也不带 usage，按张计价。
		pricing: Pricing{
			Shape:       PricingFlat,
			PerImageUSD: 0.03,
		},
	}, nil
}

func (v *Volcengine) ProviderID() string {
	return "volcengine"
}

func (v *Volcengine) Pricing() Pricing {
	return v.pricing
}

func (v *Volcengine) GenerateImages(ctx context.Context, request GenerateRequest) (*GenerateResult, error) {
	providerLogger(ctx, v.ProviderID(), v.model).WithFields(map[string]interface{}{
		"prompt_preview":        logSnippet(request.Prompt),
		"reference_image_count": len(request.References),
	}).Info("llm_generate_images_start")

	base64Images := make([]string, 0, len(request.References))
	for _, ref := range request.References {
		if len(ref.Data) == 0 {
			continue
		}
		base64Images = append(base64Images, base64.StdEncoding.EncodeToString(ref.Data))
	}

	images, thinking, err := GenerateImagesByVolcengineProtocol(ctx, v.apiKey, v.model, request.Prompt, "", base64Images)
	if err != nil {
		return nil, err
	}

	return &GenerateResult{
		Images:   images,
		Thinking: thinking,
	}, nil
}
