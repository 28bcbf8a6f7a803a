package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Gateway fans a generation request over an ordered provider chain. The first
// provider that returns at least one image wins; errors and empty results are
// both recoverable and fall through to the next provider. The result always
// names the provider that actually served the call so costs land on the right
// backend.
type Gateway struct {
	providers   []ImageService
	callTimeout time.Duration
}

func NewGateway(providers []ImageService, callTimeout time.Duration) (*Gateway, error) {
	if len(providers) == 0 {
		return nil, errors.New("provider chain is empty")
	}
	if callTimeout <= 0 {
		callTimeout = 120 * time.Second
	}
	return &Gateway{providers: providers, callTimeout: callTimeout}, nil
}

// ProviderIDs returns the chain order, primarily for startup logging.
func (g *Gateway) ProviderIDs() []string {
	ids := make([]string, 0, len(g.providers))
	for _, p := range g.providers {
		ids = append(ids, p.ProviderID())
	}
	return ids
}

// Generate tries each provider in order until one yields images.
func (g *Gateway) Generate(ctx context.Context, request GenerateRequest) (*GenerateResult, error) {
	if strings.TrimSpace(request.Prompt) == "" {
		return nil, errors.New("prompt is empty")
	}

	var attemptErrs []string
	for idx, provider := range g.providers {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
		result, err := provider.GenerateImages(callCtx, request)
		cancel()

		if err == nil && result.ImageCount() == 0 {
			err = ErrNoImages
		}
		if err != nil {
			attemptErrs = append(attemptErrs, fmt.Sprintf("%s: %v", provider.ProviderID(), err))
			logrus.WithError(err).WithFields(logrus.Fields{
				"provider":       provider.ProviderID(),
				"chain_position": idx,
				"fallbacks_left": len(g.providers) - idx - 1,
			}).Warn("llm_provider_failed")
			continue
		}

		result.Provider = provider.ProviderID()
		result.CallCostUSD = provider.Pricing().Cost(result.TokensIn, result.TokensOut, result.ImageCount())

		logrus.WithFields(logrus.Fields{
			"provider":      result.Provider,
			"image_count":   result.ImageCount(),
			"tokens_in":     result.TokensIn,
			"tokens_out":    result.TokensOut,
			"call_cost_usd": result.CallCostUSD,
			"fallback_used": idx > 0,
		}).Info("llm_generate_succeeded")
		return result, nil
	}

	return nil, fmt.Errorf("all providers failed: %s", strings.Join(attemptErrs, "; "))
}
