package llm

import (
	"fmt"
	"strings"

	"github.com/mvh70/teamshots-sub010/internal/config"

	"github.com/sirupsen/logrus"
)

// NewProviderChain builds the ordered fallback chain from configuration.
// Providers without an API key are skipped with a warning so a partially
// configured deployment still starts.
func NewProviderChain(cfg config.Config) ([]ImageService, error) {
	var providers []ImageService

	for _, name := range strings.Split(cfg.ProviderChain, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}

		var (
			service ImageService
			err     error
		)
		switch name {
		case "gemini":
			service, err = NewGeminiService(cfg.GeminiAPIKey, cfg.GeminiModel)
		case "openrouter":
			service, err = NewOpenRouter(cfg.OpenRouterAPIKey, cfg.OpenRouterModel)
		case "volcengine":
			service, err = NewVolcengine(cfg.VolcengineAPIKey, cfg.VolcengineModel)
		case "fal":
			service, err = NewFalAI(cfg.FalAPIKey, cfg.FalModel)
		default:
			return nil, fmt.Errorf("unsupported provider in chain: %s", name)
		}

		if err != nil {
			logrus.WithError(err).WithField("provider", name).Warn("llm_provider_skipped")
			continue
		}
		providers = append(providers, service)
	}

	if len(providers) == 0 {
		return nil, fmt.Errorf("no usable providers in chain %q", cfg.ProviderChain)
	}
	return providers, nil
}
