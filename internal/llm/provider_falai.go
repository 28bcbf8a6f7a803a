package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	falAPIBaseURL      = "https://fal.run"
	falPollInterval    = 2 * time.Second
	falMaxPollAttempts = 60
)

type falImagePayload struct {
	URL     string `json:"url,omitempty"`
	Base64  string `json:"base64,omitempty"`
	B64JSON string `json:"b64_json,omitempty"`
}

func (p falImagePayload) dataOrURL() string {
	if url := strings.TrimSpace(p.URL); url != "" {
		return url
	}
	if b64 := strings.TrimSpace(p.Base64); b64 != "" {
		if strings.HasPrefix(b64, "data:") {
			return b64
		}
		return "data:image/png;base64," + b64
	}
	if b64 := strings.TrimSpace(p.B64JSON); b64 != "" {
		return "data:image/png;base64," + b64
	}
	return ""
}

type falError struct {
	Message string `json:"message"`
}

type falEnvelope struct {
	Status      string            `json:"status,omitempty"`
	RequestID   string            `json:"request_id,omitempty"`
	ResponseURL string            `json:"response_url,omitempty"`
	StatusURL   string            `json:"status_url,omitempty"`
	Images      []falImagePayload `json:"images,omitempty"`
	Image       *falImagePayload  `json:"image,omitempty"`
	Error       *falError         `json:"error,omitempty"`
}

func (e *falEnvelope) images() []string {
	if e == nil {
		return nil
	}
	var out []string
	seen := make(map[string]struct{})
	collect := func(p falImagePayload) {
		v := p.dataOrURL()
		if v == "" {
			return
		}
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	for _, img := range e.Images {
		collect(img)
	}
	if e.Image != nil {
		collect(*e.Image)
	}
	return out
}

// FalAI is the flat-priced fallback backend. fal.run endpoints are synchronous
// for short jobs but may hand back a queue URL that has to be polled.
type FalAI struct {
	apiKey     string
	model      string
	httpClient *http.Client
	pricing    Pricing
}

func NewFalAI(apiKey, model string) (*FalAI, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("fal.ai api key is not configured")
	}
	if strings.TrimSpace(model) == "" {
		model = "fal-ai/hunyuan-image/v3/text-to-image"
	}

	return &FalAI{
		apiKey:     apiKey,
		model:      strings.Trim(model, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		pricing: Pricing{
			Shape:       PricingFlat,
			PerImageUSD: 0.10,
		},
	}, nil
}

func (f *FalAI) ProviderID() string {
	return "fal"
}

func (f *FalAI) Pricing() Pricing {
	return f.pricing
}

func (f *FalAI) GenerateImages(ctx context.Context, request GenerateRequest) (*GenerateResult, error) {
	if f == nil {
		return nil, errors.New("fal.ai provider not initialised")
	}

	prompt := strings.TrimSpace(request.Prompt)
	if prompt == "" {
		return nil, errors.New("prompt is required")
	}

	providerLogger(ctx, f.ProviderID(), f.model).WithFields(map[string]interface{}{
		"prompt_preview":        logSnippet(prompt),
		"reference_image_count": len(request.References),
	}).Info("falai_generate_images_start")

	input := map[string]any{
		"prompt":     prompt,
		"num_images": 1,
	}
	if strings.Contains(f.model, "image-to-image") {
		ref := firstReferenceDataURL(request.References)
		if ref == "" {
			return nil, errors.New("image-to-image model requires at least one reference image")
		}
		input["image_url"] = ref
	}

	envelope, err := f.submitAndWait(ctx, "/"+f.model, map[string]any{"input": input})
	if err != nil {
		return nil, err
	}

	images := envelope.images()
	if len(images) == 0 {
		return nil, ErrNoImages
	}

	return &GenerateResult{Images: images}, nil
}

func firstReferenceDataURL(refs []ReferenceImage) string {
	for _, ref := range refs {
		if url := ref.DataURL(); url != "" {
			return url
		}
	}
	return ""
}

func (f *FalAI) submitAndWait(ctx context.Context, endpoint string, payload map[string]any) (*falEnvelope, error) {
	bs, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("fal.ai marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, falAPIBaseURL+endpoint, bytes.NewReader(bs))
	if err != nil {
		return nil, fmt.Errorf("fal.ai create request: %w", err)
	}
	req.Header.Set("Authorization", "Key "+f.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fal.ai submit request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fal.ai read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fal.ai http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var envelope falEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("fal.ai decode response: %w", err)
	}
	if envelope.Error != nil {
		return nil, fmt.Errorf("fal.ai error: %s", envelope.Error.Message)
	}
	if len(envelope.images()) > 0 {
		return &envelope, nil
	}

	responseURL := strings.TrimSpace(envelope.ResponseURL)
	if responseURL == "" {
		responseURL = strings.TrimSpace(envelope.StatusURL)
	}
	if responseURL == "" {
		return &envelope, nil
	}
	return f.pollForCompletion(ctx, responseURL, envelope.RequestID)
}

func (f *FalAI) pollForCompletion(ctx context.Context, responseURL, requestID string) (*falEnvelope, error) {
	attempts := 0
	ticker := time.NewTicker(falPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("fal.ai poll cancelled: %w", ctx.Err())
		case <-ticker.C:
			attempts++
			envelope, done, err := f.fetchResponse(ctx, responseURL)
			if err != nil {
				return nil, err
			}
			if done {
				return envelope, nil
			}
			logrus.WithFields(logrus.Fields{
				"request_id": requestID,
				"status":     envelope.Status,
				"attempt":    attempts,
			}).Info("falai_poll_pending")
			if attempts >= falMaxPollAttempts {
				return nil, errors.New("fal.ai polling exceeded maximum attempts")
			}
		}
	}
}

func (f *FalAI) fetchResponse(ctx context.Context, url string) (*falEnvelope, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("fal.ai create poll request: %w", err)
	}
	req.Header.Set("Authorization", "Key "+f.apiKey)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("fal.ai poll request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("fal.ai poll read: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, false, fmt.Errorf("fal.ai poll http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var envelope falEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, false, fmt.Errorf("fal.ai poll decode: %w", err)
	}

	status := strings.ToUpper(strings.TrimSpace(envelope.Status))
	switch status {
	case "COMPLETED":
		if envelope.Error != nil {
			return &envelope, true, fmt.Errorf("fal.ai error: %s", envelope.Error.Message)
		}
		return &envelope, true, nil
	case "FAILED", "CANCELLED", "ERROR":
		if envelope.Error != nil {
			return &envelope, true, fmt.Errorf("fal.ai error: %s", envelope.Error.Message)
		}
		return &envelope, true, fmt.Errorf("fal.ai job %s", strings.ToLower(status))
	default:
		return &envelope, false, nil
	}
}
