package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrNoImages signals that a provider answered without producing any image.
// The gateway treats it as recoverable and moves on to the next provider.
var ErrNoImages = errors.New("provider response did not include image data")

// ReferenceImage is an input image with a semantic hint telling the model
// what the image is for ("REFERENCE IMAGE - Subject Face", "LOGO REFERENCE").
type ReferenceImage struct {
	MimeType    string
	Data        []byte
	Description string
}

// DataURL encodes the reference as a data URL for providers that take
// OpenAI-style image_url parts.
func (r ReferenceImage) DataURL() string {
	if len(r.Data) == 0 {
		return ""
	}
	mime := strings.TrimSpace(r.MimeType)
	if mime == "" {
		mime = "image/jpeg"
	}
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(r.Data))
}

// GenerateRequest is the provider-independent image generation request.
type GenerateRequest struct {
	Prompt      string
	References  []ReferenceImage
	AspectRatio string
}

// GenerateResult carries the generated images plus the accounting payload.
// Images are data URLs or provider-hosted URLs; Provider names the backend
// that actually served the call.
type GenerateResult struct {
	Images      []string
	Provider    string
	Thinking    string
	TokensIn    int64
	TokensOut   int64
	CallCostUSD float64
}

// ImageCount reports the number of non-empty images in the result.
func (r *GenerateResult) ImageCount() int {
	if r == nil {
		return 0
	}
	count := 0
	for _, img := range r.Images {
		if strings.TrimSpace(img) != "" {
			count++
		}
	}
	return count
}

// ImageService is implemented by each provider backend.
type ImageService interface {
	// ProviderID returns the stable identifier used for cost attribution.
	ProviderID() string

	// GenerateImages performs one synchronous generation call.
	GenerateImages(ctx context.Context, request GenerateRequest) (*GenerateResult, error)

	// Pricing returns the cost model of this backend.
	Pricing() Pricing
}
