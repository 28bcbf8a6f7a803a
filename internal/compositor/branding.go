package compositor

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mvh70/teamshots-sub010/internal/llm"
	"github.com/mvh70/teamshots-sub010/internal/utils"

	"github.com/sirupsen/logrus"
)

// Brander produces branded backgrounds through the provider gateway. Branding
// is best effort: provider failures return (nil, nil) so the workflow falls
// back to an unbranded background instead of failing the generation.
type Brander struct {
	gateway *llm.Gateway
}

func NewBrander(gateway *llm.Gateway) *Brander {
	return &Brander{gateway: gateway}
}

// BrandCustomBackground edits an uploaded background in place, placing the
// logo as natural environmental signage.
func (b *Brander) BrandCustomBackground(ctx context.Context, background, logo []byte) ([]byte, error) {
	if b == nil || b.gateway == nil {
		return nil, nil
	}
	if len(background) == 0 || len(logo) == 0 {
		return nil, fmt.Errorf("background and logo are required")
	}

	request := llm.GenerateRequest{
		Prompt: "Edit the background image so the provided logo appears as natural environmental signage " +
			"(wall sign, glass etching, or display screen). Keep composition, lighting and colors otherwise unchanged. " +
			"Do not add people.",
		References: []llm.ReferenceImage{
			{MimeType: "image/png", Data: background, Description: "BACKGROUND REFERENCE - edit this image"},
			{MimeType: "image/png", Data: logo, Description: "LOGO REFERENCE - place this logo as signage"},
		},
	}

	result, err := b.gateway.Generate(ctx, request)
	if err != nil {
		logrus.WithError(err).Warn("branding_custom_background_failed")
		return nil, nil
	}
	return firstImageBytes(ctx, result.Images)
}

// GenerateBrandedEnvironmentScene creates a new branded background from a
// serialized scene description in one provider call.
func (b *Brander) GenerateBrandedEnvironmentScene(ctx context.Context, sceneInstruction string, logo []byte) ([]byte, error) {
	if b == nil || b.gateway == nil {
		return nil, nil
	}
	if strings.TrimSpace(sceneInstruction) == "" {
		return nil, fmt.Errorf("scene instruction is empty")
	}

	request := llm.GenerateRequest{
		Prompt: sceneInstruction,
	}
	if len(logo) > 0 {
		request.References = append(request.References, llm.ReferenceImage{
			MimeType:    "image/png",
			Data:        logo,
			Description: "LOGO REFERENCE - integrate this logo into the scene as signage",
		})
	}

	result, err := b.gateway.Generate(ctx, request)
	if err != nil {
		logrus.WithError(err).Warn("branding_environment_scene_failed")
		return nil, nil
	}
	return firstImageBytes(ctx, result.Images)
}

// firstImageBytes materializes the first usable image of a provider result.
// Data URLs are decoded inline, remote URLs are downloaded.
func firstImageBytes(ctx context.Context, images []string) ([]byte, error) {
	for _, img := range images {
		img = strings.TrimSpace(img)
		if img == "" {
			continue
		}

		if strings.HasPrefix(img, "http://") || strings.HasPrefix(img, "https://") {
			data, err := downloadImage(ctx, img)
			if err != nil {
				logrus.WithError(err).Warn("branding_download_failed")
				continue
			}
			return data, nil
		}

		_, payload := utils.SplitDataURL(utils.EnsureDataURL(img))
		data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
		if err != nil {
			logrus.WithError(err).Warn("branding_decode_failed")
			continue
		}
		return data, nil
	}
	return nil, nil
}

func downloadImage(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download image http %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
