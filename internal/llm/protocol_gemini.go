package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

// Gemini uses a Google-style streaming endpoint instead of the OpenAI-compatible one.
// The request/response contracts stay local so every Gemini-flavoured gateway can
// call a single helper without duplicating glue code.
const geminiStreamEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/%s:streamGenerateContent?alt=sse"

// Request payload pieces ----------------------------------------------------
type (
	geminiInlineData struct {
		MimeType string `json:"mimeType,omitempty"`
		Data     string `json:"data,omitempty"`
	}
	geminiPart struct {
		Text       string            `json:"text,omitempty"`
		InlineData *geminiInlineData `json:"inlineData,omitempty"`
	}
	geminiContent struct {
		Role  string       `json:"role,omitempty"`
		Parts []geminiPart `json:"parts"`
	}
	geminiRequest struct {
		Contents []geminiContent `json:"contents"`
	}
)

// Response payload pieces ---------------------------------------------------
type (
	geminiCandidate struct {
		FinishReason string        `json:"finishReason,omitempty"`
		Content      geminiContent `json:"content"`
	}
	geminiError struct {
		Message string `json:"message"`
	}
	geminiUsage struct {
		PromptTokenCount     int64 `json:"promptTokenCount"`
		CandidatesTokenCount int64 `json:"candidatesTokenCount"`
	}
	geminiStreamChunk struct {
		Candidates    []geminiCandidate `json:"candidates"`
		UsageMetadata *geminiUsage      `json:"usageMetadata,omitempty"`
		Error         *geminiError      `json:"error,omitempty"`
	}
)

// GenerateImagesByGeminiProtocol streams Gemini image generations via SSE.
// Each reference image is preceded by a text part carrying its semantic
// description, so the model knows what role the image plays in the prompt.
// Token usage is taken from the final usageMetadata chunk.
func GenerateImagesByGeminiProtocol(ctx context.Context, apiKey, endpoint, model, prompt string, refs []ReferenceImage) (imageDataURLs []string, assistantText string, tokensIn, tokensOut int64, err error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, "", 0, 0, errors.New("api key missing")
	}
	if strings.TrimSpace(model) == "" {
		return nil, "", 0, 0, errors.New("model is required")
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, "", 0, 0, errors.New("prompt is empty")
	}

	logrus.WithFields(logrus.Fields{
		"model":                 model,
		"endpoint":              truncateForLog(endpoint, 128),
		"prompt_preview":        truncateForLog(prompt, 64),
		"prompt_length":         len(prompt),
		"reference_image_count": len(refs),
	}).Info("gemini_generate_images_start")

	parts, errs := buildGeminiParts(prompt, refs)
	if len(parts) == 0 {
		return nil, "", 0, 0, errors.New("no valid prompt or image parts for gemini request")
	}
	if len(errs) > 0 {
		logrus.WithFields(logrus.Fields{
			"error_count": len(errs),
			"errors":      strings.Join(errs, "; "),
		}).Warn("gemini some references could not be encoded")
	}

	reqBody := geminiRequest{
		Contents: []geminiContent{
			{
				Role:  "user",
				Parts: parts,
			},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, "", 0, 0, fmt.Errorf("gemini marshal request: %w", err)
	}

	targetURL := resolveGeminiEndpoint(endpoint, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, "", 0, 0, fmt.Errorf("gemini create request: %w", err)
	}
	// Prefer header to avoid logging API key inside URLs; most gateways accept this.
	req.Header.Set("x-goog-api-key", apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	httpCli := &http.Client{Timeout: 0} // disable client-level timeout for long-running streams
	resp, err := httpCli.Do(req)
	if err != nil {
		return nil, "", 0, 0, fmt.Errorf("gemini send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(resp.Body)
		logrus.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"body":   logSnippet(buf.String()),
		}).Error("gemini_generate_images_http_error")
		return nil, "", 0, 0, fmt.Errorf("gemini http %d: %s", resp.StatusCode, buf.String())
	}

	// Stream parsing: Gemini with ?alt=sse emits `data: { ... }` lines similar to OpenAI.
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	seenImages := make(map[string]struct{})
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			break
		}

		var chunk geminiStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			logrus.WithError(err).Warn("gemini failed to unmarshal stream chunk")
			continue
		}
		if chunk.Error != nil && strings.TrimSpace(chunk.Error.Message) != "" {
			logrus.WithField("message", chunk.Error.Message).Error("gemini_stream_error_chunk")
			assistantText = appendLine(assistantText, chunk.Error.Message)
			continue
		}
		if chunk.UsageMetadata != nil {
			tokensIn = chunk.UsageMetadata.PromptTokenCount
			tokensOut = chunk.UsageMetadata.CandidatesTokenCount
		}

		for _, cand := range chunk.Candidates {
			for _, part := range cand.Content.Parts {
				if part.Text != "" {
					assistantText = appendLine(assistantText, part.Text)
				}
				// InlineData carries a base64 image payload; wrap it into a data URL so
				// downstream consumers can persist it without guessing the MIME type.
				if part.InlineData != nil && strings.TrimSpace(part.InlineData.Data) != "" {
					dataURL := fmt.Sprintf("data:%s;base64,%s", fallbackMime(part.InlineData.MimeType), strings.TrimSpace(part.InlineData.Data))
					if _, ok := seenImages[dataURL]; !ok {
						seenImages[dataURL] = struct{}{}
						imageDataURLs = append(imageDataURLs, dataURL)
						logrus.WithFields(logrus.Fields{
							"mime":        part.InlineData.MimeType,
							"image_len":   len(part.InlineData.Data),
							"image_count": len(imageDataURLs),
						}).Info("gemini_collected_inline_image")
					}
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, assistantText, tokensIn, tokensOut, fmt.Errorf("gemini stream read error: %w", err)
	}
	if len(imageDataURLs) == 0 {
		return nil, strings.TrimSpace(assistantText), tokensIn, tokensOut, ErrNoImages
	}

	return imageDataURLs, strings.TrimSpace(assistantText), tokensIn, tokensOut, nil
}

// buildGeminiParts converts the prompt and reference images into the Gemini
// Content/Part structure. Descriptions become text parts placed immediately
// before the image they describe. Bad references are collected for logging but
// skipped so one empty buffer does not block the entire request.
func buildGeminiParts(prompt string, refs []ReferenceImage) ([]geminiPart, []string) {
	parts := []geminiPart{
		{Text: strings.TrimSpace(prompt)},
	}

	var errs []string
	for idx, ref := range refs {
		if len(ref.Data) == 0 {
			errs = append(errs, fmt.Sprintf("ref %d: empty payload", idx))
			continue
		}
		if desc := strings.TrimSpace(ref.Description); desc != "" {
			parts = append(parts, geminiPart{Text: desc})
		}
		parts = append(parts, geminiPart{
			InlineData: &geminiInlineData{
				MimeType: fallbackMime(ref.MimeType),
				Data:     base64.StdEncoding.EncodeToString(ref.Data),
			},
		})
	}

	return parts, errs
}

// appendLine concatenates messages with newlines, avoiding empty prefixes.
func appendLine(current, next string) string {
	next = strings.TrimSpace(next)
	if next == "" {
		return current
	}
	if strings.TrimSpace(current) == "" {
		return next
	}
	return current + "\n" + next
}

// fallbackMime normalizes empty/unknown mime types to a sensible default.
func fallbackMime(mimeType string) string {
	v := strings.TrimSpace(mimeType)
	if v == "" {
		return "image/jpeg"
	}
	// Strip charset if present.
	if idx := strings.Index(v, ";"); idx > 0 {
		return strings.TrimSpace(v[:idx])
	}
	return v
}

// resolveGeminiEndpoint builds the request URL from a provided endpoint template or base URL.
// - If endpoint contains "%s", it is treated as a fmt template and will be formatted with model.
// - If endpoint is a bare base URL, the default Gemini suffix is appended.
// - If empty, fall back to the public Gemini endpoint.
func resolveGeminiEndpoint(endpoint, model string) string {
	base := strings.TrimSpace(endpoint)
	if base == "" {
		return fmt.Sprintf(geminiStreamEndpoint, model)
	}

	if strings.Contains(base, "%s") {
		return fmt.Sprintf(base, model)
	}

	base = strings.TrimRight(base, "/")
	return fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse", base, model)
}
