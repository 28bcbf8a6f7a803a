package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

type orImageURL struct {
	URL string `json:"url"`
}
type orImage struct {
	Type     string     `json:"type"` // "image_url"
	ImageURL orImageURL `json:"image_url"`
}

type orDelta struct {
	Content string    `json:"content"`
	Images  []orImage `json:"images"`
}
type orChoice struct {
	Delta        orDelta `json:"delta"`
	FinishReason string  `json:"finish_reason"`
	Index        int     `json:"index"`
}
type orUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}
type orStreamChunk struct {
	Choices []orChoice `json:"choices"`
	Usage   *orUsage   `json:"usage,omitempty"`
}

type orMsgPart struct {
	Type     string      `json:"type"` // "text" | "image_url"
	Text     string      `json:"text,omitempty"`
	ImageURL *orImageURL `json:"image_url,omitempty"`
}
type orMessage struct {
	Role    string      `json:"role"` // "user"
	Content interface{} `json:"content"`
}

// 参考图的语义描述作为文本段放在对应 image_url 之前。
func makeUserMessage(prompt string, refs []ReferenceImage) orMessage {
	parts := []orMsgPart{{Type: "text", Text: prompt}}
	for _, ref := range refs {
		dataURL := ref.DataURL()
		if dataURL == "" {
			continue
		}
		if desc := strings.TrimSpace(ref.Description); desc != "" {
			parts = append(parts, orMsgPart{Type: "text", Text: desc})
		}
		parts = append(parts, orMsgPart{
			Type:     "image_url",
			ImageURL: &orImageURL{URL: dataURL},
		})
	}
	return orMessage{Role: "user", Content: parts}
}

// GenerateImagesByOpenaiProtocol streams an OpenAI-compatible chat completion
// that yields images in the delta. Usage comes from the trailing usage chunk
// when the gateway supports stream_options.include_usage.
func GenerateImagesByOpenaiProtocol(ctx context.Context, apiKey, baseURL, model, prompt string, refs []ReferenceImage) (imageDataURLs []string, assistantText string, tokensIn, tokensOut int64, err error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, "", 0, 0, errors.New("api key missing")
	}

	logrus.WithFields(logrus.Fields{
		"model":                 model,
		"prompt_length":         len(prompt),
		"reference_image_count": len(refs),
	}).Info("openai_generate_images_start")

	reqBody := map[string]any{
		"model":          model,
		"messages":       []orMessage{makeUserMessage(prompt, refs)},
		"modalities":     []string{"image", "text"},
		"stream":         true,
		"stream_options": map[string]any{"include_usage": true},
	}

	bs, err := json.Marshal(reqBody)
	if err != nil {
		return nil, "", 0, 0, fmt.Errorf("openai marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL, bytes.NewReader(bs))
	if err != nil {
		return nil, "", 0, 0, fmt.Errorf("openai create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	httpCli := &http.Client{Timeout: 0} // SSE 不要超短超时
	resp, err := httpCli.Do(req)
	if err != nil {
		return nil, "", 0, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(resp.Body)
		logrus.WithFields(logrus.Fields{
			"base_url": baseURL,
			"status":   resp.StatusCode,
			"body":     logSnippet(buf.String()),
		}).Error("openai_generate_images_http_error")
		return nil, "", 0, 0, fmt.Errorf("openai-compatible http %d: %s", resp.StatusCode, buf.String())
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	seenImages := make(map[string]struct{})
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var chunk orStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Usage != nil {
			tokensIn = chunk.Usage.PromptTokens
			tokensOut = chunk.Usage.CompletionTokens
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			assistantText += delta.Content
		}
		for _, img := range delta.Images {
			url := strings.TrimSpace(img.ImageURL.URL)
			if url == "" {
				continue
			}
			if _, ok := seenImages[url]; ok {
				continue
			}
			seenImages[url] = struct{}{}
			imageDataURLs = append(imageDataURLs, url)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, "", tokensIn, tokensOut, err
	}
	if len(imageDataURLs) == 0 {
		return nil, strings.TrimSpace(assistantText), tokensIn, tokensOut, ErrNoImages
	}
	return imageDataURLs, strings.TrimSpace(assistantText), tokensIn, tokensOut, nil
}
