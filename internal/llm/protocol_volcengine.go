package llm

import (
	"context"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/volcengine/volcengine-go-sdk/service/arkruntime"
	volcModel "github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"
	"github.com/volcengine/volcengine-go-sdk/volcengine"
)

// 文档: https://www.volcengine.com/docs/82379/1824121
func GenerateImagesByVolcengineProtocol(ctx context.Context, apiKey, model, prompt, size string, base64Images []string) (imageURLs []string, assistantText string, err error) {
	client := arkruntime.NewClientWithApiKey(apiKey)

	if strings.TrimSpace(size) == "" {
		size = "2K"
	}

	var sequentialImageGeneration volcModel.SequentialImageGeneration = "disabled"
	maxImages := 5
	generateReq := volcModel.GenerateImagesRequest{
		Model:                     model,
		Prompt:                    prompt,
		Image:                     base64Images,
		Size:                      volcengine.String(size),
		ResponseFormat:            volcengine.String(volcModel.GenerateImagesResponseFormatURL),
		Watermark:                 volcengine.Bool(false),
		SequentialImageGeneration: &sequentialImageGeneration,
		SequentialImageGenerationOptions: &volcModel.SequentialImageGenerationOptions{
			MaxImages: &maxImages,
		},
	}

	stream, err := client.GenerateImagesStreaming(ctx, generateReq)
	if err != nil {
		logrus.WithError(err).Error("volcengine_generate_images_stream_failed")
		return nil, "", err
	}
	defer stream.Close()

	for {
		recv, recvErr := stream.Recv()
		if recvErr == io.EOF {
			break
		}
		if recvErr != nil {
			logrus.WithError(recvErr).Error("volcengine_stream_recv_error")
			break
		}
		if recv.Type == "image_generation.partial_failed" && recv.Error != nil {
			logrus.WithField("message", recv.Error.Message).Warn("volcengine_partial_failed")
			assistantText = appendLine(assistantText, recv.Error.Message)
			if strings.EqualFold(recv.Error.Code, "InternalServiceError") {
				break
			}
		}
		if recv.Type == "image_generation.partial_succeeded" {
			if recv.Error == nil && recv.Url != nil && strings.TrimSpace(*recv.Url) != "" {
				imageURLs = append(imageURLs, strings.TrimSpace(*recv.Url))
				logrus.WithFields(logrus.Fields{
					"size":        recv.Size,
					"image_count": len(imageURLs),
				}).Info("volcengine_collected_image")
			}
		}
	}

	if len(imageURLs) == 0 {
		return nil, strings.TrimSpace(assistantText), ErrNoImages
	}
	return imageURLs, strings.TrimSpace(assistantText), nil
}
