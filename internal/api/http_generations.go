package api

import (
	"errors"
	"net/http"

	"github.com/mvh70/teamshots-sub010/internal/credit"
	"github.com/mvh70/teamshots-sub010/internal/entity"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SubmitGeneration 提交一次生成请求。
// 客户端可归因的错误（自拍缺失、风格错误、余额不足）同步返回。
func (h *HTTPHandler) SubmitGeneration(c *gin.Context) {
	person := CurrentPerson(c)
	if person == nil {
		Unauthorized(c, "authentication required")
		return
	}

	var req entity.SubmitGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	resp, err := h.generationService.Submit(c.Request.Context(), person.ID, &req)
	if err != nil {
		if insufficient, ok := credit.AsInsufficientCredits(err); ok {
			InsufficientCredits(c, insufficient)
			return
		}
		if errors.Is(err, credit.ErrSourceMismatch) {
			ErrorResponse(c, http.StatusConflict, ErrCodeSourceMismatch, "credit source changed, refresh and retry")
			return
		}
		logrus.WithError(err).WithField("person_id", person.ID).Warn("generation submit rejected")
		BadRequest(c, ErrCodeInvalidRequest, err.Error())
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// GetGeneration 查询单条生成记录，输出键转换为可访问的 URL。
func (h *HTTPHandler) GetGeneration(c *gin.Context) {
	person := CurrentPerson(c)
	if person == nil {
		Unauthorized(c, "authentication required")
		return
	}

	id := c.Param("id")
	generation, err := h.generationService.GetGeneration(c.Request.Context(), person, id)
	if err != nil {
		logrus.WithError(err).WithField("generation_id", id).Error("failed to load generation")
		InternalError(c, "failed to load generation")
		return
	}
	if generation == nil {
		NotFound(c, ErrCodeGenerationNotFound, "generation not found")
		return
	}

	item := entity.ToGenerationItem(*generation)
	for i, key := range item.OutputKeys {
		item.OutputKeys[i] = h.publicURL(key)
	}
	c.JSON(http.StatusOK, item)
}

// ListGenerations 列出请求者可见的生成记录。
func (h *HTTPHandler) ListGenerations(c *gin.Context) {
	person := CurrentPerson(c)
	if person == nil {
		Unauthorized(c, "authentication required")
		return
	}

	var params entity.GenerationQuery
	if err := c.ShouldBindQuery(&params); err != nil {
		InvalidPayload(c)
		return
	}

	generations, meta, err := h.generationService.ListGenerations(c.Request.Context(), person, &params)
	if err != nil {
		logrus.WithError(err).WithField("person_id", person.ID).Error("failed to list generations")
		InternalError(c, "failed to list generations")
		return
	}

	items := make([]entity.GenerationItem, 0, len(generations))
	for _, g := range generations {
		item := entity.ToGenerationItem(g)
		for i, key := range item.OutputKeys {
			item.OutputKeys[i] = h.publicURL(key)
		}
		items = append(items, item)
	}

	c.JSON(http.StatusOK, entity.GenerationListResponse{
		Generations: items,
		Meta:        meta,
	})
}
