package api

import (
	"errors"
	"net/http"

	"github.com/mvh70/teamshots-sub010/internal/credit"
	"github.com/mvh70/teamshots-sub010/internal/entity"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// GetCreditBalance 返回请求者当前默认扣费来源与可用余额。
func (h *HTTPHandler) GetCreditBalance(c *gin.Context) {
	person := CurrentPerson(c)
	if person == nil {
		Unauthorized(c, "authentication required")
		return
	}

	balance, err := h.generationService.Balance(c.Request.Context(), person.ID)
	if err != nil {
		logrus.WithError(err).WithField("person_id", person.ID).Error("failed to resolve credit balance")
		InternalError(c, "failed to resolve credit balance")
		return
	}

	c.JSON(http.StatusOK, balance)
}

// GrantCredits 管理员向指定账户加款。
func (h *HTTPHandler) GrantCredits(c *gin.Context) {
	var req entity.GrantCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	granted, err := h.generationService.GrantCredits(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, credit.ErrInvalidAmount) {
			BadRequest(c, ErrCodeInvalidRequest, "amount must be positive or resolvable from the team allocation")
			return
		}
		logrus.WithError(err).WithFields(logrus.Fields{
			"scope":    req.Scope,
			"owner_id": req.OwnerID,
		}).Error("failed to grant credits")
		BadRequest(c, ErrCodeInvalidRequest, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"granted": granted})
}
