package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/mvh70/teamshots-sub010/internal/auth"
	"github.com/mvh70/teamshots-sub010/internal/entity"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func (h *HTTPHandler) Login(c *gin.Context) {
	if h.repo == nil {
		ServiceUnavailable(c, "person repository not available")
		return
	}

	var req entity.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	password := strings.TrimSpace(req.Password)
	if email == "" || password == "" {
		BadRequest(c, ErrCodeMissingField, "email and password are required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	person, err := h.repo.GetPersonByEmail(ctx, email)
	if err != nil || person == nil {
		logrus.WithField("email", email).Warn("login attempt failed")
		ErrorResponse(c, http.StatusUnauthorized, ErrCodeInvalidCredentials, "invalid email or password")
		return
	}

	if !person.IsActive {
		ErrorResponse(c, http.StatusForbidden, ErrCodePersonDisabled, "person is disabled")
		return
	}

	if err := auth.VerifyPassword(person.PasswordHash, password); err != nil {
		logrus.WithField("email", email).Warn("password verification failed")
		ErrorResponse(c, http.StatusUnauthorized, ErrCodeInvalidCredentials, "invalid email or password")
		return
	}

	token, expiresAt, err := h.authManager.GenerateToken(person)
	if err != nil {
		logrus.WithError(err).Error("failed to generate token")
		InternalError(c, "failed to create session")
		return
	}

	c.JSON(http.StatusOK, entity.LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		PersonID:  person.ID,
		TeamID:    person.TeamID,
		Role:      person.Role,
	})
}

func (h *HTTPHandler) Me(c *gin.Context) {
	person := CurrentPerson(c)
	if person == nil {
		Unauthorized(c, "authentication required")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"person_id":    person.ID,
		"email":        person.Email,
		"display_name": person.DisplayName,
		"role":         person.Role,
		"team_id":      person.TeamID,
		"plan_tier":    person.PlanTier,
	})
}
