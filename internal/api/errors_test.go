package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mvh70/teamshots-sub010/internal/credit"
	"github.com/mvh70/teamshots-sub010/internal/entity"

	"github.com/gin-gonic/gin"
)

func TestErrorResponse(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		status         int
		code           string
		message        string
		expectedStatus int
		expectedCode   string
		expectedMsg    string
	}{
		{
			name:           "BadRequest",
			status:         http.StatusBadRequest,
			code:           ErrCodeInvalidRequest,
			message:        "无效的请求",
			expectedStatus: http.StatusBadRequest,
			expectedCode:   ErrCodeInvalidRequest,
			expectedMsg:    "无效的请求",
		},
		{
			name:           "NotFound",
			status:         http.StatusNotFound,
			code:           ErrCodeGenerationNotFound,
			message:        "生成记录不存在",
			expectedStatus: http.StatusNotFound,
			expectedCode:   ErrCodeGenerationNotFound,
			expectedMsg:    "生成记录不存在",
		},
		{
			name:           "InternalError",
			status:         http.StatusInternalServerError,
			code:           ErrCodeInternalError,
			message:        "服务器内部错误",
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   ErrCodeInternalError,
			expectedMsg:    "服务器内部错误",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			ErrorResponse(c, tt.status, tt.code, tt.message)

			if w.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, w.Code)
			}

			var response APIError
			if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}

			if response.Code != tt.expectedCode {
				t.Errorf("expected code %s, got %s", tt.expectedCode, response.Code)
			}

			if response.Message != tt.expectedMsg {
				t.Errorf("expected message %s, got %s", tt.expectedMsg, response.Message)
			}
		})
	}
}

func TestErrorResponseWithDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	ErrorResponseWithDetails(c, http.StatusBadRequest, ErrCodeMissingField, "selfie_keys is required", gin.H{"field": "selfie_keys"})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}

	var response APIError
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if response.Details == nil {
		t.Fatal("expected details in response")
	}
}

func TestInsufficientCreditsResponse(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	InsufficientCredits(c, &credit.ErrInsufficientCredits{
		Required:  5,
		Available: 2,
		Reason:    "personal account",
		Source:    string(entity.SourceIndividual),
	})

	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("expected status 402, got %d", w.Code)
	}

	var response entity.InsufficientCreditsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if response.Error != "insufficient_credits" {
		t.Fatalf("error = %q", response.Error)
	}
	if response.Required != 5 || response.Available != 2 {
		t.Fatalf("required/available = %d/%d", response.Required, response.Available)
	}
	if response.Source != entity.SourceIndividual {
		t.Fatalf("source = %q", response.Source)
	}
}
