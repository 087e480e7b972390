package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/erp/invsync/internal/domain/shared"
	"github.com/erp/invsync/internal/interfaces/http/dto"
	"github.com/erp/invsync/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestGetRequestID(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*gin.Context)
		expectedID string
	}{
		{
			name: "from context",
			setup: func(c *gin.Context) {
				c.Set(middleware.RequestIDContextKey, "ctx-request-id")
			},
			expectedID: "ctx-request-id",
		},
		{
			name: "from header when context empty",
			setup: func(c *gin.Context) {
				c.Request.Header.Set(middleware.RequestIDKey, "header-request-id")
			},
			expectedID: "header-request-id",
		},
		{
			name:       "empty when not set",
			setup:      func(c *gin.Context) {},
			expectedID: "",
		},
		{
			name: "context takes precedence over header",
			setup: func(c *gin.Context) {
				c.Set(middleware.RequestIDContextKey, "ctx-id")
				c.Request.Header.Set(middleware.RequestIDKey, "header-id")
			},
			expectedID: "ctx-id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			tt.setup(c)
			assert.Equal(t, tt.expectedID, getRequestID(c))
		})
	}
}

func TestOperatorOf(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
	c.Request.Header.Set(middleware.OperatorHeader, "header-op")

	assert.Equal(t, "body-op", operatorOf(c, "body-op"))
	assert.Equal(t, "header-op", operatorOf(c, ""))
}

func TestBaseHandlerSuccess(t *testing.T) {
	h := &BaseHandler{}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	h.Success(c, map[string]string{"key": "value"})

	assert.Equal(t, http.StatusOK, w.Code)

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
}

func TestBaseHandlerSuccessWithMeta(t *testing.T) {
	h := &BaseHandler{}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	h.SuccessWithMeta(c, []string{"item1", "item2"}, 100, 1, 10)

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(100), resp.Meta.Total)
	assert.Equal(t, 10, resp.Meta.TotalPages)
}

func TestBaseHandlerCreatedAndAccepted(t *testing.T) {
	h := &BaseHandler{}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	h.Created(c, map[string]string{"id": "123"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	h.Accepted(c, map[string]bool{"emitted": true})
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestBaseHandlerNoContent(t *testing.T) {
	h := &BaseHandler{}

	router := gin.New()
	router.DELETE("/test", func(c *gin.Context) {
		h.NoContent(c)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/test", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.Bytes())
}

func TestBaseHandlerParseParams(t *testing.T) {
	h := &BaseHandler{}
	router := gin.New()
	router.GET("/lots/:id/lines/:index", func(c *gin.Context) {
		if _, ok := h.parseUUIDParam(c, "id", "lot ID"); !ok {
			return
		}
		if _, ok := h.parseIndexParam(c, "index"); !ok {
			return
		}
		c.Status(http.StatusOK)
	})

	tests := []struct {
		path     string
		expected int
		message  string
	}{
		{"/lots/6f1c7a4e-3b2d-4c11-9a0e-1f2e3d4c5b6a/lines/2", http.StatusOK, ""},
		{"/lots/not-a-uuid/lines/2", http.StatusBadRequest, "Invalid lot ID"},
		{"/lots/6f1c7a4e-3b2d-4c11-9a0e-1f2e3d4c5b6a/lines/-1", http.StatusBadRequest, "Invalid index"},
		{"/lots/6f1c7a4e-3b2d-4c11-9a0e-1f2e3d4c5b6a/lines/x", http.StatusBadRequest, "Invalid index"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.expected, w.Code)
			if tt.message != "" {
				assert.Contains(t, w.Body.String(), tt.message)
			}
		})
	}
}

func TestBaseHandlerErrorMethods(t *testing.T) {
	tests := []struct {
		name         string
		method       func(*BaseHandler, *gin.Context)
		expectedCode int
		expectedErr  string
	}{
		{"BadRequest", func(h *BaseHandler, c *gin.Context) { h.BadRequest(c, "Invalid request") }, http.StatusBadRequest, dto.ErrCodeBadRequest},
		{"NotFound", func(h *BaseHandler, c *gin.Context) { h.NotFound(c, "Resource not found") }, http.StatusNotFound, dto.ErrCodeNotFound},
		{"InternalError", func(h *BaseHandler, c *gin.Context) { h.InternalError(c, "boom") }, http.StatusInternalServerError, dto.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &BaseHandler{}
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			c.Set(middleware.RequestIDContextKey, "req-err")

			tt.method(h, c)

			assert.Equal(t, tt.expectedCode, w.Code)
			var resp dto.Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.expectedErr, resp.Error.Code)
			assert.Equal(t, "req-err", resp.Error.RequestID)
		})
	}
}

func TestBaseHandlerHandleError(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
		expectedReason string
	}{
		{"not found", shared.ErrNotFound, http.StatusNotFound, dto.ErrCodeNotFound, "NOT_FOUND"},
		{"wrapped not found", fmt.Errorf("lot: %w", shared.ErrNotFound), http.StatusNotFound, dto.ErrCodeNotFound, "NOT_FOUND"},
		{"already exists", shared.ErrAlreadyExists, http.StatusConflict, dto.ErrCodeConflict, "ALREADY_EXISTS"},
		{"concurrency conflict", shared.ErrConcurrencyConflict, http.StatusConflict, dto.ErrCodeConflict, "CONCURRENCY_CONFLICT"},
		{"validation", shared.NewValidationError("INVALID_LINE", "bad line"), http.StatusBadRequest, dto.ErrCodeValidation, "INVALID_LINE"},
		{"business rule", shared.NewBusinessRuleViolation("LOT_ALREADY_POSTED", "posted"), http.StatusConflict, dto.ErrCodeBusinessRule, "LOT_ALREADY_POSTED"},
		{"consistency", shared.NewConsistencyViolation("AMBIGUOUS_IDENTITY", "two items"), http.StatusUnprocessableEntity, dto.ErrCodeConsistency, "AMBIGUOUS_IDENTITY"},
		{"transient", shared.NewTransientError("db down", errors.New("dial")), http.StatusServiceUnavailable, dto.ErrCodeUnavailable, ""},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, dto.ErrCodeInternal, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &BaseHandler{}
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			h.HandleError(c, tt.err)

			assert.Equal(t, tt.expectedStatus, w.Code)
			var resp dto.Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.expectedCode, resp.Error.Code)
			if tt.expectedReason != "" {
				assert.Equal(t, tt.expectedReason, resp.Error.Reason)
			}
			assert.Len(t, c.Errors, 1)
		})
	}
}

func TestBaseHandlerHandleErrorNil(t *testing.T) {
	h := &BaseHandler{}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	h.HandleError(c, nil)

	assert.Empty(t, w.Body.Bytes())
}
