package cerr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/autoprovision/pkg/storage"
)

func TestIsCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewError(AlreadyExists, "skill tool already exists", nil))
	assert.True(t, IsCode(err, AlreadyExists))
	assert.False(t, IsCode(err, NotFound))
	assert.False(t, IsCode(errors.New("plain"), AlreadyExists))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, OK, CodeOf(nil))
	assert.Equal(t, NotFound, CodeOf(NewError(NotFound, "x", nil)))
	assert.Equal(t, Canceled, CodeOf(context.Canceled))
	assert.Equal(t, DeadlineExceeded, CodeOf(fmt.Errorf("x: %w", context.DeadlineExceeded)))
	assert.Equal(t, Unknown, CodeOf(errors.New("boom")))
}

func TestNewError_StackOnlyForErrorLevel(t *testing.T) {
	assert.NotEmpty(t, NewError(Internal, "server error", nil).Stack)
	assert.Empty(t, NewError(NotFound, "skill not found", nil).Stack)
}

func TestWrapStorageReadError(t *testing.T) {
	err := WrapStorageReadError("skill", fmt.Errorf("skills/x.yaml: %w", storage.ErrNotFound))
	assert.True(t, IsCode(err, NotFound))
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	err = WrapStorageReadError("skill", errors.New("disk on fire"))
	assert.True(t, IsCode(err, Internal))
}

func TestJSONResponseChiMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
		wantCode   string
	}{
		{
			name: "response",
			handler: func(w http.ResponseWriter, r *http.Request) {
				SetJSONResponse(r.Context(), map[string]string{"ok": "yes"})
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "coded error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				SetNewJSONError(r.Context(), NotFound, "connection not found", nil)
			},
			wantStatus: http.StatusNotFound,
			wantCode:   "not_found",
		},
		{
			name: "foreign error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				SetJSONError(r.Context(), errors.New("boom"))
			},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "unknown",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewJSONResponseChiMiddleware()(tt.handler)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/x", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
			if tt.wantCode != "" {
				var body httpError
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, tt.wantCode, body.Code)
			}
		})
	}
}
