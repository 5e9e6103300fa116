package generate

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/paywall/internal/errs"
	"github.com/magabrotheeeer/paywall/internal/models"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Generate(ctx context.Context, planID string, count int, opts models.GenerateOptions) (*models.GeneratedKeys, error) {
	args := m.Called(ctx, planID, count, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.GeneratedKeys), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestGenerateHandler_ServeHTTP(t *testing.T) {
	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		body           string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "single use by default",
			body: `{"plan":"pro_monthly","count":2}`,
			setupMock: func(s *MockService) {
				s.On("Generate", mock.Anything, "pro_monthly", 2, models.GenerateOptions{SingleUse: true}).
					Return(&models.GeneratedKeys{
						Keys:     []string{"AAAAA-AAAAA-AAAAA-AAAAA-AAAAA", "BBBBB-BBBBB-BBBBB-BBBBB-BBBBB"},
						Metadata: models.LicenseBatch{PlanID: "pro_monthly", Count: 2, SingleUse: true},
					}, nil).Once()
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "explicit options",
			body: `{"plan":"pro_yearly","count":1,"expires_at":"2030-01-01T00:00:00Z","single_use":false,"issuer":"promo"}`,
			setupMock: func(s *MockService) {
				s.On("Generate", mock.Anything, "pro_yearly", 1, mock.MatchedBy(func(o models.GenerateOptions) bool {
					return !o.SingleUse && o.Issuer == "promo" && o.ExpiresAt != nil && o.ExpiresAt.Equal(expires)
				})).Return(&models.GeneratedKeys{
					Keys:     []string{"CCCCC-CCCCC-CCCCC-CCCCC-CCCCC"},
					Metadata: models.LicenseBatch{PlanID: "pro_yearly", Count: 1},
				}, nil).Once()
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "count over limit",
			body:           `{"plan":"pro_monthly","count":501}`,
			setupMock:      func(*MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `{"success":false,"message":"field Count must be at most 500"}`,
		},
		{
			name:           "missing plan",
			body:           `{"count":1}`,
			setupMock:      func(*MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `{"success":false,"message":"field Plan is a required field"}`,
		},
		{
			name: "unknown plan",
			body: `{"plan":"gold","count":1}`,
			setupMock: func(s *MockService) {
				s.On("Generate", mock.Anything, "gold", 1, models.GenerateOptions{SingleUse: true}).
					Return(nil, fmt.Errorf("catalog.ByKey: %w: unknown plan \"gold\"", errs.ErrValidation)).Once()
			},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `{"success":false,"message":"unknown plan \"gold\""}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)
			h := New(newNoopLogger(), svc)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/licenses", bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()

			h.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedBody != "" {
				assert.JSONEq(t, tt.expectedBody, w.Body.String())
			}
			svc.AssertExpectations(t)
		})
	}
}
