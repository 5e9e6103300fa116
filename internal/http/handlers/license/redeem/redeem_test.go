package redeem

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/paywall/internal/errs"
	"github.com/magabrotheeeer/paywall/internal/http/middlewarectx"
	"github.com/magabrotheeeer/paywall/internal/models"
	"github.com/magabrotheeeer/paywall/internal/services/license"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Redeem(ctx context.Context, key string, target license.Target) (*models.RedeemResult, error) {
	args := m.Called(ctx, key, target)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RedeemResult), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

const key = "ABCDE-FGHJK-LMNPQ-RSTUV-WXYZ2"

func TestRedeemHandler_ServeHTTP(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		accountID      string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "device redeem",
			body: `{"key":"` + key + `","fingerprint":"fp-1"}`,
			setupMock: func(s *MockService) {
				s.On("Redeem", mock.Anything, key, license.Target{Fingerprint: "fp-1"}).Return(&models.RedeemResult{
					PlanID:  "pro_monthly",
					BoundTo: models.BoundTo{Kind: "device", ID: "dev-1"},
				}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody: `{"success":true,"message":"ok","data":{"plan_id":"pro_monthly",` +
				`"bound_to":{"kind":"device","id":"dev-1"}}}`,
		},
		{
			name:      "authenticated caller redeems for account",
			body:      `{"key":"` + key + `","fingerprint":"fp-1"}`,
			accountID: "acc-1",
			setupMock: func(s *MockService) {
				s.On("Redeem", mock.Anything, key, license.Target{AccountID: "acc-1"}).Return(&models.RedeemResult{
					PlanID:  "pro_monthly",
					BoundTo: models.BoundTo{Kind: "account", ID: "acc-1"},
				}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody: `{"success":true,"message":"ok","data":{"plan_id":"pro_monthly",` +
				`"bound_to":{"kind":"account","id":"acc-1"}}}`,
		},
		{
			name:           "missing key",
			body:           `{"fingerprint":"fp-1"}`,
			setupMock:      func(*MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `{"success":false,"message":"field Key is a required field"}`,
		},
		{
			name:           "invalid JSON",
			body:           `{`,
			setupMock:      func(*MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"success":false,"message":"invalid request body"}`,
		},
		{
			name: "unknown key",
			body: `{"key":"nope","fingerprint":"fp-1"}`,
			setupMock: func(s *MockService) {
				s.On("Redeem", mock.Anything, "nope", license.Target{Fingerprint: "fp-1"}).
					Return(nil, fmt.Errorf("license.Redeem: %w", errs.ErrInvalidKey)).Once()
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `{"success":false,"message":"invalid license key"}`,
		},
		{
			name: "already redeemed",
			body: `{"key":"` + key + `","fingerprint":"fp-1"}`,
			setupMock: func(s *MockService) {
				s.On("Redeem", mock.Anything, key, license.Target{Fingerprint: "fp-1"}).
					Return(nil, fmt.Errorf("license.Redeem: %w", errs.ErrAlreadyRedeemed)).Once()
			},
			expectedStatus: http.StatusConflict,
			expectedBody:   `{"success":false,"message":"license key already redeemed"}`,
		},
		{
			name: "unknown device",
			body: `{"key":"` + key + `","fingerprint":"fp-x"}`,
			setupMock: func(s *MockService) {
				s.On("Redeem", mock.Anything, key, license.Target{Fingerprint: "fp-x"}).
					Return(nil, fmt.Errorf("license.Redeem: %w", errs.ErrDeviceNotFound)).Once()
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `{"success":false,"message":"device not found"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)
			h := New(newNoopLogger(), svc)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/license/redeem", bytes.NewBufferString(tt.body))
			if tt.accountID != "" {
				ctx := context.WithValue(req.Context(), middlewarectx.PrincipalKey, &models.Principal{SubjectID: tt.accountID})
				req = req.WithContext(ctx)
			}
			w := httptest.NewRecorder()

			h.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
			svc.AssertExpectations(t)
		})
	}
}
