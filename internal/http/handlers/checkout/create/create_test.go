package create

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
	"github.com/magabrotheeeer/paywall/internal/services/checkout"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) CreateSession(ctx context.Context, req checkout.Request) (*checkout.Session, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*checkout.Session), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

const urls = `"success_url":"https://app.example.com/ok","cancel_url":"https://app.example.com/cancel"`

func TestCreateHandler_ServeHTTP(t *testing.T) {
	trialEnd := int64(1709553600)

	tests := []struct {
		name           string
		body           string
		principal      *models.Principal
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "device in trial",
			body: `{"plan":"pro_monthly","fingerprint":"fp-1",` + urls + `}`,
			setupMock: func(s *MockService) {
				s.On("CreateSession", mock.Anything, checkout.Request{
					Fingerprint: "fp-1",
					Plan:        "pro_monthly",
					SuccessURL:  "https://app.example.com/ok",
					CancelURL:   "https://app.example.com/cancel",
				}).Return(&checkout.Session{
					ID: "cs_1", URL: "https://pay.example.com/cs_1", Plan: "pro_monthly",
					TrialEnd: &trialEnd, BoundTo: models.BoundTo{Kind: "device", ID: "dev-1"},
				}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody: `{"success":true,"message":"ok","data":{"id":"cs_1","url":"https://pay.example.com/cs_1",` +
				`"plan":"pro_monthly","trial_end":1709553600,"bound_to":{"kind":"device","id":"dev-1"}}}`,
		},
		{
			name:      "account wins over fingerprint",
			body:      `{"plan":"pro_yearly","fingerprint":"fp-1",` + urls + `}`,
			principal: &models.Principal{SubjectID: "acc-1", Email: "user@example.com"},
			setupMock: func(s *MockService) {
				s.On("CreateSession", mock.Anything, mock.MatchedBy(func(r checkout.Request) bool {
					return r.AccountID == "acc-1" && r.Email == "user@example.com" && r.Fingerprint == ""
				})).Return(&checkout.Session{
					ID: "cs_2", URL: "https://pay.example.com/cs_2", Plan: "pro_yearly",
					BoundTo: models.BoundTo{Kind: "account", ID: "acc-1"},
				}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody: `{"success":true,"message":"ok","data":{"id":"cs_2","url":"https://pay.example.com/cs_2",` +
				`"plan":"pro_yearly","bound_to":{"kind":"account","id":"acc-1"}}}`,
		},
		{
			name:           "bad url",
			body:           `{"plan":"pro_monthly","fingerprint":"fp-1","success_url":"nope","cancel_url":"https://x.io"}`,
			setupMock:      func(*MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `{"success":false,"message":"field SuccessURL must be a valid url"}`,
		},
		{
			name: "provider down",
			body: `{"plan":"pro_monthly","fingerprint":"fp-1",` + urls + `}`,
			setupMock: func(s *MockService) {
				s.On("CreateSession", mock.Anything, mock.Anything).
					Return(nil, fmt.Errorf("checkout.CreateSession: %w: timeout", errs.ErrUpstream)).Once()
			},
			expectedStatus: http.StatusBadGateway,
			expectedBody:   `{"success":false,"message":"upstream service unavailable"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)
			h := New(newNoopLogger(), svc)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", bytes.NewBufferString(tt.body))
			if tt.principal != nil {
				req = req.WithContext(context.WithValue(req.Context(), middlewarectx.PrincipalKey, tt.principal))
			}
			w := httptest.NewRecorder()

			h.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
			svc.AssertExpectations(t)
		})
	}
}
