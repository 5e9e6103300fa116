// Package paymentprovider — клиент биллинг-провайдера: создание сессий оплаты
// и проверка подписи входящих webhook.
package paymentprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/magabrotheeeer/paywall/internal/errs"
)

// Client HTTP-клиент API биллинга.
type Client struct {
	secretKey  string
	apiURL     string
	httpClient *http.Client
}

// NewClient создаёт клиент. Каждый запрос ограничен timeout.
func NewClient(apiURL, secretKey string, timeout time.Duration) *Client {
	return &Client{
		secretKey:  secretKey,
		apiURL:     strings.TrimRight(apiURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, form url.Values) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req, nil
}

// CreateCheckoutSession создаёт сессию оплаты подписки. Любая ошибка транспорта
// или ответа провайдера возвращается как errs.ErrUpstream.
func (c *Client) CreateCheckoutSession(ctx context.Context, params CheckoutSessionRequest) (*CheckoutSession, error) {
	const op = "paymentprovider.CreateCheckoutSession"

	form := url.Values{}
	form.Set("mode", "subscription")
	form.Set("line_items[0][price]", params.PriceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	if params.ClientReferenceID != "" {
		form.Set("client_reference_id", params.ClientReferenceID)
	}
	if params.CustomerEmail != "" {
		form.Set("customer_email", params.CustomerEmail)
	}
	if params.TrialEnd > 0 {
		form.Set("subscription_data[trial_end]", strconv.FormatInt(params.TrialEnd, 10))
	}
	for k, v := range params.Metadata {
		form.Set("metadata["+k+"]", v)
		form.Set("subscription_data[metadata]["+k+"]", v)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/v1/checkout/sessions", form)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, errs.ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, errs.ErrUpstream, err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("%s: %w: %s: %s", op, errs.ErrUpstream, resp.Status, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("%s: %w: unexpected status %s", op, errs.ErrUpstream, resp.Status)
	}

	var session CheckoutSession
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, errs.ErrUpstream, err)
	}
	if session.URL == "" {
		return nil, fmt.Errorf("%s: %w: empty session url", op, errs.ErrUpstream)
	}
	return &session, nil
}
