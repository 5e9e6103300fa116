package paymentprovider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/magabrotheeeer/paywall/internal/errs"
)

// SignatureHeader заголовок с подписью webhook.
const SignatureHeader = "Stripe-Signature"

// Verifier проверяет подпись webhook: заголовок вида "t=<unix>,v1=<hex>",
// подписывается строка "<t>.<тело>" через HMAC-SHA256.
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier создаёт Verifier. tolerance <= 0 отключает проверку давности.
func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	return &Verifier{secret: []byte(secret), tolerance: tolerance, now: time.Now}
}

// WithClock подменяет источник времени.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Sign возвращает значение заголовка подписи для тела payload в момент t.
func Sign(payload []byte, secret string, t time.Time) string {
	ts := strconv.FormatInt(t.Unix(), 10)
	return "t=" + ts + ",v1=" + hex.EncodeToString(computeSignature(payload, []byte(secret), ts))
}

func computeSignature(payload, secret []byte, ts string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

// ConstructEvent проверяет подпись и разбирает событие. Ошибки подписи
// возвращаются как errs.ErrInvalidSignature без подробностей о причине.
func (v *Verifier) ConstructEvent(payload []byte, header string) (*Event, error) {
	const op = "paymentprovider.ConstructEvent"

	if err := v.verify(payload, header); err != nil {
		return nil, fmt.Errorf("%s: %w", op, errs.ErrInvalidSignature)
	}
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%s: %w: malformed event", op, errs.ErrValidation)
	}
	if event.Type == "" {
		return nil, fmt.Errorf("%s: %w: event type is missing", op, errs.ErrValidation)
	}
	return &event, nil
}

func (v *Verifier) verify(payload []byte, header string) error {
	if len(v.secret) == 0 {
		return errors.New("webhook secret is not configured")
	}

	var ts string
	var sigs [][]byte
	for _, part := range strings.Split(header, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = val
		case "v1":
			if sig, err := hex.DecodeString(val); err == nil {
				sigs = append(sigs, sig)
			}
		}
	}
	if ts == "" || len(sigs) == 0 {
		return errors.New("malformed signature header")
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return errors.New("malformed timestamp")
	}
	if v.tolerance > 0 {
		age := v.now().Sub(time.Unix(unix, 0))
		if age > v.tolerance || age < -v.tolerance {
			return errors.New("timestamp outside tolerance")
		}
	}

	expected := computeSignature(payload, v.secret, ts)
	for _, sig := range sigs {
		if hmac.Equal(expected, sig) {
			return nil
		}
	}
	return errors.New("signature mismatch")
}
