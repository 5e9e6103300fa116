package sl_test

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/magabrotheeeer/paywall/internal/lib/sl"
)

func TestErr_ReturnsCorrectAttr(t *testing.T) {
	err := errors.New("something went wrong")
	attr := sl.Err(err)

	assert.Equal(t, "error", attr.Key)
	assert.Equal(t, slog.StringValue("something went wrong"), attr.Value)
}

func TestErr_NilError(t *testing.T) {
	assert.NotPanics(t, func() {
		attr := sl.Err(nil)
		assert.Equal(t, "<nil>", attr.Value.String())
	})
}

func TestMask(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ABCDE-FGHJK-LMNPQ-RSTUV-WXYZ2", "ABCDE-****"},
		{"fingerprint-value", "fingerprint-****"},
		{"0123456789abcdef", "0123****"},
		{"short", "****"},
		{"", "****"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, sl.Mask(tt.in))
		})
	}

	attr := sl.Masked("key", "ABCDE-FGHJK")
	assert.Equal(t, "key", attr.Key)
	assert.Equal(t, "ABCDE-****", attr.Value.String())
}
