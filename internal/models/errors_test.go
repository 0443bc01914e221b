package models_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/TheMichaelB/walletseal/internal/models"
)

func TestCryptoError(t *testing.T) {
	tests := []struct {
		name string
		err  *models.CryptoError
		want string
	}{
		{
			name: "with reason and cause",
			err: &models.CryptoError{
				Kind:   models.KindFormat,
				Op:     "unpack",
				Reason: "nonce length 11",
				Err:    errors.New("out of range"),
			},
			want: "unpack [FORMAT_ERROR]: nonce length 11: out of range",
		},
		{
			name: "without cause",
			err: &models.CryptoError{
				Kind: models.KindNoDeviceKey,
				Op:   "decrypt",
			},
			want: "decrypt [NO_DEVICE_KEY]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestCryptoErrorIs(t *testing.T) {
	cause := errors.New("disk on fire")
	err := models.NewCryptoError(models.KindKeyStoreUnavailable, "load", "", cause)
	wrapped := fmt.Errorf("device decrypt: %w", err)

	assert.True(t, errors.Is(wrapped, models.ErrKeyStoreUnavailable))
	assert.True(t, errors.Is(wrapped, cause))
	assert.False(t, errors.Is(wrapped, models.ErrFormat))
	assert.Equal(t, models.KindKeyStoreUnavailable, models.KindOf(wrapped))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want models.ErrorKind
	}{
		{"nil", nil, models.KindUnknown},
		{"plain", errors.New("x"), models.KindUnknown},
		{"sentinel", fmt.Errorf("ctx: %w", models.ErrAuthTagMismatch), models.KindAuthTagMismatch},
		{"typed", models.NewCryptoError(models.KindDeviceAuthRequired, "encrypt", "", nil), models.KindDeviceAuthRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, models.KindOf(tt.err))
		})
	}
}

func TestErrorKindRetryable(t *testing.T) {
	assert.True(t, models.KindAuthTagMismatch.Retryable())
	assert.True(t, models.KindDeviceAuthRequired.Retryable())
	assert.False(t, models.KindFormat.Retryable())
	assert.False(t, models.KindNoDeviceKey.Retryable())
	assert.Nil(t, models.KindUnknown.Sentinel())
}

func TestHelpers(t *testing.T) {
	assert.True(t, models.IsFormatError(models.NewCryptoError(models.KindFormat, "unpack", "", nil)))
	assert.True(t, models.IsAuthTagMismatch(models.ErrAuthTagMismatch))
	assert.False(t, models.IsAuthTagMismatch(models.ErrFormat))
}
