package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name    string
		appErr  *AppError
		wantMsg string
	}{
		{
			name: "with cause",
			appErr: &AppError{
				Type:    ErrTypeOracle,
				Message: "fetch failed",
				Cause:   errors.New("connection refused"),
			},
			wantMsg: "[ORACLE] fetch failed: connection refused",
		},
		{
			name: "without cause",
			appErr: &AppError{
				Type:    ErrTypeCalibration,
				Message: "slope is not negative",
			},
			wantMsg: "[CALIBRATION] slope is not negative",
		},
		{
			name: "storage error",
			appErr: &AppError{
				Type:    ErrTypeStorage,
				Message: "append failed",
				Cause:   errors.New("duplicate key"),
			},
			wantMsg: "[STORAGE] append failed: duplicate key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.appErr.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("socket closed")
	appErr := NewOracleError("fetch failed", cause)

	assert.True(t, errors.Is(appErr, cause))
	assert.Nil(t, NewAppValidationError("bad input").Unwrap())
}

func TestAppError_WithContext(t *testing.T) {
	appErr := NewCalibrationError("fit rejected", nil).
		WithContext("keyword", "강남 카페").
		WithContext("samples", 3)

	assert.Equal(t, "강남 카페", appErr.Context["keyword"])
	assert.Equal(t, 3, appErr.Context["samples"])
}

func TestAppError_WithContext_NilMap(t *testing.T) {
	appErr := &AppError{Type: ErrTypeNetwork, Message: "timeout"}
	appErr.WithContext("attempts", 3)

	require.NotNil(t, appErr.Context)
	assert.Equal(t, 3, appErr.Context["attempts"])
}

func TestErrorConstructors(t *testing.T) {
	cause := errors.New("underlying")

	tests := []struct {
		name     string
		got      *AppError
		wantType ErrorType
		wantCause error
	}{
		{"oracle", NewOracleError("fetch failed", cause), ErrTypeOracle, cause},
		{"calibration", NewCalibrationError("fit rejected", cause), ErrTypeCalibration, cause},
		{"network", NewNetworkError("dial failed", cause), ErrTypeNetwork, cause},
		{"parsing", NewParsingError("bad payload", cause), ErrTypeParsing, cause},
		{"storage", NewStorageError("append failed", cause), ErrTypeStorage, cause},
		{"validation", NewAppValidationError("rank must be positive"), ErrTypeValidation, nil},
		{"config", NewConfigError("missing oracle url", cause), ErrTypeConfig, cause},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotNil(t, tt.got)
			assert.Equal(t, tt.wantType, tt.got.Type)
			assert.Equal(t, tt.wantCause, tt.got.Cause)
			assert.NotNil(t, tt.got.Context)
		})
	}
}

func TestNewNotFoundError(t *testing.T) {
	got := NewNotFoundError("keyword")

	assert.Equal(t, ErrTypeNotFound, got.Type)
	assert.Equal(t, "keyword not found", got.Message)
}
