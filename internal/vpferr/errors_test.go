package vpferr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandlerErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &HandlerError{Task: "post_data", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "post_data")
}

func TestStoreErrorUnwrap(t *testing.T) {
	cause := errors.New("database is locked")
	err := &StoreError{Op: "insert queue", Err: cause}
	assert.ErrorIs(t, err, cause)
}

func TestConfigErrorUnwrap(t *testing.T) {
	cause := errors.New("required")
	err := &ConfigError{Field: "endpoint", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "endpoint")
}

func TestFormatErrorMessage(t *testing.T) {
	err := &FormatError{Field: "precipitation_type_msg", Value: "ZZ", Allowed: []string{"NP", "RA"}}
	assert.Contains(t, err.Error(), "ZZ")
	assert.Contains(t, err.Error(), "precipitation_type_msg")
}
