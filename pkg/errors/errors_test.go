package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesClonesByCode(t *testing.T) {
	err := Clone(ErrInvalidInput, "please upload an Excel file")
	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.False(t, errors.Is(err, ErrUnauthorized))

	wrapped := fmt.Errorf("ingest: %w", WithDetails(ErrInvalidInput, "missing columns", map[string]interface{}{"missing": []string{"補考科目"}}))
	assert.True(t, errors.Is(wrapped, ErrInvalidInput))
}

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil))

	plain := FromError(errors.New("boom"))
	assert.Equal(t, ErrInternal.Code, plain.Code)
	assert.Equal(t, http.StatusInternalServerError, plain.Status)

	typed := Clone(ErrUnauthorized, "admin token is invalid")
	assert.Same(t, typed, FromError(fmt.Errorf("wrap: %w", typed)))
}

func TestPublicHidesServerDetails(t *testing.T) {
	cause := errors.New("pq: deadlock detected")
	storage := Wrap(cause, ErrStorageFailure.Code, ErrStorageFailure.Status, "failed to store roster")

	public := storage.Public()
	assert.Equal(t, ErrStorageFailure.Code, public.Code)
	assert.Equal(t, ErrInternal.Message, public.Message)
	assert.Nil(t, public.Err)
	assert.Nil(t, public.Details)
	assert.True(t, errors.Is(storage, cause))

	invalid := WithDetails(ErrInvalidInput, "bad", map[string]interface{}{"reason": "x"}).Public()
	assert.Equal(t, "bad", invalid.Message)
	assert.Equal(t, "x", invalid.Details["reason"])
}

func TestCloneDoesNotMutateOriginal(t *testing.T) {
	_ = WithDetails(ErrInvalidInput, "changed", map[string]interface{}{"a": 1})
	assert.Equal(t, "invalid input", ErrInvalidInput.Message)
	assert.Nil(t, ErrInvalidInput.Details)
}
