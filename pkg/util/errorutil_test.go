package util

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDomainErrorMapsNoRows(t *testing.T) {
	de := ToDomainError(fmt.Errorf("load: %w", pgx.ErrNoRows))
	require.NotNil(t, de)
	assert.Equal(t, CodeNotFound, de.Code)
	assert.Equal(t, http.StatusNotFound, de.HTTPStatus)
}

func TestToDomainErrorKeepsDomainErrors(t *testing.T) {
	orig := NewStateError("cannot verify", "working", []string{"completed_on_site", "in_review"})
	de := ToDomainError(fmt.Errorf("wrapped: %w", orig))
	assert.Equal(t, CodeInvalidState, de.Code)
	assert.Equal(t, http.StatusConflict, de.HTTPStatus)
	assert.Equal(t, []string{"completed_on_site", "in_review"}, de.Details["allowed"])
	assert.Equal(t, "working", de.Details["current"])
}

func TestToDomainErrorWrapsUnknown(t *testing.T) {
	de := ToDomainError(errors.New("boom"))
	assert.Equal(t, CodeInternal, de.Code)
	assert.Equal(t, "internal server error: boom", de.Error())
	assert.Nil(t, ToDomainError(nil))
}

func TestHasCode(t *testing.T) {
	assert.True(t, HasCode(NewValidationError("bad", nil), CodeValidation))
	assert.False(t, HasCode(NewForbidden("no"), CodeValidation))
	assert.False(t, HasCode(errors.New("plain"), CodeValidation))
}
