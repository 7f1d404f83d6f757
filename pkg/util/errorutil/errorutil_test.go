package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDomainErrorKeepsDomainErrors(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewConflict("ticket already assigned", map[string]any{"ticket_id": "t1"}))

	de := ToDomainError(err)
	require.NotNil(t, de)
	assert.Equal(t, CodeConflict, de.Code)
	assert.Equal(t, http.StatusConflict, de.HTTPStatus)
	assert.Equal(t, "t1", de.Details["ticket_id"])
}

func TestToDomainErrorMapsNoRowsToNotFound(t *testing.T) {
	de := ToDomainError(fmt.Errorf("get ticket: %w", pgx.ErrNoRows))
	assert.Equal(t, CodeNotFound, de.Code)
	assert.Equal(t, http.StatusNotFound, de.HTTPStatus)
}

func TestToDomainErrorMapsMalformedIdentifierToValidation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "22P02", Message: `invalid input syntax for type uuid: "not-a-uuid"`}
	de := ToDomainError(fmt.Errorf("load ticket: %w", pgErr))
	assert.Equal(t, CodeValidation, de.Code)
	assert.Equal(t, http.StatusBadRequest, de.HTTPStatus)

	other := ToDomainError(&pgconn.PgError{Code: "23505"})
	assert.Equal(t, CodeInternal, other.Code)
}

func TestToDomainErrorHidesInternalCause(t *testing.T) {
	de := ToDomainError(errors.New("connection refused"))
	assert.Equal(t, CodeInternal, de.Code)
	assert.Equal(t, "internal server error", de.Message)
	assert.ErrorContains(t, de, "connection refused")
}

func TestHasCode(t *testing.T) {
	assert.True(t, HasCode(NewForbidden("nope"), CodeForbidden))
	assert.False(t, HasCode(NewForbidden("nope"), CodeConflict))
	assert.False(t, HasCode(nil, CodeForbidden))
	assert.Nil(t, MapError(nil))
}
