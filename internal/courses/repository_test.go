package courses

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"

	"github.com/vedalearn/backend/internal/errs"
)

func TestMapNoRows(t *testing.T) {
	err := mapNoRows(pgx.ErrNoRows, "course not found")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	outage := errors.New("connection refused")
	assert.Same(t, outage, mapNoRows(outage, "course not found"))
}
