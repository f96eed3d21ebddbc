package mediaerr

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/PatchWorkCreations/iriseup-foundation/src/oops"
	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	err := New(Decode, fs.ErrInvalid, "failed to decode %s", "logo.png")

	assert.ErrorIs(t, err, Decode)
	assert.ErrorIs(t, err, fs.ErrInvalid)
	assert.NotErrorIs(t, err, BackendIO)
	assert.Equal(t, "failed to decode logo.png: invalid argument", err.Error())

	var asOops *oops.Error
	assert.True(t, errors.As(err, &asOops))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Validation, KindOf(New(Validation, nil, "no file provided")))
	assert.Equal(t, NotFound, KindOf(oops.New(New(NotFound, nil, "missing"), "outer")))
	assert.Equal(t, BackendIO, KindOf(errors.New("connection reset")))
}
