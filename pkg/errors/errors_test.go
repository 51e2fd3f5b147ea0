package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	e := New(42, "answer", "life")
	assert.Equal(t, 200, e.HttpCode)
	assert.Equal(t, "answer", e.Reason)
	assert.Equal(t, "life", e.Error())

	e = New(43, "teapot", "short and stout", 418)
	assert.Equal(t, 418, e.HttpCode)
}

func TestWithDoesNotMutateShared(t *testing.T) {
	cause := stderrors.New("boom")
	wrapped := ErrBadRequest.WithError(cause).WithMessage("room id missing")

	assert.Nil(t, ErrBadRequest.Err)
	assert.Equal(t, "bad request", ErrBadRequest.Message)
	assert.Equal(t, "room id missing: boom", wrapped.Error())
	assert.True(t, Is(wrapped, cause))
	assert.True(t, Is(wrapped, ErrBadRequest))
	assert.False(t, Is(wrapped, ErrNotFound))
}

func TestFrom(t *testing.T) {
	assert.Nil(t, From(nil))

	biz := From(fmt.Errorf("lookup: %w", ErrNotFound))
	require.NotNil(t, biz)
	assert.Equal(t, ErrNotFound.Code, biz.Code)

	plain := From(stderrors.New("disk full"))
	assert.Equal(t, ErrServer.Code, plain.Code)
	assert.Equal(t, 500, plain.HttpCode)
}
