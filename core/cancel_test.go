package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCancelToken(t *testing.T) {
	token := NewCancelToken()
	assert.False(t, token.IsCancelled())
	assert.NoError(t, token.Check())

	token.Cancel()
	token.Cancel()
	assert.True(t, token.IsCancelled())
	assert.ErrorIs(t, token.Check(), ErrCancelled)
	assert.Equal(t, KindCancelled, ErrorKind(token.Check()))
}
