package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoginAndDefaults(t *testing.T) {
	m := NewManager(map[string]string{"dana": "s3cret"})

	assert.Equal(t, "Anonymous", m.CurrentUserName())

	assert.False(t, m.Login("dana", "wrong"))
	assert.False(t, m.Login("unknown", "s3cret"))
	assert.Equal(t, "Anonymous", m.CurrentUserName())

	assert.True(t, m.Login("dana", "s3cret"))
	assert.Equal(t, "dana", m.CurrentUserName())

	m.SetUserName("guest-7")
	assert.Equal(t, "guest-7", m.CurrentUserName())
}
