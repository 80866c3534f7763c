package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyNamespaces(t *testing.T) {
	assert.Equal(t, "session:abc123", SessionKey("abc123"))
	assert.Equal(t, "sessions:user:user-1", UserSessionsKey("user-1"))
	assert.Equal(t, "chat:channel:conv-1", ChannelKey("conv-1"))
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient("not-a-redis-url")
	assert.Error(t, err)
}
