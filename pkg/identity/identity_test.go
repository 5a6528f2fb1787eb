package identity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNetwork(t *testing.T) {
	d := NewDeriver("test-salt")

	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t, d.Network("203.0.113.9"), d.Network("203.0.113.9"))
	})

	t.Run("port is ignored", func(t *testing.T) {
		assert.Equal(t, d.Network("203.0.113.9"), d.Network("203.0.113.9:54321"))
	})

	t.Run("ipv6 forms normalize to one identity", func(t *testing.T) {
		assert.Equal(t, d.Network("2001:db8::1"), d.Network("[2001:db8:0:0:0:0:0:1]:443"))
	})

	t.Run("different addresses differ", func(t *testing.T) {
		assert.NotEqual(t, d.Network("203.0.113.9"), d.Network("203.0.113.10"))
	})

	t.Run("salt changes the digest", func(t *testing.T) {
		other := NewDeriver("other-salt")
		assert.NotEqual(t, d.Network("203.0.113.9"), other.Network("203.0.113.9"))
	})

	t.Run("prefixed and free of raw address", func(t *testing.T) {
		id := d.Network("203.0.113.9")
		assert.True(t, strings.HasPrefix(id, "net:"))
		assert.NotContains(t, id, "203.0.113.9")
	})
}

func TestContact(t *testing.T) {
	d := NewDeriver("test-salt")

	t.Run("empty contact derives nothing", func(t *testing.T) {
		assert.Empty(t, d.Contact(""))
		assert.Empty(t, d.Contact("   "))
	})

	t.Run("case and whitespace insensitive", func(t *testing.T) {
		assert.Equal(t, d.Contact("someone@example.com"), d.Contact("  Someone@Example.COM "))
	})

	t.Run("prefixed and free of raw contact", func(t *testing.T) {
		id := d.Contact("someone@example.com")
		assert.True(t, strings.HasPrefix(id, "ctc:"))
		assert.NotContains(t, id, "someone")
	})

	t.Run("network and contact axes never collide", func(t *testing.T) {
		assert.NotEqual(t, d.Network("value"), d.Contact("value"))
	})
}
