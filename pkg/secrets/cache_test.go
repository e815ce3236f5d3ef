package secrets

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type testConfig struct {
	Token string
}

func TestCache_PutGet(t *testing.T) {
	c := NewCache[testConfig](time.Minute)

	c.Put("deutschlandcard", testConfig{Token: "abc"})

	got, ok := c.Get("deutschlandcard")
	assert.True(t, ok)
	assert.Equal(t, "abc", got.Token)
}

func TestCache_MissOnUnknownKey(t *testing.T) {
	c := NewCache[testConfig](time.Minute)

	_, ok := c.Get("payback")
	assert.False(t, ok)
}

func TestCache_Expiry(t *testing.T) {
	c := NewCache[testConfig](10 * time.Millisecond)

	c.Put("deutschlandcard", testConfig{Token: "abc"})
	time.Sleep(25 * time.Millisecond)

	_, ok := c.Get("deutschlandcard")
	assert.False(t, ok, "expired entry should miss")
}

func TestCache_Bust(t *testing.T) {
	c := NewCache[testConfig](time.Minute)

	c.Put("payback", testConfig{Token: "xyz"})
	c.Bust("payback")

	_, ok := c.Get("payback")
	assert.False(t, ok)
}
