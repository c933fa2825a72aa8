package gateway

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		l := NewRateLimiter(0, nil)
		assert.False(t, l.Deny("1.2.3.4"))
		assert.False(t, l.Deny("1.2.3.4"))

		var nilLimiter *RateLimiter
		assert.False(t, nilLimiter.Deny("1.2.3.4"))
	})

	t.Run("per address interval", func(t *testing.T) {
		clk := clock.NewMock()
		l := NewRateLimiter(time.Second, clk)

		assert.False(t, l.Deny("a"))
		assert.True(t, l.Deny("a"), "second attempt within the interval")
		assert.False(t, l.Deny("b"), "other addresses are independent")

		clk.Add(time.Second)
		assert.False(t, l.Deny("a"))
	})

	t.Run("prunes stale entries", func(t *testing.T) {
		clk := clock.NewMock()
		l := NewRateLimiter(time.Second, clk)
		for i := 0; i < 1024; i++ {
			l.Deny(string(rune('a' + i)))
		}
		clk.Add(2 * time.Second)
		l.Deny("fresh")
		assert.Len(t, l.lastSeen, 1)
	})
}
