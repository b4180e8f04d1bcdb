package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMonotonic_Now(t *testing.T) {
	base := time.UnixMilli(1_700_000_000_000)
	steps := []time.Time{
		base,
		base.Add(5 * time.Millisecond),
		base.Add(-time.Second), // wall clock stepped back
		base.Add(5 * time.Millisecond),
		base.Add(time.Second),
	}

	i := 0
	c := NewMonotonic(func() time.Time {
		ts := steps[i]
		i++
		return ts
	})

	want := []uint64{
		1_700_000_000_000,
		1_700_000_000_005,
		1_700_000_000_005,
		1_700_000_000_005,
		1_700_000_001_000,
	}
	for _, w := range want {
		assert.Equal(t, w, c.Now())
	}
}

func TestMonotonic_PreEpochClampsToZero(t *testing.T) {
	c := NewMonotonic(func() time.Time { return time.Unix(-10, 0) })
	assert.Zero(t, c.Now())
}

func TestNewSystem(t *testing.T) {
	c := NewSystem()
	before := uint64(time.Now().UnixMilli())
	got := c.Now()
	assert.GreaterOrEqual(t, got, before)
	assert.GreaterOrEqual(t, c.Now(), got)
}
