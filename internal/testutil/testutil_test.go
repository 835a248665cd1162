package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedClock(t *testing.T) {
	c := NewFixedClock()
	assert.True(t, c.Now().Equal(Epoch))
	assert.True(t, c.Now().Equal(c.Now()), "Now never advances on its own")

	c.Tick()
	assert.True(t, c.Now().Equal(Epoch.Add(time.Second)))

	c.Advance(time.Hour)
	assert.True(t, c.Now().Equal(Epoch.Add(time.Hour+time.Second)))

	at := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	c.Reset(at)
	assert.True(t, c.Now().Equal(at))

	assert.True(t, NewFixedClockAt(at).Now().Equal(at))
}

func TestSeqIDs(t *testing.T) {
	g := NewSeqIDs("rec")
	assert.Equal(t, "rec-0001", g.Generate())
	assert.Equal(t, "rec-0002", g.Generate())

	g.Reset()
	assert.Equal(t, "rec-0001", g.Generate())

	assert.Equal(t, "rec-0001", NewSeqIDs("").Generate(), "empty prefix defaults to rec")
	assert.Equal(t, "usr-0001", NewSeqIDs("usr").Generate())
}
