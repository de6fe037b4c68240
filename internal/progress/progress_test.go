package progress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCounterPlainOutput(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf, "fetching threads", 1500)
	assert.False(t, c.InPlace)

	c.Add(1000)
	c.Add(500)
	assert.Empty(t, buf.String(), "plain output waits for Done")

	c.Done()
	c.Done()
	assert.Equal(t, "fetching threads 1,500/1,500\n", buf.String())
}

func TestCounterInPlace(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf, "listing", 0)
	c.InPlace = true

	c.Add(100)
	c.Add(100)
	c.Done()
	c.Add(1)

	assert.Equal(t, "\rlisting 100\rlisting 200\rlisting 200\n", buf.String())
}

func TestCounterNilWriter(t *testing.T) {
	c := New(nil, "noop", 1)
	c.Add(1)
	c.Done()
}
