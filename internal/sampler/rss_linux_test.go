package sampler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatm(t *testing.T) {
	rss, err := parseStatm([]byte("5120 1024 300 10 0 900 0\n"), 4096)
	require.NoError(t, err)
	assert.EqualValues(t, 1024*4096, rss)

	_, err = parseStatm([]byte("5120"), 4096)
	assert.Error(t, err)

	_, err = parseStatm([]byte("5120 abc"), 4096)
	assert.Error(t, err)
}

func TestProcessReader(t *testing.T) {
	usage, err := NewProcessReader().Read()
	require.NoError(t, err)
	assert.Positive(t, usage.RSSBytes)
	assert.Positive(t, usage.HeapBytes)
}
