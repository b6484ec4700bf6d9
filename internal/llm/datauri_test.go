package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDataURI(t *testing.T) {
	data, mediaType, err := DecodeDataURI("data:text/csv;base64,YSxiCjEsMgo=")
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))
	assert.Equal(t, "text/csv", mediaType)
}

func TestDecodeDataURIPlain(t *testing.T) {
	data, mediaType, err := DecodeDataURI("data:,hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, "application/octet-stream", mediaType)
}

func TestDecodeDataURIErrors(t *testing.T) {
	_, _, err := DecodeDataURI("https://example.com/file.csv")
	assert.Error(t, err)

	_, _, err = DecodeDataURI("data:text/plain;base64")
	assert.Error(t, err)

	_, _, err = DecodeDataURI("data:text/plain;base64,@@@")
	assert.Error(t, err)
}
