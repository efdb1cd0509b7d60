package factory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmbedder(t *testing.T) {
	e, err := NewEmbedder(Config{})
	require.NoError(t, err)
	assert.Equal(t, 384, e.Dimensions())

	e, err = NewEmbedder(Config{Provider: "hashing", Dimensions: 128})
	require.NoError(t, err)
	assert.Equal(t, 128, e.Dimensions())

	e, err = NewEmbedder(Config{Provider: "jina", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, 768, e.Dimensions())

	_, err = NewEmbedder(Config{Provider: "gemini"})
	assert.Error(t, err, "gemini without a key must fail")
	_, err = NewEmbedder(Config{Provider: "jina"})
	assert.Error(t, err)
	_, err = NewEmbedder(Config{Provider: "word2vec"})
	assert.Error(t, err)
}
