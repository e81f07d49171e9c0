package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkIndexUsesDefaultWhenUnset(t *testing.T) {
	cs := ChunkSettings{Enabled: true}
	assert.Equal(t, 0, cs.ChunkIndex(0))
	assert.Equal(t, 0, cs.ChunkIndex(999))
	assert.Equal(t, 1, cs.ChunkIndex(1000))
	assert.Equal(t, 2, cs.ChunkIndex(2500))
}

func TestChunkIndexHonorsExplicitSize(t *testing.T) {
	cs := ChunkSettings{Enabled: true, Size: 100}
	assert.Equal(t, 0, cs.ChunkIndex(99))
	assert.Equal(t, 1, cs.ChunkIndex(100))
	assert.Equal(t, 25, cs.ChunkIndex(2500))
}

func TestStreamIsEmpty(t *testing.T) {
	s := Stream{CurrentStreamVersion: -1}
	assert.True(t, s.IsEmpty())

	s.CurrentStreamVersion = 0
	assert.False(t, s.IsEmpty())
}
