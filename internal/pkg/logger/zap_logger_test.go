package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestEntriesCarryModuleAndDetails(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := newWithCore(core, "")

	l.Info("Orchestrator", "Round completed", map[string]interface{}{"session_id": "s1", "round": 2})
	l.Debug("Retriever", "No chunks", nil)

	entries := logs.All()
	require.Len(t, entries, 2)

	first := entries[0].ContextMap()
	assert.Equal(t, "Orchestrator", first["module"])
	assert.Equal(t, map[string]interface{}{"session_id": "s1", "round": 2}, first["details"])

	second := entries[1].ContextMap()
	assert.Equal(t, "Retriever", second["module"])
	assert.Equal(t, map[string]interface{}{}, second["details"], "nil details are logged as an empty object")
}

func TestErrorKeepsErrorReference(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := newWithCore(core, "")

	l.Error("ChunkStore", "Embedding failed", map[string]interface{}{"error": errors.New("backend down")})
	l.Error("ChunkStore", "Embedding failed", map[string]interface{}{"error": "plain text"})

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "backend down", entries[0].ContextMap()["error_ref"])
	_, hasRef := entries[1].ContextMap()["error_ref"]
	assert.False(t, hasRef)
}

func TestIsolatedLoggerWritesFile(t *testing.T) {
	path := t.TempDir() + "/transcript.log"
	l := NewIsolatedLogger(path)
	l.Info("TranscriptSink", "Turn recorded", map[string]interface{}{"seq": 1})
	require.NoError(t, l.Sync())
	assert.FileExists(t, path)
}
