package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/elm-starter/internal/progress"
)

func TestLogSinkNarratesRun(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewLogSink(zap.New(core))

	runID := uuid.New()
	now := time.Now()
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart},
		{RunID: runID, TS: now, Stage: progress.StageBatchStart, Batch: 1, Batches: 2},
		{RunID: runID, TS: now, Stage: progress.StagePageStart, URL: "http://localhost:8000/about"},
		{RunID: runID, TS: now, Stage: progress.StagePageDone, URL: "http://localhost:8000/about", Bytes: 10},
		{RunID: runID, TS: now, Stage: progress.StagePageError, URL: "http://localhost:8000/x", Note: "boom"},
	}))
	require.NoError(t, sink.Close(context.Background()))

	var messages []string
	for _, entry := range logs.All() {
		messages = append(messages, entry.Message)
	}
	assert.Equal(t, []string{"batch 1 of 2", "http://localhost:8000/about", "page failed"}, messages)
	assert.Equal(t, "boom", logs.FilterMessage("page failed").All()[0].ContextMap()["error"])
}
