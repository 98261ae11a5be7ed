package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextHandler_AddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewContextHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")
	log.InfoContext(ctx, "hello")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "req-42", record["request_id"])
	assert.NotContains(t, record, "trace_id")
}

func TestContextHandler_WithAttrsKeepsWrapping(t *testing.T) {
	var buf bytes.Buffer
	log := Component(slog.New(NewContextHandler(slog.NewJSONHandler(&buf, nil))), "cart")

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-7")
	log.InfoContext(ctx, "added")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "cart", record["component"])
	assert.Equal(t, "req-7", record["request_id"])
}
