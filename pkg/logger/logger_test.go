package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContextAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	SetupWriter(&buf, "info", "json")

	ctx := WithRequestID(context.Background(), "req-42")
	FromContext(ctx).Info("recommend completed")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "req-42", line["request_id"])
	assert.Equal(t, "recommend completed", line["msg"])
}

func TestDebugSuppressedAtInfo(t *testing.T) {
	var buf bytes.Buffer
	SetupWriter(&buf, "info", "text")
	WithComponent("index").Debug("posting indexed")
	assert.Empty(t, buf.String())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "backend", Truncate("  backend  ", 10))
	assert.Equal(t, "back...", Truncate("backend developer", 4))
	assert.Equal(t, "", Truncate("anything", 0))
	assert.Equal(t, "né...", Truncate("négociation", 2))
}
