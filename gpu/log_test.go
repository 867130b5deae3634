// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gviegas/hal/gpu"
)

func TestSetLogger(t *testing.T) {
	ctx := context.Background()
	assert.False(t, gpu.Logger().Enabled(ctx, slog.LevelError))

	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	gpu.SetLogger(l)
	t.Cleanup(func() { gpu.SetLogger(nil) })
	assert.Same(t, l, gpu.Logger())

	dev, _ := newDevice(t)
	newShader(t, dev)
	assert.Contains(t, buf.String(), "gpu: device created")
	assert.Contains(t, buf.String(), "gpu: shader module created")

	gpu.SetLogger(nil)
	assert.False(t, gpu.Logger().Enabled(ctx, slog.LevelError))
	n := buf.Len()
	newShader(t, dev)
	assert.Equal(t, n, buf.Len())
}
