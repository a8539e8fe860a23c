package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureOpenerRequiresFFmpegOnlyWhenUsed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, _, err := captureOpener(ctx, "", true)("hw:0")
	assert.ErrorIs(t, err, errFFmpegUnavailable)

	src, name, err := captureOpener(ctx, "", false)("hw:0")
	require.NoError(t, err)
	assert.Equal(t, "hw:0", name)
	assert.NoError(t, src.Close())
}

func TestCaptureContextOutlivesSignal(t *testing.T) {
	parent, signal := context.WithCancel(context.Background())
	captureCtx, stopCapture := captureContext(parent)

	signal()
	assert.NoError(t, captureCtx.Err())

	stopCapture()
	assert.ErrorIs(t, captureCtx.Err(), context.Canceled)
}
