// Copyright 2026 The WikiForge Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("info"))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"), "unknown levels fall back to info")
}

func TestFanoutHandlerDeliversToAllHandlers(t *testing.T) {
	var first, second bytes.Buffer
	fanout := NewFanoutHandler(
		slog.NewTextHandler(&first, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&second, &slog.HandlerOptions{Level: slog.LevelError}),
	)

	l := slog.New(fanout)
	l.Info("resolving access level")
	l.Error("backend unreachable")

	assert.Contains(t, first.String(), "resolving access level")
	assert.Contains(t, first.String(), "backend unreachable")
	assert.NotContains(t, second.String(), "resolving access level", "handler below level is skipped")
	assert.Contains(t, second.String(), "backend unreachable")
}

func TestFanoutHandlerEnabled(t *testing.T) {
	fanout := NewFanoutHandler(
		slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}),
		slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)

	ctx := context.Background()
	assert.False(t, fanout.Enabled(ctx, slog.LevelInfo))
	assert.True(t, fanout.Enabled(ctx, slog.LevelWarn), "enabled when any handler accepts")
}

func TestTraceContextHandlerWithoutSpan(t *testing.T) {
	var buf bytes.Buffer
	h := &TraceContextHandler{Handler: slog.NewTextHandler(&buf, nil)}

	slog.New(h).Info("checking document rights")

	assert.Contains(t, buf.String(), "checking document rights")
	assert.NotContains(t, buf.String(), "trace_id", "no span in context, no trace attrs")
}
