// SPDX-License-Identifier: MIT

package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconfigure_AttachesServiceAndComponent(t *testing.T) {
	var buf bytes.Buffer
	Reconfigure(Config{Level: "debug", Output: &buf, Service: "streamarr-test", Version: "v0.0.1"})
	t.Cleanup(func() { Reconfigure(Config{}) })

	logger := WithComponent("supervisor")
	logger.Info().Str(FieldEvent, "transcode.started").Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "streamarr-test", entry["service"])
	assert.Equal(t, "v0.0.1", entry["version"])
	assert.Equal(t, "supervisor", entry[FieldComponent])
	assert.Equal(t, "transcode.started", entry[FieldEvent])
}

func TestConfigure_FirstCallWins(t *testing.T) {
	var first, second bytes.Buffer
	Reconfigure(Config{Output: &first})
	t.Cleanup(func() { Reconfigure(Config{}) })

	Configure(Config{Output: &second})
	L().Info().Msg("only once")

	assert.NotZero(t, first.Len())
	assert.Zero(t, second.Len())
}
