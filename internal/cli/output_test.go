package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitError(t *testing.T) {
	err := NewExitError(ExitCommandError, "bad flag")
	assert.Equal(t, "bad flag", err.Error())
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	wrapped := WrapExitError(ExitFailure, "compile", errors.New("boom"))
	assert.Equal(t, "compile: boom", wrapped.Error())
	assert.Equal(t, ExitFailure, GetExitCode(wrapped))
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))

	// errors.As must see through wrapping.
	inner := NewExitError(ExitCommandError, "inner")
	outer := fmt.Errorf("context: %w", inner)
	assert.Equal(t, ExitCommandError, GetExitCode(outer))
}

func TestJSONEnvelope(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	err := f.JSON(map[string]string{"key": "value"})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Error)
}

func TestErrorOutputJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	err := f.Error("CONFIG_ERROR", "latex command must not be empty", nil)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "CONFIG_ERROR", resp.Error.Code)
}

func TestErrorOutputText(t *testing.T) {
	out := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: out, ErrWriter: errBuf}

	err := f.Error("CONFIG_ERROR", "bad config", nil)
	require.NoError(t, err)
	assert.Empty(t, out.String())
	assert.Contains(t, errBuf.String(), "Error [CONFIG_ERROR]: bad config")
}

func TestVerboseLog(t *testing.T) {
	errBuf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: &bytes.Buffer{}, ErrWriter: errBuf, Verbose: false}

	f.VerboseLog("hidden %d", 1)
	assert.Empty(t, errBuf.String())

	f.Verbose = true
	f.VerboseLog("shown %d", 2)
	assert.Contains(t, errBuf.String(), "shown 2")
}

func TestGetErrWriterFallback(t *testing.T) {
	out := &bytes.Buffer{}
	f := &OutputFormatter{Writer: out}
	assert.Equal(t, out, f.GetErrWriter().(*bytes.Buffer))
}
