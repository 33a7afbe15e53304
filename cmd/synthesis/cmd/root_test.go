package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Help(t *testing.T) {
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	err := cmd.Execute()

	require.NoError(t, err)
	out := buf.String()
	for _, sub := range []string{"serve", "ingest", "search", "synthesize", "collections", "costs", "doctor", "status", "config", "logs", "version"} {
		assert.Contains(t, out, sub)
	}
}

func TestRootCmd_VersionFlag(t *testing.T) {
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--version"})

	err := cmd.Execute()

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "synthesis version")
}

func TestRootCmd_ProfilingFlagsRegistered(t *testing.T) {
	cmd := NewRootCmd()

	for _, name := range []string{"profile-cpu", "profile-mem", "profile-trace", "debug"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "missing flag %s", name)
	}
}

func TestRootCmd_UnknownCommand(t *testing.T) {
	cmd := NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"definitely-not-a-command"})

	err := cmd.Execute()

	assert.Error(t, err)
}
