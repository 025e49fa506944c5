package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywordsCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"keywords", "Interested in Rust compilers,", "rust tooling and compilers"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "rust\ncompiler\ntooling\n", out.String())
}

func TestRankCommand_RequiresQuery(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"rank"})

	assert.Error(t, cmd.Execute())
}

func TestRankCommand_BadSortKey(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"rank", "--sort", "hotness", "rust"})

	assert.ErrorContains(t, cmd.Execute(), "unknown sort key")
}

func TestRootCommand_UnknownConfigFile(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"keywords", "--config", "/nonexistent/storyrank.yaml", "rust"})

	assert.Error(t, cmd.Execute())
}
