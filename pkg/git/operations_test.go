package git

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindErrorMessage(t *testing.T) {
	for _, tc := range []struct {
		output   string
		expected string
	}{
		{"Cloning into 'x'...\nfatal: repository 'https://example.com/x' not found\n", "fatal: repository 'https://example.com/x' not found"},
		{"To example.com:x\n ! [rejected] HEAD -> master (fetch first)\nerror: failed to push some refs\n", "failed to push some refs"},
		{"ERROR fatal: Could not read from remote repository.\n", "ERROR fatal: Could not read from remote repository."},
		{"nothing to see here\n", ""},
	} {
		assert.Equal(t, tc.expected, findErrorMessage(strings.NewReader(tc.output)))
	}
}

func TestExecGitCmdError(t *testing.T) {
	dir := t.TempDir()
	err := execGitCmd(context.Background(), []string{"rev-list", "HEAD"}, gitCmdConfig{dir: dir})
	if assert.Error(t, err) {
		assert.True(t, strings.HasPrefix(err.Error(), "fatal: "), err.Error())
	}
}

func TestEnvIsFiltered(t *testing.T) {
	t.Setenv("GIT_DIR", "/somewhere/else")
	t.Setenv("HOME", "/home/compose-sync")
	e := env()
	assert.Contains(t, e, "GIT_TERMINAL_PROMPT=0")
	assert.Contains(t, e, "HOME=/home/compose-sync")
	for _, kv := range e {
		assert.False(t, strings.HasPrefix(kv, "GIT_DIR="))
	}
}
