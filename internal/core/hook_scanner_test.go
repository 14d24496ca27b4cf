package core

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scan(t *testing.T, script string) []string {
	t.Helper()
	file, err := ParseHookScript(strings.NewReader(script), "hook.sh")
	require.NoError(t, err)
	var out []string
	for _, finding := range ScanHookScript(file) {
		out = append(out, finding.String())
	}
	return out
}

func TestScanHookScript(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   []string
	}{
		{name: "clean script", script: "set -e\nmkdir -p cache\necho eval > notes.txt\n", want: nil},
		{name: "eval", script: "eval \"$PAYLOAD\"\n", want: []string{`line 1: call to "eval"`}},
		{name: "quoted shell", script: "echo ok\n\"bash\" other.sh\n", want: []string{`line 2: call to "bash"`}},
		{name: "shell by path", script: "/bin/sh -c 'id'\n", want: []string{`line 1: call to "/bin/sh"`}},
		{name: "dot source", script: ". ./lib.sh\n", want: []string{`line 1: call to "."`}},
		{name: "command substitution", script: "NAME=$(whoami)\n", want: []string{"line 1: command substitution"}},
		{name: "backticks", script: "echo `id`\n", want: []string{"line 1: command substitution"}},
		{name: "process substitution", script: "cat <(ls)\n", want: []string{"line 1: process substitution"}},
		{name: "variable callee", script: "CMD=rm\n$CMD -rf /tmp/x\n", want: []string{"line 2: indirect call through a variable"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, scan(t, tt.script)); diff != "" {
				t.Fatalf("unexpected findings (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseHookScriptSyntaxError(t *testing.T) {
	_, err := ParseHookScript(strings.NewReader("if then fi ((\n"), "broken.sh")
	require.Error(t, err)
}

func TestIsDeniedCommand(t *testing.T) {
	assert.True(t, IsDeniedCommand("bash"))
	assert.True(t, IsDeniedCommand("/usr/bin/env"))
	assert.False(t, IsDeniedCommand("php"))
	assert.False(t, IsDeniedCommand("mkdir"))
}
