package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// runCheckWith runs the check command with stdin fed from input and all
// persisted state confined to a temp directory, returning captured stdout.
func runCheckWith(t *testing.T, input string) (string, error) {
	t.Helper()
	dir := t.TempDir()

	cfgPath := filepath.Join(dir, "config.yaml")
	cfgYAML := fmt.Sprintf(
		"settings:\n  log_level: error\n  metrics_path: %s\n  snapshot_path: %s\n  backup_dir: %s\n",
		filepath.Join(dir, "metrics.db"),
		filepath.Join(dir, "enforcement.yaml"),
		filepath.Join(dir, "backups"),
	)
	if err := os.WriteFile(cfgPath, []byte(cfgYAML), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	oldConfig, oldEvent := configFile, checkEvent
	configFile, checkEvent = cfgPath, "PreToolUse"
	defer func() { configFile, checkEvent = oldConfig, oldEvent }()

	stdin, err := os.CreateTemp(dir, "stdin")
	if err != nil {
		t.Fatalf("create stdin: %v", err)
	}
	if _, err := stdin.WriteString(input); err != nil {
		t.Fatalf("write stdin: %v", err)
	}
	if _, err := stdin.Seek(0, 0); err != nil {
		t.Fatalf("seek stdin: %v", err)
	}
	oldStdin := os.Stdin
	os.Stdin = stdin
	defer func() { os.Stdin = oldStdin }()

	rOut, wOut, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	oldStdout := os.Stdout
	os.Stdout = wOut
	defer func() { os.Stdout = oldStdout }()

	runErr := runCheck(checkCmd, nil)

	_ = wOut.Close()
	os.Stdout = oldStdout
	out, _ := io.ReadAll(rOut)
	return string(out), runErr
}

func TestRunCheck_EmptyInputAllows(t *testing.T) {
	out, err := runCheckWith(t, "")
	if err != nil {
		t.Fatalf("empty stdin must fail open, got error: %v", err)
	}
	if !strings.Contains(out, `"verdict":"allow"`) {
		t.Errorf("output does not carry an allow verdict: %s", out)
	}
}

func TestRunCheck_MalformedInputAllows(t *testing.T) {
	out, err := runCheckWith(t, "{broken json")
	if err != nil {
		t.Fatalf("malformed stdin must fail open, got error: %v", err)
	}
	if !strings.Contains(out, `"verdict":"allow"`) {
		t.Errorf("output does not carry an allow verdict: %s", out)
	}
}

func TestRunCheck_CleanWriteAllows(t *testing.T) {
	out, err := runCheckWith(t, `{"tool_name": "Write", "tool_input": {"file_path": "main.go", "content": "package main"}}`)
	if err != nil {
		t.Fatalf("runCheck: %v", err)
	}
	if !strings.Contains(out, `"verdict":"allow"`) {
		t.Errorf("output does not carry an allow verdict: %s", out)
	}
}
