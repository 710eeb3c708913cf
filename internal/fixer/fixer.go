package fixer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gatehouse-dev/gatehouse/internal/event"
	"github.com/gatehouse-dev/gatehouse/internal/hook"
	"github.com/gatehouse-dev/gatehouse/internal/logger"
)

// ErrVerificationFailed is reported when a transformed file does not pass
// the structural check for its type; the original is restored from backup.
var ErrVerificationFailed = errors.New("fix verification failed")

// FixResult records the outcome of one hook's remediation attempt.
// Invariant: Applied implies Verified and a non-empty BackupPath; a fix
// that fails verification after a write is rolled back before the result
// is returned.
type FixResult struct {
	HookName    string `json:"hookName"`
	FilePath    string `json:"filePath"`
	BackupPath  string `json:"backupPath,omitempty"`
	Applied     bool   `json:"applied"`
	Verified    bool   `json:"verified"`
	DiffSummary string `json:"diffSummary,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Fixer applies the transforms of fixable hooks after an allow/warn
// decision. Every applied fix has a byte-exact backup taken before commit.
type Fixer struct {
	backupDir string
	dryRun    bool
}

// New creates a fixer. backupDir defaults to ~/.gatehouse/backups.
func New(backupDir string, dryRun bool) (*Fixer, error) {
	if backupDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		backupDir = filepath.Join(homeDir, ".gatehouse", "backups")
	}
	return &Fixer{backupDir: backupDir, dryRun: dryRun}, nil
}

// Apply runs the fixable hooks' transforms against the event's file, in
// hook order. Each fix is isolated: a fault in one transform is reported
// in its FixResult and never alters the decision or the other fixes.
func (f *Fixer) Apply(ev *event.ToolUseEvent, selected []hook.Selected) []FixResult {
	var results []FixResult
	for _, s := range selected {
		def := s.Validator.Definition()
		if !def.Fixable {
			continue
		}
		fx, ok := s.Validator.(hook.ContentFixer)
		if !ok {
			continue
		}
		res := f.applyOne(ev.FilePath, def.Name, fx)
		if res != nil {
			results = append(results, *res)
		}
	}
	return results
}

// applyOne runs a single transform through the backup-write-verify-commit
// sequence under an exclusive scoped lock on the target file. Returns nil
// when the transform is a no-op for the current content.
func (f *Fixer) applyOne(path, hookName string, fx hook.ContentFixer) (res *FixResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Str("hook", hookName).
				Str("file", path).
				Interface("panic", r).
				Msg("Fix transform panicked")
			res = &FixResult{HookName: hookName, FilePath: path, Error: fmt.Sprintf("fix panic: %v", r)}
		}
	}()

	if path == "" {
		return nil
	}

	unlock, err := lock(path)
	if err != nil {
		return &FixResult{HookName: hookName, FilePath: path, Error: err.Error()}
	}
	defer unlock()

	original, err := os.ReadFile(path)
	if err != nil {
		return &FixResult{HookName: hookName, FilePath: path, Error: fmt.Sprintf("read failed: %v", err)}
	}

	fixed, changed := fx.FixContent(string(original))
	if !changed {
		return nil
	}

	summary := diffSummary(string(original), fixed)

	if f.dryRun {
		return &FixResult{
			HookName:    hookName,
			FilePath:    path,
			Applied:     false,
			Verified:    false,
			DiffSummary: "dry run: " + summary,
		}
	}

	if err := verify(path, []byte(fixed)); err != nil {
		logger.Warn().
			Err(err).
			Str("hook", hookName).
			Str("file", path).
			Msg("Fix rejected, transformed content failed verification")
		return &FixResult{
			HookName:    hookName,
			FilePath:    path,
			Applied:     false,
			Verified:    false,
			DiffSummary: summary,
			Error:       fmt.Sprintf("%v: %v", ErrVerificationFailed, err),
		}
	}

	backupPath, err := f.writeBackup(path, original)
	if err != nil {
		return &FixResult{HookName: hookName, FilePath: path, Error: fmt.Sprintf("backup failed: %v", err)}
	}

	tmpPath := path + ".gatehouse.tmp"
	if err := os.WriteFile(tmpPath, []byte(fixed), fileMode(path)); err != nil {
		_ = os.Remove(tmpPath)
		return &FixResult{HookName: hookName, FilePath: path, BackupPath: backupPath, Error: fmt.Sprintf("write failed: %v", err)}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return &FixResult{HookName: hookName, FilePath: path, BackupPath: backupPath, Error: fmt.Sprintf("commit failed: %v", err)}
	}

	res = &FixResult{
		HookName:    hookName,
		FilePath:    path,
		BackupPath:  backupPath,
		Applied:     true,
		Verified:    true,
		DiffSummary: summary,
	}
	confirmCommit(res, []byte(fixed))
	if res.Applied {
		logger.Info().
			Str("hook", hookName).
			Str("file", path).
			Str("backup", backupPath).
			Str("diff", summary).
			Msg("Fix applied")
	}
	return res
}

// confirmCommit re-reads the committed file and checks the bytes on disk
// are the transform's output. Applied-but-unverified is an invalid state;
// on mismatch the fix is rolled back from its backup.
func confirmCommit(res *FixResult, want []byte) {
	committed, err := os.ReadFile(res.FilePath)
	if err == nil && bytes.Equal(committed, want) {
		return
	}
	res.Verified = false
	res.Error = "committed bytes differ from transform output"
	if rbErr := Rollback(*res); rbErr != nil {
		res.Error = fmt.Sprintf("%s; rollback failed: %v", res.Error, rbErr)
		return
	}
	res.Applied = false
	logger.Warn().
		Str("hook", res.HookName).
		Str("file", res.FilePath).
		Msg("Commit verification failed, rolled back from backup")
}

// Rollback restores a file from its backup, byte for byte
func Rollback(res FixResult) error {
	if res.BackupPath == "" {
		return fmt.Errorf("no backup recorded for %s", res.FilePath)
	}
	data, err := os.ReadFile(res.BackupPath)
	if err != nil {
		return fmt.Errorf("failed to read backup %s: %w", res.BackupPath, err)
	}
	if err := os.WriteFile(res.FilePath, data, fileMode(res.FilePath)); err != nil {
		return fmt.Errorf("failed to restore %s: %w", res.FilePath, err)
	}
	return nil
}

// writeBackup copies the original bytes into the backup directory before
// any commit touches the target
func (f *Fixer) writeBackup(path string, original []byte) (string, error) {
	if err := os.MkdirAll(f.backupDir, 0755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s.%d.bak", filepath.Base(path), time.Now().UnixNano())
	backupPath := filepath.Join(f.backupDir, name)
	if err := os.WriteFile(backupPath, original, 0644); err != nil {
		return "", err
	}
	return backupPath, nil
}

// lock takes an exclusive scoped lock on the target via an O_EXCL lock
// file, retrying briefly. The unlock func is safe on every exit path.
func lock(path string) (func(), error) {
	lockPath := path + ".gatehouse.lock"
	deadline := time.Now().Add(2 * time.Second)
	for {
		file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			_ = file.Close()
			return func() { _ = os.Remove(lockPath) }, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to lock %s: %w", path, err)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timed out waiting for lock on %s", path)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// verify runs the structural check available for the file type. Types
// without a checker pass by default; the transform itself is trusted to
// be line-oriented and content-preserving.
func verify(path string, content []byte) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if !json.Valid(content) {
			return fmt.Errorf("result is not valid JSON")
		}
	case ".yaml", ".yml":
		var out any
		if err := yaml.Unmarshal(content, &out); err != nil {
			return fmt.Errorf("result is not valid YAML: %w", err)
		}
	case ".go", ".js", ".jsx", ".ts", ".tsx", ".py":
		if err := checkBalanced(content); err != nil {
			return err
		}
	}
	return nil
}

// checkBalanced is a cheap structural sanity check: bracket nesting must
// not go negative and must end at zero. It ignores brackets inside
// single-line strings and comments well enough for line-removal fixes.
func checkBalanced(content []byte) error {
	depth := 0
	for _, c := range content {
		switch c {
		case '{', '(', '[':
			depth++
		case '}', ')', ']':
			depth--
			if depth < 0 {
				return fmt.Errorf("unbalanced brackets in result")
			}
		}
	}
	if depth != 0 {
		return fmt.Errorf("unbalanced brackets in result")
	}
	return nil
}

// diffSummary reports the would-be change in lines without storing a full diff
func diffSummary(before, after string) string {
	beforeLines := strings.Split(before, "\n")
	afterLines := strings.Split(after, "\n")

	counts := make(map[string]int, len(beforeLines))
	for _, l := range beforeLines {
		counts[l]++
	}
	added := 0
	for _, l := range afterLines {
		if counts[l] > 0 {
			counts[l]--
		} else {
			added++
		}
	}
	removed := 0
	for _, n := range counts {
		removed += n
	}

	return fmt.Sprintf("-%d/+%d lines", removed, added)
}

func fileMode(path string) os.FileMode {
	if info, err := os.Stat(path); err == nil {
		return info.Mode().Perm()
	}
	return 0644
}
