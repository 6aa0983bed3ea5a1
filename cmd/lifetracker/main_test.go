package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nugget/lifetracker/internal/store"
	"github.com/nugget/lifetracker/internal/store/sqlite"
)

// writeConfig writes a minimal sqlite config into a fresh directory and
// makes it the working directory.
func writeConfig(t *testing.T, extra string) (dir, dbPath string) {
	t.Helper()
	dir = t.TempDir()
	dbPath = filepath.Join(dir, "tracker.db")
	cfg := "storage:\n  driver: sqlite\n  sqlite_path: " + dbPath + "\n" + extra
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)
	return dir, dbPath
}

func TestRunVersion(t *testing.T) {
	var buf bytes.Buffer
	if err := run(context.Background(), &buf, &buf, []string{"version"}); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "lifetracker ") {
		t.Errorf("unexpected output: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "go_version:") {
		t.Errorf("missing go_version line: %q", buf.String())
	}
}

func TestRunVersion_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := run(context.Background(), &buf, &buf, []string{"-o", "json", "version"}); err != nil {
		t.Fatalf("version: %v", err)
	}
	var info map[string]string
	if err := json.Unmarshal(buf.Bytes(), &info); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if info["version"] == "" {
		t.Errorf("version missing: %v", info)
	}
}

func TestRun_Usage(t *testing.T) {
	for _, args := range [][]string{nil, {"-h"}, {"help"}} {
		var buf bytes.Buffer
		if err := run(context.Background(), &buf, &buf, args); err != nil {
			t.Fatalf("run(%v): %v", args, err)
		}
		if !strings.Contains(buf.String(), "Usage: lifetracker") {
			t.Errorf("run(%v) printed %q", args, buf.String())
		}
	}
}

func TestRun_BadArguments(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown command", []string{"frobnicate"}, "unknown command"},
		{"unknown flag", []string{"-x", "serve"}, "unknown flag"},
		{"config without path", []string{"-config"}, "requires a path"},
		{"bad output format", []string{"-o", "xml", "version"}, "unknown output format"},
		{"purge without email", []string{"purge"}, "usage"},
		{"newsletter without target", []string{"newsletter"}, "usage"},
		{"newsletter with both targets", []string{"newsletter", "-all", "ada@example.com"}, "usage"},
		{"newsletter dry-run all", []string{"newsletter", "-all", "-dry-run"}, "single recipient"},
		{"newsletter unknown flag", []string{"newsletter", "-loud", "ada@example.com"}, "unknown newsletter flag"},
		{"missing explicit config", []string{"-config", "/nonexistent/lifetracker.yaml", "purge", "a@b.c"}, "not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := run(context.Background(), &buf, &buf, tt.args)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("run(%v) error = %v, want containing %q", tt.args, err, tt.want)
			}
		})
	}
}

func TestRunPurge(t *testing.T) {
	_, dbPath := writeConfig(t, "")
	ctx := context.Background()

	s, err := sqlite.Open(dbPath, nil)
	if err != nil {
		t.Fatal(err)
	}
	u, err := s.UpsertUser(ctx, store.User{Email: "ada@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.AddLog(ctx, &store.LogEntry{UserID: u.ID, Content: "ran 5k"}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	var buf bytes.Buffer
	if err := run(ctx, &buf, &buf, []string{"purge", "ADA@example.com"}); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if !strings.Contains(buf.String(), "Purged ada@example.com") {
		t.Errorf("unexpected output: %q", buf.String())
	}

	s, err = sqlite.Open(dbPath, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, err := s.GetUserByEmail(ctx, "ada@example.com"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("user still present after purge: %v", err)
	}
}

func TestRunPurge_UnknownUser(t *testing.T) {
	writeConfig(t, "")

	var buf bytes.Buffer
	err := run(context.Background(), &buf, &buf, []string{"purge", "nobody@example.com"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestRunNewsletter_NoTransport(t *testing.T) {
	_, dbPath := writeConfig(t, "")
	ctx := context.Background()

	s, err := sqlite.Open(dbPath, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.UpsertUser(ctx, store.User{Email: "ada@example.com"}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	// The model is never reached: without SMTP the send fails first.
	var buf bytes.Buffer
	err = run(ctx, &buf, &buf, []string{"newsletter", "-persona", "analyst", "ada@example.com"})
	if err == nil || !strings.Contains(err.Error(), "transport") {
		t.Errorf("error = %v, want transport failure", err)
	}
}

func TestRunNewsletter_BadPersona(t *testing.T) {
	writeConfig(t, "")

	var buf bytes.Buffer
	err := run(context.Background(), &buf, &buf, []string{"newsletter", "-persona", "drill-sergeant", "ada@example.com"})
	if err == nil || !strings.Contains(err.Error(), "drill-sergeant") {
		t.Errorf("error = %v, want unknown persona", err)
	}
}

func TestRunMCP_RequiresUser(t *testing.T) {
	writeConfig(t, "")

	var buf bytes.Buffer
	err := run(context.Background(), &buf, &buf, []string{"mcp"})
	if err == nil || !strings.Contains(err.Error(), "mcp.user_email") {
		t.Errorf("error = %v, want missing user_email", err)
	}
}

func TestRunServe_RequiresTokenSecret(t *testing.T) {
	writeConfig(t, "")

	var buf bytes.Buffer
	err := run(context.Background(), &buf, &buf, []string{"serve"})
	if err == nil || !strings.Contains(err.Error(), "auth.token_secret") {
		t.Errorf("error = %v, want missing token secret", err)
	}
}

func TestLoadConfig_FallsBackToDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, path, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if path != "" {
		t.Errorf("path = %q, want empty", path)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Listen.Port != 8080 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}
