package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Pahihq/ctfd-parser/internal/config"
	"github.com/Pahihq/ctfd-parser/internal/database"
	"github.com/Pahihq/ctfd-parser/internal/report"
)

// TestNewDumpCmd tests the dump command flags.
func TestNewDumpCmd(t *testing.T) {
	t.Parallel()

	cmd := NewDumpCmd()

	tests := []struct {
		name      string
		shorthand string
		def       string
	}{
		{name: "username", shorthand: "u", def: ""},
		{name: "password", shorthand: "P", def: ""},
		{name: "token", shorthand: "k", def: ""},
		{name: "cookie", def: ""},
		{name: "login-url", def: ""},
		{name: "output", shorthand: "o", def: "./ctf_dump"},
		{name: "concurrency", shorthand: "n", def: "5"},
		{name: "no-files", def: "false"},
		{name: "no-desc", def: "false"},
		{name: "save-html", def: "false"},
		{name: "no-archive", def: "false"},
		{name: "no-history", def: "false"},
		{name: "json", shorthand: "j", def: "false"},
		{name: "json-out", def: ""},
		{name: "timeout", shorthand: "t", def: "20s"},
		{name: "proxy", def: ""},
		{name: "rate", def: "0"},
		{name: "cloudflare", def: "false"},
		{name: "config", shorthand: "c", def: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			flag := cmd.Flags().Lookup(tt.name)
			if flag == nil {
				t.Fatalf("expected %s flag", tt.name)
			}
			if flag.Shorthand != tt.shorthand {
				t.Errorf("shorthand = %q, want %q", flag.Shorthand, tt.shorthand)
			}
			if flag.DefValue != tt.def {
				t.Errorf("default = %q, want %q", flag.DefValue, tt.def)
			}
		})
	}
}

func TestBuildConfig(t *testing.T) {
	t.Parallel()

	t.Run("reads flags", func(t *testing.T) {
		t.Parallel()

		cmd := NewDumpCmd()
		err := cmd.ParseFlags([]string{
			"-u", "alice", "-P", "pw", "-n", "3", "--no-files", "--rate", "2.5",
			"-t", "5s", "--json", "-o", "out", "--json-out", "run.json",
		})
		if err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}

		cfg, err := buildConfig(cmd, []string{"https://ctf.example.com/challenges"})
		if err != nil {
			t.Fatalf("buildConfig() error = %v", err)
		}
		if cfg.Username != "alice" || cfg.Password != "pw" || !cfg.Login() {
			t.Errorf("credentials not applied: %+v", cfg)
		}
		if cfg.Concurrency != 3 || !cfg.NoFiles || cfg.Rate != 2.5 || !cfg.JSONReport {
			t.Errorf("flags not applied: %+v", cfg)
		}
		if cfg.JSONOut != "run.json" {
			t.Errorf("JSONOut = %q", cfg.JSONOut)
		}
		if cfg.Timeout != 5*time.Second || cfg.OutputDir != "out" {
			t.Errorf("timeout/output not applied: %v %q", cfg.Timeout, cfg.OutputDir)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() error = %v", err)
		}
	})

	t.Run("site file fills unset flags", func(t *testing.T) {
		t.Parallel()

		siteFile := filepath.Join(t.TempDir(), ".ctfdump")
		content := `defaults:
  concurrency: 2
  save_html: true
sites:
  ctf.example.com:
    cookie: "session=site"
    token: "site-token"
    concurrency: 8
`
		if err := os.WriteFile(siteFile, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}

		cmd := NewDumpCmd()
		if err := cmd.ParseFlags([]string{"--config", siteFile, "-k", "flag-token"}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}
		cfg, err := buildConfig(cmd, []string{"https://ctf.example.com/challenges"})
		if err != nil {
			t.Fatalf("buildConfig() error = %v", err)
		}

		if cfg.Cookie != "session=site" {
			t.Errorf("Cookie = %q, want site value", cfg.Cookie)
		}
		if cfg.Token != "flag-token" {
			t.Errorf("Token = %q, want the explicit flag", cfg.Token)
		}
		if cfg.Concurrency != 8 {
			t.Errorf("Concurrency = %d, want 8", cfg.Concurrency)
		}
		if !cfg.SaveHTML {
			t.Error("expected SaveHTML from defaults")
		}
	})

	t.Run("missing explicit site file", func(t *testing.T) {
		t.Parallel()

		cmd := NewDumpCmd()
		if err := cmd.ParseFlags([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}
		if _, err := buildConfig(cmd, []string{"https://ctf.example.com/challenges"}); !errors.Is(err, config.ErrConfigNotFound) {
			t.Errorf("buildConfig() error = %v, want ErrConfigNotFound", err)
		}
	})

	t.Run("invalid site file", func(t *testing.T) {
		t.Parallel()

		siteFile := filepath.Join(t.TempDir(), ".ctfdump")
		if err := os.WriteFile(siteFile, []byte("invalid: yaml: content: ["), 0600); err != nil {
			t.Fatal(err)
		}
		cmd := NewDumpCmd()
		if err := cmd.ParseFlags([]string{"--config", siteFile}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}
		if _, err := buildConfig(cmd, []string{"https://ctf.example.com/challenges"}); err == nil {
			t.Error("expected error for invalid site file")
		}
	})
}

func TestRunDumpCmdValidation(t *testing.T) {
	t.Parallel()

	cmd := NewDumpCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"-n", "0", "https://ctf.example.com/challenges"})
	err := cmd.Execute()
	if !errors.Is(err, config.ErrInvalidConcurrency) {
		t.Errorf("Execute() error = %v, want ErrInvalidConcurrency", err)
	}
}

func TestNewTransport(t *testing.T) {
	t.Parallel()

	headers := make(chan http.Header, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
	}))
	t.Cleanup(srv.Close)

	cfg := config.NewConfig()
	cfg.Targets = []string{srv.URL + "/challenges"}
	cfg.Token = "abc"
	cfg.Cookie = "session=xyz"
	cfg.Rate = 100

	client, err := newTransport(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("newTransport() error = %v", err)
	}
	if _, err := client.Get(context.Background(), srv.URL); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	got := <-headers
	gotAuth, gotCookie := got.Get("Authorization"), got.Get("Cookie")
	if gotAuth != "Token abc" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if !strings.Contains(gotCookie, "session=xyz") {
		t.Errorf("Cookie = %q", gotCookie)
	}

	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
	}))
	t.Cleanup(other.Close)
	if _, err := client.Get(context.Background(), other.URL); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got := <-headers; got.Get("Authorization") != "" || got.Get("Cookie") != "" {
		t.Errorf("credentials leaked to another host: %v", got)
	}
}

func newDumpPlatform(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/challenges":
			_, _ = w.Write([]byte(`<html><body><h1>Challenges</h1></body></html>`))
		case "/challenges/9":
			_, _ = w.Write([]byte(`<html><body><h1 class="challenge-title">baby rsa</h1></body></html>`))
		case "/api/v1/challenges":
			_, _ = w.Write([]byte(`{"success": true, "data": [{"id": 7}, {"id": 9}]}`))
		case "/api/v1/challenges/7":
			_, _ = w.Write([]byte(`{"success": true, "data": {"name": "Warmup", "category": "pwn",
				"value": 100, "description": "<p>hi</p>", "files": ["/files/a.bin?token=1"]}}`))
		case "/api/v1/challenges/9":
			_, _ = w.Write([]byte(`{"success": true, "data": {"name": "baby rsa", "category": "crypto",
				"value": 50, "description": "factor", "files": []}}`))
		case "/files/a.bin":
			_, _ = w.Write([]byte("AAAA"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunDump(t *testing.T) {
	t.Parallel()

	srv := newDumpPlatform(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("summary with history", func(t *testing.T) {
		t.Parallel()

		parent := t.TempDir()
		cfg := config.NewConfig()
		cfg.Targets = []string{srv.URL + "/challenges"}
		cfg.OutputDir = filepath.Join(parent, "ctf_dump")
		cfg.DBDir = filepath.Join(parent, "db")

		var out bytes.Buffer
		if err := runDump(context.Background(), cfg, &out, logger); err != nil {
			t.Fatalf("runDump() error = %v", err)
		}

		output := out.String()
		for _, want := range []string{"[pwn] Warmup", "[crypto] baby rsa", "Saved 2 challenge(s) with 1 file(s), 0 failed."} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q, got:\n%s", want, output)
			}
		}
		if _, err := os.Stat(filepath.Join(cfg.OutputDir, report.IndexFile)); err != nil {
			t.Errorf("expected index: %v", err)
		}
		zips, _ := filepath.Glob(filepath.Join(parent, "ctf_dump_*.zip"))
		if len(zips) != 1 {
			t.Errorf("expected one archive, got %v", zips)
		}

		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open history: %v", err)
		}
		defer db.Close()
		runs, err := db.ListRuns(context.Background(), 0)
		if err != nil {
			t.Fatalf("ListRuns() error = %v", err)
		}
		if len(runs) != 1 || runs[0].Outcomes != 2 {
			t.Errorf("history = %+v, want one run with 2 outcomes", runs)
		}
	})

	t.Run("json report", func(t *testing.T) {
		t.Parallel()

		parent := t.TempDir()
		cfg := config.NewConfig()
		cfg.Targets = []string{srv.URL + "/challenges/9"}
		cfg.OutputDir = filepath.Join(parent, "out")
		cfg.NoHistory = true
		cfg.NoArchive = true
		cfg.JSONReport = true

		var out bytes.Buffer
		if err := runDump(context.Background(), cfg, &out, logger); err != nil {
			t.Fatalf("runDump() error = %v", err)
		}

		var decoded report.JSONReport
		if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
			t.Fatalf("output is not valid JSON: %v\n%s", err, out.String())
		}
		if decoded.Run == nil || len(decoded.Run.Outcomes) != 1 {
			t.Fatalf("unexpected report: %+v", decoded.Run)
		}
		if decoded.Run.Outcomes[0].Record.Title != "[crypto] baby rsa" {
			t.Errorf("title = %q", decoded.Run.Outcomes[0].Record.Title)
		}
		if decoded.Run.ArchivePath != "" {
			t.Error("expected no archive with NoArchive")
		}
	})

	t.Run("json copy next to the summary", func(t *testing.T) {
		t.Parallel()

		parent := t.TempDir()
		cfg := config.NewConfig()
		cfg.Targets = []string{srv.URL + "/challenges/9"}
		cfg.OutputDir = filepath.Join(parent, "out")
		cfg.NoHistory = true
		cfg.NoArchive = true
		cfg.JSONOut = filepath.Join(parent, "report.json")

		var out bytes.Buffer
		if err := runDump(context.Background(), cfg, &out, logger); err != nil {
			t.Fatalf("runDump() error = %v", err)
		}
		if !strings.Contains(out.String(), "Saved 1 challenge(s)") {
			t.Errorf("expected the summary on stdout, got:\n%s", out.String())
		}

		data, err := os.ReadFile(cfg.JSONOut)
		if err != nil {
			t.Fatalf("failed to read JSON copy: %v", err)
		}
		var decoded report.JSONReport
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("JSON copy is not valid JSON: %v", err)
		}
		if decoded.Run == nil || len(decoded.Run.Outcomes) != 1 {
			t.Errorf("unexpected JSON copy: %s", data)
		}
	})

	t.Run("cancelled run reports interruption", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		cfg := config.NewConfig()
		cfg.Targets = []string{srv.URL + "/challenges/9"}
		cfg.OutputDir = filepath.Join(t.TempDir(), "out")
		cfg.NoHistory = true

		var out bytes.Buffer
		err := runDump(ctx, cfg, &out, logger)
		if err == nil || !strings.Contains(err.Error(), "interrupted") {
			t.Errorf("runDump() error = %v, want interruption", err)
		}
		if !strings.Contains(out.String(), "interrupted") {
			t.Errorf("expected summary to mention the interruption, got:\n%s", out.String())
		}
	})
}
