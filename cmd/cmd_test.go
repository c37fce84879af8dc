package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	cfgpkg "github.com/KaramelBytes/datachat/internal/config"
)

// fakeOracle answers every chat completion with the same fenced snippet.
func fakeOracle(t *testing.T, code string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "gen-1",
			"choices": []map[string]any{{
				"message": map[string]string{"role": "assistant", "content": "```go\n" + code + "\n```"},
			}},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, baseURL string) *cfgpkg.Global {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	c, err := cfgpkg.Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	c.APIKey = "sk-test"
	c.BaseURL = baseURL
	c.SandboxWorkDir = t.TempDir()
	c.LogLevel = "error"
	return c
}

func TestAskPrintsAnswers(t *testing.T) {
	oracle := fakeOracle(t, "fmt.Println(df.NumRows(), df.Sum(\"n\"))")
	cfg = testConfig(t, oracle.URL)
	defer func() { cfg = nil }()

	dir := t.TempDir()
	data := filepath.Join(dir, "nums.csv")
	if err := os.WriteFile(data, []byte("n\n1\n2\n3\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"ask", data, "how many rows and total?"})
	defer rootCmd.SetOut(nil)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "> how many rows and total?") {
		t.Fatalf("question not echoed: %q", got)
	}
	if !strings.Contains(got, "3 6") {
		t.Fatalf("expected answer '3 6', got %q", got)
	}
}

func TestAskRejectsUnsupportedFile(t *testing.T) {
	oracle := fakeOracle(t, "fmt.Println(1)")
	cfg = testConfig(t, oracle.URL)
	defer func() { cfg = nil }()

	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	rootCmd.SetArgs([]string{"ask", path, "anything"})
	err := rootCmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "CSV or XLSX") {
		t.Fatalf("expected unsupported file error, got %v", err)
	}
}

func TestApplySetting(t *testing.T) {
	c := &cfgpkg.Global{}
	cases := map[string]string{
		"model":                  "openai/gpt-4o",
		"sandbox_mode":           "Docker",
		"sandbox_max_concurrent": "8",
		"temperature":            "0.2",
		"log_json":               "true",
		"sandbox_memory_mb":      "256",
	}
	for k, v := range cases {
		if err := applySetting(c, k, v); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}
	if c.Model != "openai/gpt-4o" || c.SandboxMode != "docker" || c.SandboxMaxConcurrent != 8 {
		t.Fatalf("unexpected config: %+v", c)
	}
	if c.Temperature != 0.2 || !c.LogJSON || c.SandboxMemoryMB != 256 {
		t.Fatalf("unexpected config: %+v", c)
	}
	if err := applySetting(c, "max_tokens", "lots"); err == nil {
		t.Fatal("expected error for non-numeric max_tokens")
	}
	if err := applySetting(c, "nope", "x"); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestMask(t *testing.T) {
	if got := mask(""); got != "" {
		t.Fatalf("empty: %q", got)
	}
	if got := mask("abc"); got != "******" {
		t.Fatalf("short: %q", got)
	}
	if got := mask("sk-or-123456"); got != "sk-****456" {
		t.Fatalf("long: %q", got)
	}
}
