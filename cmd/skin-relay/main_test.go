package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

const testConfig = `
server:
  listen: "127.0.0.1:0"
upstream:
  base_url: http://127.0.0.1:1
logging:
  level: error
  format: json
  output: stderr
cache:
  mode: disabled
`

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), defaultConfigFile)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func testCommand() (*cobra.Command, *bytes.Buffer) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	cmd.SetContext(context.Background())
	return cmd, &buf
}

func TestFindConfigIn(t *testing.T) {
	t.Parallel()

	t.Run("working directory first", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		path := filepath.Join(dir, defaultConfigFile)
		if err := os.WriteFile(path, []byte(testConfig), 0o600); err != nil {
			t.Fatal(err)
		}
		if got := findConfigIn(dir, t.TempDir()); got != path {
			t.Errorf("Expected %q, got %q", path, got)
		}
	})

	t.Run("falls back to home config", func(t *testing.T) {
		t.Parallel()
		home := t.TempDir()
		path := defaultConfigPath(home)
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(testConfig), 0o600); err != nil {
			t.Fatal(err)
		}
		if got := findConfigIn(t.TempDir(), home); got != path {
			t.Errorf("Expected %q, got %q", path, got)
		}
	})

	t.Run("nothing found", func(t *testing.T) {
		t.Parallel()
		if got := findConfigIn(t.TempDir(), ""); got != "" {
			t.Errorf("Expected empty path, got %q", got)
		}
	})
}

func TestDefaultConfigTemplateIsValid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", defaultConfigFile)
	if err := writeDefaultConfig(path, false); err != nil {
		t.Fatalf("writeDefaultConfig: %v", err)
	}

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("generated config does not validate: %v", err)
	}
	if cfg.Gateway.GetMaxConcurrent() != 5 {
		t.Errorf("Expected max_concurrent 5, got %d", cfg.Gateway.GetMaxConcurrent())
	}
	if len(cfg.Gateway.GetSkins()) != 6 {
		t.Errorf("Expected 6 skins, got %v", cfg.Gateway.GetSkins())
	}
}

func TestWriteDefaultConfigRefusesOverwrite(t *testing.T) {
	t.Parallel()

	path := writeTestConfig(t, "server: {}\n")
	err := writeDefaultConfig(path, false)
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("Expected already exists error, got %v", err)
	}
	if err := writeDefaultConfig(path, true); err != nil {
		t.Fatalf("force overwrite: %v", err)
	}
}

func TestConfigValidateCommand(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{name: "valid", content: testConfig, want: "✓"},
		{name: "invalid store", content: testConfig + "rate_limit:\n  store: etcd\n", want: "✗", wantErr: true},
		{name: "bad yaml", content: "server: [", want: "✗", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfgFile = writeTestConfig(t, tt.content)
			t.Cleanup(func() { cfgFile = "" })

			cmd, out := testCommand()
			err := runConfigValidate(cmd, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("Expected %q in output, got %q", tt.want, out.String())
			}
		})
	}
}

func TestHealthURL(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"127.0.0.1:8787": "http://127.0.0.1:8787/health",
		":8787":          "http://127.0.0.1:8787/health",
		"0.0.0.0:9000":   "http://127.0.0.1:9000/health",
		"[::]:9000":      "http://127.0.0.1:9000/health",
		"relay.internal": "http://relay.internal/health",
	}
	for listen, want := range tests {
		if got := healthURL(listen); got != want {
			t.Errorf("healthURL(%q) = %q, want %q", listen, got, want)
		}
	}
}

func TestCheckStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		want    string
		status  int
		wantErr bool
	}{
		{
			name:   "ok",
			status: http.StatusOK,
			body:   `{"status":"ok","circuits":[],"concurrency":{"active":1,"pending":0,"limit":5}}`,
			want:   "✓ skin-relay is running",
		},
		{
			name:   "degraded",
			status: http.StatusOK,
			body:   `{"status":"degraded","circuits":[{"name":"chat","state":"open"}],"concurrency":{"limit":5}}`,
			want:   "open circuits: chat",
		},
		{
			name:    "unexpected status",
			status:  http.StatusInternalServerError,
			body:    `{}`,
			want:    "unexpected status: 500",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			var out bytes.Buffer
			err := checkStatus(context.Background(), strings.TrimPrefix(srv.URL, "http://"), &out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("Expected %q in output, got %q", tt.want, out.String())
			}
		})
	}
}

func TestCheckStatusNotRunning(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	var out bytes.Buffer
	if err := checkStatus(context.Background(), addr, &out); err == nil {
		t.Fatal("Expected error for stopped server")
	}
	if !strings.Contains(out.String(), "is not running") {
		t.Errorf("Expected not running message, got %q", out.String())
	}
}

func TestServeStartsAndStops(t *testing.T) {
	path := writeTestConfig(t, testConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, path, func(addr string) { ready <- addr })
	}()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not start")
	}

	var out bytes.Buffer
	if err := checkStatus(context.Background(), addr, &out); err != nil {
		t.Fatalf("status against running server: %v (%s)", err, out.String())
	}
	if !strings.Contains(out.String(), "limit 5") {
		t.Errorf("Expected default concurrency limit in status, got %q", out.String())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve returned error on shutdown: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServeFailsOnInvalidConfig(t *testing.T) {
	path := writeTestConfig(t, testConfig+"gateway:\n  max_concurrent: -1\n")
	if err := serve(context.Background(), path, nil); err == nil {
		t.Fatal("Expected error for invalid config")
	}
}
