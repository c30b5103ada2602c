package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testConfigTemplate = `
database:
  path: %q
  wal_mode: true
  busy_timeout: 5

mqtt:
  enabled: false

api:
  host: "127.0.0.1"
  port: %d

gateway:
  heartbeat_interval_ms: 200
  broadcast_interval_ms: 100

logging:
  level: error
  format: text
  output: stdout

security:
  jwt:
    secret: "test-secret-key-at-least-32-characters-long"
    access_token_ttl: 15
`

// writeConfig writes a config whose database lives in a temp dir.
func writeConfig(t *testing.T, port int) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(testConfigTemplate, filepath.Join(dir, "gateway.db"), port)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

// execute runs the CLI with args and returns its combined output.
func execute(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", configPath}, args...))
	err := root.ExecuteContext(testContext(t))
	return out.String(), err
}

func mustExecute(t *testing.T, configPath string, args ...string) string {
	t.Helper()

	out, err := execute(t, configPath, args...)
	if err != nil {
		t.Fatalf("%s: error = %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func freePort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("finding free port: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv(configEnv, "")
	if got := resolveConfigPath(""); got != defaultConfigPath {
		t.Errorf("resolveConfigPath(\"\") = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv(configEnv, "/etc/gw.yaml")
	if got := resolveConfigPath(""); got != "/etc/gw.yaml" {
		t.Errorf("resolveConfigPath() with env = %q, want /etc/gw.yaml", got)
	}
	if got := resolveConfigPath("local.yaml"); got != "local.yaml" {
		t.Errorf("resolveConfigPath(flag) = %q, want local.yaml", got)
	}
}

func TestAdminCommands(t *testing.T) {
	cfg := writeConfig(t, 8080)

	out := mustExecute(t, cfg, "user", "add", "--username", "alice", "--password", "alice-password")
	if !strings.Contains(out, "created user alice") {
		t.Errorf("user add output = %q", out)
	}
	out = mustExecute(t, cfg, "device", "add", "--id", "mixer-1", "--kind", "watermixer", "--secret", "mixer-secret")
	if !strings.Contains(out, "provisioned WATERMIXER mixer-1") {
		t.Errorf("device add output = %q", out)
	}
	mustExecute(t, cfg, "grant", "--username", "alice", "--device", "mixer-1")

	out = mustExecute(t, cfg, "user", "list")
	if !strings.Contains(out, "alice") {
		t.Errorf("user list output = %q", out)
	}
	out = mustExecute(t, cfg, "device", "list")
	if !strings.Contains(out, "mixer-1") || !strings.Contains(out, "WATERMIXER") {
		t.Errorf("device list output = %q", out)
	}

	token := strings.TrimSpace(mustExecute(t, cfg, "token", "--username", "alice", "--password", "alice-password"))
	if strings.Count(token, ".") != 2 {
		t.Errorf("token = %q, want a JWT", token)
	}
	if _, err := execute(t, cfg, "token", "--username", "alice", "--password", "wrong"); err == nil {
		t.Error("token with wrong password: error = nil")
	}

	mustExecute(t, cfg, "revoke", "--username", "alice", "--device", "mixer-1")

	out = mustExecute(t, cfg, "audit", "--action", "access.grant")
	if !strings.Contains(out, "access.grant") || !strings.Contains(out, "1 of 1 entries") {
		t.Errorf("audit output = %q", out)
	}
	out = mustExecute(t, cfg, "audit")
	for _, action := range []string{"user.create", "device.create", "access.revoke", "login.failed"} {
		if !strings.Contains(out, action) {
			t.Errorf("audit output missing %s:\n%s", action, out)
		}
	}
	mustExecute(t, cfg, "device", "remove", "--id", "mixer-1")
	if _, err := execute(t, cfg, "device", "remove", "--id", "mixer-1"); err == nil {
		t.Error("removing a missing device: error = nil")
	}
}

func TestAdminCommands_Rejections(t *testing.T) {
	cfg := writeConfig(t, 8080)
	mustExecute(t, cfg, "user", "add", "--username", "alice", "--password", "alice-password")

	tests := []struct {
		name string
		args []string
	}{
		{"bad role", []string{"user", "add", "--username", "bob", "--password", "x", "--role", "root"}},
		{"no password", []string{"user", "add", "--username", "bob"}},
		{"duplicate user", []string{"user", "add", "--username", "alice", "--password", "x"}},
		{"bad kind", []string{"device", "add", "--id", "d1", "--kind", "toaster", "--secret", "long-enough"}},
		{"short secret", []string{"device", "add", "--id", "d1", "--kind", "alarmclock", "--secret", "short"}},
		{"bad id", []string{"device", "add", "--id", "bad id", "--kind", "alarmclock", "--secret", "long-enough"}},
		{"grant unknown device", []string{"grant", "--username", "alice", "--device", "nope"}},
		{"grant unknown user", []string{"grant", "--username", "bob", "--device", "nope"}},
		{"missing flag", []string{"grant", "--username", "alice"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, cfg, tt.args...); err == nil {
				t.Errorf("%v: error = nil, want error", tt.args)
			}
		})
	}
}

func TestMigrateCommands(t *testing.T) {
	cfg := writeConfig(t, 8080)

	out := mustExecute(t, cfg, "migrate", "status")
	if strings.Count(out, "pending") != 2 {
		t.Errorf("status before up = %q, want 2 pending", out)
	}

	mustExecute(t, cfg, "migrate", "up")
	out = mustExecute(t, cfg, "migrate", "status")
	if strings.Count(out, "applied") != 2 || strings.Contains(out, "pending") {
		t.Errorf("status after up = %q", out)
	}

	mustExecute(t, cfg, "migrate", "down")
	out = mustExecute(t, cfg, "migrate", "status")
	if strings.Count(out, "pending") != 1 || !strings.Contains(out, "audit_log") {
		t.Errorf("status after down = %q, want the audit migration pending", out)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, "/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

func TestRun_ServesUntilCancelled(t *testing.T) {
	port := freePort(t)
	cfg := writeConfig(t, port)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/api/v1/health", port)
	deadline := time.Now().Add(5 * time.Second)
	healthy := false
	for time.Now().Before(deadline) && !healthy {
		resp, err := http.Get(url)
		if err == nil {
			healthy = resp.StatusCode == http.StatusOK
			resp.Body.Close()
		}
		if !healthy {
			time.Sleep(20 * time.Millisecond)
		}
	}
	if !healthy {
		cancel()
		t.Fatal("server never became healthy")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run() error = %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancel")
	}
}
