package panel

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHandler_ServesEmbeddedAssets(t *testing.T) {
	handler := Handler("")

	tests := []struct {
		path string
		want string
	}{
		{"/", "<!DOCTYPE html>"},
		{"/app.js", "requestType"},
		{"/style.css", ".device"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := get(t, handler, tt.path)
			if w.Code != http.StatusOK {
				t.Fatalf("GET %s: got status %d, want 200", tt.path, w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.want) {
				t.Errorf("GET %s: body missing %q", tt.path, tt.want)
			}
			if got := w.Header().Get("Cache-Control"); got != "no-cache, must-revalidate" {
				t.Errorf("Cache-Control = %q", got)
			}
		})
	}
}

func TestHandler_ConsoleKnowsEveryKind(t *testing.T) {
	w := get(t, Handler(""), "/app.js")
	for _, kind := range []string{"ALARMCLOCK", "WATERMIXER"} {
		if !strings.Contains(w.Body.String(), kind) {
			t.Errorf("app.js has no actions for %s", kind)
		}
	}
}

func TestHandler_Fallback(t *testing.T) {
	handler := Handler("")

	for _, path := range []string{"/nonexistent", "/some/deep/route"} {
		w := get(t, handler, path)
		if w.Code != http.StatusOK {
			t.Errorf("GET %s: got status %d, want 200", path, w.Code)
		}
		if !strings.Contains(w.Body.String(), "<!DOCTYPE html>") {
			t.Errorf("GET %s: fallback didn't serve index.html", path)
		}
	}
}

func TestHandler_FilesystemMode(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte(`<!DOCTYPE html><body>filesystem console</body>`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "test.js"), []byte("console.log('test')"), 0o644); err != nil {
		t.Fatal(err)
	}

	handler := Handler(dir)

	if w := get(t, handler, "/"); !strings.Contains(w.Body.String(), "filesystem console") {
		t.Errorf("filesystem GET /: got %q", w.Body.String())
	}
	if w := get(t, handler, "/test.js"); w.Code != http.StatusOK {
		t.Errorf("filesystem GET /test.js: got status %d, want 200", w.Code)
	}
	if w := get(t, handler, "/deep/route"); !strings.Contains(w.Body.String(), "filesystem console") {
		t.Error("filesystem fallback didn't serve filesystem index.html")
	}
}

func TestHandler_InvalidDirFallsBackToEmbed(t *testing.T) {
	w := get(t, Handler("/nonexistent/dir/that/does/not/exist"), "/")
	if w.Code != http.StatusOK {
		t.Errorf("invalid dir GET /: got status %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Gray Logic Gateway") {
		t.Error("invalid dir: didn't fall back to embedded index.html")
	}
}
