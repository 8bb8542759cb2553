package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

type recorded struct {
	method, path, auth string
	body               map[string]interface{}
}

type stub struct {
	mu   sync.Mutex
	reqs []recorded
}

func (s *stub) last(t *testing.T) recorded {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.reqs) == 0 {
		t.Fatal("no request reached the server")
	}
	return s.reqs[len(s.reqs)-1]
}

func newStub(t *testing.T) (*stub, *httptest.Server) {
	t.Helper()
	s := &stub{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.Path, auth: r.Header.Get("Authorization")}
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			_ = json.Unmarshal(data, &rec.body)
		}
		s.mu.Lock()
		s.reqs = append(s.reqs, rec)
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/despawn/"+uuid.Nil.String()) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"Not Found","code":404,"message":"despawn: not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)
	return s, srv
}

func execute(t *testing.T, url string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	out := &strings.Builder{}
	root.SetOut(out)
	root.SetArgs(append([]string{"--service-url", url, "--admin-key", "k"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestCLI_Queries(t *testing.T) {
	s, srv := newStub(t)
	actor := uuid.New()

	for _, tc := range []struct {
		args []string
		path string
	}{
		{[]string{"holders"}, "/api/relics/holders"},
		{[]string{"ground"}, "/api/relics/ground"},
		{[]string{"counts"}, "/api/relics/counts"},
		{[]string{"timers"}, "/api/admin/timers"},
		{[]string{"holder", actor.String()}, "/api/relics/actors/" + actor.String()},
	} {
		out, err := execute(t, srv.URL, tc.args...)
		if err != nil {
			t.Fatalf("%v: %v", tc.args, err)
		}
		got := s.last(t)
		if got.method != http.MethodGet || got.path != tc.path {
			t.Fatalf("%v: got %s %s", tc.args, got.method, got.path)
		}
		if got.auth != "Bearer k" {
			t.Fatalf("%v: auth header %q", tc.args, got.auth)
		}
		if !strings.Contains(out, `"ok": true`) {
			t.Fatalf("%v: output not pretty printed: %q", tc.args, out)
		}
	}
}

func TestCLI_AdminCommands(t *testing.T) {
	s, srv := newStub(t)
	a, b := uuid.New(), uuid.New()

	if _, err := execute(t, srv.URL, "grant", a.String()); err != nil {
		t.Fatal(err)
	}
	if got := s.last(t); got.path != "/api/admin/grant" || got.body["actor"] != a.String() {
		t.Fatalf("grant sent %+v", got)
	}

	if _, err := execute(t, srv.URL, "transfer", a.String(), b.String()); err != nil {
		t.Fatal(err)
	}
	if got := s.last(t); got.body["from"] != a.String() || got.body["to"] != b.String() {
		t.Fatalf("transfer sent %+v", got)
	}

	if _, err := execute(t, srv.URL, "timer", a.String(), "--add", "90s"); err != nil {
		t.Fatal(err)
	}
	if got := s.last(t); got.body["op"] != "add" || got.body["seconds"] != float64(90) {
		t.Fatalf("timer sent %+v", got)
	}

	if _, err := execute(t, srv.URL, "revoke-all"); err == nil {
		t.Fatal("revoke-all without --yes should fail")
	}
	if _, err := execute(t, srv.URL, "revoke-all", "--yes"); err != nil {
		t.Fatal(err)
	}
	if got := s.last(t); got.path != "/api/admin/revoke-all" {
		t.Fatalf("revoke-all sent %+v", got)
	}
}

func TestCLI_Audit(t *testing.T) {
	s, srv := newStub(t)
	scan := filepath.Join(t.TempDir(), "scan.json")
	if err := os.WriteFile(scan, []byte(`[{"relic":"`+uuid.NewString()+`","container":"chest"}]`), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := execute(t, srv.URL, "audit", "-f", scan); err != nil {
		t.Fatal(err)
	}
	obs, ok := s.last(t).body["observations"].([]interface{})
	if !ok || len(obs) != 1 {
		t.Fatalf("audit sent %+v", s.last(t).body)
	}
}

func TestCLI_Errors(t *testing.T) {
	_, srv := newStub(t)

	if _, err := execute(t, srv.URL, "grant", "nope"); err == nil || !strings.Contains(err.Error(), "invalid actor id") {
		t.Fatalf("expected id validation error, got %v", err)
	}
	_, err := execute(t, srv.URL, "despawn", uuid.Nil.String())
	if err == nil || !strings.Contains(err.Error(), "http 404: despawn: not found") {
		t.Fatalf("expected server message, got %v", err)
	}
}

func TestTimerOp(t *testing.T) {
	if _, _, err := timerOp(time.Minute, time.Minute, false); err == nil {
		t.Fatal("two adjustments accepted")
	}
	if _, _, err := timerOp(0, 0, false); err == nil {
		t.Fatal("no adjustment accepted")
	}
	if _, _, err := timerOp(time.Millisecond, 0, false); err == nil {
		t.Fatal("sub-second adjustment accepted")
	}
	op, d, err := timerOp(0, 0, true)
	if err != nil || op != "reset" || d != 0 {
		t.Fatalf("reset: %s %s %v", op, d, err)
	}
}
