package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","database":"ok","version":"1.2.3"}`))
	})
	mux.HandleFunc("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token":"tok","expires_at":"2026-01-01T00:00:00Z","user":{"username":"admin","role":"admin"}}`))
	})
	mux.HandleFunc("/api/v1/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"username":"admin","role":"admin"}`))
	})
	mux.HandleFunc("/api/v1/finance/reports/trial-balance", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") == "xlsx" {
			_, _ = w.Write([]byte("PK\x03\x04workbook"))
			return
		}
		_, _ = w.Write([]byte(`{"as_of_date":"2026-03-31","accounts":[
			{"account_code":"1000","account_name":"Cash","debit":150,"credit":0},
			{"account_code":"3000","account_name":"Equity","debit":0,"credit":150}],
			"total_debits":150,"total_credits":150}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, srv *httptest.Server, tokenFile string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand("v9.9.9", &out)
	cmd.SetArgs(append([]string{"--server", srv.URL, "--token-file", tokenFile}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, fakeServer(t), filepath.Join(t.TempDir(), "t.json"), "version")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "v9.9.9" {
		t.Errorf("out = %q", out)
	}
}

func TestLoginThenCheck(t *testing.T) {
	srv := fakeServer(t)
	tokenFile := filepath.Join(t.TempDir(), "token.json")

	out, err := run(t, srv, tokenFile, "check")
	if err != nil {
		t.Fatalf("check before login: %v", err)
	}
	if !strings.Contains(out, "not logged in") {
		t.Errorf("check out = %q", out)
	}

	if _, err := run(t, srv, tokenFile, "login", "-u", "admin", "-p", "secret"); err != nil {
		t.Fatalf("login: %v", err)
	}
	info, err := os.Stat(tokenFile)
	if err != nil {
		t.Fatalf("token file: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("token file mode = %v", info.Mode().Perm())
	}

	out, err = run(t, srv, tokenFile, "check")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out, "login    admin (admin)") || !strings.Contains(out, "version 1.2.3") {
		t.Errorf("check out = %q", out)
	}
}

func TestLoginRequiresCredentials(t *testing.T) {
	t.Setenv("ERP_PASSWORD", "")
	_, err := run(t, fakeServer(t), filepath.Join(t.TempDir(), "t.json"), "login", "-u", "admin")
	if err == nil {
		t.Fatal("expected error without a password")
	}
}

func TestTrialBalanceReport(t *testing.T) {
	srv := fakeServer(t)
	dir := t.TempDir()

	out, err := run(t, srv, filepath.Join(dir, "t.json"), "report", "trial-balance")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"as of 2026-03-31", "Cash", "150.00"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	dest := filepath.Join(dir, "tb.xlsx")
	if _, err := run(t, srv, filepath.Join(dir, "t.json"), "report", "trial-balance", "--xlsx", dest); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("PK")) {
		t.Errorf("xlsx file starts with %q", data[:min(4, len(data))])
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"Cash", 10, "Cash"},
		{"Accounts Receivable", 10, "Accounts …"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
