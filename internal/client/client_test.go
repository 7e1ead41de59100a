package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"erp-server/internal/core"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestBearerTokenIsSent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(core.User{Username: "alice"})
	}))
	defer srv.Close()

	store := &MemoryStore{}
	_ = store.SetToken("tok-123")
	c := New(srv.URL, WithTokenStore(store))

	u, err := c.Me(context.Background())
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if got != "Bearer tok-123" {
		t.Errorf("Authorization = %q", got)
	}
	if u.Username != "alice" {
		t.Errorf("username = %q", u.Username)
	}
}

func TestUnauthorizedClearsTokenAndFiresHook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"token expired","code":"UNAUTHORIZED"}`))
	}))
	defer srv.Close()

	store := &MemoryStore{}
	_ = store.SetToken("stale")
	fired := 0
	c := New(srv.URL, WithTokenStore(store), OnUnauthorized(func() { fired++ }))

	_, err := c.Me(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if store.Token() != "" {
		t.Errorf("token not cleared")
	}
	if fired != 1 {
		t.Errorf("hook fired %d times", fired)
	}
}

func TestAPIErrorDecoding(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantMsg  string
		wantCode string
	}{
		{"error field", 409, `{"error":"sku already exists","code":"CONFLICT"}`, "sku already exists", "CONFLICT"},
		{"message field", 422, `{"message":"credit limit exceeded"}`, "credit limit exceeded", ""},
		{"not json", 502, `<html>bad gateway</html>`, "Bad Gateway", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := Get[core.User](context.Background(), New(srv.URL), "/x")
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("err = %v, want *APIError", err)
			}
			if apiErr.Status != tt.status || apiErr.Message != tt.wantMsg || apiErr.Code != tt.wantCode {
				t.Errorf("got %+v", apiErr)
			}
			if errors.Is(err, ErrUnauthorized) {
				t.Errorf("non-401 matched ErrUnauthorized")
			}
		})
	}
}

func TestListDecodesPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") != "2" {
			t.Errorf("page query = %q", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"items":[{"title":"a"},{"title":"b"}],"total":12,"page":2,"per_page":10,"total_pages":2}`))
	}))
	defer srv.Close()

	page, err := List[core.Notification](context.Background(), New(srv.URL), "/api/v1/notifications", map[string][]string{"page": {"2"}})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page.Items) != 2 || page.Total != 12 || page.TotalPages != 2 {
		t.Errorf("page = %+v", page)
	}
}

func TestLoginStoresToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["username"] != "admin" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"token":"fresh","user":{"username":"admin","role":"admin"}}`))
	}))
	defer srv.Close()

	store := &FileStore{Path: filepath.Join(t.TempDir(), "erpctl", "token.json")}
	c := New(srv.URL, WithTokenStore(store))
	resp, err := c.Login(context.Background(), "admin", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if resp.User.Role != "admin" {
		t.Errorf("role = %q", resp.User.Role)
	}
	// A second store on the same path sees the login.
	if got := (&FileStore{Path: store.Path}).Token(); got != "fresh" {
		t.Errorf("persisted token = %q", got)
	}
	if err := store.Clear(); err != nil {
		t.Fatal(err)
	}
	if store.Token() != "" {
		t.Errorf("token survived Clear")
	}
	if err := store.Clear(); err != nil {
		t.Errorf("second Clear: %v", err)
	}
}

func TestValidateJournalLines(t *testing.T) {
	d := decimal.RequireFromString
	tests := []struct {
		name  string
		lines []core.JournalLineInput
		ok    bool
	}{
		{"balanced", []core.JournalLineInput{{Debit: d("100")}, {Credit: d("100")}}, true},
		{"within a cent", []core.JournalLineInput{{Debit: d("100.01")}, {Credit: d("100")}}, true},
		{"off by two cents", []core.JournalLineInput{{Debit: d("100.02")}, {Credit: d("100")}}, false},
		{"empty", nil, true},
		{"split credits", []core.JournalLineInput{{Debit: d("90")}, {Credit: d("45")}, {Credit: d("45.01")}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateJournalLines(tt.lines)
			if (err == nil) != tt.ok {
				t.Fatalf("err = %v, want ok=%v", err, tt.ok)
			}
			if err != nil && !errors.Is(err, ErrUnbalanced) {
				t.Errorf("err = %v, want ErrUnbalanced", err)
			}
			if server := core.ValidateJournalLines(tt.lines).Balanced(); server != tt.ok {
				t.Errorf("server balance rule = %v, client = %v", server, tt.ok)
			}
		})
	}
}

func TestCreateJournalEntryRejectsLocally(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	acct := uuid.New()
	_, err := New(srv.URL).CreateJournalEntry(context.Background(), core.JournalEntryInput{
		Date: "2026-01-31",
		Lines: []core.JournalLineInput{
			{AccountID: &acct, Debit: decimal.NewFromInt(50)},
			{AccountID: &acct, Credit: decimal.NewFromInt(40)},
		},
	})
	if !errors.Is(err, ErrUnbalanced) {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(err.Error(), "Debits: 50.00, Credits: 40.00") {
		t.Errorf("message = %q", err.Error())
	}
	if calls.Load() != 0 {
		t.Errorf("server was called")
	}
}

// pollServer counts list and unread-count requests.
type pollServer struct {
	list, count atomic.Int32
	failList    bool
}

func (p *pollServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/v1/notifications":
		p.list.Add(1)
		if p.failList {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"boom","code":"INTERNAL_ERROR"}`))
			return
		}
		_, _ = w.Write([]byte(`{"items":[],"total":0,"page":1,"per_page":20,"total_pages":0}`))
	case "/api/v1/notifications/unread-count":
		p.count.Add(1)
		_, _ = w.Write([]byte(`{"count":3}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestPollerFirstTickIsImmediate(t *testing.T) {
	ps := &pollServer{}
	srv := httptest.NewServer(ps)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan NotificationSnapshot, 1)
	p := NewPoller(New(srv.URL), time.Hour, func(s NotificationSnapshot, err error) {
		if err != nil {
			t.Errorf("tick: %v", err)
		}
		got <- s
		cancel()
	})

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case s := <-got:
		if s.Unread != 3 {
			t.Errorf("unread = %d", s.Unread)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no immediate tick")
	}
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v", err)
	}
	if ps.list.Load() != 1 || ps.count.Load() != 1 {
		t.Errorf("requests list=%d count=%d, want 1/1", ps.list.Load(), ps.count.Load())
	}
}

func TestPollerStopsOnCancel(t *testing.T) {
	ps := &pollServer{}
	srv := httptest.NewServer(ps)
	defer srv.Close()

	var mu sync.Mutex
	ticks := 0
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPoller(New(srv.URL), 10*time.Millisecond, func(NotificationSnapshot, error) {
		mu.Lock()
		ticks++
		mu.Unlock()
	})

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	time.Sleep(60 * time.Millisecond)
	cancel()
	<-done

	mu.Lock()
	if ticks < 2 {
		t.Errorf("only %d ticks delivered", ticks)
	}
	mu.Unlock()

	list, count := ps.list.Load(), ps.count.Load()
	if list < 2 {
		t.Errorf("only %d list requests", list)
	}
	if count != list {
		t.Errorf("list=%d count=%d, want one of each per tick", list, count)
	}
	time.Sleep(40 * time.Millisecond)
	if ps.list.Load() != list || ps.count.Load() != count {
		t.Errorf("requests issued after Run returned")
	}
}

func TestPollerSendsCountWhenListFails(t *testing.T) {
	ps := &pollServer{failList: true}
	srv := httptest.NewServer(ps)
	defer srv.Close()

	var (
		mu   sync.Mutex
		errs []error
	)
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPoller(New(srv.URL), 20*time.Millisecond, func(s NotificationSnapshot, err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	})

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	time.Sleep(70 * time.Millisecond)
	cancel()
	<-done

	list, count := ps.list.Load(), ps.count.Load()
	if list < 2 || count != list {
		t.Errorf("list=%d count=%d, want one count request per tick", list, count)
	}
	mu.Lock()
	defer mu.Unlock()
	for _, err := range errs {
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Status != http.StatusInternalServerError {
			t.Errorf("tick error = %v, want the list failure", err)
		}
	}
}

func TestNewPollerDefaultInterval(t *testing.T) {
	p := NewPoller(New("http://localhost"), 0, func(NotificationSnapshot, error) {})
	if p.interval != DefaultPollInterval {
		t.Errorf("interval = %v", p.interval)
	}
}
