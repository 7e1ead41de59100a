package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"erp-server/internal/core"
	"erp-server/internal/spreadsheet"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const testSecret = "test-secret"

type fakeDB struct{ err error }

func (f fakeDB) Ping(context.Context) error { return f.err }

type fakeUsers struct {
	core.UserService
	user core.User
}

func (f *fakeUsers) Authenticate(_ context.Context, username, password string) (core.User, error) {
	if username != f.user.Username || password != "correct-horse1" {
		return core.User{}, fmt.Errorf("%w: invalid credentials", core.ErrUnauthorized)
	}
	return f.user, nil
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (core.User, error) {
	if id != f.user.ID {
		return core.User{}, fmt.Errorf("%w: user not found", core.ErrNotFound)
	}
	return f.user, nil
}

type fakeLedger struct {
	core.LedgerService
	params    core.ListParams
	accounts  []core.Account
	createErr error
}

func (f *fakeLedger) ListAccounts(_ context.Context, p core.ListParams) (core.Page[core.Account], error) {
	f.params = p
	return core.NewPage(f.accounts, int64(len(f.accounts)), p), nil
}

func (f *fakeLedger) CreateAccount(_ context.Context, in core.AccountInput) (core.Account, error) {
	if f.createErr != nil {
		return core.Account{}, f.createErr
	}
	return core.Account{ID: uuid.New(), Code: in.Code, Name: in.Name, AccountType: in.AccountType}, nil
}

func (f *fakeLedger) PostEntry(_ context.Context, id uuid.UUID) (core.JournalEntry, error) {
	panic("ledger exploded")
}

type fakeReports struct{ core.ReportingService }

func (fakeReports) TrialBalance(_ context.Context, asOf *time.Time) (core.TrialBalance, error) {
	date := "2026-01-31"
	if asOf != nil {
		date = asOf.Format(time.DateOnly)
	}
	return core.TrialBalance{
		AsOfDate:     date,
		Accounts:     []core.TrialBalanceLine{{AccountCode: "1000", AccountName: "Cash", Debit: decimal.NewFromInt(10)}},
		TotalDebits:  decimal.NewFromInt(10),
		TotalCredits: decimal.Zero,
	}, nil
}

type fakeNotifications struct {
	core.NotificationService
	user uuid.UUID
}

func (f *fakeNotifications) UnreadCount(_ context.Context, userID uuid.UUID) (int64, error) {
	f.user = userID
	return 3, nil
}

// services returns a Services value whose unset members panic only when called.
func services(svc Services) Services {
	if svc.DB == nil {
		svc.DB = fakeDB{}
	}
	if svc.Users == nil {
		svc.Users = &fakeUsers{}
	}
	if svc.Audit == nil {
		svc.Audit = struct{ core.AuditService }{}
	}
	if svc.Notifications == nil {
		svc.Notifications = &fakeNotifications{}
	}
	if svc.Ledger == nil {
		svc.Ledger = &fakeLedger{}
	}
	if svc.Reports == nil {
		svc.Reports = fakeReports{}
	}
	if svc.Revaluations == nil {
		svc.Revaluations = struct{ core.RevaluationService }{}
	}
	if svc.Inventory == nil {
		svc.Inventory = struct{ core.InventoryService }{}
	}
	if svc.Sales == nil {
		svc.Sales = struct{ core.SalesService }{}
	}
	if svc.Credit == nil {
		svc.Credit = struct{ core.CreditService }{}
	}
	if svc.Vendors == nil {
		svc.Vendors = struct{ core.VendorService }{}
	}
	if svc.Purchasing == nil {
		svc.Purchasing = struct{ core.PurchaseOrderService }{}
	}
	if svc.HR == nil {
		svc.HR = struct{ core.HRService }{}
	}
	if svc.ServiceDesk == nil {
		svc.ServiceDesk = struct{ core.ServiceDeskService }{}
	}
	if svc.Assets == nil {
		svc.Assets = struct{ core.AssetService }{}
	}
	if svc.Compliance == nil {
		svc.Compliance = struct{ core.ComplianceService }{}
	}
	if svc.Projects == nil {
		svc.Projects = struct{ core.ProjectService }{}
	}
	if svc.Pricing == nil {
		svc.Pricing = struct{ core.PricingService }{}
	}
	if svc.Sourcing == nil {
		svc.Sourcing = struct{ core.SourcingService }{}
	}
	if svc.CRM == nil {
		svc.CRM = struct{ core.CRMService }{}
	}
	if svc.Settings == nil {
		svc.Settings = struct{ core.SettingsService }{}
	}
	if svc.Rules == nil {
		svc.Rules = struct{ core.RuleEngine }{}
	}
	if svc.Approvals == nil {
		svc.Approvals = struct{ core.ApprovalService }{}
	}
	return svc
}

func newTestHandler(svc Services) http.Handler {
	return NewHandler(services(svc), Options{
		JWTSecret: testSecret,
		TokenTTL:  time.Hour,
		Version:   "test",
		BodyLimit: 1 << 10,
		Log:       zerolog.Nop(),
	})
}

func tokenFor(t *testing.T, id uuid.UUID, role string) string {
	t.Helper()
	h := &Handler{jwtSecret: []byte(testSecret), tokenTTL: time.Hour}
	resp, err := h.issueToken(core.User{ID: id, Username: "tester", Role: role})
	if err != nil {
		t.Fatalf("issueToken: %v", err)
	}
	return resp.Token
}

func do(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var e errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&e); err != nil {
		t.Fatalf("decode error body: %v (body %q)", err, rec.Body.String())
	}
	return e
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		db         Pinger
		wantStatus int
		wantState  string
		wantDB     string
	}{
		{"database up", fakeDB{}, http.StatusOK, "ok", "ok"},
		{"database down", fakeDB{err: errors.New("connection refused")}, http.StatusServiceUnavailable, "degraded", "unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(Services{DB: tt.db})
			for _, path := range []string{"/health", "/api/v1/health"} {
				rec := do(t, h, http.MethodGet, path, "", "")
				if rec.Code != tt.wantStatus {
					t.Fatalf("%s: status = %d, want %d", path, rec.Code, tt.wantStatus)
				}
				var body map[string]string
				_ = json.NewDecoder(rec.Body).Decode(&body)
				if body["status"] != tt.wantState || body["database"] != tt.wantDB || body["version"] != "test" {
					t.Errorf("%s: body = %v", path, body)
				}
			}
		})
	}
}

func TestRequireAuth(t *testing.T) {
	h := newTestHandler(Services{})
	expired := func() string {
		hd := &Handler{jwtSecret: []byte(testSecret), tokenTTL: -time.Minute}
		resp, _ := hd.issueToken(core.User{ID: uuid.New(), Role: core.RoleAdmin})
		return resp.Token
	}()
	otherKey := func() string {
		hd := &Handler{jwtSecret: []byte("another-secret"), tokenTTL: time.Hour}
		resp, _ := hd.issueToken(core.User{ID: uuid.New(), Role: core.RoleAdmin})
		return resp.Token
	}()

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "not-a-jwt", http.StatusUnauthorized},
		{"expired", expired, http.StatusUnauthorized},
		{"wrong key", otherKey, http.StatusUnauthorized},
		{"valid", tokenFor(t, uuid.New(), core.RoleAdmin), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, "/api/v1/finance/accounts", tt.token, "")
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusUnauthorized {
				if e := decodeError(t, rec); e.Code != "UNAUTHORIZED" || e.RequestID == "" {
					t.Errorf("error body = %+v", e)
				}
			}
		})
	}
}

func TestModulePermissions(t *testing.T) {
	h := newTestHandler(Services{})
	tests := []struct {
		role   string
		method string
		path   string
		body   string
		want   int
	}{
		{core.RoleFinance, http.MethodGet, "/api/v1/finance/accounts", "", http.StatusOK},
		{core.RoleFinance, http.MethodPost, "/api/v1/finance/accounts", `{"code":"1000","name":"Cash"}`, http.StatusCreated},
		{core.RoleHR, http.MethodGet, "/api/v1/finance/accounts", "", http.StatusForbidden},
		{core.RoleUser, http.MethodGet, "/api/v1/finance/accounts", "", http.StatusOK},
		{core.RoleUser, http.MethodPost, "/api/v1/finance/accounts", `{"code":"1000","name":"Cash"}`, http.StatusForbidden},
		{core.RoleSales, http.MethodPost, "/api/v1/credit/check", `{}`, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.role+" "+tt.method+" "+tt.path, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tokenFor(t, uuid.New(), tt.role), tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestListPagination(t *testing.T) {
	ledger := &fakeLedger{accounts: []core.Account{{ID: uuid.New(), Code: "1000", Name: "Cash"}}}
	h := newTestHandler(Services{Ledger: ledger})
	token := tokenFor(t, uuid.New(), core.RoleAdmin)

	rec := do(t, h, http.MethodGet, "/api/v1/finance/accounts?page=2&limit=5&account_type=Asset&q=ca", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ledger.params.Page != 2 || ledger.params.PerPage != 5 {
		t.Errorf("paging = %d/%d, want 2/5", ledger.params.Page, ledger.params.PerPage)
	}
	if ledger.params.Search != "ca" || ledger.params.Filters["account_type"] != "Asset" {
		t.Errorf("params = %+v", ledger.params)
	}
	if _, ok := ledger.params.Filters["limit"]; ok {
		t.Error("limit must not be passed on as a filter")
	}

	var page core.Page[core.Account]
	if err := json.NewDecoder(rec.Body).Decode(&page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Total != 1 || page.PerPage != 5 || len(page.Items) != 1 {
		t.Errorf("page = %+v", page)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/finance/accounts?per_page=1000", token, "")
	if rec.Code != http.StatusOK || ledger.params.PerPage != core.MaxPerPage {
		t.Errorf("per_page clamp: status %d, per_page %d", rec.Code, ledger.params.PerPage)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		body     string
		want     int
		wantCode string
	}{
		{"validation", fmt.Errorf("%w: code is required", core.ErrValidation), `{}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"conflict", fmt.Errorf("%w: account already exists", core.ErrConflict), `{}`, http.StatusConflict, "CONFLICT"},
		{"not found", fmt.Errorf("%w: parent not found", core.ErrNotFound), `{}`, http.StatusNotFound, "NOT_FOUND"},
		{"business rule", fmt.Errorf("%w: closed", core.ErrBusinessRule), `{}`, http.StatusUnprocessableEntity, "BUSINESS_RULE"},
		{"forbidden", fmt.Errorf("%w: not yours", core.ErrForbidden), `{}`, http.StatusForbidden, "FORBIDDEN"},
		{"internal", errors.New("pq: connection reset"), `{}`, http.StatusInternalServerError, "INTERNAL_ERROR"},
		{"bad json", nil, `{"code":`, http.StatusBadRequest, "BAD_REQUEST"},
		{"too large", nil, `{"description":"` + strings.Repeat("x", 2048) + `"}`, http.StatusRequestEntityTooLarge, "REQUEST_TOO_LARGE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(Services{Ledger: &fakeLedger{createErr: tt.err}})
			rec := do(t, h, http.MethodPost, "/api/v1/finance/accounts", tokenFor(t, uuid.New(), core.RoleAdmin), tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			e := decodeError(t, rec)
			if e.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", e.Code, tt.wantCode)
			}
			if tt.wantCode == "INTERNAL_ERROR" && strings.Contains(e.Error, "pq") {
				t.Errorf("internal error leaked: %q", e.Error)
			}
		})
	}
}

func TestRecovererReturns500(t *testing.T) {
	h := newTestHandler(Services{})
	rec := do(t, h, http.MethodPost, "/api/v1/finance/journal-entries/"+uuid.NewString()+"/post", tokenFor(t, uuid.New(), core.RoleAdmin), "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != "INTERNAL_ERROR" {
		t.Errorf("code = %s", e.Code)
	}
}

func TestInvalidIDIs400(t *testing.T) {
	h := newTestHandler(Services{})
	rec := do(t, h, http.MethodPost, "/api/v1/finance/journal-entries/not-a-uuid/post", tokenFor(t, uuid.New(), core.RoleAdmin), "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestLoginAndMe(t *testing.T) {
	user := core.User{ID: uuid.New(), Username: "alice", Role: core.RoleFinance, Status: core.UserStatusActive}
	h := newTestHandler(Services{Users: &fakeUsers{user: user}})

	for _, prefix := range []string{"/auth", "/api/v1/auth"} {
		t.Run(prefix, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, prefix+"/login", "", `{"username":"alice","password":"wrong-pass1"}`)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("bad password: status = %d, want 401", rec.Code)
			}

			rec = do(t, h, http.MethodPost, prefix+"/login", "", `{"username":"alice","password":"correct-horse1"}`)
			if rec.Code != http.StatusOK {
				t.Fatalf("login: status = %d (%s)", rec.Code, rec.Body.String())
			}
			var tok tokenResponse
			if err := json.NewDecoder(rec.Body).Decode(&tok); err != nil {
				t.Fatalf("decode token: %v", err)
			}
			if tok.Token == "" || !tok.ExpiresAt.After(time.Now()) {
				t.Fatalf("token response = %+v", tok)
			}

			rec = do(t, h, http.MethodGet, prefix+"/me", tok.Token, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("me: status = %d", rec.Code)
			}
			var me core.User
			_ = json.NewDecoder(rec.Body).Decode(&me)
			if me.ID != user.ID || me.Username != "alice" {
				t.Errorf("me = %+v", me)
			}
		})
	}
}

func TestTokenCarriesActor(t *testing.T) {
	id := uuid.New()
	h := &Handler{jwtSecret: []byte(testSecret), tokenTTL: time.Hour}
	resp, err := h.issueToken(core.User{ID: id, Username: "bob", Role: core.RoleSales})
	if err != nil {
		t.Fatalf("issueToken: %v", err)
	}
	actor, err := h.parseToken(resp.Token)
	if err != nil {
		t.Fatalf("parseToken: %v", err)
	}
	if actor != (core.Actor{ID: id, Username: "bob", Role: core.RoleSales}) {
		t.Errorf("actor = %+v", actor)
	}
}

func TestSuggestWithoutAssistant(t *testing.T) {
	h := newTestHandler(Services{})
	rec := do(t, h, http.MethodPost, "/api/v1/finance/journal-entries/suggest", tokenFor(t, uuid.New(), core.RoleAdmin), `{"narration":"paid rent"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != "AI_UNAVAILABLE" {
		t.Errorf("code = %s", e.Code)
	}
}

func TestTrialBalanceFormats(t *testing.T) {
	h := newTestHandler(Services{})
	token := tokenFor(t, uuid.New(), core.RoleFinance)

	rec := do(t, h, http.MethodGet, "/api/v1/finance/reports/trial-balance?as_of=2026-03-31", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("json: status = %d", rec.Code)
	}
	var tb map[string]any
	_ = json.NewDecoder(rec.Body).Decode(&tb)
	if tb["as_of_date"] != "2026-03-31" {
		t.Errorf("as_of_date = %v", tb["as_of_date"])
	}
	if _, isNumber := tb["total_debits"].(float64); !isNumber {
		t.Errorf("total_debits should be a JSON number, got %T", tb["total_debits"])
	}

	rec = do(t, h, http.MethodGet, "/api/v1/finance/reports/trial-balance?format=xlsx", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("xlsx: status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != spreadsheet.ContentType {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.HasPrefix(rec.Body.String(), "PK") {
		t.Error("xlsx body is not a zip archive")
	}

	rec = do(t, h, http.MethodGet, "/api/v1/finance/reports/trial-balance?as_of=31/03/2026", token, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad date: status = %d, want 400", rec.Code)
	}
}

func TestUnreadCountUsesCaller(t *testing.T) {
	notes := &fakeNotifications{}
	h := newTestHandler(Services{Notifications: notes})
	id := uuid.New()
	rec := do(t, h, http.MethodGet, "/api/v1/notifications/unread-count", tokenFor(t, id, core.RoleUser), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if notes.user != id {
		t.Errorf("count asked for %s, want caller %s", notes.user, id)
	}
	var body map[string]int64
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body["count"] != 3 {
		t.Errorf("count = %d, want 3", body["count"])
	}
}

func TestRequestIDPropagation(t *testing.T) {
	h := newTestHandler(Services{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q, want caller's id", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "bad id with spaces")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if _, err := uuid.Parse(rec.Header().Get("X-Request-ID")); err != nil {
		t.Errorf("unsafe id should be replaced by a uuid, got %q", rec.Header().Get("X-Request-ID"))
	}
}
