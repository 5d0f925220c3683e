package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"expenses.durgadawaghar.com/internal/extractor"
	"expenses.durgadawaghar.com/internal/store"
	"expenses.durgadawaghar.com/internal/summary"
)

const testSecret = "s3cret"

type memoryCache struct {
	mu          sync.Mutex
	listings    map[string][]store.Expense
	invalidated []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{listings: make(map[string][]store.Expense)}
}

func (c *memoryCache) GetExpenses(ctx context.Context, phone string) ([]store.Expense, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.listings[phone]
	return e, ok
}

func (c *memoryCache) SetExpenses(ctx context.Context, phone string, expenses []store.Expense) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listings[phone] = expenses
	return nil
}

func (c *memoryCache) Invalidate(ctx context.Context, phone string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.listings, phone)
	c.invalidated = append(c.invalidated, phone)
	return nil
}

func newTestHandler(t *testing.T, cache Cache) (*Handler, *store.Store) {
	t.Helper()
	st, err := store.Open("sqlite", filepath.Join(t.TempDir(), "expenses.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	h := NewHandler(st, extractor.Default(), Options{
		Cache:  cache,
		Style:  extractor.BankSMS,
		Secret: testSecret,
		Logger: zerolog.Nop(),
	})
	h.now = func() time.Time { return time.Date(2025, time.December, 26, 10, 0, 0, 0, time.UTC) }
	return h, st
}

func do(t *testing.T, h *Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	return rec
}

func TestKeepAlive(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	if rec := do(t, h, http.MethodGet, "/ping", ""); rec.Body.String() != "Pong" {
		t.Errorf("/ping = %q", rec.Body.String())
	}
	if rec := do(t, h, http.MethodGet, "/", ""); rec.Body.String() != "Expense Tracker Backend is Live!" {
		t.Errorf("/ = %q", rec.Body.String())
	}
	if rec := do(t, h, http.MethodGet, "/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("/nope status = %d", rec.Code)
	}
}

func TestSync(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		want   string
	}{
		{
			name:   "Wrong secret",
			body:   `{"user_phone":"111","message":"Rs 10 debited to X","secret":"nope"}`,
			status: http.StatusForbidden,
			want:   "Invalid Secret",
		},
		{
			name:   "Income",
			body:   `{"user_phone":"111","message":"Rs 500 credited to your account","secret":"s3cret"}`,
			status: http.StatusOK,
			want:   "Ignored: Income transaction",
		},
		{
			name:   "Not a transaction",
			body:   `{"user_phone":"111","message":"Your OTP is 1234","secret":"s3cret"}`,
			status: http.StatusOK,
			want:   "Ignored: Not a transaction",
		},
		{
			name:   "No amount",
			body:   `{"user_phone":"111","message":"You paid to Swiggy Ltd via wallet successful","secret":"s3cret","source_style":"wallet_notification"}`,
			status: http.StatusOK,
			want:   "No amount found",
		},
		{
			name:   "Bad style",
			body:   `{"user_phone":"111","message":"Rs 10 paid","secret":"s3cret","source_style":"email"}`,
			status: http.StatusBadRequest,
			want:   "Unsupported source style",
		},
		{
			name:   "Missing message",
			body:   `{"user_phone":"111","secret":"s3cret"}`,
			status: http.StatusBadRequest,
			want:   "Missing fields",
		},
		{
			name:   "Saved",
			body:   `{"user_phone":"111","message":"Rs. 1,234.50 debited to ZOMATO on 12-05 ref 1234","app_name":"VM-HDFCBK","secret":"s3cret"}`,
			status: http.StatusOK,
			want:   "Saved",
		},
	}

	h, _ := newTestHandler(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/sync", tt.body)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if got := strings.TrimSpace(rec.Body.String()); got != tt.want {
				t.Errorf("body = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSyncStoresExpenseAndInvalidatesCache(t *testing.T) {
	cache := newMemoryCache()
	h, st := newTestHandler(t, cache)
	ctx := context.Background()

	// Prime the cache with an empty listing
	if rec := do(t, h, http.MethodGet, "/api/expenses?phone=111", ""); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if _, ok := cache.GetExpenses(ctx, "111"); !ok {
		t.Fatal("expected listing to be cached")
	}

	body := `{"user_phone":"111","message":"INR 250 spent on user@ybl via UPI","app_name":"AD-ICICIB","secret":"s3cret"}`
	if rec := do(t, h, http.MethodPost, "/api/sync", body); rec.Body.String() != "Saved" {
		t.Fatalf("sync body = %q", rec.Body.String())
	}
	if len(cache.invalidated) != 1 || cache.invalidated[0] != "111" {
		t.Errorf("expected cache invalidation for 111, got %v", cache.invalidated)
	}

	expenses, err := st.ListExpenses(ctx, "111")
	if err != nil {
		t.Fatalf("ListExpenses() error = %v", err)
	}
	if len(expenses) != 1 {
		t.Fatalf("expected 1 expense, got %d", len(expenses))
	}
	e := expenses[0]
	if e.Merchant != "USER" || e.Category != "General" || e.AppName != "AD-ICICIB" {
		t.Errorf("unexpected expense %+v", e)
	}
	if !e.Amount.Equal(decimal.NewFromInt(250)) {
		t.Errorf("Amount = %s, want 250", e.Amount)
	}
	if e.OriginalMessage != "INR 250 spent on user@ybl via UPI" {
		t.Errorf("OriginalMessage = %q", e.OriginalMessage)
	}

	rec := do(t, h, http.MethodGet, "/api/expenses?phone=111", "")
	var listed []store.Expense
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decoding listing: %v", err)
	}
	if len(listed) != 1 || listed[0].Merchant != "USER" {
		t.Errorf("unexpected listing %+v", listed)
	}
}

func TestExpensesRequiresPhone(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	for _, path := range []string{"/api/expenses", "/api/summary", "/dashboard"} {
		rec := do(t, h, http.MethodGet, path, "")
		if rec.Code != http.StatusBadRequest || strings.TrimSpace(rec.Body.String()) != "Phone required" {
			t.Errorf("%s: status %d body %q", path, rec.Code, rec.Body.String())
		}
	}
}

func TestLogin(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	steps := []struct {
		name    string
		body    string
		status  int
		success bool
		message string
	}{
		{"Missing fields", `{"phone":"999"}`, http.StatusBadRequest, false, "Missing fields"},
		{"Auto register", `{"phone":"999","pin":"1234"}`, http.StatusOK, true, "Account created!"},
		{"Correct pin", `{"phone":"999","pin":"1234"}`, http.StatusOK, true, "Login successful"},
		{"Wrong pin", `{"phone":"999","pin":"0000"}`, http.StatusUnauthorized, false, "Wrong PIN"},
	}

	for _, step := range steps {
		t.Run(step.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/auth/login", step.body)
			if rec.Code != step.status {
				t.Errorf("status = %d, want %d", rec.Code, step.status)
			}
			var resp struct {
				Success bool `json:"success"`
				User    *struct {
					Phone   string `json:"phone"`
					PINHash string `json:"pin_hash"`
				} `json:"user"`
				Message string `json:"message"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decoding response: %v", err)
			}
			if resp.Success != step.success || resp.Message != step.message {
				t.Errorf("got %+v", resp)
			}
			if step.success && (resp.User == nil || resp.User.Phone != "999") {
				t.Errorf("expected user in response, got %+v", resp.User)
			}
			if strings.Contains(rec.Body.String(), "$2a$") {
				t.Error("PIN hash leaked in response")
			}
		})
	}
}

func TestParse(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	rec := do(t, h, http.MethodPost, "/api/parse", `{"message":"Rs. 1,234.50 debited to ZOMATO on 12-05 ref 1234"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp parseResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Amount != 1234.5 || resp.Merchant != "ZOMATO" || resp.Category != extractor.Food || !resp.Recordable {
		t.Errorf("unexpected parse response %+v", resp)
	}
	if resp.Style != extractor.BankSMS {
		t.Errorf("Style = %q, want default bank style", resp.Style)
	}

	rec = do(t, h, http.MethodGet, "/api/parse", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", rec.Code)
	}
}

func TestSummaryAndDashboard(t *testing.T) {
	h, st := newTestHandler(t, nil)
	ctx := context.Background()

	for i, msg := range []string{
		"Rs 100 debited to SWIGGY on 01-12",
		"Rs 900 paid to UBER via UPI",
		"Rs 50 debited to SWIGGY on 02-12",
	} {
		_, err := st.CreateExpense(ctx, store.Expense{
			UserPhone:       "111",
			Amount:          decimal.NewFromInt([]int64{100, 900, 50}[i]),
			Merchant:        []string{"SWIGGY", "UBER", "SWIGGY"}[i],
			Category:        []string{"Food", "Travel", "Food"}[i],
			OriginalMessage: msg,
			Date:            time.Date(2025, time.December, i+1, 9, 0, 0, 0, time.UTC),
		})
		if err != nil {
			t.Fatalf("CreateExpense() error = %v", err)
		}
	}

	rec := do(t, h, http.MethodGet, "/api/summary?phone=111", "")
	var s summary.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &s); err != nil {
		t.Fatalf("decoding summary: %v", err)
	}
	if s.Count != 3 || !s.Total.Equal(decimal.NewFromInt(1050)) {
		t.Errorf("unexpected totals %+v", s)
	}
	if len(s.ByCategory) != 2 || s.ByCategory[0].Category != "Travel" {
		t.Errorf("unexpected categories %+v", s.ByCategory)
	}

	rec = do(t, h, http.MethodGet, "/dashboard?phone=111", "")
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html") {
		t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), "SWIGGY") {
		t.Error("dashboard should list merchants")
	}
}

func TestCORSPreflight(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/sync", nil)
	rec := httptest.NewRecorder()
	CORS(h.Routes()).ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

func TestRecover(t *testing.T) {
	panicky := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { panic("boom") })
	rec := httptest.NewRecorder()
	Recover(zerolog.Nop())(panicky).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestSyncRetryIsDuplicate(t *testing.T) {
	h, st := newTestHandler(t, nil)
	clock := time.Date(2025, time.December, 26, 10, 42, 5, 123456789, time.UTC)
	h.now = func() time.Time { return clock }

	body := `{"user_phone":"111","message":"You paid to Swiggy Ltd via UPI ₹180","secret":"s3cret","source_style":"wallet_notification"}`
	if rec := do(t, h, http.MethodPost, "/api/sync", body); rec.Body.String() != "Saved" {
		t.Fatalf("first sync = %q", rec.Body.String())
	}

	clock = clock.Add(40 * time.Second)
	if rec := do(t, h, http.MethodPost, "/api/sync", body); rec.Body.String() != "Duplicate ignored" {
		t.Errorf("retry = %q, want Duplicate ignored", rec.Body.String())
	}

	expenses, err := st.ListExpenses(context.Background(), "111")
	if err != nil {
		t.Fatalf("ListExpenses() error = %v", err)
	}
	if len(expenses) != 1 {
		t.Fatalf("expected 1 expense, got %d", len(expenses))
	}
	e := expenses[0]
	if want := time.Date(2025, time.December, 26, 10, 42, 0, 0, time.UTC); !e.Date.Equal(want) {
		t.Errorf("Date = %v, want %v", e.Date, want)
	}
	if e.SourceStyle != "wallet_notification" || e.Merchant != "Swiggy Ltd" || e.Category != "Food" {
		t.Errorf("unexpected expense %+v", e)
	}
}
