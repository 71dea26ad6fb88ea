package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/byron-sandoval/Ferreter-a-sub000/internal/cache"
	"github.com/byron-sandoval/Ferreter-a-sub000/internal/domain"
	"github.com/byron-sandoval/Ferreter-a-sub000/internal/service"
	"github.com/byron-sandoval/Ferreter-a-sub000/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) (*API, *memory.Store) {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NoopSummaryCache{}, 5*time.Second, nil)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*", nil), repo
}

func loginToken(t *testing.T, handler http.Handler, username, password string) string {
	t.Helper()

	payload, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d (%s)", rec.Code, rec.Body.String())
	}

	var body domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if body.AccessToken == "" {
		t.Fatalf("expected access token")
	}
	return body.AccessToken
}

func authedRequest(t *testing.T, method, path, token string, payload any) *http.Request {
	t.Helper()

	var req *http.Request
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func firstItemID(t *testing.T, handler http.Handler, token string) string {
	t.Helper()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/v1/items", token, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list items failed: %d (%s)", rec.Code, rec.Body.String())
	}
	var body struct {
		Items []domain.Item `json:"items"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode items: %v", err)
	}
	if len(body.Items) == 0 {
		t.Fatalf("expected seeded items")
	}
	return body.Items[0].ID
}

func TestHandleHealth(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestItemsRequireAuth(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/items", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestCommitSaleEndToEnd(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler, "cashier", "cashier123")
	itemID := firstItemID(t, handler, token)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/v1/sales", token, domain.SaleRequest{
		PaymentMethod: "cash",
		CashSale:      true,
		TenderedCents: 10000000,
		Lines:         []domain.SaleLineRequest{{ItemID: itemID, Qty: 2}},
	}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}

	var body domain.SaleResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode sale: %v", err)
	}
	if body.Sale.TotalCents != body.Sale.SubtotalCents+body.Sale.TaxCents {
		t.Fatalf("expected total == subtotal + tax, got %d != %d + %d",
			body.Sale.TotalCents, body.Sale.SubtotalCents, body.Sale.TaxCents)
	}
	if body.Sale.InvoiceNumber != 1 {
		t.Fatalf("expected invoice number 1, got %d", body.Sale.InvoiceNumber)
	}

	// Sale is readable back through the API.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/v1/sales/"+body.Sale.ID, token, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on get sale, got %d", rec.Code)
	}
}

func TestCommitSaleEmptyCartReturnsBadRequest(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler, "cashier", "cashier123")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/v1/sales", token, domain.SaleRequest{
		PaymentMethod: "cash",
		TenderedCents: 1000,
	}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty cart, got %d", rec.Code)
	}
}

func TestVoidSaleRequiresAdmin(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	cashierToken := loginToken(t, handler, "cashier", "cashier123")
	adminToken := loginToken(t, handler, "admin", "admin123")
	itemID := firstItemID(t, handler, cashierToken)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/v1/sales", cashierToken, domain.SaleRequest{
		PaymentMethod: "card",
		Lines:         []domain.SaleLineRequest{{ItemID: itemID, Qty: 1}},
	}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	var saleBody domain.SaleResponse
	if err := json.NewDecoder(rec.Body).Decode(&saleBody); err != nil {
		t.Fatalf("decode sale: %v", err)
	}
	voidPath := fmt.Sprintf("/api/v1/sales/%s/void", saleBody.Sale.ID)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodPost, voidPath, cashierToken, domain.VoidSaleRequest{Reason: "equivocado"}))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier void, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodPost, voidPath, adminToken, domain.VoidSaleRequest{Reason: "equivocado"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin void, got %d (%s)", rec.Code, rec.Body.String())
	}

	// Second void surfaces the conflict.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodPost, voidPath, adminToken, domain.VoidSaleRequest{Reason: "otra vez"}))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for repeated void, got %d", rec.Code)
	}
}

func TestReturnEndToEnd(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	adminToken := loginToken(t, handler, "admin", "admin123")
	itemID := firstItemID(t, handler, adminToken)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/v1/sales", adminToken, domain.SaleRequest{
		PaymentMethod: "card",
		Lines:         []domain.SaleLineRequest{{ItemID: itemID, Qty: 4}},
	}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	var saleBody domain.SaleResponse
	if err := json.NewDecoder(rec.Body).Decode(&saleBody); err != nil {
		t.Fatalf("decode sale: %v", err)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/v1/returns", adminToken, domain.ReturnRequest{
		SaleID: saleBody.Sale.ID,
		Reason: "producto danado",
		Lines:  []domain.ReturnLineRequest{{SaleLineID: saleBody.Sale.Lines[0].ID, Qty: 2}},
	}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 for return, got %d (%s)", rec.Code, rec.Body.String())
	}

	// Over-return on the remainder conflicts.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/v1/returns", adminToken, domain.ReturnRequest{
		SaleID: saleBody.Sale.ID,
		Reason: "demasiado",
		Lines:  []domain.ReturnLineRequest{{SaleLineID: saleBody.Sale.Lines[0].ID, Qty: 3}},
	}))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for over-return, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/v1/sales/"+saleBody.Sale.ID+"/returns", adminToken, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing returns, got %d", rec.Code)
	}
	var returnsBody struct {
		Returns []domain.Return `json:"returns"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&returnsBody); err != nil {
		t.Fatalf("decode returns: %v", err)
	}
	if len(returnsBody.Returns) != 1 {
		t.Fatalf("expected one return, got %d", len(returnsBody.Returns))
	}
}

func TestCashSessionEndpoints(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	adminToken := loginToken(t, handler, "admin", "admin123")
	today := time.Now().UTC().Format("2006-01-02")

	counted := int64(120000)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/v1/cash-sessions", adminToken, domain.CashSessionRequest{
		BusinessDate:   today,
		CountedCents:   &counted,
		NextFloatCents: 50000,
	}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 for session close, got %d (%s)", rec.Code, rec.Body.String())
	}

	// Missing counted amount is a validation failure.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/v1/cash-sessions", adminToken, domain.CashSessionRequest{
		BusinessDate: "2099-01-01",
	}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing counted amount, got %d", rec.Code)
	}

	// Duplicate date conflicts.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/v1/cash-sessions", adminToken, domain.CashSessionRequest{
		BusinessDate:   today,
		CountedCents:   &counted,
		NextFloatCents: 50000,
	}))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate session, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/v1/cash-sessions/"+today, adminToken, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 fetching session by date, got %d", rec.Code)
	}
}

func TestDailySummaryRequiresAdminRole(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	cashierToken := loginToken(t, handler, "cashier", "cashier123")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/v1/reports/daily", cashierToken, nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier on reports, got %d", rec.Code)
	}
}
