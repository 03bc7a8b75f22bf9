package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vendaflow/backend/internal/domain"
	"vendaflow/backend/internal/service"
	"vendaflow/backend/internal/store/memory"
)

type testClient struct {
	t      *testing.T
	server *httptest.Server
	token  string
	csrf   string
}

func newTestClient(t *testing.T) *testClient {
	t.Helper()
	repo := memory.New()
	svc := service.New(repo, nil, nil, time.UTC)
	auth := NewAuthManager(repo, "test-secret", time.Hour)
	ts := httptest.NewServer(NewServer(svc, auth, "").Handler())
	t.Cleanup(ts.Close)

	c := &testClient{t: t, server: ts}

	resp := c.do(http.MethodPost, "/api/auth/signup", domain.SignupRequest{
		Email: "owner@example.com", Password: "long-enough",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.do(http.MethodPost, "/api/auth/login", domain.LoginRequest{
		Email: "owner@example.com", Password: "long-enough",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	var login domain.LoginResponse
	decode(t, resp, &login)
	c.token = login.AccessToken

	resp = c.do(http.MethodGet, "/api/auth/csrf-token", nil)
	var csrf struct {
		Token string `json:"csrf_token"`
	}
	decode(t, resp, &csrf)
	c.csrf = csrf.Token

	return c
}

func (c *testClient) do(method, path string, body any) *http.Response {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			c.t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.server.URL+path, &buf)
	if err != nil {
		c.t.Fatalf("build request: %v", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.csrf != "" {
		req.Header.Set("X-CSRF-Token", c.csrf)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func (c *testClient) createProduct(name string, priceCents int64, stock int) domain.Product {
	c.t.Helper()
	resp := c.do(http.MethodPost, "/api/products", domain.ProductCreateRequest{
		Name: name, PriceCents: priceCents, Stock: stock,
	})
	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("create product status = %d", resp.StatusCode)
	}
	var product domain.Product
	decode(c.t, resp, &product)
	return product
}

func TestSaleFlow(t *testing.T) {
	c := newTestClient(t)
	product := c.createProduct("Café", 500, 10)

	resp := c.do(http.MethodPost, "/api/sales", domain.SaleRequest{
		Items: []domain.SaleLineRequest{{ProductID: product.ID, Quantity: 3}},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register sale status = %d", resp.StatusCode)
	}
	var created struct {
		Sale domain.Sale `json:"sale"`
	}
	decode(t, resp, &created)
	if created.Sale.TotalCents != 1500 {
		t.Errorf("total = %d, want 1500", created.Sale.TotalCents)
	}

	resp = c.do(http.MethodGet, "/api/products/"+product.ID, nil)
	var got domain.Product
	decode(t, resp, &got)
	if got.Stock != 7 {
		t.Errorf("stock = %d, want 7", got.Stock)
	}

	resp = c.do(http.MethodGet, "/api/sales/recent", nil)
	var recent []domain.Sale
	decode(t, resp, &recent)
	if len(recent) != 1 {
		t.Errorf("recent sales = %d, want 1", len(recent))
	}
}

func TestSaleInsufficientStockConflict(t *testing.T) {
	c := newTestClient(t)
	product := c.createProduct("Café", 500, 2)

	resp := c.do(http.MethodPost, "/api/sales", domain.SaleRequest{
		Items: []domain.SaleLineRequest{{ProductID: product.ID, Quantity: 5}},
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestAuthRequired(t *testing.T) {
	c := newTestClient(t)

	req, _ := http.NewRequest(http.MethodGet, c.server.URL+"/api/products", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", resp.StatusCode)
	}
}

func TestMutationRequiresCSRF(t *testing.T) {
	c := newTestClient(t)

	var buf bytes.Buffer
	json.NewEncoder(&buf).Encode(domain.ProductCreateRequest{Name: "X", PriceCents: 100, Stock: 1})
	req, _ := http.NewRequest(http.MethodPost, c.server.URL+"/api/products", &buf)
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("no CSRF status = %d, want 403", resp.StatusCode)
	}
}

func TestDuplicateProductConflict(t *testing.T) {
	c := newTestClient(t)
	c.createProduct("Café", 500, 10)

	resp := c.do(http.MethodPost, "/api/products", domain.ProductCreateRequest{
		Name: "Café", PriceCents: 900, Stock: 1,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	c := newTestClient(t)

	resp := c.do(http.MethodPost, "/api/products", map[string]any{
		"name": "Café", "price_cents": 100, "stock": 1, "surprise": true,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGoalEndpoints(t *testing.T) {
	c := newTestClient(t)
	product := c.createProduct("Café", 250, 10)

	resp := c.do(http.MethodPut, "/api/goals", domain.GoalSetRequest{
		Period: domain.PeriodDaily, TargetCents: 1000,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set goal status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.do(http.MethodPost, "/api/sales", domain.SaleRequest{
		Items: []domain.SaleLineRequest{{ProductID: product.ID, Quantity: 1}},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register sale status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.do(http.MethodGet, "/api/goals/progress?period=daily", nil)
	var progress domain.GoalProgress
	decode(t, resp, &progress)
	if progress.ActualCents != 250 || progress.Percentage != 25 {
		t.Errorf("progress = %+v, want actual=250 percentage=25", progress)
	}

	resp = c.do(http.MethodGet, "/api/goals/progress?period=hourly", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad period status = %d, want 400", resp.StatusCode)
	}
}

func TestDashboardSeries(t *testing.T) {
	c := newTestClient(t)
	product := c.createProduct("Café", 300, 10)

	resp := c.do(http.MethodPost, "/api/sales", domain.SaleRequest{
		Items: []domain.SaleLineRequest{{ProductID: product.ID, Quantity: 2}},
	})
	resp.Body.Close()

	resp = c.do(http.MethodGet, fmt.Sprintf("/api/dashboard/series?period=daily&date=%s", time.Now().UTC().Format("2006-01-02")), nil)
	var series domain.SalesSeries
	decode(t, resp, &series)
	if len(series.Buckets) != 24 {
		t.Fatalf("buckets = %d, want 24", len(series.Buckets))
	}
	var sum int64
	for _, b := range series.Buckets {
		sum += b.AmountCents
	}
	if sum != 600 {
		t.Errorf("bucket sum = %d, want 600", sum)
	}

	resp = c.do(http.MethodGet, "/api/dashboard/top-products?period=daily&limit=5", nil)
	var top []domain.TopProduct
	decode(t, resp, &top)
	if len(top) != 1 || top[0].Quantity != 2 || top[0].Name != "Café" {
		t.Errorf("top = %+v, want one entry for Café qty=2", top)
	}
}

func TestHealthz(t *testing.T) {
	c := newTestClient(t)
	resp := c.do(http.MethodGet, "/healthz", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
