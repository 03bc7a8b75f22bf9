// Package httpapi exposes the service over JSON HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"vendaflow/backend/internal/domain"
	"vendaflow/backend/internal/service"
	"vendaflow/backend/internal/store"
)

type Server struct {
	svc           *service.Service
	auth          *AuthManager
	allowedOrigin string
	logins        *attemptLimiter
}

func NewServer(svc *service.Service, auth *AuthManager, allowedOrigin string) *Server {
	return &Server{
		svc:           svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		logins:        newAttemptLimiter(10, 15*time.Minute),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /api/auth/signup", s.handleSignup)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("GET /api/auth/csrf-token", s.handleCSRFToken)

	mux.HandleFunc("GET /api/products", s.requireAuth(s.handleListProducts))
	mux.HandleFunc("POST /api/products", s.requireAuth(s.handleCreateProduct))
	mux.HandleFunc("GET /api/products/{id}", s.requireAuth(s.handleGetProduct))
	mux.HandleFunc("PATCH /api/products/{id}", s.requireAuth(s.handleUpdateProduct))
	mux.HandleFunc("DELETE /api/products/{id}", s.requireAuth(s.handleDeleteProduct))
	mux.HandleFunc("POST /api/products/{id}/restock", s.requireAuth(s.handleRestockProduct))

	mux.HandleFunc("GET /api/clients", s.requireAuth(s.handleListClients))
	mux.HandleFunc("POST /api/clients", s.requireAuth(s.handleCreateClient))
	mux.HandleFunc("GET /api/clients/{id}", s.requireAuth(s.handleGetClient))
	mux.HandleFunc("PATCH /api/clients/{id}", s.requireAuth(s.handleUpdateClient))
	mux.HandleFunc("DELETE /api/clients/{id}", s.requireAuth(s.handleDeleteClient))

	mux.HandleFunc("GET /api/categories", s.requireAuth(s.handleListCategories))
	mux.HandleFunc("POST /api/categories", s.requireAuth(s.handleCreateCategory))

	mux.HandleFunc("GET /api/sales", s.requireAuth(s.handleListSales))
	mux.HandleFunc("POST /api/sales", s.requireAuth(s.handleRegisterSale))
	mux.HandleFunc("GET /api/sales/recent", s.requireAuth(s.handleRecentSales))

	mux.HandleFunc("GET /api/goals", s.requireAuth(s.handleGoals))
	mux.HandleFunc("PUT /api/goals", s.requireAuth(s.handleSetGoal))
	mux.HandleFunc("GET /api/goals/progress", s.requireAuth(s.handleGoalProgress))

	mux.HandleFunc("GET /api/dashboard/series", s.requireAuth(s.handleSalesSeries))
	mux.HandleFunc("GET /api/dashboard/top-products", s.requireAuth(s.handleTopProducts))

	return s.withMiddleware(mux)
}

type authedHandler func(w http.ResponseWriter, r *http.Request, ownerID string)

// requireAuth resolves the bearer token to an owner id and hands it to the
// wrapped handler explicitly. Mutating requests additionally need a valid
// CSRF token.
func (s *Server) requireAuth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		ownerID, err := s.auth.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		if r.Method != http.MethodGet && !s.auth.VerifyCSRFToken(r.Header.Get("X-CSRF-Token")) {
			writeError(w, http.StatusForbidden, "missing or invalid CSRF token")
			return
		}
		next(w, r, ownerID)
	}
}

func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")

		if s.allowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", s.allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-CSRF-Token")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req domain.SignupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := s.auth.Signup(r.Context(), req)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateName) {
			writeError(w, http.StatusConflict, "an account with that email already exists")
			return
		}
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": user.ID, "email": user.Email})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if !s.logins.allow(ip) {
		writeError(w, http.StatusTooManyRequests, "too many login attempts, try again later")
		return
	}

	var req domain.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.auth.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			s.logins.recordFailure(ip)
			writeError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		s.writeServiceError(w, err)
		return
	}
	s.logins.reset(ip)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCSRFToken(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"csrf_token": s.auth.IssueCSRFToken()})
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request, ownerID string) {
	products, err := s.svc.ListProducts(r.Context(), ownerID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req domain.ProductCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	product, err := s.svc.CreateProduct(r.Context(), ownerID, req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request, ownerID string) {
	product, err := s.svc.GetProduct(r.Context(), ownerID, r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (s *Server) handleUpdateProduct(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req domain.ProductUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	product, err := s.svc.UpdateProduct(r.Context(), ownerID, r.PathValue("id"), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request, ownerID string) {
	if err := s.svc.DeleteProduct(r.Context(), ownerID, r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRestockProduct(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	product, err := s.svc.RestockProduct(r.Context(), ownerID, r.PathValue("id"), req.Quantity)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request, ownerID string) {
	clients, err := s.svc.ListClients(r.Context(), ownerID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clients)
}

func (s *Server) handleCreateClient(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req domain.ClientCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	client, err := s.svc.CreateClient(r.Context(), ownerID, req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, client)
}

func (s *Server) handleGetClient(w http.ResponseWriter, r *http.Request, ownerID string) {
	client, err := s.svc.GetClient(r.Context(), ownerID, r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

func (s *Server) handleUpdateClient(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req domain.ClientUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	client, err := s.svc.UpdateClient(r.Context(), ownerID, r.PathValue("id"), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

func (s *Server) handleDeleteClient(w http.ResponseWriter, r *http.Request, ownerID string) {
	if err := s.svc.DeleteClient(r.Context(), ownerID, r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request, ownerID string) {
	categories, err := s.svc.ListCategories(r.Context(), ownerID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req domain.CategoryCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	category, err := s.svc.CreateCategory(r.Context(), ownerID, req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, category)
}

func (s *Server) handleListSales(w http.ResponseWriter, r *http.Request, ownerID string) {
	var from, to time.Time
	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "from must be RFC 3339")
			return
		}
		from = parsed
	}
	if v := r.URL.Query().Get("to"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "to must be RFC 3339")
			return
		}
		to = parsed
	}
	sales, err := s.svc.ListSales(r.Context(), ownerID, from, to)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sales)
}

// handleRegisterSale maps a partially committed sale to 201 with a warning
// block: the sale exists, only some stock counters are stale.
func (s *Server) handleRegisterSale(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req domain.SaleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sale, err := s.svc.RegisterSale(r.Context(), ownerID, req)
	if err != nil {
		var partial *service.PartialCommitError
		if errors.As(err, &partial) {
			writeJSON(w, http.StatusCreated, map[string]any{
				"sale":         sale,
				"warning":      "sale recorded but some stock updates failed",
				"failed_items": partial.Failures,
			})
			return
		}
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"sale": sale})
}

func (s *Server) handleRecentSales(w http.ResponseWriter, r *http.Request, ownerID string) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 10)
	sales, err := s.svc.RecentSales(r.Context(), ownerID, limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sales)
}

func (s *Server) handleGoals(w http.ResponseWriter, r *http.Request, ownerID string) {
	goals, err := s.svc.Goals(r.Context(), ownerID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, goals)
}

func (s *Server) handleSetGoal(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req domain.GoalSetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	goal, err := s.svc.SetGoal(r.Context(), ownerID, req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, goal)
}

func (s *Server) handleGoalProgress(w http.ResponseWriter, r *http.Request, ownerID string) {
	period := domain.Period(r.URL.Query().Get("period"))
	ref, err := s.svc.ParseRefDate(r.URL.Query().Get("date"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	progress, err := s.svc.GoalProgress(r.Context(), ownerID, period, ref)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (s *Server) handleSalesSeries(w http.ResponseWriter, r *http.Request, ownerID string) {
	period := domain.Period(r.URL.Query().Get("period"))
	ref, err := s.svc.ParseRefDate(r.URL.Query().Get("date"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	series, err := s.svc.SalesSeries(r.Context(), ownerID, period, ref)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

func (s *Server) handleTopProducts(w http.ResponseWriter, r *http.Request, ownerID string) {
	period := domain.Period(r.URL.Query().Get("period"))
	ref, err := s.svc.ParseRefDate(r.URL.Query().Get("date"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 5)
	top, err := s.svc.TopProducts(r.Context(), ownerID, period, ref, limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, top)
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, store.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrDuplicateName):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrInsufficientStock):
		writeError(w, http.StatusConflict, err.Error())
	default:
		log.Printf("[httpapi] ERROR: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[httpapi] WARN: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func parsePositiveLimit(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return fallback
	}
	if limit > 100 {
		return 100
	}
	return limit
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// attemptLimiter tracks failed logins per client IP inside a sliding window.
type attemptLimiter struct {
	mu       sync.Mutex
	max      int
	window   time.Duration
	failures map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	return &attemptLimiter{
		max:      max,
		window:   window,
		failures: make(map[string][]time.Time),
	}
}

func (l *attemptLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.prune(ip)) < l.max
}

func (l *attemptLimiter) recordFailure(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[ip] = append(l.prune(ip), time.Now())
}

func (l *attemptLimiter) reset(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.failures, ip)
}

func (l *attemptLimiter) prune(ip string) []time.Time {
	cutoff := time.Now().Add(-l.window)
	kept := l.failures[ip][:0]
	for _, at := range l.failures[ip] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	l.failures[ip] = kept
	return kept
}
