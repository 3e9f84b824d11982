package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/JeyaBa1aB/alpha-insights-sub000/internal/analytics"
	"github.com/JeyaBa1aB/alpha-insights-sub000/internal/assistant"
	"github.com/JeyaBa1aB/alpha-insights-sub000/internal/models"
	"github.com/JeyaBa1aB/alpha-insights-sub000/internal/realtime"
	"github.com/JeyaBa1aB/alpha-insights-sub000/internal/store"
	"github.com/JeyaBa1aB/alpha-insights-sub000/internal/tracker"
)

type Server struct {
	store    store.Store
	tracker  *tracker.Tracker
	hub      *realtime.Hub
	router   *mux.Router
	upgrader websocket.Upgrader
}

func NewServer(s store.Store, t *tracker.Tracker, hub *realtime.Hub) *Server {
	server := &Server{
		store:   s,
		tracker: t,
		hub:     hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	r := mux.NewRouter()
	r.Use(corsMiddleware)

	r.HandleFunc("/api/health", server.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/users/{userID}/holdings", server.handleListHoldings).Methods(http.MethodGet)
	r.HandleFunc("/api/users/{userID}/holdings", server.handleCreateHolding).Methods(http.MethodPost)
	r.HandleFunc("/api/users/{userID}/holdings/{id}", server.handleDeleteHolding).Methods(http.MethodDelete)
	r.HandleFunc("/api/users/{userID}/portfolio", server.handlePortfolioSnapshot).Methods(http.MethodGet)
	r.HandleFunc("/api/users/{userID}/cash", server.handleCashBalance).Methods(http.MethodGet)
	r.HandleFunc("/api/users/{userID}/cash", server.handleSetCashBalance).Methods(http.MethodPut)
	r.HandleFunc("/api/users/{userID}/analytics", server.handleAnalytics).Methods(http.MethodGet)
	r.HandleFunc("/api/users/{userID}/alerts", server.handleListAlerts).Methods(http.MethodGet)
	r.HandleFunc("/api/users/{userID}/alerts", server.handleCreateAlert).Methods(http.MethodPost)
	r.HandleFunc("/api/users/{userID}/alerts/{id}", server.handleDeleteAlert).Methods(http.MethodDelete)
	r.HandleFunc("/api/users/{userID}/alerts/{id}/disable", server.handleDisableAlert).Methods(http.MethodPost)
	r.HandleFunc("/api/assistant", server.handleAssistant).Methods(http.MethodPost)
	r.HandleFunc("/ws", server.handleWebSocket).Methods(http.MethodGet)

	// Serve React SPA (catch-all, must be last)
	spa := spaHandler{staticPath: "web/dist", indexPath: "index.html"}
	r.PathPrefix("/").Handler(spa)

	server.router = r
	return server
}

type spaHandler struct {
	staticPath string
	indexPath  string
}

func (h spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := filepath.Join(h.staticPath, r.URL.Path)
	fi, err := os.Stat(path)
	if os.IsNotExist(err) || fi.IsDir() {
		http.ServeFile(w, r, filepath.Join(h.staticPath, h.indexPath))
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.FileServer(http.Dir(h.staticPath)).ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	stats := s.tracker.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "ok",
		"active_feeds":       s.tracker.ActiveFeeds(),
		"connected_sessions": s.hub.ConnectionCount(),
		"active_alerts":      stats.ActiveAlerts,
		"triggered_alerts":   stats.TriggeredAlerts,
		"tracked_symbols":    stats.TrackedSymbols,
	})
}

func (s *Server) handleListHoldings(w http.ResponseWriter, r *http.Request) {
	holdings, err := s.store.ListHoldings(r.Context(), mux.Vars(r)["userID"])
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, holdings)
}

func (s *Server) handleCreateHolding(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]
	var req struct {
		Symbol   string  `json:"symbol"`
		Quantity float64 `json:"quantity"`
		AvgCost  float64 `json:"average_cost"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if req.Symbol == "" || req.Quantity <= 0 || req.AvgCost <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid holding payload"})
		return
	}

	created, err := s.store.CreateHolding(r.Context(), models.Holding{
		UserID:   userID,
		Symbol:   req.Symbol,
		Quantity: req.Quantity,
		AvgCost:  req.AvgCost,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if err := s.tracker.Refresh(context.Background(), userID); err != nil {
		log.Printf("refresh feed for user %s: %v", userID, err)
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleDeleteHolding(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]
	id, err := parseID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	err = s.store.DeleteHolding(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "holding not found"})
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if err := s.tracker.Refresh(context.Background(), userID); err != nil {
		log.Printf("refresh feed for user %s: %v", userID, err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCashBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := s.store.CashBalance(r.Context(), mux.Vars(r)["userID"])
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"cash_balance": balance})
}

func (s *Server) handleSetCashBalance(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]
	var req struct {
		Balance float64 `json:"cash_balance"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Balance < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "cash balance must not be negative"})
		return
	}
	if err := s.store.SetCashBalance(r.Context(), userID, req.Balance); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"cash_balance": req.Balance})
}

func (s *Server) handlePortfolioSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.tracker.Snapshot(r.Context(), mux.Vars(r)["userID"])
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	allocation, risk, err := s.tracker.Analytics(r.Context(), mux.Vars(r)["userID"])
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"allocation":    allocation,
		"risk_metrics":  risk,
		"insights":      analytics.Insights(allocation, risk),
		"overall_score": analytics.OverallScore(allocation, risk),
	})
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.store.ListAlerts(r.Context(), mux.Vars(r)["userID"])
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]
	var req struct {
		Symbol      string                `json:"symbol"`
		Condition   models.AlertCondition `json:"condition"`
		TargetPrice float64               `json:"target_price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if req.Symbol == "" || req.TargetPrice <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid alert payload"})
		return
	}
	if req.Condition != models.AlertAbove && req.Condition != models.AlertBelow {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "condition must be above or below"})
		return
	}
	known, err := s.tracker.ValidSymbol(r.Context(), userID, req.Symbol)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !known {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown symbol"})
		return
	}

	created, err := s.store.CreateAlert(r.Context(), models.PriceAlert{
		UserID:      userID,
		Symbol:      req.Symbol,
		Condition:   req.Condition,
		TargetPrice: req.TargetPrice,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if err := s.tracker.AlertCreated(context.Background(), created); err != nil {
		log.Printf("register alert %d: %v", created.ID, err)
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]
	id, err := parseID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	err = s.store.DeleteAlert(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "alert not found"})
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.tracker.AlertRemoved(userID, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDisableAlert(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]
	id, err := parseID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	err = s.store.DisableAlert(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "alert not found"})
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.tracker.AlertRemoved(userID, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAssistant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"matches": assistant.Classify(req.Message),
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user"))
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user is required"})
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	session := s.hub.Register(userID, conn)

	if err := s.tracker.Ensure(r.Context(), userID); err != nil {
		log.Printf("start feed for user %s: %v", userID, err)
	}

	if update, err := s.tracker.Update(r.Context(), userID); err == nil {
		_ = session.WriteJSON(models.Event{
			Type:      models.EventPortfolioUpdate,
			Payload:   update,
			Timestamp: update.Snapshot.UpdatedAt,
		})
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.hub.Unregister(session)
			s.tracker.Release(userID)
			return
		}
	}
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
