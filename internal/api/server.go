// Package api serves valuations, history and trade actions over HTTP and
// streams updates over a WebSocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/gw/tradedesk/internal/backend"
	"github.com/gw/tradedesk/internal/desk"
	"github.com/gw/tradedesk/internal/prices"
	"github.com/gw/tradedesk/internal/realtime"
	"github.com/gw/tradedesk/internal/txlog"
	"github.com/gw/tradedesk/internal/valuation"
	"github.com/shopspring/decimal"
)

// Desk is the trading desk the server fronts.
type Desk interface {
	View() valuation.View
	History(n int) []txlog.Transaction
	Prices() *prices.Snapshot
	Buy(ctx context.Context, symbol string, quantity decimal.Decimal) (*backend.State, error)
	Sell(ctx context.Context, symbol string, quantity decimal.Decimal) (*backend.State, error)
}

type Server struct {
	desk     Desk
	hub      *realtime.Hub
	router   *mux.Router
	upgrader websocket.Upgrader
}

func NewServer(d Desk, hub *realtime.Hub) *Server {
	server := &Server{
		desk: d,
		hub:  hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	r := mux.NewRouter()
	r.Use(logMiddleware, corsMiddleware)

	r.HandleFunc("/api/health", server.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/portfolio", server.handlePortfolio).Methods(http.MethodGet)
	r.HandleFunc("/api/transactions", server.handleTransactions).Methods(http.MethodGet)
	r.HandleFunc("/api/prices", server.handlePrices).Methods(http.MethodGet)
	r.HandleFunc("/api/buy", server.handleTrade("buy stock", d.Buy)).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/api/sell", server.handleTrade("sell stock", d.Sell)).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/ws", server.handleWebSocket).Methods(http.MethodGet)

	server.router = r
	return server
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePortfolio(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.desk.View())
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, s.desk.History(limit))
}

func (s *Server) handlePrices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.desk.Prices())
}

type tradeFunc func(ctx context.Context, symbol string, quantity decimal.Decimal) (*backend.State, error)

type tradeResponse struct {
	Message string          `json:"message"`
	Price   decimal.Decimal `json:"price"`
	View    valuation.View  `json:"view"`
}

func (s *Server) handleTrade(action string, trade tradeFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Symbol   string          `json:"symbol"`
			Quantity decimal.Decimal `json:"quantity"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": desk.UserMessage(action, err)})
			return
		}
		req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))

		st, err := trade(r.Context(), req.Symbol, req.Quantity)
		if err != nil {
			writeJSON(w, tradeStatus(err), map[string]string{"error": desk.UserMessage(action, err)})
			return
		}
		writeJSON(w, http.StatusOK, tradeResponse{Message: st.Message, Price: st.Price, View: s.desk.View()})
	}
}

// tradeStatus passes client errors through and reports everything else as a
// gateway failure.
func tradeStatus(err error) int {
	var re *backend.RemoteError
	switch {
	case errors.As(err, &re) && re.Status >= 400 && re.Status < 500:
		return re.Status
	case errors.Is(err, backend.ErrInvalidQuantity), errors.Is(err, backend.ErrInvalidSymbol):
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.hub.AddClient(conn)
	s.hub.Send(conn, desk.Event{Type: "portfolio", View: s.desk.View()})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.hub.RemoveClient(conn)
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("http request", "method", r.Method, "path", r.URL.Path, "elapsed", time.Since(start))
	})
}
