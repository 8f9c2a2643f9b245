package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gw/tradedesk/internal/txlog"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

const buyResponse = `{
	"message": "Stock bought successfully.",
	"balance": 8400.0,
	"stocks": {"AAPL": 15},
	"stock_purchases": {"AAPL": [{"quantity": 10, "price": 100.0}, {"quantity": 5, "price": 120.0}]},
	"price": 120.0,
	"transactions": [
		{"type": "buy", "symbol": "AAPL", "quantity": 10, "price": 100.0, "timestamp": 1700000000.25},
		{"type": "buy", "symbol": "AAPL", "quantity": 5, "price": 120.0, "timestamp": 1700000100.5}
	]
}`

func TestBuy(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/buy" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("missing X-Request-ID")
		}
		b, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(b, &gotBody); err != nil {
			t.Errorf("body %s: %v", b, err)
		}
		w.Write([]byte(buyResponse))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/api/", "tok")
	st, err := c.Buy(context.Background(), "AAPL", d("5"))
	if err != nil {
		t.Fatal(err)
	}

	if gotBody["symbol"] != "AAPL" || gotBody["quantity"] != float64(5) {
		t.Errorf("request body = %v, want numeric quantity", gotBody)
	}
	if !st.Cash.Equal(d("8400")) {
		t.Errorf("Cash = %s", st.Cash)
	}
	if len(st.Positions["AAPL"]) != 2 {
		t.Errorf("lots = %v", st.Positions["AAPL"])
	}
	if len(st.Transactions) != 2 || st.TransactionsErr != nil {
		t.Errorf("transactions = %v, err %v", st.Transactions, st.TransactionsErr)
	}
	if st.Transactions[1].Type != txlog.Buy {
		t.Errorf("tx = %+v", st.Transactions[1])
	}
	if len(st.Warnings) != 0 {
		t.Errorf("warnings = %v", st.Warnings)
	}
	if !st.Price.Equal(d("120")) || st.Message == "" {
		t.Errorf("price/message = %s / %q", st.Price, st.Message)
	}
}

func TestTradeValidatesLocally(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", "tok")
	if _, err := c.Buy(context.Background(), " ", d("1")); !errors.Is(err, ErrInvalidSymbol) {
		t.Errorf("empty symbol: err = %v", err)
	}
	if _, err := c.Sell(context.Background(), "AAPL", d("0")); !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("zero quantity: err = %v", err)
	}
}

func TestRemoteErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"funds", 400, `{"error": "Insufficient funds to buy stock."}`, ErrInsufficientFunds},
		{"shares", 400, `{"message": "Insufficient stocks to sell."}`, ErrInsufficientShares},
		{"quantity", 400, `{"message": "Quantity must be greater than zero."}`, ErrInvalidQuantity},
		{"integer", 400, `{"message": "Quantity must be an integer."}`, ErrInvalidQuantity},
		{"expired token", 401, `{"msg": "Token has expired"}`, ErrUnauthorized},
		{"missing", 404, `{"error": "Portfolio not found."}`, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, "tok").Sell(context.Background(), "AAPL", d("1"))
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			var re *RemoteError
			if !errors.As(err, &re) || re.Status != tt.status || re.Message == "" {
				t.Errorf("RemoteError = %+v", re)
			}
		})
	}
}

func TestPortfolioDecodesVariants(t *testing.T) {
	// Stringified fields, a single-object lot entry and an undecodable history.
	body := `{
		"cash": 500,
		"stocks": "{\"MSFT\": 3, \"TSLA\": 1}",
		"stock_purchases": {"MSFT": {"quantity": 3, "price": 250}, "TSLA": []},
		"transactions": "not json"
	}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/portfolio" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(body))
	}))
	defer srv.Close()

	st, err := NewClient(srv.URL, "tok").Portfolio(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !st.Cash.Equal(d("500")) {
		t.Errorf("Cash = %s", st.Cash)
	}
	if lots := st.Positions["MSFT"]; len(lots) != 1 || !lots[0].Price.Equal(d("250")) {
		t.Errorf("MSFT lots = %v", lots)
	}
	if !errors.Is(st.TransactionsErr, txlog.ErrMalformedPayload) {
		t.Errorf("TransactionsErr = %v", st.TransactionsErr)
	}
	if st.Transactions == nil || len(st.Transactions) != 0 {
		t.Errorf("Transactions = %v, want empty", st.Transactions)
	}
	if len(st.Warnings) != 1 {
		t.Errorf("Warnings = %v, want one TSLA mismatch", st.Warnings)
	}
}

func TestPrices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"prices": {"AAPL": "150.25", "MSFT": 300, "Date": "2024-01-02", "BAD": "0"}, "timestamp": 1700000000.5}`))
	}))
	defer srv.Close()

	snap, err := NewClient(srv.URL, "").Prices(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snap.Len() != 2 {
		t.Errorf("Len = %d, want 2: %v", snap.Len(), snap.Symbols())
	}
	if p, ok := snap.Price("AAPL"); !ok || !p.Equal(d("150.25")) {
		t.Errorf("AAPL = %s, %v", p, ok)
	}
	if snap.CapturedAt().Unix() != 1700000000 || snap.CapturedAt().Nanosecond() != 500_000_000 {
		t.Errorf("CapturedAt = %v", snap.CapturedAt())
	}
}

func TestLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("login must not send a bearer token")
		}
		var in map[string]string
		json.NewDecoder(r.Body).Decode(&in)
		if in["email"] != "a@b.c" || in["password"] != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"message": "Invalid credentials"}`))
			return
		}
		w.Write([]byte(`{"access_token": "jwt"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	tok, err := c.Login(context.Background(), "a@b.c", "pw")
	if err != nil || tok != "jwt" {
		t.Fatalf("Login = %q, %v", tok, err)
	}
	if _, err := c.Login(context.Background(), "a@b.c", "nope"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("bad password: err = %v", err)
	}
}
