package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gw/tradedesk/internal/backend"
	"github.com/gw/tradedesk/internal/config"
	"github.com/gw/tradedesk/internal/desk"
	"github.com/gw/tradedesk/internal/prices"
	"github.com/gw/tradedesk/internal/txlog"
	"github.com/gw/tradedesk/internal/valuation"
	"github.com/shopspring/decimal"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "serve":
		runServe(cfg)
	case "portfolio":
		runPortfolio(cfg)
	case "buy", "sell":
		if len(args) != 2 {
			usage()
			os.Exit(1)
		}
		runTrade(cfg, cmd, args[0], args[1])
	case "history":
		runHistory(cfg, limitArg(args, 0))
	case "trades":
		runTrades(cfg, limitArg(args, 50))
	case "totals":
		runTotals(cfg)
	case "prices":
		runPrices(cfg)
	case "sync":
		runSync(cfg)
	case "login":
		if len(args) != 2 {
			usage()
			os.Exit(1)
		}
		runLogin(cfg, args[0], args[1])
	case "register":
		if len(args) != 3 {
			usage()
			os.Exit(1)
		}
		runRegister(cfg, args[0], args[1], args[2])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: tradedesk <command>

Commands:
  serve                      Poll prices and serve the HTTP/WebSocket API
  portfolio                  Show positions valued at current prices
  buy SYMBOL QTY             Buy shares
  sell SYMBOL QTY            Sell shares
  history [N]                Show last N transactions from the backend (default all)
  trades [N]                 Show last N transactions from the local mirror (default 50)
  totals                     Show bought/sold totals per symbol from the local mirror
  prices                     Show current market prices
  sync                       Copy the backend's transaction history into the local mirror
  login EMAIL PASSWORD       Print a bearer token for TRADE_TOKEN
  register USER EMAIL PASS   Create an account and print its token`)
}

func limitArg(args []string, def int) int {
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil {
			return n
		}
	}
	return def
}

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}

func timeoutCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

func newClient(cfg *config.Config) *backend.Client {
	if err := cfg.RequireToken(); err != nil {
		fatal("not logged in", err)
	}
	return backend.NewClient(cfg.APIURL, cfg.Token)
}

func openStore(cfg *config.Config) *txlog.Store {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		fatal("creating db dir", err)
	}
	store, err := txlog.Open(cfg.DBPath)
	if err != nil {
		fatal("opening db", err)
	}
	return store
}

// loadDesk builds a desk and fills it from the backend. Prices are fetched
// once; a failure there is reported and the desk is still returned.
func loadDesk(ctx context.Context, cfg *config.Config, store *txlog.Store) *desk.Desk {
	client := newClient(cfg)
	book := prices.NewBook()
	d := desk.New(client, book, store, nil)

	if err := d.Load(ctx); err != nil {
		fmt.Fprintln(os.Stderr, desk.UserMessage("load portfolio", err))
		os.Exit(1)
	}
	if _, err := prices.NewPoller(client, book, cfg.PollInterval).Refresh(ctx); err != nil {
		fmt.Fprintln(os.Stderr, desk.UserMessage("fetch stock prices", err))
	}
	return d
}

func runPortfolio(cfg *config.Config) {
	ctx, cancel := timeoutCtx()
	defer cancel()

	d := loadDesk(ctx, cfg, nil)
	printView(d.Valuation(), cfg.Currency)
}

func runTrade(cfg *config.Config, action, symbol, rawQty string) {
	qty, err := decimal.NewFromString(rawQty)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to %s stock: Quantity must be a number.\n", action)
		os.Exit(1)
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	ctx, cancel := timeoutCtx()
	defer cancel()

	store := openStore(cfg)
	defer store.Close()
	d := loadDesk(ctx, cfg, store)

	var st *backend.State
	if action == "buy" {
		st, err = d.Buy(ctx, symbol, qty)
	} else {
		st, err = d.Sell(ctx, symbol, qty)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, desk.UserMessage(action+" stock", err))
		os.Exit(1)
	}

	fmt.Printf("%s %s %s @ %s\n", st.Message, qty, symbol, valuation.FormatMoney(st.Price, cfg.Currency))
	fmt.Println()
	printView(d.Valuation(), cfg.Currency)
}

func runHistory(cfg *config.Config, limit int) {
	ctx, cancel := timeoutCtx()
	defer cancel()

	d := loadDesk(ctx, cfg, nil)
	txs := d.History(limit)
	if len(txs) == 0 {
		fmt.Println("No transactions.")
		return
	}
	printTransactions(txs, cfg.Currency)
}

func runTrades(cfg *config.Config, limit int) {
	store := openStore(cfg)
	defer store.Close()

	txs, err := store.Recent(context.Background(), limit)
	if err != nil {
		fatal("query failed", err)
	}
	if len(txs) == 0 {
		fmt.Println("No trades. Run 'tradedesk sync' first.")
		return
	}
	printTransactions(txs, cfg.Currency)
}

func runTotals(cfg *config.Config) {
	store := openStore(cfg)
	defer store.Close()

	rows, err := store.Totals(context.Background())
	if err != nil {
		fatal("query failed", err)
	}
	if len(rows) == 0 {
		fmt.Println("No trades. Run 'tradedesk sync' first.")
		return
	}

	fmt.Printf("%-8s %10s %10s %14s %14s %6s\n", "Symbol", "Bought", "Sold", "Spent", "Received", "Trades")
	fmt.Println("---------------------------------------------------------------------")
	for _, r := range rows {
		fmt.Printf("%-8s %10s %10s %14s %14s %6d\n",
			r.Symbol,
			r.Bought.String(),
			r.Sold.String(),
			valuation.FormatMoney(r.Spent, cfg.Currency),
			valuation.FormatMoney(r.Received, cfg.Currency),
			r.Trades,
		)
	}
}

func runPrices(cfg *config.Config) {
	ctx, cancel := timeoutCtx()
	defer cancel()

	client := newClient(cfg)
	snap, err := prices.NewPoller(client, prices.NewBook(), cfg.PollInterval).Refresh(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, desk.UserMessage("fetch stock prices", err))
		os.Exit(1)
	}

	fmt.Printf("Prices as of %s\n", snap.CapturedAt().Local().Format("2006-01-02 15:04:05"))
	for _, symbol := range snap.Symbols() {
		p, _ := snap.Price(symbol)
		fmt.Printf("  %-8s %12s\n", symbol, valuation.FormatMoney(p, cfg.Currency))
	}
}

func runSync(cfg *config.Config) {
	ctx, cancel := timeoutCtx()
	defer cancel()

	store := openStore(cfg)
	defer store.Close()

	d := desk.New(newClient(cfg), prices.NewBook(), store, nil)
	if err := d.Load(ctx); err != nil {
		fmt.Fprintln(os.Stderr, desk.UserMessage("load portfolio", err))
		os.Exit(1)
	}
	fmt.Printf("Sync complete: %d transactions.\n", len(d.History(0)))
}

func runLogin(cfg *config.Config, email, password string) {
	ctx, cancel := timeoutCtx()
	defer cancel()

	token, err := backend.NewClient(cfg.APIURL, "").Login(ctx, email, password)
	if err != nil {
		fmt.Fprintln(os.Stderr, desk.UserMessage("log in", err))
		os.Exit(1)
	}
	fmt.Printf("TRADE_TOKEN=%s\n", token)
}

func runRegister(cfg *config.Config, username, email, password string) {
	ctx, cancel := timeoutCtx()
	defer cancel()

	token, err := backend.NewClient(cfg.APIURL, "").Register(ctx, username, email, password)
	if err != nil {
		fmt.Fprintln(os.Stderr, desk.UserMessage("register", err))
		os.Exit(1)
	}
	fmt.Printf("TRADE_TOKEN=%s\n", token)
}

func printView(snap valuation.Snapshot, currency string) {
	v := valuation.Present(snap)
	fmt.Printf("Cash: %s\n", valuation.FormatMoney(snap.Cash, currency))
	if len(v.Items) == 0 {
		fmt.Println("No open positions.")
		return
	}

	fmt.Printf("%-8s %8s %12s %12s %14s %14s %14s %9s\n",
		"Symbol", "Qty", "Avg Price", "Price", "Invested", "Value", "Returns", "Return %")
	fmt.Println("-----------------------------------------------------------------------------------------------")
	for _, it := range v.Items {
		item := snap.PerSymbol[it.Symbol]
		price := valuation.FormatMoney(item.CurrentPrice, currency)
		if !it.PriceKnown {
			price = "n/a"
		}
		fmt.Printf("%-8s %8s %12s %12s %14s %14s %14s %9s\n",
			it.Symbol,
			it.Quantity,
			valuation.FormatMoney(item.AveragePrice, currency),
			price,
			valuation.FormatMoney(item.Invested, currency),
			valuation.FormatMoney(item.CurrentValue, currency),
			valuation.FormatMoney(item.TotalReturns, currency),
			it.TotalReturnsPercentage,
		)
	}
	fmt.Println("-----------------------------------------------------------------------------------------------")
	fmt.Printf("%-8s %8s %12s %12s %14s %14s %14s %9s\n", "TOTAL", "", "", "",
		valuation.FormatMoney(snap.Totals.Invested, currency),
		valuation.FormatMoney(snap.Totals.CurrentValue, currency),
		valuation.FormatMoney(snap.Totals.TotalReturns, currency),
		v.TotalReturnsPercentage,
	)
}

func printTransactions(txs []txlog.Transaction, currency string) {
	fmt.Printf("%-20s %-5s %-8s %8s %12s %14s\n", "Time", "Type", "Symbol", "Qty", "Price", "Total")
	fmt.Println("---------------------------------------------------------------------------")
	for _, tx := range txs {
		fmt.Printf("%-20s %-5s %-8s %8s %12s %14s\n",
			tx.Timestamp.Local().Format("2006-01-02 15:04:05"),
			tx.Type,
			tx.Symbol,
			tx.Quantity.String(),
			valuation.FormatMoney(tx.Price, currency),
			valuation.FormatMoney(tx.Value(), currency),
		)
	}
}
