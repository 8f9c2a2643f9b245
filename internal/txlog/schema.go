package txlog

const schemaDDL = `
CREATE TABLE IF NOT EXISTS transactions (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	type      TEXT NOT NULL,
	symbol    TEXT NOT NULL,
	quantity  TEXT NOT NULL,
	price     TEXT NOT NULL,
	ts_nanos  INTEGER NOT NULL,
	UNIQUE (ts_nanos, type, symbol, quantity, price)
);

CREATE INDEX IF NOT EXISTS idx_transactions_symbol ON transactions(symbol);
CREATE INDEX IF NOT EXISTS idx_transactions_ts ON transactions(ts_nanos);

DROP VIEW IF EXISTS v_symbol_totals;
`
