package remote

import "context"

// Record is one normalized row: natural-key fields plus payload fields.
// Dates are ISO strings (YYYY-MM-DD) regardless of the vendor's own format.
type Record map[string]any

// RecordBatch is an ordered sequence of normalized records.
type RecordBatch []Record

// Source is the vendor capability surface the pipeline depends on.
// Every implementation exposes the same normalized signatures; vendor-specific
// parameter shapes, field names and date formats stay behind this interface.
type Source interface {
	// Holdings returns broker position-holding rankings for one exchange,
	// symbol and trading day. Symbol may be empty to request all symbols.
	Holdings(ctx context.Context, exchange, symbol, date string) (RecordBatch, error)

	// Daily returns daily price rows (OHLC, settle, volume, open interest)
	// for one exchange, symbol and trading day.
	Daily(ctx context.Context, exchange, symbol, date string) (RecordBatch, error)

	// Contracts returns the listed instrument set for one exchange.
	Contracts(ctx context.Context, exchange string) (RecordBatch, error)

	// TradingDays resolves an inclusive date range to the concrete trading
	// days of the exchange, in ascending order.
	TradingDays(ctx context.Context, exchange, start, end string) ([]string, error)
}
