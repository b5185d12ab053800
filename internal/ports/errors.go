package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Exchange Specific Errors
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the exchange")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrInvalidSymbol        = errors.New("symbol not known to the exchange")

	// Database Specific Errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
	ErrUpdateFailed = errors.New("database update failed")

	// Chart Core Conditions
	// None of these is fatal; the event loop logs and counts them.
	ErrAlreadyTracked       = errors.New("symbol is already tracked")
	ErrUnresolvedInstrument = errors.New("symbol does not resolve to an instrument")
	ErrUnknownSymbolTick    = errors.New("tick for untracked symbol")
	ErrOutOfOrderTick       = errors.New("tick older than the bar in progress")
	ErrEmptyHistoryBatch    = errors.New("history batch is empty")
	ErrStaleHistoryBatch    = errors.New("history batch belongs to a previous tracking session")
	ErrSymbolNotTracked     = errors.New("symbol is not tracked")
	ErrRouterStopped        = errors.New("event router is not running")
)
