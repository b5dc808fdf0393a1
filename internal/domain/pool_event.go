package domain

// PoolEvent represents a parsed pool/pair creation notification.
// Immutable once constructed by the ingestor.
type PoolEvent struct {
	Pool         string // pool address, unique opportunity identifier
	BaseMint     string // token being launched
	QuoteMint    string // quote side (SOL, USDC, ...)
	Creator      string // pool creator address
	BaseReserve  uint64 // initial base liquidity in raw units
	QuoteReserve uint64 // initial quote liquidity in raw units
	Program      string // DEX program ID that emitted the event
	TxSignature  string // creation transaction signature
	Slot         int64  // Solana slot number
	Timestamp    int64  // Unix timestamp in milliseconds
	RawLog       string // originating log line, kept for audit

	// Optional metadata, present when the creating program logs it.
	BaseName   string  // token name, empty if unknown
	BaseSymbol string  // token symbol, empty if unknown
	// CreatorShare is the fraction of base supply held by the creator
	// at pool creation, 0 when not derivable from the event.
	CreatorShare float64
}
