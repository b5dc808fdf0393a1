package solana

import "context"

// RPCClient defines the Solana RPC HTTP interface used by the pipeline.
type RPCClient interface {
	// GetTransaction retrieves a transaction by signature.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetSignaturesForAddress retrieves signatures for an address with pagination.
	GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error)

	// GetLatestBlockhash retrieves a recent blockhash for transaction assembly.
	GetLatestBlockhash(ctx context.Context) (*Blockhash, error)

	// SendTransaction submits a signed, base64-encoded transaction and
	// returns its signature.
	SendTransaction(ctx context.Context, txBase64 string, opts *SendOpts) (string, error)

	// GetSignatureStatuses retrieves confirmation status for up to 256 signatures.
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error)

	// GetSlot retrieves the current slot.
	GetSlot(ctx context.Context) (int64, error)
}

// Transaction represents a Solana transaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err         interface{}
	LogMessages []string
}

// TransactionMessage contains parsed transaction message.
type TransactionMessage struct {
	AccountKeys []string
}

// Blockhash is a recent blockhash with its expiry height.
type Blockhash struct {
	Blockhash            string
	LastValidBlockHeight uint64
}

// SendOpts defines optional parameters for sendTransaction.
type SendOpts struct {
	SkipPreflight bool
	MaxRetries    *int // RPC-side resubmission budget; nil leaves it to the node
}

// SignatureStatus is the confirmation state of a submitted transaction.
// A nil entry in GetSignatureStatuses means the node does not know the
// signature yet.
type SignatureStatus struct {
	Slot               int64
	Confirmations      *uint64
	ConfirmationStatus string // "processed", "confirmed" or "finalized"
	Err                interface{}
}

// Confirmed reports whether the transaction reached at least confirmed
// commitment without an error.
func (s *SignatureStatus) Confirmed() bool {
	if s == nil || s.Err != nil {
		return false
	}
	return s.ConfirmationStatus == "confirmed" || s.ConfirmationStatus == "finalized"
}

// Failed reports whether the transaction landed on chain with an error.
func (s *SignatureStatus) Failed() bool {
	return s != nil && s.Err != nil
}
