package stub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"solana-sniper/internal/solana"
)

// ErrNotFound is returned when a transaction is not found.
var ErrNotFound = errors.New("not found")

// RPCClient implements solana.RPCClient for testing. All fields and
// methods are safe for concurrent use.
type RPCClient struct {
	mu sync.Mutex

	Transactions map[string]*solana.Transaction
	Signatures   map[string][]solana.SignatureInfo
	Statuses     map[string]*solana.SignatureStatus
	Slot         int64

	// SendErrs holds errors returned by successive SendTransaction
	// calls before sends start succeeding.
	SendErrs []error

	// Sent records every transaction submitted, in order.
	Sent []string

	sendSeq int
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transactions: make(map[string]*solana.Transaction),
		Signatures:   make(map[string][]solana.SignatureInfo),
		Statuses:     make(map[string]*solana.SignatureStatus),
	}
}

// GetTransaction retrieves a transaction by signature from the stub store.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, ok := c.Transactions[signature]
	if !ok {
		return nil, ErrNotFound
	}
	return tx, nil
}

// GetSignaturesForAddress retrieves signatures for an address from the stub store.
func (c *RPCClient) GetSignaturesForAddress(_ context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sigs, ok := c.Signatures[address]
	if !ok {
		return nil, nil
	}

	// Apply limit if specified
	if opts != nil && opts.Limit > 0 && opts.Limit < len(sigs) {
		return sigs[:opts.Limit], nil
	}

	return sigs, nil
}

// GetLatestBlockhash returns a fixed blockhash.
func (c *RPCClient) GetLatestBlockhash(_ context.Context) (*solana.Blockhash, error) {
	return &solana.Blockhash{
		Blockhash:            "4uQeVj5tqViQh7yWWGStvkEG1Zmhx6uasJtWCJziofM1",
		LastValidBlockHeight: 1000,
	}, nil
}

// SendTransaction records the submission and returns a synthetic
// signature, consuming SendErrs first.
func (c *RPCClient) SendTransaction(_ context.Context, txBase64 string, _ *solana.SendOpts) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seq := c.sendSeq
	c.sendSeq++

	if seq < len(c.SendErrs) && c.SendErrs[seq] != nil {
		return "", c.SendErrs[seq]
	}

	c.Sent = append(c.Sent, txBase64)
	return fmt.Sprintf("stubsig-%d", seq), nil
}

// GetSignatureStatuses returns programmed statuses, nil for unknown
// signatures.
func (c *RPCClient) GetSignatureStatuses(_ context.Context, signatures []string) ([]*solana.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	statuses := make([]*solana.SignatureStatus, len(signatures))
	for i, sig := range signatures {
		statuses[i] = c.Statuses[sig]
	}
	return statuses, nil
}

// GetSlot returns the configured slot.
func (c *RPCClient) GetSlot(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Slot, nil
}

// AddTransaction adds a transaction to the stub store.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Transactions[tx.Signature] = tx
}

// AddSignatures adds signatures for an address to the stub store.
func (c *RPCClient) AddSignatures(address string, sigs []solana.SignatureInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Signatures[address] = sigs
}

// SetStatus programs the confirmation status for a signature.
func (c *RPCClient) SetStatus(signature string, status *solana.SignatureStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Statuses[signature] = status
}

// SentCount reports how many sends succeeded.
func (c *RPCClient) SentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Sent)
}
