package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"solana-sniper/internal/solana"
)

// Submitter is the submission channel for signed transactions. The
// engine retries around one Submit call; a Submitter decides where the
// transaction actually goes.
type Submitter interface {
	// Submit sends a signed, base64-encoded transaction and returns
	// its signature.
	Submit(ctx context.Context, txBase64 string, opts *solana.SendOpts) (string, error)

	// PollStatus returns the current status of a signature, or nil
	// when no channel knows it yet.
	PollStatus(ctx context.Context, signature string) (*solana.SignatureStatus, error)
}

// RPCSubmitter submits through a single RPC endpoint.
type RPCSubmitter struct {
	rpc solana.RPCClient
}

// NewRPCSubmitter creates a single-endpoint submitter.
func NewRPCSubmitter(rpc solana.RPCClient) *RPCSubmitter {
	return &RPCSubmitter{rpc: rpc}
}

func (s *RPCSubmitter) Submit(ctx context.Context, txBase64 string, opts *solana.SendOpts) (string, error) {
	return s.rpc.SendTransaction(ctx, txBase64, opts)
}

func (s *RPCSubmitter) PollStatus(ctx context.Context, signature string) (*solana.SignatureStatus, error) {
	statuses, err := s.rpc.GetSignatureStatuses(ctx, []string{signature})
	if err != nil {
		return nil, err
	}
	if len(statuses) == 0 {
		return nil, nil
	}
	return statuses[0], nil
}

// FanoutSubmitter races one transaction across several endpoints. The
// first accepted submission wins; the duplicates land as the same
// signature and the cluster deduplicates them.
type FanoutSubmitter struct {
	clients []solana.RPCClient
}

// NewFanoutSubmitter creates a fan-out submitter over the given
// endpoints.
func NewFanoutSubmitter(clients ...solana.RPCClient) (*FanoutSubmitter, error) {
	if len(clients) == 0 {
		return nil, errors.New("fanout submitter needs at least one endpoint")
	}
	return &FanoutSubmitter{clients: clients}, nil
}

// Submit sends to every endpoint concurrently and returns the first
// success, cancelling the rest. All endpoints failing returns the
// last error.
func (s *FanoutSubmitter) Submit(ctx context.Context, txBase64 string, opts *solana.SendOpts) (string, error) {
	fanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		signature string
		err       error
	}
	results := make(chan result, len(s.clients))

	var wg sync.WaitGroup
	for _, client := range s.clients {
		wg.Add(1)
		go func(client solana.RPCClient) {
			defer wg.Done()
			signature, err := client.SendTransaction(fanCtx, txBase64, opts)
			results <- result{signature: signature, err: err}
		}(client)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var lastErr error
	for res := range results {
		if res.err == nil {
			return res.signature, nil
		}
		lastErr = res.err
	}
	if ctx.Err() != nil {
		return "", fmt.Errorf("fanout submit: %w (last: %v)", ctx.Err(), lastErr)
	}
	return "", fmt.Errorf("fanout submit: all %d endpoints failed: %w", len(s.clients), lastErr)
}

// PollStatus asks each endpoint in turn and returns the first known
// status. Endpoints lag each other, so a nil from one is not final.
func (s *FanoutSubmitter) PollStatus(ctx context.Context, signature string) (*solana.SignatureStatus, error) {
	var lastErr error
	answered := false
	for _, client := range s.clients {
		statuses, err := client.GetSignatureStatuses(ctx, []string{signature})
		if err != nil {
			lastErr = err
			continue
		}
		answered = true
		if len(statuses) > 0 && statuses[0] != nil {
			return statuses[0], nil
		}
	}
	if !answered && lastErr != nil {
		return nil, lastErr
	}
	return nil, nil
}
