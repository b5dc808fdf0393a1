package execution

import (
	"context"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/solana"
)

// TxBuilder builds a signed buy transaction for one DEX program.
type TxBuilder interface {
	// Program returns the program ID this builder handles.
	Program() string

	// BuildBuy builds and signs a buy for the event's pool against the
	// given recent blockhash.
	BuildBuy(ctx context.Context, event *domain.PoolEvent, blockhash string) (*solana.SignedTransaction, error)
}

// BuilderSet routes opportunities to per-program builders.
type BuilderSet struct {
	builders map[string]TxBuilder
}

// NewBuilderSet creates a builder set from the given builders.
func NewBuilderSet(builders ...TxBuilder) *BuilderSet {
	set := &BuilderSet{builders: make(map[string]TxBuilder)}
	for _, b := range builders {
		set.builders[b.Program()] = b
	}
	return set
}

// Register adds a builder, replacing any existing one for the program.
func (s *BuilderSet) Register(b TxBuilder) {
	s.builders[b.Program()] = b
}

// For returns the builder for a program, nil when none is registered.
func (s *BuilderSet) For(program string) TxBuilder {
	return s.builders[program]
}
