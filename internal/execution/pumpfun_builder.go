package execution

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/ingest"
	"solana-sniper/internal/solana"
)

// pumpFeeRecipient receives the protocol fee on every trade.
const pumpFeeRecipient = "CebN5WGQ4jvEPvsVU4EoHEpgzq1VV7AbicfhtW4xC9iM"

// buy instruction discriminator, sha256("global:buy")[:8]
var pumpBuyDiscriminator = []byte{102, 6, 61, 18, 1, 218, 235, 234}

// PumpFunBuilderConfig tunes the pump.fun buy builder.
type PumpFunBuilderConfig struct {
	// SpendLamports is the SOL budget per buy, fees excluded.
	SpendLamports uint64

	// SlippageBps caps the accepted price move in basis points.
	SlippageBps uint64

	// PriorityFeeMicroLamports is the compute unit price attached to
	// every buy. Zero omits the instruction.
	PriorityFeeMicroLamports uint64

	// ComputeUnitLimit caps compute units per transaction. Zero uses
	// the default of 120k, plenty for a bonding curve buy.
	ComputeUnitLimit uint32
}

// PumpFunBuilder builds buy transactions against pump.fun bonding
// curves. The curve price is derived from the event's virtual reserves,
// so no account fetch sits on the hot path.
type PumpFunBuilder struct {
	signer *solana.Keypair
	cfg    PumpFunBuilderConfig

	program        solana.PublicKey
	global         solana.PublicKey
	eventAuthority solana.PublicKey
	feeRecipient   solana.PublicKey
}

// NewPumpFunBuilder creates a pump.fun buy builder signing with the
// given keypair.
func NewPumpFunBuilder(signer *solana.Keypair, cfg PumpFunBuilderConfig) (*PumpFunBuilder, error) {
	if signer == nil {
		return nil, fmt.Errorf("nil signer")
	}
	if cfg.SpendLamports == 0 {
		return nil, fmt.Errorf("spend lamports must be positive")
	}
	if cfg.ComputeUnitLimit == 0 {
		cfg.ComputeUnitLimit = 120_000
	}

	program := solana.MustPublicKey(ingest.PumpFun)

	global, _, err := solana.FindProgramAddress([][]byte{[]byte("global")}, program)
	if err != nil {
		return nil, fmt.Errorf("derive global: %w", err)
	}
	eventAuthority, _, err := solana.FindProgramAddress([][]byte{[]byte("__event_authority")}, program)
	if err != nil {
		return nil, fmt.Errorf("derive event authority: %w", err)
	}

	return &PumpFunBuilder{
		signer:         signer,
		cfg:            cfg,
		program:        program,
		global:         global,
		eventAuthority: eventAuthority,
		feeRecipient:   solana.MustPublicKey(pumpFeeRecipient),
	}, nil
}

// Program returns the pump.fun program ID.
func (b *PumpFunBuilder) Program() string { return ingest.PumpFun }

// BuildBuy builds a signed buy for the event's bonding curve. The
// token amount comes from the constant-product quote against the
// event's reserves; max cost carries the slippage allowance.
func (b *PumpFunBuilder) BuildBuy(_ context.Context, event *domain.PoolEvent, blockhash string) (*solana.SignedTransaction, error) {
	mint, err := solana.ParsePublicKey(event.BaseMint)
	if err != nil {
		return nil, fmt.Errorf("parse mint: %w", err)
	}
	bondingCurve, err := solana.ParsePublicKey(event.Pool)
	if err != nil {
		return nil, fmt.Errorf("parse bonding curve: %w", err)
	}

	tokensOut := quoteTokensOut(event.QuoteReserve, event.BaseReserve, b.cfg.SpendLamports)
	if tokensOut == 0 {
		return nil, ErrBelowMinTokens
	}
	maxCost := b.cfg.SpendLamports + b.cfg.SpendLamports*b.cfg.SlippageBps/10_000

	user := b.signer.PublicKey()

	curveATA, err := solana.AssociatedTokenAddress(bondingCurve, mint)
	if err != nil {
		return nil, fmt.Errorf("derive curve token account: %w", err)
	}
	userATA, err := solana.AssociatedTokenAddress(user, mint)
	if err != nil {
		return nil, fmt.Errorf("derive user token account: %w", err)
	}

	var instructions []solana.Instruction
	instructions = append(instructions, computeUnitLimit(b.cfg.ComputeUnitLimit))
	if b.cfg.PriorityFeeMicroLamports > 0 {
		instructions = append(instructions, computeUnitPrice(b.cfg.PriorityFeeMicroLamports))
	}
	instructions = append(instructions,
		createATAIdempotent(user, userATA, mint),
		b.buyInstruction(mint, bondingCurve, curveATA, userATA, user, tokensOut, maxCost),
	)

	return solana.BuildTransaction(b.signer, blockhash, instructions)
}

func (b *PumpFunBuilder) buyInstruction(mint, bondingCurve, curveATA, userATA, user solana.PublicKey, tokensOut, maxCost uint64) solana.Instruction {
	data := make([]byte, 0, 24)
	data = append(data, pumpBuyDiscriminator...)
	data = binary.LittleEndian.AppendUint64(data, tokensOut)
	data = binary.LittleEndian.AppendUint64(data, maxCost)

	return solana.Instruction{
		ProgramID: b.program,
		Accounts: []solana.AccountMeta{
			{Pubkey: b.global},
			{Pubkey: b.feeRecipient, IsWritable: true},
			{Pubkey: mint},
			{Pubkey: bondingCurve, IsWritable: true},
			{Pubkey: curveATA, IsWritable: true},
			{Pubkey: userATA, IsWritable: true},
			{Pubkey: user, IsSigner: true, IsWritable: true},
			{Pubkey: solana.MustPublicKey(solana.SystemProgram)},
			{Pubkey: solana.MustPublicKey(solana.TokenProgram)},
			{Pubkey: b.eventAuthority},
			{Pubkey: b.program},
		},
		Data: data,
	}
}

// quoteTokensOut is the constant-product quote: tokens received for
// spending quoteIn against the given reserves.
func quoteTokensOut(quoteReserve, baseReserve, quoteIn uint64) uint64 {
	if quoteReserve == 0 || baseReserve == 0 || quoteIn == 0 {
		return 0
	}
	if quoteIn > math.MaxUint64-quoteReserve {
		// Post-swap reserve would wrap; no meaningful quote exists.
		return 0
	}
	// Full 128-bit product; raw reserves overflow a uint64 product.
	// newQuote > quoteReserve, so the quotient always fits.
	newQuote := quoteReserve + quoteIn
	hi, lo := bits.Mul64(quoteReserve, baseReserve)
	newBase, _ := bits.Div64(hi, lo, newQuote)
	if newBase >= baseReserve {
		return 0
	}
	return baseReserve - newBase
}

func createATAIdempotent(payer, ata, mint solana.PublicKey) solana.Instruction {
	return solana.Instruction{
		ProgramID: solana.MustPublicKey(solana.AssociatedTokenProgram),
		Accounts: []solana.AccountMeta{
			{Pubkey: payer, IsSigner: true, IsWritable: true},
			{Pubkey: ata, IsWritable: true},
			{Pubkey: payer},
			{Pubkey: mint},
			{Pubkey: solana.MustPublicKey(solana.SystemProgram)},
			{Pubkey: solana.MustPublicKey(solana.TokenProgram)},
		},
		Data: []byte{1}, // CreateIdempotent
	}
}

func computeUnitLimit(units uint32) solana.Instruction {
	data := make([]byte, 0, 5)
	data = append(data, 2) // SetComputeUnitLimit
	data = binary.LittleEndian.AppendUint32(data, units)
	return solana.Instruction{
		ProgramID: solana.MustPublicKey(solana.ComputeBudgetProgram),
		Data:      data,
	}
}

func computeUnitPrice(microLamports uint64) solana.Instruction {
	data := make([]byte, 0, 9)
	data = append(data, 3) // SetComputeUnitPrice
	data = binary.LittleEndian.AppendUint64(data, microLamports)
	return solana.Instruction{
		ProgramID: solana.MustPublicKey(solana.ComputeBudgetProgram),
		Data:      data,
	}
}
