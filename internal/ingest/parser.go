package ingest

import (
	"encoding/base64"
	"encoding/binary"
	"regexp"
	"strconv"
	"strings"

	"github.com/mr-tron/base58"

	"solana-sniper/internal/domain"
)

// Known DEX program IDs.
const (
	// RaydiumAMMV4 is the Raydium AMM v4 program ID.
	RaydiumAMMV4 = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
	// PumpFun is the pump.fun program ID.
	PumpFun = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
)

// WSOL is the Wrapped SOL mint address.
const WSOL = "So11111111111111111111111111111111111111112"

// pump.fun bonding curve initial state. Every curve opens with the
// same virtual reserves, so a create event has a known starting price.
const (
	pumpInitialVirtualSOL   = 30_000_000_000     // 30 SOL in lamports
	pumpInitialTokenReserve = 793_100_000_000_000 // real token reserves at creation
)

// ProgramParser extracts pool creation events for one DEX program.
// Account keys may be nil when the full transaction could not be
// fetched; parsers degrade or skip accordingly.
type ProgramParser interface {
	// Program returns the program ID this parser handles.
	Program() string

	// ParsePoolCreation extracts pool creation events from logs.
	ParsePoolCreation(logs []string, accountKeys []string, txSig string, slot int64, timestamp int64) []*domain.PoolEvent

	// NeedsAccountKeys reports whether the parser requires the full
	// transaction to extract accounts.
	NeedsAccountKeys() bool
}

// Parser fans log entries out to registered per-program parsers.
type Parser struct {
	parsers map[string]ProgramParser
}

// NewParser creates a parser with the default DEX parsers registered.
func NewParser() *Parser {
	p := &Parser{
		parsers: make(map[string]ProgramParser),
	}

	p.Register(NewRaydiumPoolParser())
	p.Register(NewPumpFunPoolParser())

	return p
}

// Register registers a parser for its program ID.
func (p *Parser) Register(parser ProgramParser) {
	p.parsers[parser.Program()] = parser
}

// Programs returns the registered program IDs.
func (p *Parser) Programs() []string {
	programs := make([]string, 0, len(p.parsers))
	for id := range p.parsers {
		programs = append(programs, id)
	}
	return programs
}

// ParsePoolCreation runs every registered parser over the logs and
// merges results.
func (p *Parser) ParsePoolCreation(logs []string, accountKeys []string, txSig string, slot int64, timestamp int64) []*domain.PoolEvent {
	var events []*domain.PoolEvent
	for _, parser := range p.parsers {
		events = append(events, parser.ParsePoolCreation(logs, accountKeys, txSig, slot, timestamp)...)
	}
	return events
}

// NeedsAccountKeys reports whether any registered parser whose program
// appears in the logs requires the full transaction.
func (p *Parser) NeedsAccountKeys(logs []string) bool {
	for id, parser := range p.parsers {
		if !parser.NeedsAccountKeys() {
			continue
		}
		for _, log := range logs {
			if strings.Contains(log, id) {
				return true
			}
		}
	}
	return false
}

// RaydiumPoolParser parses Raydium AMM v4 initialize2 events.
type RaydiumPoolParser struct {
	invokePattern *regexp.Regexp
	initPattern   *regexp.Regexp
}

// NewRaydiumPoolParser creates a Raydium pool creation parser.
func NewRaydiumPoolParser() *RaydiumPoolParser {
	return &RaydiumPoolParser{
		invokePattern: regexp.MustCompile(`Program ` + RaydiumAMMV4 + ` invoke`),
		// initialize2 logs its instruction struct, amounts included
		initPattern: regexp.MustCompile(`initialize2: InitializeInstruction2 \{.*?init_pc_amount: (\d+), init_coin_amount: (\d+)`),
	}
}

// Program returns the Raydium AMM v4 program ID.
func (p *RaydiumPoolParser) Program() string { return RaydiumAMMV4 }

// NeedsAccountKeys reports that Raydium parsing requires the full
// transaction; pool and mint addresses never appear in the log text.
func (p *RaydiumPoolParser) NeedsAccountKeys() bool { return true }

// ParsePoolCreation extracts initialize2 events from logs. Pool and
// mint addresses come from the transaction account keys; without them
// the event cannot be built.
func (p *RaydiumPoolParser) ParsePoolCreation(logs []string, accountKeys []string, txSig string, slot int64, timestamp int64) []*domain.PoolEvent {
	if !p.containsInvoke(logs) {
		return nil
	}

	var events []*domain.PoolEvent
	for _, log := range logs {
		matches := p.initPattern.FindStringSubmatch(log)
		if matches == nil {
			continue
		}

		pcAmount, err1 := strconv.ParseUint(matches[1], 10, 64)
		coinAmount, err2 := strconv.ParseUint(matches[2], 10, 64)
		if err1 != nil || err2 != nil {
			continue
		}

		pool, baseMint, quoteMint := extractRaydiumAccounts(accountKeys)
		if pool == "" || baseMint == "" {
			continue
		}

		// Fee payer funds pool creation
		creator := ""
		if len(accountKeys) > 0 {
			creator = accountKeys[0]
		}

		events = append(events, &domain.PoolEvent{
			Pool:         pool,
			BaseMint:     baseMint,
			QuoteMint:    quoteMint,
			Creator:      creator,
			BaseReserve:  coinAmount,
			QuoteReserve: pcAmount,
			Program:      RaydiumAMMV4,
			TxSignature:  txSig,
			Slot:         slot,
			Timestamp:    timestamp,
			RawLog:       log,
		})
	}

	return events
}

func (p *RaydiumPoolParser) containsInvoke(logs []string) bool {
	for _, log := range logs {
		if p.invokePattern.MatchString(log) {
			return true
		}
	}
	return false
}

// Raydium initialize2 static account key positions. The pool account
// sits at a fixed offset in the transaction message for standard
// pool-creation transactions.
const raydiumInitPoolIndex = 2

// extractRaydiumAccounts pulls pool and mint addresses out of the
// transaction account keys. The quote side is the WSOL key when
// present; the base mint is found heuristically among the remaining
// keys, since initialize2 logs do not carry decoded instructions.
func extractRaydiumAccounts(accountKeys []string) (pool, baseMint, quoteMint string) {
	if len(accountKeys) <= raydiumInitPoolIndex {
		return "", "", ""
	}

	pool = accountKeys[raydiumInitPoolIndex]

	for _, key := range accountKeys {
		if key == WSOL {
			quoteMint = key
			break
		}
	}
	if quoteMint == "" {
		return "", "", ""
	}

	for i, key := range accountKeys {
		if i == 0 || i == raydiumInitPoolIndex {
			continue
		}
		if key == WSOL || key == RaydiumAMMV4 || isKnownProgram(key) {
			continue
		}
		if len(key) >= 32 && len(key) <= 44 {
			baseMint = key
			break
		}
	}

	return pool, baseMint, quoteMint
}

func isKnownProgram(key string) bool {
	switch key {
	case "11111111111111111111111111111111",
		"TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA",
		"ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL",
		"ComputeBudget111111111111111111111111111111",
		"SysvarRent111111111111111111111111111111111",
		"srmqPvymJeFKQ4zGQed1GFppgkRHL9kaELCbyksJtPX":
		return true
	}
	return false
}

// PumpFunPoolParser parses pump.fun token create events.
type PumpFunPoolParser struct {
	createPattern *regexp.Regexp
	dataPattern   *regexp.Regexp
}

// NewPumpFunPoolParser creates a pump.fun create parser.
func NewPumpFunPoolParser() *PumpFunPoolParser {
	return &PumpFunPoolParser{
		createPattern: regexp.MustCompile(`Program log: Instruction: Create`),
		dataPattern:   regexp.MustCompile(`Program data: ([A-Za-z0-9+/=]+)`),
	}
}

// Program returns the pump.fun program ID.
func (p *PumpFunPoolParser) Program() string { return PumpFun }

// NeedsAccountKeys reports that pump.fun events are self-contained;
// the emitted create event carries every address.
func (p *PumpFunPoolParser) NeedsAccountKeys() bool { return false }

// ParsePoolCreation extracts create events from logs. The event data
// log is borsh-encoded and carries name, symbol, mint, bonding curve
// and creator.
func (p *PumpFunPoolParser) ParsePoolCreation(logs []string, accountKeys []string, txSig string, slot int64, timestamp int64) []*domain.PoolEvent {
	var events []*domain.PoolEvent
	inPumpFun := false
	sawCreate := false

	for _, log := range logs {
		if strings.Contains(log, "Program "+PumpFun+" invoke") {
			inPumpFun = true
			sawCreate = false
			continue
		}

		if strings.Contains(log, "Program "+PumpFun+" success") ||
			strings.Contains(log, "Program "+PumpFun+" failed") {
			inPumpFun = false
			continue
		}

		if !inPumpFun {
			continue
		}

		if p.createPattern.MatchString(log) {
			sawCreate = true
			continue
		}

		if !sawCreate {
			continue
		}

		matches := p.dataPattern.FindStringSubmatch(log)
		if matches == nil {
			continue
		}

		ev := parsePumpCreateEvent(matches[1])
		if ev == nil {
			continue
		}

		ev.TxSignature = txSig
		ev.Slot = slot
		ev.Timestamp = timestamp
		ev.RawLog = log
		events = append(events, ev)
		sawCreate = false
	}

	return events
}

// parsePumpCreateEvent decodes the borsh-encoded create event:
// discriminator(8) + name(4+len) + symbol(4+len) + uri(4+len) +
// mint(32) + bondingCurve(32) + user(32).
func parsePumpCreateEvent(encoded string) *domain.PoolEvent {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil
	}
	if len(data) < 8 {
		return nil
	}

	offset := 8

	name, offset, ok := readBorshString(data, offset, 64)
	if !ok {
		return nil
	}
	symbol, offset, ok := readBorshString(data, offset, 32)
	if !ok {
		return nil
	}
	_, offset, ok = readBorshString(data, offset, 256) // uri, unused
	if !ok {
		return nil
	}

	if offset+96 > len(data) {
		return nil
	}
	mint := base58.Encode(data[offset : offset+32])
	bondingCurve := base58.Encode(data[offset+32 : offset+64])
	user := base58.Encode(data[offset+64 : offset+96])

	return &domain.PoolEvent{
		Pool:         bondingCurve,
		BaseMint:     mint,
		QuoteMint:    WSOL,
		Creator:      user,
		BaseReserve:  pumpInitialTokenReserve,
		QuoteReserve: pumpInitialVirtualSOL,
		Program:      PumpFun,
		BaseName:     strings.TrimRight(name, "\x00"),
		BaseSymbol:   strings.TrimRight(symbol, "\x00"),
	}
}

// readBorshString reads a borsh string (4-byte LE length + bytes) with
// a sanity cap on length.
func readBorshString(data []byte, offset, maxLen int) (string, int, bool) {
	if offset+4 > len(data) {
		return "", 0, false
	}
	length := int(binary.LittleEndian.Uint32(data[offset:]))
	offset += 4

	if length > maxLen || offset+length > len(data) {
		return "", 0, false
	}
	return string(data[offset : offset+length]), offset + length, true
}
