package solana

import (
	"encoding/base64"
	"fmt"
	"sort"

	"github.com/mr-tron/base58"
)

// AccountMeta describes how an instruction touches one account.
type AccountMeta struct {
	Pubkey     PublicKey
	IsSigner   bool
	IsWritable bool
}

// Instruction is a single program invocation inside a transaction.
type Instruction struct {
	ProgramID PublicKey
	Accounts  []AccountMeta
	Data      []byte
}

// SignedTransaction is a fully signed legacy transaction ready to submit.
type SignedTransaction struct {
	// Signature is the base58-encoded fee payer signature, which is
	// also the transaction's identity on chain.
	Signature string

	raw []byte
}

// Base64 returns the wire encoding expected by sendTransaction.
func (t *SignedTransaction) Base64() string {
	return base64.StdEncoding.EncodeToString(t.raw)
}

// Bytes returns the raw serialized transaction.
func (t *SignedTransaction) Bytes() []byte {
	return t.raw
}

// BuildTransaction assembles, serializes and signs a legacy
// transaction. The fee payer signs first; additional signers must cover
// every signer account referenced by the instructions.
func BuildTransaction(feePayer *Keypair, recentBlockhash string, instructions []Instruction, extraSigners ...*Keypair) (*SignedTransaction, error) {
	if feePayer == nil {
		return nil, fmt.Errorf("fee payer is required")
	}
	if len(instructions) == 0 {
		return nil, fmt.Errorf("at least one instruction is required")
	}

	blockhash, err := base58.Decode(recentBlockhash)
	if err != nil {
		return nil, fmt.Errorf("decode blockhash: %w", err)
	}
	if len(blockhash) != 32 {
		return nil, fmt.Errorf("blockhash: expected 32 bytes, got %d", len(blockhash))
	}

	msg, err := compileMessage(feePayer.PublicKey(), blockhash, instructions)
	if err != nil {
		return nil, err
	}

	serialized := msg.serialize()

	signers := append([]*Keypair{feePayer}, extraSigners...)
	byAddr := make(map[PublicKey]*Keypair, len(signers))
	for _, s := range signers {
		byAddr[s.PublicKey()] = s
	}

	sigs := make([][]byte, msg.numRequiredSignatures)
	for i := 0; i < int(msg.numRequiredSignatures); i++ {
		signer, ok := byAddr[msg.accounts[i]]
		if !ok {
			return nil, fmt.Errorf("missing signer for account %s", msg.accounts[i])
		}
		sigs[i] = signer.Sign(serialized)
	}

	raw := make([]byte, 0, 1+len(sigs)*64+len(serialized))
	raw = appendCompactU16(raw, uint16(len(sigs)))
	for _, sig := range sigs {
		raw = append(raw, sig...)
	}
	raw = append(raw, serialized...)

	return &SignedTransaction{
		Signature: base58.Encode(sigs[0]),
		raw:       raw,
	}, nil
}

// message is a compiled legacy transaction message.
type message struct {
	numRequiredSignatures  byte
	numReadonlySigned      byte
	numReadonlyUnsigned    byte
	accounts               []PublicKey
	recentBlockhash        []byte
	compiledInstructions   []compiledInstruction
}

type compiledInstruction struct {
	programIDIndex byte
	accountIndexes []byte
	data           []byte
}

// compileMessage flattens instruction account lists into the ordered
// account table the runtime expects: writable signers first (fee payer
// at index 0), then readonly signers, writable non-signers, readonly
// non-signers. Duplicate references merge with OR'd flags.
func compileMessage(feePayer PublicKey, blockhash []byte, instructions []Instruction) (*message, error) {
	type accountFlags struct {
		signer   bool
		writable bool
	}

	flags := make(map[PublicKey]*accountFlags)
	order := make([]PublicKey, 0, 16)

	touch := func(pk PublicKey, signer, writable bool) {
		f, ok := flags[pk]
		if !ok {
			f = &accountFlags{}
			flags[pk] = f
			order = append(order, pk)
		}
		f.signer = f.signer || signer
		f.writable = f.writable || writable
	}

	touch(feePayer, true, true)
	for _, ins := range instructions {
		for _, acc := range ins.Accounts {
			touch(acc.Pubkey, acc.IsSigner, acc.IsWritable)
		}
		touch(ins.ProgramID, false, false)
	}

	rank := func(pk PublicKey) int {
		if pk == feePayer {
			return 0
		}
		f := flags[pk]
		switch {
		case f.signer && f.writable:
			return 1
		case f.signer:
			return 2
		case f.writable:
			return 3
		default:
			return 4
		}
	}

	// Stable sort keeps first-touch order within each class.
	sort.SliceStable(order, func(i, j int) bool {
		return rank(order[i]) < rank(order[j])
	})

	index := make(map[PublicKey]byte, len(order))
	if len(order) > 255 {
		return nil, fmt.Errorf("too many accounts: %d", len(order))
	}
	for i, pk := range order {
		index[pk] = byte(i)
	}

	msg := &message{
		accounts:        order,
		recentBlockhash: blockhash,
	}
	for _, pk := range order {
		f := flags[pk]
		if f.signer {
			msg.numRequiredSignatures++
			if !f.writable {
				msg.numReadonlySigned++
			}
		} else if !f.writable {
			msg.numReadonlyUnsigned++
		}
	}

	for _, ins := range instructions {
		ci := compiledInstruction{
			programIDIndex: index[ins.ProgramID],
			data:           ins.Data,
		}
		for _, acc := range ins.Accounts {
			ci.accountIndexes = append(ci.accountIndexes, index[acc.Pubkey])
		}
		msg.compiledInstructions = append(msg.compiledInstructions, ci)
	}

	return msg, nil
}

func (m *message) serialize() []byte {
	out := make([]byte, 0, 256)
	out = append(out, m.numRequiredSignatures, m.numReadonlySigned, m.numReadonlyUnsigned)

	out = appendCompactU16(out, uint16(len(m.accounts)))
	for _, pk := range m.accounts {
		out = append(out, pk[:]...)
	}

	out = append(out, m.recentBlockhash...)

	out = appendCompactU16(out, uint16(len(m.compiledInstructions)))
	for _, ci := range m.compiledInstructions {
		out = append(out, ci.programIDIndex)
		out = appendCompactU16(out, uint16(len(ci.accountIndexes)))
		out = append(out, ci.accountIndexes...)
		out = appendCompactU16(out, uint16(len(ci.data)))
		out = append(out, ci.data...)
	}

	return out
}

// appendCompactU16 appends the shortvec encoding used throughout the
// Solana wire format.
func appendCompactU16(b []byte, v uint16) []byte {
	for {
		if v < 0x80 {
			return append(b, byte(v))
		}
		b = append(b, byte(v&0x7f)|0x80)
		v >>= 7
	}
}
