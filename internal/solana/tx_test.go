package solana

import (
	"bytes"
	"crypto/ed25519"
	"testing"

	"github.com/mr-tron/base58"
)

func TestAppendCompactU16(t *testing.T) {
	cases := []struct {
		value    uint16
		expected []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{255, []byte{0xff, 0x01}},
		{16383, []byte{0xff, 0x7f}},
		{16384, []byte{0x80, 0x80, 0x01}},
	}

	for _, tc := range cases {
		got := appendCompactU16(nil, tc.value)
		if !bytes.Equal(got, tc.expected) {
			t.Errorf("value %d: expected %v, got %v", tc.value, tc.expected, got)
		}
	}
}

func testBlockhash(t *testing.T) string {
	t.Helper()
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	return base58.Encode(raw)
}

func TestBuildTransaction(t *testing.T) {
	payer, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}

	dest, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}

	program := MustPublicKey(TokenProgram)
	ins := Instruction{
		ProgramID: program,
		Accounts: []AccountMeta{
			{Pubkey: payer.PublicKey(), IsSigner: true, IsWritable: true},
			{Pubkey: dest.PublicKey(), IsWritable: true},
		},
		Data: []byte{3, 0, 0, 0},
	}

	tx, err := BuildTransaction(payer, testBlockhash(t), []Instruction{ins})
	if err != nil {
		t.Fatalf("BuildTransaction: %v", err)
	}

	raw := tx.Bytes()
	if len(raw) < 1+64 {
		t.Fatalf("transaction too short: %d bytes", len(raw))
	}

	// One required signature, so one signature slot
	if raw[0] != 1 {
		t.Fatalf("expected 1 signature, got %d", raw[0])
	}

	sig := raw[1:65]
	message := raw[65:]

	pub := payer.PublicKey()
	if !ed25519.Verify(ed25519.PublicKey(pub[:]), message, sig) {
		t.Error("fee payer signature did not verify over message")
	}

	if tx.Signature != base58.Encode(sig) {
		t.Error("Signature field does not match first signature")
	}

	// Header: 1 required signature, 0 readonly signed, 1 readonly
	// unsigned (the program)
	if message[0] != 1 || message[1] != 0 || message[2] != 1 {
		t.Errorf("unexpected header: %v", message[:3])
	}

	// Fee payer occupies account index 0
	if !bytes.Equal(message[4:36], pub[:]) {
		t.Error("fee payer must be the first account")
	}
}

func TestBuildTransaction_AccountOrdering(t *testing.T) {
	payer, _ := GenerateKeypair()
	extra, _ := GenerateKeypair()
	readonly, _ := GenerateKeypair()
	program := MustPublicKey(TokenProgram)

	ins := Instruction{
		ProgramID: program,
		Accounts: []AccountMeta{
			{Pubkey: readonly.PublicKey()},
			{Pubkey: extra.PublicKey(), IsSigner: true, IsWritable: true},
		},
		Data: []byte{1},
	}

	msg, err := compileMessage(payer.PublicKey(), make([]byte, 32), []Instruction{ins})
	if err != nil {
		t.Fatalf("compileMessage: %v", err)
	}

	if msg.numRequiredSignatures != 2 {
		t.Errorf("expected 2 required signatures, got %d", msg.numRequiredSignatures)
	}

	if msg.accounts[0] != payer.PublicKey() {
		t.Error("fee payer must be first")
	}

	if msg.accounts[1] != extra.PublicKey() {
		t.Error("writable signer must follow fee payer")
	}

	// Readonly non-signers (data account and program) come last
	if msg.numReadonlyUnsigned != 2 {
		t.Errorf("expected 2 readonly unsigned, got %d", msg.numReadonlyUnsigned)
	}
}

func TestBuildTransaction_MergesDuplicateAccounts(t *testing.T) {
	payer, _ := GenerateKeypair()
	acct, _ := GenerateKeypair()
	program := MustPublicKey(TokenProgram)

	// Same account referenced readonly and writable; flags must merge.
	ins := []Instruction{
		{
			ProgramID: program,
			Accounts:  []AccountMeta{{Pubkey: acct.PublicKey()}},
			Data:      []byte{1},
		},
		{
			ProgramID: program,
			Accounts:  []AccountMeta{{Pubkey: acct.PublicKey(), IsWritable: true}},
			Data:      []byte{2},
		},
	}

	msg, err := compileMessage(payer.PublicKey(), make([]byte, 32), ins)
	if err != nil {
		t.Fatalf("compileMessage: %v", err)
	}

	// payer + acct + program
	if len(msg.accounts) != 3 {
		t.Fatalf("expected 3 unique accounts, got %d", len(msg.accounts))
	}

	// Merged account is writable, so only the program is readonly unsigned
	if msg.numReadonlyUnsigned != 1 {
		t.Errorf("expected 1 readonly unsigned, got %d", msg.numReadonlyUnsigned)
	}

	// Both instructions reference the same index
	if msg.compiledInstructions[0].accountIndexes[0] != msg.compiledInstructions[1].accountIndexes[0] {
		t.Error("duplicate account references must compile to the same index")
	}
}

func TestBuildTransaction_MissingSigner(t *testing.T) {
	payer, _ := GenerateKeypair()
	other, _ := GenerateKeypair()
	program := MustPublicKey(TokenProgram)

	ins := Instruction{
		ProgramID: program,
		Accounts: []AccountMeta{
			{Pubkey: other.PublicKey(), IsSigner: true},
		},
		Data: []byte{1},
	}

	if _, err := BuildTransaction(payer, testBlockhash(t), []Instruction{ins}); err == nil {
		t.Error("expected error for unsatisfied signer account")
	}
}

func TestBuildTransaction_ExtraSigner(t *testing.T) {
	payer, _ := GenerateKeypair()
	other, _ := GenerateKeypair()
	program := MustPublicKey(TokenProgram)

	ins := Instruction{
		ProgramID: program,
		Accounts: []AccountMeta{
			{Pubkey: other.PublicKey(), IsSigner: true, IsWritable: true},
		},
		Data: []byte{1},
	}

	tx, err := BuildTransaction(payer, testBlockhash(t), []Instruction{ins}, other)
	if err != nil {
		t.Fatalf("BuildTransaction: %v", err)
	}

	if tx.Bytes()[0] != 2 {
		t.Errorf("expected 2 signatures, got %d", tx.Bytes()[0])
	}
}

func TestBuildTransaction_InvalidBlockhash(t *testing.T) {
	payer, _ := GenerateKeypair()
	program := MustPublicKey(TokenProgram)

	ins := Instruction{ProgramID: program, Data: []byte{1}}

	if _, err := BuildTransaction(payer, "tooshort", []Instruction{ins}); err == nil {
		t.Error("expected error for invalid blockhash")
	}

	if _, err := BuildTransaction(payer, testBlockhash(t), nil); err == nil {
		t.Error("expected error for empty instruction list")
	}
}
