package enrichment

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"testing"

	"github.com/mr-tron/base58"

	"pumpwatch/internal/solana"
)

// Well-known mainnet mints, valid 32-byte base58 keys.
const (
	wsolMint = "So11111111111111111111111111111111111111112"
	usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

func TestDeriveMetadataPDA(t *testing.T) {
	pda := DeriveMetadataPDA(wsolMint)
	if pda == "" {
		t.Fatal("expected PDA, got empty string")
	}

	decoded, err := base58.Decode(pda)
	if err != nil {
		t.Fatalf("PDA is not valid base58: %v", err)
	}
	if len(decoded) != 32 {
		t.Errorf("expected 32-byte PDA, got %d", len(decoded))
	}

	// PDAs are, by construction, off the ed25519 curve.
	if isOnCurve(decoded) {
		t.Error("PDA must be off-curve")
	}

	// Derivation is deterministic.
	if again := DeriveMetadataPDA(wsolMint); again != pda {
		t.Errorf("derivation not deterministic: %s != %s", again, pda)
	}

	// Different mints produce different PDAs.
	if other := DeriveMetadataPDA(usdcMint); other == pda {
		t.Error("different mints must produce different PDAs")
	}
}

func TestDeriveMetadataPDA_InvalidMint(t *testing.T) {
	cases := []string{
		"",
		"not-base58-0OIl",
		"abc", // valid base58 but not 32 bytes
	}
	for _, mint := range cases {
		if pda := DeriveMetadataPDA(mint); pda != "" {
			t.Errorf("mint %q: expected empty PDA, got %s", mint, pda)
		}
	}
}

// appendBorshString appends a fixed-capacity borsh string the way the
// on-chain account stores it: 4-byte LE length, then NUL-padded data.
func appendBorshString(buf []byte, s string, capacity int) []byte {
	padded := make([]byte, capacity)
	copy(padded, s)
	var lenBytes [4]byte
	binary.LittleEndian.PutUint32(lenBytes[:], uint32(capacity))
	buf = append(buf, lenBytes[:]...)
	return append(buf, padded...)
}

func buildMetadataAccount(name, symbol, uri string) string {
	buf := []byte{4}                       // MetadataV1 key
	buf = append(buf, make([]byte, 64)...) // updateAuthority + mint
	buf = appendBorshString(buf, name, 32)
	buf = appendBorshString(buf, symbol, 10)
	buf = appendBorshString(buf, uri, 200)
	return base64.StdEncoding.EncodeToString(buf)
}

type fakeRPC struct {
	accounts map[string]*solana.AccountInfo
	err      error
}

func (f *fakeRPC) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.accounts[pubkey], nil
}

func TestResolver_MetadataURI(t *testing.T) {
	pda := DeriveMetadataPDA(wsolMint)

	rpc := &fakeRPC{accounts: map[string]*solana.AccountInfo{
		pda: {Data: buildMetadataAccount("Wrapped SOL", "SOL", "ipfs://QmMetaDoc")},
	}}

	resolver := NewResolver(rpc)
	uri, err := resolver.MetadataURI(context.Background(), wsolMint)
	if err != nil {
		t.Fatalf("MetadataURI: %v", err)
	}

	if uri != "ipfs://QmMetaDoc" {
		t.Errorf("expected ipfs://QmMetaDoc, got %q", uri)
	}
}

func TestResolver_MetadataURI_NoAccount(t *testing.T) {
	resolver := NewResolver(&fakeRPC{accounts: map[string]*solana.AccountInfo{}})

	uri, err := resolver.MetadataURI(context.Background(), wsolMint)
	if err != nil {
		t.Fatalf("MetadataURI: %v", err)
	}
	if uri != "" {
		t.Errorf("expected empty URI for missing account, got %q", uri)
	}
}

func TestResolver_MetadataURI_InvalidMint(t *testing.T) {
	resolver := NewResolver(&fakeRPC{})

	if _, err := resolver.MetadataURI(context.Background(), "not-a-mint"); err == nil {
		t.Fatal("expected error for underivable mint")
	}
}

func TestParseMetadataAccount(t *testing.T) {
	name, symbol, uri := parseMetadataAccount(buildMetadataAccount("Test Token", "TST", "https://example.org/meta.json"))

	if name != "Test Token" {
		t.Errorf("expected name Test Token, got %q", name)
	}
	if symbol != "TST" {
		t.Errorf("expected symbol TST, got %q", symbol)
	}
	if uri != "https://example.org/meta.json" {
		t.Errorf("unexpected uri: %q", uri)
	}
}

func TestParseMetadataAccount_Garbage(t *testing.T) {
	cases := map[string]string{
		"not base64":  "!!!",
		"too short":   base64.StdEncoding.EncodeToString([]byte{4, 1, 2, 3}),
		"wrong key":   base64.StdEncoding.EncodeToString(append([]byte{7}, make([]byte, 200)...)),
		"zero length": base64.StdEncoding.EncodeToString(make([]byte, 300)),
	}

	for label, data := range cases {
		if _, _, uri := parseMetadataAccount(data); uri != "" {
			t.Errorf("%s: expected empty uri, got %q", label, uri)
		}
	}
}
