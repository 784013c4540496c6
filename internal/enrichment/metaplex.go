// Package enrichment resolves and fetches off-chain token metadata:
// the Metaplex metadata account supplies the document URI, and the
// document itself is fetched through IPFS gateway mirrors.
package enrichment

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"pumpwatch/internal/solana"
)

// Metaplex Token Metadata program ID
const metaplexProgramID = "metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s"

// Resolver reads the metadata URI for a mint from its on-chain Metaplex
// metadata account. Used when an upstream payload carries no URI.
type Resolver struct {
	rpc solana.RPCClient
}

// NewResolver creates a resolver backed by the given RPC client.
func NewResolver(rpc solana.RPCClient) *Resolver {
	return &Resolver{rpc: rpc}
}

// MetadataURI returns the off-chain document URI for a mint, or "" when
// the mint has no metadata account or the account is unparseable.
func (r *Resolver) MetadataURI(ctx context.Context, mint string) (string, error) {
	pda := DeriveMetadataPDA(mint)
	if pda == "" {
		return "", fmt.Errorf("derive metadata pda for %s", mint)
	}

	info, err := r.rpc.GetAccountInfo(ctx, pda)
	if err != nil {
		return "", fmt.Errorf("get metadata account: %w", err)
	}
	if info == nil {
		return "", nil
	}

	_, _, uri := parseMetadataAccount(info.Data)
	return uri, nil
}

// DeriveMetadataPDA derives the Metaplex metadata PDA for a given mint.
// Seeds: ["metadata", metaplex_program_id, mint]. Returns "" when the mint
// is not a valid 32-byte base58 key.
func DeriveMetadataPDA(mint string) string {
	mintBytes, err := base58.Decode(mint)
	if err != nil {
		return ""
	}
	programBytes, err := base58.Decode(metaplexProgramID)
	if err != nil {
		return ""
	}

	if len(mintBytes) != 32 || len(programBytes) != 32 {
		return ""
	}

	seeds := [][]byte{
		[]byte("metadata"),
		programBytes,
		mintBytes,
	}

	return derivePDA(seeds, programBytes)
}

// parseMetadataAccount parses a Metaplex Token Metadata account.
// Layout:
// - key: u8 (1 byte, should be 4 for MetadataV1)
// - updateAuthority: Pubkey (32 bytes)
// - mint: Pubkey (32 bytes)
// - name: String (4 + length bytes, max 32 chars)
// - symbol: String (4 + length bytes, max 10 chars)
// - uri: String (4 + length bytes, max 200 chars)
// ...and more fields
// The on-chain strings are fixed-capacity and padded with NULs.
func parseMetadataAccount(data string) (name, symbol, uri string) {
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", "", ""
	}

	// Minimum size check
	if len(decoded) < 100 {
		return "", "", ""
	}

	// Check metadata key
	if decoded[0] != 4 { // MetadataV1 key
		return "", "", ""
	}

	// Skip: key(1) + updateAuthority(32) + mint(32) = 65 bytes
	offset := 65

	name, offset, ok := readBorshString(decoded, offset, 100)
	if !ok {
		return "", "", ""
	}

	symbol, offset, ok = readBorshString(decoded, offset, 20)
	if !ok {
		return name, "", ""
	}

	uri, _, ok = readBorshString(decoded, offset, 250)
	if !ok {
		return name, symbol, ""
	}

	return name, symbol, uri
}

// readBorshString reads a borsh string (4-byte LE length + data) and trims
// NUL padding. maxLen guards against corrupted length prefixes.
func readBorshString(data []byte, offset, maxLen int) (string, int, bool) {
	if offset+4 > len(data) {
		return "", offset, false
	}
	length := int(binary.LittleEndian.Uint32(data[offset:]))
	offset += 4

	if length > maxLen || offset+length > len(data) {
		return "", offset, false
	}
	s := strings.TrimRight(string(data[offset:offset+length]), "\x00")
	return s, offset + length, true
}

// derivePDA derives a Program Derived Address using the Solana algorithm.
func derivePDA(seeds [][]byte, programID []byte) string {
	// PDA derivation algorithm:
	// 1. Concatenate all seeds with bump
	// 2. Append program ID and "ProgramDerivedAddress" marker
	// 3. SHA256 hash
	// 4. Find bump seed that results in off-curve point
	for bump := byte(255); bump > 0; bump-- {
		data := make([]byte, 0)
		for _, seed := range seeds {
			data = append(data, seed...)
		}
		data = append(data, bump)
		data = append(data, programID...)
		data = append(data, []byte("ProgramDerivedAddress")...)

		hash := sha256.Sum256(data)

		// Check if point is off the ed25519 curve
		if !isOnCurve(hash[:]) {
			return base58.Encode(hash[:])
		}
	}

	return ""
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
