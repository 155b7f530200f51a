package chain

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/provchain/provchain-core/rdf"
)

// Block is the value object of the chain package. Blocks never hold a pointer to
// another Block; the chain is the arena and blocks are addressed by Index.
type Block struct {
	Index			uint64	`json:"index"`
	Timestamp		string	`json:"timestamp"` // RFC3339
	Payload			string	`json:"payload"`
	PreviousHash		string	`json:"previous_hash"`
	ContentHash		string	`json:"content_hash"`
	ValidatorPublicKey	[]byte	`json:"validator_public_key,omitempty"` // 32 bytes, optional for genesis
	Signature		[]byte	`json:"signature,omitempty"` // 64 bytes, optional for genesis
	EncryptedPayload	[]byte	`json:"encrypted_payload,omitempty"` // opaque, present iff payload is a public placeholder
}

// GraphIRI is the named graph this block's payload was loaded into.
func (b *Block) GraphIRI() string { return rdf.BlockGraphIRI(b.Index) }

// blockHashInput concatenates the fields hashed into a non-genesis block's
// content hash: SHA256(index || timestamp ||
// canonical_graph_hash || previous_hash).
func blockHashInput(index uint64, timestamp, canonicalHash, previousHash string) []byte {
	return []byte(fmt.Sprintf("%d%s%s%s", index, timestamp, canonicalHash, previousHash))
}

// ComputeBlockHash is the non-genesis block hash formula.
func ComputeBlockHash(index uint64, timestamp, canonicalGraphHash, previousHash string) string {
	h := sha256.Sum256(blockHashInput(index, timestamp, canonicalGraphHash, previousHash))
	return hex.EncodeToString(h[:])
}

// ComputeGenesisHash is the genesis-specific formula: the canonical graph
// hash term is replaced by SHA-256 of the raw payload bytes, and
// previous_hash is the literal string "0".
func ComputeGenesisHash(index uint64, timestamp, payload string) string {
	payloadHash := sha256.Sum256([]byte(payload))
	h := sha256.Sum256(blockHashInput(index, timestamp, hex.EncodeToString(payloadHash[:]), "0"))
	return hex.EncodeToString(h[:])
}

// Sign computes b.Signature over b.ContentHash using priv, and sets
// b.ValidatorPublicKey to the corresponding public key. Genesis blocks are
// left unsigned by Chain.Append, but Sign itself has no opinion on which
// block it is called on.
func (b *Block) Sign(priv ed25519.PrivateKey) {
	b.Signature = ed25519.Sign(priv, []byte(b.ContentHash))
	b.ValidatorPublicKey = append([]byte(nil), priv.Public().(ed25519.PublicKey)...)
}

// VerifySignature reports whether b.Signature verifies against
// b.ValidatorPublicKey over b.ContentHash. A block carrying neither a
// signature nor a public key (the genesis case) is considered verified; a
// block carrying only one of the two is not.
func (b *Block) VerifySignature() bool {
	if len(b.Signature) == 0 && len(b.ValidatorPublicKey) == 0 {
		return true
	}
	if len(b.Signature) != ed25519.SignatureSize || len(b.ValidatorPublicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(b.ValidatorPublicKey, []byte(b.ContentHash), b.Signature)
}

func newTimestamp() string { return time.Now().UTC().Format(time.RFC3339) }
