// Package tx implements the transaction model and validation pipeline:
// typed transactions, UTXO-style inputs/outputs, multi-signature rules,
// and per-type business-rule validation.
package tx

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/provchain/provchain-core/pverr"
)

// Type enumerates the transaction kinds.
type Type string

const (
	Production	Type	= "Production"
	Processing	Type	= "Processing"
	Transport	Type	= "Transport"
	Quality		Type	= "Quality"
	Transfer	Type	= "Transfer"
	Environmental	Type	= "Environmental"
	Compliance	Type	= "Compliance"
	Governance	Type	= "Governance"
)

// TransactionInput references a prior output by (prev tx id, output index).
// Signature and PublicKey are present iff this specific input has been
// individually signed.
type TransactionInput struct {
	PrevTxID	string	`json:"prev_tx_id"`
	OutputIndex	uint32	`json:"output_index"`
	Signature	[]byte	`json:"signature,omitempty"`
	PublicKey	[]byte	`json:"public_key,omitempty"`
}

// TransactionOutput is a spendable UTXO-style output.
type TransactionOutput struct {
	ID		string			`json:"id"`
	Owner		string			`json:"owner"` // participant UUID
	AssetType	string			`json:"asset_type"`
	Value		float64			`json:"value"`
	Metadata	map[string]string	`json:"metadata,omitempty"`
}

// Signature is one collected signer's endorsement of the transaction hash.
type Signature struct {
	Signature	[]byte	`json:"signature"`
	PublicKey	[]byte	`json:"public_key"`
	SignerID	string	`json:"signer_id"`
	Timestamp	string	`json:"timestamp"`
}

// Metadata carries the optional domain-specific annotations a transaction may attach.
type Metadata struct {
	Location		*string			`json:"location,omitempty"`
	EnvironmentalConditions	*string			`json:"environmental_conditions,omitempty"`
	ComplianceInfo		*string			`json:"compliance_info,omitempty"`
	QualityData		*string			`json:"quality_data,omitempty"`
	CustomFields		map[string]string	`json:"custom_fields,omitempty"`
}

// Payload is the tagged union of either a raw RDF-data fragment or
// a GovernanceAction. Implemented as a small closed interface rather than
// nullable fields.
type Payload interface {
	isPayload()
}

type RDFPayload struct{ Data string }

func (RDFPayload) isPayload() {}

type GovernancePayload struct{ Action GovernanceAction }

func (GovernancePayload) isPayload() {}

// GovernanceAction is the tagged union of validator-set and configuration
// mutations a Governance transaction may carry.
type GovernanceAction interface {
	isGovernanceAction()
}

type AddValidatorAction struct{ PublicKeyHex string }

func (AddValidatorAction) isGovernanceAction() {}

type RemoveValidatorAction struct{ PublicKeyHex string }

func (RemoveValidatorAction) isGovernanceAction() {}

type UpdateConfigurationAction struct{ Key, Value string }

func (UpdateConfigurationAction) isGovernanceAction() {}

// Transaction is the full value object.
type Transaction struct {
	ID		string			`json:"id"`
	TxType		Type			`json:"tx_type"`
	Inputs		[]TransactionInput	`json:"inputs"`
	Outputs		[]TransactionOutput	`json:"outputs"`
	RDFData		string			`json:"rdf_data"`
	Signatures	[]Signature		`json:"signatures"`
	Timestamp	string			`json:"timestamp"`
	Metadata	Metadata		`json:"metadata"`
	Nonce		uint64			`json:"nonce"`
	Fee		*float64		`json:"fee,omitempty"`
	Payload		Payload			`json:"-"`
}

// New creates an unsigned transaction with a fresh UUID and nonce 0.
func New(txType Type, inputs []TransactionInput, outputs []TransactionOutput, rdfData string, metadata Metadata, payload Payload) *Transaction {
	return &Transaction{
		ID: uuid.NewString(),
		TxType: txType,
		Inputs: inputs,
		Outputs: outputs,
		RDFData: rdfData,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Metadata: metadata,
		Nonce: 0,
		Payload: payload,
	}
}

// bareInput is the canonical projection required for hashing: inputs
// stripped of their per-input Signature/PublicKey so that attaching a
// signature does not change the hash being signed.
type bareInput struct {
	PrevTxID	string	`json:"prev_tx_id"`
	OutputIndex	uint32	`json:"output_index"`
}

// Hash computes the transaction hash used for signing and verification.
// encoding/json deterministically sorts map keys and preserves
// struct field declaration order, which is what "canonical, key-sorted
// form" requires here — no bespoke canonical-JSON encoder is needed.
func (t *Transaction) Hash() [32]byte {
	h := sha256.New()
	h.Write([]byte(t.ID))

	typeJSON, _ := json.Marshal(t.TxType)
	h.Write(typeJSON)

	bare := make([]bareInput, len(t.Inputs))
	for i, in := range t.Inputs {
		bare[i] = bareInput{PrevTxID: in.PrevTxID, OutputIndex: in.OutputIndex}
	}
	inputsJSON, _ := json.Marshal(bare)
	h.Write(inputsJSON)

	outputsJSON, _ := json.Marshal(t.Outputs)
	h.Write(outputsJSON)

	h.Write([]byte(t.RDFData))
	h.Write([]byte(t.Timestamp))

	metaJSON, _ := json.Marshal(t.Metadata)
	h.Write(metaJSON)

	var nonceBuf [8]byte
	binary.LittleEndian.PutUint64(nonceBuf[:], t.Nonce)
	h.Write(nonceBuf[:])

	if t.Fee != nil {
		var feeBuf [8]byte
		binary.LittleEndian.PutUint64(feeBuf[:], math.Float64bits(*t.Fee))
		h.Write(feeBuf[:])
	}

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// HashHex is Hash rendered as a hex string. The UTXO set and transaction
// index are keyed by transaction ID, not by this hash.
func (t *Transaction) HashHex() string {
	h := t.Hash()
	return hex.EncodeToString(h[:])
}

// Sign appends a signature from signer over the transaction hash, preserving
// the order in which signatures are collected.
func (t *Transaction) Sign(signingKey ed25519.PrivateKey, signerID string) {
	h := t.Hash()
	sig := ed25519.Sign(signingKey, h[:])
	t.Signatures = append(t.Signatures, Signature{
		Signature: sig,
		PublicKey: append([]byte(nil), signingKey.Public().(ed25519.PublicKey)...),
		SignerID: signerID,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// RequiredSignatures implements the multi-signature quorum table.
func (t *Transaction) RequiredSignatures() int {
	switch t.TxType {
	case Compliance:
		return 2
	case Transfer:
		for _, o := range t.Outputs {
			if o.Value > 1000.0 {
				return 2
			}
		}
		return 1
	case Quality:
		if t.Metadata.QualityData != nil {
			upper := strings.ToUpper(*t.Metadata.QualityData)
			if strings.Contains(upper, "REGULATORY") || strings.Contains(upper, "COMPLIANCE") || strings.Contains(upper, "CERTIFICATION") {
				return 2
			}
		}
		return 1
	default:
		return 1
	}
}

// Validate runs the structural, signature, quorum and per-type business
// rule checks that can be checked without external UTXO
// context. Transfer's input/output value-conservation rule additionally
// requires the live UTXO set and is checked at the ledger layer
// (see package ledger), not here.
func (t *Transaction) Validate() error {
	if t.ID == "" {
		return pverr.New(pverr.Validation, "transaction id must not be empty")
	}
	if t.TxType != Governance && t.RDFData == "" {
		return pverr.New(pverr.Validation, "rdf_data is required for non-governance transactions")
	}

	h := t.Hash()
	for _, sig := range t.Signatures {
		if len(sig.PublicKey) != ed25519.PublicKeySize || len(sig.Signature) != ed25519.SignatureSize {
			return pverr.New(pverr.Validation, "malformed signature")
		}
		if !ed25519.Verify(sig.PublicKey, h[:], sig.Signature) {
			return pverr.New(pverr.Validation, fmt.Sprintf("signature from %s does not verify", sig.SignerID))
		}
	}

	if len(t.Signatures) < t.RequiredSignatures() {
		return pverr.New(pverr.Validation, fmt.Sprintf("quorum not met: have %d signatures, need %d", len(t.Signatures), t.RequiredSignatures()))
	}

	switch t.TxType {
	case Processing:
		if len(t.Inputs) == 0 || len(t.Outputs) == 0 {
			return pverr.New(pverr.Validation, "processing transaction requires at least one input and one output")
		}
	case Production:
		if len(t.Outputs) == 0 || len(t.Inputs) != 0 {
			return pverr.New(pverr.Validation, "production transaction requires outputs and no inputs")
		}
	case Quality:
		if t.Metadata.QualityData == nil {
			return pverr.New(pverr.Validation, "quality transaction requires quality_data")
		}
	case Compliance:
		if t.Metadata.ComplianceInfo == nil {
			return pverr.New(pverr.Validation, "compliance transaction requires compliance_info")
		}
	case Transfer:
		// Input values are not carried on the transaction itself (UTXO-style
		// references only); the ledger checks value conservation against the
		// live UTXO set at admission time.
		if len(t.Outputs) == 0 {
			return pverr.New(pverr.Validation, "transfer transaction requires at least one output")
		}
	}
	return nil
}

// OutputIDOf returns the UTXO key "{tx_id}:{output_index}" for output i of
// transaction txID
func OutputIDOf(txID string, index int) string {
	return fmt.Sprintf("%s:%d", txID, index)
}
