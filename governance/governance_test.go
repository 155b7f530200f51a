package governance

import (
	"crypto/ed25519"
	"encoding/hex"
	"testing"

	"github.com/provchain/provchain-core/tx"
)

func signedGovTx(t *testing.T, action tx.GovernanceAction, numSigners int) (*tx.Transaction, []ed25519.PrivateKey) {
	t.Helper()
	txn := tx.New(tx.Governance, nil, nil, "", tx.Metadata{}, tx.GovernancePayload{Action: action})
	var privs []ed25519.PrivateKey
	for i := 0; i < numSigners; i++ {
		_, priv, err := ed25519.GenerateKey(nil)
		if err != nil {
			t.Fatal(err)
		}
		txn.Sign(priv, "signer")
		privs = append(privs, priv)
	}
	return txn, privs
}

func TestBootstrapAddValidatorAcceptsAnySignerCount(t *testing.T) {
	vs := NewValidatorSet(1, 100)
	g := New(vs, nil, nil)

	_, priv, _ := ed25519.GenerateKey(nil)
	newKeyHex := hex.EncodeToString(priv.Public().(ed25519.PublicKey))

	txn, _ := signedGovTx(t, tx.AddValidatorAction{PublicKeyHex: newKeyHex}, 1)
	if err := g.Process(txn); err != nil {
		t.Fatalf("bootstrap add should succeed with one signer: %v", err)
	}
	if !vs.IsMember(newKeyHex) {
		t.Fatal("expected validator to be added")
	}
}

func TestAddValidatorRequiresMajority(t *testing.T) {
	vs := NewValidatorSet(1, 100)
	g := New(vs, nil, nil)

	for i := 0; i < 3; i++ {
		_, priv, _ := ed25519.GenerateKey(nil)
		vs.add(hex.EncodeToString(priv.Public().(ed25519.PublicKey)))
	}

	_, newPriv, _ := ed25519.GenerateKey(nil)
	newKeyHex := hex.EncodeToString(newPriv.Public().(ed25519.PublicKey))

	// Only one signature, from a non-member: below the majority-of-3 (2) requirement.
	txn, _ := signedGovTx(t, tx.AddValidatorAction{PublicKeyHex: newKeyHex}, 1)
	if err := g.Process(txn); err == nil {
		t.Fatal("expected quorum failure with a single non-member signer against 3 existing validators")
	}
}

func TestAddValidatorSucceedsWithMajority(t *testing.T) {
	vs := NewValidatorSet(1, 100)
	g := New(vs, nil, nil)

	var memberPrivs []ed25519.PrivateKey
	for i := 0; i < 3; i++ {
		_, priv, err := ed25519.GenerateKey(nil)
		if err != nil {
			t.Fatal(err)
		}
		vs.add(hex.EncodeToString(priv.Public().(ed25519.PublicKey)))
		memberPrivs = append(memberPrivs, priv)
	}

	_, newPriv, _ := ed25519.GenerateKey(nil)
	newKeyHex := hex.EncodeToString(newPriv.Public().(ed25519.PublicKey))

	txn := tx.New(tx.Governance, nil, nil, "", tx.Metadata{}, tx.GovernancePayload{Action: tx.AddValidatorAction{PublicKeyHex: newKeyHex}})
	txn.Sign(memberPrivs[0], "k1")
	txn.Sign(memberPrivs[1], "k2")

	if err := g.Process(txn); err != nil {
		t.Fatalf("two member signatures meet the majority-of-3 requirement: %v", err)
	}
	if !vs.IsMember(newKeyHex) || vs.Len() != 4 {
		t.Fatalf("expected validator set of 4 including the new key, got %d", vs.Len())
	}
}

func TestRemoveValidatorRespectsMinimum(t *testing.T) {
	vs := NewValidatorSet(1, 100)
	g := New(vs, nil, nil)

	_, priv, _ := ed25519.GenerateKey(nil)
	onlyKeyHex := hex.EncodeToString(priv.Public().(ed25519.PublicKey))
	vs.add(onlyKeyHex)

	txn := tx.New(tx.Governance, nil, nil, "", tx.Metadata{}, tx.GovernancePayload{Action: tx.RemoveValidatorAction{PublicKeyHex: onlyKeyHex}})
	txn.Sign(priv, "signer")

	if err := g.Process(txn); err == nil {
		t.Fatal("expected removal of the sole validator to be rejected by the minimum-size rule")
	}
}

func TestNonGovernanceTransactionIsNoOp(t *testing.T) {
	vs := NewValidatorSet(1, 100)
	g := New(vs, nil, nil)
	txn := tx.New(tx.Production, nil, []tx.TransactionOutput{{ID: "o0", Owner: "u1", AssetType: "milk", Value: 1}}, "<urn:a> <urn:b> <urn:c> .", tx.Metadata{}, tx.RDFPayload{Data: "x"})
	if err := g.Process(txn); err != nil {
		t.Fatalf("expected no-op for non-governance transaction, got %v", err)
	}
}
