package ledger

import (
	"crypto/ed25519"
	"encoding/hex"
	"testing"

	"github.com/provchain/provchain-core/domain"
	"github.com/provchain/provchain-core/governance"
	"github.com/provchain/provchain-core/tx"
	"github.com/provchain/provchain-core/wallet"
)

func newTestLedger(t *testing.T) (*TransactionBlockchain, *wallet.Manager) {
	t.Helper()
	mgr, err := wallet.NewManager(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	vs := governance.NewValidatorSet(1, 100)
	gov := governance.New(vs, nil, nil)
	reg := domain.NewRegistry()

	lb := New(Config{
		PoolMaxSize: 100,
		MaxTransactionsPerBlock: 10,
		Wallets: mgr,
		Governance: gov,
		Domains: reg,
	})
	return lb, mgr
}

func mkProductionTx(t *testing.T, mgr *wallet.Manager, participantID string, priv ed25519.PrivateKey) *tx.Transaction {
	t.Helper()
	txn := tx.New(tx.Production, nil, []tx.TransactionOutput{{ID: "o0", Owner: participantID, AssetType: "milk", Value: 10}},
		"<urn:batch1> <urn:hasOwner> <urn:acme> .", tx.Metadata{}, tx.RDFPayload{Data: "x"})
	txn.Sign(priv, participantID)
	return txn
}

func TestSubmitAndCreateBlock(t *testing.T) {
	lb, mgr := newTestLedger(t)

	p := wallet.NewParticipant("Acme Farm", wallet.Producer, "farm@example.com")
	w, err := mgr.Create(p, "pw")
	if err != nil {
		t.Fatal(err)
	}

	txn := mkProductionTx(t, mgr, p.ID, w.SigningKey())
	if err := lb.Submit(txn); err != nil {
		t.Fatalf("expected submit to succeed: %v", err)
	}
	if lb.PoolLen() != 1 {
		t.Fatalf("expected pool len 1, got %d", lb.PoolLen())
	}

	block, err := lb.CreateBlock(10)
	if err != nil {
		t.Fatal(err)
	}
	if block == nil {
		t.Fatal("expected a block to be created")
	}
	if block.Index != 1 {
		t.Fatalf("expected first sealed block at index 1 above genesis, got %d", block.Index)
	}
	if lb.Chain().Len() != 2 {
		t.Fatalf("expected chain length 2, got %d", lb.Chain().Len())
	}
	if lb.PoolLen() != 0 {
		t.Fatalf("expected pool drained after block creation, got %d", lb.PoolLen())
	}

	loc, ok := lb.Locate(txn.ID)
	if !ok || loc.BlockIndex != 1 || loc.TxIndex != 0 {
		t.Fatalf("expected tx to be indexed at (1, 0), got %+v, %v", loc, ok)
	}

	if _, ok := lb.UTXOValue(tx.OutputIDOf(txn.ID, 0)); !ok {
		t.Fatal("expected output to be present in the UTXO set")
	}

	if result := lb.Chain().Validate(); !result.Valid {
		t.Fatalf("expected chain to validate after sealing, got %+v", result)
	}
}

func TestCreateBlockSignsWithProposer(t *testing.T) {
	mgr, err := wallet.NewManager(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	validator := wallet.NewParticipant("Validator One", wallet.Administrator, "v1@example.com")
	validatorWallet, err := mgr.Create(validator, "pw")
	if err != nil {
		t.Fatal(err)
	}

	lb := New(Config{
		PoolMaxSize: 100,
		MaxTransactionsPerBlock: 10,
		Wallets: mgr,
		Governance: governance.New(governance.NewValidatorSet(1, 100), nil, nil),
		Domains: domain.NewRegistry(),
		Proposer: validatorWallet,
	})

	txn := mkProductionTx(t, mgr, validator.ID, validatorWallet.SigningKey())
	if err := lb.Submit(txn); err != nil {
		t.Fatal(err)
	}

	block, err := lb.CreateBlock(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(block.Signature) == 0 {
		t.Fatal("expected sealed block to carry the proposer's signature")
	}
	if !block.VerifySignature() {
		t.Fatal("expected the proposer's block signature to verify")
	}
	if string(block.ValidatorPublicKey) != string(validatorWallet.PublicKey()) {
		t.Fatal("block's validator public key does not match the proposer wallet")
	}
}

func TestSubmitRejectsUnauthorizedCapability(t *testing.T) {
	lb, mgr := newTestLedger(t)

	p := wallet.NewParticipant("QA Labs", wallet.QualityLab, "qa@example.com")
	w, err := mgr.Create(p, "pw")
	if err != nil {
		t.Fatal(err)
	}

	// A Production transaction signed by a QualityLab participant, who lacks
	// the `produce` capability.
	txn := mkProductionTx(t, mgr, p.ID, w.SigningKey())
	if err := lb.Submit(txn); err == nil {
		t.Fatal("expected submit to reject a QualityLab participant producing goods")
	}
}

func TestCreateBlockOnEmptyPoolReturnsNil(t *testing.T) {
	lb, _ := newTestLedger(t)
	block, err := lb.CreateBlock(10)
	if err != nil {
		t.Fatal(err)
	}
	if block != nil {
		t.Fatal("expected nil block when pool is empty")
	}
}

func TestSubmitRejectsTransferOfUnknownOutput(t *testing.T) {
	lb, mgr := newTestLedger(t)

	p := wallet.NewParticipant("Acme Farm", wallet.Producer, "farm@example.com")
	w, err := mgr.Create(p, "pw")
	if err != nil {
		t.Fatal(err)
	}

	txn := tx.New(tx.Transfer, []tx.TransactionInput{{PrevTxID: "nonexistent", OutputIndex: 0}},
		[]tx.TransactionOutput{{ID: "o0", Owner: p.ID, AssetType: "milk", Value: 10}},
		"<urn:a> <urn:b> <urn:c> .", tx.Metadata{}, nil)
	txn.Sign(w.SigningKey(), p.ID)

	if err := lb.Submit(txn); err == nil {
		t.Fatal("expected submit to reject a transfer referencing an unknown UTXO")
	}
}

func TestTransferConservesUTXOValue(t *testing.T) {
	lb, mgr := newTestLedger(t)

	producer := wallet.NewParticipant("Acme Farm", wallet.Producer, "farm@example.com")
	producerWallet, err := mgr.Create(producer, "pw")
	if err != nil {
		t.Fatal(err)
	}
	retailer := wallet.NewParticipant("Corner Shop", wallet.Retailer, "shop@example.com")
	if _, err := mgr.Create(retailer, "pw"); err != nil {
		t.Fatal(err)
	}

	prodTxn := tx.New(tx.Production, nil,
		[]tx.TransactionOutput{{ID: "MILK-001:0", Owner: producer.ID, AssetType: "raw_material_batch", Value: 1000.0, Metadata: map[string]string{"batch_id": "MILK-001"}}},
		"<urn:batchMILK-001> <urn:producedBy> <urn:acme> .", tx.Metadata{}, tx.RDFPayload{Data: "x"})
	prodTxn.Sign(producerWallet.SigningKey(), producer.ID)
	if err := lb.Submit(prodTxn); err != nil {
		t.Fatal(err)
	}
	if _, err := lb.CreateBlock(10); err != nil {
		t.Fatal(err)
	}

	sumUTXO := func() float64 {
		total := 0.0
		if o, ok := lb.UTXOValue(tx.OutputIDOf(prodTxn.ID, 0)); ok {
			total += o.Value
		}
		return total
	}
	before := sumUTXO()

	transferTxn := tx.New(tx.Transfer,
		[]tx.TransactionInput{{PrevTxID: prodTxn.ID, OutputIndex: 0}},
		[]tx.TransactionOutput{{ID: "MILK-001:1", Owner: retailer.ID, AssetType: "raw_material_batch", Value: 1000.0}},
		"<urn:batchMILK-001> <urn:transferredTo> <urn:shop> .", tx.Metadata{}, nil)
	transferTxn.Sign(producerWallet.SigningKey(), producer.ID)
	if err := lb.Submit(transferTxn); err != nil {
		t.Fatalf("expected balanced transfer to be admitted: %v", err)
	}
	if _, err := lb.CreateBlock(10); err != nil {
		t.Fatal(err)
	}

	if _, ok := lb.UTXOValue(tx.OutputIDOf(prodTxn.ID, 0)); ok {
		t.Fatal("expected the consumed production output to leave the UTXO set")
	}
	out, ok := lb.UTXOValue(tx.OutputIDOf(transferTxn.ID, 0))
	if !ok {
		t.Fatal("expected the transfer output to enter the UTXO set")
	}
	if diff := out.Value - before; diff > 1e-3 || diff < -1e-3 {
		t.Fatalf("transfer changed total UTXO value by %f", diff)
	}
	if out.Owner != retailer.ID {
		t.Fatalf("transferred output owned by %s, want %s", out.Owner, retailer.ID)
	}
}

func TestSubmitQueuesGovernanceWithoutMutatingValidatorSetUntilSealed(t *testing.T) {
	mgr, err := wallet.NewManager(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	vs := governance.NewValidatorSet(1, 100)
	gov := governance.New(vs, nil, nil)
	lb := New(Config{PoolMaxSize: 100, MaxTransactionsPerBlock: 10, Wallets: mgr, Governance: gov, Domains: domain.NewRegistry()})

	admin := wallet.NewParticipant("Root Admin", wallet.Administrator, "admin@example.com")
	adminWallet, err := mgr.Create(admin, "pw")
	if err != nil {
		t.Fatal(err)
	}

	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	newKeyHex := hex.EncodeToString(priv.Public().(ed25519.PublicKey))

	govTxn := tx.New(tx.Governance, nil, nil, "", tx.Metadata{}, tx.GovernancePayload{Action: tx.AddValidatorAction{PublicKeyHex: newKeyHex}})
	govTxn.Sign(adminWallet.SigningKey(), admin.ID)

	if err := lb.Submit(govTxn); err != nil {
		t.Fatalf("expected bootstrap add-validator to be admitted: %v", err)
	}
	if vs.IsMember(newKeyHex) {
		t.Fatal("validator set must not be mutated at Submit time, only once the transaction is sealed")
	}

	block, err := lb.CreateBlock(10)
	if err != nil {
		t.Fatal(err)
	}
	if block == nil {
		t.Fatal("expected a block to be created")
	}
	if !vs.IsMember(newKeyHex) {
		t.Fatal("expected validator set mutation to apply once the governance transaction is sealed into a block")
	}
}

func TestGovernanceTransactionEvictedFromPoolNeverMutatesValidatorSet(t *testing.T) {
	mgr, err := wallet.NewManager(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	vs := governance.NewValidatorSet(1, 100)
	gov := governance.New(vs, nil, nil)
	lb := New(Config{PoolMaxSize: 1, MaxTransactionsPerBlock: 10, Wallets: mgr, Governance: gov, Domains: domain.NewRegistry()})

	admin := wallet.NewParticipant("Root Admin", wallet.Administrator, "admin@example.com")
	adminWallet, err := mgr.Create(admin, "pw")
	if err != nil {
		t.Fatal(err)
	}

	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	newKeyHex := hex.EncodeToString(priv.Public().(ed25519.PublicKey))

	govTxn := tx.New(tx.Governance, nil, nil, "", tx.Metadata{}, tx.GovernancePayload{Action: tx.AddValidatorAction{PublicKeyHex: newKeyHex}})
	govTxn.Sign(adminWallet.SigningKey(), admin.ID)
	if err := lb.Submit(govTxn); err != nil {
		t.Fatalf("expected bootstrap add-validator to be admitted: %v", err)
	}

	p := wallet.NewParticipant("Acme Farm", wallet.Producer, "farm@example.com")
	w, err := mgr.Create(p, "pw")
	if err != nil {
		t.Fatal(err)
	}
	otherTxn := mkProductionTx(t, mgr, p.ID, w.SigningKey())
	if err := lb.Submit(otherTxn); err != nil {
		t.Fatalf("expected second submit to succeed and evict the pooled governance tx: %v", err)
	}
	if lb.PoolLen() != 1 {
		t.Fatalf("expected bounded pool to hold exactly 1 transaction after eviction, got %d", lb.PoolLen())
	}

	block, err := lb.CreateBlock(10)
	if err != nil {
		t.Fatal(err)
	}
	if block == nil {
		t.Fatal("expected a block to be created from the surviving transaction")
	}
	if vs.IsMember(newKeyHex) {
		t.Fatal("a governance transaction evicted from the pool before sealing must never mutate the validator set")
	}
}
