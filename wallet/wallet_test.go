package wallet

import (
	"testing"
)

func TestNewParticipantPermissionMatrix(t *testing.T) {
	cases := []struct {
		typ	Type
		allowed	[]Capability
		denied	[]Capability
	}{
		{Producer, []Capability{CapProduce, CapTransfer}, []Capability{CapAudit, CapQualityTest}},
		{QualityLab, []Capability{CapQualityTest}, []Capability{CapProduce, CapTransfer}},
		{Auditor, []Capability{CapAudit}, []Capability{CapProduce}},
		{Administrator, []Capability{CapProduce, CapProcess, CapTransport, CapQualityTest, CapAudit, CapTransfer}, nil},
	}

	for _, tc := range cases {
		p := NewParticipant("x", tc.typ, "x@example.com")
		for _, c := range tc.allowed {
			if !p.HasCapability(c) {
				t.Errorf("%s: expected capability %s to be granted", tc.typ, c)
			}
		}
		for _, c := range tc.denied {
			if p.HasCapability(c) {
				t.Errorf("%s: expected capability %s to be denied", tc.typ, c)
			}
		}
	}
}

func TestRequiredCapabilityMapping(t *testing.T) {
	cases := map[string]Capability{
		"Production": CapProduce,
		"Processing": CapProcess,
		"Transport": CapTransport,
		"Quality": CapQualityTest,
		"Compliance": CapAudit,
		"Transfer": CapTransfer,
	}
	for txType, want := range cases {
		got, ok := RequiredCapability(txType)
		if !ok || got != want {
			t.Errorf("RequiredCapability(%s) = %s, %v; want %s, true", txType, got, ok, want)
		}
	}
}

func TestManagerCreateLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(dir, nil)
	if err != nil {
		t.Fatal(err)
	}

	p := NewParticipant("Acme Dairy", Producer, "ops@acme.example")
	w, err := mgr.Create(p, "correct horse battery staple")
	if err != nil {
		t.Fatal(err)
	}
	origPub := w.PublicKey()
	mgr.Unload(p.ID)

	if _, ok := mgr.Get(p.ID); ok {
		t.Fatal("expected wallet to be unloaded")
	}

	loaded, err := mgr.Load(p.ID, "correct horse battery staple")
	if err != nil {
		t.Fatalf("load with correct passphrase failed: %v", err)
	}
	if string(loaded.PublicKey()) != string(origPub) {
		t.Fatal("recovered public key does not match original")
	}
	if loaded.Participant.Type != Producer {
		t.Fatalf("recovered participant type = %s, want Producer", loaded.Participant.Type)
	}
}

func TestManagerLoadRejectsWrongPassphrase(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	p := NewParticipant("Acme Dairy", Producer, "ops@acme.example")
	if _, err := mgr.Create(p, "right-passphrase"); err != nil {
		t.Fatal(err)
	}
	mgr.Unload(p.ID)

	if _, err := mgr.Load(p.ID, "wrong-passphrase"); err == nil {
		t.Fatal("expected load with wrong passphrase to fail")
	}
}

func TestCheckCapabilityRejectsUnauthorized(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	p := NewParticipant("QA Labs", QualityLab, "qa@example.com")
	if _, err := mgr.Create(p, "pw"); err != nil {
		t.Fatal(err)
	}

	if err := mgr.CheckCapability(p.ID, "Quality"); err != nil {
		t.Fatalf("quality lab should be permitted Quality transactions: %v", err)
	}
	if err := mgr.CheckCapability(p.ID, "Transfer"); err == nil {
		t.Fatal("quality lab should not be permitted Transfer transactions")
	}
}

func TestMnemonicRoundTrip(t *testing.T) {
	p := NewParticipant("Recoverable", Producer, "r@example.com")
	w, mnemonic, err := NewWalletWithMnemonic(p, 128)
	if err != nil {
		t.Fatal(err)
	}
	recovered, err := WalletFromMnemonic(p, mnemonic)
	if err != nil {
		t.Fatal(err)
	}
	if string(w.PublicKey()) != string(recovered.PublicKey()) {
		t.Fatal("mnemonic recovery produced a different keypair")
	}
}
