package wallet

// Wallet implementation: Ed25519 keypair custody for a Participant.
//
// Unlike an HD wallet with derivable child addresses, a Wallet here owns
// exactly one signing keypair for exactly one Participant: the
// supply-chain domain identifies actors by Participant UUID, not by
// derived addresses, so there is no account/index derivation tree.
//
// Import hygiene: wallet depends only on crypto, uuid, bip39, logrus and
// pverr — it never imports chain, ledger or governance.

import (
	"crypto/ed25519"
	crand "crypto/rand"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	bip39 "github.com/tyler-smith/go-bip39"
)

func SetWalletLogger(l *log.Logger) { globalLogger = l }

var globalLogger = log.New()

// Wallet owns a Participant, its Ed25519 signing key, and an in-memory map
// of shared secrets keyed by key-id. The signing key never
// leaves the process other than as a WalletManager-encrypted blob.
type Wallet struct {
	Participant	*Participant
	signingKey	ed25519.PrivateKey
	publicKey	ed25519.PublicKey
	sharedSecrets	map[string][]byte
}

// NewWallet generates a fresh Ed25519 keypair for p.
func NewWallet(p *Participant) (*Wallet, error) {
	pub, priv, err := ed25519.GenerateKey(crand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	globalLogger.Infof("wallet: created keypair for participant %s (%s)", p.ID, p.Type)
	return &Wallet{
		Participant: p,
		signingKey: priv,
		publicKey: pub,
		sharedSecrets: make(map[string][]byte),
	}, nil
}

// NewWalletWithMnemonic generates a fresh keypair deterministically from a
// BIP-39 recovery phrase, minus the account/index derivation tree this
// domain has no use for.
func NewWalletWithMnemonic(p *Participant, entropyBits int) (w *Wallet, mnemonic string, err error) {
	if entropyBits != 128 && entropyBits != 256 {
		return nil, "", fmt.Errorf("unsupported entropy size %d", entropyBits)
	}
	entropy, err := bip39.NewEntropy(entropyBits)
	if err != nil {
		return nil, "", fmt.Errorf("entropy: %w", err)
	}
	mnemonic, err = bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, "", fmt.Errorf("mnemonic: %w", err)
	}
	seed := bip39.NewSeed(mnemonic, "")
	priv := ed25519.NewKeyFromSeed(seed[:ed25519.SeedSize])
	pub := priv.Public().(ed25519.PublicKey)
	globalLogger.Infof("wallet: created mnemonic-derived keypair for participant %s", p.ID)
	return &Wallet{Participant: p, signingKey: priv, publicKey: pub, sharedSecrets: make(map[string][]byte)}, mnemonic, nil
}

// WalletFromMnemonic recovers a wallet's keypair from an existing phrase.
func WalletFromMnemonic(p *Participant, mnemonic string) (*Wallet, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errors.New("invalid mnemonic checksum")
	}
	seed := bip39.NewSeed(mnemonic, "")
	priv := ed25519.NewKeyFromSeed(seed[:ed25519.SeedSize])
	pub := priv.Public().(ed25519.PublicKey)
	return &Wallet{Participant: p, signingKey: priv, publicKey: pub, sharedSecrets: make(map[string][]byte)}, nil
}

// PublicKey returns a copy of the wallet's Ed25519 public key.
func (w *Wallet) PublicKey() ed25519.PublicKey {
	return append(ed25519.PublicKey(nil), w.publicKey...)
}

// SigningKey exposes the private key for signing operations performed in
// the same goroutine that loaded the wallet.
func (w *Wallet) SigningKey() ed25519.PrivateKey {
	return w.signingKey
}

// Sign produces the wallet's validator signature over a block content hash,
// satisfying the chain package's Signer contract without importing it.
func (w *Wallet) Sign(contentHash string) (pubKey, signature []byte, err error) {
	if len(w.signingKey) != ed25519.PrivateKeySize {
		return nil, nil, errors.New("wallet has no usable signing key")
	}
	sig := ed25519.Sign(w.signingKey, []byte(contentHash))
	return w.PublicKey(), sig, nil
}

// StoreSharedSecret records a symmetric secret under keyID, e.g. for a
// bilateral channel negotiated out-of-band with another participant.
func (w *Wallet) StoreSharedSecret(keyID string, secret []byte) {
	w.sharedSecrets[keyID] = append([]byte(nil), secret...)
}

// SharedSecret returns the secret stored under keyID, if any.
func (w *Wallet) SharedSecret(keyID string) ([]byte, bool) {
	s, ok := w.sharedSecrets[keyID]
	return s, ok
}

// Wipe zeroes the in-memory signing key and shared secrets. Called by
// Manager.Unload when a wallet is unloaded.
func (w *Wallet) Wipe() {
	for i := range w.signingKey {
		w.signingKey[i] = 0
	}
	for k, s := range w.sharedSecrets {
		for i := range s {
			s[i] = 0
		}
		delete(w.sharedSecrets, k)
	}
}
