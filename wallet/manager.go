package wallet

import (
	"crypto/ed25519"
	crand "crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"

	"github.com/provchain/provchain-core/pverr"
)

const (
	scryptN		= 1 << 15
	scryptR		= 8
	scryptP		= 1
	scryptKeyLen	= 32
	saltSize	= 16
	nonceSize	= 24
)

// walletFile is the on-disk layout of a {participant_id}.wallet file: the
// Participant and public key in the clear, the Ed25519 seed encrypted at
// rest behind a passphrase-derived key.
type walletFile struct {
	Participant	*Participant	`json:"participant"`
	PublicKey	[]byte		`json:"public_key"`
	Salt		[]byte		`json:"salt"`
	Nonce		[]byte		`json:"nonce"`
	EncryptedSeed	[]byte		`json:"encrypted_seed"`
}

// Manager owns the directory of wallet files and the currently-loaded,
// in-memory wallets. A loaded wallet, signing key included, stays in memory
// until Unload wipes it.
type Manager struct {
	mu	sync.Mutex
	dir	string
	loaded	map[string]*Wallet	// participant id -> wallet
	logger	*log.Logger
}

// NewManager constructs a Manager rooted at dir, creating it if absent.
func NewManager(dir string, lg *log.Logger) (*Manager, error) {
	if lg == nil {
		lg = log.New()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, pverr.Wrap(pverr.Store, "create wallet directory", err)
	}
	return &Manager{dir: dir, loaded: make(map[string]*Wallet), logger: lg}, nil
}

func (m *Manager) path(participantID string) string {
	return filepath.Join(m.dir, participantID+".wallet")
}

// Create generates a fresh wallet for p, persists it encrypted under
// passphrase, and keeps it loaded in memory.
func (m *Manager) Create(p *Participant, passphrase string) (*Wallet, error) {
	w, err := NewWallet(p)
	if err != nil {
		return nil, err
	}
	if err := m.persist(w, passphrase); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.loaded[p.ID] = w
	m.mu.Unlock()
	return w, nil
}

func (m *Manager) persist(w *Wallet, passphrase string) error {
	salt := make([]byte, saltSize)
	if _, err := crand.Read(salt); err != nil {
		return pverr.Wrap(pverr.Store, "generate salt", err)
	}
	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return pverr.Wrap(pverr.Store, "derive encryption key", err)
	}
	var nonce [nonceSize]byte
	if _, err := crand.Read(nonce[:]); err != nil {
		return pverr.Wrap(pverr.Store, "generate nonce", err)
	}
	var secretKey [32]byte
	copy(secretKey[:], key)

	seed := w.signingKey.Seed()
	encrypted := secretbox.Seal(nil, seed, &nonce, &secretKey)

	wf := walletFile{
		Participant: w.Participant,
		PublicKey: w.PublicKey(),
		Salt: salt,
		Nonce: nonce[:],
		EncryptedSeed: encrypted,
	}
	data, err := json.MarshalIndent(wf, "", " ")
	if err != nil {
		return pverr.Wrap(pverr.Store, "marshal wallet file", err)
	}
	if err := os.WriteFile(m.path(w.Participant.ID), data, 0o600); err != nil {
		return pverr.Wrap(pverr.Store, "write wallet file", err)
	}
	m.logger.Infof("wallet: persisted encrypted wallet for participant %s", w.Participant.ID)
	return nil
}

// Load reads and decrypts the wallet file for participantID, populating
// the in-memory signing key.
func (m *Manager) Load(participantID, passphrase string) (*Wallet, error) {
	m.mu.Lock()
	if w, ok := m.loaded[participantID]; ok {
		m.mu.Unlock()
		return w, nil
	}
	m.mu.Unlock()

	raw, err := os.ReadFile(m.path(participantID))
	if err != nil {
		return nil, pverr.Wrap(pverr.Store, "read wallet file", err)
	}
	var wf walletFile
	if err := json.Unmarshal(raw, &wf); err != nil {
		return nil, pverr.Wrap(pverr.Store, "unmarshal wallet file", err)
	}

	key, err := scrypt.Key([]byte(passphrase), wf.Salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, pverr.Wrap(pverr.Store, "derive decryption key", err)
	}
	var secretKey [32]byte
	copy(secretKey[:], key)
	var nonce [nonceSize]byte
	copy(nonce[:], wf.Nonce)

	seed, ok := secretbox.Open(nil, wf.EncryptedSeed, &nonce, &secretKey)
	if !ok {
		return nil, pverr.New(pverr.Permission, "incorrect passphrase or corrupted wallet file")
	}

	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	if string(pub) != string(wf.PublicKey) {
		return nil, pverr.New(pverr.Validation, "recovered public key does not match wallet file")
	}

	w := &Wallet{
		Participant: wf.Participant,
		signingKey: priv,
		publicKey: pub,
		sharedSecrets: make(map[string][]byte),
	}

	m.mu.Lock()
	m.loaded[participantID] = w
	m.mu.Unlock()
	m.logger.Infof("wallet: loaded wallet for participant %s", participantID)
	return w, nil
}

// Get returns an already-loaded wallet without touching disk.
func (m *Manager) Get(participantID string) (*Wallet, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.loaded[participantID]
	return w, ok
}

// Unload wipes and drops a wallet's in-memory key material.
func (m *Manager) Unload(participantID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.loaded[participantID]; ok {
		w.Wipe()
		delete(m.loaded, participantID)
	}
}

// CheckCapability returns an error unless the loaded wallet's participant
// holds the capability required by txType.
func (m *Manager) CheckCapability(participantID, txType string) error {
	w, ok := m.Get(participantID)
	if !ok {
		return pverr.Wrap(pverr.Permission, "check capability", pverr.ErrNotFound)
	}
	cap, gated := RequiredCapability(txType)
	if !gated {
		return nil
	}
	if !w.Participant.HasCapability(cap) {
		return pverr.Wrap(pverr.Permission, fmt.Sprintf("participant %s (%s) lacks capability %q required for %s",
			participantID, w.Participant.Type, cap, txType), pverr.ErrUnauthorized)
	}
	return nil
}
