// Package ledger glues Chain, the transaction pool, the WalletManager and
// the UTXO/transaction indices into a single TransactionBlockchain writer
// unit: the component that owns everything mutated by submitting and
// sealing transactions.
package ledger

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/provchain/provchain-core/chain"
	"github.com/provchain/provchain-core/domain"
	"github.com/provchain/provchain-core/governance"
	"github.com/provchain/provchain-core/pverr"
	"github.com/provchain/provchain-core/rdf"
	"github.com/provchain/provchain-core/tx"
	"github.com/provchain/provchain-core/wallet"
)

const turtlePrelude = `@prefix prov: <http://provchain.org/ontology#> .
@prefix tx: <http://provchain.org/tx#> .
`

// genesisPayload seeds block 0 so the first sealed transaction batch lands
// in block 1, never in genesis.
const genesisPayload = `<http://provchain.org/blockchain> <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> <http://www.w3.org/ns/prov#Blockchain> .`

// TransactionBlockchain is the sole writer of the Chain, the transaction
// pool, the UTXO set and the transaction index.
type TransactionBlockchain struct {
	mu sync.RWMutex

	chain		*chain.Chain
	pool		*tx.Pool
	wallets		*wallet.Manager
	governance	*governance.Governance
	domains		*domain.Registry

	utxo	map[string]tx.TransactionOutput
	index	map[string]TxLocation

	proposer	chain.Signer
	maxTxPerBlock	int
	logger		*logrus.Logger
}

// TxLocation records where a sealed transaction ended up in the
// transaction index.
type TxLocation struct {
	BlockIndex	uint64
	TxIndex		int
}

// Config bundles the construction parameters sourced from the
// configuration surface.
type Config struct {
	PoolMaxSize		int
	MaxTransactionsPerBlock	int
	Wallets			*wallet.Manager
	Governance		*governance.Governance
	Domains			*domain.Registry

	// Proposer signs each sealed block's content hash. A *wallet.Wallet
	// satisfies this directly. Nil leaves blocks unsigned.
	Proposer chain.Signer

	Logger *logrus.Logger
}

// New constructs an empty TransactionBlockchain.
func New(cfg Config) *TransactionBlockchain {
	lg := cfg.Logger
	if lg == nil {
		lg = logrus.New()
	}
	maxTx := cfg.MaxTransactionsPerBlock
	if maxTx <= 0 {
		maxTx = 10
	}
	b := &TransactionBlockchain{
		chain: chain.NewChain(lg),
		pool: tx.NewPool(cfg.PoolMaxSize),
		wallets: cfg.Wallets,
		governance: cfg.Governance,
		domains: cfg.Domains,
		utxo: make(map[string]tx.TransactionOutput),
		index: make(map[string]TxLocation),
		proposer: cfg.Proposer,
		maxTxPerBlock: maxTx,
		logger: lg,
	}
	if _, err := b.chain.Append(genesisPayload, nil); err != nil {
		lg.Errorf("ledger: seed genesis block: %v", err)
	}
	return b
}

// Chain exposes the underlying chain for read paths (query, trace, reload).
func (b *TransactionBlockchain) Chain() *chain.Chain { return b.chain }

// UTXOValue returns the live output for outputID, if unspent.
func (b *TransactionBlockchain) UTXOValue(outputID string) (tx.TransactionOutput, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.utxo[outputID]
	return o, ok
}

// Locate returns where txID was sealed, if it has been.
func (b *TransactionBlockchain) Locate(txID string) (TxLocation, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	loc, ok := b.index[txID]
	return loc, ok
}

// Submit runs the admission gate and, if it passes, queues txn in the pool:
// 1. Structural/signature/quorum validation (tx.Transaction.Validate).
// 2. For Transfer, input/output value conservation against the live UTXO
// set.
// 3. Permission-matrix capability check against the first signer's
// Participant.
// 4. Domain-plugin validation, if an active domain is registered.
// 5. For a governance transaction, a read-only quorum precheck; the
// validator-set mutation itself only happens once the transaction is
// sealed by CreateBlock.
func (b *TransactionBlockchain) Submit(txn *tx.Transaction) error {
	if err := txn.Validate(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if txn.TxType == tx.Transfer {
		if err := b.validateTransferConservationLocked(txn); err != nil {
			return err
		}
	}

	if len(txn.Signatures) > 0 && b.wallets != nil {
		if err := b.wallets.CheckCapability(txn.Signatures[0].SignerID, string(txn.TxType)); err != nil {
			return err
		}
	}

	if b.domains != nil {
		if active, ok := b.domains.Active(); ok {
			ed := domainEntityFromTx(txn)
			result := active.ValidateEntity(ed)
			switch result.Outcome {
			case domain.Invalid:
				return pverr.New(pverr.DomainValidationFail, fmt.Sprintf("domain rejected transaction %s: %s", txn.ID, result.Reason))
			case domain.Warning:
				b.logger.Warnf("ledger: domain plugin warning for tx %s: %s", txn.ID, result.Reason)
			}
		}
	}

	if b.governance != nil && isGovernanceTx(txn) {
		// Quorum is checked here for early rejection, but the validator-set
		// mutation itself is deferred to CreateBlock: a pooled transaction
		// can still be evicted before it is ever sealed, and the authoritative
		// governance state must only reflect transactions actually committed
		// to the chain, symmetrically with how the UTXO set is updated.
		if err := b.governance.Precheck(txn); err != nil {
			return err
		}
	}

	if _, err := b.pool.Add(txn); err != nil {
		return err
	}
	return nil
}

func (b *TransactionBlockchain) validateTransferConservationLocked(txn *tx.Transaction) error {
	var inSum float64
	for _, in := range txn.Inputs {
		outID := tx.OutputIDOf(in.PrevTxID, int(in.OutputIndex))
		o, ok := b.utxo[outID]
		if !ok {
			return pverr.New(pverr.Validation, fmt.Sprintf("transfer references unknown or spent output %s", outID))
		}
		inSum += o.Value
	}
	var outSum float64
	for _, o := range txn.Outputs {
		outSum += o.Value
	}
	if math.Abs(inSum-outSum) > 1e-3 {
		return pverr.New(pverr.Validation, fmt.Sprintf("transfer input sum %.6f does not match output sum %.6f", inSum, outSum))
	}
	return nil
}

func isGovernanceTx(txn *tx.Transaction) bool {
	_, ok := txn.Payload.(tx.GovernancePayload)
	return ok
}

func domainEntityFromTx(txn *tx.Transaction) domain.EntityData {
	return domain.EntityData{
		EntityID: txn.ID,
		EntityType: string(txn.TxType),
		RDFData: txn.RDFData,
		Metadata: map[string]string{"tx_id": txn.ID},
	}
}

// CreateBlock drains up to max transactions from the pool, builds the block
// payload from a fixed Turtle prelude plus each transaction's self-RDF and
// rdf_data, appends the block, then applies governance mutations for any
// governance transactions among those actually sealed, updates the UTXO set
// and transaction index, and evicts the sealed transactions from the pool.
// Returns nil, nil if the pool was empty.
func (b *TransactionBlockchain) CreateBlock(max int) (*chain.Block, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	txs := b.pool.TakeForBlock(max)
	if len(txs) == 0 {
		return nil, nil
	}

	payload := buildBlockPayload(txs)

	newBlock, err := b.chain.Append(payload, b.proposer)
	if err != nil {
		return nil, err
	}

	if b.governance != nil {
		for _, txn := range txs {
			if isGovernanceTx(txn) {
				// The block carrying this transaction is already committed, so
				// a mutation the validator set can no longer accept (e.g. the
				// set filled up since Precheck) is logged and skipped rather
				// than unwinding the seal.
				if err := b.governance.Process(txn); err != nil {
					b.logger.Errorf("ledger: governance action in sealed tx %s not applied: %v", txn.ID, err)
				}
			}
		}
	}

	ids := make([]string, 0, len(txs))
	for i, txn := range txs {
		b.index[txn.ID] = TxLocation{BlockIndex: newBlock.Index, TxIndex: i}
		for outIdx, out := range txn.Outputs {
			b.utxo[tx.OutputIDOf(txn.ID, outIdx)] = out
		}
		for _, in := range txn.Inputs {
			delete(b.utxo, tx.OutputIDOf(in.PrevTxID, int(in.OutputIndex)))
		}
		ids = append(ids, txn.ID)
	}
	b.pool.RemoveMany(ids)

	b.logger.Infof("ledger: sealed block %d with %d transactions", newBlock.Index, len(txs))
	return newBlock, nil
}

// buildBlockPayload concatenates the Turtle prelude with each transaction's
// self-description and its
// user-supplied rdf_data.
func buildBlockPayload(txs []*tx.Transaction) string {
	var sb strings.Builder
	sb.WriteString(turtlePrelude)
	for _, txn := range txs {
		sb.WriteString(transactionSelfRDF(txn))
		sb.WriteString("\n")
		if txn.RDFData != "" {
			sb.WriteString(txn.RDFData)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// transactionSelfRDF serializes a transaction's own description under the
// tx# namespace, one triple per statement since predicate lists are outside
// the Turtle subset the store parses.
func transactionSelfRDF(txn *tx.Transaction) string {
	subj := "<" + rdf.TxNamespace + txn.ID + ">"
	return fmt.Sprintf("%s tx:hasType %q .\n%s tx:hasTimestamp %q .\n%s tx:hasNonce %q .\n%s tx:hasSignatureCount %q .",
		subj, string(txn.TxType),
		subj, txn.Timestamp,
		subj, strconv.FormatUint(txn.Nonce, 10),
		subj, strconv.Itoa(len(txn.Signatures)))
}

// PoolLen reports the number of transactions currently pooled.
func (b *TransactionBlockchain) PoolLen() int { return b.pool.Len() }
