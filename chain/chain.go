package chain

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/sirupsen/logrus"

	"github.com/provchain/provchain-core/pverr"
	"github.com/provchain/provchain-core/rdf"
)

// Signer produces a validator signature over a block's content hash. It is
// supplied by the caller (e.g. ledger.TransactionBlockchain acting on behalf
// of the proposing validator's wallet) so this package never holds key
// material itself.
type Signer interface {
	Sign(contentHash string) (pubKey, signature []byte, err error)
}

// Chain owns the linear block sequence and the RDFStore, and is the sole
// writer of both. Concurrency: one writer, many readers, via a single
// RWMutex.
type Chain struct {
	mu	sync.RWMutex
	blocks	[]*Block
	store	*RDFStore
	logger	*logrus.Logger
	unsafe	bool		// set when a rollback itself fails; further writes refuse
}

// NewChain constructs an empty chain backed by a fresh RDFStore.
func NewChain(lg *logrus.Logger) *Chain {
	if lg == nil {
		lg = logrus.New()
	}
	return &Chain{store: NewRDFStore(lg), logger: lg}
}

// Store returns the chain's RDFStore for read-path callers (query, trace).
func (c *Chain) Store() *RDFStore { return c.store }

// Len returns the number of blocks currently in the chain.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

// Last returns the most recently appended block, or nil if the chain is
// empty.
func (c *Chain) Last() *Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.blocks) == 0 {
		return nil
	}
	return c.blocks[len(c.blocks)-1]
}

// BlockAt returns the block at index, or nil if out of range.
func (c *Chain) BlockAt(index uint64) *Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if index >= uint64(len(c.blocks)) {
		return nil
	}
	return c.blocks[index]
}

// Append adds payload to the chain. On an empty chain, payload becomes the
// genesis block itself (index 0, previous hash "0", hashed over the raw
// payload bytes) and that block is returned; no further block is built in
// the same call. Otherwise Append inserts payload into a new graph, computes
// the content hash over the post-insertion store, writes block metadata, and
// pushes the block. If signer is non-nil the new (non-genesis) block is
// signed before being pushed; genesis is always left unsigned.
//
// Append is logically atomic: if the payload fails to parse into at least
// one triple, or the store write fails, the partially-written graph is
// removed and the chain is left unchanged.
func (c *Chain) Append(payload string, signer Signer) (*Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.unsafe {
		return nil, pverr.Wrap(pverr.Store, "append refused", pverr.ErrChainUnsafe)
	}

	if len(c.blocks) == 0 {
		genesis, err := c.buildGenesisLocked(payload)
		if err != nil {
			return nil, err
		}
		c.blocks = append(c.blocks, genesis)
		return genesis, nil
	}

	prev := c.blocks[len(c.blocks)-1]
	newBlock := &Block{
		Index: prev.Index + 1,
		Timestamp: newTimestamp(),
		Payload: payload,
		PreviousHash: prev.ContentHash,
	}
	graphIRI := newBlock.GraphIRI()

	if err := c.store.AddRDFToGraph(payload, graphIRI); err != nil {
		return nil, pverr.Wrap(pverr.Store, "insert block payload", err)
	}

	canonical, err := c.store.CanonicalizeGraph(graphIRI)
	if err != nil {
		if rbErr := c.store.RemoveGraph(graphIRI); rbErr != nil {
			c.unsafe = true
			return nil, pverr.Wrap(pverr.Store, "rollback failed, chain marked unsafe", rbErr)
		}
		return nil, err
	}
	newBlock.ContentHash = ComputeBlockHash(newBlock.Index, newBlock.Timestamp, canonical, newBlock.PreviousHash)

	if signer != nil {
		pub, sig, err := signer.Sign(newBlock.ContentHash)
		if err != nil {
			_ = c.store.RemoveGraph(graphIRI)
			return nil, pverr.Wrap(pverr.Validation, "sign block", err)
		}
		newBlock.ValidatorPublicKey = pub
		newBlock.Signature = sig
	}

	if err := c.store.AddBlockMetadata(newBlock); err != nil {
		if rbErr := c.store.RemoveGraph(graphIRI); rbErr != nil {
			c.unsafe = true
			return nil, pverr.Wrap(pverr.Store, "rollback failed, chain marked unsafe", rbErr)
		}
		return nil, err
	}

	c.blocks = append(c.blocks, newBlock)
	c.logger.Infof("chain: appended block %d hash=%s", newBlock.Index, newBlock.ContentHash[:8])
	return newBlock, nil
}

func (c *Chain) buildGenesisLocked(payload string) (*Block, error) {
	genesis := &Block{Index: 0, Timestamp: newTimestamp(), Payload: payload, PreviousHash: "0"}
	if err := c.store.AddRDFToGraph(payload, genesis.GraphIRI()); err != nil {
		return nil, pverr.Wrap(pverr.Store, "insert genesis payload", err)
	}
	genesis.ContentHash = ComputeGenesisHash(genesis.Index, genesis.Timestamp, payload)
	if err := c.store.AddBlockMetadata(genesis); err != nil {
		_ = c.store.RemoveGraph(genesis.GraphIRI())
		return nil, err
	}
	return genesis, nil
}

// ValidationResult reports the outcome of Validate, naming the first
// offending block index when the chain is invalid.
type ValidationResult struct {
	Valid		bool
	FailedIndex	uint64
	Reason		string
}

// Validate re-derives every non-genesis block's content hash, checks the
// previous-hash link, and runs the graph-data-integrity check against a
// scratch store loaded from the block's stored payload text. An empty
// chain is valid.
func (c *Chain) Validate() ValidationResult {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.blocks) == 0 {
		return ValidationResult{Valid: true}
	}

	for i, b := range c.blocks {
		if i == 0 {
			continue
		}
		prev := c.blocks[i-1]
		if b.PreviousHash != prev.ContentHash {
			return ValidationResult{Valid: false, FailedIndex: b.Index,
				Reason: fmt.Sprintf("previous-hash link broken at block %d", b.Index)}
		}

		canonical, err := c.store.CanonicalizeGraph(b.GraphIRI())
		if err != nil {
			return ValidationResult{Valid: false, FailedIndex: b.Index, Reason: err.Error()}
		}
		recomputed := ComputeBlockHash(b.Index, b.Timestamp, canonical, b.PreviousHash)
		if recomputed != b.ContentHash {
			return ValidationResult{Valid: false, FailedIndex: b.Index,
				Reason: fmt.Sprintf("stored content hash does not match recomputed hash at block %d", b.Index)}
		}

		if !b.VerifySignature() {
			return ValidationResult{Valid: false, FailedIndex: b.Index,
				Reason: fmt.Sprintf("signature does not verify at block %d", b.Index)}
		}

		ok, err := c.validateBlockDataIntegrityLocked(b)
		if err != nil {
			return ValidationResult{Valid: false, FailedIndex: b.Index, Reason: err.Error()}
		}
		if !ok {
			return ValidationResult{Valid: false, FailedIndex: b.Index,
				Reason: fmt.Sprintf("graph data integrity check failed at block %d", b.Index)}
		}

		if _, err := time.Parse(time.RFC3339, b.Timestamp); err != nil {
			return ValidationResult{Valid: false, FailedIndex: b.Index,
				Reason: fmt.Sprintf("unparseable timestamp at block %d", b.Index)}
		}
	}
	return ValidationResult{Valid: true}
}

// validateBlockDataIntegrityLocked loads the block's stored payload text
// into a scratch quad store under the same graph IRI and confirms its
// canonical hash matches the canonical hash of that graph in the main
// store. This catches out-of-band mutation of the main store even when
// blank nodes have been renumbered.
func (c *Chain) validateBlockDataIntegrityLocked(b *Block) (bool, error) {
	scratch := NewRDFStore(c.logger)
	if err := scratch.AddRDFToGraph(b.Payload, b.GraphIRI()); err != nil {
		return false, pverr.Wrap(pverr.Store, "scratch insert", err)
	}
	scratchHash, err := scratch.CanonicalizeGraph(b.GraphIRI())
	if err != nil {
		return false, err
	}
	mainHash, err := c.store.CanonicalizeGraph(b.GraphIRI())
	if err != nil {
		return false, err
	}
	return scratchHash == mainHash, nil
}

// Reload implements the chain-reload protocol: query the
// blockchain graph ordered by index, export each referenced data graph, and
// reconstruct Block values. If the store is non-empty but no blocks are
// recovered, a fresh genesis is created and a warning logged.
func Reload(store *RDFStore, lg *logrus.Logger) (*Chain, error) {
	if lg == nil {
		lg = logrus.New()
	}
	c := &Chain{store: store, logger: lg}

	sol, err := store.Query(fmt.Sprintf(
		`SELECT ?b ?index ?ts ?hash ?prev FROM <%s> WHERE { ?b <%s> ?index . ?b <%s> ?ts . ?b <%s> ?hash . ?b <%s> ?prev . } ORDER BY ?index`,
		rdf.BlockchainGraph, rdf.PredHasIndex, rdf.PredHasTimestamp, rdf.PredHasHash, rdf.PredHasPreviousHash))
	if err != nil {
		return nil, pverr.Wrap(pverr.Store, "reload query", err)
	}

	for _, row := range sol.Rows {
		idxTerm, tsTerm, hashTerm, prevTerm := row["?index"], row["?ts"], row["?hash"], row["?prev"]
		graphIRI := blockGraphIRIFromSubject(row["?b"])
		payload, err := store.ExportGraph(graphIRI)
		if err != nil {
			return nil, pverr.Wrap(pverr.Store, "export block graph on reload", err)
		}
		b := &Block{
			Index: parseUint(idxTerm.Value),
			Timestamp: tsTerm.Value,
			Payload: payload,
			ContentHash: hashTerm.Value,
			PreviousHash: prevTerm.Value,
		}
		c.blocks = append(c.blocks, b)
	}

	if store.Store().Len() > 0 && len(c.blocks) == 0 {
		lg.Warn("chain: store non-empty but no blocks recovered on reload, creating fresh genesis")
		genesis, err := c.buildGenesisLocked("")
		if err != nil {
			return nil, err
		}
		c.blocks = append(c.blocks, genesis)
	}
	return c, nil
}

// Snapshot RLP-encodes the chain's block sequence as an explicit,
// restartable backup format rather than a replay log. RestoreSnapshot
// reconstructs both the block sequence and the backing RDFStore's graphs
// from it, without re-running Reload's SPARQL query.
func (c *Chain) Snapshot() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	flat := make([]Block, len(c.blocks))
	for i, b := range c.blocks {
		flat[i] = *b
	}
	data, err := rlp.EncodeToBytes(flat)
	if err != nil {
		return nil, pverr.Wrap(pverr.Store, "encode chain snapshot", err)
	}
	return data, nil
}

// RestoreSnapshot rebuilds a Chain from an RLP-encoded Snapshot, reinserting
// every block's payload and metadata into store so that queries (trace,
// SPARQL reads) see the same graphs a live chain would have produced.
func RestoreSnapshot(data []byte, store *RDFStore, lg *logrus.Logger) (*Chain, error) {
	if lg == nil {
		lg = logrus.New()
	}
	var flat []Block
	if err := rlp.DecodeBytes(data, &flat); err != nil {
		return nil, pverr.Wrap(pverr.Store, "decode chain snapshot", err)
	}

	c := &Chain{store: store, logger: lg}
	for i := range flat {
		b := flat[i]
		if err := store.AddRDFToGraph(b.Payload, b.GraphIRI()); err != nil {
			return nil, pverr.Wrap(pverr.Store, "restore block payload", err)
		}
		if err := store.AddBlockMetadata(&b); err != nil {
			return nil, pverr.Wrap(pverr.Store, "restore block metadata", err)
		}
		c.blocks = append(c.blocks, &b)
	}
	return c, nil
}

func blockGraphIRIFromSubject(t rdf.Term) string { return t.Value }

func parseUint(s string) uint64 {
	v, _ := strconv.ParseUint(s, 10, 64)
	return v
}
