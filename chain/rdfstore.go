// Package chain implements the block/chain model: the value objects, the
// RDFStore service gluing blocks to named graphs, and the append/validate
// operations that keep the linear block sequence consistent with the quad
// store.
package chain

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/provchain/provchain-core/pverr"
	"github.com/provchain/provchain-core/rdf"
)

// RDFStore owns the quad store and exposes the block-graph and
// blockchain-metadata-graph operations. It wraps a concrete
// *rdf.MemoryStore rather than the rdf.QuadStore interface directly because
// Canonicalize is only implemented against that concrete type;
// a production deployment would widen this to the interface once its quad
// store exposes an equivalent canonicalization entry point.
type RDFStore struct {
	store	*rdf.MemoryStore
	logger	*logrus.Logger
}

// NewRDFStore constructs a service over a fresh in-memory quad store.
func NewRDFStore(lg *logrus.Logger) *RDFStore {
	if lg == nil {
		lg = logrus.New()
	}
	return &RDFStore{store: rdf.NewMemoryStore(), logger: lg}
}

// Store exposes the underlying rdf.QuadStore for read paths (SPARQL query,
// trace engine) that only need the generic contract.
func (s *RDFStore) Store() *rdf.MemoryStore { return s.store }

// AddRDFToGraph parses fragment and inserts its triples into graphIRI.
// Parse errors are reported but do not corrupt the store: only the quads
// that did parse are inserted.
func (s *RDFStore) AddRDFToGraph(fragment, graphIRI string) error {
	quads, errs := rdf.ParseTriples(fragment, graphIRI)
	if len(quads) == 0 && len(errs) > 0 {
		return pverr.Wrap(pverr.Store, "no triples parsed", errs[0])
	}
	if err := s.store.InsertQuads(quads); err != nil {
		return pverr.Wrap(pverr.Store, "insert quads", err)
	}
	if len(errs) > 0 {
		s.logger.Warnf("rdfstore: %d triples in graph %s failed to parse: %v", len(errs), graphIRI, errs[0])
	}
	return nil
}

// LoadOntology inserts turtle into the distinguished ontology graph.
func (s *RDFStore) LoadOntology(turtle string) error {
	return s.AddRDFToGraph(turtle, rdf.OntologyGraph)
}

// CanonicalizeGraph returns the canonical content hash of graphIRI.
func (s *RDFStore) CanonicalizeGraph(graphIRI string) (string, error) {
	h, err := rdf.Canonicalize(s.store, graphIRI)
	if err != nil {
		return "", err
	}
	return h, nil
}

// AddBlockMetadata writes one resource per block into the blockchain graph,
// per the on-wire metadata format.
func (s *RDFStore) AddBlockMetadata(b *Block) error {
	subj := rdf.IRI(rdf.BlockGraphIRI(b.Index))
	quads := []rdf.Quad{
		{Subject: subj, Predicate: rdf.IRI(rdf.RDFType), Object: rdf.IRI(rdf.TypeBlock), Graph: rdf.BlockchainGraph},
		{Subject: subj, Predicate: rdf.IRI(rdf.PredHasIndex), Object: rdf.TypedLiteral(fmt.Sprintf("%d", b.Index), "http://www.w3.org/2001/XMLSchema#integer"), Graph: rdf.BlockchainGraph},
		{Subject: subj, Predicate: rdf.IRI(rdf.PredHasTimestamp), Object: rdf.TypedLiteral(b.Timestamp, "http://www.w3.org/2001/XMLSchema#dateTime"), Graph: rdf.BlockchainGraph},
		{Subject: subj, Predicate: rdf.IRI(rdf.PredHasHash), Object: rdf.Literal(b.ContentHash), Graph: rdf.BlockchainGraph},
		{Subject: subj, Predicate: rdf.IRI(rdf.PredHasPreviousHash), Object: rdf.Literal(b.PreviousHash), Graph: rdf.BlockchainGraph},
		{Subject: subj, Predicate: rdf.IRI(rdf.PredHasDataGraphIRI), Object: subj, Graph: rdf.BlockchainGraph},
	}
	if err := s.store.InsertQuads(quads); err != nil {
		return pverr.Wrap(pverr.Store, "write block metadata", err)
	}
	return nil
}

// Query passes a SPARQL query through to the quad store.
func (s *RDFStore) Query(sparql string) (*rdf.Solutions, error) {
	sol, err := s.store.Query(sparql)
	if err != nil {
		return nil, pverr.Wrap(pverr.Store, "query", err)
	}
	return sol, nil
}

// ExportGraph serializes a named graph back to this module's Turtle/
// N-Triples subset, used when reconstructing block payloads on reload.
func (s *RDFStore) ExportGraph(graphIRI string) (string, error) {
	out, err := s.store.ExportGraph(graphIRI)
	if err != nil {
		return "", pverr.Wrap(pverr.Store, "export graph", err)
	}
	return out, nil
}

// RemoveGraph drops every quad in graphIRI. Used to roll back a partially
// written block graph when append fails after the payload insert but
// before the hash/metadata commit.
func (s *RDFStore) RemoveGraph(graphIRI string) error {
	return s.store.RemoveGraph(graphIRI)
}

func (s *RDFStore) Save() error { return s.store.Flush() }
func (s *RDFStore) Flush() error { return s.store.Flush() }
func (s *RDFStore) Optimize() error { return s.store.Optimize() }
func (s *RDFStore) IntegrityCheck() error { return s.store.IntegrityCheck() }
