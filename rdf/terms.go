package rdf

import "strconv"

// terms.go holds the block-metadata, transaction and trace predicate IRIs
// and the distinguished graph IRIs, whose exact spellings the metadata and
// trace queries depend on. Not every IRI in the module is spelled here: the
// XSD datatype IRIs in chain/rdfstore.go, the prefix and genesis IRIs in
// ledger/ledger.go and the batch seed IRI in trace/engine.go are written
// inline.

const (
	// NSProv is the namespace used for block/metadata predicates.
	NSProv = "http://www.w3.org/ns/prov#"

	// OntologyGraph is the distinguished graph holding the loaded ontology.
	OntologyGraph = "http://provchain.org/ontology"

	// BlockchainGraph is the distinguished graph holding block metadata.
	BlockchainGraph = "http://provchain.org/blockchain"

	// TxNamespace prefixes every transaction self-description predicate.
	TxNamespace = "http://provchain.org/tx#"

	// PredHasIndex etc. are the block-metadata predicates from this package.
	PredHasIndex		= NSProv + "hasIndex"
	PredHasTimestamp	= NSProv + "hasTimestamp"
	PredHasHash		= NSProv + "hasHash"
	PredHasPreviousHash	= NSProv + "hasPreviousHash"
	PredHasDataGraphIRI	= NSProv + "hasDataGraphIRI"
	TypeBlock		= NSProv + "Block"

	// Transaction self-description predicates.
	PredTxHasType		= TxNamespace + "hasType"
	PredTxHasTimestamp	= TxNamespace + "hasTimestamp"
	PredTxHasNonce		= TxNamespace + "hasNonce"
	PredTxHasSignatureCount	= TxNamespace + "hasSignatureCount"

	// PredWasDerivedFrom is the supply-chain provenance edge the trace
	// engine follows.
	PredWasDerivedFrom = NSProv + "wasDerivedFrom"

	// NSTrace prefixes trace-event annotation predicates.
	NSTrace		= "http://provchain.org/trace#"
	PredRecordedAt	= NSTrace + "recordedAt"

	// RDFType is rdf:type, spelled out once since it appears everywhere.
	RDFType = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
)

// BlockGraphIRI returns the named graph holding block i's payload:
// "http://provchain.org/block/{index}".
func BlockGraphIRI(index uint64) string {
	return "http://provchain.org/block/" + strconv.FormatUint(index, 10)
}
