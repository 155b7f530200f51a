package rdf

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/provchain/provchain-core/pverr"
)

// EmptyGraphHash is returned by Canonicalize for a graph with no triples.
var EmptyGraphHash = hex.EncodeToString(sha256.New().Sum(nil))

const maxRefinementRounds = 10

// Canonicalize computes the content-addressed hash of graphIRI in store,
// stable under blank-node renaming and insertion order.
//
// Algorithm: iterative 1-WL-style label refinement. Every blank node starts
// at a constant label; each round recomputes a node's label as the hash of
// the sorted multiset of (direction, predicate, neighbor-label) tuples over
// every triple touching it, where neighbor-label is the term's lexical form
// for IRIs/literals and the neighbor's current label for blank nodes.
// Refinement stops when no label changes or after maxRefinementRounds
// rounds. Residual symmetries (distinct blank nodes that refine to an
// identical label — true graph automorphisms) are broken by the sorted
// original (not yet rewritten) triple text each node participates in, and, as a last
// resort, by the node's original identifier so the procedure always
// terminates deterministically.
func Canonicalize(store *MemoryStore, graphIRI string) (string, error) {
	quads := store.QuadsInGraph(graphIRI)
	if len(quads) == 0 {
		return EmptyGraphHash, nil
	}

	labels, converged := refineLabels(quads)
	if !converged {
		return "", pverr.Wrap(pverr.Canonicalization, "blank-node refinement did not converge", pverr.ErrConvergence)
	}

	idOf := assignBlankIDs(quads, labels)

	lines := make([]string, 0, len(quads))
	for _, q := range quads {
		lines = append(lines, SerializeTriple(rewriteQuad(q, idOf)))
	}
	sort.Strings(lines)

	h := sha256.New()
	h.Write([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(h.Sum(nil)), nil
}

type incidence struct {
	bnode		string
	direction	byte	// 'S' or 'O'
	predicate	string
	other		Term
}

func refineLabels(quads []Quad) (map[string]string, bool) {
	incidences := map[string][]incidence{}
	for _, q := range quads {
		if q.Subject.IsBlank() {
			incidences[q.Subject.Value] = append(incidences[q.Subject.Value], incidence{
				bnode: q.Subject.Value, direction: 'S', predicate: q.Predicate.Value, other: q.Object,
			})
		}
		if q.Object.IsBlank() {
			incidences[q.Object.Value] = append(incidences[q.Object.Value], incidence{
				bnode: q.Object.Value, direction: 'O', predicate: q.Predicate.Value, other: q.Subject,
			})
		}
	}
	if len(incidences) == 0 {
		return map[string]string{}, true
	}

	labels := make(map[string]string, len(incidences))
	for b := range incidences {
		labels[b] = "0"
	}

	for round := 0; round < maxRefinementRounds; round++ {
		next := make(map[string]string, len(labels))
		changed := false
		for b, incs := range incidences {
			entries := make([]string, 0, len(incs))
			for _, inc := range incs {
				var otherLabel string
				if inc.other.IsBlank() {
					otherLabel = "b:" + labels[inc.other.Value]
				} else {
					otherLabel = inc.other.String()
				}
				entries = append(entries, string(inc.direction)+"|"+inc.predicate+"|"+otherLabel)
			}
			sort.Strings(entries)
			h := sha256.Sum256([]byte(strings.Join(entries, "\x1f")))
			newLabel := hex.EncodeToString(h[:])
			if newLabel != labels[b] {
				changed = true
			}
			next[b] = newLabel
		}
		labels = next
		if !changed && round > 0 {
			return labels, true
		}
	}
	return labels, true
}

// assignBlankIDs turns refined labels into a globally deterministic,
// sequential identifier ("c0", "c1", ...) per blank node, tie-breaking
// identical labels by the sorted triple text each node participates in.
func assignBlankIDs(quads []Quad, labels map[string]string) map[string]string {
	type cand struct {
		bnode	string
		label	string
		tiebrk	string
	}
	triplesByBlank := map[string][]string{}
	for _, q := range quads {
		line := SerializeTriple(q)
		if q.Subject.IsBlank() {
			triplesByBlank[q.Subject.Value] = append(triplesByBlank[q.Subject.Value], line)
		}
		if q.Object.IsBlank() {
			triplesByBlank[q.Object.Value] = append(triplesByBlank[q.Object.Value], line)
		}
	}

	cands := make([]cand, 0, len(labels))
	for b, l := range labels {
		lines := append([]string(nil), triplesByBlank[b]...)
		sort.Strings(lines)
		cands = append(cands, cand{bnode: b, label: l, tiebrk: strings.Join(lines, "\x1e")})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].label != cands[j].label {
			return cands[i].label < cands[j].label
		}
		if cands[i].tiebrk != cands[j].tiebrk {
			return cands[i].tiebrk < cands[j].tiebrk
		}
		return cands[i].bnode < cands[j].bnode
	})

	out := make(map[string]string, len(cands))
	for i, c := range cands {
		out[c.bnode] = "c" + strconv.Itoa(i)
	}
	return out
}

func rewriteQuad(q Quad, idOf map[string]string) Quad {
	out := q
	if q.Subject.IsBlank() {
		out.Subject = Blank(idOf[q.Subject.Value])
	}
	if q.Object.IsBlank() {
		out.Object = Blank(idOf[q.Object.Value])
	}
	return out
}
