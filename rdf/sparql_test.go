package rdf

import "testing"

func storeWith(t *testing.T, fragment, graph string) *MemoryStore {
	t.Helper()
	store := NewMemoryStore()
	quads, errs := ParseTriples(fragment, graph)
	if len(errs) != 0 {
		t.Fatalf("unexpected parse errors: %v", errs)
	}
	if err := store.InsertQuads(quads); err != nil {
		t.Fatal(err)
	}
	return store
}

func TestQueryBasicPattern(t *testing.T) {
	store := storeWith(t, `
		<http://example.org/a> <http://example.org/p> <http://example.org/b> .
		<http://example.org/a> <http://example.org/p> "literal" .
	`, "http://provchain.org/block/1")

	sol, err := store.Query(`SELECT ?o WHERE { <http://example.org/a> <http://example.org/p> ?o . }`)
	if err != nil {
		t.Fatal(err)
	}
	if len(sol.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(sol.Rows))
	}
}

func TestQueryFilterIsIRI(t *testing.T) {
	store := storeWith(t, `
		<http://example.org/a> <http://example.org/p> <http://example.org/b> .
		<http://example.org/a> <http://example.org/p> "literal" .
	`, "http://provchain.org/block/1")

	sol, err := store.Query(`SELECT ?o WHERE { <http://example.org/a> <http://example.org/p> ?o . FILTER(isIRI(?o)) }`)
	if err != nil {
		t.Fatal(err)
	}
	if len(sol.Rows) != 1 {
		t.Fatalf("expected 1 IRI-valued row, got %d", len(sol.Rows))
	}
	if sol.Rows[0]["?o"].Value != "http://example.org/b" {
		t.Fatalf("unexpected binding %+v", sol.Rows[0])
	}
}

func TestQueryUnionMatchesEitherBranch(t *testing.T) {
	// b has only an incoming edge from a; c has only an outgoing edge to a.
	store := storeWith(t, `
		<http://example.org/a> <http://example.org/p> <http://example.org/b> .
		<http://example.org/c> <http://example.org/p> <http://example.org/a> .
	`, "http://provchain.org/block/1")

	sol, err := store.Query(`SELECT ?x WHERE { { <http://example.org/a> ?p ?x . } UNION { ?x ?p <http://example.org/a> . } }`)
	if err != nil {
		t.Fatal(err)
	}
	seen := map[string]bool{}
	for _, row := range sol.Rows {
		seen[row["?x"].Value] = true
	}
	if !seen["http://example.org/b"] || !seen["http://example.org/c"] {
		t.Fatalf("expected union to surface both neighbors, got %v", seen)
	}
}

func TestQueryOptionalKeepsUnmatchedRows(t *testing.T) {
	store := storeWith(t, `
		<http://example.org/a> <http://example.org/p> <http://example.org/b> .
	`, "http://provchain.org/block/1")

	sol, err := store.Query(`SELECT ?o ?ts WHERE { <http://example.org/a> <http://example.org/p> ?o . OPTIONAL { <http://example.org/a> <http://example.org/ts> ?ts . } }`)
	if err != nil {
		t.Fatal(err)
	}
	if len(sol.Rows) != 1 {
		t.Fatalf("expected the required match to survive the unmatched OPTIONAL, got %d rows", len(sol.Rows))
	}
	if _, bound := sol.Rows[0]["?ts"]; bound {
		t.Fatal("expected ?ts to be unbound")
	}
}

func TestQueryOrderByIntegerLiteralsSortsNumerically(t *testing.T) {
	store := storeWith(t, `
		<http://example.org/b10> <http://example.org/idx> "10" .
		<http://example.org/b2> <http://example.org/idx> "2" .
		<http://example.org/b1> <http://example.org/idx> "1" .
	`, "http://provchain.org/blockchain")

	sol, err := store.Query(`SELECT ?s ?i WHERE { ?s <http://example.org/idx> ?i . } ORDER BY ?i`)
	if err != nil {
		t.Fatal(err)
	}
	if len(sol.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(sol.Rows))
	}
	want := []string{"1", "2", "10"}
	for i, w := range want {
		if got := sol.Rows[i]["?i"].Value; got != w {
			t.Fatalf("row %d: got index %q, want %q", i, got, w)
		}
	}
}

func TestQueryFromGraphScopesCandidates(t *testing.T) {
	store := NewMemoryStore()
	inGraph, _ := ParseTriples(`<http://example.org/a> <http://example.org/p> "in" .`, "http://provchain.org/block/1")
	outGraph, _ := ParseTriples(`<http://example.org/a> <http://example.org/p> "out" .`, "http://provchain.org/block/2")
	if err := store.InsertQuads(append(inGraph, outGraph...)); err != nil {
		t.Fatal(err)
	}

	sol, err := store.Query(`SELECT ?o FROM <http://provchain.org/block/1> WHERE { <http://example.org/a> <http://example.org/p> ?o . }`)
	if err != nil {
		t.Fatal(err)
	}
	if len(sol.Rows) != 1 || sol.Rows[0]["?o"].Value != "in" {
		t.Fatalf("expected FROM to scope results to block/1, got %+v", sol.Rows)
	}
}
