package rdf

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// This file evaluates the bounded SPARQL 1.1 subset this module's own code
// issues: SELECT ... [FROM <graph>] WHERE { bgp [OPTIONAL {...}] [UNION
// {...}] [FILTER(...)] } [ORDER BY ?var]. This is a small hand-written
// evaluator rather than a parser for the full SPARQL grammar — sufficient
// for the metadata-ordering and trace-expansion queries the core issues
// against its own QuadStore, not a general-purpose SPARQL endpoint.

type triplePattern struct {
	s, p, o string // "?var", "<iri>", or literal token as written
	optional bool
}

type parsedQuery struct {
	vars		[]string
	fromIRI		string
	required	[]triplePattern
	optional	[]triplePattern
	unions		[][]triplePattern
	filters		[]filterClause
	orderBy		string
}

type filterClause struct {
	kind	string	// "isIRI" or "neq"
	v	string
	arg	string
}

// Query evaluates sparql against all quads in the store, or only against
// the quads of the FROM graph when one is given. GRAPH clauses are not
// supported.
func (m *MemoryStore) Query(sparql string) (*Solutions, error) {
	q, err := parseSelect(sparql)
	if err != nil {
		return nil, fmt.Errorf("sparql parse: %w", err)
	}

	var candidateQuads []Quad
	m.mu.RLock()
	if q.fromIRI != "" {
		candidateQuads = m.quadsInGraphLocked(q.fromIRI)
	} else {
		candidateQuads = append(candidateQuads, m.all...)
	}
	m.mu.RUnlock()

	rows := []map[string]Term{{}}
	rows = joinPatterns(rows, q.required, candidateQuads, false)

	if len(q.unions) > 0 {
		var unioned []map[string]Term
		for _, branch := range q.unions {
			unioned = append(unioned, joinPatterns(rows, branch, candidateQuads, false)...)
		}
		rows = unioned
	}

	rows = joinPatterns(rows, q.optional, candidateQuads, true)
	rows = applyFilters(rows, q.filters)

	if q.orderBy != "" {
		sort.SliceStable(rows, func(i, j int) bool {
			return termOrderKey(rows[i][q.orderBy]) < termOrderKey(rows[j][q.orderBy])
		})
	}

	return &Solutions{Vars: q.vars, Rows: rows}, nil
}

// termOrderKey zero-pads integer-valued literals so ORDER BY ?index sorts
// numerically, not lexically.
func termOrderKey(t Term) string {
	if n, err := strconv.ParseUint(t.Value, 10, 64); err == nil {
		return fmt.Sprintf("%020d", n)
	}
	return t.Value
}

func joinPatterns(rows []map[string]Term, patterns []triplePattern, quads []Quad, optional bool) []map[string]Term {
	if len(patterns) == 0 {
		return rows
	}
	for _, pat := range patterns {
		var next []map[string]Term
		for _, row := range rows {
			matched := false
			for _, qd := range quads {
				bindings := matchPattern(pat, qd, row)
				if bindings == nil {
					continue
				}
				matched = true
				merged := cloneBindings(row)
				for k, v := range bindings {
					merged[k] = v
				}
				next = append(next, merged)
			}
			if !matched && optional {
				next = append(next, row)
			}
		}
		rows = next
	}
	return rows
}

func cloneBindings(row map[string]Term) map[string]Term {
	out := make(map[string]Term, len(row)+2)
	for k, v := range row {
		out[k] = v
	}
	return out
}

// matchPattern returns the new bindings pat contributes against qd given the
// row's existing bindings, or nil if qd does not match.
func matchPattern(pat triplePattern, qd Quad, row map[string]Term) map[string]Term {
	out := map[string]Term{}
	if !matchTerm(pat.s, qd.Subject, row, out) {
		return nil
	}
	if !matchTerm(pat.p, qd.Predicate, row, out) {
		return nil
	}
	if !matchTerm(pat.o, qd.Object, row, out) {
		return nil
	}
	return out
}

func matchTerm(tok string, actual Term, row map[string]Term, out map[string]Term) bool {
	if strings.HasPrefix(tok, "?") {
		if bound, ok := row[tok]; ok {
			return bound == actual
		}
		if bound, ok := out[tok]; ok {
			return bound == actual
		}
		out[tok] = actual
		return true
	}
	want, err := parseTerm(tok, nil)
	if err != nil {
		return false
	}
	return termsEqual(want, actual)
}

func termsEqual(a, b Term) bool {
	return a.Kind == b.Kind && a.Value == b.Value && a.Datatype == b.Datatype && a.Lang == b.Lang
}

func applyFilters(rows []map[string]Term, filters []filterClause) []map[string]Term {
	if len(filters) == 0 {
		return rows
	}
	var out []map[string]Term
	for _, row := range rows {
		ok := true
		for _, f := range filters {
			t, bound := row[f.v]
			if !bound {
				ok = false
				break
			}
			switch f.kind {
			case "isIRI":
				if t.Kind != KindIRI {
					ok = false
				}
			case "neq":
				want, err := parseTerm(f.arg, nil)
				if err == nil && termsEqual(t, want) {
					ok = false
				}
			}
			if !ok {
				break
			}
		}
		if ok {
			out = append(out, row)
		}
	}
	return out
}

func parseSelect(sparql string) (*parsedQuery, error) {
	src := strings.Join(strings.Fields(sparql), " ")
	upper := strings.ToUpper(src)
	selIdx := strings.Index(upper, "SELECT")
	if selIdx < 0 {
		return nil, fmt.Errorf("only SELECT queries are supported")
	}
	whereIdx := strings.Index(upper, "WHERE")
	if whereIdx < 0 {
		return nil, fmt.Errorf("missing WHERE clause")
	}
	header := src[selIdx+len("SELECT") : whereIdx]
	q := &parsedQuery{}

	if fi := strings.Index(strings.ToUpper(header), "FROM"); fi >= 0 {
		rest := strings.TrimSpace(header[fi+len("FROM"):])
		fields := strings.Fields(rest)
		if len(fields) > 0 {
			q.fromIRI = strings.TrimSuffix(strings.TrimPrefix(fields[0], "<"), ">")
		}
		header = header[:fi]
	}
	for _, f := range strings.Fields(header) {
		if strings.HasPrefix(f, "?") {
			q.vars = append(q.vars, f)
		}
	}

	body := src[whereIdx+len("WHERE"):]
	body = strings.TrimSpace(body)
	if ob := strings.Index(strings.ToUpper(body), "ORDER BY"); ob >= 0 {
		rest := strings.TrimSpace(body[ob+len("ORDER BY"):])
		fields := strings.Fields(rest)
		if len(fields) > 0 {
			q.orderBy = strings.TrimRight(fields[0], "}")
		}
		body = body[:ob]
	}
	body = strings.TrimSpace(body)
	body = strings.TrimPrefix(body, "{")
	body = strings.TrimSuffix(strings.TrimSpace(body), "}")

	if err := parseGroup(body, q); err != nil {
		return nil, err
	}
	return q, nil
}

// parseGroup splits a WHERE-body into UNION branches, OPTIONAL blocks,
// FILTER clauses and the remaining basic graph pattern.
func parseGroup(body string, q *parsedQuery) error {
	remaining := body
	for {
		upper := strings.ToUpper(remaining)
		oi := strings.Index(upper, "OPTIONAL")
		ui := strings.Index(upper, "UNION")
		fi := strings.Index(upper, "FILTER")

		next := -1
		kind := ""
		for _, c := range []struct {
			idx	int
			kind	string
		}{{oi, "optional"}, {ui, "union"}, {fi, "filter"}} {
			if c.idx >= 0 && (next == -1 || c.idx < next) {
				next, kind = c.idx, c.kind
			}
		}
		if next == -1 {
			return appendBGP(remaining, q)
		}

		before := remaining[:next]
		if kind == "union" {
			// The braced group preceding UNION is the first branch of the
			// union, not part of the required pattern.
			if gi := strings.LastIndex(before, "{"); gi >= 0 {
				branch, err := parseTriples(before[gi:])
				if err != nil {
					return err
				}
				q.unions = append(q.unions, branch)
				before = before[:gi]
			}
		}
		if err := appendBGP(before, q); err != nil {
			return err
		}

		switch kind {
		case "optional":
			braceStart := strings.Index(remaining[next:], "{")
			inner, rest, err := extractBraces(remaining[next+braceStart:])
			if err != nil {
				return err
			}
			pats, err := parseTriples(inner)
			if err != nil {
				return err
			}
			q.optional = append(q.optional, pats...)
			remaining = rest
		case "union":
			braceStart := strings.Index(remaining[next:], "{")
			inner, rest, err := extractBraces(remaining[next+braceStart:])
			if err != nil {
				return err
			}
			pats, err := parseTriples(inner)
			if err != nil {
				return err
			}
			q.unions = append(q.unions, pats)
			remaining = rest
		case "filter":
			parenStart := strings.Index(remaining[next:], "(")
			inner, rest, err := extractParens(remaining[next+parenStart:])
			if err != nil {
				return err
			}
			fc, err := parseFilter(inner)
			if err != nil {
				return err
			}
			q.filters = append(q.filters, fc)
			remaining = rest
		}
	}
}

func parseFilter(inner string) (filterClause, error) {
	inner = strings.TrimSpace(inner)
	if strings.HasPrefix(strings.ToUpper(inner), "ISIRI") {
		in, _, err := extractParens(inner[len("isIRI"):])
		if err != nil {
			return filterClause{}, err
		}
		return filterClause{kind: "isIRI", v: strings.TrimSpace(in)}, nil
	}
	if idx := strings.Index(inner, "!="); idx >= 0 {
		return filterClause{kind: "neq", v: strings.TrimSpace(inner[:idx]), arg: strings.TrimSpace(inner[idx+2:])}, nil
	}
	return filterClause{}, fmt.Errorf("unsupported filter: %s", inner)
}

func extractBraces(s string) (inner, rest string, err error) {
	if !strings.HasPrefix(s, "{") {
		return "", "", fmt.Errorf("expected '{' in %q", s)
	}
	depth := 0
	for i, c := range s {
		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[1:i], s[i+1:], nil
			}
		}
	}
	return "", "", fmt.Errorf("unbalanced braces in %q", s)
}

func extractParens(s string) (inner, rest string, err error) {
	if !strings.HasPrefix(s, "(") {
		return "", "", fmt.Errorf("expected '(' in %q", s)
	}
	depth := 0
	for i, c := range s {
		switch c {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s[1:i], s[i+1:], nil
			}
		}
	}
	return "", "", fmt.Errorf("unbalanced parens in %q", s)
}

func appendBGP(s string, q *parsedQuery) error {
	pats, err := parseTriples(s)
	if err != nil {
		return err
	}
	q.required = append(q.required, pats...)
	return nil
}

// parseTriples splits a basic graph pattern body on '.' into individual
// triple patterns of exactly 3 whitespace-separated tokens each.
func parseTriples(body string) ([]triplePattern, error) {
	body = strings.TrimSpace(body)
	body = strings.TrimPrefix(body, "{")
	body = strings.TrimSuffix(body, "}")
	var pats []triplePattern
	for _, stmt := range splitTopLevelDot(body) {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		toks := strings.Fields(stmt)
		if len(toks) != 3 {
			return nil, fmt.Errorf("expected 3 terms in pattern %q, got %d", stmt, len(toks))
		}
		pats = append(pats, triplePattern{s: toks[0], p: toks[1], o: toks[2]})
	}
	return pats, nil
}

// splitTopLevelDot splits on '.' while respecting quoted literals and
// <...>-delimited IRIs, so the dots inside "example.org" or a literal value
// are not treated as statement terminators.
func splitTopLevelDot(s string) []string {
	var out []string
	var cur strings.Builder
	inQuote := false
	inAngle := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			inQuote = !inQuote
		case '<':
			if !inQuote {
				inAngle = true
			}
		case '>':
			if !inQuote {
				inAngle = false
			}
		}
		if c == '.' && !inQuote && !inAngle {
			out = append(out, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteByte(c)
	}
	if strings.TrimSpace(cur.String()) != "" {
		out = append(out, cur.String())
	}
	return out
}
