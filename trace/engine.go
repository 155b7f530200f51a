// Package trace implements the provenance trace engine: a frontier-based
// bounded SPARQL-backed traversal with pivot selection and frontier
// reduction tuned by an optimization level.
package trace

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/provchain/provchain-core/pverr"
	"github.com/provchain/provchain-core/rdf"
)

const defaultMaxDepth = 50

// Frontier holds the traversal state between trace iterations.
type Frontier struct {
	Current			map[string]struct{}
	Visited			map[string]struct{}
	BoundaryDistance	uint32
	ConnectivityScores	map[string]float64
}

func newFrontier(seed string) *Frontier {
	return &Frontier{
		Current: map[string]struct{}{seed: {}},
		Visited: make(map[string]struct{}),
		ConnectivityScores: make(map[string]float64),
	}
}

func (f *Frontier) isEmpty() bool { return len(f.Current) == 0 }

// Event is a single hop in the returned trace path.
type Event struct {
	Entity		string
	Relationship	string
	Source		string
	Timestamp	string
	Metadata	map[string]string
}

// Result is the output shape of a Trace call.
type Result struct {
	Path			[]Event
	Optimized		bool
	EntitiesExplored	int
	ExecutionTimeMS		int64
}

// Querier is the subset of the quad-store contract the trace engine needs.
type Querier interface {
	Query(sparql string) (*rdf.Solutions, error)
}

// Engine runs traces against a queryable store.
type Engine struct {
	store		Querier
	logger		*zap.SugaredLogger
	maxDepth	int
}

// NewEngine constructs a trace engine over store with a default production
// logger (see governance.New for the same nil-defaulting pattern).
func NewEngine(store Querier) *Engine {
	return NewEngineWithLogger(store, nil)
}

// NewEngineWithLogger constructs a trace engine with an explicit logger,
// for callers that want traces routed through an existing zap instance.
func NewEngineWithLogger(store Querier, lg *zap.SugaredLogger) *Engine {
	if lg == nil {
		raw, _ := zap.NewProduction()
		lg = raw.Sugar()
	}
	return &Engine{store: store, logger: lg, maxDepth: defaultMaxDepth}
}

// SetMaxDepth overrides the iteration bound, sourced from the
// trace_max_depth configuration key. Non-positive values are ignored.
func (e *Engine) SetMaxDepth(depth int) {
	if depth > 0 {
		e.maxDepth = depth
	}
}

// Trace performs a bounded frontier-based traversal starting from
// http://example.org/batch{batchID}, honoring ctx's deadline between
// iterations.
func (e *Engine) Trace(ctx context.Context, batchID string, optimizationLevel int) (Result, error) {
	start := time.Now()
	seed := fmt.Sprintf("http://example.org/batch%s", batchID)
	frontier := newFrontier(seed)

	var path []Event
	entitiesExplored := 0
	depth := 0

	for !frontier.isEmpty() && depth < e.maxDepth {
		select {
		case <-ctx.Done():
			// Partial-success contract: the path walked so far is returned
			// alongside the timeout error.
			return Result{
				Path: path,
				Optimized: true,
				EntitiesExplored: entitiesExplored,
				ExecutionTimeMS: time.Since(start).Milliseconds(),
			}, pverr.Wrap(pverr.TraceTimeout, "trace deadline exceeded", ctx.Err())
		default:
		}
		depth++

		if optimizationLevel > 0 && len(frontier.Current) > 10 {
			e.reduceFrontier(frontier, optimizationLevel)
		}

		if optimizationLevel > 1 && depth%3 == 0 {
			e.prioritizePivots(frontier)
		}

		events, next, err := e.exploreFrontier(frontier)
		if err != nil {
			return Result{}, err
		}
		path = append(path, events...)
		entitiesExplored += len(next)

		for entity := range frontier.Current {
			frontier.Visited[entity] = struct{}{}
		}

		frontier = e.updateFrontier(next, frontier.Visited)
	}

	if depth >= e.maxDepth && !frontier.isEmpty() {
		e.logger.Warnw("trace: stopped at depth bound with frontier still open",
			"batch_id", batchID, "depth", depth, "frontier_size", len(frontier.Current))
	}

	return Result{
		Path: path,
		Optimized: optimizationLevel > 0,
		EntitiesExplored: entitiesExplored,
		ExecutionTimeMS: time.Since(start).Milliseconds(),
	}, nil
}

// reduceFrontier keeps only the top fraction (by connectivity score) of
// the current frontier.
func (e *Engine) reduceFrontier(f *Frontier, optimizationLevel int) {
	fraction := 0.5
	switch optimizationLevel {
	case 1:
		fraction = 0.8
	case 2:
		fraction = 0.6
	}

	targetSize := int(float64(len(f.Current)) * fraction)
	if targetSize >= len(f.Current) || targetSize <= 0 {
		return
	}

	type scored struct {
		entity	string
		score	float64
	}
	entries := make([]scored, 0, len(f.Current))
	for entity := range f.Current {
		entries = append(entries, scored{entity, f.ConnectivityScores[entity]})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].score > entries[j].score })

	kept := make(map[string]struct{}, targetSize)
	for _, s := range entries[:targetSize] {
		kept[s.entity] = struct{}{}
	}
	f.Current = kept
}

// prioritizePivots finds high-connectivity entities in the frontier and
// doubles their scores to bias future exploration toward them.
func (e *Engine) prioritizePivots(f *Frontier) {
	pivots := e.findPivots(f)
	for pivot := range pivots {
		if score, ok := f.ConnectivityScores[pivot]; ok {
			f.ConnectivityScores[pivot] = score * 2.0
		} else {
			f.ConnectivityScores[pivot] = 10.0
		}
	}
}

func (e *Engine) findPivots(f *Frontier) map[string]struct{} {
	type scored struct {
		entity	string
		score	float64
	}
	var entries []scored
	pivots := make(map[string]struct{})

	for entity := range f.Current {
		if _, visited := f.Visited[entity]; visited {
			continue
		}
		score := f.ConnectivityScores[entity]
		entries = append(entries, scored{entity, score})
		if score > 2.0 {
			pivots[entity] = struct{}{}
		}
	}

	if len(pivots) == 0 && len(entries) > 0 {
		sort.Slice(entries, func(i, j int) bool { return entries[i].score > entries[j].score })
		pivotCount := int(float64(len(entries))*0.2 + 0.999999) // ceil
		if pivotCount < 1 {
			pivotCount = 1
		}
		if pivotCount > len(entries) {
			pivotCount = len(entries)
		}
		for _, s := range entries[:pivotCount] {
			pivots[s.entity] = struct{}{}
		}
	}
	return pivots
}

// exploreFrontier issues one SPARQL query per unvisited frontier entity
// for its outgoing edges.
func (e *Engine) exploreFrontier(f *Frontier) ([]Event, []string, error) {
	var events []Event
	var next []string

	for entity := range f.Current {
		if _, visited := f.Visited[entity]; visited {
			continue
		}

		query := fmt.Sprintf(`SELECT ?p ?target ?ts WHERE { <%s> ?p ?target . OPTIONAL { <%s> <%s> ?ts . } FILTER(isIRI(?target)) }`, entity, entity, rdf.PredRecordedAt)
		sol, err := e.store.Query(query)
		if err != nil {
			return nil, nil, pverr.Wrap(pverr.Store, "trace exploration query", err)
		}

		for _, row := range sol.Rows {
			target, ok := row["?target"]
			if !ok || !target.IsIRI() {
				continue
			}
			if _, visited := f.Visited[target.Value]; visited {
				continue
			}
			next = append(next, target.Value)

			relationship := "unknown"
			if p, ok := row["?p"]; ok {
				relationship = p.Value
			}
			meta := make(map[string]string)
			timestamp := ""
			if ts, ok := row["?ts"]; ok {
				timestamp = ts.Value
				meta["timestamp"] = ts.Value
			}
			events = append(events, Event{
				Entity: target.Value,
				Relationship: relationship,
				Source: entity,
				Timestamp: timestamp,
				Metadata: meta,
			})
		}
	}
	return events, next, nil
}

// updateFrontier builds the next frontier from next, carrying forward the
// visited set and recomputing connectivity scores.
func (e *Engine) updateFrontier(next []string, visited map[string]struct{}) *Frontier {
	f := &Frontier{
		Current: make(map[string]struct{}, len(next)),
		Visited: visited,
		ConnectivityScores: make(map[string]float64, len(next)),
	}
	for _, entity := range next {
		f.Current[entity] = struct{}{}
		f.ConnectivityScores[entity] = e.connectivityScore(entity)
	}
	return f
}

// connectivityScore counts the unique IRIs incident on entity, in either
// direction, via a COUNT-shaped SPARQL query.
func (e *Engine) connectivityScore(entity string) float64 {
	query := fmt.Sprintf(`SELECT ?connected WHERE { { <%s> ?p ?connected . } UNION { ?connected ?p <%s> . } FILTER(isIRI(?connected)) }`, entity, entity)
	sol, err := e.store.Query(query)
	if err != nil {
		return 0
	}
	seen := make(map[string]struct{})
	for _, row := range sol.Rows {
		if c, ok := row["?connected"]; ok {
			seen[c.Value] = struct{}{}
		}
	}
	return float64(len(seen))
}

