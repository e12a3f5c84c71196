package retrieval

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hsn0918/filingtree/internal/logger"
	"github.com/hsn0918/filingtree/internal/store"
	"github.com/hsn0918/filingtree/internal/tree"
)

// Query is one incoming retrieval request (spec.md §6 "POST /query").
type Query struct {
	Text      string
	Companies []string
	Years     []int
}

// searchResultCache caches one (sub-question, document) pair's merged
// hybrid search result (spec.md §4.5 step 3), so a repeated sub-question
// against a document skips re-running Value Search and LLM Search.
type searchResultCache interface {
	GetSearchResult(ctx context.Context, subQuestion, docID string, dest any) (bool, error)
	PutSearchResult(ctx context.Context, subQuestion, docID string, value any) error
}

// Orchestrator drives decompose → select → fan out hybrid search → merge
// → pack context → generate answer (spec.md §4.5).
type Orchestrator struct {
	decomposer  *Decomposer
	selector    *Selector
	valueSearch *ValueSearch
	llmSearch   *LLMSearch
	generator   *Generator
	db          *store.Store
	cache       searchResultCache
	concurrency int
}

// NewOrchestrator constructs the Retrieval Orchestrator from its engines.
func NewOrchestrator(
	decomposer *Decomposer,
	selector *Selector,
	valueSearch *ValueSearch,
	llmSearch *LLMSearch,
	generator *Generator,
	db *store.Store,
	concurrency int,
) *Orchestrator {
	return &Orchestrator{
		decomposer:  decomposer,
		selector:    selector,
		valueSearch: valueSearch,
		llmSearch:   llmSearch,
		generator:   generator,
		db:          db,
		concurrency: concurrency,
	}
}

// WithCache attaches the search-result cache and returns the Orchestrator
// for chaining, matching embedding.Adapter's WithCache.
func (o *Orchestrator) WithCache(c searchResultCache) *Orchestrator {
	o.cache = c
	return o
}

// pairTask is one (sub-question, document) unit of hybrid search work.
type pairTask struct {
	subIndex int
	sub      SubQuestion
	doc      store.Document
}

// Run executes the full retrieval pipeline for one query (spec.md §4.5).
// Per-document hybrid search for every (sub-question, document) pair is
// fanned out under a single concurrency-capped errgroup (spec.md §5 "a
// per-operation concurrency cap throttles outstanding LLM calls").
func (o *Orchestrator) Run(ctx context.Context, q Query) (*Answer, error) {
	subQuestions := o.decomposer.Decompose(ctx, q.Text)

	var tasks []pairTask
	for i, sub := range subQuestions {
		candidates, err := o.selector.SelectForSubQuestion(ctx, sub, q.Companies, q.Years)
		if err != nil {
			return nil, err
		}
		for _, doc := range candidates {
			tasks = append(tasks, pairTask{subIndex: i, sub: sub, doc: doc})
		}
	}

	docs := make(map[string]store.Document)
	nodeMaps := make(map[string]map[string]*tree.Node)
	taskHits := make([][]MergedHit, len(tasks))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	for idx, task := range tasks {
		idx, task := idx, task
		g.Go(func() error {
			merged, nodeMap, err := o.searchOneDocument(gctx, task.sub.Text, task.doc)
			if err != nil {
				logger.Get().Warn("retrieval: document search failed, skipping",
					zap.String("doc_id", task.doc.ID), zap.Error(err))
				return nil
			}

			hits := make([]MergedHit, len(merged))
			for j, nodeID := range merged {
				hits[j] = MergedHit{DocID: task.doc.ID, NodeID: nodeID}
			}
			taskHits[idx] = hits

			mu.Lock()
			docs[task.doc.ID] = task.doc
			nodeMaps[task.doc.ID] = nodeMap
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Reassemble in (sub-question order, document order) regardless of
	// completion order (spec.md §4.8 "Across sub-questions").
	perPair := make([][]MergedHit, len(subQuestions))
	for idx, task := range tasks {
		perPair[task.subIndex] = append(perPair[task.subIndex], taskHits[idx]...)
	}

	merged := MergeAll(perPair)
	blocks := o.generator.PackContext(merged, docs, nodeMaps)

	return o.generator.Generate(ctx, q.Text, subQuestions, blocks)
}

// searchOneDocument runs Value Search and LLM Search concurrently for one
// (sub-question, document) pair and merges their results (spec.md §4.5
// step 3, §5 "launched as concurrent tasks and awaited together").
func (o *Orchestrator) searchOneDocument(ctx context.Context, subQuestion string, doc store.Document) ([]string, map[string]*tree.Node, error) {
	treeRecord, err := o.db.GetTree(ctx, doc.ID)
	if err != nil {
		return nil, nil, err
	}
	roots, err := store.DecodeTreeNoText(treeRecord.TreeNoText)
	if err != nil {
		return nil, nil, err
	}
	nodeMap, err := store.DecodeNodeMap(treeRecord.NodeMapJSON)
	if err != nil {
		return nil, nil, err
	}

	if o.cache != nil {
		var cached []string
		found, err := o.cache.GetSearchResult(ctx, subQuestion, doc.ID, &cached)
		if err != nil {
			logger.Get().Warn("retrieval: search result cache read failed", zap.String("doc_id", doc.ID), zap.Error(err))
		} else if found {
			return cached, nodeMap, nil
		}
	}

	var (
		valueResults []ScoredNode
		llmResults   []string
		valueErr     error
	)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		valueResults, valueErr = o.valueSearch.Search(ctx, subQuestion, doc.ID)
	}()
	go func() {
		defer wg.Done()
		llmResults = o.llmSearch.Search(ctx, subQuestion, roots, nodeMap)
	}()
	wg.Wait()

	if valueErr != nil {
		logger.Get().Warn("retrieval: value search failed for document", zap.String("doc_id", doc.ID), zap.Error(valueErr))
		valueResults = nil
	}

	merged := MergeDocument(llmResults, valueResults)

	if o.cache != nil {
		if err := o.cache.PutSearchResult(ctx, subQuestion, doc.ID, merged); err != nil {
			logger.Get().Warn("retrieval: search result cache write failed", zap.String("doc_id", doc.ID), zap.Error(err))
		}
	}

	return merged, nodeMap, nil
}
