package lexical

import (
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ohadalab/sycora/pkg/logger"
	"github.com/ohadalab/sycora/pkg/search"
)

// snapshotVersion is written as the file header; bump it when the snapshot
// layout changes so stale files are rebuilt instead of misread.
const snapshotVersion = 1

type snapshot struct {
	Version   int
	BuiltAt   int64
	Docs      []Document
	TermFreqs []map[string]int
	DocFreq   map[string]int
	DocLens   []int
	AvgDocLen float64
}

// CorpusLoader supplies the documents of a logical corpus. Implemented by
// the vector store (full scroll) in production and by fixtures in tests.
type CorpusLoader interface {
	LoadCorpus(ctx context.Context, corpus string) ([]Document, error)
}

// Manager builds BM25 indexes lazily, one per corpus, and caches them in
// memory and optionally on disk. Staleness is tolerated within one process
// lifetime; deleting a snapshot file is always safe.
type Manager struct {
	loader      CorpusLoader
	snapshotDir string
	log         *slog.Logger

	mu       sync.Mutex
	indexes  map[string]*Index
	building map[string]*sync.Mutex
}

func NewManager(loader CorpusLoader, snapshotDir string) *Manager {
	return &Manager{
		loader:      loader,
		snapshotDir: snapshotDir,
		log:         logger.For("lexical"),
		indexes:     make(map[string]*Index),
		building:    make(map[string]*sync.Mutex),
	}
}

func (m *Manager) snapshotPath(corpus string) string {
	return filepath.Join(m.snapshotDir, corpus+"_bm25_index.gob")
}

// index returns the corpus index, building it on first use. Concurrent
// first searches of the same corpus serialize on a per-corpus mutex.
func (m *Manager) index(ctx context.Context, corpus string) (*Index, error) {
	m.mu.Lock()
	if idx, ok := m.indexes[corpus]; ok {
		m.mu.Unlock()
		return idx, nil
	}
	buildMu, ok := m.building[corpus]
	if !ok {
		buildMu = &sync.Mutex{}
		m.building[corpus] = buildMu
	}
	m.mu.Unlock()

	buildMu.Lock()
	defer buildMu.Unlock()

	m.mu.Lock()
	if idx, ok := m.indexes[corpus]; ok {
		m.mu.Unlock()
		return idx, nil
	}
	m.mu.Unlock()

	idx, err := m.build(ctx, corpus)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.indexes[corpus] = idx
	m.mu.Unlock()

	return idx, nil
}

func (m *Manager) build(ctx context.Context, corpus string) (*Index, error) {
	if idx := m.loadSnapshot(corpus); idx != nil {
		m.log.Info("loaded lexical index snapshot", "corpus", corpus, "docs", len(idx.Docs))
		return idx, nil
	}

	start := time.Now()
	docs, err := m.loader.LoadCorpus(ctx, corpus)
	if err != nil {
		return nil, fmt.Errorf("failed to load corpus %s: %w", corpus, err)
	}

	idx := Build(docs)
	m.log.Info("built lexical index",
		"corpus", corpus, "docs", len(docs), "duration", time.Since(start))

	m.saveSnapshot(corpus, idx)
	return idx, nil
}

func (m *Manager) loadSnapshot(corpus string) *Index {
	if m.snapshotDir == "" {
		return nil
	}

	file, err := os.Open(m.snapshotPath(corpus))
	if err != nil {
		return nil
	}
	defer file.Close()

	var snap snapshot
	if err := gob.NewDecoder(file).Decode(&snap); err != nil {
		m.log.Warn("discarding unreadable index snapshot", "corpus", corpus, "error", err)
		return nil
	}
	if snap.Version != snapshotVersion {
		m.log.Warn("discarding index snapshot with stale version",
			"corpus", corpus, "version", snap.Version)
		return nil
	}

	return &Index{
		Docs:      snap.Docs,
		TermFreqs: snap.TermFreqs,
		DocFreq:   snap.DocFreq,
		DocLens:   snap.DocLens,
		AvgDocLen: snap.AvgDocLen,
	}
}

func (m *Manager) saveSnapshot(corpus string, idx *Index) {
	if m.snapshotDir == "" {
		return
	}
	if err := os.MkdirAll(m.snapshotDir, 0o755); err != nil {
		m.log.Warn("failed to create snapshot directory", "error", err)
		return
	}

	path := m.snapshotPath(corpus)
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		m.log.Warn("failed to write index snapshot", "corpus", corpus, "error", err)
		return
	}

	snap := snapshot{
		Version:   snapshotVersion,
		BuiltAt:   time.Now().Unix(),
		Docs:      idx.Docs,
		TermFreqs: idx.TermFreqs,
		DocFreq:   idx.DocFreq,
		DocLens:   idx.DocLens,
		AvgDocLen: idx.AvgDocLen,
	}
	if err := gob.NewEncoder(file).Encode(&snap); err != nil {
		file.Close()
		_ = os.Remove(tmp)
		m.log.Warn("failed to encode index snapshot", "corpus", corpus, "error", err)
		return
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		m.log.Warn("failed to finalize index snapshot", "corpus", corpus, "error", err)
	}
}

// Search scores the corpus for the query and returns up to 2k candidates
// with positive normalized scores, filtered by exact metadata match.
// Ties break by raw score descending, then document id.
func (m *Manager) Search(ctx context.Context, corpus, query string, filter search.Filter, k int) ([]search.Candidate, error) {
	idx, err := m.index(ctx, corpus)
	if err != nil {
		return nil, err
	}

	scores := idx.Scores(Tokenize(query))

	maxScore := 0.0
	for _, s := range scores {
		if s > maxScore {
			maxScore = s
		}
	}
	if maxScore == 0 {
		return nil, nil
	}

	type scored struct {
		doc Document
		raw float64
	}
	matches := make([]scored, 0, len(scores))
	for i, raw := range scores {
		if raw <= 0 {
			continue
		}
		if len(filter) > 0 && !filter.Matches(idx.Docs[i].Metadata) {
			continue
		}
		matches = append(matches, scored{doc: idx.Docs[i], raw: raw})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].raw != matches[j].raw {
			return matches[i].raw > matches[j].raw
		}
		return matches[i].doc.ID < matches[j].doc.ID
	})

	limit := 2 * k
	if limit > len(matches) {
		limit = len(matches)
	}

	candidates := make([]search.Candidate, 0, limit)
	for _, match := range matches[:limit] {
		candidates = append(candidates, search.Candidate{
			ID:           match.doc.ID,
			Text:         match.doc.Text,
			Metadata:     match.doc.Metadata,
			LexicalScore: match.raw / maxScore,
			Origin:       search.OriginLexical,
		})
	}
	return candidates, nil
}
