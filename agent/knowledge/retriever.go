// Package knowledge answers free-text questions from a semantic index built
// over the knowledge-base documents.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/semilla-assistant/agent/contract"
)

var ErrNotReady = errors.New("knowledge index is not loaded")

var _ contractx.Retriever = (*Retriever)(nil)

type Config struct {
	DocsDir      string `envconfig:"DOCS_DIR" split_words:"true" default:"data/knowledge_base"`
	IndexPath    string `envconfig:"INDEX_PATH" split_words:"true" default:"data/index/knowledge.json"`
	ChunkSize    int    `envconfig:"CHUNK_SIZE" split_words:"true" default:"1000"`
	ChunkOverlap int    `envconfig:"CHUNK_OVERLAP" split_words:"true" default:"200"`
	BatchSize    int    `envconfig:"BATCH_SIZE" split_words:"true" default:"64"`
}

// Embedder turns texts into vectors, one per input in the same order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
	Model() string
}

// Retriever serves top-k passages from the in-memory index. The index is
// swapped atomically, so a failed load or rebuild keeps the previous one.
type Retriever struct {
	cfg      Config
	embedder Embedder

	mu    sync.RWMutex
	index *vectorIndex
}

func New(cfg Config, embedder Embedder) *Retriever {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	return &Retriever{cfg: cfg, embedder: embedder}
}

func (r *Retriever) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.index != nil
}

// Load reads the persisted index from disk.
func (r *Retriever) Load() bool {
	path := r.cfg.IndexPath
	idx, err := readIndex(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Warn().Str("path", path).Msg("knowledge index does not exist")
		} else {
			log.Error().Err(err).Str("path", path).Msg("failed to load knowledge index")
		}
		return false
	}

	if r.embedder != nil && idx.Model != "" && idx.Model != r.embedder.Model() {
		log.Warn().Str("index_model", idx.Model).Str("embedder_model", r.embedder.Model()).
			Msg("knowledge index was built with a different embedding model")
	}

	r.swap(idx)
	log.Info().Str("path", path).Int("chunks", len(idx.Chunks)).Msg("knowledge index loaded")
	return true
}

// Reload re-reads the persisted index; used by the operator reload command.
func (r *Retriever) Reload() bool {
	log.Info().Str("path", r.cfg.IndexPath).Msg("reloading knowledge index from disk")
	return r.Load()
}

// Rebuild indexes every *.txt document under DocsDir, persists the index and
// makes it current.
func (r *Retriever) Rebuild(ctx context.Context) bool {
	if r.embedder == nil {
		log.Error().Msg("cannot rebuild knowledge index without an embedder")
		return false
	}

	idx, err := r.build(ctx)
	if err != nil {
		log.Error().Err(err).Str("docs_dir", r.cfg.DocsDir).Msg("failed to build knowledge index")
		return false
	}
	if err := writeIndex(r.cfg.IndexPath, idx); err != nil {
		log.Error().Err(err).Str("path", r.cfg.IndexPath).Msg("failed to persist knowledge index")
		return false
	}

	r.swap(idx)
	log.Info().Str("path", r.cfg.IndexPath).Int("chunks", len(idx.Chunks)).Msg("knowledge index rebuilt")
	return true
}

func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]string, error) {
	r.mu.RLock()
	idx := r.index
	r.mu.RUnlock()

	if idx == nil {
		return nil, ErrNotReady
	}
	if r.embedder == nil {
		return nil, fmt.Errorf("%w: no embedder configured", ErrNotReady)
	}
	if k <= 0 || len(idx.Chunks) == 0 {
		return nil, nil
	}

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query: expected 1 vector, got %d", len(vectors))
	}
	return idx.search(vectors[0], k), nil
}

func (r *Retriever) swap(idx *vectorIndex) {
	r.mu.Lock()
	r.index = idx
	r.mu.Unlock()
}

type document struct {
	source string
	text   string
}

func (r *Retriever) build(ctx context.Context) (*vectorIndex, error) {
	docs, err := loadDocuments(r.cfg.DocsDir)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no documents found in %s", r.cfg.DocsDir)
	}

	var chunks []indexedChunk
	for _, d := range docs {
		for _, text := range SplitText(d.text, r.cfg.ChunkSize, r.cfg.ChunkOverlap) {
			chunks = append(chunks, indexedChunk{Source: d.source, Text: text})
		}
	}
	log.Info().Int("documents", len(docs)).Int("chunks", len(chunks)).Msg("documents split into chunks")

	for start := 0; start < len(chunks); start += r.cfg.BatchSize {
		end := min(start+r.cfg.BatchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}

		vectors, err := r.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed chunks %d-%d: %w", start, end, err)
		}
		if len(vectors) != len(texts) {
			return nil, fmt.Errorf("embed chunks %d-%d: expected %d vectors, got %d", start, end, len(texts), len(vectors))
		}
		for i, v := range vectors {
			chunks[start+i].Vector = v
		}
	}

	return &vectorIndex{
		Model:     r.embedder.Model(),
		CreatedAt: time.Now().UTC(),
		Chunks:    chunks,
	}, nil
}

func loadDocuments(dir string) ([]document, error) {
	var docs []document
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".txt") {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			rel = path
		}
		docs = append(docs, document{source: rel, text: string(raw)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	return docs, nil
}
