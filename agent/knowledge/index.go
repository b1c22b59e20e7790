package knowledge

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"
)

type indexedChunk struct {
	Source string    `json:"source"`
	Text   string    `json:"text"`
	Vector []float64 `json:"vector"`
}

// vectorIndex is an immutable brute-force cosine index.
type vectorIndex struct {
	Model     string         `json:"model"`
	CreatedAt time.Time      `json:"created_at"`
	Chunks    []indexedChunk `json:"chunks"`
}

func readIndex(path string) (*vectorIndex, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var idx vectorIndex
	if err := json.Unmarshal(raw, &idx); err != nil {
		return nil, fmt.Errorf("decode index %s: %w", path, err)
	}
	for i, c := range idx.Chunks {
		if len(c.Vector) == 0 {
			return nil, fmt.Errorf("index %s: chunk %d has no vector", path, i)
		}
	}
	return &idx, nil
}

// writeIndex persists idx through a temp file and rename so readers never
// observe a partially written index.
func writeIndex(path string, idx *vectorIndex) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	raw, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".index-*.json")
	if err != nil {
		return fmt.Errorf("create temp index: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp index: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace index: %w", err)
	}
	return nil
}

func (idx *vectorIndex) search(query []float64, k int) []string {
	type scored struct {
		text  string
		score float64
	}
	candidates := make([]scored, 0, len(idx.Chunks))
	for _, c := range idx.Chunks {
		if len(c.Vector) != len(query) {
			continue
		}
		candidates = append(candidates, scored{text: c.Text, score: cosineSimilarity(query, c.Vector)})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	k = min(k, len(candidates))
	out := make([]string, k)
	for i := 0; i < k; i++ {
		out[i] = candidates[i].text
	}
	return out
}

func cosineSimilarity(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
