package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/stacksearch/relay/internal/db"
	"github.com/stacksearch/relay/internal/domain"
)

const keyPrefix = domain.KeyPrefix + "entry:"

// store is the consumer interface for the vector index (ISP).
type store interface {
	Ping(ctx context.Context) error
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	Del(ctx context.Context, key string) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// HNSWConfig holds HNSW build parameters for the vector field.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Repo is the vector index repository: one FT index over entry hashes,
// each hash holding the embedding blob plus denormalized display fields.
type Repo struct {
	store store
	name  string
	dim   int
	hnsw  HNSWConfig
}

// New creates a vector index repository.
func New(s store, name string, dim int) *Repo {
	return &Repo{store: s, name: name, dim: dim}
}

// WithHNSW sets HNSW build parameters.
func (r *Repo) WithHNSW(cfg HNSWConfig) *Repo {
	r.hnsw = cfg
	return r
}

// Ping checks index backend connectivity.
func (r *Repo) Ping(ctx context.Context) error {
	if err := r.store.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrIndexUnavailable, err)
	}
	return nil
}

// EnsureIndex creates the FT index if it does not exist yet.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, r.name)
	if err != nil {
		return fmt.Errorf("check index %s: %w", r.name, err)
	}
	if exists {
		return nil
	}

	def := &db.IndexDefinition{
		Name:     r.name,
		Prefixes: []string{keyPrefix},
		Fields: []db.IndexField{
			{Name: "content_type", Type: db.IndexFieldTag},
			{
				Name:              "vector",
				Type:              db.IndexFieldVector,
				VectorAlgo:        db.VectorHNSW,
				VectorDim:         r.dim,
				VectorDistance:    db.DistanceCosine,
				VectorM:           r.hnsw.M,
				VectorEFConstruct: r.hnsw.EFConstruct,
			},
		},
	}

	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %s: %w", r.name, err)
	}
	return nil
}

// Upsert stores one entry's vector and metadata.
func (r *Repo) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error {
	if id == "" {
		return fmt.Errorf("entry id is required")
	}
	if len(vector) != r.dim {
		return fmt.Errorf("vector dimension mismatch: got %d, want %d", len(vector), r.dim)
	}

	if err := r.store.HSet(ctx, keyFor(id), buildHashFields(vector, metadata)); err != nil {
		return fmt.Errorf("upsert entry %s: %w", id, err)
	}
	return nil
}

// UpsertItem is one entry in a batched upsert.
type UpsertItem struct {
	ID       string
	Vector   []float32
	Metadata map[string]string
}

// UpsertBatch stores multiple entries in a single pipelined round-trip.
func (r *Repo) UpsertBatch(ctx context.Context, items []UpsertItem) error {
	if len(items) == 0 {
		return nil
	}

	hashItems := make([]db.HashSetItem, len(items))
	for i, item := range items {
		if len(item.Vector) != r.dim {
			return fmt.Errorf("vector dimension mismatch for %s: got %d, want %d",
				item.ID, len(item.Vector), r.dim)
		}
		hashItems[i] = db.HashSetItem{
			Key:    keyFor(item.ID),
			Fields: buildHashFields(item.Vector, item.Metadata),
		}
	}

	if err := r.store.HSetMulti(ctx, hashItems); err != nil {
		return fmt.Errorf("upsert batch: %w", err)
	}
	return nil
}

// Delete removes one entry from the index.
func (r *Repo) Delete(ctx context.Context, id string) error {
	if err := r.store.Del(ctx, keyFor(id)); err != nil {
		return fmt.Errorf("delete entry %s: %w", id, err)
	}
	return nil
}

// Query runs a KNN search and returns matches ordered by descending similarity.
func (r *Repo) Query(ctx context.Context, vector []float32, k int) ([]domain.Match, error) {
	result, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName: r.name,
		Vector:    vector,
		K:         k,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: knn query: %w", domain.ErrIndexUnavailable, err)
	}

	matches := make([]domain.Match, 0, len(result.Entries))
	for _, e := range result.Entries {
		matches = append(matches, domain.Match{
			EntryID:  entryID(e.Key),
			Score:    e.Score,
			Metadata: parseHashFields(e.Fields),
		})
	}
	return matches, nil
}
