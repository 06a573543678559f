package redis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/stacksearch/relay/internal/db"
)

// --- client.go tests ---

func TestPing_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.Result(mock.RedisString("PONG")))

	s := NewStoreForTest(c)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPing_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c)
	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

// --- hash.go tests ---

func TestHSet_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "HSET" && cmd[1] == "relay:entry:p1"
		})).
		Return(mock.Result(mock.RedisInt64(1)))

	s := NewStoreForTest(c)
	err := s.HSet(context.Background(), "relay:entry:p1", map[string]string{"title": "Red Shoes"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDel_WrapsError(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("DEL", "relay:entry:p1")).
		Return(mock.ErrorResult(errors.New("boom")))

	s := NewStoreForTest(c)
	err := s.Del(context.Background(), "relay:entry:p1")
	if err == nil {
		t.Fatal("expected error")
	}
	var dbErr *db.Error
	if !errors.As(err, &dbErr) || dbErr.Op != db.OpDel {
		t.Errorf("expected db.Error with op DEL, got %v", err)
	}
}

// --- kv.go tests ---

func TestGet_NilMapsToKeyNotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "relay:emb_cache:abc")).
		Return(mock.Result(mock.RedisNil()))

	s := NewStoreForTest(c)
	_, err := s.Get(context.Background(), "relay:emb_cache:abc")
	if !errors.Is(err, db.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

// --- index.go tests ---

func TestBuildCreateArgs(t *testing.T) {
	def := &db.IndexDefinition{
		Name:     "relay-entries",
		Prefixes: []string{"relay:entry:"},
		Fields: []db.IndexField{
			{Name: "content_type", Type: db.IndexFieldTag},
			{
				Name:              "vector",
				Type:              db.IndexFieldVector,
				VectorAlgo:        db.VectorHNSW,
				VectorDim:         384,
				VectorDistance:    db.DistanceCosine,
				VectorM:           32,
				VectorEFConstruct: 400,
			},
		},
	}

	args, err := buildCreateArgs(def)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	joined := strings.Join(args, " ")
	want := "relay-entries ON HASH PREFIX 1 relay:entry: SCHEMA content_type TAG " +
		"vector VECTOR HNSW 10 TYPE FLOAT32 DIM 384 DISTANCE_METRIC COSINE M 32 EF_CONSTRUCTION 400"
	if joined != want {
		t.Errorf("unexpected args:\ngot:  %s\nwant: %s", joined, want)
	}
}

func TestBuildCreateArgs_InvalidDefinition(t *testing.T) {
	tests := []struct {
		name string
		def  db.IndexDefinition
	}{
		{"empty name", db.IndexDefinition{Fields: []db.IndexField{{Name: "vector", Type: db.IndexFieldVector, VectorDim: 8}}}},
		{"no fields", db.IndexDefinition{Name: "idx"}},
		{"vector without dim", db.IndexDefinition{Name: "idx", Fields: []db.IndexField{{Name: "vector", Type: db.IndexFieldVector}}}},
		{"bad identifier", db.IndexDefinition{Name: "idx with spaces", Fields: []db.IndexField{{Name: "f", Type: db.IndexFieldTag}}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := buildCreateArgs(&tc.def); err == nil {
				t.Error("expected error")
			}
		})
	}
}

// --- search.go tests ---

func TestVectorToBytes(t *testing.T) {
	v := []float32{0.0, 1.0}
	got := vectorToBytes(v)

	if len(got) != 8 {
		t.Fatalf("expected 8 bytes, got %d", len(got))
	}
	// 1.0 as little-endian float32 is 00 00 80 3f
	if got[4] != 0x00 || got[5] != 0x00 || got[6] != 0x80 || got[7] != 0x3f {
		t.Errorf("unexpected encoding of 1.0: % x", got[4:])
	}
}

func TestSearchKNN_SetsLimitFromK(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	// Redis defaults to LIMIT 0 10; K above that must be passed through.
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			if cmd[0] != "FT.SEARCH" {
				return false
			}
			joined := strings.Join(cmd, " ")
			return strings.Contains(joined, "KNN 15 @vector") &&
				strings.Contains(joined, "LIMIT 0 15")
		})).
		Return(mock.Result(mock.RedisArray(mock.RedisInt64(0))))

	s := NewStoreForTest(c)
	res, err := s.SearchKNN(context.Background(), &db.KNNQuery{
		IndexName: "relay-entries",
		Vector:    []float32{1, 0},
		K:         15,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Total != 0 || len(res.Entries) != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestSearchKNN_Validation(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := NewStoreForTest(mock.NewClient(ctrl))

	tests := []struct {
		name string
		q    db.KNNQuery
	}{
		{"missing index", db.KNNQuery{Vector: []float32{1}, K: 5}},
		{"missing vector", db.KNNQuery{IndexName: "idx", K: 5}},
		{"non-positive k", db.KNNQuery{IndexName: "idx", Vector: []float32{1}, K: 0}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := s.SearchKNN(context.Background(), &tc.q); err == nil {
				t.Error("expected error")
			}
		})
	}
}
