package vectorindex

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/memoryforge/internal/memory"
)

// QdrantConfig configures the gRPC connection to a local/embedded Qdrant
// instance.
type QdrantConfig struct {
	Host   string
	Port   int
	UseTLS bool
}

// ApplyDefaults fills in the usual local-instance values.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
}

// QdrantStore is the Qdrant-backed Store (§4.2).
type QdrantStore struct {
	client *qdrant.Client
	cfg    QdrantConfig

	mu   sync.Mutex
	dims map[string]int // collection name -> dimension, cached from Open
}

// NewQdrantStore dials a Qdrant instance.
func NewQdrantStore(cfg QdrantConfig) (*QdrantStore, error) {
	cfg.ApplyDefaults()
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, memory.FatalBackendError("connect to qdrant", err)
	}
	return &QdrantStore{client: client, cfg: cfg, dims: make(map[string]int)}, nil
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// Open verifies (creating if absent) that projectID's collection matches
// dimension, dropping and recreating it on mismatch per §4.2 — the index
// is derived, so a stale dimension is simply rebuilt rather than migrated.
//
// Dimension is tracked in-process (s.dims), the same way the collection
// existence cache works: a fresh mismatch only surfaces once this process
// has itself created the collection at a different size, since the wire
// protocol's collection-info shape isn't exercised anywhere in the known
// client usage to introspect safely.
func (s *QdrantStore) Open(ctx context.Context, projectID string, dimension int) error {
	name := CollectionName(projectID)

	exists, err := s.collectionExists(ctx, name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	existingDim, known := s.dims[name]
	s.mu.Unlock()

	if exists && known && existingDim != dimension {
		if err := s.dropCollection(ctx, name); err != nil {
			return err
		}
		exists = false
	}
	if !exists {
		if err := s.createCollection(ctx, name, dimension); err != nil {
			return err
		}
	}
	s.cacheDim(name, dimension)
	return nil
}

func (s *QdrantStore) cacheDim(name string, dim int) {
	s.mu.Lock()
	s.dims[name] = dim
	s.mu.Unlock()
}

func (s *QdrantStore) collectionExists(ctx context.Context, name string) (bool, error) {
	info, err := s.client.GetCollectionInfo(ctx, name)
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
			return false, nil
		}
		return false, memory.TransientBackendError("get collection info", err)
	}
	return info != nil, nil
}

func (s *QdrantStore) createCollection(ctx context.Context, name string, dimension int) error {
	return s.withRetry(ctx, func() error {
		return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		})
	})
}

func (s *QdrantStore) dropCollection(ctx context.Context, name string) error {
	err := s.client.DeleteCollection(ctx, name)
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
			return nil
		}
		return memory.TransientBackendError("delete collection", err)
	}
	return nil
}

func (s *QdrantStore) Upsert(ctx context.Context, projectID, memoryID string, vector []float32, payload Payload) error {
	name := CollectionName(projectID)
	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(memoryID),
		Vectors: qdrant.NewVectors(vector...),
		Payload: map[string]*qdrant.Value{
			"memory_id":  {Kind: &qdrant.Value_StringValue{StringValue: memoryID}},
			"type":       {Kind: &qdrant.Value_StringValue{StringValue: payload.Type}},
			"created_at": {Kind: &qdrant.Value_StringValue{StringValue: payload.CreatedAt}},
			"project_id": {Kind: &qdrant.Value_StringValue{StringValue: payload.ProjectID}},
		},
	}
	return s.withRetry(ctx, func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: name,
			Points:         []*qdrant.PointStruct{point},
		})
		return err
	})
}

func (s *QdrantStore) Delete(ctx context.Context, projectID, memoryID string) error {
	name := CollectionName(projectID)
	return s.withRetry(ctx, func() error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: name,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Points{
					Points: &qdrant.PointsIdsList{
						Ids: []*qdrant.PointId{qdrant.NewIDUUID(memoryID)},
					},
				},
			},
		})
		if err != nil {
			if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
				return nil
			}
			return err
		}
		return nil
	})
}

func (s *QdrantStore) Search(ctx context.Context, projectID string, queryVector []float32, k int, typeFilter string, minScore float32) ([]Hit, error) {
	name := CollectionName(projectID)

	var filter *qdrant.Filter
	if typeFilter != "" {
		filter = &qdrant.Filter{
			Must: []*qdrant.Condition{
				{
					ConditionOneOf: &qdrant.Condition_Field{
						Field: &qdrant.FieldCondition{
							Key:   "type",
							Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: typeFilter}},
						},
					},
				},
			},
		}
	}

	var results []*qdrant.ScoredPoint
	err := s.withRetry(ctx, func() error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: name,
			Query:          qdrant.NewQuery(queryVector...),
			Limit:          qdrant.PtrOf(uint64(k)),
			Filter:         filter,
			ScoreThreshold: qdrant.PtrOf(minScore),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		results = res
		return nil
	})
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
			return nil, nil
		}
		return nil, memory.TransientBackendError("vector search", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, pt := range results {
		payload := pt.GetPayload()
		hits = append(hits, Hit{
			MemoryID: stringField(payload, "memory_id"),
			Score:    pt.GetScore(),
			Payload: Payload{
				Type:      stringField(payload, "type"),
				CreatedAt: stringField(payload, "created_at"),
				ProjectID: stringField(payload, "project_id"),
			},
		})
	}
	return hits, nil
}

func (s *QdrantStore) Count(ctx context.Context, projectID string) (int, error) {
	name := CollectionName(projectID)
	var count int
	err := s.withRetry(ctx, func() error {
		info, err := s.client.GetCollectionInfo(ctx, name)
		if err != nil {
			return err
		}
		if info.PointsCount != nil {
			count = int(*info.PointsCount)
		}
		return nil
	})
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
			return 0, nil
		}
		return 0, memory.TransientBackendError("count collection", err)
	}
	return count, nil
}

func (s *QdrantStore) Rebuild(ctx context.Context, projectID string, dimension int) error {
	name := CollectionName(projectID)
	if err := s.dropCollection(ctx, name); err != nil {
		return err
	}
	if err := s.createCollection(ctx, name, dimension); err != nil {
		return err
	}
	s.cacheDim(name, dimension)
	return nil
}

// withRetry applies §4.3's retry policy (3 attempts, base 1s, factor 2) to
// transient Qdrant failures; non-retryable gRPC codes fail immediately.
func (s *QdrantStore) withRetry(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(
		&backoff.ExponentialBackOff{
			InitialInterval:     time.Second,
			Multiplier:          2,
			RandomizationFactor: 0,
			MaxInterval:         8 * time.Second,
			MaxElapsedTime:      0,
			Clock:               backoff.SystemClock,
		}, 2), ctx)

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if isTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}

func isTransient(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return true
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

func stringField(payload map[string]*qdrant.Value, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	return v.GetStringValue()
}
