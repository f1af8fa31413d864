// Package qdrant is the primary Vector Store Driver backend, adapted from
// the teacher's conversation-embedding Qdrant client to the cognitive
// memory payload schema and the driver's fuller operation set
// (ensure_collection, ensure_indexes, scroll, retrieve, set_payload).
package qdrant

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/chirino/memory-service/internal/vectorstore"
)

const embeddingDims = 1024

// Config holds the connection parameters EnsureCollection/Select need.
type Config struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

func init() {
	vectorstore.Register(vectorstore.Plugin{
		Name: "qdrant",
		Loader: func(ctx context.Context, collection, dsn string) (vectorstore.Store, error) {
			return Dial(Config{Host: dsn, Port: 6334, Collection: collection})
		},
	})
}

// Store implements vectorstore.Store over a Qdrant gRPC connection.
type Store struct {
	conn       *grpc.ClientConn
	points     pb.PointsClient
	collection pb.CollectionsClient
	collName   string
}

// Dial opens a gRPC connection to Qdrant and returns a Store.
func Dial(cfg Config) (*Store, error) {
	opts := dialOptions(cfg)
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("qdrant: connect: %w", err)
	}
	return &Store{
		conn:       conn,
		points:     pb.NewPointsClient(conn),
		collection: pb.NewCollectionsClient(conn),
		collName:   cfg.Collection,
	}, nil
}

func (s *Store) Name() string { return "qdrant" }

func (s *Store) EnsureCollection(ctx context.Context) error {
	_, err := s.collection.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: s.collName})
	if err == nil {
		return nil
	}
	_, err = s.collection.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collName,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     embeddingDims,
					Distance: pb.Distance_Cosine,
				},
			},
		},
		HnswConfig: &pb.HnswConfigDiff{
			M:                 newU64(16),
			EfConstruct:       newU64(64),
			FullScanThreshold: newU64(10000),
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant: create collection: %w", err)
	}
	log.Info("created qdrant collection", "name", s.collName)
	return nil
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	schemas := map[string]pb.FieldType{
		"user_id":              pb.FieldType_FieldTypeKeyword,
		"project_id":           pb.FieldType_FieldTypeKeyword,
		"sector_primary":       pb.FieldType_FieldTypeKeyword,
		"temporal_is_current":  pb.FieldType_FieldTypeBool,
		"memory_types":         pb.FieldType_FieldTypeKeyword,
		"created_at":           pb.FieldType_FieldTypeDatetime,
		"is_encrypted":         pb.FieldType_FieldTypeBool,
	}
	for _, field := range vectorstore.IndexedFields {
		ft := schemas[field]
		_, err := s.collection.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
			CollectionName: s.collName,
			FieldName:      field,
			FieldType:      &ft,
		})
		if err != nil {
			log.Warn("qdrant index create failed, continuing", "field", field, "err", err)
		}
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, points []vectorstore.Point) error {
	pbPoints := make([]*pb.PointStruct, len(points))
	for i, p := range points {
		pbPoints[i] = &pb.PointStruct{
			Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: p.ID}},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: p.Vector}},
			},
			Payload: toPBPayload(p.Payload),
		}
	}
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collName,
		Points:         pbPoints,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert: %w", err)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, vector []float32, filter vectorstore.Filter, limit int) ([]vectorstore.SearchResult, error) {
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collName,
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		Filter:         toPBFilter(filter),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search: %w", err)
	}
	results := make([]vectorstore.SearchResult, 0, len(resp.GetResult()))
	for _, pt := range resp.GetResult() {
		results = append(results, vectorstore.SearchResult{
			Point: vectorstore.Point{
				ID:      pointIDString(pt.GetId()),
				Payload: fromPBPayload(pt.GetPayload()),
			},
			Score: float64(pt.GetScore()),
		})
	}
	return results, nil
}

func (s *Store) Scroll(ctx context.Context, filter vectorstore.Filter, limit int, cursor string) (vectorstore.ScrollPage, error) {
	req := &pb.ScrollPoints{
		CollectionName: s.collName,
		Limit:          u32ptr(uint32(limit)),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		Filter:         toPBFilter(filter),
	}
	if cursor != "" {
		req.Offset = &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: cursor}}
	}
	resp, err := s.points.Scroll(ctx, req)
	if err != nil {
		return vectorstore.ScrollPage{}, fmt.Errorf("qdrant: scroll: %w", err)
	}
	page := vectorstore.ScrollPage{}
	for _, pt := range resp.GetResult() {
		page.Points = append(page.Points, vectorstore.Point{
			ID:      pointIDString(pt.GetId()),
			Payload: fromPBPayload(pt.GetPayload()),
		})
	}
	if next := resp.GetNextPageOffset(); next != nil {
		page.NextCursor = pointIDString(next)
	}
	return page, nil
}

func (s *Store) Retrieve(ctx context.Context, ids []string) ([]vectorstore.Point, error) {
	pbIDs := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		pbIDs[i] = &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}
	}
	resp, err := s.points.Get(ctx, &pb.GetPoints{
		CollectionName: s.collName,
		Ids:            pbIDs,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: retrieve: %w", err)
	}
	out := make([]vectorstore.Point, 0, len(resp.GetResult()))
	for _, pt := range resp.GetResult() {
		out = append(out, vectorstore.Point{
			ID:      pointIDString(pt.GetId()),
			Payload: fromPBPayload(pt.GetPayload()),
		})
	}
	return out, nil
}

func (s *Store) SetPayload(ctx context.Context, id string, patch map[string]any) error {
	_, err := s.points.SetPayload(ctx, &pb.SetPayloadPoints{
		CollectionName: s.collName,
		Payload:        toPBPayload(patch),
		PointsSelector: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: []*pb.PointId{{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant: set_payload: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, ids []string) error {
	pbIDs := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		pbIDs[i] = &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}
	}
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collName,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: pbIDs},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete: %w", err)
	}
	return nil
}

func toPBFilter(f vectorstore.Filter) *pb.Filter {
	var must []*pb.Condition
	if f.UserID != "" {
		must = append(must, keywordCondition("user_id", f.UserID))
	}
	if f.ProjectID != "" {
		must = append(must, keywordCondition("project_id", f.ProjectID))
	}
	if f.OnlyCurrent {
		must = append(must, &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key:   "temporal_is_current",
					Match: &pb.Match{MatchValue: &pb.Match_Boolean{Boolean: true}},
				},
			},
		})
	}
	if len(f.MemoryTypes) > 0 {
		must = append(must, &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key:   "memory_types",
					Match: &pb.Match{MatchValue: &pb.Match_Keywords{Keywords: &pb.RepeatedStrings{Strings: f.MemoryTypes}}},
				},
			},
		})
	}
	if len(must) == 0 {
		return nil
	}
	return &pb.Filter{Must: must}
}

func keywordCondition(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: value}},
			},
		},
	}
}

func pointIDString(id *pb.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return fmt.Sprintf("%d", id.GetNum())
}

func dialOptions(cfg Config) []grpc.DialOption {
	opts := make([]grpc.DialOption, 0, 2)
	if cfg.UseTLS {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(nil)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	if strings.TrimSpace(cfg.APIKey) != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(apiKeyCreds{key: cfg.APIKey, tls: cfg.UseTLS}))
	}
	return opts
}

type apiKeyCreds struct {
	key string
	tls bool
}

func (a apiKeyCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"api-key": a.key}, nil
}

func (a apiKeyCreds) RequireTransportSecurity() bool { return a.tls }

func newU64(v uint64) *uint64 { return &v }
func u32ptr(v uint32) *uint32 { return &v }
