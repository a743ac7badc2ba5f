package vector

import (
	"context"
	"fmt"
	"os"

	"github.com/ohadalab/sycora/pkg/config"
	"github.com/qdrant/go-client/qdrant"
)

const scrollPageSize = 256

// QdrantStore implements Store over a Qdrant deployment.
type QdrantStore struct {
	client *qdrant.Client
}

func NewQdrantStore(cfg *config.VectorStoreConfig) (*QdrantStore, error) {
	useTLS := false
	if cfg.EnableTLS != nil {
		useTLS = *cfg.EnableTLS
	}

	apiKey := ""
	if cfg.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.APIKeyEnv)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: apiKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}

	return &QdrantStore{client: client}, nil
}

func (s *QdrantStore) Query(ctx context.Context, collection string, vector []float32, filter map[string]any, limit int) ([]Hit, error) {
	searchRequest := &qdrant.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload:    qdrant.NewWithPayload(true),
	}

	if len(filter) > 0 {
		searchRequest.Filter = buildFilter(filter)
	}

	pointsClient := s.client.GetPointsClient()
	searchResult, err := pointsClient.Search(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("failed to search points: %w", err)
	}

	hits := make([]Hit, 0, len(searchResult.Result))
	for _, point := range searchResult.Result {
		metadata := decodePayload(point.Payload)
		hits = append(hits, Hit{
			ID:       pointID(point.Id),
			Text:     payloadText(metadata),
			Metadata: metadata,
			// Qdrant reports cosine similarity in [-1,1]; the pipeline
			// works in cosine distance [0,2].
			Distance: 1 - float64(point.Score),
		})
	}
	return hits, nil
}

func (s *QdrantStore) Scroll(ctx context.Context, collection string) ([]Hit, error) {
	pointsClient := s.client.GetPointsClient()

	var hits []Hit
	var offset *qdrant.PointId

	for {
		resp, err := pointsClient.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: collection,
			Limit:          qdrant.PtrOf(uint32(scrollPageSize)),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scroll collection %s: %w", collection, err)
		}

		for _, point := range resp.Result {
			metadata := decodePayload(point.Payload)
			hits = append(hits, Hit{
				ID:       pointID(point.Id),
				Text:     payloadText(metadata),
				Metadata: metadata,
			})
		}

		if resp.NextPageOffset == nil || len(resp.Result) == 0 {
			return hits, nil
		}
		offset = resp.NextPageOffset
	}
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func buildFilter(filter map[string]any) *qdrant.Filter {
	conditions := make([]*qdrant.Condition, 0, len(filter))

	for key, value := range filter {
		match := matchValue(value)
		if match == nil {
			continue
		}

		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   key,
					Match: match,
				},
			},
		})
	}

	return &qdrant.Filter{
		Must: conditions,
	}
}

// matchValue encodes an exact-match filter value in its native payload type.
// Hierarchy filters (partie, chapitre) are integers and must not degrade to
// keyword matches.
func matchValue(value any) *qdrant.Match {
	switch v := value.(type) {
	case string:
		return &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: v}}
	case int:
		return &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: int64(v)}}
	case int64:
		return &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: v}}
	case bool:
		return &qdrant.Match{MatchValue: &qdrant.Match_Boolean{Boolean: v}}
	default:
		return nil
	}
}

func pointID(id *qdrant.PointId) string {
	if id == nil || id.PointIdOptions == nil {
		return ""
	}
	switch idType := id.PointIdOptions.(type) {
	case *qdrant.PointId_Uuid:
		return idType.Uuid
	case *qdrant.PointId_Num:
		return fmt.Sprintf("%d", idType.Num)
	}
	return ""
}

// payloadText pulls the passage body out of the payload. Ingestion writes
// it under "text"; older collections used "content".
func payloadText(metadata map[string]any) string {
	if text, ok := metadata["text"].(string); ok {
		return text
	}
	if text, ok := metadata["content"].(string); ok {
		return text
	}
	return ""
}

func decodePayload(payload map[string]*qdrant.Value) map[string]any {
	metadata := make(map[string]any, len(payload))
	for key, value := range payload {
		metadata[key] = decodeValue(value)
	}
	return metadata
}

func decodeValue(value *qdrant.Value) any {
	switch v := value.Kind.(type) {
	case *qdrant.Value_StringValue:
		return v.StringValue
	case *qdrant.Value_IntegerValue:
		return v.IntegerValue
	case *qdrant.Value_DoubleValue:
		return v.DoubleValue
	case *qdrant.Value_BoolValue:
		return v.BoolValue
	case *qdrant.Value_ListValue:
		if v.ListValue == nil {
			return nil
		}
		list := make([]any, len(v.ListValue.Values))
		for i, item := range v.ListValue.Values {
			list[i] = decodeValue(item)
		}
		return list
	default:
		return value
	}
}
