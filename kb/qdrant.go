package kb

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig configures a QdrantRetriever connection, adapted from the
// teacher's config.DatabaseProviderConfig (databases/qdrant.go) down to
// the fields a read-only retriever needs.
type QdrantConfig struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

func (c *QdrantConfig) setDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
}

// QdrantRetriever is a Retriever backed by Qdrant, adapted from the
// teacher's qdrantDatabaseProvider.Search (databases/qdrant.go) down to
// the read path: this retriever never upserts, it only searches a
// collection a separate ingestion path populated.
type QdrantRetriever struct {
	client *qdrant.Client
}

// NewQdrantRetriever dials Qdrant per cfg.
func NewQdrantRetriever(cfg QdrantConfig) (*QdrantRetriever, error) {
	cfg.setDefaults()
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("kb: dial qdrant: %w", err)
	}
	return &QdrantRetriever{client: client}, nil
}

// Search implements Retriever.
func (r *QdrantRetriever) Search(ctx context.Context, collection string, vector []float32, topK int) ([]SearchResult, error) {
	pointsClient := r.client.GetPointsClient()
	resp, err := pointsClient.Search(ctx, &qdrant.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("kb: search %s: %w", collection, err)
	}

	results := make([]SearchResult, 0, len(resp.Result))
	for _, point := range resp.Result {
		metadata := make(map[string]any, len(point.Payload))
		for key, value := range point.Payload {
			metadata[key] = decodeValue(value)
		}

		content := ""
		if c, ok := metadata["content"].(string); ok {
			content = c
		}

		results = append(results, SearchResult{
			ID:       pointID(point.Id),
			Score:    point.Score,
			Content:  content,
			Metadata: metadata,
		})
	}
	return results, nil
}

func pointID(id *qdrant.PointId) string {
	if id == nil || id.PointIdOptions == nil {
		return ""
	}
	switch v := id.PointIdOptions.(type) {
	case *qdrant.PointId_Uuid:
		return v.Uuid
	case *qdrant.PointId_Num:
		return fmt.Sprintf("%d", v.Num)
	default:
		return ""
	}
}

func decodeValue(v *qdrant.Value) any {
	switch val := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	default:
		return nil
	}
}
