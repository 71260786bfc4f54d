// Package vectorindex implements the VectorIndex (C5): a thin client over
// an external approximate-nearest-neighbor service (Qdrant), translating
// cosine distance to similarity and applying metadata filters. Grounded on
// the teacher's qdrant/go-client dependency (no concrete usage existed in
// the teacher pack's test-only internal/vectordb/qdrant package; the wire
// shape here follows the client's published gRPC PointsClient contract).
package vectorindex

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"dev.ohada.ragengine/internal/models"
)

// Index wraps a qdrant gRPC connection scoped to one collection per
// logical corpus (collection name == corpus name).
type Index struct {
	conn   *grpc.ClientConn
	points qdrant.PointsClient
}

// New dials addr (host:port) and returns an Index. apiKey, if non-empty,
// is sent as a per-call bearer token via qdrant's recommended
// credentials.PerRPCCredentials mechanism.
func New(addr, apiKey string) (*Index, error) {
	var opts []grpc.DialOption
	opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if apiKey != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(apiKeyCreds(apiKey)))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: dial %q: %w", addr, err)
	}

	return &Index{conn: conn, points: qdrant.NewPointsClient(conn)}, nil
}

func (idx *Index) Close() error {
	return idx.conn.Close()
}

type apiKeyCreds string

func (a apiKeyCreds) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{"api-key": string(a)}, nil
}

func (a apiKeyCreds) RequireTransportSecurity() bool { return false }

var _ credentials.PerRPCCredentials = apiKeyCreds("")

// Search implements spec §4.5: query for 2k nearest neighbors by cosine
// distance, translate distance d ∈ [0,2] to similarity s = 1 - d/2
// (clamped to [0,1]), and apply the filter at the index when the backend
// supports it (qdrant does: payload-equality conditions).
func (idx *Index) Search(ctx context.Context, corpus string, queryVector []float32, filter []models.Filter, k int) ([]models.RetrievalCandidate, error) {
	req := &qdrant.SearchPoints{
		CollectionName: corpus,
		Vector:         queryVector,
		Limit:          uint64(2 * k),
		Filter:         buildFilter(filter),
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
	}

	resp, err := idx.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: search corpus %q: %w", corpus, err)
	}

	candidates := make([]models.RetrievalCandidate, 0, len(resp.Result))
	for _, point := range resp.Result {
		payload := point.Payload
		candidates = append(candidates, models.RetrievalCandidate{
			DocumentID:   pointIDString(point.Id),
			Text:         payloadString(payload, "text"),
			Metadata:     payloadToHierarchy(payload),
			VectorScore:  scoreToSimilarity(point.Score),
			Origin:       models.OriginVector,
			DocumentType: payloadString(payload, "document_type"),
		})
	}
	return candidates, nil
}

// scoreToSimilarity implements spec §4.5's remap. qdrant's Cosine-metric
// Score is the raw cosine similarity in [-1,1], not a distance, so d is
// recovered from it once before applying s = 1 - d/2 once.
func scoreToSimilarity(score float32) float64 {
	d := 1.0 - float64(score)
	return clamp01(1.0 - d/2.0)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func buildFilter(filter []models.Filter) *qdrant.Filter {
	if len(filter) == 0 {
		return nil
	}
	conditions := make([]*qdrant.Condition, 0, len(filter))
	for _, f := range filter {
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   f.Key,
					Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: f.Value}},
				},
			},
		})
	}
	return &qdrant.Filter{Must: conditions}
}

func pointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if uid := id.GetUuid(); uid != "" {
		return uid
	}
	return fmt.Sprintf("%d", id.GetNum())
}

func payloadString(payload map[string]*qdrant.Value, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	return v.GetStringValue()
}

func payloadToHierarchy(payload map[string]*qdrant.Value) models.Hierarchy {
	return models.Hierarchy{
		Partie:   payloadString(payload, "partie"),
		Chapitre: payloadString(payload, "chapitre"),
		Section:  payloadString(payload, "section"),
		Article:  payloadString(payload, "article"),
	}
}
