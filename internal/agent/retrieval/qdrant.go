package retrieval

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"github.com/qdrant/go-client/qdrant"

	"github.com/knu-deptqa/server/internal/agent/model"
)

// DSLDepartmentKey is the retriever DSL key carrying the department OR-set.
const DSLDepartmentKey = "department"

// Metadata keys of retrieved documents.
const (
	MetaFileName   = "file_name"
	MetaDepartment = "department"
	MetaURL        = "url"
	MetaDate       = "date"
)

// PointQuerier is the subset of *qdrant.Client used for similarity search.
type PointQuerier interface {
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
}

type QdrantConfig struct {
	Client      PointQuerier
	Embedder    embedding.Embedder
	Collection  string
	ContentKey  string
	MetadataKey string
	TopK        int
}

// QdrantRetriever implements retriever.Retriever over a Qdrant collection
// whose payload holds the chunk text and a nested metadata object.
type QdrantRetriever struct {
	client      PointQuerier
	embedder    embedding.Embedder
	collection  string
	contentKey  string
	metadataKey string
	topK        int
}

func NewQdrantRetriever(cfg QdrantConfig) (*QdrantRetriever, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("qdrant client is required")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant collection is required")
	}
	if cfg.ContentKey == "" {
		cfg.ContentKey = "page_content"
	}
	if cfg.MetadataKey == "" {
		cfg.MetadataKey = "metadata"
	}
	if cfg.TopK <= 0 {
		cfg.TopK = model.DefaultTopK
	}
	return &QdrantRetriever{
		client:      cfg.Client,
		embedder:    cfg.Embedder,
		collection:  cfg.Collection,
		contentKey:  cfg.ContentKey,
		metadataKey: cfg.MetadataKey,
		topK:        cfg.TopK,
	}, nil
}

// Retrieve embeds the query and runs a similarity search. A department
// list passed via retriever.WithDSLInfo scopes the search to any of them.
func (r *QdrantRetriever) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	topK := r.topK
	options := retriever.GetCommonOptions(&retriever.Options{TopK: &topK}, opts...)
	if options.TopK != nil && *options.TopK > 0 {
		topK = *options.TopK
	}

	vectors, err := r.embedder.EmbedStrings(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("embed query: empty vector")
	}

	limit := uint64(topK)
	points, err := r.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: r.collection,
		Query:          qdrant.NewQuery(toFloat32(vectors[0])...),
		Limit:          &limit,
		Filter:         r.buildFilter(departmentsOf(options.DSLInfo)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search failed: %w", err)
	}

	docs := make([]*schema.Document, 0, len(points))
	for _, point := range points {
		docs = append(docs, r.toDocument(point))
	}
	return docs, nil
}

// buildFilter returns a keyword-any match over the nested department field,
// or nil for an unfiltered search.
func (r *QdrantRetriever) buildFilter(departments []string) *qdrant.Filter {
	if len(departments) == 0 {
		return nil
	}
	keywords := make([]string, len(departments))
	copy(keywords, departments)
	return &qdrant.Filter{
		Must: []*qdrant.Condition{{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: r.metadataKey + "." + MetaDepartment,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keywords{
							Keywords: &qdrant.RepeatedStrings{Strings: keywords},
						},
					},
				},
			},
		}},
	}
}

func (r *QdrantRetriever) toDocument(point *qdrant.ScoredPoint) *schema.Document {
	doc := &schema.Document{MetaData: map[string]any{}}
	if point.Id != nil {
		if id := point.Id.GetUuid(); id != "" {
			doc.ID = id
		} else {
			doc.ID = fmt.Sprintf("%d", point.Id.GetNum())
		}
	}
	doc.WithScore(float64(point.Score))

	doc.Content = point.Payload[r.contentKey].GetStringValue()
	if doc.Content == "" {
		doc.Content = point.Payload["content"].GetStringValue()
	}
	for k, v := range point.Payload {
		switch k {
		case r.contentKey, "content":
		case r.metadataKey:
			if st := v.GetStructValue(); st != nil {
				for mk, mv := range st.GetFields() {
					doc.MetaData[mk] = extractValue(mv)
				}
			}
		default:
			if _, ok := doc.MetaData[k]; !ok {
				doc.MetaData[k] = extractValue(v)
			}
		}
	}
	return doc
}

// departmentsOf reads the department OR-set from retriever DSL info.
func departmentsOf(dsl map[string]any) []string {
	switch v := dsl[DSLDepartmentKey].(type) {
	case []string:
		return v
	case string:
		if v != "" {
			return []string{v}
		}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// extractValue extracts a Go value from a Qdrant Value.
func extractValue(v *qdrant.Value) any {
	if v == nil {
		return nil
	}
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

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}

// MetadataOf converts eino document metadata into the canonical form,
// copying string values verbatim.
func MetadataOf(meta map[string]any) model.DocumentMetadata {
	return model.DocumentMetadata{
		FileName:   metaString(meta, MetaFileName),
		Department: metaString(meta, MetaDepartment),
		URL:        metaString(meta, MetaURL),
		Date:       metaString(meta, MetaDate),
	}
}

func metaString(meta map[string]any, key string) string {
	switch v := meta[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

var _ retriever.Retriever = (*QdrantRetriever)(nil)
