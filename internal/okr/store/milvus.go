package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/datatypes"

	"github.com/kart-io/okr-assistant/internal/model"
	"github.com/kart-io/okr-assistant/pkg/component/milvus"
	"github.com/kart-io/okr-assistant/pkg/utils/json"
)

const (
	milvusFieldObjectiveID = "objective_id"
	milvusFieldContent     = "content"
	milvusFieldMetadata    = "metadata"
)

// MilvusIndex mirrors documents into a Milvus collection and serves
// similarity search from it. The relational table stays authoritative.
type MilvusIndex struct {
	client     *milvus.Client
	collection string
}

var _ Searcher = (*MilvusIndex)(nil)

// NewMilvusIndex ensures the collection exists and returns the index.
func NewMilvusIndex(ctx context.Context, client *milvus.Client, collection string, dimension int) (*MilvusIndex, error) {
	err := client.EnsureCollection(ctx, &milvus.CollectionSchema{
		Name:        collection,
		Description: "OKR objective documents",
		Dimension:   dimension,
		IDMaxLen:    64,
		MetaFields: []milvus.MetaField{
			{Name: milvusFieldObjectiveID, MaxLen: 64},
			{Name: milvusFieldContent, MaxLen: 65535},
			{Name: milvusFieldMetadata, MaxLen: 65535},
		},
	})
	if err != nil {
		return nil, err
	}
	return &MilvusIndex{client: client, collection: collection}, nil
}

func objectiveExpr(objectiveID string) string {
	return fmt.Sprintf("%s == %s", milvusFieldObjectiveID, strconv.Quote(objectiveID))
}

// Upsert replaces the objective's vector with doc.
func (m *MilvusIndex) Upsert(ctx context.Context, doc *model.Document) error {
	if err := m.Delete(ctx, doc.ObjectiveID); err != nil {
		return err
	}
	meta, err := json.Marshal(doc.Metadata.Data())
	if err != nil {
		return fmt.Errorf("marshal document metadata: %w", err)
	}
	return m.client.Insert(ctx, m.collection, []milvus.Row{{
		ID:        doc.ID,
		Embedding: doc.Embedding,
		Meta: map[string]string{
			milvusFieldObjectiveID: doc.ObjectiveID,
			milvusFieldContent:     doc.Content,
			milvusFieldMetadata:    string(meta),
		},
	}})
}

// Delete removes the objective's vectors.
func (m *MilvusIndex) Delete(ctx context.Context, objectiveID string) error {
	return m.client.DeleteWhere(ctx, m.collection, objectiveExpr(objectiveID))
}

// Search runs an ANN query and rebuilds documents from the stored fields.
func (m *MilvusIndex) Search(ctx context.Context, vector []float32, k int) ([]ScoredDocument, error) {
	if k <= 0 {
		return []ScoredDocument{}, nil
	}
	results, err := m.client.Search(ctx, m.collection, vector, k,
		[]string{milvusFieldObjectiveID, milvusFieldContent, milvusFieldMetadata})
	if err != nil {
		return nil, err
	}

	hits := make([]ScoredDocument, 0, len(results))
	for _, r := range results {
		doc := &model.Document{
			ID:          r.ID,
			ObjectiveID: r.Meta[milvusFieldObjectiveID],
			Content:     r.Meta[milvusFieldContent],
		}
		var meta model.DocumentMetadata
		if raw := strings.TrimSpace(r.Meta[milvusFieldMetadata]); raw != "" {
			if err := json.Unmarshal([]byte(raw), &meta); err == nil {
				doc.Metadata = datatypes.NewJSONType(meta)
			}
		}
		hits = append(hits, ScoredDocument{Document: doc, Score: float64(r.Score)})
	}
	return hits, nil
}
