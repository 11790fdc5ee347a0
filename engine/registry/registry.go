// Package registry keeps an audit trail of processed documents in Neo4j:
// one Document node per ingestion plus the entities extracted from it. It is
// a best-effort path; retrieval never depends on it.
package registry

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/clauseai/clause-engine/engine/domain"
)

// Record is the stored form of a processed document.
type Record struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ImageCount int    `json:"image_count"`
	OCRUsed    bool   `json:"ocr_used"`
	Chunks     int    `json:"chunks"`
	IngestedAt string `json:"ingested_at"`
}

// Entity is one extracted entity attached to a document.
type Entity struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Registry provides document bookkeeping on top of Neo4j.
type Registry struct {
	driver neo4j.DriverWithContext
}

// New creates a Registry.
func New(driver neo4j.DriverWithContext) *Registry {
	return &Registry{driver: driver}
}

// SaveDocument creates or updates the document's node.
func (r *Registry) SaveDocument(ctx context.Context, rec Record) error {
	sess := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := `MERGE (d:Document {id: $id}) SET d += $props`
	_, err := sess.Run(ctx, cypher, map[string]any{
		"id":    rec.ID,
		"props": recordToMap(rec),
	})
	if err != nil {
		return fmt.Errorf("registry: save document %s: %w", rec.ID, err)
	}
	return nil
}

// SaveEntities attaches extracted entities to a document in one transaction,
// replacing any entities from a previous extraction run.
func (r *Registry) SaveEntities(ctx context.Context, docID string, entities []Entity) error {
	sess := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		clear := `MATCH (d:Document {id: $id})-[r:HAS_ENTITY]->(e:Entity) DELETE r, e`
		if _, err := tx.Run(ctx, clear, map[string]any{"id": docID}); err != nil {
			return nil, err
		}

		attach := `MATCH (d:Document {id: $id})
		           UNWIND $entities AS ent
		           CREATE (e:Entity {name: ent.name, value: ent.value})
		           CREATE (d)-[:HAS_ENTITY]->(e)`
		params := make([]map[string]any, len(entities))
		for i, e := range entities {
			params[i] = map[string]any{"name": e.Name, "value": e.Value}
		}
		if _, err := tx.Run(ctx, attach, map[string]any{"id": docID, "entities": params}); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("registry: save entities for %s: %w", docID, err)
	}
	return nil
}

// GetDocument returns one document record by id.
func (r *Registry) GetDocument(ctx context.Context, id string) (Record, error) {
	sess := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	result, err := sess.Run(ctx, `MATCH (d:Document {id: $id}) RETURN d`, map[string]any{"id": id})
	if err != nil {
		return Record{}, fmt.Errorf("registry: get document %s: %w", id, err)
	}
	if !result.Next(ctx) {
		return Record{}, fmt.Errorf("registry: document %s: %w", id, domain.ErrDocumentNotFound)
	}
	node, _, err := neo4j.GetRecordValue[dbtype.Node](result.Record(), "d")
	if err != nil {
		return Record{}, fmt.Errorf("registry: get document %s: %w", id, err)
	}
	return recordFromProps(node.Props), nil
}

// ListDocuments returns every processed document, newest first.
func (r *Registry) ListDocuments(ctx context.Context) ([]Record, error) {
	sess := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	result, err := sess.Run(ctx, `MATCH (d:Document) RETURN d ORDER BY d.ingested_at DESC`, nil)
	if err != nil {
		return nil, fmt.Errorf("registry: list documents: %w", err)
	}
	return collectRecords(ctx, result)
}

// FindByEntity returns documents whose extracted entities contain the given
// value, matched case-insensitively.
func (r *Registry) FindByEntity(ctx context.Context, name, value string) ([]Record, error) {
	sess := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := `MATCH (d:Document)-[:HAS_ENTITY]->(e:Entity {name: $name})
	           WHERE toLower(e.value) CONTAINS toLower($value)
	           RETURN DISTINCT d`
	result, err := sess.Run(ctx, cypher, map[string]any{"name": name, "value": value})
	if err != nil {
		return nil, fmt.Errorf("registry: find by entity %s: %w", name, err)
	}
	return collectRecords(ctx, result)
}

func collectRecords(ctx context.Context, result neo4j.ResultWithContext) ([]Record, error) {
	var items []Record
	for result.Next(ctx) {
		node, _, err := neo4j.GetRecordValue[dbtype.Node](result.Record(), "d")
		if err != nil {
			return nil, fmt.Errorf("registry: read record: %w", err)
		}
		items = append(items, recordFromProps(node.Props))
	}
	return items, nil
}

func recordToMap(rec Record) map[string]any {
	return map[string]any{
		"id":          rec.ID,
		"name":        rec.Name,
		"image_count": rec.ImageCount,
		"ocr_used":    rec.OCRUsed,
		"chunks":      rec.Chunks,
		"ingested_at": rec.IngestedAt,
	}
}

func recordFromProps(props map[string]any) Record {
	return Record{
		ID:         strProp(props, "id"),
		Name:       strProp(props, "name"),
		ImageCount: intProp(props, "image_count"),
		OCRUsed:    boolProp(props, "ocr_used"),
		Chunks:     intProp(props, "chunks"),
		IngestedAt: strProp(props, "ingested_at"),
	}
}

func strProp(props map[string]any, key string) string {
	if s, ok := props[key].(string); ok {
		return s
	}
	return ""
}

func intProp(props map[string]any, key string) int {
	if n, ok := props[key].(int64); ok {
		return int(n)
	}
	return 0
}

func boolProp(props map[string]any, key string) bool {
	if b, ok := props[key].(bool); ok {
		return b
	}
	return false
}
