package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/ohadalab/sycora/pkg/config"
	"github.com/ohadalab/sycora/pkg/logger"
	"github.com/ohadalab/sycora/pkg/search"
)

// Enricher joins retrieval candidates against the authoritative relational
// store and attaches canonical citation fields. Enrichment is best-effort:
// a failed lookup leaves the candidate untouched, never drops it.
type Enricher struct {
	db    *sqlx.DB
	table string
	log   *slog.Logger
}

// Record mirrors the authoritative document row.
type Record struct {
	ID              string     `db:"id"`
	Title           string     `db:"title"`
	DocumentType    string     `db:"document_type"`
	Collection      *string    `db:"collection"`
	SubCollection   *string    `db:"sub_collection"`
	ActeUniforme    *string    `db:"acte_uniforme"`
	Livre           *string    `db:"livre"`
	Titre           *string    `db:"titre"`
	Partie          *int       `db:"partie"`
	Chapitre        *int       `db:"chapitre"`
	Section         *int       `db:"section"`
	SousSection     *string    `db:"sous_section"`
	Article         *string    `db:"article"`
	Alinea          *string    `db:"alinea"`
	Status          *string    `db:"status"`
	Version         *string    `db:"version"`
	DatePublication *time.Time `db:"date_publication"`
	DateRevision    *time.Time `db:"date_revision"`
}

func New(cfg *config.MetadataConfig, dsn string) (*Enricher, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to metadata store: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &Enricher{
		db:    db,
		table: cfg.Table,
		log:   logger.For("enrich"),
	}, nil
}

// NewWithDB wraps an existing connection. Used by tests.
func NewWithDB(db *sqlx.DB, table string) *Enricher {
	return &Enricher{
		db:    db,
		table: table,
		log:   logger.For("enrich"),
	}
}

const recordColumns = `id, title, document_type, collection, sub_collection,
	acte_uniforme, livre, titre, partie, chapitre, section, sous_section,
	article, alinea, status, version, date_publication, date_revision`

// Enrich attaches canonical metadata to every candidate whose passage id has
// a latest record in the store. One batched query per call.
func (e *Enricher) Enrich(ctx context.Context, candidates []search.Candidate) []search.Candidate {
	if len(candidates) == 0 {
		return candidates
	}

	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if id := documentID(c); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return candidates
	}

	query, args, err := sqlx.In(
		fmt.Sprintf("SELECT %s FROM %s WHERE id IN (?) AND is_latest = true", recordColumns, e.table),
		ids,
	)
	if err != nil {
		e.log.Error("failed to build enrichment query", "error", err)
		return candidates
	}
	query = e.db.Rebind(query)

	var records []Record
	if err := e.db.SelectContext(ctx, &records, query, args...); err != nil {
		e.log.Error("metadata lookup failed, returning candidates unchanged", "error", err)
		return candidates
	}

	byID := make(map[string]*Record, len(records))
	for i := range records {
		byID[records[i].ID] = &records[i]
	}

	for i := range candidates {
		record, ok := byID[documentID(candidates[i])]
		if !ok {
			continue
		}
		candidates[i].Metadata = mergeMetadata(candidates[i].Metadata, record)
	}

	return candidates
}

// documentID resolves the authoritative document id of a candidate: an
// explicit document_id in the metadata wins over the chunk id.
func documentID(c search.Candidate) string {
	if id, ok := c.Metadata["document_id"].(string); ok && id != "" {
		return id
	}
	// Chunk ids carry the parent passage id as a prefix.
	if i := strings.Index(c.ID, "_chunk_"); i > 0 {
		return c.ID[:i]
	}
	return c.ID
}

func mergeMetadata(metadata map[string]any, record *Record) map[string]any {
	merged := make(map[string]any, len(metadata)+20)
	for k, v := range metadata {
		merged[k] = v
	}

	merged["document_id"] = record.ID
	merged["title"] = record.Title
	merged["document_type"] = record.DocumentType
	setOptional(merged, "collection", record.Collection)
	setOptional(merged, "sub_collection", record.SubCollection)
	setOptional(merged, "acte_uniforme", record.ActeUniforme)
	setOptional(merged, "livre", record.Livre)
	setOptional(merged, "titre", record.Titre)
	setOptionalInt(merged, "partie", record.Partie)
	setOptionalInt(merged, "chapitre", record.Chapitre)
	setOptionalInt(merged, "section", record.Section)
	setOptional(merged, "sous_section", record.SousSection)
	setOptional(merged, "article", record.Article)
	setOptional(merged, "alinea", record.Alinea)
	setOptional(merged, "status", record.Status)
	setOptional(merged, "version", record.Version)
	if record.DatePublication != nil {
		merged["date_publication"] = record.DatePublication.Format(time.RFC3339)
	}
	if record.DateRevision != nil {
		merged["date_revision"] = record.DateRevision.Format(time.RFC3339)
	}

	merged["collection_display"] = record.CollectionDisplay()
	merged["hierarchy_display"] = record.HierarchyDisplay()
	merged["full_hierarchy_display"] = record.FullHierarchyDisplay()
	merged["citation"] = record.Citation()

	return merged
}

func setOptional(m map[string]any, key string, value *string) {
	if value != nil && *value != "" {
		m[key] = *value
	}
}

func setOptionalInt(m map[string]any, key string, value *int) {
	if value != nil {
		m[key] = *value
	}
}

// CollectionDisplay renders "Collection > Sub-collection".
func (r *Record) CollectionDisplay() string {
	var parts []string
	if r.Collection != nil && *r.Collection != "" {
		parts = append(parts, *r.Collection)
	}
	if r.SubCollection != nil && *r.SubCollection != "" {
		parts = append(parts, *r.SubCollection)
	}
	return strings.Join(parts, " > ")
}

// HierarchyDisplay renders the internal legal hierarchy, e.g.
// "Partie 2 > Chapitre 5 > Section 1 > Article 25".
func (r *Record) HierarchyDisplay() string {
	var parts []string
	if r.ActeUniforme != nil && *r.ActeUniforme != "" {
		parts = append(parts, *r.ActeUniforme)
	}
	if r.Livre != nil && *r.Livre != "" {
		parts = append(parts, "Livre "+*r.Livre)
	}
	if r.Titre != nil && *r.Titre != "" {
		parts = append(parts, "Titre "+*r.Titre)
	}
	if r.Partie != nil {
		parts = append(parts, fmt.Sprintf("Partie %d", *r.Partie))
	}
	if r.Chapitre != nil {
		parts = append(parts, fmt.Sprintf("Chapitre %d", *r.Chapitre))
	}
	if r.Section != nil {
		parts = append(parts, fmt.Sprintf("Section %d", *r.Section))
	}
	if r.SousSection != nil && *r.SousSection != "" {
		parts = append(parts, "Sous-section "+*r.SousSection)
	}
	if r.Article != nil && *r.Article != "" {
		parts = append(parts, "Article "+*r.Article)
	}
	return strings.Join(parts, " > ")
}

// FullHierarchyDisplay prefixes the collection path to the main hierarchy
// levels. Falls back to a generic label when nothing is set.
func (r *Record) FullHierarchyDisplay() string {
	var parts []string
	if r.Collection != nil && *r.Collection != "" {
		parts = append(parts, *r.Collection)
	}
	if r.SubCollection != nil && *r.SubCollection != "" {
		parts = append(parts, *r.SubCollection)
	}
	if r.Partie != nil {
		parts = append(parts, fmt.Sprintf("Partie %d", *r.Partie))
	}
	if r.Chapitre != nil {
		parts = append(parts, fmt.Sprintf("Chapitre %d", *r.Chapitre))
	}
	if r.Section != nil {
		parts = append(parts, fmt.Sprintf("Section %d", *r.Section))
	}
	if r.Article != nil && *r.Article != "" {
		parts = append(parts, "Article "+*r.Article)
	}
	if len(parts) == 0 {
		return "Document OHADA"
	}
	return strings.Join(parts, " > ")
}

// Citation renders the standard citation, most specific level first, e.g.
// "Article 25, Section 2, Chapitre 5, Partie 2, SYSCOHADA Révisé, 2017".
func (r *Record) Citation() string {
	var parts []string
	if r.Article != nil && *r.Article != "" {
		parts = append(parts, "Article "+*r.Article)
	}
	if r.Section != nil {
		section := fmt.Sprintf("Section %d", *r.Section)
		if r.SousSection != nil && *r.SousSection != "" {
			section += *r.SousSection
		}
		parts = append(parts, section)
	}
	if r.Chapitre != nil {
		parts = append(parts, fmt.Sprintf("Chapitre %d", *r.Chapitre))
	}
	if r.Partie != nil {
		parts = append(parts, fmt.Sprintf("Partie %d", *r.Partie))
	}
	if r.ActeUniforme != nil && *r.ActeUniforme != "" {
		parts = append(parts, *r.ActeUniforme)
	}
	if r.DateRevision != nil {
		parts = append(parts, fmt.Sprintf("SYSCOHADA Révisé, %d", r.DateRevision.Year()))
	}
	if len(parts) == 0 {
		return r.Title
	}
	return strings.Join(parts, ", ")
}

func (e *Enricher) Close() error {
	return e.db.Close()
}
