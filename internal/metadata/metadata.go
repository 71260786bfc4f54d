// Package metadata implements the MetadataEnricher (C7): a single batched
// lookup against the authoritative relational store
// (jackc/pgx/v5's database/sql driver, so the package can be exercised
// with DATA-DOG/go-sqlmock in tests), augmenting each candidate with
// canonical citation fields. Grounded on
// original_source/backend/src/retrieval/postgres_metadata_enricher.py's
// single "WHERE id IN (...) AND is_latest" query and computed display
// fields; never drops a candidate on lookup failure.
package metadata

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	_ "github.com/jackc/pgx/v5/stdlib"

	"dev.ohada.ragengine/internal/models"
)

type record struct {
	Title            string
	DocumentType     string
	Collection       string
	SubCollection    string
	ActeUniforme     string
	Livre            string
	Partie           string
	Chapitre         string
	Section          string
	SousSection      string
	Article          string
	Alinea           string
	Status           string
	Version          string
}

// Enricher looks up canonical records by passage id.
type Enricher struct {
	db     *sql.DB
	logger *logrus.Entry
}

// Open connects to dsn via the pgx stdlib driver.
func Open(dsn string, logger *logrus.Entry) (*Enricher, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("metadata: open: %w", err)
	}
	return New(db, logger), nil
}

// New wraps an already-open *sql.DB, used directly by tests with sqlmock.
func New(db *sql.DB, logger *logrus.Entry) *Enricher {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}
	return &Enricher{db: db, logger: logger}
}

func (e *Enricher) Close() error { return e.db.Close() }

const baseQuery = `SELECT id, title, document_type, collection, sub_collection,
	acte_uniforme, livre, partie, chapitre, section, sous_section, article,
	alinea, status, version
	FROM passages WHERE id IN (%s) AND is_latest = true`

// Enrich returns a new slice in which each candidate found by a single
// batched query carries the canonical metadata. On lookup failure (query
// error, or a missing id) the affected candidates are returned unchanged —
// never dropped, per spec §4.7.
func (e *Enricher) Enrich(ctx context.Context, candidates []models.RetrievalCandidate) []models.RetrievalCandidate {
	if len(candidates) == 0 {
		return candidates
	}

	ids := make([]string, len(candidates))
	args := make([]interface{}, len(candidates))
	for i, c := range candidates {
		ids[i] = fmt.Sprintf("$%d", i+1)
		args[i] = c.DocumentID
	}

	query := fmt.Sprintf(baseQuery, strings.Join(ids, ","))
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		e.logger.WithError(err).Warn("metadata: batched lookup failed, returning candidates unchanged")
		return candidates
	}
	defer rows.Close()

	lookup := make(map[string]record)
	for rows.Next() {
		var id string
		var r record
		if err := rows.Scan(&id, &r.Title, &r.DocumentType, &r.Collection, &r.SubCollection,
			&r.ActeUniforme, &r.Livre, &r.Partie, &r.Chapitre, &r.Section, &r.SousSection,
			&r.Article, &r.Alinea, &r.Status, &r.Version); err != nil {
			e.logger.WithError(err).Warn("metadata: scan row failed, skipping row")
			continue
		}
		lookup[id] = r
	}

	out := make([]models.RetrievalCandidate, len(candidates))
	for i, c := range candidates {
		r, ok := lookup[c.DocumentID]
		if !ok {
			out[i] = c
			continue
		}
		c.Metadata = models.Hierarchy{
			Collection:    r.Collection,
			SubCollection: r.SubCollection,
			ActeUniforme:  r.ActeUniforme,
			Livre:         r.Livre,
			Partie:        r.Partie,
			Chapitre:      r.Chapitre,
			Section:       r.Section,
			SousSection:   r.SousSection,
			Article:       r.Article,
			Alinea:        r.Alinea,
		}
		if r.DocumentType != "" {
			c.DocumentType = r.DocumentType
		}
		if c.ExtraMetadata == nil {
			c.ExtraMetadata = make(map[string]string)
		}
		c.ExtraMetadata["title"] = r.Title
		c.ExtraMetadata["status"] = r.Status
		c.ExtraMetadata["version"] = r.Version
		c.ExtraMetadata["collection_display"] = collectionDisplay(r)
		c.ExtraMetadata["hierarchy_display"] = hierarchyDisplay(r)
		c.ExtraMetadata["citation"] = citation(r)
		out[i] = c
	}
	return out
}

func collectionDisplay(r record) string {
	if r.SubCollection != "" {
		return r.Collection + " / " + r.SubCollection
	}
	return r.Collection
}

func hierarchyDisplay(r record) string {
	parts := []string{}
	for _, p := range []string{r.Partie, r.Chapitre, r.Section, r.SousSection} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " > ")
}

func citation(r record) string {
	var b strings.Builder
	b.WriteString(r.ActeUniforme)
	if r.Article != "" {
		b.WriteString(", art. ")
		b.WriteString(r.Article)
	}
	if r.Alinea != "" {
		b.WriteString(", al. ")
		b.WriteString(r.Alinea)
	}
	return b.String()
}
