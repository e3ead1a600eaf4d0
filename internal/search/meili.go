// Package search indexes member directory fields in Meilisearch.
package search

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmerrifield20/roster/internal/profiles"
	"github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"
)

const indexName = "members"

type memberDoc struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	Nickname    string   `json:"nickname"`
	Year        *int     `json:"year"`
	Interests   []string `json:"interests"`
	Emojis      []string `json:"emojis"`
}

func docFromSummary(s profiles.Summary) memberDoc {
	doc := memberDoc{
		ID:          s.ID.String(),
		DisplayName: s.DisplayName,
		Year:        s.Year,
		Interests:   s.Interests,
		Emojis:      s.Emojis,
	}
	if s.Nickname != nil {
		doc.Nickname = *s.Nickname
	}
	return doc
}

// Index implements profiles.SearchIndex on Meilisearch.
type Index struct {
	client meilisearch.ServiceManager
	logger *zap.Logger
}

// New connects to Meilisearch at host.
func New(host, apiKey string, logger *zap.Logger) *Index {
	return NewWithClient(meilisearch.New(host, meilisearch.WithAPIKey(apiKey)), logger)
}

// NewWithClient wraps an existing Meilisearch client.
func NewWithClient(client meilisearch.ServiceManager, logger *zap.Logger) *Index {
	return &Index{client: client, logger: logger}
}

// Configure sets the searchable, filterable and sortable attributes of the
// members index. Failures are logged; search still works with defaults.
func (i *Index) Configure() {
	idx := i.client.Index(indexName)

	searchable := []string{"displayName", "nickname", "interests", "emojis"}
	if _, err := idx.UpdateSearchableAttributes(&searchable); err != nil {
		i.logger.Warn("update searchable attributes", zap.Error(err))
	}

	filterable := []any{"year"}
	if _, err := idx.UpdateFilterableAttributes(&filterable); err != nil {
		i.logger.Warn("update filterable attributes", zap.Error(err))
	}

	sortable := []string{"year", "displayName"}
	if _, err := idx.UpdateSortableAttributes(&sortable); err != nil {
		i.logger.Warn("update sortable attributes", zap.Error(err))
	}
}

// Upsert adds or replaces the member's document.
func (i *Index) Upsert(ctx context.Context, s profiles.Summary) error {
	pk := "id"
	if _, err := i.client.Index(indexName).AddDocumentsWithContext(ctx, []memberDoc{docFromSummary(s)}, &pk); err != nil {
		return fmt.Errorf("index member %s: %w", s.ID, err)
	}
	return nil
}

// Reindex replaces every document with the given roster.
func (i *Index) Reindex(ctx context.Context, roster []profiles.Summary) error {
	docs := make([]memberDoc, len(roster))
	for n, s := range roster {
		docs[n] = docFromSummary(s)
	}
	pk := "id"
	if _, err := i.client.Index(indexName).AddDocumentsWithContext(ctx, docs, &pk); err != nil {
		return fmt.Errorf("reindex members: %w", err)
	}
	return nil
}

// Search returns member ids in relevance order.
func (i *Index) Search(ctx context.Context, query string, limit int) ([]uuid.UUID, error) {
	resp, err := i.client.Index(indexName).SearchWithContext(ctx, query, &meilisearch.SearchRequest{
		Limit:                int64(limit),
		AttributesToRetrieve: []string{"id"},
	})
	if err != nil {
		return nil, fmt.Errorf("search members: %w", err)
	}

	// Hits are decoded through JSON so the document shape stays ours.
	raw, err := json.Marshal(resp.Hits)
	if err != nil {
		return nil, fmt.Errorf("decode hits: %w", err)
	}
	var hits []struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &hits); err != nil {
		return nil, fmt.Errorf("decode hits: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(hits))
	for _, h := range hits {
		id, err := uuid.Parse(h.ID)
		if err != nil {
			i.logger.Warn("skipping hit with bad id", zap.String("id", h.ID))
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Ping reports whether Meilisearch is healthy.
func (i *Index) Ping(ctx context.Context) error {
	h, err := i.client.HealthWithContext(ctx)
	if err != nil {
		return err
	}
	if h.Status != "available" {
		return fmt.Errorf("meilisearch status %q", h.Status)
	}
	return nil
}
