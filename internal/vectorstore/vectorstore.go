// Package vectorstore keeps the embedded records the counselor retrieves context from:
// the lender catalogue, past conversation turns and past recommendations.
package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"loancounselor-backend/internal/lenders"
	"loancounselor-backend/internal/llm"
	"loancounselor-backend/internal/models"
	"loancounselor-backend/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Metadata keys.
const (
	MetaUserID = "user_id"
	MetaName   = "name"
	MetaLender = "lender"
	MetaResult = "recommendation"
)

var lenderNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("loan-counselor/lenders"))

// LenderID is the stable document ID of a lender, derived from its lowercased name.
func LenderID(name string) uuid.UUID {
	return uuid.NewSHA1(lenderNamespace, []byte(strings.ToLower(strings.TrimSpace(name))))
}

// VectorStore embeds text with an Embedder and keeps the vectors in a store.Store.
type VectorStore struct {
	store    store.Store
	embedder llm.Embedder
	now      func() time.Time
}

func New(s store.Store, e llm.Embedder) *VectorStore {
	return &VectorStore{store: s, embedder: e, now: time.Now}
}

func (v *VectorStore) embedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := v.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for 1 text", len(vecs))
	}
	return vecs[0], nil
}

// --- Lenders ---

// IndexLenders makes the lender collection hold exactly catalog: every lender is embedded
// and upserted, and documents of lenders no longer in the catalogue are removed.
func (v *VectorStore) IndexLenders(ctx context.Context, catalog []models.Lender) error {
	docs := make([]models.Document, len(catalog))
	if len(catalog) > 0 {
		texts := make([]string, len(catalog))
		for i, l := range catalog {
			texts[i] = lenders.FormatLender(l)
		}
		vecs, err := v.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed lenders: %w", err)
		}
		if len(vecs) != len(catalog) {
			return fmt.Errorf("embedder returned %d vectors for %d lenders", len(vecs), len(catalog))
		}
		for i, l := range catalog {
			raw, err := json.Marshal(l)
			if err != nil {
				return fmt.Errorf("failed to marshal lender %s: %w", l.Name, err)
			}
			docs[i] = models.Document{
				ID:        LenderID(l.Name),
				Content:   texts[i],
				Metadata:  map[string]string{MetaName: l.Name, MetaLender: string(raw)},
				Embedding: vecs[i],
			}
		}
	}

	// Embedding happens before the old index is dropped so a failing embedder leaves it intact.
	removed, err := v.store.DeleteDocuments(ctx, store.CollectionLenders, nil)
	if err != nil {
		return fmt.Errorf("failed to clear lender index: %w", err)
	}
	if err := v.store.UpsertDocuments(ctx, store.CollectionLenders, docs); err != nil {
		return err
	}
	log.Info().Int("count", len(docs)).Int("replaced", removed).Msg("[VectorStore] Indexed lenders")
	return nil
}

// SearchLenders returns up to k lenders most similar to query.
func (v *VectorStore) SearchLenders(ctx context.Context, query string, k int) ([]models.Lender, error) {
	if k <= 0 {
		return []models.Lender{}, nil
	}
	vec, err := v.embedOne(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := v.store.SearchDocuments(ctx, store.CollectionLenders, vec, k, nil)
	if err != nil {
		return nil, fmt.Errorf("lender search failed: %w", err)
	}
	out := make([]models.Lender, 0, len(hits))
	for _, h := range hits {
		var l models.Lender
		if err := json.Unmarshal([]byte(h.Metadata[MetaLender]), &l); err != nil {
			log.Warn().Err(err).Str("id", h.ID.String()).Msg("[VectorStore] Skipping lender document with bad metadata")
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

// --- Conversation turns ---

// TurnText is the document content of one conversation turn.
func TurnText(message, response string) string {
	return "student: " + message + "\ncounselor: " + response
}

// AddConversation stores one student/counselor exchange for userID.
func (v *VectorStore) AddConversation(ctx context.Context, userID, message, response string) error {
	text := TurnText(message, response)
	vec, err := v.embedOne(ctx, text)
	if err != nil {
		return err
	}
	return v.store.UpsertDocuments(ctx, store.CollectionConversations, []models.Document{{
		ID:        uuid.New(),
		Content:   text,
		Metadata:  map[string]string{MetaUserID: userID},
		Embedding: vec,
		CreatedAt: v.now().UTC(),
	}})
}

// RetrieveConversations returns the content of the k turns of userID closest to query.
func (v *VectorStore) RetrieveConversations(ctx context.Context, userID, query string, k int) ([]string, error) {
	if k <= 0 {
		return nil, nil
	}
	vec, err := v.embedOne(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := v.store.SearchDocuments(ctx, store.CollectionConversations, vec, k, map[string]string{MetaUserID: userID})
	if err != nil {
		return nil, fmt.Errorf("conversation search failed: %w", err)
	}
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Content
	}
	return out, nil
}

// DeleteUser removes every conversation turn of userID.
func (v *VectorStore) DeleteUser(ctx context.Context, userID string) (int, error) {
	return v.store.DeleteDocuments(ctx, store.CollectionConversations, map[string]string{MetaUserID: userID})
}

// --- Recommendations ---

// StoreRecommendation records the recommendation given for a student profile.
func (v *VectorStore) StoreRecommendation(ctx context.Context, details models.StudentDetails, recommendation string, metadata map[string]string) error {
	text, err := profileText(details)
	if err != nil {
		return err
	}
	vec, err := v.embedOne(ctx, text)
	if err != nil {
		return err
	}
	md := make(map[string]string, len(metadata)+1)
	for k, val := range metadata {
		md[k] = val
	}
	md[MetaResult] = recommendation
	return v.store.UpsertDocuments(ctx, store.CollectionRecommendations, []models.Document{{
		ID:        uuid.New(),
		Content:   text,
		Metadata:  md,
		Embedding: vec,
		CreatedAt: v.now().UTC(),
	}})
}

// FindSimilarRecommendations returns up to k past cases rendered as
// "<student details> → <recommendation>".
func (v *VectorStore) FindSimilarRecommendations(ctx context.Context, details models.StudentDetails, k int) ([]string, error) {
	if k <= 0 {
		return nil, nil
	}
	text, err := profileText(details)
	if err != nil {
		return nil, err
	}
	vec, err := v.embedOne(ctx, text)
	if err != nil {
		return nil, err
	}
	hits, err := v.store.SearchDocuments(ctx, store.CollectionRecommendations, vec, k, nil)
	if err != nil {
		return nil, fmt.Errorf("recommendation search failed: %w", err)
	}
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Content + " → " + h.Metadata[MetaResult]
	}
	return out, nil
}

// profileText is the embedded form of a student profile. The user ID is left out so
// stored cases carry no identity in their content.
func profileText(details models.StudentDetails) (string, error) {
	d := details.Clone()
	delete(d, "userId")
	return d.JSON("")
}
