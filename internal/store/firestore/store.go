// Package firestore stores vector documents and conversation memory in Cloud Firestore,
// using native vector fields and FindNearest for similarity search.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"loancounselor-backend/internal/models"
	"loancounselor-backend/internal/store"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Compile-time check to ensure FirestoreStore implements store.Store
var _ store.Store = (*FirestoreStore)(nil)

const (
	historyCollection = "conversation_memory"
	distanceField     = "vector_distance"
)

type FirestoreStore struct {
	client *firestore.Client
	prefix string
}

// NewFirestoreStore connects to projectID. Collections are named prefix+collection.
func NewFirestoreStore(ctx context.Context, projectID, prefix string) (*FirestoreStore, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	return &FirestoreStore{client: client, prefix: prefix}, nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

type vectorDoc struct {
	Content   string             `firestore:"content"`
	Metadata  map[string]string  `firestore:"metadata"`
	Embedding firestore.Vector32 `firestore:"embedding"`
	CreatedAt time.Time          `firestore:"created_at"`
	// Filled in by FindNearest; never written.
	Distance float64 `firestore:"vector_distance,omitempty"`
}

type historyDoc struct {
	Messages  []messageDoc `firestore:"messages"`
	UpdatedAt time.Time    `firestore:"updated_at"`
}

type messageDoc struct {
	Role      string `firestore:"role"`
	Content   string `firestore:"content"`
	Timestamp int64  `firestore:"timestamp"`
}

func toVectorDoc(d models.Document) vectorDoc {
	md := d.Metadata
	if md == nil {
		md = map[string]string{}
	}
	return vectorDoc{
		Content:   d.Content,
		Metadata:  md,
		Embedding: firestore.Vector32(d.Embedding),
		CreatedAt: d.CreatedAt,
	}
}

func fromVectorDoc(id string, v vectorDoc) (models.Document, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return models.Document{}, fmt.Errorf("document id %q is not a UUID: %w", id, err)
	}
	return models.Document{
		ID:        parsed,
		Content:   v.Content,
		Metadata:  v.Metadata,
		Embedding: []float32(v.Embedding),
		CreatedAt: v.CreatedAt,
	}, nil
}

func (s *FirestoreStore) collection(name string) *firestore.CollectionRef {
	return s.client.Collection(s.prefix + name)
}

func (s *FirestoreStore) filtered(collection string, filter map[string]string) firestore.Query {
	q := s.collection(collection).Query
	for k, v := range filter {
		q = q.Where("metadata."+k, "==", v)
	}
	return q
}

// --- Vector Document Methods ---

func (s *FirestoreStore) UpsertDocuments(ctx context.Context, collection string, docs []models.Document) error {
	bw := s.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(docs))
	for _, d := range docs {
		if d.ID == uuid.Nil {
			d.ID = uuid.New()
		}
		if d.CreatedAt.IsZero() {
			d.CreatedAt = time.Now().UTC()
		}
		job, err := bw.Set(s.collection(collection).Doc(d.ID.String()), toVectorDoc(d))
		if err != nil {
			bw.End()
			return fmt.Errorf("failed to queue document %s: %w", d.ID, err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return fmt.Errorf("failed to write document into %s: %w", collection, err)
		}
	}
	log.Debug().Str("collection", collection).Int("count", len(docs)).Msg("[FirestoreStore] UpsertDocuments")
	return nil
}

// SearchDocuments runs a cosine FindNearest query. Firestore orders the neighbours and
// reports each one's cosine distance, which is turned back into a similarity score.
func (s *FirestoreStore) SearchDocuments(ctx context.Context, collection string, embedding []float32, limit int, filter map[string]string) ([]models.ScoredDocument, error) {
	if limit <= 0 {
		return nil, nil
	}
	vq := s.filtered(collection, filter).
		FindNearest("embedding", firestore.Vector32(embedding), limit, firestore.DistanceMeasureCosine,
			&firestore.FindNearestOptions{DistanceResultField: distanceField})

	iter := vq.Documents(ctx)
	defer iter.Stop()

	var out []models.ScoredDocument
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error querying nearest documents in %s: %w", collection, err)
		}
		var v vectorDoc
		if err := snap.DataTo(&v); err != nil {
			return nil, fmt.Errorf("failed to decode document %s: %w", snap.Ref.ID, err)
		}
		d, err := fromVectorDoc(snap.Ref.ID, v)
		if err != nil {
			return nil, err
		}
		out = append(out, models.ScoredDocument{Document: d, Score: cosineScore(v.Distance)})
	}
	return out, nil
}

// cosineScore converts a cosine distance into the similarity reported by every backend.
func cosineScore(distance float64) float64 {
	return 1 - distance
}

func (s *FirestoreStore) DeleteDocuments(ctx context.Context, collection string, filter map[string]string) (int, error) {
	iter := s.filtered(collection, filter).Documents(ctx)
	defer iter.Stop()

	deleted := 0
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return deleted, fmt.Errorf("error listing documents in %s: %w", collection, err)
		}
		if _, err := snap.Ref.Delete(ctx); err != nil {
			return deleted, fmt.Errorf("failed to delete document %s: %w", snap.Ref.ID, err)
		}
		deleted++
	}
	return deleted, nil
}

// --- Conversation Memory Methods ---

func (s *FirestoreStore) GetHistory(ctx context.Context, userID string) ([]models.ChatMessage, error) {
	snap, err := s.collection(historyCollection).Doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return []models.ChatMessage{}, nil
		}
		return nil, fmt.Errorf("failed to fetch history for user %s: %w", userID, err)
	}
	var h historyDoc
	if err := snap.DataTo(&h); err != nil {
		return nil, fmt.Errorf("failed to decode history for user %s: %w", userID, err)
	}
	return fromMessageDocs(h.Messages), nil
}

// AppendHistory reads and rewrites the history document in a transaction.
// ArrayUnion would silently drop repeated identical messages.
func (s *FirestoreStore) AppendHistory(ctx context.Context, userID string, msgs ...models.ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	ref := s.collection(historyCollection).Doc(userID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var h historyDoc
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return err
		default:
			if err := snap.DataTo(&h); err != nil {
				return err
			}
		}
		h.Messages = append(h.Messages, toMessageDocs(msgs)...)
		h.UpdatedAt = time.Now().UTC()
		return tx.Set(ref, h)
	})
	if err != nil {
		return fmt.Errorf("failed to append history for user %s: %w", userID, err)
	}
	return nil
}

func (s *FirestoreStore) ResetHistory(ctx context.Context, userID string) error {
	if _, err := s.collection(historyCollection).Doc(userID).Delete(ctx); err != nil {
		return fmt.Errorf("failed to reset history for user %s: %w", userID, err)
	}
	return nil
}

func toMessageDocs(msgs []models.ChatMessage) []messageDoc {
	out := make([]messageDoc, len(msgs))
	for i, m := range msgs {
		out[i] = messageDoc{Role: m.Role, Content: m.Content, Timestamp: m.Timestamp}
	}
	return out
}

func fromMessageDocs(docs []messageDoc) []models.ChatMessage {
	out := make([]models.ChatMessage, len(docs))
	for i, m := range docs {
		out[i] = models.ChatMessage{Role: m.Role, Content: m.Content, Timestamp: m.Timestamp}
	}
	return out
}
