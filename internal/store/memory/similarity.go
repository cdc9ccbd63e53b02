package memory

import (
	"math"
	"sort"

	"loancounselor-backend/internal/models"
)

// cosineSimilarity returns the cosine of the angle between a and b. Vectors of different
// length or with zero magnitude score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// matchesFilter reports whether metadata contains every pair in filter. A key missing from
// metadata never matches, not even an empty value.
func matchesFilter(metadata, filter map[string]string) bool {
	for k, want := range filter {
		if v, ok := metadata[k]; !ok || v != want {
			return false
		}
	}
	return true
}

// rankDocuments scores docs against query and returns the best limit of them.
// Ties are broken by creation time, then by ID, so results are stable.
func rankDocuments(docs []models.Document, query []float32, limit int) []models.ScoredDocument {
	if limit <= 0 || len(docs) == 0 {
		return nil
	}
	scored := make([]models.ScoredDocument, 0, len(docs))
	for _, d := range docs {
		scored = append(scored, models.ScoredDocument{Document: d, Score: cosineSimilarity(query, d.Embedding)})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if !scored[i].CreatedAt.Equal(scored[j].CreatedAt) {
			return scored[i].CreatedAt.Before(scored[j].CreatedAt)
		}
		return scored[i].ID.String() < scored[j].ID.String()
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}
