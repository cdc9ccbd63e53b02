package integrations

import (
	"context"

	"loancounselor-backend/internal/lenders"
	"loancounselor-backend/internal/models"
)

var (
	_ LenderSource = (*StaticSource)(nil)
	_ LenderSource = (*FileSource)(nil)
)

// StaticSource serves a fixed catalogue, the built-in one by default.
type StaticSource struct {
	lenders []models.Lender
}

// NewStaticSource returns a source for catalog, or for lenders.Default() when catalog is empty.
func NewStaticSource(catalog []models.Lender) *StaticSource {
	if len(catalog) == 0 {
		catalog = lenders.Default()
	}
	return &StaticSource{lenders: catalog}
}

func (s *StaticSource) Load(_ context.Context) ([]models.Lender, error) {
	return lenders.Validate(s.lenders)
}

// FileSource reads a JSON array of lenders on every Load.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Load(_ context.Context) ([]models.Lender, error) {
	return lenders.LoadFile(s.path)
}
