package usecase

import (
	"sort"

	"docqa/internal/domain"
	"docqa/internal/port"
)

// DocumentsUseCase serves the corpus listing.
type DocumentsUseCase struct {
	catalog port.Catalog
}

func NewDocuments(catalog port.Catalog) *DocumentsUseCase {
	return &DocumentsUseCase{catalog: catalog}
}

// List returns the ingested documents sorted by name.
func (u *DocumentsUseCase) List() ([]domain.DocumentInfo, error) {
	docs, err := u.catalog.ListDocuments()
	if err != nil {
		return nil, err
	}

	infos := make([]domain.DocumentInfo, len(docs))
	for i, doc := range docs {
		infos[i] = domain.DocumentInfo{
			Name:       doc.Name,
			ChunkCount: doc.ChunkCount,
		}
	}
	sort.Slice(infos, func(a, b int) bool {
		return infos[a].Name < infos[b].Name
	})
	return infos, nil
}
