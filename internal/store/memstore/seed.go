package memstore

import (
	"context"
	"errors"

	"storefront-backend/internal/model"
	"storefront-backend/internal/store"
)

// DemoCatalog is the catalog loaded by the memory backend at startup.
var DemoCatalog = []model.Product{
	{
		Name:        "Canción de Hielo y Fuego",
		Description: "What a book!",
		Img:         "https://example.com/img/cancion-de-hielo-y-fuego.jpg",
		Price:       29.95,
	},
	{
		Name:        "El paciente",
		Description: "Great book!",
		Img:         "https://example.com/img/el-paciente.jpg",
		Price:       20.95,
	},
}

// Seed inserts the products, skipping names that already exist.
func (s *Store) Seed(ctx context.Context, products []model.Product) error {
	for i := range products {
		p := products[i]
		if err := s.Products().Insert(ctx, &p); err != nil && !errors.Is(err, store.ErrDuplicate) {
			return err
		}
	}
	return nil
}
