package catalog

import (
	"context"
	"strings"

	"songgen-studio/internal/domain"
)

// Pagination bounds for List.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

var sortColumns = map[string]struct{}{
	"created_at":       {},
	"title":            {},
	"duration_seconds": {},
}

// ListQuery selects one page of songs.
type ListQuery struct {
	Page  int
	Limit int
	Sort  string
	Order string
}

// Normalize clamps paging values and falls back to created_at desc for
// unknown sort columns or orders.
func (q ListQuery) Normalize() ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	if _, ok := sortColumns[q.Sort]; !ok {
		q.Sort = "created_at"
	}
	if strings.EqualFold(q.Order, "asc") {
		q.Order = "ASC"
	} else {
		q.Order = "DESC"
	}
	return q
}

// Page is one slice of the catalog plus the total row count.
type Page struct {
	Songs []domain.Song `json:"songs"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// List returns one page of songs.
func (s *Store) List(ctx context.Context, q ListQuery) (Page, error) {
	q = q.Normalize()

	total, err := s.Count(ctx)
	if err != nil {
		return Page{}, err
	}

	songs := make([]domain.Song, 0, q.Limit)
	err = s.db.WithContext(ctx).
		Order(q.Sort + " " + q.Order).
		Order("id " + q.Order).
		Limit(q.Limit).
		Offset((q.Page - 1) * q.Limit).
		Find(&songs).Error
	if err != nil {
		return Page{}, err
	}

	return Page{Songs: songs, Total: total, Page: q.Page, Limit: q.Limit}, nil
}
