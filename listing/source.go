package listing

import (
	"context"
	"errors"
	"fmt"

	"github.com/poiesic/marketsearch/index"
	"gorm.io/gorm"
)

// Source enumerates the live listings of one type.
// Soft-deleted listings are never returned.
type Source struct {
	db   *gorm.DB
	kind string
}

var _ index.Source = (*Source)(nil)

// NewSource creates a Source for listings of kind.
func NewSource(db *gorm.DB, kind string) (*Source, error) {
	if db == nil {
		return nil, ErrDatabaseRequired
	}
	if !ValidType(kind) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidListingType, kind)
	}
	return &Source{db: db, kind: kind}, nil
}

// Kind returns the listing type this source enumerates.
func (s *Source) Kind() string {
	return s.kind
}

func (s *Source) Get(ctx context.Context, id string) (index.Searchable, error) {
	n, ok := parseID(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s %q", index.ErrEntityNotFound, s.kind, id)
	}
	var l Listing
	err := s.db.WithContext(ctx).Where("listing_type = ?", s.kind).First(&l, n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s %q", index.ErrEntityNotFound, s.kind, id)
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// List pages listings by ascending numeric id. afterID is the id of the last
// listing of the previous page.
func (s *Source) List(ctx context.Context, afterID string, limit int) ([]index.Searchable, error) {
	q := s.db.WithContext(ctx).Where("listing_type = ?", s.kind).Order("id ASC")
	if afterID != "" {
		after, ok := parseID(afterID)
		if !ok {
			return nil, fmt.Errorf("invalid listing cursor %q", afterID)
		}
		q = q.Where("id > ?", after)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var listings []*Listing
	if err := q.Find(&listings).Error; err != nil {
		return nil, err
	}
	page := make([]index.Searchable, len(listings))
	for i, l := range listings {
		page[i] = l
	}
	return page, nil
}

// Count returns the number of live listings of the source's type.
func (s *Source) Count(ctx context.Context) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Listing{}).Where("listing_type = ?", s.kind).Count(&n).Error
	return int(n), err
}
