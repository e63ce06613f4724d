// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package listing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/marketsearch/core"
	"github.com/poiesic/marketsearch/index"
	"gorm.io/gorm"
)

// Store persists listings and notifies index hooks after each committed write.
// A hook failure is logged and never undoes the write, so the listing and its
// index entry can briefly disagree until the next change or rebuild.
type Store struct {
	db     *gorm.DB
	hooks  index.Hooks
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithHooks sets the hooks notified after writes.
func WithHooks(hooks index.Hooks) Option {
	return func(s *Store) {
		s.hooks = hooks
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
	}
}

// NewStore creates a store over db.
func NewStore(db *gorm.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrDatabaseRequired
	}
	s := &Store{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "listings")
	return s, nil
}

// Migrate creates or updates the listings table.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&Listing{})
}

// Sources returns one index source per listing type.
func (s *Store) Sources() map[string]index.Source {
	sources := make(map[string]index.Source, len(Kinds))
	for _, kind := range Kinds {
		sources[kind] = &Source{db: s.db, kind: kind}
	}
	return sources
}

// Register binds every listing type to registry.
func (s *Store) Register(registry *index.Registry) error {
	for kind, source := range s.Sources() {
		if err := registry.Register(kind, source); err != nil {
			return err
		}
	}
	return nil
}

// Create inserts a listing and notifies OnCreate.
func (s *Store) Create(ctx context.Context, l *Listing) error {
	if err := normalize(l); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(l).Error; err != nil {
		return fmt.Errorf("create listing: %w", err)
	}
	s.notify(ctx, "create", l, s.hooksOrNil().OnCreate)
	return nil
}

// Update saves every field of a listing and notifies OnUpdate.
// Returns ErrListingNotFound when the listing does not exist.
func (s *Store) Update(ctx context.Context, l *Listing) error {
	if err := normalize(l); err != nil {
		return err
	}
	if l.ID == 0 {
		return ErrListingNotFound
	}
	existing, err := s.Get(ctx, l.ID)
	if err != nil {
		return err
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = existing.CreatedAt
	}
	if err := s.db.WithContext(ctx).Save(l).Error; err != nil {
		return fmt.Errorf("update listing %d: %w", l.ID, err)
	}
	s.notify(ctx, "update", l, s.hooksOrNil().OnUpdate)
	return nil
}

// Delete soft-deletes a listing and notifies OnDelete.
// Returns ErrListingNotFound when the listing does not exist.
func (s *Store) Delete(ctx context.Context, id uint) error {
	l, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&Listing{}, id).Error; err != nil {
		return fmt.Errorf("delete listing %d: %w", id, err)
	}
	s.notify(ctx, "delete", l, s.hooksOrNil().OnDelete)
	return nil
}

// Get loads a live listing by id.
func (s *Store) Get(ctx context.Context, id uint) (*Listing, error) {
	var l Listing
	err := s.db.WithContext(ctx).First(&l, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrListingNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *Store) hooksOrNil() index.Hooks {
	if s.hooks == nil {
		return noHooks{}
	}
	return s.hooks
}

func (s *Store) notify(ctx context.Context, op string, l *Listing, hook func(context.Context, index.Searchable) error) {
	if err := hook(ctx, l); err != nil {
		s.logger.Warn("index hook failed", "op", op, "kind", l.SourceKind(), "id", l.ID, "err", err)
	}
}

func normalize(l *Listing) error {
	if l == nil {
		return fmt.Errorf("%w: listing is nil", core.ErrInvalidEntity)
	}
	l.ListingType = core.NormalizeKind(l.ListingType)
	if !ValidType(l.ListingType) {
		return fmt.Errorf("%w: %q", ErrInvalidListingType, l.ListingType)
	}
	if strings.TrimSpace(l.Status) == "" {
		l.Status = StatusActive
	}
	return nil
}

type noHooks struct{}

func (noHooks) OnCreate(context.Context, index.Searchable) error { return nil }
func (noHooks) OnUpdate(context.Context, index.Searchable) error { return nil }
func (noHooks) OnDelete(context.Context, index.Searchable) error { return nil }
