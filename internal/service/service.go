package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/wishlist/internal/cache"
	"github.com/Kerhoff/wishlist/internal/catalog"
	"github.com/Kerhoff/wishlist/internal/models"
	"github.com/Kerhoff/wishlist/internal/repository"
)

// SchemaManager brings the storage schema to the current version.
type SchemaManager interface {
	MaybeCreateTables(ctx context.Context) error
}

// Dependencies groups the collaborators the service is built from.
// Catalog, Cache, Schema and Notifier are optional.
type Dependencies struct {
	Items       repository.WishlistRepository
	Lists       repository.ListRepository
	Conversions repository.ConversionRepository
	Preferences repository.PreferenceRepository
	Catalog     catalog.Lookup
	Cache       cache.Cache
	Schema      SchemaManager
	Notifier    ConversionNotifier
}

// Actor is the caller a request acts for. UserID is zero for guests.
type Actor struct {
	UserID int64
}

// Service is the wishlist module: it owns the repositories and builds
// request-scoped Wishlists and the conversion Tracker.
type Service struct {
	logger      *logrus.Logger
	settings    Settings
	items       repository.WishlistRepository
	lists       repository.ListRepository
	preferences repository.PreferenceRepository
	catalog     catalog.Lookup
	cache       cache.Cache
	schema      SchemaManager
	tracker     *Tracker
	now         func() time.Time
}

// New creates a new Service with all required dependencies.
func New(logger *logrus.Logger, settings Settings, deps Dependencies) *Service {
	s := &Service{
		logger:      logger,
		settings:    settings.normalize(),
		items:       deps.Items,
		lists:       deps.Lists,
		preferences: deps.Preferences,
		catalog:     deps.Catalog,
		cache:       deps.Cache,
		schema:      deps.Schema,
		now:         time.Now,
	}
	s.tracker = &Tracker{
		items:       deps.Items,
		conversions: deps.Conversions,
		notifier:    deps.Notifier,
		logger:      logger,
		now:         func() time.Time { return s.now() },
	}
	return s
}

// Settings returns the normalized settings the service runs with.
func (s *Service) Settings() Settings {
	return s.settings
}

// Boot prepares storage. It is safe to call on every start.
func (s *Service) Boot(ctx context.Context) error {
	if s.schema == nil {
		return nil
	}
	if err := s.schema.MaybeCreateTables(ctx); err != nil {
		return fmt.Errorf("failed to prepare wishlist schema: %w", err)
	}
	return nil
}

// Wishlist binds a Wishlist to the user when userID > 0 and to the guest session otherwise.
func (s *Service) Wishlist(userID int64, sessionKey string) (*Wishlist, error) {
	owner := models.UserOwner(userID)
	if owner.IsZero() {
		owner = models.GuestOwner(sessionKey)
	}
	if owner.IsZero() {
		return nil, errIdentityMissing
	}
	return s.bind(owner, nil), nil
}

func (s *Service) bind(owner models.Owner, identity GuestIdentity) *Wishlist {
	return &Wishlist{
		svc:      s,
		owner:    owner,
		identity: identity,
		logger:   s.logger.WithField("owner", owner.String()),
	}
}

// ForActor resolves the actor's scope, minting a guest identity when needed.
func (s *Service) ForActor(actor Actor, identity GuestIdentity) (*Wishlist, error) {
	if !s.settings.Enabled {
		return nil, errDisabled
	}
	if actor.UserID > 0 {
		return s.bind(models.UserOwner(actor.UserID), identity), nil
	}
	if !s.settings.GuestsAllowed {
		return nil, errGuestsNotAllowed
	}
	if identity == nil {
		return nil, errIdentityMissing
	}

	key, err := identity.SessionKey()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve guest session: %w", err)
	}
	owner := models.GuestOwner(key)
	if owner.IsZero() {
		return nil, errIdentityMissing
	}
	return s.bind(owner, identity), nil
}

// OnLogin merges the visitor's guest wishlist into the user who just signed in.
// The guest key is read without minting a new one.
func (s *Service) OnLogin(ctx context.Context, userID int64, identity GuestIdentity) (*MergeResult, error) {
	if userID <= 0 {
		return nil, errInvalidUser
	}
	if !s.settings.Enabled || identity == nil {
		return &MergeResult{}, nil
	}

	sessionKey := identity.Peek()
	if sessionKey == "" {
		return &MergeResult{}, nil
	}
	return s.bind(models.UserOwner(userID), identity).MergeGuestItems(ctx, userID, sessionKey)
}

// SwitchActiveList normalizes the list id and persists it for authenticated actors.
func (s *Service) SwitchActiveList(ctx context.Context, actor Actor, listID string) (string, error) {
	if actor.UserID <= 0 {
		return models.NormalizeListID(listID), nil
	}
	return s.bind(models.UserOwner(actor.UserID), nil).SetActiveList(ctx, listID)
}

// Tracker returns the conversion tracker.
func (s *Service) Tracker() *Tracker {
	return s.tracker
}

// PurgeGuestItems deletes guest items untouched for longer than olderThan.
func (s *Service) PurgeGuestItems(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, validationError("invalid_age", "older-than must be positive")
	}

	cutoff := s.now().UTC().Add(-olderThan)
	purged, err := s.items.PurgeGuestItems(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge guest items: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"cutoff": cutoff,
		"purged": purged,
	}).Info("Stale guest wishlist items purged")
	return purged, nil
}
