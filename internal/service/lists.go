package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/wishlist/internal/cache"
	"github.com/Kerhoff/wishlist/internal/models"
	"github.com/Kerhoff/wishlist/internal/repository"
)

const (
	maxTitleLength   = 200
	defaultListTitle = "My wishlist"
	// slugAttempts bounds retries when concurrent creators race for the same slug.
	slugAttempts = 10
)

// ensureList creates the owner's list for key unless it already exists.
// Lazily created lists get a random slug suffix.
func (s *Service) ensureList(ctx context.Context, owner models.Owner, key string) (*models.WishlistList, error) {
	existing, err := s.lists.GetListByKey(ctx, owner, key)
	if err != nil {
		return nil, fmt.Errorf("failed to look up list %q: %w", key, err)
	}
	if existing != nil {
		return existing, nil
	}

	title := defaultListTitle
	if key != models.DefaultListID {
		title = key
	}
	base := Slugify(title)
	if base == "" {
		base = "list"
	}

	now := s.now().UTC()
	for attempt := 0; attempt < slugAttempts; attempt++ {
		list, err := s.lists.EnsureList(ctx, &models.WishlistList{
			Owner:      owner,
			Key:        key,
			Title:      title,
			Slug:       base + "-" + randomSuffix(),
			Visibility: models.VisibilityPrivate,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		if errors.Is(err, repository.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to ensure list %q: %w", key, err)
		}
		return list, nil
	}
	return nil, fmt.Errorf("failed to ensure list %q: %w", key, repository.ErrAlreadyExists)
}

// createList inserts a titled list. The slug doubles as the list key.
func (s *Service) createList(ctx context.Context, owner models.Owner, title string, visibility models.Visibility) (*models.WishlistList, error) {
	title = sanitizeTitle(title)
	if title == "" {
		return nil, errTitleMissing
	}

	base := Slugify(title)
	if base == "" {
		base = RandomSlug()
	}

	now := s.now().UTC()
	for attempt := 0; attempt < slugAttempts; attempt++ {
		slug, err := s.uniqueSlug(ctx, owner, base)
		if err != nil {
			return nil, err
		}

		list, err := s.lists.CreateList(ctx, &models.WishlistList{
			Owner:      owner,
			Key:        slug,
			Title:      title,
			Slug:       slug,
			Visibility: visibility,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		if errors.Is(err, repository.ErrAlreadyExists) {
			s.logger.WithField("slug", slug).Debug("Slug taken concurrently, retrying")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create list: %w", err)
		}

		s.logger.WithFields(logrus.Fields{
			"owner": owner.String(),
			"slug":  list.Slug,
		}).Info("Wishlist list created")
		return list, nil
	}
	return nil, fmt.Errorf("failed to create list %q: %w", title, repository.ErrAlreadyExists)
}

// uniqueSlug appends -2, -3, ... to base until neither the global slug index
// nor the owner's list keys contain it.
func (s *Service) uniqueSlug(ctx context.Context, owner models.Owner, base string) (string, error) {
	candidate := base
	for n := 2; ; n++ {
		taken, err := s.slugTaken(ctx, owner, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, n)
	}
}

func (s *Service) slugTaken(ctx context.Context, owner models.Owner, slug string) (bool, error) {
	exists, err := s.lists.SlugExists(ctx, slug)
	if err != nil {
		return false, fmt.Errorf("failed to check slug %q: %w", slug, err)
	}
	if exists {
		return true, nil
	}

	list, err := s.lists.GetListByKey(ctx, owner, slug)
	if err != nil {
		return false, fmt.Errorf("failed to check list key %q: %w", slug, err)
	}
	return list != nil, nil
}

// invalidateCounts drops cached counts. Failures are logged, not returned.
func (s *Service) invalidateCounts(ctx context.Context, owner models.Owner, listIDs ...string) {
	if s.cache == nil {
		return
	}
	seen := make(map[string]struct{}, len(listIDs))
	for _, listID := range listIDs {
		listID = strings.TrimSpace(listID)
		if _, dup := seen[listID]; dup || listID == "" {
			continue
		}
		seen[listID] = struct{}{}
		if err := s.cache.Delete(ctx, cache.CountKey(owner, listID)); err != nil {
			s.logger.WithError(err).WithField("list_id", listID).Warn("Failed to invalidate count cache")
		}
	}
}
