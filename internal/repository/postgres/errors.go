package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/Kerhoff/wishlist/internal/models"
	"github.com/Kerhoff/wishlist/internal/repository"
)

const uniqueViolation = pq.ErrorCode("23505")

var errOwnerRequired = errors.New("owner is required")

// isUniqueViolation reports whether err is a Postgres unique_violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// translate maps unique violations onto repository.ErrAlreadyExists and wraps everything else.
func translate(err error, action string) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("failed to %s: %w", action, repository.ErrAlreadyExists)
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

func ownerArgs(owner models.Owner) (int64, string, error) {
	if owner.IsZero() {
		return 0, "", errOwnerRequired
	}
	userID, key := owner.Columns()
	return userID, key, nil
}

func encodeMetadata(metadata map[string]any) (string, error) {
	if len(metadata) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}
	return string(raw), nil
}

func decodeMetadata(raw []byte) (map[string]any, error) {
	metadata := map[string]any{}
	if len(raw) == 0 {
		return metadata, nil
	}
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return metadata, nil
}

// nullTime turns an open range bound into SQL NULL.
func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
