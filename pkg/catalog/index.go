package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/telecare-health/platform/pkg/common/apperrors"
	"github.com/telecare-health/platform/pkg/common/logger"
	"github.com/telecare-health/platform/pkg/common/models"
)

// Store provides the catalog read contract; catalog management itself is an
// external collaborator.
type Store interface {
	ActiveEntries(ctx context.Context, hospitalID uuid.UUID) ([]models.CatalogEntry, error)
}

// Index resolves priced medicines for one hospital, matching by code first and
// then by name, both case-insensitive.
type Index struct {
	store Store
	cache *redis.Client
	ttl   time.Duration
}

func NewIndex(store Store, cache *redis.Client, ttl time.Duration) *Index {
	return &Index{store: store, cache: cache, ttl: ttl}
}

func (i *Index) Resolve(ctx context.Context, hospitalID uuid.UUID, code, name string) (models.CatalogEntry, error) {
	entries, err := i.snapshot(ctx, hospitalID)
	if err != nil {
		return models.CatalogEntry{}, err
	}

	codeKey := strings.ToLower(strings.TrimSpace(code))
	nameKey := strings.ToLower(strings.TrimSpace(name))

	if codeKey != "" {
		for _, entry := range entries {
			if entry.Code != "" && strings.ToLower(entry.Code) == codeKey {
				return entry, nil
			}
		}
	}
	if nameKey != "" {
		for _, entry := range entries {
			if strings.ToLower(entry.Name) == nameKey {
				return entry, nil
			}
		}
	}

	missing := name
	if missing == "" {
		missing = code
	}
	return models.CatalogEntry{}, apperrors.NotFound(fmt.Sprintf("medicine not in catalog: %s", missing))
}

// Snapshot returns the full active catalog for a hospital.
func (i *Index) Snapshot(ctx context.Context, hospitalID uuid.UUID) ([]models.CatalogEntry, error) {
	return i.snapshot(ctx, hospitalID)
}

func (i *Index) snapshot(ctx context.Context, hospitalID uuid.UUID) ([]models.CatalogEntry, error) {
	key := fmt.Sprintf("catalog:%s", hospitalID)

	if i.cache != nil {
		raw, err := i.cache.Get(ctx, key).Result()
		if err == nil {
			var cached []models.CatalogEntry
			if jsonErr := json.Unmarshal([]byte(raw), &cached); jsonErr == nil {
				return cached, nil
			}
		} else if err != redis.Nil {
			logger.Log.WithError(err).WithField("key", key).Warn("catalog cache read failed")
		}
	}

	entries, err := i.store.ActiveEntries(ctx, hospitalID)
	if err != nil {
		return nil, err
	}

	if i.cache != nil {
		if raw, jsonErr := json.Marshal(entries); jsonErr == nil {
			if err := i.cache.Set(ctx, key, raw, i.ttl).Err(); err != nil {
				logger.Log.WithError(err).WithField("key", key).Warn("catalog cache write failed")
			}
		}
	}
	return entries, nil
}
