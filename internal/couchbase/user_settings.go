package couchbase

import (
	"context"
	"errors"

	"stealthcompany.com/medicapi/internal/apierr"
	"stealthcompany.com/medicapi/internal/auth"
)

// UserSettingsStore reads the user settings documents keyed by username
type UserSettingsStore struct {
	docs       documentStore
	collection string
}

// NewUserSettingsStore creates a settings store reading from collection
func NewUserSettingsStore(docs documentStore, collection string) *UserSettingsStore {
	return &UserSettingsStore{docs: docs, collection: collection}
}

// UserSettings returns the settings of username
func (s *UserSettingsStore) UserSettings(ctx context.Context, username string) (*auth.UserSettings, error) {
	var settings auth.UserSettings
	if err := s.docs.GetDocument(ctx, s.collection, username, &settings); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apierr.Upstream("user settings", errors.New(auth.ErrNoSettings))
		}
		return nil, apierr.Upstream("user settings", err)
	}
	return &settings, nil
}
