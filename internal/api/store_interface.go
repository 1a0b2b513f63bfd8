package api

import "github.com/soaringjerry/Footprint/internal/services"

// Store is everything the HTTP layer needs persisted apart from attachments.
type Store interface {
	services.IdentityStore
	services.ProfileStore
	services.ReadingStore
}

var _ Store = (*memoryStore)(nil)
