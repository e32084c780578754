package providerRepo

import (
	"context"

	"swiftaid/models"
)

// ProviderSearchCriteria narrows the provider search before ranking.
type ProviderSearchCriteria struct {
	CategoryID    string
	LocationGeo   models.GeoPoint
	MaxDistanceKm float64
}

// ProviderRepository defines read access to the location/matching data source.
type ProviderRepository interface {
	Search(ctx context.Context, criteria ProviderSearchCriteria) ([]models.Provider, error)
	GetByID(ctx context.Context, id string) (*models.Provider, error)
}
