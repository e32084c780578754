package matching

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	providerRepo "swiftaid/database/repository/provider"
	"swiftaid/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Weights tunes the candidate score per deployment.
type Weights struct {
	Distance float64
	Rating   float64
	Response float64
	Urgency  float64
}

// MatchingService ranks eligible providers for an emergency request.
// An empty result is a valid state, never an error: the caller offers the
// customer a retry instead of failing the booking.
type MatchingService interface {
	RankCandidates(ctx context.Context, categoryID string, location models.GeoPoint, urgency int) ([]models.ProviderCandidate, error)
}

// DefaultMatchingService implements MatchingService.
type DefaultMatchingService struct {
	ProviderRepo  providerRepo.ProviderRepository
	CacheClient   *redis.Client
	Weights       Weights
	TopN          int
	MaxDistanceKm float64
	Logger        *zap.Logger
}

const candidateCacheTTL = 30 * time.Second

// RankCandidates filters, scores and orders providers for a category around
// a location. Results are cached briefly to absorb retry storms from the app.
func (s *DefaultMatchingService) RankCandidates(ctx context.Context, categoryID string, location models.GeoPoint, urgency int) ([]models.ProviderCandidate, error) {
	cacheKey := candidateCacheKey(categoryID, location, urgency)
	if s.CacheClient != nil {
		if cached, err := s.CacheClient.Get(ctx, cacheKey).Result(); err == nil {
			var candidates []models.ProviderCandidate
			if json.Unmarshal([]byte(cached), &candidates) == nil {
				return candidates, nil
			}
		}
	}

	providers, err := s.ProviderRepo.Search(ctx, providerRepo.ProviderSearchCriteria{
		CategoryID:    categoryID,
		LocationGeo:   location,
		MaxDistanceKm: s.MaxDistanceKm,
	})
	if err != nil {
		return nil, fmt.Errorf("provider search failed: %w", err)
	}

	candidates := s.rank(providers, location, urgency)

	if s.CacheClient != nil {
		if data, err := json.Marshal(candidates); err == nil {
			if err := s.CacheClient.Set(ctx, cacheKey, data, candidateCacheTTL).Err(); err != nil {
				s.Logger.Debug("candidate cache write failed", zap.Error(err))
			}
		}
	}

	if len(candidates) == 0 {
		s.Logger.Info("no providers available",
			zap.String("categoryId", categoryID), zap.Int("urgency", urgency))
	}
	return candidates, nil
}

func (s *DefaultMatchingService) rank(providers []models.Provider, location models.GeoPoint, urgency int) []models.ProviderCandidate {
	if len(location.Coordinates) < 2 {
		return []models.ProviderCandidate{}
	}
	centerLon := location.Coordinates[0]
	centerLat := location.Coordinates[1]

	resultsCh := make(chan models.ProviderCandidate, len(providers))
	var wg sync.WaitGroup

	for _, p := range providers {
		if !eligible(p) {
			continue
		}
		wg.Add(1)
		go func(p models.Provider) {
			defer wg.Done()
			var provLat, provLon float64
			if len(p.Profile.LocationGeo.Coordinates) >= 2 {
				provLon = p.Profile.LocationGeo.Coordinates[0]
				provLat = p.Profile.LocationGeo.Coordinates[1]
			}
			distanceKm := haversine(centerLat, centerLon, provLat, provLon)
			urgencyMatch := p.UrgencyMatchScores[urgency]

			resultsCh <- models.ProviderCandidate{
				ProviderID:               p.ID,
				DistanceKm:               distanceKm,
				Rating:                   p.Profile.Rating,
				IsVerified:               p.Profile.Verified,
				EstimatedResponseMinutes: p.EstimatedResponseMinutes,
				UrgencyMatchScore:        urgencyMatch,
				Score:                    s.score(distanceKm, p.Profile.Rating, p.EstimatedResponseMinutes, urgencyMatch),
			}
		}(p)
	}

	wg.Wait()
	close(resultsCh)

	candidates := []models.ProviderCandidate{}
	for c := range resultsCh {
		candidates = append(candidates, c)
	}

	// Ties broken by provider id so ranking is deterministic.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].ProviderID < candidates[j].ProviderID
	})

	if s.TopN > 0 && len(candidates) > s.TopN {
		candidates = candidates[:s.TopN]
	}
	return candidates
}

// score favours near, well-rated, fast-responding providers with a good
// urgency fit. Inverse terms are clamped so a provider on top of the customer
// cannot blow up the scale.
func (s *DefaultMatchingService) score(distanceKm, rating, estResponseMin, urgencyMatch float64) float64 {
	const minDivisor = 0.1
	if distanceKm < minDivisor {
		distanceKm = minDivisor
	}
	if estResponseMin < minDivisor {
		estResponseMin = minDivisor
	}
	return s.Weights.Distance*(1/distanceKm) +
		s.Weights.Rating*rating +
		s.Weights.Response*(1/estResponseMin) +
		s.Weights.Urgency*urgencyMatch
}

// eligible excludes unverified providers and those not currently taking work.
func eligible(p models.Provider) bool {
	if !p.Profile.Verified {
		return false
	}
	switch p.Profile.Status {
	case models.ProviderUnavailable, models.ProviderPaused:
		return false
	}
	return true
}

func candidateCacheKey(categoryID string, location models.GeoPoint, urgency int) string {
	var lon, lat float64
	if len(location.Coordinates) >= 2 {
		lon = location.Coordinates[0]
		lat = location.Coordinates[1]
	}
	// Round coordinates to ~100m so nearby retries share a cache entry.
	return fmt.Sprintf("candidates:%s:%.3f,%.3f:%d", categoryID, lat, lon, urgency)
}

func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371
	dLat := (lat2 - lat1) * (math.Pi / 180)
	dLon := (lon2 - lon1) * (math.Pi / 180)
	lat1Rad := lat1 * (math.Pi / 180)
	lat2Rad := lat2 * (math.Pi / 180)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
