package models

// GeoPoint represents a GeoJSON Point.
type GeoPoint struct {
	Type        string    `bson:"type" json:"type"`               // Always "Point"
	Coordinates []float64 `bson:"coordinates" json:"coordinates"` // [longitude, latitude]
}

// Provider availability statuses as stored by the matching data source.
const (
	ProviderAvailable   = "available"
	ProviderUnavailable = "unavailable"
	ProviderPaused      = "paused"
)

// ProviderProfile is the slice of a provider record the ranker cares about.
type ProviderProfile struct {
	ProviderName string   `bson:"providerName" json:"providerName,omitempty"`
	Status       string   `bson:"status" json:"status,omitempty"`
	Verified     bool     `bson:"verified" json:"verified"`
	Rating       float64  `bson:"rating" json:"rating,omitempty"` // Expected value between 1 and 5.
	LocationGeo  GeoPoint `bson:"locationGeo" json:"locationGeo"`
}

// Provider is the read model supplied by the location/matching data source.
type Provider struct {
	ID                       string          `bson:"id" json:"id"`
	Profile                  ProviderProfile `bson:"profile" json:"profile"`
	Categories               []string        `bson:"categories" json:"categories"`
	EstimatedResponseMinutes float64         `bson:"estimatedResponseMinutes" json:"estimatedResponseMinutes"`
	UrgencyMatchScores       map[int]float64 `bson:"urgencyMatchScores,omitempty" json:"urgencyMatchScores,omitempty"`
}

// ProviderCandidate is the ephemeral ranking output for an emergency request.
// Candidates are never persisted; they exist only to drive notification
// fan-out and display.
type ProviderCandidate struct {
	ProviderID               string  `json:"providerId"`
	DistanceKm               float64 `json:"distanceKm"`
	Rating                   float64 `json:"rating"`
	IsVerified               bool    `json:"isVerified"`
	EstimatedResponseMinutes float64 `json:"estimatedResponseMinutes"`
	UrgencyMatchScore        float64 `json:"urgencyMatchScore"`
	Score                    float64 `json:"score"`
}
