package domain

import "time"

// Asteroid is one catalogued near-earth object. Rows are created once per
// external id and never updated or deleted by the ingestion path.
type Asteroid struct {
	ID                 int64   `db:"asteroid_id" json:"id"`
	NeoReferenceID     string  `db:"neo_reference_id" json:"neo_reference_id"`
	Name               string  `db:"name" json:"name"`
	NasaJplURL         string  `db:"nasa_jpl_url" json:"nasa_jpl_url"`
	AbsoluteMagnitudeH float64 `db:"absolute_magnitude_h" json:"absolute_magnitude_h"`
	Hazardous          bool    `db:"is_potentially_hazardous" json:"is_potentially_hazardous"`
	SentryObject       bool    `db:"is_sentry_object" json:"is_sentry_object"`

	DiamKmMin    float64 `db:"est_diam_km_min" json:"est_diam_km_min"`
	DiamKmMax    float64 `db:"est_diam_km_max" json:"est_diam_km_max"`
	DiamMMin     float64 `db:"est_diam_m_min" json:"est_diam_m_min"`
	DiamMMax     float64 `db:"est_diam_m_max" json:"est_diam_m_max"`
	DiamMilesMin float64 `db:"est_diam_miles_min" json:"est_diam_miles_min"`
	DiamMilesMax float64 `db:"est_diam_miles_max" json:"est_diam_miles_max"`
	DiamFeetMin  float64 `db:"est_diam_feet_min" json:"est_diam_feet_min"`
	DiamFeetMax  float64 `db:"est_diam_feet_max" json:"est_diam_feet_max"`
}

// ApproachEvent is a single close approach of an asteroid. Rows are keyed by
// (asteroid, approach date, orbiting body) so repeated ingestion of the same
// feed does not duplicate them.
type ApproachEvent struct {
	AsteroidID       int64     `db:"asteroid_id" json:"asteroid_id"`
	ApproachDate     time.Time `db:"approach_date" json:"approach_date"`
	ApproachDateFull *string   `db:"approach_date_full" json:"approach_date_full,omitempty"`
	EpochMillis      *int64    `db:"epoch_date_close_approach" json:"epoch_date_close_approach,omitempty"`
	VelocityKmps     float64   `db:"velocity_kmps" json:"velocity_kmps"`
	VelocityKmph     float64   `db:"velocity_kmph" json:"velocity_kmph"`
	VelocityMph      float64   `db:"velocity_mph" json:"velocity_mph"`
	MissDistanceAU   float64   `db:"miss_distance_au" json:"miss_distance_au"`
	MissDistanceLD   float64   `db:"miss_distance_lunar" json:"miss_distance_lunar"`
	MissDistanceKm   float64   `db:"miss_distance_km" json:"miss_distance_km"`
	MissDistanceMi   float64   `db:"miss_distance_miles" json:"miss_distance_miles"`
	OrbitingBody     string    `db:"orbiting_body" json:"orbiting_body"`
	RiskScore        float64   `db:"risk_score" json:"risk_score"`
}

// AlertNotification is an ephemeral high-risk approach alert. It is pushed to
// connected clients and never stored.
type AlertNotification struct {
	Asteroid     string  `json:"asteroid"`
	MissDistance float64 `json:"miss_distance"`
	Velocity     float64 `json:"velocity"`
	RiskScore    float64 `json:"risk_score"`
	Message      string  `json:"message"`
}

// IngestResult summarizes one ingestion run.
type IngestResult struct {
	AsteroidsSeen      int `json:"asteroids_seen"`
	AsteroidsInserted  int `json:"asteroids_inserted"`
	ApproachesSeen     int `json:"approaches_seen"`
	ApproachesInserted int `json:"approaches_inserted"`
}

// AsteroidSummary is the read model behind GET /api/asteroids: one recent
// approach joined with its parent asteroid.
type AsteroidSummary struct {
	ID             int64   `db:"asteroid_id" json:"id"`
	NeoReferenceID string  `db:"neo_reference_id" json:"neo_reference_id"`
	Name           string  `db:"name" json:"name"`
	DiameterKmMax  float64 `db:"est_diam_km_max" json:"diameter"`
	VelocityKmph   float64 `db:"velocity_kmph" json:"velocity"`
	MissDistanceKm float64 `db:"miss_distance_km" json:"miss_distance"`
	RiskScore      float64 `db:"risk_score" json:"risk_score"`
}

// Stats holds the aggregate dashboard numbers.
type Stats struct {
	TotalNEOs       int     `db:"total_neos" json:"total_neos"`
	HazardousCount  int     `db:"hazardous_count" json:"hazardous_count"`
	ClosestDistance float64 `db:"closest_distance" json:"closest_distance"`
	FastestVelocity float64 `db:"fastest_velocity" json:"fastest_velocity"`
}

// UpcomingApproach is one row of the alert-scanner query: an approach within
// the scan window joined with the asteroid name.
type UpcomingApproach struct {
	Name           string  `db:"name" json:"name"`
	MissDistanceKm float64 `db:"miss_distance_km" json:"miss_distance_km"`
	VelocityKmph   float64 `db:"velocity_kmph" json:"velocity_kmph"`
	RiskScore      float64 `db:"risk_score" json:"risk_score"`
}

// RiskAnalysis is the per-asteroid approach history read model.
type RiskAnalysis struct {
	Asteroid   RiskAnalysisAsteroid `json:"asteroid"`
	Approaches []ApproachPoint      `json:"approaches"`
}

// RiskAnalysisAsteroid is the header block of a RiskAnalysis.
type RiskAnalysisAsteroid struct {
	Name      string  `db:"name" json:"name"`
	DiameterM float64 `db:"est_diam_m_max" json:"diameter_m"`
	Hazardous bool    `db:"is_potentially_hazardous" json:"is_hazardous"`
}

// ApproachPoint is one historical approach in a RiskAnalysis.
type ApproachPoint struct {
	Date           time.Time `db:"approach_date" json:"date"`
	MissDistanceKm float64   `db:"miss_distance_km" json:"miss_distance"`
	VelocityKmph   float64   `db:"velocity_kmph" json:"velocity"`
	RiskScore      float64   `db:"risk_score" json:"risk_score"`
}

// WatchlistEntry is one watched asteroid with its next upcoming approach, if any.
type WatchlistEntry struct {
	ID             int64    `db:"asteroid_id" json:"id"`
	NeoReferenceID string   `db:"neo_reference_id" json:"neo_reference_id"`
	Name           string   `db:"name" json:"name"`
	MissDistanceKm *float64 `db:"miss_distance_km" json:"miss_distance"`
	VelocityKmph   *float64 `db:"velocity_kmph" json:"velocity"`
	RiskScore      *float64 `db:"risk_score" json:"risk_score"`
}

// User is a registered account.
type User struct {
	ID           int64  `db:"user_id" json:"id"`
	FullName     string `db:"full_name" json:"full_name"`
	Email        string `db:"email" json:"email"`
	PasswordHash string `db:"password_hash" json:"-"`
	Role         string `db:"role" json:"role"`
	Verified     bool   `db:"is_verified" json:"is_verified"`
}

// ChatMessage is one persisted chat-channel message.
type ChatMessage struct {
	ID         int64     `db:"message_id" json:"-"`
	UserID     *int64    `db:"user_id" json:"-"`
	SenderName string    `db:"sender_name" json:"user"`
	Text       string    `db:"message_text" json:"message"`
	CreatedAt  time.Time `db:"created_at" json:"timestamp"`
}
