package domain

import (
	"strconv"
	"time"
)

// Typed representation of the NeoWs feed response. The feed nests asteroid
// records under their approach date; numeric measurements arrive as strings
// and are parsed during normalization so shape errors surface as precise
// MappingErrors instead of silent zero values.

// FeedResponse is the body of one GET /neo/rest/v1/feed call.
type FeedResponse struct {
	ElementCount     int                    `json:"element_count"`
	NearEarthObjects map[string][]NeoRecord `json:"near_earth_objects"`
}

// NeoRecord is one asteroid entry in the feed.
type NeoRecord struct {
	ID                 string                `json:"id"`
	NeoReferenceID     string                `json:"neo_reference_id"`
	Name               string                `json:"name"`
	NasaJplURL         string                `json:"nasa_jpl_url"`
	AbsoluteMagnitudeH float64               `json:"absolute_magnitude_h"`
	Hazardous          bool                  `json:"is_potentially_hazardous_asteroid"`
	SentryObject       bool                  `json:"is_sentry_object"`
	EstimatedDiameter  *EstimatedDiameter    `json:"estimated_diameter"`
	CloseApproachData  []CloseApproachRecord `json:"close_approach_data"`
}

// EstimatedDiameter carries the min/max estimate per unit system.
type EstimatedDiameter struct {
	Kilometers FeedDiameterRange `json:"kilometers"`
	Meters     FeedDiameterRange `json:"meters"`
	Miles      FeedDiameterRange `json:"miles"`
	Feet       FeedDiameterRange `json:"feet"`
}

// FeedDiameterRange is one unit system's diameter estimate.
type FeedDiameterRange struct {
	Min float64 `json:"estimated_diameter_min"`
	Max float64 `json:"estimated_diameter_max"`
}

// CloseApproachRecord is one close-approach sub-record.
type CloseApproachRecord struct {
	CloseApproachDate      string           `json:"close_approach_date"`
	CloseApproachDateFull  string           `json:"close_approach_date_full"`
	EpochDateCloseApproach int64            `json:"epoch_date_close_approach"`
	RelativeVelocity       RelativeVelocity `json:"relative_velocity"`
	MissDistance           MissDistance     `json:"miss_distance"`
	OrbitingBody           string           `json:"orbiting_body"`
}

// RelativeVelocity holds the approach velocity as feed-format numeric strings.
type RelativeVelocity struct {
	KilometersPerSecond string `json:"kilometers_per_second"`
	KilometersPerHour   string `json:"kilometers_per_hour"`
	MilesPerHour        string `json:"miles_per_hour"`
}

// MissDistance holds the miss distance as feed-format numeric strings.
type MissDistance struct {
	Astronomical string `json:"astronomical"`
	Lunar        string `json:"lunar"`
	Kilometers   string `json:"kilometers"`
	Miles        string `json:"miles"`
}

// NormalizeRecord flattens one feed record into an Asteroid plus its approach
// events, with a risk score computed per approach. Absent optional fields
// (full date string, epoch) become nil; an absent required field (id, name,
// diameter block, close-approach list) is a MappingError.
func NormalizeRecord(rec NeoRecord) (Asteroid, []ApproachEvent, error) {
	id, err := strconv.ParseInt(rec.ID, 10, 64)
	if err != nil {
		return Asteroid{}, nil, &MappingError{Field: "id", Reason: "missing or non-numeric"}
	}
	if rec.Name == "" {
		return Asteroid{}, nil, &MappingError{Field: "name", Reason: "missing"}
	}
	if rec.EstimatedDiameter == nil {
		return Asteroid{}, nil, &MappingError{Field: "estimated_diameter", Reason: "missing"}
	}
	if rec.CloseApproachData == nil {
		return Asteroid{}, nil, &MappingError{Field: "close_approach_data", Reason: "missing"}
	}

	d := rec.EstimatedDiameter
	asteroid := Asteroid{
		ID:                 id,
		NeoReferenceID:     rec.NeoReferenceID,
		Name:               rec.Name,
		NasaJplURL:         rec.NasaJplURL,
		AbsoluteMagnitudeH: rec.AbsoluteMagnitudeH,
		Hazardous:          rec.Hazardous,
		SentryObject:       rec.SentryObject,
		DiamKmMin:          d.Kilometers.Min,
		DiamKmMax:          d.Kilometers.Max,
		DiamMMin:           d.Meters.Min,
		DiamMMax:           d.Meters.Max,
		DiamMilesMin:       d.Miles.Min,
		DiamMilesMax:       d.Miles.Max,
		DiamFeetMin:        d.Feet.Min,
		DiamFeetMax:        d.Feet.Max,
	}

	approaches := make([]ApproachEvent, 0, len(rec.CloseApproachData))
	for _, ca := range rec.CloseApproachData {
		event, err := normalizeApproach(id, d.Meters.Max, rec.Hazardous, ca)
		if err != nil {
			return Asteroid{}, nil, err
		}
		approaches = append(approaches, event)
	}
	return asteroid, approaches, nil
}

func normalizeApproach(asteroidID int64, diamMMax float64, hazardous bool, ca CloseApproachRecord) (ApproachEvent, error) {
	date, err := time.ParseInLocation("2006-01-02", ca.CloseApproachDate, time.UTC)
	if err != nil {
		return ApproachEvent{}, &MappingError{Field: "close_approach_date", Reason: "missing or not YYYY-MM-DD"}
	}

	velKmps, err := parseFeedFloat("relative_velocity.kilometers_per_second", ca.RelativeVelocity.KilometersPerSecond)
	if err != nil {
		return ApproachEvent{}, err
	}
	velKmph, err := parseFeedFloat("relative_velocity.kilometers_per_hour", ca.RelativeVelocity.KilometersPerHour)
	if err != nil {
		return ApproachEvent{}, err
	}
	velMph, err := parseFeedFloat("relative_velocity.miles_per_hour", ca.RelativeVelocity.MilesPerHour)
	if err != nil {
		return ApproachEvent{}, err
	}
	missAU, err := parseFeedFloat("miss_distance.astronomical", ca.MissDistance.Astronomical)
	if err != nil {
		return ApproachEvent{}, err
	}
	missLD, err := parseFeedFloat("miss_distance.lunar", ca.MissDistance.Lunar)
	if err != nil {
		return ApproachEvent{}, err
	}
	missKm, err := parseFeedFloat("miss_distance.kilometers", ca.MissDistance.Kilometers)
	if err != nil {
		return ApproachEvent{}, err
	}
	missMi, err := parseFeedFloat("miss_distance.miles", ca.MissDistance.Miles)
	if err != nil {
		return ApproachEvent{}, err
	}

	event := ApproachEvent{
		AsteroidID:     asteroidID,
		ApproachDate:   date,
		VelocityKmps:   velKmps,
		VelocityKmph:   velKmph,
		VelocityMph:    velMph,
		MissDistanceAU: missAU,
		MissDistanceLD: missLD,
		MissDistanceKm: missKm,
		MissDistanceMi: missMi,
		OrbitingBody:   ca.OrbitingBody,
		RiskScore:      RiskScore(missKm, velKmph, diamMMax, hazardous),
	}
	if ca.CloseApproachDateFull != "" {
		full := ca.CloseApproachDateFull
		event.ApproachDateFull = &full
	}
	if ca.EpochDateCloseApproach != 0 {
		epoch := ca.EpochDateCloseApproach
		event.EpochMillis = &epoch
	}
	return event, nil
}

func parseFeedFloat(field, s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &MappingError{Field: field, Reason: "missing or non-numeric"}
	}
	return v, nil
}
