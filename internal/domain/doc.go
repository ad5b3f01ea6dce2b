// Package domain models near-earth-object (NEO) data from the NASA NeoWs feed.
//
// # Data Source
//
// Asteroid records come from the NASA NeoWs feed endpoint
// (https://api.nasa.gov/neo/rest/v1/feed), queried once per ingestion run with
// start_date = end_date = the current UTC date. The response groups asteroid
// records by calendar date; each record carries identity fields, an estimated
// diameter per unit system, and a list of close-approach sub-records.
//
// # NeoWs Conventions
//
// Numeric strings:
//
//	Relative velocity and miss distance arrive as JSON strings, one per unit
//	system ("kilometers_per_hour": "54321.99"). They are parsed into float64
//	during normalization; an unparseable value is a MappingError because the
//	risk score cannot be computed without it.
//
// Optional fields:
//
//	close_approach_date_full and epoch_date_close_approach are absent on some
//	historical records. They normalize to nil pointers and persist as NULL.
//
// Hazard flags:
//
//	is_potentially_hazardous_asteroid and is_sentry_object are classifications
//	assigned by the provider, never computed here.
//
// # Risk Scoring
//
// Each close approach gets a deterministic risk score in [0,1], a weighted sum
// of four normalized sub-scores:
//
//	hazard flag    1.0 or 0.0                                 weight 0.30
//	miss distance  1.0 below 400,000 km, 0.0 above            weight 0.30
//	               10,000,000 km, log10-linear in between
//	diameter       max meters / 1000, capped at 1.0           weight 0.25
//	velocity       km/h / 100,000, capped at 1.0              weight 0.15
//
// The sum is clamped to [0,1] and rounded to 4 decimal places. See [RiskScore].
package domain
