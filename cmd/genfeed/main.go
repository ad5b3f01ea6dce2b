// Command genfeed generates a synthetic NeoWs feed fixture for local
// development and test suites. It runs every generated record through the
// actual normalization path so the printed stats match real pipeline
// behavior.
//
// Usage:
//
//	go run ./cmd/genfeed -out data/mock/feed.json -date 2026-08-31 -count 25 -seed 42
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cosmicwatch/neo-watch-service/internal/domain"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the feed JSON fixture")
	dateStr := flag.String("date", "", "feed date in YYYY-MM-DD (default today UTC)")
	count := flag.Int("count", 25, "number of asteroids to generate")
	seed := flag.Int64("seed", 1, "random seed for reproducible fixtures")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	day := time.Now().UTC()
	if *dateStr != "" {
		parsed, err := time.ParseInLocation("2006-01-02", *dateStr, time.UTC)
		if err != nil {
			return fmt.Errorf("invalid -date %q: %w", *dateStr, err)
		}
		day = parsed
	}
	dateKey := day.Format("2006-01-02")

	rng := rand.New(rand.NewSource(*seed))
	records := make([]domain.NeoRecord, 0, *count)
	for i := 0; i < *count; i++ {
		records = append(records, generateRecord(rng, dateKey, i))
	}

	feed := domain.FeedResponse{
		ElementCount:     len(records),
		NearEarthObjects: map[string][]domain.NeoRecord{dateKey: records},
	}

	if err := writeJSON(*out, feed); err != nil {
		return fmt.Errorf("writing feed fixture: %w", err)
	}
	log.Printf("wrote feed fixture: %s (%d asteroids)", *out, len(records))

	printStats(records)
	return nil
}

// generateRecord builds one plausible asteroid. Roughly one in five is
// hazardous and miss distances span the whole scoring range so fixtures
// exercise both ends of the risk scale.
func generateRecord(rng *rand.Rand, dateKey string, i int) domain.NeoRecord {
	id := 3000000 + rng.Intn(1000000)
	diamMMax := 20 + rng.Float64()*1500
	missKm := 100_000 + rng.Float64()*15_000_000
	velKmph := 10_000 + rng.Float64()*120_000
	hazardous := rng.Intn(5) == 0

	const (
		kmPerAU    = 149_597_870.7
		kmPerLunar = 384_400.0
		kmPerMile  = 1.609344
		mPerFoot   = 0.3048
	)

	return domain.NeoRecord{
		ID:                 strconv.Itoa(id),
		NeoReferenceID:     strconv.Itoa(id),
		Name:               fmt.Sprintf("(%d XF%d)", 2000+rng.Intn(27), i+1),
		NasaJplURL:         fmt.Sprintf("https://ssd.jpl.nasa.gov/tools/sbdb_lookup.html#/?sstr=%d", id),
		AbsoluteMagnitudeH: 18 + rng.Float64()*10,
		Hazardous:          hazardous,
		SentryObject:       hazardous && rng.Intn(10) == 0,
		EstimatedDiameter: &domain.EstimatedDiameter{
			Kilometers: diameterRange(diamMMax / 1000),
			Meters:     diameterRange(diamMMax),
			Miles:      diameterRange(diamMMax / 1000 / kmPerMile),
			Feet:       diameterRange(diamMMax / mPerFoot),
		},
		CloseApproachData: []domain.CloseApproachRecord{{
			CloseApproachDate:      dateKey,
			CloseApproachDateFull:  dateKey + " " + fmt.Sprintf("%02d:%02d", rng.Intn(24), rng.Intn(60)),
			EpochDateCloseApproach: mustParseDate(dateKey).UnixMilli(),
			RelativeVelocity: domain.RelativeVelocity{
				KilometersPerSecond: formatFloat(velKmph / 3600),
				KilometersPerHour:   formatFloat(velKmph),
				MilesPerHour:        formatFloat(velKmph / kmPerMile),
			},
			MissDistance: domain.MissDistance{
				Astronomical: formatFloat(missKm / kmPerAU),
				Lunar:        formatFloat(missKm / kmPerLunar),
				Kilometers:   formatFloat(missKm),
				Miles:        formatFloat(missKm / kmPerMile),
			},
			OrbitingBody: "Earth",
		}},
	}
}

func diameterRange(upper float64) domain.FeedDiameterRange {
	return domain.FeedDiameterRange{Min: upper * 0.45, Max: upper}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func mustParseDate(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

func printStats(records []domain.NeoRecord) {
	var hazardous, highRisk int
	var maxRisk float64

	for _, rec := range records {
		asteroid, approaches, err := domain.NormalizeRecord(rec)
		if err != nil {
			log.Printf("generated record failed normalization: %v", err)
			continue
		}
		if asteroid.Hazardous {
			hazardous++
		}
		for _, a := range approaches {
			if a.RiskScore >= 0.5 {
				highRisk++
			}
			if a.RiskScore > maxRisk {
				maxRisk = a.RiskScore
			}
		}
	}

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Total: %d\n", len(records))
	fmt.Printf("Hazardous: %d\n", hazardous)
	fmt.Printf("Risk >= 0.5: %d\n", highRisk)
	fmt.Printf("Max risk score: %g\n", maxRisk)
}
