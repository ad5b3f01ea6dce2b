package alert

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cosmicwatch/neo-watch-service/internal/domain"
	"github.com/cosmicwatch/neo-watch-service/internal/observability"
)

// Store reads approach events due within the window whose risk score exceeds
// the threshold.
type Store interface {
	UpcomingHighRisk(ctx context.Context, within time.Duration, minRisk float64) ([]domain.UpcomingApproach, error)
}

// Broadcaster pushes a named event to all connected clients, best-effort.
type Broadcaster interface {
	Broadcast(event string, payload any)
}

// Scanner turns upcoming high-risk approaches into push notifications.
type Scanner struct {
	store       Store
	broadcaster Broadcaster
	logger      *slog.Logger
	metrics     *observability.Metrics
	window      time.Duration
	threshold   float64
}

// New creates a Scanner. window is how far ahead to look (normally 24h) and
// threshold the minimum risk score that triggers an alert.
func New(store Store, broadcaster Broadcaster, logger *slog.Logger, metrics *observability.Metrics, window time.Duration, threshold float64) *Scanner {
	return &Scanner{
		store:       store,
		broadcaster: broadcaster,
		logger:      logger,
		metrics:     metrics,
		window:      window,
		threshold:   threshold,
	}
}

// Scan queries for imminent high-risk approaches and broadcasts the batch as
// a single "alert" event when it is non-empty. Zero matches is a successful
// scan with an empty result, not an error.
func (s *Scanner) Scan(ctx context.Context) ([]domain.AlertNotification, error) {
	rows, err := s.store.UpcomingHighRisk(ctx, s.window, s.threshold)
	if err != nil {
		s.metrics.AlertScans.WithLabelValues("error").Inc()
		return nil, err
	}

	notifications := make([]domain.AlertNotification, 0, len(rows))
	for _, row := range rows {
		notifications = append(notifications, domain.AlertNotification{
			Asteroid:     row.Name,
			MissDistance: row.MissDistanceKm,
			Velocity:     row.VelocityKmph,
			RiskScore:    row.RiskScore,
			Message:      fmt.Sprintf("High risk asteroid %s approaching!", row.Name),
		})
	}

	if len(notifications) > 0 {
		s.broadcaster.Broadcast("alert", map[string]any{"alerts": notifications})
		s.metrics.AlertsEmitted.Add(float64(len(notifications)))
		s.logger.Info("alerts emitted", "count", len(notifications))
	}

	s.metrics.AlertScans.WithLabelValues("success").Inc()
	return notifications, nil
}
