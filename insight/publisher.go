package insight

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// DefaultAlertThreshold is the minimum confidence for an alert.
const DefaultAlertThreshold = 0.7

// Store persists insights.
type Store interface {
	Save(ctx context.Context, in *Insight) (string, error)
	MarkAlertSent(ctx context.Context, id string) error
}

// Alerter creates platform alerts.
type Alerter interface {
	Create(ctx context.Context, alert Alert) (map[string]any, error)
}

// Publication reports what Publish did.
type Publication struct {
	InsightID string
	AlertSent bool

	// AlertErr is set when the insight was stored but the alert failed. It does not fail
	// the publication.
	AlertErr error
}

// Publisher stores insights and alerts on confident ones.
type Publisher struct {
	store     Store
	alerter   Alerter
	threshold float64
	geonameID string
	log       *slog.Logger
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithAlerter enables alerts. Without one Publish only stores.
func WithAlerter(a Alerter) PublisherOption {
	return func(p *Publisher) { p.alerter = a }
}

// WithThreshold sets the minimum confidence for an alert.
func WithThreshold(t float64) PublisherOption {
	return func(p *Publisher) { p.threshold = t }
}

// WithGeonameID sets the geoname id attached to alerts.
func WithGeonameID(id string) PublisherOption {
	return func(p *Publisher) { p.geonameID = id }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) PublisherOption {
	return func(p *Publisher) { p.log = l }
}

// NewPublisher creates a Publisher on store. Panics if store is nil.
func NewPublisher(store Store, opts ...PublisherOption) *Publisher {
	if store == nil {
		panic("insight: NewPublisher requires a store")
	}
	p := &Publisher{
		store:     store,
		threshold: DefaultAlertThreshold,
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish stores in, then creates an alert when an alerter is configured and the answer
// confidence reaches the threshold. Fallback answers are stored but never alerted.
func (p *Publisher) Publish(ctx context.Context, in *Insight) (*Publication, error) {
	id, err := p.store.Save(ctx, in)
	if err != nil {
		return nil, err
	}
	pub := &Publication{InsightID: id}
	p.log.Info("insight: stored", "insight_id", id, "city", in.City, "confidence", in.Answer.Confidence)

	if p.alerter == nil || in.Answer.Fallback || in.Answer.Confidence < p.threshold {
		return pub, nil
	}

	if _, err := p.alerter.Create(ctx, BuildAlert(in, p.geonameID)); err != nil {
		pub.AlertErr = fmt.Errorf("creating alert: %w", err)
		p.log.Warn("insight: alert failed", "insight_id", id, "error", err)
		return pub, nil
	}
	if err := p.store.MarkAlertSent(ctx, id); err != nil {
		pub.AlertErr = err
		p.log.Warn("insight: alert sent but not recorded", "insight_id", id, "error", err)
	}
	pub.AlertSent = true
	p.log.Info("insight: alert created", "insight_id", id)
	return pub, nil
}
