package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/webhook"
)

// Publisher forwards completed reports and accepted alerts to downstream
// consumers. Callers treat publish failures as log-and-continue: analysis
// output never depends on the event bus.
type Publisher interface {
	PublishReport(ctx context.Context, rep *Report) error
	PublishAlert(ctx context.Context, alert *webhook.Alert) error
}

// BusConfig configures the NATS event bus.
type BusConfig struct {
	URL            string `mapstructure:"url"`
	Name           string `mapstructure:"name"`
	ReportsSubject string `mapstructure:"reports_subject"`
	AlertsSubject  string `mapstructure:"alerts_subject"`
}

// DefaultBusConfig returns the standard bus settings.
func DefaultBusConfig() BusConfig {
	return BusConfig{
		URL:            nats.DefaultURL,
		Name:           "marketd",
		ReportsSubject: "market.reports",
		AlertsSubject:  "market.alerts",
	}
}

func (c *BusConfig) applyDefaults() {
	if c.URL == "" {
		c.URL = nats.DefaultURL
	}
	if c.Name == "" {
		c.Name = "marketd"
	}
	if c.ReportsSubject == "" {
		c.ReportsSubject = "market.reports"
	}
	if c.AlertsSubject == "" {
		c.AlertsSubject = "market.alerts"
	}
}

// Bus publishes pipeline events over NATS, one subject token per symbol:
// {reports_subject}.{SYMBOL} and {alerts_subject}.{SYMBOL}.
type Bus struct {
	nc      *nats.Conn
	reports string
	alerts  string
}

// NewBus connects to NATS and keeps reconnecting for the life of the
// process.
func NewBus(cfg BusConfig) (*Bus, error) {
	cfg.applyDefaults()

	nc, err := nats.Connect(
		cfg.URL,
		nats.Name(cfg.Name),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Info().
		Str("nats_url", cfg.URL).
		Str("reports_subject", cfg.ReportsSubject).
		Str("alerts_subject", cfg.AlertsSubject).
		Msg("Event bus connected")

	return &Bus{nc: nc, reports: cfg.ReportsSubject, alerts: cfg.AlertsSubject}, nil
}

// PublishReport emits a completed report on {reports_subject}.{SYMBOL}.
func (b *Bus) PublishReport(ctx context.Context, rep *Report) error {
	if err := b.publish(ctx, b.reports, rep.Symbol, rep); err != nil {
		return err
	}
	log.Debug().
		Str("symbol", rep.Symbol).
		Str("kind", string(rep.Kind)).
		Bool("success", rep.Success).
		Msg("Published report")
	return nil
}

// PublishAlert emits an accepted webhook alert on {alerts_subject}.{SYMBOL}.
func (b *Bus) PublishAlert(ctx context.Context, alert *webhook.Alert) error {
	if err := b.publish(ctx, b.alerts, alert.Symbol, alert); err != nil {
		return err
	}
	log.Debug().
		Str("alert_id", alert.ID).
		Str("symbol", alert.Symbol).
		Str("type", alert.Type).
		Msg("Published alert")
	return nil
}

func (b *Bus) publish(ctx context.Context, prefix, symbol string, payload any) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if !b.nc.IsConnected() {
		return fmt.Errorf("event bus not connected")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	subject := fmt.Sprintf("%s.%s", prefix, subjectToken(symbol))
	if err := b.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Close drains the connection.
func (b *Bus) Close() {
	if b.nc != nil {
		b.nc.Close()
		log.Info().Msg("Event bus closed")
	}
}

// subjectToken makes a canonical symbol safe as a single NATS subject token.
// Dots and slashes are token separators on the wire, so BRK.B publishes as
// BRK-B.
func subjectToken(symbol string) string {
	token := strings.NewReplacer(".", "-", "/", "-", " ", "-").Replace(symbol)
	if token == "" {
		return "UNKNOWN"
	}
	return token
}
