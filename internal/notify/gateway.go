package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/officeflow/be-oa-approvals/internal/repository"
)

// OutboxStore accepts durable email delivery tasks.
type OutboxStore interface {
	Enqueue(ctx context.Context, e *repository.OutboxEmail) error
}

// Gateway delivers notifications over two channels: best-effort realtime
// events on NATS, and email through the durable outbox. Neither channel ever
// propagates a delivery failure to the caller — "the approval happened" stays
// true even when nobody could yet be told.
//
// Subject convention: notifications.oa.<event_type>
type Gateway struct {
	nc     *nats.Conn
	outbox OutboxStore
	log    zerolog.Logger
}

// UserEvent is the JSON schema published on the realtime channel.
type UserEvent struct {
	Recipient string         `json:"recipient"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Data      map[string]any `json:"data,omitempty"`
}

// NewGateway creates a gateway. nc may be nil; realtime delivery is then
// skipped entirely.
func NewGateway(nc *nats.Conn, outbox OutboxStore, log zerolog.Logger) *Gateway {
	return &Gateway{nc: nc, outbox: outbox, log: log}
}

// NotifyUser publishes a realtime event for one user. Best-effort.
func (g *Gateway) NotifyUser(ctx context.Context, userID, title, body string, data map[string]any) {
	if g.nc == nil || userID == "" {
		return
	}
	event := &UserEvent{Recipient: userID, Title: title, Body: body, Data: data}
	raw, err := json.Marshal(event)
	if err != nil {
		g.log.Warn().Err(err).Str("user_id", userID).Msg("notify: failed to marshal event")
		return
	}
	subject := fmt.Sprintf("notifications.oa.user.%s", userID)
	if err := g.nc.Publish(subject, raw); err != nil {
		g.log.Warn().Err(err).
			Str("subject", subject).
			Msg("notify: failed to publish realtime event (non-fatal)")
		return
	}
	g.log.Debug().Str("subject", subject).Msg("notify: realtime event published")
}

// SendEmail queues an email for durable delivery. A true return means the
// outbox owns the message and the relay will retry it until delivered or
// dead-lettered; false means nothing was queued, either because no valid
// recipients remained after filtering or because the enqueue itself failed.
func (g *Gateway) SendEmail(ctx context.Context, recipients []string, subject, htmlBody string, correlationID string) bool {
	valid := recipients[:0:0]
	for _, r := range recipients {
		if r != "" {
			valid = append(valid, r)
		}
	}
	if len(valid) == 0 {
		g.log.Info().Str("correlation_id", correlationID).Msg("notify: email skipped, no valid recipients")
		return false
	}

	e := &repository.OutboxEmail{
		Recipients: valid,
		Subject:    subject,
		Body:       htmlBody,
	}
	if correlationID != "" {
		e.CorrelationID = &correlationID
	}
	if err := g.outbox.Enqueue(ctx, e); err != nil {
		g.log.Error().Err(err).
			Str("correlation_id", correlationID).
			Int("recipients", len(valid)).
			Msg("notify: failed to enqueue email")
		return false
	}

	enqueueTotal.Inc()
	g.log.Debug().
		Str("outbox_id", e.ID).
		Str("correlation_id", correlationID).
		Int("recipients", len(valid)).
		Msg("notify: email enqueued")
	return true
}
