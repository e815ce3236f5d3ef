package publisher

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/bonuspilot/loyalty-engine/internal/metrics"
	"github.com/bonuspilot/loyalty-engine/pkg/logger"
	"github.com/bonuspilot/loyalty-engine/pkg/model"
)

// Subject roots for activation events. The provider kind is appended in
// upper case, e.g. evt.loyalty.activation.v1.PAYBACK.
const (
	SubjectActivation       = "evt.loyalty.activation.v1"
	SubjectActivationFailed = "evt.loyalty.activation_failed.v1"
)

// Publisher wraps a NATS connection and provides helpers for publishing
// activation events.
type Publisher struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	service string
}

// New creates a new Publisher with JetStream enabled if available.
func New(nc *nats.Conn, service string) (*Publisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	return &Publisher{
		nc:      nc,
		js:      js,
		service: service,
	}, nil
}

// runFailedEvent is the payload of activation_failed events.
type runFailedEvent struct {
	Kind     model.Kind `json:"kind"`
	Account  string     `json:"account"`
	Phase    string     `json:"phase"`
	Cause    string     `json:"cause"`
	FailedAt time.Time  `json:"failed_at"`
}

// PublishResult emits one event per completed account run.
func (p *Publisher) PublishResult(ctx context.Context, result *model.ActivationResult) error {
	subject := SubjectActivation + "." + strings.ToUpper(string(result.Kind))
	header := nats.Header{
		"run_id":       []string{result.RunID.String()},
		"kind":         []string{string(result.Kind)},
		"service":      []string{p.service},
		"content_type": []string{"application/json"},
	}
	return p.publish(subject, header, result, result.RunID.String())
}

// PublishRunFailed emits one event per account run that failed wholesale.
func (p *Publisher) PublishRunFailed(ctx context.Context, runErr *model.RunError) error {
	subject := SubjectActivationFailed + "." + strings.ToUpper(string(runErr.Kind))
	header := nats.Header{
		"kind":         []string{string(runErr.Kind)},
		"phase":        []string{string(runErr.Phase)},
		"service":      []string{p.service},
		"content_type": []string{"application/json"},
	}
	cause := ""
	if runErr.Cause != nil {
		cause = runErr.Cause.Error()
	}
	return p.publish(subject, header, runFailedEvent{
		Kind:     runErr.Kind,
		Account:  runErr.Account,
		Phase:    string(runErr.Phase),
		Cause:    cause,
		FailedAt: time.Now().UTC(),
	}, "")
}

func (p *Publisher) publish(subject string, header nats.Header, payload any, runID string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.S().Errorw("publisher.marshal_failed",
			"subject", subject,
			"error", err,
		)
		metrics.IncError("publisher", "marshal_failed")
		return err
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header:  header,
	}

	start := time.Now()
	_, err = p.js.PublishMsg(msg)
	metrics.ObserveDuration(metrics.NATSMessageLatency, start, subject)

	if err != nil {
		logger.S().Errorw("publisher.publish_failed",
			"subject", subject,
			"run_id", runID,
			"error", err,
		)
		metrics.IncNATSMessage(subject, "error")
		return err
	}

	logger.S().Infow("publisher.publish_success",
		"subject", subject,
		"run_id", runID,
	)

	metrics.IncNATSMessage(subject, "ok")
	return nil
}

func (p *Publisher) Close() {
	if p.nc != nil && p.nc.IsConnected() {
		p.nc.Close()
	}
}
