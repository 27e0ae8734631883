package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// Job types carried in Pub/Sub messages.
const (
	JobGraphRebuild = "graph_rebuild"
	JobCacheWarmup  = "cache_warmup"
	JobHealthCheck  = "health_check"
)

// JobMessage is the body of a worker Pub/Sub message.
type JobMessage struct {
	JobType string `json:"job_type"`

	// Mode applies to graph_rebuild; empty uses the configured mode.
	Mode RebuildMode `json:"mode,omitempty"`
}

// Dispatcher runs the jobs named in messages. It is transport-free so that
// Pub/Sub and tests share the same routing.
type Dispatcher struct {
	rebuild *GraphRebuildJob
	warmup  *WarmupJob // optional
	store   GraphStore
	extent  string
	logger  zerolog.Logger
}

// NewDispatcher creates a Dispatcher. warmup may be nil.
func NewDispatcher(rebuild *GraphRebuildJob, warmup *WarmupJob, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		rebuild: rebuild,
		warmup:  warmup,
		store:   rebuild.store,
		extent:  rebuild.config.Extent,
		logger:  logger,
	}
}

// Outcome tells the transport what to do with a message.
type Outcome int

const (
	// Ack removes the message; it either succeeded or can never succeed.
	Ack Outcome = iota
	// Nack asks for redelivery.
	Nack
)

// Dispatch decodes and runs one message. A malformed body or unknown job type
// is acknowledged, since redelivery cannot fix it. A rebuild already in
// progress is also acknowledged: that rebuild will pick up the same facts.
func (d *Dispatcher) Dispatch(ctx context.Context, data []byte) (Outcome, error) {
	var msg JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return Ack, fmt.Errorf("decoding job message: %w", err)
	}

	switch msg.JobType {
	case JobGraphRebuild:
		if msg.Mode != "" && !msg.Mode.Valid() {
			return Ack, fmt.Errorf("unknown rebuild mode %q", msg.Mode)
		}
		_, err := d.rebuild.Run(ctx, msg.Mode)
		switch {
		case errors.Is(err, ErrRebuildInProgress):
			return Ack, nil
		case err != nil:
			return Nack, err
		}
		return Ack, nil

	case JobCacheWarmup:
		if d.warmup == nil {
			return Ack, errors.New("cache warmup is not configured on this worker")
		}
		result := d.warmup.Run(ctx)
		if result.Targets > 0 && result.Successful == 0 {
			return Nack, fmt.Errorf("cache warmup failed for all %d targets", result.Targets)
		}
		return Ack, nil

	case JobHealthCheck:
		// The stored artifact must be readable for the API to start.
		if _, err := d.store.Load(ctx, d.extent); err != nil {
			return Nack, fmt.Errorf("health check: %w", err)
		}
		return Ack, nil

	default:
		return Ack, fmt.Errorf("unknown job type %q", msg.JobType)
	}
}

// PubSubHandler feeds Pub/Sub messages to a Dispatcher.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	dispatcher       *Dispatcher
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Dispatcher       *Dispatcher
	Logger           zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)
	// Rebuilds are heavy and single-flight; more outstanding messages only queue.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 2
	subscriber.ReceiveSettings.MaxExtension = 15 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		dispatcher:       cfg.Dispatcher,
		logger:           cfg.Logger,
	}, nil
}

// Start processes messages until ctx is done.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	start := time.Now()
	logger := h.logger.With().
		Str("message_id", msg.ID).
		Time("publish_time", msg.PublishTime).
		Logger()

	outcome, err := h.dispatcher.Dispatch(ctx, msg.Data)
	if err != nil {
		logger.Error().Err(err).Bool("retry", outcome == Nack).Msg("job failed")
	} else {
		logger.Info().Dur("duration", time.Since(start)).Msg("job completed")
	}

	if outcome == Nack {
		msg.Nack()
		return
	}
	msg.Ack()
}
