package listener

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/bioprotocol-io/bioprotocol/internal/articlesync"
	"github.com/bioprotocol-io/bioprotocol/internal/metrics"
)

// eventTypeArticle is the only event type that triggers a delivery.
const eventTypeArticle = "article"

// maxLoggedValue caps how much of an unparseable message is logged.
const maxLoggedValue = 50

var (
	// ErrUnparseableEvent is returned by ParseEvent for a message without a usable id or type.
	ErrUnparseableEvent = errors.New("unparseable event")

	// ErrMissingDependency is returned when the listener is built without a reader or deliverer.
	ErrMissingDependency = errors.New("listener dependency cannot be nil")
)

type (
	// Event is an article update notification.
	Event struct {
		ID   int64
		Type string
	}

	// MessageReader is the part of *kafka.Reader the listener uses.
	MessageReader interface {
		FetchMessage(ctx context.Context) (kafka.Message, error)
		CommitMessages(ctx context.Context, msgs ...kafka.Message) error
		Close() error
	}

	// Deliverer sends an article's protocols to the partner.
	Deliverer interface {
		DownloadParseDeliver(ctx context.Context, msid int64) (*articlesync.Delivery, error)
	}

	// Listener processes one message at a time: fetch, handle, commit.
	Listener struct {
		reader        MessageReader
		deliverer     Deliverer
		logger        *slog.Logger
		commitTimeout time.Duration
	}
)

// New creates a Listener. A nil logger falls back to slog.Default().
func New(reader MessageReader, deliverer Deliverer, commitTimeout time.Duration, logger *slog.Logger) (*Listener, error) {
	if reader == nil || deliverer == nil {
		return nil, ErrMissingDependency
	}

	if logger == nil {
		logger = slog.Default()
	}

	if commitTimeout <= 0 {
		commitTimeout = defaultCommitTimeout
	}

	return &Listener{
		reader:        reader,
		deliverer:     deliverer,
		logger:        logger,
		commitTimeout: commitTimeout,
	}, nil
}

// Run consumes messages until ctx is canceled, which is a clean stop and returns nil.
//
// Every fetched message is committed after it is handled, whatever the outcome: a failing article
// is logged and never redelivered.
func (l *Listener) Run(ctx context.Context) error {
	l.logger.Info("Listening for article updates")

	for {
		msg, err := l.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info("Listener stopped")

				return nil
			}

			return fmt.Errorf("fetch message: %w", err)
		}

		l.Handle(ctx, msg.Value)

		commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.commitTimeout)
		err = l.reader.CommitMessages(commitCtx, msg)

		cancel()

		if err != nil {
			return fmt.Errorf("commit offset %d of partition %d: %w", msg.Offset, msg.Partition, err)
		}
	}
}

// Handle processes one message value and returns its outcome label. It never fails: parse and
// delivery errors, and panics, are logged and reported as outcomes.
func (l *Listener) Handle(ctx context.Context, value []byte) (outcome string) {
	defer func() {
		if recovered := recover(); recovered != nil {
			l.logger.Error("Panic while handling event",
				slog.Any("panic", recovered),
				slog.String("event", string(value)),
			)

			outcome = metrics.EventFailed
		}

		metrics.RecordEvent(outcome)
	}()

	l.logger.Info("Handling event", slog.String("event", string(value)))

	event, err := ParseEvent(value)
	if err != nil {
		l.logger.Error("Skipping unparseable event",
			slog.String("event", truncate(value, maxLoggedValue)),
			slog.String("error", err.Error()),
		)

		return metrics.EventUnparseable
	}

	if event.Type != eventTypeArticle {
		return metrics.EventIgnored
	}

	delivery, err := l.deliverer.DownloadParseDeliver(ctx, event.ID)
	if err != nil {
		l.logger.Error("Failed to deliver article protocols",
			slog.Int64("msid", event.ID),
			slog.String("error", err.Error()),
		)

		return metrics.EventFailed
	}

	if delivery == nil {
		return metrics.EventSkipped
	}

	return metrics.EventDelivered
}

// ParseEvent decodes {"id": …, "type": …}. The id may be an integer or a string holding one.
func ParseEvent(value []byte) (*Event, error) {
	decoder := json.NewDecoder(bytes.NewReader(value))
	decoder.UseNumber()

	var raw map[string]any
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnparseableEvent, err)
	}

	if raw == nil {
		return nil, fmt.Errorf("%w: not an object", ErrUnparseableEvent)
	}

	rawID, ok := raw["id"]
	if !ok {
		return nil, fmt.Errorf("%w: missing id", ErrUnparseableEvent)
	}

	rawType, ok := raw["type"]
	if !ok {
		return nil, fmt.Errorf("%w: missing type", ErrUnparseableEvent)
	}

	eventType, ok := rawType.(string)
	if !ok {
		return nil, fmt.Errorf("%w: type must be a string", ErrUnparseableEvent)
	}

	id, err := parseID(rawID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnparseableEvent, err)
	}

	return &Event{ID: id, Type: eventType}, nil
}

func parseID(value any) (int64, error) {
	var text string

	switch v := value.(type) {
	case json.Number:
		text = v.String()
	case string:
		text = strings.TrimSpace(v)
	default:
		return 0, fmt.Errorf("id must be an integer or a numeric string, got %T", value)
	}

	id, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", text)
	}

	return id, nil
}

func truncate(value []byte, limit int) string {
	if len(value) <= limit {
		return string(value)
	}

	return string(value[:limit])
}
