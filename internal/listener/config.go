// Package listener consumes article update events from Kafka and triggers protocol delivery.
package listener

import (
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/bioprotocol-io/bioprotocol/internal/config"
)

const (
	defaultTopic         = "article-updates"
	defaultGroupID       = "bioprotocol"
	defaultMaxWait       = 10 * time.Second
	defaultCommitTimeout = 10 * time.Second
	defaultMaxBytes      = 1 << 20 // 1 MB
)

var (
	// ErrNoBrokers is returned when no Kafka broker is configured.
	ErrNoBrokers = errors.New("at least one kafka broker is required")

	// ErrEmptyTopic is returned when the topic is blank.
	ErrEmptyTopic = errors.New("kafka topic cannot be empty")

	// ErrEmptyGroupID is returned when the consumer group is blank.
	ErrEmptyGroupID = errors.New("kafka consumer group cannot be empty")

	// ErrInvalidTimeout is returned for non-positive wait or commit timeouts.
	ErrInvalidTimeout = errors.New("listener timeouts must be positive")
)

// Config holds the Kafka consumer settings.
type Config struct {
	Brokers       []string
	Topic         string
	GroupID       string
	MaxWait       time.Duration
	CommitTimeout time.Duration
	MaxBytes      int
}

// LoadConfig reads the listener configuration from BIOPROTOCOL_KAFKA_* variables, falling back to
// the queue section of the config file.
func LoadConfig() *Config {
	file := config.LoadFileFromEnv()

	brokers := config.ParseCommaSeparatedList(config.GetEnvStr("BIOPROTOCOL_KAFKA_BROKERS", ""))
	if len(brokers) == 0 {
		brokers = file.Queue.Brokers
	}

	topic := file.Queue.Topic
	if topic == "" {
		topic = defaultTopic
	}

	groupID := file.Queue.GroupID
	if groupID == "" {
		groupID = defaultGroupID
	}

	return &Config{
		Brokers:       brokers,
		Topic:         config.GetEnvStr("BIOPROTOCOL_KAFKA_TOPIC", topic),
		GroupID:       config.GetEnvStr("BIOPROTOCOL_KAFKA_GROUP_ID", groupID),
		MaxWait:       config.GetEnvDuration("BIOPROTOCOL_KAFKA_MAX_WAIT", defaultMaxWait),
		CommitTimeout: config.GetEnvDuration("BIOPROTOCOL_KAFKA_COMMIT_TIMEOUT", defaultCommitTimeout),
		MaxBytes:      config.GetEnvInt("BIOPROTOCOL_KAFKA_MAX_BYTES", defaultMaxBytes),
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if len(c.Brokers) == 0 {
		return ErrNoBrokers
	}

	if c.Topic == "" {
		return ErrEmptyTopic
	}

	if c.GroupID == "" {
		return ErrEmptyGroupID
	}

	if c.MaxWait <= 0 || c.CommitTimeout <= 0 {
		return ErrInvalidTimeout
	}

	return nil
}

// NewReader creates a consumer group reader. Offsets are committed explicitly by the Listener.
func NewReader(cfg *Config) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		MaxWait:     cfg.MaxWait,
		MaxBytes:    cfg.MaxBytes,
		StartOffset: kafka.FirstOffset,
	})
}
