package listener

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioprotocol-io/bioprotocol/internal/articlesync"
	"github.com/bioprotocol-io/bioprotocol/internal/metrics"
)

var errDelivery = errors.New("partner unavailable")

type fakeDeliverer struct {
	mu        sync.Mutex
	delivered []int64
	skip      map[int64]bool
	fail      map[int64]bool
	panicOn   map[int64]bool
	onDeliver func(msid int64)
}

func (f *fakeDeliverer) DownloadParseDeliver(_ context.Context, msid int64) (*articlesync.Delivery, error) {
	f.mu.Lock()
	f.delivered = append(f.delivered, msid)
	f.mu.Unlock()

	if f.onDeliver != nil {
		defer f.onDeliver(msid)
	}

	switch {
	case f.panicOn[msid]:
		panic("unexpected article shape")
	case f.fail[msid]:
		return nil, errDelivery
	case f.skip[msid]:
		return nil, nil
	default:
		return &articlesync.Delivery{Msid: msid}, nil
	}
}

func (f *fakeDeliverer) calls() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]int64(nil), f.delivered...)
}

// fakeReader serves queued messages, then blocks until the context is done.
type fakeReader struct {
	messages  []kafka.Message
	committed []int64
	commitErr error
	fetchErr  error
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if f.fetchErr != nil {
		return kafka.Message{}, f.fetchErr
	}

	if len(f.messages) == 0 {
		<-ctx.Done()

		return kafka.Message{}, ctx.Err()
	}

	msg := f.messages[0]
	f.messages = f.messages[1:]

	return msg, nil
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.commitErr != nil {
		return f.commitErr
	}

	for _, msg := range msgs {
		f.committed = append(f.committed, msg.Offset)
	}

	return nil
}

func (f *fakeReader) Close() error {
	return nil
}

func message(offset int64, value string) kafka.Message {
	return kafka.Message{Offset: offset, Value: []byte(value)}
}

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    *Event
		wantErr bool
	}{
		{name: "integer id", value: `{"id": 3, "type": "article"}`, want: &Event{ID: 3, Type: "article"}},
		{name: "string id", value: `{"id": "12345", "type": "article"}`, want: &Event{ID: 12345, Type: "article"}},
		{name: "padded string id", value: `{"id": " 00003 ", "type": "article"}`, want: &Event{ID: 3, Type: "article"}},
		{name: "other type", value: `{"id": "1", "type": "metric"}`, want: &Event{ID: 1, Type: "metric"}},
		{name: "not json", value: `article 3`, wantErr: true},
		{name: "null", value: `null`, wantErr: true},
		{name: "list", value: `[3]`, wantErr: true},
		{name: "missing id", value: `{"type": "article"}`, wantErr: true},
		{name: "missing type", value: `{"id": 3}`, wantErr: true},
		{name: "non numeric id", value: `{"id": "abc", "type": "article"}`, wantErr: true},
		{name: "fractional id", value: `{"id": 3.5, "type": "article"}`, wantErr: true},
		{name: "boolean id", value: `{"id": true, "type": "article"}`, wantErr: true},
		{name: "numeric type", value: `{"id": 3, "type": 1}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := ParseEvent([]byte(tt.value))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnparseableEvent)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, event)
		})
	}
}

func TestHandle(t *testing.T) {
	deliverer := &fakeDeliverer{
		skip:    map[int64]bool{2: true},
		fail:    map[int64]bool{3: true},
		panicOn: map[int64]bool{4: true},
	}

	listener, err := New(&fakeReader{}, deliverer, time.Second, nil)
	require.NoError(t, err)

	tests := []struct {
		value string
		want  string
	}{
		{value: `{"id": 1, "type": "article"}`, want: metrics.EventDelivered},
		{value: `{"id": "2", "type": "article"}`, want: metrics.EventSkipped},
		{value: `{"id": 3, "type": "article"}`, want: metrics.EventFailed},
		{value: `{"id": 4, "type": "article"}`, want: metrics.EventFailed},
		{value: `{"id": 5, "type": "podcast-episode"}`, want: metrics.EventIgnored},
		{value: `garbage`, want: metrics.EventUnparseable},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			assert.Equal(t, tt.want, listener.Handle(context.Background(), []byte(tt.value)))
		})
	}

	assert.Equal(t, []int64{1, 2, 3, 4}, deliverer.calls())
}

func TestRun_CommitsEveryMessage(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{
		message(10, `{"id": 1, "type": "article"}`),
		message(11, `not json`),
		message(12, `{"id": 2, "type": "profile"}`),
		message(13, `{"id": 3, "type": "article"}`),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deliverer := &fakeDeliverer{
		fail: map[int64]bool{3: true},
		onDeliver: func(msid int64) {
			if msid == 3 {
				cancel()
			}
		},
	}

	listener, err := New(reader, deliverer, time.Second, nil)
	require.NoError(t, err)

	require.NoError(t, listener.Run(ctx))

	assert.Equal(t, []int64{1, 3}, deliverer.calls())
	assert.Equal(t, []int64{10, 11, 12, 13}, reader.committed)
}

func TestRun_FetchFailure(t *testing.T) {
	reader := &fakeReader{fetchErr: kafka.BrokerNotAvailable}

	listener, err := New(reader, &fakeDeliverer{}, time.Second, nil)
	require.NoError(t, err)

	err = listener.Run(context.Background())
	assert.ErrorIs(t, err, kafka.BrokerNotAvailable)
}

func TestRun_CommitFailure(t *testing.T) {
	commitErr := errors.New("rebalance in progress")
	reader := &fakeReader{
		messages:  []kafka.Message{message(1, `{"id": 1, "type": "article"}`)},
		commitErr: commitErr,
	}

	listener, err := New(reader, &fakeDeliverer{}, time.Second, nil)
	require.NoError(t, err)

	err = listener.Run(context.Background())
	assert.ErrorIs(t, err, commitErr)
}

func TestNew_MissingDependency(t *testing.T) {
	_, err := New(nil, &fakeDeliverer{}, time.Second, nil)
	assert.ErrorIs(t, err, ErrMissingDependency)
}

func TestConfig(t *testing.T) {
	t.Setenv("BIOPROTOCOL_CONFIG_PATH", t.TempDir()+"/missing.yaml")
	t.Setenv("BIOPROTOCOL_KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")

	cfg := LoadConfig()
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Brokers)
	assert.Equal(t, defaultTopic, cfg.Topic)
	assert.Equal(t, defaultGroupID, cfg.GroupID)
	require.NoError(t, cfg.Validate())

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{name: "no brokers", mutate: func(c *Config) { c.Brokers = nil }, wantErr: ErrNoBrokers},
		{name: "no topic", mutate: func(c *Config) { c.Topic = "" }, wantErr: ErrEmptyTopic},
		{name: "no group", mutate: func(c *Config) { c.GroupID = "" }, wantErr: ErrEmptyGroupID},
		{name: "zero wait", mutate: func(c *Config) { c.MaxWait = 0 }, wantErr: ErrInvalidTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			invalid := *cfg
			tt.mutate(&invalid)
			assert.ErrorIs(t, invalid.Validate(), tt.wantErr)
		})
	}
}
