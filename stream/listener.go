package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/ragrelay/message"
	"github.com/poiesic/ragrelay/storage"
)

// Default channel and consumer names.
const (
	ChannelEmbeddings = "embeddings_stream"
	ChannelRAG        = "rag_stream"
	ChannelLLM        = "llm_stream"

	DefaultGroup    = "ragrelay_group"
	DefaultConsumer = "ragrelay_consumer"
)

// Loop tuning defaults.
const (
	DefaultReadCount    = 100
	DefaultBlock        = 5 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
	DefaultMinBackoff   = time.Second
	DefaultMaxBackoff   = 30 * time.Second
)

// DefaultChannels returns the channels consumed when none are configured.
func DefaultChannels() []string {
	return []string{ChannelEmbeddings, ChannelRAG, ChannelLLM}
}

// Handler turns one request message into its responses. router.Router satisfies it.
type Handler interface {
	Handle(ctx context.Context, msg message.Message) []message.Message
}

// Listener consumes request messages from a MessageLog.
type Listener struct {
	log     storage.MessageLog
	handler Handler

	channels     []string
	group        string
	consumer     string
	readCount    int
	block        time.Duration
	pollInterval time.Duration
	minBackoff   time.Duration
	maxBackoff   time.Duration
	logger       *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// Option configures a Listener.
type Option func(*Listener) error

// WithChannels sets the channels to consume.
func WithChannels(channels ...string) Option {
	return func(l *Listener) error {
		if len(channels) == 0 {
			return ErrNoChannels
		}
		l.channels = append([]string(nil), channels...)
		return nil
	}
}

// WithGroup sets the consumer group name.
func WithGroup(group string) Option {
	return func(l *Listener) error {
		if group != "" {
			l.group = group
		}
		return nil
	}
}

// WithConsumer sets this listener's consumer name within the group.
func WithConsumer(consumer string) Option {
	return func(l *Listener) error {
		if consumer != "" {
			l.consumer = consumer
		}
		return nil
	}
}

// WithRead sets how many entries one read returns and how long it waits.
func WithRead(count int, block time.Duration) Option {
	return func(l *Listener) error {
		if count > 0 {
			l.readCount = count
		}
		if block >= 0 {
			l.block = block
		}
		return nil
	}
}

// WithPollInterval sets the pause after a read that returned nothing.
func WithPollInterval(interval time.Duration) Option {
	return func(l *Listener) error {
		if interval >= 0 {
			l.pollInterval = interval
		}
		return nil
	}
}

// WithBackoff sets the first and the largest delay after a failed read.
func WithBackoff(first, limit time.Duration) Option {
	return func(l *Listener) error {
		if first <= 0 || limit < first {
			return fmt.Errorf("invalid backoff range %s..%s", first, limit)
		}
		l.minBackoff = first
		l.maxBackoff = limit
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Listener) error {
		if logger == nil {
			logger = slog.Default()
		}
		l.logger = logger
		return nil
	}
}

// NewListener creates a stopped listener.
func NewListener(log storage.MessageLog, handler Handler, opts ...Option) (*Listener, error) {
	if log == nil {
		return nil, ErrMessageLogRequired
	}
	if handler == nil {
		return nil, ErrHandlerRequired
	}

	l := &Listener{
		log:          log,
		handler:      handler,
		channels:     DefaultChannels(),
		group:        DefaultGroup,
		consumer:     DefaultConsumer,
		readCount:    DefaultReadCount,
		block:        DefaultBlock,
		pollInterval: DefaultPollInterval,
		minBackoff:   DefaultMinBackoff,
		maxBackoff:   DefaultMaxBackoff,
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	l.logger = l.logger.With("component", "stream-listener", "group", l.group, "consumer", l.consumer)

	return l, nil
}

// Channels returns the consumed channels.
func (l *Listener) Channels() []string {
	return append([]string(nil), l.channels...)
}

// Group returns the consumer group name.
func (l *Listener) Group() string { return l.group }

// Consumer returns the consumer name.
func (l *Listener) Consumer() string { return l.consumer }

// Running reports whether the listener has been started and not stopped.
func (l *Listener) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Start creates the consumer groups and launches one loop per channel.
// The loops run until Stop is called or ctx is cancelled.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return ErrAlreadyRunning
	}

	for _, ch := range l.channels {
		if err := l.log.CreateGroup(ctx, ch, l.group); err != nil {
			return fmt.Errorf("failed to create group %s on %s: %w", l.group, ch, err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.running = true

	for _, ch := range l.channels {
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.consume(runCtx, ch)
		}()
	}

	l.logger.Info("listening", "channels", l.channels)
	return nil
}

// Stop cancels the loops, waits for them to finish and acknowledges every
// entry still pending for this consumer, so none is redelivered on restart.
func (l *Listener) Stop(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.running {
		return nil
	}
	l.cancel()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for listener loops: %w", ctx.Err())
	}
	l.running = false

	var firstErr error
	for _, ch := range l.channels {
		pending, err := l.log.Pending(ctx, ch, l.group, l.consumer)
		if err != nil {
			l.logger.Error("failed to list pending entries", "channel", ch, "err", err)
			firstErr = firstNonNil(firstErr, err)
			continue
		}
		if len(pending) == 0 {
			continue
		}
		n, err := l.log.Ack(ctx, ch, l.group, pending...)
		if err != nil {
			l.logger.Error("failed to acknowledge pending entries", "channel", ch, "err", err)
			firstErr = firstNonNil(firstErr, err)
			continue
		}
		l.logger.Info("acknowledged pending entries on stop", "channel", ch, "count", n)
	}

	l.logger.Info("stopped listening")
	return firstErr
}

func (l *Listener) consume(ctx context.Context, channel string) {
	logger := l.logger.With("channel", channel)
	var backoff time.Duration

	for ctx.Err() == nil {
		entries, err := l.log.Read(ctx, channel, l.group, l.consumer, l.readCount, l.block)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			backoff = nextBackoff(backoff, l.minBackoff, l.maxBackoff)
			logger.Error("read failed, backing off", "delay", backoff, "err", err)
			sleep(ctx, backoff)
			continue
		}
		backoff = 0

		if len(entries) == 0 {
			sleep(ctx, l.pollInterval)
			continue
		}

		for _, entry := range entries {
			if ctx.Err() != nil {
				return
			}
			l.process(ctx, logger, channel, entry)
		}
	}
}

// process handles one entry. Handling runs on a context that Stop does not
// cancel, so a request already taken off the log is answered.
func (l *Listener) process(ctx context.Context, logger *slog.Logger, channel string, entry storage.LogEntry) {
	handleCtx := context.WithoutCancel(ctx)

	msg, err := message.FromFields(entry.Fields)
	var responses []message.Message
	switch {
	case err != nil:
		logger.Warn("malformed entry", "id", entry.ID, "err", err)
		responses = []message.Message{message.NewError(msg.SessionID, err)}
	case msg.Type.IsResponse():
		logger.Debug("skipping response message", "id", entry.ID, "type", msg.Type)
	default:
		logger.Debug("handling message", "id", entry.ID, "type", msg.Type, "session_id", msg.SessionID)
		responses = l.handler.Handle(handleCtx, msg)
	}

	for _, resp := range responses {
		if _, err := l.log.Publish(handleCtx, channel, message.ToFields(resp)); err != nil {
			logger.Error("failed to publish response, leaving entry pending", "id", entry.ID, "type", resp.Type, "err", err)
			return
		}
	}

	if _, err := l.log.Ack(handleCtx, channel, l.group, entry.ID); err != nil {
		logger.Error("failed to acknowledge entry", "id", entry.ID, "err", err)
	}
}

// nextBackoff doubles the previous delay within [first, limit].
func nextBackoff(prev, first, limit time.Duration) time.Duration {
	if prev <= 0 {
		return first
	}
	next := prev * 2
	if next > limit || next <= 0 {
		return limit
	}
	return next
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func firstNonNil(a, b error) error {
	if a != nil {
		return a
	}
	return b
}
