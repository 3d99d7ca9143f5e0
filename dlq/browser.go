package dlq

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"

	"github.com/makibytes/dlqm/broker/backends"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// QueueName is the logical name of the dead letter queue on every broker
const QueueName = "DLQ"

// Browser coordinates one session per broker endpoint against the dead letter queue.
// A Browser is not safe for concurrent use.
type Browser struct {
	queue     string
	sessions  []backends.Session
	converter Converter
	logger    zerolog.Logger
	parallel  bool
	closed    bool
}

// Option configures a Browser
type Option func(*Browser)

// WithLogger sets the logger for progress, warnings and full-record output
func WithLogger(logger zerolog.Logger) Option {
	return func(b *Browser) { b.logger = logger }
}

// WithConverter replaces the default JSONConverter
func WithConverter(c Converter) Option {
	return func(b *Browser) { b.converter = c }
}

// WithParallelBrowse browses all brokers concurrently. Results are still returned in
// endpoint order.
func WithParallelBrowse() Option {
	return func(b *Browser) { b.parallel = true }
}

// EndpointStats holds the queue statistics reported by one broker
type EndpointStats struct {
	Endpoint  string
	Supported bool
	Stats     *backends.QueueStats
}

type delivery struct {
	endpoint string
	msg      *backends.Message
}

// Open opens one session per endpoint, in order. If any endpoint fails, the sessions
// opened so far are closed, later endpoints are never contacted, and the returned
// error names the failing endpoint.
func Open(ctx context.Context, endpoints []string, factory backends.SessionFactory, opts ...Option) (*Browser, error) {
	b := &Browser{
		queue:     QueueName,
		converter: JSONConverter{},
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}

	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	b.sessions = make([]backends.Session, 0, len(endpoints))
	for i, endpoint := range endpoints {
		b.logger.Info().Str("endpoint", Redact(endpoint)).Msg("setting up session")
		session, err := factory(ctx, endpoint)
		if err == nil && session == nil {
			err = errors.New("session factory returned no session")
		}
		if err != nil {
			openErr := &Error{Op: OpConnect, Endpoint: Redact(endpoint), Queue: b.queue, Brokers: i, Err: err}
			b.logger.Error().Err(openErr).Msg("failed to start dlq browser")
			if closeErr := b.Close(); closeErr != nil {
				return nil, errors.Join(openErr, closeErr)
			}
			return nil, openErr
		}
		b.sessions = append(b.sessions, session)
	}

	return b, nil
}

// Brokers returns the number of open sessions
func (b *Browser) Brokers() int {
	return len(b.sessions)
}

// BrowseMessages returns every message of every broker without removing any
func (b *Browser) BrowseMessages(ctx context.Context) ([]*backends.Message, error) {
	deliveries, err := b.collect(ctx)
	if err != nil {
		return nil, err
	}
	messages := make([]*backends.Message, len(deliveries))
	for i, d := range deliveries {
		messages[i] = d.msg
	}
	return messages, nil
}

// BrowseText returns the body of every message without removing any
func (b *Browser) BrowseText(ctx context.Context) ([]string, error) {
	deliveries, err := b.collect(ctx)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(deliveries))
	for i, d := range deliveries {
		texts[i] = b.converter.Text(d.msg)
	}
	return texts, nil
}

// BrowseStructured returns every message whose body is a JSON object. Messages with
// any other body are left out and logged as a warning; browsing is observational, so
// one malformed message does not fail the run.
func (b *Browser) BrowseStructured(ctx context.Context) ([]StructuredMessage, error) {
	deliveries, err := b.collect(ctx)
	if err != nil {
		return nil, err
	}

	structured := make([]StructuredMessage, 0, len(deliveries))
	for _, d := range deliveries {
		s, err := b.converter.Structured(d.msg)
		if err != nil {
			convErr := &Error{Op: OpConvert, Endpoint: d.endpoint, Queue: b.queue, Err: err}
			b.logger.Warn().Err(convErr).Msg("skipping message")
			continue
		}
		structured = append(structured, s)
	}
	return structured, nil
}

// BrowseAndLogFull logs the full record of every message as it is enumerated, without
// holding the whole queue in memory. It returns the number of messages logged.
func (b *Browser) BrowseAndLogFull(ctx context.Context) (int, error) {
	return b.browse(ctx, func(endpoint string, msg *backends.Message) error {
		record := b.converter.FullRecord(msg)
		data, err := json.Marshal(record)
		if err != nil {
			b.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("record is not JSON serializable")
			b.logger.Info().Str("endpoint", endpoint).Interface("record", record).Msg("dlq message")
			return nil
		}
		b.logger.Info().Str("endpoint", endpoint).Msg(string(data))
		return nil
	})
}

// Count returns the number of messages BrowseStructured would return
func (b *Browser) Count(ctx context.Context) (int, error) {
	messages, err := b.BrowseStructured(ctx)
	if err != nil {
		return 0, err
	}
	return len(messages), nil
}

// RemoveAll consumes the queue of every broker in order and returns the total number
// of messages removed. The first failure stops the run; nothing is rolled back.
func (b *Browser) RemoveAll(ctx context.Context) (int, error) {
	if b.closed {
		return 0, ErrClosed
	}

	removed := 0
	for i, s := range b.sessions {
		endpoint := Redact(s.Endpoint())
		n, err := s.Consume(ctx, b.queue)
		removed += n
		if err != nil {
			consumeErr := &Error{Op: OpConsume, Endpoint: endpoint, Queue: b.queue, Brokers: i, Messages: removed, Err: err}
			b.logger.Error().Err(consumeErr).Msg("fatal error removing messages from dlq")
			return removed, consumeErr
		}
		b.logger.Info().Str("endpoint", endpoint).Int("removed", n).Msg("removed messages from dlq")
	}

	b.logger.Info().Int("total", removed).Int("brokers", len(b.sessions)).
		Msgf("removed %d messages across %d brokers", removed, len(b.sessions))
	return removed, nil
}

// Stats asks every broker that can report queue statistics for them
func (b *Browser) Stats(ctx context.Context) ([]EndpointStats, error) {
	if b.closed {
		return nil, ErrClosed
	}

	result := make([]EndpointStats, 0, len(b.sessions))
	for i, s := range b.sessions {
		endpoint := Redact(s.Endpoint())
		provider, ok := s.(backends.StatsProvider)
		if !ok {
			result = append(result, EndpointStats{Endpoint: endpoint})
			continue
		}
		stats, err := provider.QueueStats(ctx, b.queue)
		if err != nil {
			return nil, &Error{Op: OpStats, Endpoint: endpoint, Queue: b.queue, Brokers: i, Err: err}
		}
		result = append(result, EndpointStats{Endpoint: endpoint, Supported: true, Stats: stats})
	}
	return result, nil
}

// Close closes every session. A session that fails to close does not keep the others
// open; all failures are returned together. Calling Close again is a no-op.
func (b *Browser) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true

	var errs []error
	for _, s := range b.sessions {
		if err := s.Close(); err != nil {
			closeErr := &Error{Op: OpClose, Endpoint: Redact(s.Endpoint()), Queue: b.queue, Err: err}
			b.logger.Warn().Err(closeErr).Msg("failed to close session")
			errs = append(errs, closeErr)
		}
	}
	b.sessions = nil
	return errors.Join(errs...)
}

// browse streams every message of every broker through visit, one broker at a time
func (b *Browser) browse(ctx context.Context, visit func(endpoint string, msg *backends.Message) error) (int, error) {
	if b.closed {
		return 0, ErrClosed
	}

	total := 0
	for i, s := range b.sessions {
		endpoint := Redact(s.Endpoint())
		err := s.Browse(ctx, b.queue, func(msg *backends.Message) error {
			if err := visit(endpoint, msg); err != nil {
				return err
			}
			total++
			return nil
		})
		if err != nil {
			browseErr := &Error{Op: OpBrowse, Endpoint: endpoint, Queue: b.queue, Brokers: i, Messages: total, Err: err}
			b.logger.Error().Err(browseErr).Msg("fatal error getting messages from dlq")
			return total, browseErr
		}
	}

	b.logSummary(total)
	return total, nil
}

func (b *Browser) collect(ctx context.Context) ([]delivery, error) {
	if b.parallel {
		return b.collectParallel(ctx)
	}

	var deliveries []delivery
	_, err := b.browse(ctx, func(endpoint string, msg *backends.Message) error {
		deliveries = append(deliveries, delivery{endpoint: endpoint, msg: msg})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deliveries, nil
}

func (b *Browser) collectParallel(ctx context.Context) ([]delivery, error) {
	if b.closed {
		return nil, ErrClosed
	}

	perSession := make([][]delivery, len(b.sessions))
	var completed, browsed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	for i, s := range b.sessions {
		g.Go(func() error {
			endpoint := Redact(s.Endpoint())
			var deliveries []delivery
			err := s.Browse(gctx, b.queue, func(msg *backends.Message) error {
				deliveries = append(deliveries, delivery{endpoint: endpoint, msg: msg})
				browsed.Add(1)
				return nil
			})
			if err != nil {
				return &Error{
					Op:       OpBrowse,
					Endpoint: endpoint,
					Queue:    b.queue,
					Brokers:  int(completed.Load()),
					Messages: int(browsed.Load()),
					Err:      err,
				}
			}
			perSession[i] = deliveries
			completed.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		b.logger.Error().Err(err).Msg("fatal error getting messages from dlq")
		return nil, err
	}

	var all []delivery
	for _, deliveries := range perSession {
		all = append(all, deliveries...)
	}
	b.logSummary(len(all))
	return all, nil
}

func (b *Browser) logSummary(total int) {
	b.logger.Info().Int("total", total).Int("brokers", len(b.sessions)).
		Msgf("total number of messages across %d brokers is %d", len(b.sessions), total)
}
