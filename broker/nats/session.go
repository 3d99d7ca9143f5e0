package nats

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/makibytes/dlqm/broker/backends"
	"github.com/makibytes/dlqm/log"
	natsclient "github.com/nats-io/nats.go"
)

// Session reads the dead letter queue from a JetStream stream. Messages are
// addressed by stream sequence, so browsing never changes consumer state.
type Session struct {
	endpoint string
	nc       *natsclient.Conn
	js       natsclient.JetStreamContext
}

var (
	_ backends.Session       = (*Session)(nil)
	_ backends.StatsProvider = (*Session)(nil)
)

// Open connects to the NATS server named by args.Server
func Open(ctx context.Context, args ConnArguments) (*Session, error) {
	nc, js, err := ConnectWithJetStream(ctx, args)
	if err != nil {
		return nil, err
	}
	return &Session{endpoint: args.Server, nc: nc, js: js}, nil
}

// Endpoint implements backends.Session.
func (s *Session) Endpoint() string {
	return s.endpoint
}

// Browse implements backends.Session.
func (s *Session) Browse(ctx context.Context, queue string, visit func(*backends.Message) error) error {
	return s.each(ctx, queue, func(m *natsclient.RawStreamMsg) error {
		return visit(natsToBackendMessage(m))
	})
}

// Consume implements backends.Session.
func (s *Session) Consume(ctx context.Context, queue string) (int, error) {
	name := streamName(queue)
	removed := 0
	err := s.each(ctx, queue, func(m *natsclient.RawStreamMsg) error {
		if err := s.js.DeleteMsg(name, m.Sequence, natsclient.Context(ctx)); err != nil {
			if errors.Is(err, natsclient.ErrMsgNotFound) {
				return nil
			}
			return fmt.Errorf("deleting sequence %d from %s: %w", m.Sequence, name, err)
		}
		removed++
		return nil
	})
	return removed, err
}

// each visits the stored messages between the first and last sequence seen when the
// call starts. Sequences deleted in between are skipped.
func (s *Session) each(ctx context.Context, queue string, fn func(*natsclient.RawStreamMsg) error) error {
	name := streamName(queue)
	info, err := s.js.StreamInfo(name, natsclient.Context(ctx))
	if errors.Is(err, natsclient.ErrStreamNotFound) {
		log.Verbose("stream %s does not exist on %s", name, s.endpoint)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading stream %s: %w", name, err)
	}
	if info.State.Msgs == 0 {
		return nil
	}

	for seq := info.State.FirstSeq; seq <= info.State.LastSeq; seq++ {
		m, err := s.js.GetMsg(name, seq, natsclient.Context(ctx))
		if errors.Is(err, natsclient.ErrMsgNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("reading sequence %d from %s: %w", seq, name, err)
		}
		if err := fn(m); err != nil {
			return err
		}
	}
	return nil
}

// QueueStats implements backends.StatsProvider.
func (s *Session) QueueStats(ctx context.Context, queue string) (*backends.QueueStats, error) {
	name := streamName(queue)
	info, err := s.js.StreamInfo(name, natsclient.Context(ctx))
	if errors.Is(err, natsclient.ErrStreamNotFound) {
		return &backends.QueueStats{Name: queue}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading stream %s: %w", name, err)
	}
	return &backends.QueueStats{
		Name:          queue,
		MessageCount:  int64(info.State.Msgs),
		ConsumerCount: info.State.Consumers,
		EnqueueCount:  int64(info.State.LastSeq),
	}, nil
}

// Close implements backends.Session.
func (s *Session) Close() error {
	if s.nc != nil {
		s.nc.Close()
	}
	return nil
}

// streamName returns the JetStream stream name for a queue. Stream names may not
// contain dots, so the queue name is upper-cased with separators mapped to '_'.
func streamName(queue string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(queue))
}

// natsToBackendMessage converts a stored stream message to a backends.Message.
func natsToBackendMessage(msg *natsclient.RawStreamMsg) *backends.Message {
	props := make(map[string]any)
	for k, vals := range msg.Header {
		if len(vals) > 0 {
			props[k] = vals[0]
		}
	}

	result := &backends.Message{
		Data:       msg.Data,
		Properties: props,
		Timestamp:  msg.Time,
		InternalMetadata: map[string]any{
			"subject":  msg.Subject,
			"sequence": msg.Sequence,
		},
	}
	if id := msg.Header.Get(natsclient.MsgIdHdr); id != "" {
		result.MessageID = id
	}
	if ct := msg.Header.Get("Content-Type"); ct != "" {
		result.ContentType = ct
	}
	result.OriginalAddress = originalSubject(msg)
	return result
}

// originalSubject reports where a message was published before being dead-lettered.
// JetStream republish and advisory driven DLQs record it in a header.
func originalSubject(msg *natsclient.RawStreamMsg) string {
	for _, h := range []string{"Nats-Subject", "Original-Subject"} {
		if v := msg.Header.Get(h); v != "" {
			return v
		}
	}
	return ""
}
