package pulsar

import (
	"context"
	"errors"
	"fmt"
	"time"

	pulsarclient "github.com/apache/pulsar-client-go/pulsar"
	"github.com/makibytes/dlqm/broker/backends"
	"github.com/makibytes/dlqm/log"
)

// Subscription is the subscription whose acknowledgements mark removed messages
const Subscription = "dlqm"

// lookupTopic is resolved when a session opens so an unreachable cluster fails early
const lookupTopic = "DLQ"

// SessionArguments holds everything needed to open a Pulsar session
type SessionArguments struct {
	Conn           ConnArguments
	ReceiveTimeout time.Duration
	BrowseLimit    int
	ManagementPort int
}

// Session treats a topic as the dead letter queue. The messages in the queue are
// those the dlqm subscription has not acknowledged; browsing receives them without
// acknowledging, and closing the consumer hands them back for redelivery.
type Session struct {
	endpoint   string
	normalized string // service URL without credentials
	token      string
	args       SessionArguments
	client     pulsarclient.Client
}

var (
	_ backends.Session       = (*Session)(nil)
	_ backends.StatsProvider = (*Session)(nil)
)

// Open creates the client and resolves the dead letter topic
func Open(ctx context.Context, args SessionArguments) (*Session, error) {
	normalized, token, err := normalizeServer(args.Conn)
	if err != nil {
		return nil, err
	}
	client, err := Connect(ctx, args.Conn)
	if err != nil {
		return nil, err
	}
	if _, err := client.TopicPartitions(queueTopic(lookupTopic)); err != nil && !isTopicNotFound(err) {
		client.Close()
		return nil, fmt.Errorf("connecting to Pulsar at %s: %w", backends.Redact(args.Conn.Server), err)
	}
	return &Session{
		endpoint:   args.Conn.Server,
		normalized: normalized,
		token:      token,
		args:       args,
		client:     client,
	}, nil
}

// Endpoint implements backends.Session
func (s *Session) Endpoint() string {
	return s.endpoint
}

// Browse implements backends.Session
func (s *Session) Browse(ctx context.Context, queue string, visit func(*backends.Message) error) error {
	consumer, err := s.subscribe(queue)
	if isTopicNotFound(err) {
		log.Verbose("topic %s does not exist on %s", queue, backends.Redact(s.endpoint))
		return nil
	}
	if err != nil {
		return err
	}
	defer consumer.Close()

	for n := 0; ; n++ {
		if s.args.BrowseLimit > 0 && n >= s.args.BrowseLimit {
			log.Warn("browse of %s stopped at %d messages; raise the browse limit to see more", queue, n)
			return nil
		}
		msg, err := s.receive(ctx, consumer, n == 0)
		if err != nil || msg == nil {
			return err
		}
		if err := visit(convertPulsarToBackendMessage(msg)); err != nil {
			return err
		}
	}
}

// Consume implements backends.Session. Messages are acknowledged one by one.
func (s *Session) Consume(ctx context.Context, queue string) (int, error) {
	consumer, err := s.subscribe(queue)
	if isTopicNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer consumer.Close()

	removed := 0
	for {
		msg, err := s.receive(ctx, consumer, removed == 0)
		if err != nil || msg == nil {
			return removed, err
		}
		if err := consumer.Ack(msg); err != nil {
			return removed, fmt.Errorf("acknowledging %v: %w", msg.ID(), err)
		}
		removed++
	}
}

// QueueStats implements backends.StatsProvider through the admin REST API
func (s *Session) QueueStats(ctx context.Context, queue string) (*backends.QueueStats, error) {
	return GetQueueStats(ctx, AdminArgs{
		Server: s.normalized,
		Token:  s.token,
		Port:   s.args.ManagementPort,
		TLS:    s.args.Conn.TLS,
	}, queue)
}

// Close implements backends.Session
func (s *Session) Close() error {
	s.client.Close()
	return nil
}

func (s *Session) subscribe(queue string) (pulsarclient.Consumer, error) {
	topic := queueTopic(queue)
	log.Verbose("subscribing %s to %s...", Subscription, topic)
	consumer, err := s.client.Subscribe(pulsarclient.ConsumerOptions{
		Topic:                       topic,
		SubscriptionName:            Subscription,
		Type:                        pulsarclient.Exclusive,
		SubscriptionInitialPosition: pulsarclient.SubscriptionPositionEarliest,
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	return consumer, nil
}

// receive waits for the next message. A nil message without an error means the
// subscription stayed idle for the receive timeout. The first receive also waits
// for the consumer to connect.
func (s *Session) receive(ctx context.Context, consumer pulsarclient.Consumer, first bool) (pulsarclient.Message, error) {
	wait := s.args.ReceiveTimeout
	if first {
		wait = max(wait, 5*time.Second)
	}
	rctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	msg, err := consumer.Receive(rctx)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func isTopicNotFound(err error) bool {
	var perr *pulsarclient.Error
	return errors.As(err, &perr) && perr.Result() == pulsarclient.TopicNotFound
}
