package rabbitmq

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/go-amqp"
	"github.com/makibytes/dlqm/broker/amqpcommon"
	"github.com/makibytes/dlqm/broker/backends"
	"github.com/makibytes/dlqm/log"
)

// SessionArguments holds everything needed to open a RabbitMQ session
type SessionArguments struct {
	Conn           ConnArguments
	ReceiveTimeout time.Duration
	BrowseLimit    int
	ManagementPort int
}

const consumeCredit = 100

// Session is a backends.Session on one RabbitMQ node, spoken to over AMQP 1.0
type Session struct {
	endpoint   string
	args       SessionArguments
	connection *amqp.Conn
	session    *amqp.Session
}

var (
	_ backends.Session       = (*Session)(nil)
	_ backends.StatsProvider = (*Session)(nil)
)

// Open connects to the node named by args.Conn.Server
func Open(ctx context.Context, args SessionArguments) (*Session, error) {
	connection, session, err := Connect(ctx, args.Conn)
	if err != nil {
		return nil, err
	}
	return &Session{
		endpoint:   args.Conn.Server,
		args:       args,
		connection: connection,
		session:    session,
	}, nil
}

// Endpoint implements backends.Session
func (s *Session) Endpoint() string {
	return s.endpoint
}

// Browse implements backends.Session. Released messages are requeued by RabbitMQ
// with their redelivered flag set.
func (s *Session) Browse(ctx context.Context, queue string, visit func(*backends.Message) error) error {
	log.Verbose("browsing %s on %s", queue, amqpcommon.Redact(s.endpoint))
	return amqpcommon.BrowseMessages(ctx, s.session, amqpcommon.ReceiveOptions{
		Queue:          queueAddress(queue),
		Timeout:        s.args.ReceiveTimeout,
		Limit:          s.args.BrowseLimit,
		LinkName:       "dlqm-browse",
		MissingIsEmpty: true,
	}, visit)
}

// Consume implements backends.Session
func (s *Session) Consume(ctx context.Context, queue string) (int, error) {
	log.Verbose("removing messages from %s on %s", queue, amqpcommon.Redact(s.endpoint))
	return amqpcommon.ConsumeMessages(ctx, s.session, amqpcommon.ReceiveOptions{
		Queue:          queueAddress(queue),
		Timeout:        s.args.ReceiveTimeout,
		Limit:          consumeCredit,
		LinkName:       "dlqm-consume",
		MissingIsEmpty: true,
	})
}

// QueueStats implements backends.StatsProvider through the management HTTP API
func (s *Session) QueueStats(ctx context.Context, queue string) (*backends.QueueStats, error) {
	return GetQueueStats(ctx, ManagementArgs{
		Server:   s.endpoint,
		User:     s.args.Conn.User,
		Password: s.args.Conn.Password,
		Port:     s.args.ManagementPort,
	}, queue)
}

// Close implements backends.Session
func (s *Session) Close() error {
	var sessionErr error
	if s.session != nil {
		sessionErr = s.session.Close(context.Background())
	}
	if s.connection != nil {
		if err := s.connection.Close(); err != nil {
			return err
		}
	}
	if sessionErr != nil {
		return fmt.Errorf("closing AMQP session: %w", sessionErr)
	}
	return nil
}
