package artemis

import (
	"context"
	"fmt"

	"github.com/Azure/go-amqp"
	"github.com/makibytes/dlqm/broker/amqpcommon"
	"github.com/makibytes/dlqm/broker/backends"
	"github.com/makibytes/dlqm/log"
)

// Session is a backends.Session on one Artemis broker
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

// Open connects to the broker named by args.Conn.Server
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

// Browse implements backends.Session
func (s *Session) Browse(ctx context.Context, queue string, visit func(*backends.Message) error) error {
	log.Verbose("browsing %s on %s with ANYCAST routing", queue, amqpcommon.Redact(s.endpoint))
	return amqpcommon.BrowseMessages(ctx, s.session, amqpcommon.ReceiveOptions{
		Queue:              queue,
		Timeout:            s.args.ReceiveTimeout,
		Limit:              s.args.BrowseLimit,
		SourceCapabilities: anycast,
		LinkName:           "dlqm-browse",
	}, visit)
}

// Consume implements backends.Session
func (s *Session) Consume(ctx context.Context, queue string) (int, error) {
	log.Verbose("removing messages from %s on %s", queue, amqpcommon.Redact(s.endpoint))
	return amqpcommon.ConsumeMessages(ctx, s.session, amqpcommon.ReceiveOptions{
		Queue:              queue,
		Timeout:            s.args.ReceiveTimeout,
		Limit:              consumeCredit,
		SourceCapabilities: anycast,
		LinkName:           "dlqm-consume",
	})
}

// QueueStats implements backends.StatsProvider through the Jolokia management API
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
