//go:build ibmmq

package ibmmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ibm-messaging/mq-golang/v5/ibmmq"
	"github.com/makibytes/dlqm/broker/backends"
	"github.com/makibytes/dlqm/log"
)

// initialBufferSize fits most dead letters; larger ones are read again with a
// buffer of the reported length
const initialBufferSize = 64 * 1024

// SessionArguments holds everything needed to open an IBM MQ session
type SessionArguments struct {
	Conn           ConnArguments
	ReceiveTimeout time.Duration
}

// Session is one connection to a queue manager
type Session struct {
	args SessionArguments
	ep   endpoint
	qMgr ibmmq.MQQueueManager
}

var (
	_ backends.Session       = (*Session)(nil)
	_ backends.StatsProvider = (*Session)(nil)
)

// Open connects to the queue manager
func Open(ctx context.Context, args SessionArguments) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	qMgr, ep, err := Connect(args.Conn)
	if err != nil {
		return nil, err
	}
	return &Session{args: args, ep: ep, qMgr: qMgr}, nil
}

// Endpoint implements backends.Session
func (s *Session) Endpoint() string {
	return s.args.Conn.Server
}

// queueName applies the queue= override from the endpoint URL
func (s *Session) queueName(queue string) string {
	if s.ep.queue != "" {
		return s.ep.queue
	}
	return queue
}

// Browse implements backends.Session with a browse cursor, which leaves the queue untouched
func (s *Session) Browse(ctx context.Context, queue string, visit func(*backends.Message) error) error {
	name := s.queueName(queue)
	obj, err := s.open(name, ibmmq.MQOO_BROWSE)
	if isReason(err, ibmmq.MQRC_UNKNOWN_OBJECT_NAME) {
		log.Verbose("queue %s does not exist on %s", name, s.ep.queueManager)
		return nil
	}
	if err != nil {
		return err
	}
	defer obj.Close(0) //nolint:errcheck

	cmho := ibmmq.NewMQCMHO()
	msgHandle, err := s.qMgr.CrtMH(cmho)
	if err != nil {
		return fmt.Errorf("creating message handle: %w", err)
	}
	defer msgHandle.DltMH(ibmmq.NewMQDMHO()) //nolint:errcheck

	buffer := make([]byte, initialBufferSize)
	var cursor int32 = ibmmq.MQGMO_BROWSE_FIRST
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		gmo := s.getOptions(cursor)
		gmo.Options |= ibmmq.MQGMO_PROPERTIES_IN_HANDLE
		gmo.MsgHandle = msgHandle
		md := ibmmq.NewMQMD()

		n, err := obj.Get(md, gmo, buffer)
		if isReason(err, ibmmq.MQRC_TRUNCATED_MSG_FAILED) {
			buffer = make([]byte, n)
			gmo = s.getOptions(ibmmq.MQGMO_BROWSE_MSG_UNDER_CURSOR)
			gmo.Options |= ibmmq.MQGMO_PROPERTIES_IN_HANDLE
			gmo.MsgHandle = msgHandle
			md = ibmmq.NewMQMD()
			n, err = obj.Get(md, gmo, buffer)
		}
		if isReason(err, ibmmq.MQRC_NO_MSG_AVAILABLE) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("browsing %s: %w", name, err)
		}

		data := make([]byte, n)
		copy(data, buffer[:n])
		if err := visit(convertMQMDToBackendMessage(md, data, msgHandle)); err != nil {
			return err
		}
		cursor = ibmmq.MQGMO_BROWSE_NEXT
	}
}

// Consume implements backends.Session. Messages are removed outside syncpoint, so
// each get is final.
func (s *Session) Consume(ctx context.Context, queue string) (int, error) {
	name := s.queueName(queue)
	obj, err := s.open(name, ibmmq.MQOO_INPUT_AS_Q_DEF)
	if isReason(err, ibmmq.MQRC_UNKNOWN_OBJECT_NAME) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer obj.Close(0) //nolint:errcheck

	removed := 0
	for {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		gmo := s.getOptions(ibmmq.MQGMO_ACCEPT_TRUNCATED_MSG)
		_, err := obj.Get(ibmmq.NewMQMD(), gmo, nil)
		if isReason(err, ibmmq.MQRC_NO_MSG_AVAILABLE) {
			return removed, nil
		}
		if err != nil && !isReason(err, ibmmq.MQRC_TRUNCATED_MSG_ACCEPTED) {
			return removed, fmt.Errorf("removing from %s: %w", name, err)
		}
		removed++
	}
}

// QueueStats implements backends.StatsProvider by inquiring the queue depth
func (s *Session) QueueStats(_ context.Context, queue string) (*backends.QueueStats, error) {
	name := s.queueName(queue)
	obj, err := s.open(name, ibmmq.MQOO_INQUIRE)
	if isReason(err, ibmmq.MQRC_UNKNOWN_OBJECT_NAME) {
		return &backends.QueueStats{Name: name}, nil
	}
	if err != nil {
		return nil, err
	}
	defer obj.Close(0) //nolint:errcheck

	values, err := obj.Inq([]int32{ibmmq.MQIA_CURRENT_Q_DEPTH, ibmmq.MQIA_OPEN_INPUT_COUNT})
	if err != nil {
		return nil, fmt.Errorf("inquiring %s: %w", name, err)
	}
	stats := &backends.QueueStats{Name: name}
	if depth, ok := values[ibmmq.MQIA_CURRENT_Q_DEPTH].(int32); ok {
		stats.MessageCount = int64(depth)
	}
	if readers, ok := values[ibmmq.MQIA_OPEN_INPUT_COUNT].(int32); ok {
		stats.ConsumerCount = int(readers)
	}
	return stats, nil
}

// Close implements backends.Session
func (s *Session) Close() error {
	return s.qMgr.Disc()
}

func (s *Session) open(queue string, options int32) (ibmmq.MQObject, error) {
	mqod := ibmmq.NewMQOD()
	mqod.ObjectType = ibmmq.MQOT_Q
	mqod.ObjectName = queue

	obj, err := s.qMgr.Open(mqod, options|ibmmq.MQOO_FAIL_IF_QUIESCING)
	if err != nil {
		return obj, fmt.Errorf("opening %s: %w", queue, err)
	}
	return obj, nil
}

// getOptions waits up to the receive timeout so messages committed meanwhile are still seen
func (s *Session) getOptions(extra int32) *ibmmq.MQGMO {
	gmo := ibmmq.NewMQGMO()
	gmo.Options = ibmmq.MQGMO_NO_SYNCPOINT | ibmmq.MQGMO_FAIL_IF_QUIESCING | ibmmq.MQGMO_WAIT | extra
	gmo.WaitInterval = int32(s.args.ReceiveTimeout.Milliseconds())
	gmo.MatchOptions = ibmmq.MQMO_NONE
	return gmo
}

func isReason(err error, reason int32) bool {
	var mqret *ibmmq.MQReturn
	return errors.As(err, &mqret) && mqret.MQRC == reason
}
