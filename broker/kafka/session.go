package kafka

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/makibytes/dlqm/broker/backends"
	"github.com/makibytes/dlqm/log"
	"github.com/segmentio/kafka-go"
)

// DefaultGroupID is the consumer group whose committed offsets mark removed messages
const DefaultGroupID = "dlqm"

// SessionArguments holds everything needed to open a Kafka session
type SessionArguments struct {
	Conn           ConnArguments
	GroupID        string
	ReceiveTimeout time.Duration
}

// Session treats a topic as the dead letter queue. A Kafka log cannot be edited, so
// the messages "in the queue" are those past the committed offset of the group,
// and removing them commits the offset past the last one.
type Session struct {
	endpoint string
	brokers  []string
	group    string
	timeout  time.Duration
	dialer   *kafka.Dialer
	client   *kafka.Client
	conn     *kafka.Conn
}

var (
	_ backends.Session       = (*Session)(nil)
	_ backends.StatsProvider = (*Session)(nil)
)

// partitionRange is the part of one partition that has not been removed yet
type partitionRange struct {
	partition int
	start     int64
	end       int64 // high watermark, exclusive
}

// Open connects to the first broker of the cluster named by args.Conn.Server
func Open(ctx context.Context, args SessionArguments) (*Session, error) {
	brokers, tlsConfig, err := parseKafkaURL(args.Conn.Server, args.Conn.TLS)
	if err != nil {
		return nil, err
	}
	user, password := credentials(args.Conn.Server, args.Conn.User, args.Conn.Password)
	mechanism := getSASLMechanism(user, password)

	dialer := newDialer(tlsConfig, mechanism)
	log.Verbose("connecting to %s...", brokers[0])
	conn, err := dialer.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Kafka: %w", err)
	}

	group := args.GroupID
	if group == "" {
		group = DefaultGroupID
	}
	return &Session{
		endpoint: args.Conn.Server,
		brokers:  brokers,
		group:    group,
		timeout:  args.ReceiveTimeout,
		dialer:   dialer,
		client:   newClient(brokers, tlsConfig, mechanism),
		conn:     conn,
	}, nil
}

// Endpoint implements backends.Session
func (s *Session) Endpoint() string {
	return s.endpoint
}

// Browse implements backends.Session. Partitions are read one after the other in
// partition order; offsets are never committed.
func (s *Session) Browse(ctx context.Context, queue string, visit func(*backends.Message) error) error {
	ranges, err := s.ranges(ctx, queue)
	if err != nil {
		return err
	}
	for _, r := range ranges {
		err := s.read(ctx, queue, r, func(m kafka.Message) error {
			return visit(convertKafkaToBackendMessage(&m))
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Consume implements backends.Session. Each message is committed individually so a
// failure leaves the group positioned after the last removed message.
func (s *Session) Consume(ctx context.Context, queue string) (int, error) {
	ranges, err := s.ranges(ctx, queue)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, r := range ranges {
		err := s.read(ctx, queue, r, func(m kafka.Message) error {
			if err := s.commit(ctx, queue, m.Partition, m.Offset+1); err != nil {
				return err
			}
			removed++
			return nil
		})
		if err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// QueueStats implements backends.StatsProvider
func (s *Session) QueueStats(ctx context.Context, queue string) (*backends.QueueStats, error) {
	ranges, err := s.ranges(ctx, queue)
	if err != nil {
		return nil, err
	}
	stats := &backends.QueueStats{Name: queue}
	for _, r := range ranges {
		stats.MessageCount += r.end - r.start
		stats.EnqueueCount += r.end
	}
	return stats, nil
}

// Close implements backends.Session
func (s *Session) Close() error {
	if t, ok := s.client.Transport.(*kafka.Transport); ok {
		t.CloseIdleConnections()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// ranges returns the unread part of every partition of topic. A topic that does not
// exist holds no messages.
func (s *Session) ranges(ctx context.Context, topic string) ([]partitionRange, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetDeadline(deadline)
		defer s.conn.SetDeadline(time.Time{}) //nolint:errcheck
	}
	partitions, err := s.conn.ReadPartitions(topic)
	if errors.Is(err, kafka.UnknownTopicOrPartition) {
		log.Verbose("topic %s does not exist on %s", topic, s.endpoint)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read partitions of %s: %w", topic, err)
	}

	ids := make([]int, 0, len(partitions))
	for _, p := range partitions {
		ids = append(ids, p.ID)
	}
	slices.Sort(ids)

	committed, err := s.committed(ctx, topic, ids)
	if err != nil {
		return nil, err
	}

	var ranges []partitionRange
	for _, id := range ids {
		first, last, err := s.watermarks(ctx, topic, id)
		if err != nil {
			return nil, err
		}
		start := max(first, committed[id])
		if start < last {
			ranges = append(ranges, partitionRange{partition: id, start: start, end: last})
		}
	}
	return ranges, nil
}

// committed returns the offsets committed by the group. Partitions without a
// commit report -1.
func (s *Session) committed(ctx context.Context, topic string, partitions []int) (map[int]int64, error) {
	resp, err := s.client.OffsetFetch(ctx, &kafka.OffsetFetchRequest{
		GroupID: s.group,
		Topics:  map[string][]int{topic: partitions},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch offsets of group %s: %w", s.group, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("failed to fetch offsets of group %s: %w", s.group, resp.Error)
	}

	offsets := make(map[int]int64, len(partitions))
	for _, id := range partitions {
		offsets[id] = -1
	}
	for _, p := range resp.Topics[topic] {
		if p.Error != nil {
			return nil, fmt.Errorf("failed to fetch offset of %s/%d: %w", topic, p.Partition, p.Error)
		}
		offsets[p.Partition] = p.CommittedOffset
	}
	return offsets, nil
}

func (s *Session) watermarks(ctx context.Context, topic string, partition int) (int64, int64, error) {
	leader, err := s.dialer.DialLeader(ctx, "tcp", s.brokers[0], topic, partition)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to reach leader of %s/%d: %w", topic, partition, err)
	}
	defer leader.Close()

	first, last, err := leader.ReadOffsets()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read offsets of %s/%d: %w", topic, partition, err)
	}
	return first, last, nil
}

// ErrIncompleteRead is returned when a partition stops delivering messages before
// its high watermark is reached
var ErrIncompleteRead = errors.New("partition read stopped before the high watermark")

// read calls fn for every message in r. The first fetch may wait up to the dial
// timeout since it includes connecting to the partition leader; later fetches wait
// the receive timeout.
func (s *Session) read(ctx context.Context, topic string, r partitionRange, fn func(kafka.Message) error) (err error) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   s.brokers,
		Topic:     topic,
		Partition: r.partition,
		Dialer:    s.dialer,
		MaxWait:   s.timeout,
		MaxBytes:  10e6, // 10MB
	})
	defer func() {
		if closeErr := reader.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if err := reader.SetOffset(r.start); err != nil {
		return fmt.Errorf("failed to seek %s/%d to %d: %w", topic, r.partition, r.start, err)
	}

	for offset := r.start; offset < r.end; {
		wait := s.timeout
		if offset == r.start {
			wait = max(wait, dialTimeout)
		}
		rctx, cancel := context.WithTimeout(ctx, wait)
		m, err := reader.ReadMessage(rctx)
		cancel()
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return idleStop(topic, r, offset, reader.Offset(), func() (int64, error) {
				first, _, err := s.watermarks(ctx, topic, r.partition)
				return first, err
			})
		}
		if err != nil {
			return fmt.Errorf("failed to read %s/%d at offset %d: %w", topic, r.partition, offset, err)
		}
		if err := fn(m); err != nil {
			return err
		}
		offset = m.Offset + 1
	}
	return nil
}

// idleStop decides whether a partition that went quiet at offset was read to its
// end. It was when the reader moved past the end over control records, or when
// retention deleted what was left. Anything else is an incomplete read.
func idleStop(topic string, r partitionRange, offset, readerOffset int64, lowWatermark func() (int64, error)) error {
	if readerOffset >= r.end {
		return nil
	}
	first, err := lowWatermark()
	if err != nil {
		return err
	}
	if first >= r.end {
		log.Verbose("%s/%d: offsets %d to %d were deleted while reading", topic, r.partition, offset, r.end)
		return nil
	}
	return fmt.Errorf("%w: %s/%d idle at offset %d of %d", ErrIncompleteRead, topic, r.partition, offset, r.end)
}

func (s *Session) commit(ctx context.Context, topic string, partition int, offset int64) error {
	resp, err := s.client.OffsetCommit(ctx, &kafka.OffsetCommitRequest{
		GroupID:      s.group,
		GenerationID: -1,
		Topics: map[string][]kafka.OffsetCommit{
			topic: {{Partition: partition, Offset: offset}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to commit %s/%d at %d: %w", topic, partition, offset, err)
	}
	for _, p := range resp.Topics[topic] {
		if p.Error != nil {
			return fmt.Errorf("failed to commit %s/%d at %d: %w", topic, partition, offset, p.Error)
		}
	}
	return nil
}
