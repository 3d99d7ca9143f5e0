package dlq

import (
	"context"
	"errors"
	"fmt"

	"github.com/makibytes/dlqm/broker/backends"
)

// fakeSession is an in-memory broker holding one queue
type fakeSession struct {
	endpoint string
	queue    []*backends.Message

	browseErr   error
	consumeErr  error
	failAfter   int // consume fails after removing this many messages when consumeErr is set
	closeErr    error
	stats       *backends.QueueStats
	closeCalls  int
	browseCalls int
	consumed    bool
	lastQueue   string
}

func (f *fakeSession) Endpoint() string { return f.endpoint }

func (f *fakeSession) Browse(ctx context.Context, queue string, visit func(*backends.Message) error) error {
	f.browseCalls++
	f.lastQueue = queue
	if f.browseErr != nil {
		return f.browseErr
	}
	for _, msg := range f.queue {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := visit(msg); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeSession) Consume(_ context.Context, queue string) (int, error) {
	f.consumed = true
	f.lastQueue = queue
	removed := 0
	for len(f.queue) > 0 {
		if f.consumeErr != nil && removed == f.failAfter {
			return removed, f.consumeErr
		}
		f.queue = f.queue[1:]
		removed++
	}
	return removed, nil
}

func (f *fakeSession) Close() error {
	f.closeCalls++
	return f.closeErr
}

// statsSession adds backends.StatsProvider to fakeSession
type statsSession struct {
	*fakeSession
}

func (s statsSession) QueueStats(_ context.Context, queue string) (*backends.QueueStats, error) {
	if s.stats == nil {
		return nil, errors.New("management API unavailable")
	}
	st := *s.stats
	st.Name = queue
	return &st, nil
}

// fakeFactory hands out pre-built sessions by endpoint and records the order in which
// endpoints were opened
type fakeFactory struct {
	sessions map[string]backends.Session
	failures map[string]error
	opened   []string
}

func newFakeFactory(sessions ...*fakeSession) *fakeFactory {
	f := &fakeFactory{
		sessions: make(map[string]backends.Session),
		failures: make(map[string]error),
	}
	for _, s := range sessions {
		f.sessions[s.endpoint] = s
	}
	return f
}

func (f *fakeFactory) open(_ context.Context, endpoint string) (backends.Session, error) {
	f.opened = append(f.opened, endpoint)
	if err, ok := f.failures[endpoint]; ok {
		return nil, err
	}
	s, ok := f.sessions[endpoint]
	if !ok {
		return nil, fmt.Errorf("no broker at %s", endpoint)
	}
	return s, nil
}

func jsonMessages(prefix string, n int) []*backends.Message {
	msgs := make([]*backends.Message, n)
	for i := range msgs {
		msgs[i] = &backends.Message{
			MessageID: fmt.Sprintf("%s-%d", prefix, i),
			Data:      []byte(fmt.Sprintf(`{"caseId":"%s-%d","status":"failed"}`, prefix, i)),
		}
	}
	return msgs
}

func endpointsOf(sessions ...*fakeSession) []string {
	endpoints := make([]string, len(sessions))
	for i, s := range sessions {
		endpoints[i] = s.endpoint
	}
	return endpoints
}
