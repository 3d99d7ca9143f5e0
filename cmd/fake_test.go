package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/makibytes/dlqm/broker/backends"
	"github.com/makibytes/dlqm/config"
)

// mockSession is an in-memory broker holding one queue
type mockSession struct {
	endpoint   string
	messages   []*backends.Message
	consumeErr error
	closeErr   error
	closed     int
}

func (m *mockSession) Endpoint() string { return m.endpoint }

func (m *mockSession) Browse(ctx context.Context, queue string, visit func(*backends.Message) error) error {
	for _, msg := range m.messages {
		if err := visit(msg); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockSession) Consume(ctx context.Context, queue string) (int, error) {
	if m.consumeErr != nil {
		return 0, m.consumeErr
	}
	n := len(m.messages)
	m.messages = nil
	return n, nil
}

func (m *mockSession) Close() error {
	m.closed++
	return m.closeErr
}

type statsSession struct {
	*mockSession
}

func (s statsSession) QueueStats(ctx context.Context, queue string) (*backends.QueueStats, error) {
	return &backends.QueueStats{Name: queue, MessageCount: int64(len(s.messages)), ConsumerCount: 1}, nil
}

type mockFactory struct {
	sessions map[string]backends.Session
	opened   []string
	cfg      config.Config
}

func newMockFactory(sessions ...backends.Session) *mockFactory {
	f := &mockFactory{sessions: make(map[string]backends.Session)}
	for _, s := range sessions {
		f.sessions[s.Endpoint()] = s
	}
	return f
}

func (f *mockFactory) open(ctx context.Context, endpoint string) (backends.Session, error) {
	f.opened = append(f.opened, endpoint)
	s, ok := f.sessions[endpoint]
	if !ok {
		return nil, fmt.Errorf("connection refused: %s", endpoint)
	}
	return s, nil
}

// builder records the resolved configuration and hands out the mock factory
func (f *mockFactory) builder(cfg config.Config) backends.SessionFactory {
	f.cfg = cfg
	return f.open
}

func jsonMessages(prefix string, n int) []*backends.Message {
	msgs := make([]*backends.Message, n)
	for i := range msgs {
		msgs[i] = &backends.Message{Data: fmt.Appendf(nil, `{"caseId":"%s-%d","status":"FAILED"}`, prefix, i)}
	}
	return msgs
}

// logLines decodes zerolog JSON output, one object per line
func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	for sc.Scan() {
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		var line map[string]any
		if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
			t.Fatalf("log line %q is not JSON: %v", sc.Text(), err)
		}
		lines = append(lines, line)
	}
	return lines
}

// messageLines returns the log lines whose message is a JSON object
func messageLines(lines []map[string]any) []map[string]any {
	var out []map[string]any
	for _, l := range lines {
		msg, _ := l["message"].(string)
		var body map[string]any
		if json.Unmarshal([]byte(msg), &body) == nil {
			out = append(out, body)
		}
	}
	return out
}
