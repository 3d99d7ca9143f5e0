//go:build ibmmq && integration

package ibmmq

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/ibm-messaging/mq-golang/v5/ibmmq"
	"github.com/makibytes/dlqm/broker/backends"
	"github.com/makibytes/dlqm/test/integration"
)

var testServer string

func TestMain(m *testing.M) {
	ctx := context.Background()
	broker, err := integration.StartIBMMQ(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start IBM MQ: %v\n", err)
		os.Exit(1)
	}
	testServer = broker.URL

	err = integration.WaitForBroker(func() error {
		s, err := Open(ctx, makeSessionArgs(""))
		if err != nil {
			return err
		}
		return s.Close()
	}, 60*time.Second)
	if err != nil {
		broker.Terminate(ctx)
		fmt.Fprintf(os.Stderr, "IBM MQ not ready: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()
	broker.Terminate(ctx)
	os.Exit(code)
}

// makeSessionArgs points the logical DLQ at one of the developer queues
func makeSessionArgs(queue string) SessionArguments {
	server := testServer
	if queue != "" {
		server += "&queue=" + queue
	}
	return SessionArguments{
		Conn: ConnArguments{
			Server:   server,
			User:     integration.IBMMQUser,
			Password: integration.IBMMQPassword,
		},
		ReceiveTimeout: time.Second,
	}
}

func seed(t *testing.T, queue string, bodies ...string) {
	t.Helper()
	qMgr, _, err := Connect(makeSessionArgs(queue).Conn)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer qMgr.Disc() //nolint:errcheck

	mqod := ibmmq.NewMQOD()
	mqod.ObjectType = ibmmq.MQOT_Q
	mqod.ObjectName = queue
	obj, err := qMgr.Open(mqod, ibmmq.MQOO_OUTPUT)
	if err != nil {
		t.Fatalf("Open %s: %v", queue, err)
	}
	defer obj.Close(0) //nolint:errcheck

	for _, body := range bodies {
		md := ibmmq.NewMQMD()
		md.Format = ibmmq.MQFMT_STRING
		pmo := ibmmq.NewMQPMO()
		pmo.Options = ibmmq.MQPMO_NO_SYNCPOINT
		if err := obj.Put(md, pmo, []byte(body)); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
}

func openSession(t *testing.T, queue string) *Session {
	t.Helper()
	s, err := Open(context.Background(), makeSessionArgs(queue))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if _, err := s.Consume(context.Background(), "DLQ"); err != nil {
		t.Fatalf("clearing %s: %v", queue, err)
	}
	return s
}

func browseAll(t *testing.T, s *Session) []string {
	t.Helper()
	var bodies []string
	err := s.Browse(context.Background(), "DLQ", func(m *backends.Message) error {
		bodies = append(bodies, string(m.Data))
		return nil
	})
	if err != nil {
		t.Fatalf("Browse: %v", err)
	}
	return bodies
}

func TestIBMMQ_BrowseIsRepeatable(t *testing.T) {
	s := openSession(t, "DEV.QUEUE.1")
	seed(t, "DEV.QUEUE.1", `{"caseId":"1"}`, `{"caseId":"2"}`, `{"caseId":"3"}`)

	first := browseAll(t, s)
	second := browseAll(t, s)

	if len(first) != 3 || len(second) != 3 {
		t.Fatalf("browse returned %d then %d messages, want 3 twice", len(first), len(second))
	}
	if first[0] != `{"caseId":"1"}` {
		t.Errorf("first message = %s", first[0])
	}
}

func TestIBMMQ_ConsumeEmptiesQueue(t *testing.T) {
	s := openSession(t, "DEV.QUEUE.2")
	seed(t, "DEV.QUEUE.2", `{"n":1}`, `{"n":2}`)

	removed, err := s.Consume(context.Background(), "DLQ")
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if left := browseAll(t, s); len(left) != 0 {
		t.Errorf("%d messages left after consume", len(left))
	}
}

func TestIBMMQ_QueueStats(t *testing.T) {
	s := openSession(t, "DEV.QUEUE.3")
	seed(t, "DEV.QUEUE.3", `{"a":1}`, `{"a":2}`)

	stats, err := s.QueueStats(context.Background(), "DLQ")
	if err != nil {
		t.Fatalf("QueueStats: %v", err)
	}
	if stats.Name != "DEV.QUEUE.3" || stats.MessageCount != 2 {
		t.Errorf("stats = %+v, want DEV.QUEUE.3 with 2 messages", stats)
	}
}
