package rabbitmq

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
)

func managementServer(t *testing.T, status int, body string) (ManagementArgs, *string) {
	t.Helper()
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.EscapedPath()
		user, pass, ok := r.BasicAuth()
		if !ok || user != "guest" || pass != "guest" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatal(err)
	}
	return ManagementArgs{
		Server: "rabbitmq://guest:guest@" + u.Hostname() + ":5672",
		Port:   port,
		Client: srv.Client(),
	}, &path
}

func TestManagementURL(t *testing.T) {
	got, err := managementURL("amqp://rabbit1:5672", 0)
	if err != nil {
		t.Fatal(err)
	}
	if got != "http://rabbit1:15672/api" {
		t.Errorf("managementURL = %q", got)
	}
}

func TestAmqpServer(t *testing.T) {
	tests := map[string]string{
		"rabbitmq://r1:5672":  "amqp://r1:5672",
		"rabbitmqs://r1:5671": "amqps://r1:5671",
		"amqp://r1:5672":      "amqp://r1:5672",
	}
	for in, want := range tests {
		if got := amqpServer(in); got != want {
			t.Errorf("amqpServer(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestQueueAddress(t *testing.T) {
	if got := queueAddress("DLQ"); got != "/queues/DLQ" {
		t.Errorf("queueAddress = %q, want /queues/DLQ", got)
	}
	if got := queueAddress("dead letters"); got != "/queues/dead%20letters" {
		t.Errorf("queueAddress = %q, want an escaped name", got)
	}
}

func TestGetQueueStats(t *testing.T) {
	args, path := managementServer(t, http.StatusOK,
		`{"name":"DLQ","messages":7,"consumers":2,"message_stats":{"publish":30,"deliver_get":25,"ack":23}}`)

	stats, err := GetQueueStats(context.Background(), args, "DLQ")
	if err != nil {
		t.Fatalf("GetQueueStats: %v", err)
	}

	if stats.Name != "DLQ" || stats.MessageCount != 7 || stats.ConsumerCount != 2 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.EnqueueCount != 30 || stats.DequeueCount != 23 {
		t.Errorf("lifetime counters = %d/%d, want 30/23", stats.EnqueueCount, stats.DequeueCount)
	}
	if *path != "/api/queues/%2F/DLQ" {
		t.Errorf("path = %q, want the default vhost", *path)
	}
}

func TestGetQueueStats_MissingQueueIsEmpty(t *testing.T) {
	args, _ := managementServer(t, http.StatusNotFound, `{"error":"Object Not Found","reason":"Not Found"}`)

	stats, err := GetQueueStats(context.Background(), args, "DLQ")
	if err != nil {
		t.Fatalf("GetQueueStats: %v", err)
	}
	if stats.Name != "DLQ" || stats.MessageCount != 0 {
		t.Errorf("stats = %+v, want an empty DLQ", stats)
	}
}

func TestGetQueueStats_ServerError(t *testing.T) {
	args, _ := managementServer(t, http.StatusInternalServerError, "boom")

	if _, err := GetQueueStats(context.Background(), args, "DLQ"); err == nil {
		t.Error("expected an error for HTTP 500")
	}
}
