package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/makibytes/dlqm/broker/amqpcommon"
	"github.com/makibytes/dlqm/broker/backends"
	"github.com/makibytes/dlqm/log"
)

// DefaultManagementPort is the port of the RabbitMQ management plugin
const DefaultManagementPort = 15672

// errNotFound is returned by managementGet for HTTP 404
var errNotFound = errors.New("not found")

// ManagementArgs holds parameters for RabbitMQ management operations
type ManagementArgs struct {
	Server   string
	User     string
	Password string
	Vhost    string // defaults to "/"
	Port     int
	Client   *http.Client
}

// managementURL converts the AMQP server URL to the RabbitMQ Management API URL
func managementURL(server string, port int) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", err
	}
	if port == 0 {
		port = DefaultManagementPort
	}
	return fmt.Sprintf("http://%s/api", net.JoinHostPort(u.Hostname(), strconv.Itoa(port))), nil
}

func managementGet(ctx context.Context, client *http.Client, baseURL, path, user, password string) ([]byte, error) {
	fullURL := baseURL + path
	log.Verbose("requesting %s", fullURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}
	if user != "" {
		req.SetBasicAuth(user, password)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("management API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("management API returned status %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// GetQueueStats returns statistics for a queue via the management API. A queue that
// does not exist is reported empty.
func GetQueueStats(ctx context.Context, args ManagementArgs, queue string) (*backends.QueueStats, error) {
	server, user, password := amqpcommon.NormalizeServer(amqpServer(args.Server), args.User, args.Password)
	base, err := managementURL(server, args.Port)
	if err != nil {
		return nil, err
	}
	vhost := args.Vhost
	if vhost == "" {
		vhost = "/"
	}
	client := args.Client
	if client == nil {
		client = http.DefaultClient
	}

	path := fmt.Sprintf("/queues/%s/%s", url.PathEscape(vhost), url.PathEscape(queue))
	body, err := managementGet(ctx, client, base, path, user, password)
	if errors.Is(err, errNotFound) {
		log.Verbose("queue %s does not exist in vhost %s", queue, vhost)
		return &backends.QueueStats{Name: queue}, nil
	}
	if err != nil {
		return nil, err
	}

	var raw struct {
		Name         string `json:"name"`
		Messages     int64  `json:"messages"`
		Consumers    int    `json:"consumers"`
		MessageStats struct {
			Publish    int64 `json:"publish"`
			DeliverGet int64 `json:"deliver_get"`
			Ack        int64 `json:"ack"`
		} `json:"message_stats"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse queue stats: %w", err)
	}

	return &backends.QueueStats{
		Name:          raw.Name,
		MessageCount:  raw.Messages,
		ConsumerCount: raw.Consumers,
		EnqueueCount:  raw.MessageStats.Publish,
		DequeueCount:  raw.MessageStats.Ack,
	}, nil
}
