package artemis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/makibytes/dlqm/broker/amqpcommon"
	"github.com/makibytes/dlqm/broker/backends"
	"github.com/makibytes/dlqm/log"
)

// DefaultManagementPort is the port of the Artemis web console
const DefaultManagementPort = 8161

// ManagementArgs holds parameters for Artemis management operations
type ManagementArgs struct {
	Server   string // AMQP server URL; the HTTP management URL is derived from it
	User     string
	Password string
	Port     int
	Client   *http.Client
}

// jolokiaURL converts the AMQP server URL to the Jolokia HTTP URL
func jolokiaURL(amqpServer string, port int) (string, error) {
	u, err := url.Parse(amqpServer)
	if err != nil {
		return "", err
	}
	if port == 0 {
		port = DefaultManagementPort
	}
	return fmt.Sprintf("http://%s/console/jolokia", net.JoinHostPort(u.Hostname(), strconv.Itoa(port))), nil
}

func jolokiaGet(ctx context.Context, client *http.Client, baseURL, path, user, password string) ([]byte, error) {
	fullURL := baseURL + path
	log.Verbose("requesting %s", fullURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}
	if user != "" {
		req.SetBasicAuth(user, password)
	}
	req.Header.Set("Origin", baseURL)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("management API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("management API returned status %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// queueMBeanPath reads every anycast queue of that name, whatever the broker is called
func queueMBeanPath(queue string) string {
	q := url.PathEscape(`"` + queue + `"`)
	return "/read/org.apache.activemq.artemis:broker=*,component=addresses,address=" + q +
		",subcomponent=queues,routing-type=%22anycast%22,queue=" + q
}

// GetQueueStats returns statistics for a queue via Jolokia. A queue the broker does
// not know is reported empty.
func GetQueueStats(ctx context.Context, args ManagementArgs, queue string) (*backends.QueueStats, error) {
	server, user, password := amqpcommon.NormalizeServer(args.Server, args.User, args.Password)
	base, err := jolokiaURL(server, args.Port)
	if err != nil {
		return nil, err
	}
	client := args.Client
	if client == nil {
		client = http.DefaultClient
	}

	body, err := jolokiaGet(ctx, client, base, queueMBeanPath(queue), user, password)
	if err != nil {
		return nil, err
	}

	// Jolokia reports errors in the payload and answers with HTTP 200
	var result struct {
		Status int                       `json:"status"`
		Error  string                    `json:"error"`
		Value  map[string]map[string]any `json:"value"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse stats response: %w", err)
	}
	if result.Status == http.StatusNotFound {
		log.Verbose("queue %s does not exist", queue)
		return &backends.QueueStats{Name: queue}, nil
	}
	if result.Status != 0 && result.Status != http.StatusOK {
		return nil, fmt.Errorf("management API error %d: %s", result.Status, result.Error)
	}

	for name, attrs := range result.Value {
		if parseMBeanName(name).Name != queue {
			continue
		}
		stats := &backends.QueueStats{Name: queue}
		if v, ok := attrs["MessageCount"].(float64); ok {
			stats.MessageCount = int64(v)
		}
		if v, ok := attrs["ConsumerCount"].(float64); ok {
			stats.ConsumerCount = int(v)
		}
		if v, ok := attrs["MessagesAdded"].(float64); ok {
			stats.EnqueueCount = int64(v)
		}
		if v, ok := attrs["MessagesAcknowledged"].(float64); ok {
			stats.DequeueCount = int64(v)
		}
		return stats, nil
	}

	log.Verbose("no anycast queue %s", queue)
	return &backends.QueueStats{Name: queue}, nil
}

type queueInfo struct {
	Name        string
	RoutingType string
}

func parseMBeanName(name string) queueInfo {
	qi := queueInfo{}
	if i := strings.Index(name, ":"); i >= 0 {
		name = name[i+1:]
	}
	for part := range strings.SplitSeq(name, ",") {
		key, val, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		val = strings.Trim(val, "\"")
		switch key {
		case "queue":
			qi.Name = val
		case "routing-type":
			qi.RoutingType = val
		}
	}
	return qi
}
