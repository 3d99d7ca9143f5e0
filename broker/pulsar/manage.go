package pulsar

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

	"github.com/makibytes/dlqm/broker/backends"
	"github.com/makibytes/dlqm/broker/tlsutil"
	"github.com/makibytes/dlqm/log"
)

// DefaultAdminPort is the port of the Pulsar admin REST API
const DefaultAdminPort = 8080

// AdminArgs holds parameters for Pulsar admin requests
type AdminArgs struct {
	Server string
	Token  string
	Port   int
	TLS    tlsutil.Config // used for https admin URLs when Client is nil
	Client *http.Client
}

// adminURL derives the admin API base URL from the broker service URL
func adminURL(server string, port int) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("invalid server URL %s: %w", backends.Redact(server), err)
	}
	if port == 0 {
		port = DefaultAdminPort
	}
	scheme := "http"
	if u.Scheme == "pulsar+ssl" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/admin/v2", scheme, net.JoinHostPort(u.Hostname(), strconv.Itoa(port))), nil
}

// topicPath maps a queue to the admin path of its topic
func topicPath(queue string) string {
	topic := strings.TrimPrefix(queueTopic(queue), "persistent://")
	if strings.HasPrefix(topic, "non-persistent://") {
		return "/non-persistent/" + strings.TrimPrefix(topic, "non-persistent://")
	}
	parts := strings.SplitN(topic, "/", 3)
	for i := range parts {
		parts[i] = url.PathEscape(parts[i])
	}
	return "/persistent/" + strings.Join(parts, "/")
}

type topicStats struct {
	MsgInCounter  int64 `json:"msgInCounter"`
	Subscriptions map[string]struct {
		MsgBacklog    int64             `json:"msgBacklog"`
		MsgOutCounter int64             `json:"msgOutCounter"`
		Consumers     []json.RawMessage `json:"consumers"`
	} `json:"subscriptions"`
}

// GetQueueStats reads the topic statistics. The message count is the backlog of the
// dlqm subscription; before that subscription exists every retained entry counts.
// A topic that does not exist is reported empty.
func GetQueueStats(ctx context.Context, args AdminArgs, queue string) (*backends.QueueStats, error) {
	base, err := adminURL(args.Server, args.Port)
	if err != nil {
		return nil, err
	}
	client := args.Client
	if client == nil {
		client = http.DefaultClient
		if strings.HasPrefix(base, "https://") {
			tlsCfg, err := tlsutil.Build(args.TLS)
			if err != nil {
				return nil, err
			}
			client = &http.Client{Transport: &http.Transport{TLSClientConfig: tlsCfg}}
		}
	}

	path := topicPath(queue)
	body, found, err := adminGet(ctx, client, base+path+"/stats", args.Token)
	if err != nil {
		return nil, err
	}
	if !found {
		log.Verbose("topic %s does not exist", queue)
		return &backends.QueueStats{Name: queue}, nil
	}

	var raw topicStats
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse topic stats: %w", err)
	}

	stats := &backends.QueueStats{Name: queue, EnqueueCount: raw.MsgInCounter}
	if sub, ok := raw.Subscriptions[Subscription]; ok {
		stats.MessageCount = sub.MsgBacklog
		stats.DequeueCount = sub.MsgOutCounter
		stats.ConsumerCount = len(sub.Consumers)
		return stats, nil
	}

	body, found, err = adminGet(ctx, client, base+path+"/internalStats", args.Token)
	if err != nil || !found {
		return stats, err
	}
	var internal struct {
		NumberOfEntries int64 `json:"numberOfEntries"`
	}
	if err := json.Unmarshal(body, &internal); err != nil {
		return nil, fmt.Errorf("failed to parse internal topic stats: %w", err)
	}
	stats.MessageCount = internal.NumberOfEntries
	return stats, nil
}

func adminGet(ctx context.Context, client *http.Client, fullURL, token string) ([]byte, bool, error) {
	log.Verbose("requesting %s", fullURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, false, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("admin API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("admin API returned status %d: %s", resp.StatusCode, string(body))
	}
	return body, true, nil
}
