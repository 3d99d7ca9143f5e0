package kafka

import (
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/makibytes/dlqm/broker/backends"
	"github.com/makibytes/dlqm/broker/tlsutil"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
)

// ConnArguments holds the parameters for connecting to a Kafka cluster
type ConnArguments struct {
	Server   string
	User     string
	Password string
	TLS      tlsutil.Config
}

const dialTimeout = 10 * time.Second

// splitBrokers separates the bootstrap list of kafka://b1:9092;b2:9092 from the URL
// and returns the URL with only the first broker left in it. Brokers are separated
// by semicolons because commas separate endpoints.
func splitBrokers(serverURL string) (string, []string, error) {
	scheme, rest, ok := strings.Cut(serverURL, "://")
	if !ok {
		return "", nil, fmt.Errorf("invalid server URL %q: no scheme", backends.Redact(serverURL))
	}
	end := strings.IndexAny(rest, "/?")
	if end < 0 {
		end = len(rest)
	}
	authority, tail := rest[:end], rest[end:]

	var userinfo string
	if at := strings.LastIndex(authority, "@"); at >= 0 {
		userinfo, authority = authority[:at+1], authority[at+1:]
	}

	var brokers []string
	for _, b := range strings.Split(authority, ";") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return "", nil, fmt.Errorf("invalid server URL %q: no broker address", backends.Redact(serverURL))
	}
	return scheme + "://" + userinfo + brokers[0] + tail, brokers, nil
}

// parseKafkaURL parses the server URL and returns brokers and TLS config
func parseKafkaURL(serverURL string, tlsCfg tlsutil.Config) ([]string, *tls.Config, error) {
	first, brokers, err := splitBrokers(serverURL)
	if err != nil {
		return nil, nil, err
	}
	u, err := url.Parse(first)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid server URL %q: %w", backends.Redact(serverURL), err)
	}

	var tlsConfig *tls.Config
	if tlsutil.Wanted(tlsCfg, u.Scheme == "kafka+ssl" || u.Scheme == "kafkas") {
		tlsConfig, err = tlsutil.Build(tlsCfg)
		if err != nil {
			return nil, nil, err
		}
	}

	return brokers, tlsConfig, nil
}

// credentials prefers explicit credentials over those embedded in the URL
func credentials(serverURL, user, password string) (string, string) {
	if user != "" {
		return user, password
	}
	first, _, err := splitBrokers(serverURL)
	if err != nil {
		return user, password
	}
	u, err := url.Parse(first)
	if err != nil || u.User == nil {
		return user, password
	}
	p, _ := u.User.Password()
	return u.User.Username(), p
}

// getSASLMechanism returns SASL mechanism if credentials are provided
func getSASLMechanism(user, password string) sasl.Mechanism {
	if user != "" && password != "" {
		return &plain.Mechanism{
			Username: user,
			Password: password,
		}
	}
	return nil
}

func newDialer(tlsConfig *tls.Config, mechanism sasl.Mechanism) *kafka.Dialer {
	return &kafka.Dialer{
		Timeout:       dialTimeout,
		DualStack:     true,
		TLS:           tlsConfig,
		SASLMechanism: mechanism,
	}
}

func newClient(brokers []string, tlsConfig *tls.Config, mechanism sasl.Mechanism) *kafka.Client {
	return &kafka.Client{
		Addr:    kafka.TCP(brokers...),
		Timeout: dialTimeout,
		Transport: &kafka.Transport{
			TLS:  tlsConfig,
			SASL: mechanism,
		},
	}
}
