// Package broker opens a backends.Session for an endpoint URI, choosing the
// driver by URI scheme.
package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/makibytes/dlqm/broker/artemis"
	"github.com/makibytes/dlqm/broker/backends"
	"github.com/makibytes/dlqm/broker/kafka"
	"github.com/makibytes/dlqm/broker/nats"
	"github.com/makibytes/dlqm/broker/pulsar"
	"github.com/makibytes/dlqm/broker/rabbitmq"
	"github.com/makibytes/dlqm/broker/tlsutil"
)

var (
	// ErrUnsupportedScheme is returned for endpoints no driver understands
	ErrUnsupportedScheme = errors.New("unsupported endpoint scheme")
	// ErrDriverNotBuilt is returned for drivers left out of this binary by build tags
	ErrDriverNotBuilt = errors.New("broker driver not built into this binary")
)

// Options are the connection settings shared by every endpoint of a run
type Options struct {
	User           string
	Password       string
	TLS            tlsutil.Config
	ReceiveTimeout time.Duration
	BrowseLimit    int
	ManagementPort int
}

// Driver names
const (
	DriverArtemis  = "artemis"
	DriverRabbitMQ = "rabbitmq"
	DriverNATS     = "nats"
	DriverKafka    = "kafka"
	DriverPulsar   = "pulsar"
	DriverIBMMQ    = "ibmmq"
)

var schemes = map[string]string{
	"amqp":       DriverArtemis,
	"amqps":      DriverArtemis,
	"rabbitmq":   DriverRabbitMQ,
	"rabbitmqs":  DriverRabbitMQ,
	"nats":       DriverNATS,
	"tls":        DriverNATS,
	"kafka":      DriverKafka,
	"kafkas":     DriverKafka,
	"kafka+ssl":  DriverKafka,
	"pulsar":     DriverPulsar,
	"pulsar+ssl": DriverPulsar,
	"ibmmq":      DriverIBMMQ,
}

// opener opens one session. It must return a nil interface, not a typed nil, on failure.
type opener func(ctx context.Context, endpoint string, opts Options) (backends.Session, error)

// buildTags names the tag that adds a driver left out of the default build
var buildTags = map[string]string{
	DriverIBMMQ: "ibmmq",
}

var drivers = map[string]opener{
	DriverArtemis:  openArtemis,
	DriverRabbitMQ: openRabbitMQ,
	DriverNATS:     openNATS,
	DriverKafka:    openKafka,
	DriverPulsar:   openPulsar,
}

// NewFactory returns a SessionFactory that opens every endpoint with opts
func NewFactory(opts Options) backends.SessionFactory {
	return func(ctx context.Context, endpoint string) (backends.Session, error) {
		return Open(ctx, endpoint, opts)
	}
}

// Open opens a session on endpoint. Endpoints without a scheme are Artemis
// host:port pairs.
func Open(ctx context.Context, endpoint string, opts Options) (backends.Session, error) {
	driver, err := DriverFor(endpoint)
	if err != nil {
		return nil, err
	}
	open, ok := drivers[driver]
	if !ok {
		return nil, fmt.Errorf("%w: %s (rebuild with -tags %s)", ErrDriverNotBuilt, driver, buildTags[driver])
	}
	return open(ctx, endpoint, opts)
}

// DriverFor names the driver that handles endpoint. The scheme is read without
// parsing the whole URI since a Kafka bootstrap list is not a valid URL host.
func DriverFor(endpoint string) (string, error) {
	scheme, _, ok := strings.Cut(endpoint, "://")
	if !ok {
		return DriverArtemis, nil
	}
	driver, ok := schemes[strings.ToLower(scheme)]
	if !ok {
		return "", fmt.Errorf("%w %q in %s", ErrUnsupportedScheme, scheme, backends.Redact(endpoint))
	}
	return driver, nil
}

func openArtemis(ctx context.Context, endpoint string, opts Options) (backends.Session, error) {
	s, err := artemis.Open(ctx, artemis.SessionArguments{
		Conn: artemis.ConnArguments{
			Server:   endpoint,
			User:     opts.User,
			Password: opts.Password,
			TLS:      opts.TLS,
		},
		ReceiveTimeout: opts.ReceiveTimeout,
		BrowseLimit:    opts.BrowseLimit,
		ManagementPort: opts.ManagementPort,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openRabbitMQ(ctx context.Context, endpoint string, opts Options) (backends.Session, error) {
	s, err := rabbitmq.Open(ctx, rabbitmq.SessionArguments{
		Conn: rabbitmq.ConnArguments{
			Server:   endpoint,
			User:     opts.User,
			Password: opts.Password,
			TLS:      opts.TLS,
		},
		ReceiveTimeout: opts.ReceiveTimeout,
		BrowseLimit:    opts.BrowseLimit,
		ManagementPort: opts.ManagementPort,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openNATS(ctx context.Context, endpoint string, opts Options) (backends.Session, error) {
	s, err := nats.Open(ctx, nats.ConnArguments{
		Server:   endpoint,
		User:     opts.User,
		Password: opts.Password,
		TLS:      opts.TLS,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openKafka(ctx context.Context, endpoint string, opts Options) (backends.Session, error) {
	s, err := kafka.Open(ctx, kafka.SessionArguments{
		Conn: kafka.ConnArguments{
			Server:   endpoint,
			User:     opts.User,
			Password: opts.Password,
			TLS:      opts.TLS,
		},
		ReceiveTimeout: opts.ReceiveTimeout,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openPulsar(ctx context.Context, endpoint string, opts Options) (backends.Session, error) {
	s, err := pulsar.Open(ctx, pulsar.SessionArguments{
		Conn: pulsar.ConnArguments{
			Server:   endpoint,
			User:     opts.User,
			Password: opts.Password,
			TLS:      opts.TLS,
		},
		ReceiveTimeout: opts.ReceiveTimeout,
		BrowseLimit:    opts.BrowseLimit,
		ManagementPort: opts.ManagementPort,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}
