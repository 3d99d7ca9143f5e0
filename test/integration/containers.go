//go:build integration

// Package integration provides testcontainer helpers for dlqm integration tests.
// Build with: -tags integration
package integration

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/modules/nats"
	"github.com/testcontainers/testcontainers-go/modules/pulsar"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Credentials configured on the Artemis test container
const (
	ArtemisUser     = "artemis"
	ArtemisPassword = "artemis"
)

// BrokerContainer holds a running test broker container.
type BrokerContainer struct {
	Container      testcontainers.Container
	URL            string
	ManagementPort int // mapped management or admin port; Artemis, RabbitMQ and Pulsar
}

func (b *BrokerContainer) Terminate(ctx context.Context) {
	if b.Container != nil {
		b.Container.Terminate(ctx) //nolint:errcheck
	}
}

// StartArtemis starts an Apache Artemis container and returns its AMQP URL and the
// mapped port of its management console.
func StartArtemis(ctx context.Context) (*BrokerContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        "apache/activemq-artemis:latest-alpine",
		ExposedPorts: []string{"5672/tcp", "8161/tcp"},
		Env: map[string]string{
			"ARTEMIS_USER":     ArtemisUser,
			"ARTEMIS_PASSWORD": ArtemisPassword,
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5672/tcp"),
			wait.ForListeningPort("8161/tcp"),
		).WithDeadline(90 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("starting Artemis: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, err
	}
	port, err := container.MappedPort(ctx, "5672")
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, err
	}
	mgmt, err := container.MappedPort(ctx, "8161")
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, err
	}
	mgmtPort, err := strconv.Atoi(mgmt.Port())
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, err
	}

	return &BrokerContainer{
		Container:      container,
		URL:            fmt.Sprintf("amqp://%s:%s", host, port.Port()),
		ManagementPort: mgmtPort,
	}, nil
}

// StartKafka starts a Kafka container using the testcontainers module and
// returns the broker address as a kafka:// URL.
func StartKafka(ctx context.Context) (*BrokerContainer, error) {
	c, err := kafka.Run(ctx, "confluentinc/cp-kafka:7.6.1")
	if err != nil {
		return nil, fmt.Errorf("starting Kafka: %w", err)
	}

	brokers, err := c.Brokers(ctx)
	if err != nil {
		c.Terminate(ctx) //nolint:errcheck
		return nil, err
	}

	return &BrokerContainer{Container: c, URL: "kafka://" + brokers[0]}, nil
}

// StartNATS starts a NATS container with JetStream enabled using the
// testcontainers module and returns its connection URL.
func StartNATS(ctx context.Context) (*BrokerContainer, error) {
	c, err := nats.Run(ctx, "nats:latest", nats.WithArgument("--js", ""))
	if err != nil {
		return nil, fmt.Errorf("starting NATS: %w", err)
	}

	connURL, err := c.ConnectionString(ctx)
	if err != nil {
		c.Terminate(ctx) //nolint:errcheck
		return nil, err
	}

	return &BrokerContainer{Container: c, URL: connURL}, nil
}

// StartRabbitMQ starts a RabbitMQ container with the management plugin and
// returns its AMQP URL (credentials embedded) and the mapped management port.
func StartRabbitMQ(ctx context.Context) (*BrokerContainer, error) {
	c, err := rabbitmq.Run(ctx, "rabbitmq:4-management-alpine")
	if err != nil {
		return nil, fmt.Errorf("starting RabbitMQ: %w", err)
	}

	amqpURL, err := c.AmqpURL(ctx)
	if err != nil {
		c.Terminate(ctx) //nolint:errcheck
		return nil, err
	}
	httpURL, err := c.HttpURL(ctx)
	if err != nil {
		c.Terminate(ctx) //nolint:errcheck
		return nil, err
	}
	mgmtPort, err := mappedPort(httpURL)
	if err != nil {
		c.Terminate(ctx) //nolint:errcheck
		return nil, err
	}

	return &BrokerContainer{Container: c, URL: amqpURL, ManagementPort: mgmtPort}, nil
}

// StartPulsar starts a standalone Pulsar container and returns its service URL and
// the mapped port of its admin REST API.
func StartPulsar(ctx context.Context) (*BrokerContainer, error) {
	c, err := pulsar.Run(ctx, "apachepulsar/pulsar:3.3.0")
	if err != nil {
		return nil, fmt.Errorf("starting Pulsar: %w", err)
	}

	brokerURL, err := c.BrokerURL(ctx)
	if err != nil {
		c.Terminate(ctx) //nolint:errcheck
		return nil, err
	}
	adminURL, err := c.HTTPServiceURL(ctx)
	if err != nil {
		c.Terminate(ctx) //nolint:errcheck
		return nil, err
	}
	adminPort, err := mappedPort(adminURL)
	if err != nil {
		c.Terminate(ctx) //nolint:errcheck
		return nil, err
	}

	return &BrokerContainer{Container: c, URL: brokerURL, ManagementPort: adminPort}, nil
}

// mappedPort extracts the port of a URL handed out by a testcontainers module
func mappedPort(rawURL string) (int, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(u.Port())
}
