//go:build ibmmq && integration

package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Application credentials of the IBM MQ developer image
const (
	IBMMQUser     = "app"
	IBMMQPassword = "passw0rd"
)

// StartIBMMQ starts the IBM MQ developer image with queue manager QM1 and returns an
// ibmmq:// URL for the developer application channel.
func StartIBMMQ(ctx context.Context) (*BrokerContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        "icr.io/ibm-messaging/mq:latest",
		ExposedPorts: []string{"1414/tcp"},
		Env: map[string]string{
			"LICENSE":         "accept",
			"MQ_QMGR_NAME":    "QM1",
			"MQ_APP_PASSWORD": IBMMQPassword,
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("1414/tcp"),
			wait.ForLog("AMQ5026I"),
		).WithDeadline(3 * time.Minute),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("starting IBM MQ: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, err
	}
	port, err := container.MappedPort(ctx, "1414")
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, err
	}

	return &BrokerContainer{
		Container: container,
		URL:       fmt.Sprintf("ibmmq://%s:%s/QM1?channel=DEV.APP.SVRCONN", host, port.Port()),
	}, nil
}
