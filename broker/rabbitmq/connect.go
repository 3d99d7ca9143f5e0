package rabbitmq

import (
	"context"
	"net/url"
	"strings"

	"github.com/Azure/go-amqp"
	"github.com/makibytes/dlqm/broker/amqpcommon"
)

// ConnArguments wraps the common AMQP connection arguments
type ConnArguments = amqpcommon.ConnArguments

// Connect establishes an AMQP 1.0 connection to RabbitMQ. rabbitmq:// and
// rabbitmqs:// endpoints are dialed as amqp:// and amqps://.
func Connect(ctx context.Context, args ConnArguments) (*amqp.Conn, *amqp.Session, error) {
	args.Server = amqpServer(args.Server)
	return amqpcommon.Connect(ctx, args)
}

func amqpServer(server string) string {
	switch {
	case strings.HasPrefix(server, "rabbitmqs://"):
		return "amqps://" + strings.TrimPrefix(server, "rabbitmqs://")
	case strings.HasPrefix(server, "rabbitmq://"):
		return "amqp://" + strings.TrimPrefix(server, "rabbitmq://")
	}
	return server
}

// queueAddress is the AMQP 1.0 address of a queue in the default exchange
func queueAddress(queue string) string {
	return "/queues/" + url.PathEscape(queue)
}
