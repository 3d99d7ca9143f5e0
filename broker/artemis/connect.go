package artemis

import (
	"context"

	"github.com/Azure/go-amqp"
	"github.com/makibytes/dlqm/broker/amqpcommon"
)

// Connect establishes an AMQP 1.0 connection to Artemis
func Connect(ctx context.Context, args ConnArguments) (*amqp.Conn, *amqp.Session, error) {
	return amqpcommon.Connect(ctx, args)
}
