package artemis

import (
	"time"

	"github.com/makibytes/dlqm/broker/amqpcommon"
)

// ConnArguments wraps the common AMQP connection arguments
type ConnArguments = amqpcommon.ConnArguments

// SessionArguments holds everything needed to open an Artemis session
type SessionArguments struct {
	Conn           ConnArguments
	ReceiveTimeout time.Duration
	BrowseLimit    int
	ManagementPort int
}

// consumeCredit is the link credit used when draining a queue
const consumeCredit = 100

// anycast routes the receiver to the queue rather than a subscription on an address
var anycast = []string{"queue"}
