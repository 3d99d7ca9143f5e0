//go:build ibmmq

package ibmmq

import (
	"fmt"

	"github.com/ibm-messaging/mq-golang/v5/ibmmq"
	"github.com/makibytes/dlqm/broker/backends"
	"github.com/makibytes/dlqm/log"
)

// ConnArguments holds parameters for connecting to a queue manager. User and
// Password take precedence over credentials in the URL.
type ConnArguments struct {
	Server   string
	User     string
	Password string
}

// Connect opens a client connection to the queue manager named in the URL
func Connect(args ConnArguments) (ibmmq.MQQueueManager, endpoint, error) {
	ep, err := parseEndpoint(args.Server)
	if err != nil {
		return ibmmq.MQQueueManager{}, ep, err
	}
	if args.User != "" {
		ep.user, ep.password = args.User, args.Password
	}

	cno := ibmmq.NewMQCNO()
	csp := ibmmq.NewMQCSP()
	if ep.user != "" {
		csp.AuthenticationType = ibmmq.MQCSP_AUTH_USER_ID_AND_PWD
		csp.UserId = ep.user
		csp.Password = ep.password
	}
	cno.SecurityParms = csp

	cd := ibmmq.NewMQCD()
	cd.ChannelName = ep.channel
	cd.ConnectionName = ep.connectionName()
	cno.ClientConn = cd
	cno.Options = ibmmq.MQCNO_CLIENT_BINDING

	log.Verbose("connecting to queue manager %s at %s on channel %s...", ep.queueManager, cd.ConnectionName, ep.channel)
	qMgr, err := ibmmq.Connx(ep.queueManager, cno)
	if err != nil {
		return ibmmq.MQQueueManager{}, ep, fmt.Errorf("connecting to queue manager %s at %s: %w",
			ep.queueManager, backends.Redact(args.Server), err)
	}
	return qMgr, ep, nil
}
