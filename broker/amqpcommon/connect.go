package amqpcommon

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/Azure/go-amqp"
	"github.com/makibytes/dlqm/broker/backends"
	"github.com/makibytes/dlqm/broker/tlsutil"
	"github.com/makibytes/dlqm/log"
)

const containerID = "dlqm"

// ConnArguments holds common AMQP connection parameters
type ConnArguments struct {
	Server   string
	User     string
	Password string
	TLS      tlsutil.Config
}

// Connect establishes an AMQP 1.0 connection with SASL authentication and opens one
// session on it. The connection is closed again when the session cannot be created.
func Connect(ctx context.Context, args ConnArguments) (*amqp.Conn, *amqp.Session, error) {
	server, user, password := NormalizeServer(args.Server, args.User, args.Password)

	connOptions := &amqp.ConnOptions{
		ContainerID: containerID,
		SASLType:    amqp.SASLTypeAnonymous(),
	}
	if user != "" {
		connOptions.SASLType = amqp.SASLTypePlain(user, password)
	}

	if tlsutil.Wanted(args.TLS, strings.HasPrefix(server, "amqps://")) {
		tlsConfig, err := tlsutil.Build(args.TLS)
		if err != nil {
			return nil, nil, fmt.Errorf("TLS configuration error: %w", err)
		}
		connOptions.TLSConfig = tlsConfig
		log.Verbose("TLS enabled")
	}

	log.Verbose("connecting to %s...", Redact(server))
	connection, err := amqp.Dial(ctx, server, connOptions)
	if err != nil {
		return nil, nil, err
	}

	session, err := connection.NewSession(ctx, nil)
	if err != nil {
		if closeErr := connection.Close(); closeErr != nil {
			log.Verbose("closing connection after failed session: %v", closeErr)
		}
		return nil, nil, err
	}

	return connection, session, nil
}

// NormalizeServer adds the amqp scheme to bare host:port endpoints and moves
// credentials embedded in the URI out of it. Explicit credentials win over
// embedded ones.
func NormalizeServer(server, user, password string) (string, string, string) {
	if !strings.Contains(server, "://") {
		server = "amqp://" + server
	}
	u, err := url.Parse(server)
	if err != nil || u.User == nil {
		return server, user, password
	}
	if user == "" {
		user = u.User.Username()
		password, _ = u.User.Password()
	}
	u.User = nil
	return u.String(), user, password
}

// Redact hides a password embedded in an endpoint URI
func Redact(server string) string {
	return backends.Redact(server)
}
