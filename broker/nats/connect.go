package nats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/makibytes/dlqm/broker/backends"
	"github.com/makibytes/dlqm/broker/tlsutil"
	"github.com/makibytes/dlqm/log"
	natsclient "github.com/nats-io/nats.go"
)

// ConnArguments holds parameters for establishing a NATS connection.
type ConnArguments struct {
	Server   string
	User     string
	Password string
	TLS      tlsutil.Config
}

// Connect creates and returns a NATS connection.
func Connect(ctx context.Context, args ConnArguments) (*natsclient.Conn, error) {
	opts := []natsclient.Option{natsclient.Name("dlqm")}

	if args.User != "" {
		opts = append(opts, natsclient.UserInfo(args.User, args.Password))
	}

	secure := strings.HasPrefix(args.Server, "tls://")
	if tlsutil.Wanted(args.TLS, secure) || args.TLS.CACert != "" || args.TLS.ClientCert != "" {
		tlsCfg, err := tlsutil.Build(args.TLS)
		if err != nil {
			return nil, fmt.Errorf("building TLS config: %w", err)
		}
		opts = append(opts, natsclient.Secure(tlsCfg))
		log.Verbose("TLS enabled")
	}
	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, natsclient.Timeout(time.Until(deadline)))
	}

	nc, err := natsclient.Connect(args.Server, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS server %s: %w", backends.Redact(args.Server), err)
	}

	return nc, nil
}

// ConnectWithJetStream connects to NATS and returns both the connection and JetStream context.
func ConnectWithJetStream(ctx context.Context, args ConnArguments) (*natsclient.Conn, natsclient.JetStreamContext, error) {
	nc, err := Connect(ctx, args)
	if err != nil {
		return nil, nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	return nc, js, nil
}
