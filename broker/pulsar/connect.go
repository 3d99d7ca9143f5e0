package pulsar

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	pulsarclient "github.com/apache/pulsar-client-go/pulsar"
	"github.com/makibytes/dlqm/broker/backends"
	"github.com/makibytes/dlqm/broker/tlsutil"
	"github.com/makibytes/dlqm/log"
)

// ConnArguments holds parameters for establishing a Pulsar connection. Token
// authentication has no user name, so User is only kept for symmetry with the
// other drivers.
type ConnArguments struct {
	Server   string
	User     string
	Password string // token for token authentication
	TLS      tlsutil.Config
}

const connectTimeout = 30 * time.Second

// Connect creates a Pulsar client. The client connects lazily, so callers that need
// to know the cluster is reachable must make a request.
func Connect(ctx context.Context, args ConnArguments) (pulsarclient.Client, error) {
	server, token, err := normalizeServer(args)
	if err != nil {
		return nil, err
	}

	timeout := connectTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	opts := pulsarclient.ClientOptions{
		URL:               server,
		OperationTimeout:  timeout,
		ConnectionTimeout: timeout,
	}

	if token != "" {
		opts.Authentication = pulsarclient.NewAuthenticationToken(token)
	}
	if strings.HasPrefix(server, "pulsar+ssl://") {
		opts.TLSTrustCertsFilePath = args.TLS.CACert
		opts.TLSAllowInsecureConnection = args.TLS.Insecure
		if args.TLS.ClientCert != "" && args.TLS.ClientKey != "" {
			opts.Authentication = pulsarclient.NewAuthenticationTLS(args.TLS.ClientCert, args.TLS.ClientKey)
		}
		log.Verbose("TLS enabled")
	}

	client, err := pulsarclient.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("connecting to Pulsar at %s: %w", backends.Redact(args.Server), err)
	}
	return client, nil
}

// normalizeServer strips credentials from the URL and switches to pulsar+ssl when
// TLS is requested. A password embedded in the URL is used as the token unless one
// is given explicitly.
func normalizeServer(args ConnArguments) (string, string, error) {
	u, err := url.Parse(args.Server)
	if err != nil {
		return "", "", fmt.Errorf("invalid server URL %s: %w", backends.Redact(args.Server), err)
	}
	token := args.Password
	if u.User != nil {
		if p, ok := u.User.Password(); ok && token == "" {
			token = p
		}
		u.User = nil
	}
	if u.Scheme == "pulsar" && tlsutil.Wanted(args.TLS, false) {
		u.Scheme = "pulsar+ssl"
	}
	return u.String(), token, nil
}

func queueTopic(queue string) string {
	if strings.Contains(queue, "://") {
		return queue
	}
	return "persistent://public/default/" + queue
}
