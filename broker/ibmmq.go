//go:build ibmmq

package broker

import (
	"context"

	"github.com/makibytes/dlqm/broker/backends"
	"github.com/makibytes/dlqm/broker/ibmmq"
)

func init() {
	drivers[DriverIBMMQ] = openIBMMQ
}

func openIBMMQ(ctx context.Context, endpoint string, opts Options) (backends.Session, error) {
	s, err := ibmmq.Open(ctx, ibmmq.SessionArguments{
		Conn: ibmmq.ConnArguments{
			Server:   endpoint,
			User:     opts.User,
			Password: opts.Password,
		},
		ReceiveTimeout: opts.ReceiveTimeout,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}
