package cmd

import (
	"github.com/makibytes/dlqm/broker"
	"github.com/makibytes/dlqm/broker/backends"
	"github.com/makibytes/dlqm/broker/tlsutil"
	"github.com/makibytes/dlqm/config"
)

// FactoryBuilder turns the resolved configuration into a SessionFactory. The
// root command takes one so tests can run without brokers.
type FactoryBuilder func(config.Config) backends.SessionFactory

// BrokerFactory opens real broker sessions, choosing the driver by endpoint scheme
func BrokerFactory(cfg config.Config) backends.SessionFactory {
	return broker.NewFactory(broker.Options{
		User:           cfg.User,
		Password:       cfg.Password,
		TLS:            tlsutil.Config(cfg.TLS),
		ReceiveTimeout: cfg.ReceiveTimeout,
		BrowseLimit:    cfg.BrowseLimit,
		ManagementPort: cfg.ManagementPort,
	})
}
