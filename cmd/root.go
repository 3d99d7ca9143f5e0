package cmd

import (
	"errors"
	"os"

	"github.com/makibytes/dlqm/config"
	"github.com/makibytes/dlqm/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// dotEnvFile is read from the working directory before the environment is consulted
const dotEnvFile = ".env"

type flagValues struct {
	configPath     string
	endpoints      string
	operation      string
	user           string
	password       string
	tls            config.TLS
	timeout        float32
	browseLimit    int
	managementPort int
	parallel       bool
	logFormat      string
	verbose        bool
}

// NewRootCommand returns the dlqm command. newFactory builds the session factory
// once the configuration is resolved.
func NewRootCommand(newFactory FactoryBuilder) *cobra.Command {
	var flags flagValues

	rootCmd := &cobra.Command{
		Use:   "dlqm",
		Short: "Dead letter queue browser",
		Long: `Lists, counts, downloads and removes the messages parked in the DLQ queue
of one or more brokers. Endpoints are amqp:// (Artemis), rabbitmq:// (RabbitMQ 4),
nats:// (JetStream), kafka:// (brokers separated by ';'), pulsar:// or ibmmq://
URIs. IBM MQ support needs a binary built with -tags ibmmq.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := resolveConfig(c.Flags(), flags)
			if err == nil {
				err = run(c, cfg, newFactory)
			}
			var cfgErr *config.Error
			if errors.As(err, &cfgErr) {
				c.PrintErrln(c.UsageString())
			}
			return err
		},
	}

	f := rootCmd.Flags()
	f.StringVarP(&flags.endpoints, "artemisUri", "a", "", "Broker endpoint URIs, comma separated (env "+config.EnvEndpoints+")")
	f.StringVarP(&flags.operation, "operation", "o", "", "listMessages|countMessages|removeMessages|listAndRemove|download|stats (env "+config.EnvOperation+")")
	f.StringVarP(&flags.configPath, "config", "c", "", "YAML config file (env "+config.EnvConfig+")")
	f.StringVarP(&flags.user, "user", "u", "", "Username for SASL PLAIN login (env "+config.EnvUser+")")
	f.StringVarP(&flags.password, "password", "p", "", "Password for SASL PLAIN login (env "+config.EnvPassword+")")
	f.Float32VarP(&flags.timeout, "timeout", "t", 1, "Seconds to wait for the next message before a queue counts as drained")
	f.IntVar(&flags.browseLimit, "browse-limit", config.DefaultBrowseLimit, "Maximum number of messages held per AMQP browse")
	f.IntVar(&flags.managementPort, "management-port", 0, "management port used for stats (default 8161 for Artemis, 15672 for RabbitMQ, 8080 for Pulsar)")
	f.BoolVar(&flags.parallel, "parallel", false, "Browse brokers concurrently")
	f.StringVar(&flags.logFormat, "log-format", log.FormatText, "Log format: text or json (env "+config.EnvLogFormat+")")
	f.BoolVarP(&flags.verbose, "verbose", "v", false, "Print verbose output")

	// TLS flags
	f.BoolVar(&flags.tls.Enabled, "tls", false, "Enable TLS connection")
	f.StringVar(&flags.tls.CACert, "ca-cert", "", "Path to CA certificate file")
	f.StringVar(&flags.tls.ClientCert, "cert", "", "Path to client certificate file")
	f.StringVar(&flags.tls.ClientKey, "key-file", "", "Path to client private key file")
	f.BoolVar(&flags.tls.Insecure, "insecure", false, "Skip TLS certificate verification")

	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}

// resolveConfig layers defaults, the YAML file, .env, the environment and finally
// the flags given on the command line.
func resolveConfig(fs *pflag.FlagSet, flags flagValues) (config.Config, error) {
	if err := config.LoadDotEnv(dotEnvFile); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(flags.configPath, os.Getenv)
	if err != nil {
		return cfg, err
	}

	if fs.Changed("artemisUri") {
		cfg.Endpoints = config.ParseEndpoints(flags.endpoints)
	}
	if fs.Changed("operation") {
		cfg.Operation = config.Operation(flags.operation)
	}
	if fs.Changed("user") {
		cfg.User = flags.user
	}
	if fs.Changed("password") {
		cfg.Password = flags.password
	}
	if fs.Changed("timeout") {
		cfg.ReceiveTimeout = config.Seconds(flags.timeout)
	}
	if fs.Changed("browse-limit") {
		cfg.BrowseLimit = flags.browseLimit
	}
	if fs.Changed("management-port") {
		cfg.ManagementPort = flags.managementPort
	}
	if fs.Changed("parallel") {
		cfg.Parallel = flags.parallel
	}
	if fs.Changed("log-format") {
		cfg.LogFormat = flags.logFormat
	}
	if fs.Changed("verbose") {
		cfg.Verbose = flags.verbose
	}
	if fs.Changed("tls") {
		cfg.TLS.Enabled = flags.tls.Enabled
	}
	if fs.Changed("ca-cert") {
		cfg.TLS.CACert = flags.tls.CACert
	}
	if fs.Changed("cert") {
		cfg.TLS.ClientCert = flags.tls.ClientCert
	}
	if fs.Changed("key-file") {
		cfg.TLS.ClientKey = flags.tls.ClientKey
	}
	if fs.Changed("insecure") {
		cfg.TLS.Insecure = flags.tls.Insecure
	}
	return cfg, nil
}

func run(c *cobra.Command, cfg config.Config, newFactory FactoryBuilder) error {
	logger, err := log.New(c.OutOrStdout(), cfg.LogFormat, cfg.Verbose)
	if err != nil {
		return &config.Error{Field: "log-format", Err: err}
	}
	log.SetDefault(logger)
	log.IsVerbose = cfg.Verbose

	return Run(c.Context(), cfg, newFactory(cfg), logger)
}
