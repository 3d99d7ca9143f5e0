package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/makibytes/dlqm/broker/backends"
	"github.com/makibytes/dlqm/config"
	"github.com/makibytes/dlqm/dlq"
	"github.com/rs/zerolog"
)

// Run performs cfg.Operation against every configured endpoint. Sessions are
// closed before Run returns, whatever the outcome; a close failure is joined to
// the operation's error.
func Run(ctx context.Context, cfg config.Config, factory backends.SessionFactory, logger zerolog.Logger) (err error) {
	if err := cfg.Validate(); err != nil {
		return err
	}

	opts := []dlq.Option{dlq.WithLogger(logger)}
	if cfg.Parallel {
		opts = append(opts, dlq.WithParallelBrowse())
	}

	logger.Debug().Str("operation", string(cfg.Operation)).Int("endpoints", len(cfg.Endpoints)).Msg("starting")
	browser, err := dlq.Open(ctx, cfg.Endpoints, factory, opts...)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, browser.Close())
	}()

	switch cfg.Operation {
	case config.ListMessages:
		_, err = listMessages(ctx, browser, logger)
	case config.CountMessages:
		err = countMessages(ctx, browser, logger)
	case config.RemoveMessages:
		_, err = browser.RemoveAll(ctx)
	case config.ListAndRemove:
		if _, err = listMessages(ctx, browser, logger); err == nil {
			_, err = browser.RemoveAll(ctx)
		}
	case config.Download:
		_, err = browser.BrowseAndLogFull(ctx)
	case config.Stats:
		err = logStats(ctx, browser, logger)
	default:
		err = &config.Error{Field: "operation", Err: fmt.Errorf("%w %q", config.ErrUnknownOperation, cfg.Operation)}
	}
	return err
}

// listMessages logs the compact JSON body of every well-formed message
func listMessages(ctx context.Context, b *dlq.Browser, logger zerolog.Logger) (int, error) {
	messages, err := b.BrowseStructured(ctx)
	if err != nil {
		return 0, err
	}
	for _, m := range messages {
		data, err := json.Marshal(m.Body)
		if err != nil {
			return 0, fmt.Errorf("encoding message body: %w", err)
		}
		logger.Info().Msg(string(data))
	}
	return len(messages), nil
}

func countMessages(ctx context.Context, b *dlq.Browser, logger zerolog.Logger) error {
	n, err := b.Count(ctx)
	if err != nil {
		return err
	}
	logger.Info().Int("count", n).Msgf("%d", n)
	return nil
}

func logStats(ctx context.Context, b *dlq.Browser, logger zerolog.Logger) error {
	stats, err := b.Stats(ctx)
	if err != nil {
		return err
	}
	for _, s := range stats {
		if !s.Supported {
			logger.Info().Str("endpoint", s.Endpoint).Msg("queue statistics not available")
			continue
		}
		logger.Info().
			Str("endpoint", s.Endpoint).
			Str("queue", s.Stats.Name).
			Int64("messages", s.Stats.MessageCount).
			Int("consumers", s.Stats.ConsumerCount).
			Int64("enqueued", s.Stats.EnqueueCount).
			Int64("dequeued", s.Stats.DequeueCount).
			Msgf("%s: %d messages", s.Endpoint, s.Stats.MessageCount)
	}
	return nil
}
