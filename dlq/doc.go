// Package dlq browses and drains the dead letter queue of one or more brokers.
//
// A Browser owns one backends.Session per configured endpoint. Browsing is
// non-destructive and returns messages in endpoint order, each broker's own order
// preserved. Removal consumes every session in turn and stops at the first failure;
// messages already removed from earlier brokers stay removed.
//
//	b, err := dlq.Open(ctx, endpoints, broker.NewFactory(opts), dlq.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer b.Close()
//	n, err := b.Count(ctx)
package dlq
