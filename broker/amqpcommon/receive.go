package amqpcommon

import (
	"context"
	"errors"
	"time"

	"github.com/Azure/go-amqp"
	"github.com/makibytes/dlqm/broker/backends"
	"github.com/makibytes/dlqm/log"
)

// ReceiveOptions configures an AMQP browse or consume operation
type ReceiveOptions struct {
	Queue              string
	Timeout            time.Duration // idle time after which the queue counts as drained
	Limit              int           // link credit, and for browsing the most messages held at once
	SourceCapabilities []string      // e.g. ["queue"] for Artemis anycast routing
	LinkName           string
	MissingIsEmpty     bool // a source the broker does not know counts as an empty queue
}

// BrowseMessages visits every message of the queue without removing it. Deliveries
// are held unsettled while they are visited and released once the enumeration ends,
// so the broker puts them back in their original order.
func BrowseMessages(ctx context.Context, session *amqp.Session, opts ReceiveOptions, visit func(*backends.Message) error) (err error) {
	receiver, err := newReceiver(ctx, session, opts)
	if opts.MissingIsEmpty && IsNotFound(err) {
		log.Verbose("%s does not exist", opts.Queue)
		return nil
	}
	if err != nil {
		return err
	}

	var held []*amqp.Message
	defer func() {
		cleanup := context.WithoutCancel(ctx)
		for _, m := range held {
			if relErr := receiver.ReleaseMessage(cleanup, m); relErr != nil && err == nil {
				err = relErr
			}
		}
		if closeErr := receiver.Close(cleanup); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for {
		if opts.Limit > 0 && len(held) >= opts.Limit {
			log.Warn("browse of %s stopped at %d messages; raise the browse limit to see more", opts.Queue, opts.Limit)
			return nil
		}

		msg, err := receiveNext(ctx, receiver, opts.Timeout)
		if err != nil {
			return err
		}
		if msg == nil {
			log.Verbose("%s drained after %d messages", opts.Queue, len(held))
			return nil
		}
		held = append(held, msg)

		if err := visit(ConvertAMQPToBackendMessage(msg)); err != nil {
			return err
		}
	}
}

// ConsumeMessages accepts every message of the queue until it stays idle for the
// receive timeout and returns how many were removed.
func ConsumeMessages(ctx context.Context, session *amqp.Session, opts ReceiveOptions) (removed int, err error) {
	receiver, err := newReceiver(ctx, session, opts)
	if opts.MissingIsEmpty && IsNotFound(err) {
		log.Verbose("%s does not exist", opts.Queue)
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer func() {
		if closeErr := receiver.Close(context.WithoutCancel(ctx)); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for {
		msg, err := receiveNext(ctx, receiver, opts.Timeout)
		if err != nil {
			return removed, err
		}
		if msg == nil {
			log.Verbose("%s drained after removing %d messages", opts.Queue, removed)
			return removed, nil
		}
		if err := receiver.AcceptMessage(ctx, msg); err != nil {
			return removed, err
		}
		removed++
	}
}

func newReceiver(ctx context.Context, session *amqp.Session, opts ReceiveOptions) (*amqp.Receiver, error) {
	linkName := opts.LinkName
	if linkName == "" {
		linkName = containerID
	}

	receiverOptions := &amqp.ReceiverOptions{
		Credit:             int32(opts.Limit),
		Name:               linkName,
		SourceCapabilities: opts.SourceCapabilities,
		SourceExpiryPolicy: amqp.ExpiryPolicyLinkDetach,
		Durability:         amqp.DurabilityNone,
		SettlementMode:     amqp.ReceiverSettleModeFirst.Ptr(),
	}

	log.Verbose("generating receiver for %s...", opts.Queue)
	return session.NewReceiver(ctx, opts.Queue, receiverOptions)
}

// receiveNext waits up to timeout for the next delivery. A nil message without an
// error means the queue stayed idle for the whole timeout.
func receiveNext(ctx context.Context, receiver *amqp.Receiver, timeout time.Duration) (*amqp.Message, error) {
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msg, err := receiver.Receive(rctx, nil)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

// IsNotFound reports whether the broker refused a link because its address does
// not exist
func IsNotFound(err error) bool {
	var linkErr *amqp.LinkError
	if errors.As(err, &linkErr) && linkErr.RemoteErr != nil {
		return linkErr.RemoteErr.Condition == amqp.ErrCondNotFound
	}
	var amqpErr *amqp.Error
	return errors.As(err, &amqpErr) && amqpErr.Condition == amqp.ErrCondNotFound
}
