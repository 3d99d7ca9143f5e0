package dlq

import (
	"errors"
	"fmt"

	"github.com/makibytes/dlqm/broker/backends"
)

// Op names the browser step that failed
type Op string

const (
	OpConnect Op = "connect"
	OpBrowse  Op = "browse"
	OpConsume Op = "consume"
	OpConvert Op = "convert"
	OpStats   Op = "stats"
	OpClose   Op = "close"
)

var (
	ErrConnection = errors.New("broker connection failed")
	ErrBrowse     = errors.New("browsing dead letter queue failed")
	ErrConsume    = errors.New("removing messages from dead letter queue failed")
	ErrConversion = errors.New("message body is not a JSON object")
	ErrStats      = errors.New("reading queue statistics failed")
	ErrClose      = errors.New("closing broker session failed")

	ErrClosed      = errors.New("dlq browser is closed")
	ErrNoEndpoints = errors.New("no broker endpoints configured")
)

// Error reports a failure against one broker endpoint. Brokers and Messages tell how
// far the operation got before it failed: the number of brokers fully processed and
// the number of messages browsed or removed across all brokers.
type Error struct {
	Op       Op
	Endpoint string
	Queue    string
	Brokers  int
	Messages int
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("dlq %s of queue %q on %s", e.Op, e.Queue, e.Endpoint)
	switch e.Op {
	case OpBrowse, OpConsume:
		msg += fmt.Sprintf(" (after %d brokers, %d messages)", e.Brokers, e.Messages)
	}
	return msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel belonging to the failed step, so callers can test
// errors.Is(err, dlq.ErrConsume) without unwrapping.
func (e *Error) Is(target error) bool {
	return target == e.Op.sentinel()
}

func (o Op) sentinel() error {
	switch o {
	case OpConnect:
		return ErrConnection
	case OpBrowse:
		return ErrBrowse
	case OpConsume:
		return ErrConsume
	case OpConvert:
		return ErrConversion
	case OpStats:
		return ErrStats
	case OpClose:
		return ErrClose
	}
	return nil
}

// Redact hides the password of an endpoint URI so it can be logged
func Redact(endpoint string) string {
	return backends.Redact(endpoint)
}
