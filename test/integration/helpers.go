//go:build integration

package integration

import (
	"fmt"
	"time"
)

// readyInterval is the pause between two readiness checks
const readyInterval = 500 * time.Millisecond

// WaitForBroker calls check until it succeeds or timeout elapses. Containers often
// accept TCP connections before the broker behind them serves clients, so a
// listening port alone is not proof of readiness. The returned error wraps the
// last failure and says how many attempts were made.
func WaitForBroker(check func() error, timeout time.Duration) error {
	ticker := time.NewTicker(readyInterval)
	defer ticker.Stop()
	expired := time.After(timeout)

	attempts := 0
	for {
		attempts++
		err := check()
		if err == nil {
			return nil
		}
		select {
		case <-expired:
			return fmt.Errorf("broker not ready after %d attempts in %s: %w", attempts, timeout, err)
		case <-ticker.C:
		}
	}
}
