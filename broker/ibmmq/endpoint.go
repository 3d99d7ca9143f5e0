// Package ibmmq reads dead letter queues of IBM MQ queue managers. The driver needs
// the IBM MQ client libraries and cgo, so everything that talks to a queue manager
// is built only with the ibmmq build tag.
package ibmmq

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/makibytes/dlqm/broker/backends"
)

// Defaults applied to parts missing from an ibmmq:// URL
const (
	DefaultPort         = "1414"
	DefaultQueueManager = "QM1"
	DefaultChannel      = "SYSTEM.DEF.SVRCONN"
)

// endpoint is a parsed ibmmq://[user:password@]host[:port][/QMGR][?channel=CH&queue=Q] URL
type endpoint struct {
	host         string
	port         string
	queueManager string
	channel      string
	queue        string // replaces the logical queue name when set
	user         string
	password     string
}

func parseEndpoint(server string) (endpoint, error) {
	u, err := url.Parse(server)
	if err != nil {
		return endpoint{}, fmt.Errorf("invalid server URL %s: %w", backends.Redact(server), err)
	}
	if u.Hostname() == "" {
		return endpoint{}, fmt.Errorf("invalid server URL %s: missing host", backends.Redact(server))
	}

	ep := endpoint{
		host:         u.Hostname(),
		port:         u.Port(),
		queueManager: u.Path,
		channel:      u.Query().Get("channel"),
		queue:        u.Query().Get("queue"),
	}
	if len(ep.queueManager) > 0 && ep.queueManager[0] == '/' {
		ep.queueManager = ep.queueManager[1:]
	}
	if ep.port == "" {
		ep.port = DefaultPort
	}
	if ep.queueManager == "" {
		ep.queueManager = DefaultQueueManager
	}
	if ep.channel == "" {
		ep.channel = DefaultChannel
	}
	if u.User != nil {
		ep.user = u.User.Username()
		ep.password, _ = u.User.Password()
	}
	return ep, nil
}

// connectionName formats the address the way MQCD.ConnectionName expects it
func (ep endpoint) connectionName() string {
	return ep.host + "(" + ep.port + ")"
}

// putTimestamp combines MQMD PutDate (YYYYMMDD) and PutTime (HHMMSSTH), both GMT
func putTimestamp(date, tm string) time.Time {
	if len(date) != 8 || len(tm) < 6 {
		return time.Time{}
	}
	t, err := time.ParseInLocation("20060102150405", date+tm[:6], time.UTC)
	if err != nil {
		return time.Time{}
	}
	if len(tm) >= 8 {
		if hundredths, err := strconv.Atoi(tm[6:8]); err == nil {
			t = t.Add(time.Duration(hundredths) * 10 * time.Millisecond)
		}
	}
	return t
}

// hexID renders a MsgId or CorrelId; an all-zero identifier is empty
func hexID(id []byte) string {
	for _, b := range id {
		if b != 0 {
			return hex.EncodeToString(id)
		}
	}
	return ""
}
