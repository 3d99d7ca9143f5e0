package dlq

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"time"

	"github.com/makibytes/dlqm/broker/backends"
)

// MessageKey is the reserved key under which FullRecord stores the message body
const MessageKey = "message"

// StructuredMessage is a dead-lettered message whose body parsed as a JSON object
type StructuredMessage struct {
	Metadata map[string]any `json:"metadata,omitempty"`
	Body     map[string]any `json:"body"`
}

// Record is the flat, loggable view of a message: broker metadata plus the body
// under MessageKey. It is meant for people, not for sending back to a queue.
type Record map[string]any

// Converter turns raw broker messages into their text, structured and loggable forms
type Converter interface {
	Text(msg *backends.Message) string
	Structured(msg *backends.Message) (StructuredMessage, error)
	FullRecord(msg *backends.Message) Record
}

// JSONConverter reads message bodies as JSON documents
type JSONConverter struct{}

var _ Converter = JSONConverter{}

func (JSONConverter) Text(msg *backends.Message) string {
	return string(msg.Data)
}

// Structured parses the body as a JSON object. Numbers are kept as json.Number so
// large identifiers survive unchanged.
func (JSONConverter) Structured(msg *backends.Message) (StructuredMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(msg.Data))
	dec.UseNumber()

	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return StructuredMessage{}, fmt.Errorf("%w: message %s: %v", ErrConversion, describe(msg), err)
	}
	if body == nil {
		return StructuredMessage{}, fmt.Errorf("%w: message %s: body is null", ErrConversion, describe(msg))
	}
	if _, err := dec.Token(); err != io.EOF {
		return StructuredMessage{}, fmt.Errorf("%w: message %s: trailing data after JSON object", ErrConversion, describe(msg))
	}

	return StructuredMessage{Metadata: Metadata(msg), Body: body}, nil
}

// FullRecord flattens application properties, broker specific metadata and the
// well-known header fields into one map, in that order of precedence (later wins),
// and stores the body text under MessageKey.
func (c JSONConverter) FullRecord(msg *backends.Message) Record {
	record := make(Record, len(msg.Properties)+len(msg.InternalMetadata)+8)
	maps.Copy(record, msg.Properties)
	maps.Copy(record, msg.InternalMetadata)
	maps.Copy(record, headerFields(msg))
	record[MessageKey] = c.Text(msg)
	return record
}

// Metadata returns the non-empty header fields of msg, with application properties
// nested under "properties"
func Metadata(msg *backends.Message) map[string]any {
	md := headerFields(msg)
	if len(msg.Properties) > 0 {
		md["properties"] = maps.Clone(msg.Properties)
	}
	return md
}

func headerFields(msg *backends.Message) map[string]any {
	md := make(map[string]any)
	if msg.MessageID != "" {
		md["messageId"] = msg.MessageID
	}
	if msg.CorrelationID != "" {
		md["correlationId"] = msg.CorrelationID
	}
	if msg.ContentType != "" {
		md["contentType"] = msg.ContentType
	}
	if msg.OriginalAddress != "" {
		md["originalAddress"] = msg.OriginalAddress
	}
	if msg.DeliveryCount != 0 {
		md["deliveryCount"] = msg.DeliveryCount
	}
	if msg.Priority != 0 {
		md["priority"] = msg.Priority
	}
	if msg.Persistent {
		md["persistent"] = true
	}
	if !msg.Timestamp.IsZero() {
		md["timestamp"] = msg.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return md
}

func describe(msg *backends.Message) string {
	if msg.MessageID != "" {
		return msg.MessageID
	}
	return "without id"
}
