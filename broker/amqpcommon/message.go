package amqpcommon

import (
	"fmt"
	"time"

	"github.com/Azure/go-amqp"
	"github.com/makibytes/dlqm/broker/backends"
)

// Keys under which Artemis records where a dead-lettered message came from
const (
	origAddressAnnotation = "x-opt-ORIG-ADDRESS"
	origAddressProperty   = "_AMQ_ORIG_ADDRESS"
)

// ConvertAMQPToBackendMessage converts an AMQP 1.0 message to the common backend Message type
func ConvertAMQPToBackendMessage(msg *amqp.Message) *backends.Message {
	result := &backends.Message{
		Data:             Body(msg),
		Properties:       msg.ApplicationProperties,
		InternalMetadata: make(map[string]any),
	}

	if msg.Properties != nil {
		if msg.Properties.MessageID != nil {
			result.MessageID = fmt.Sprintf("%v", msg.Properties.MessageID)
		}
		if msg.Properties.CorrelationID != nil {
			result.CorrelationID = fmt.Sprintf("%v", msg.Properties.CorrelationID)
		}
		if msg.Properties.ContentType != nil {
			result.ContentType = *msg.Properties.ContentType
		}
		if msg.Properties.CreationTime != nil {
			result.Timestamp = *msg.Properties.CreationTime
		}
	}

	if msg.Header != nil {
		result.Priority = int(msg.Header.Priority)
		result.Persistent = msg.Header.Durable
		result.DeliveryCount = msg.Header.DeliveryCount
	}

	for k, v := range msg.Annotations {
		result.InternalMetadata[fmt.Sprintf("%v", k)] = annotationValue(v)
	}
	result.OriginalAddress = originalAddress(msg)

	return result
}

// Body returns the message payload. JMS text messages carry it in the amqp-value
// section rather than in a data section.
func Body(msg *amqp.Message) []byte {
	if data := msg.GetData(); data != nil {
		return data
	}
	switch v := msg.Value.(type) {
	case string:
		return []byte(v)
	case []byte:
		return v
	}
	return nil
}

func originalAddress(msg *amqp.Message) string {
	if v, ok := msg.Annotations[origAddressAnnotation]; ok {
		return fmt.Sprintf("%v", v)
	}
	if v, ok := msg.ApplicationProperties[origAddressProperty]; ok {
		return fmt.Sprintf("%v", v)
	}
	return ""
}

// annotationValue keeps JSON friendly values and stringifies the rest
func annotationValue(v any) any {
	switch t := v.(type) {
	case string, bool, int, int8, int16, int32, int64, uint8, uint16, uint32, uint64, float32, float64:
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case []byte:
		return string(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
