package pulsar

import (
	"fmt"
	"maps"

	pulsarclient "github.com/apache/pulsar-client-go/pulsar"
	"github.com/makibytes/dlqm/broker/backends"
)

// Properties set by the Pulsar client when it moves a message to a dead letter topic
const (
	realTopicProperty     = "REAL_TOPIC"
	originMessageProperty = "ORIGIN_MESSAGE_ID"
)

func convertPulsarToBackendMessage(msg pulsarclient.Message) *backends.Message {
	props := make(map[string]any, len(msg.Properties()))
	for k, v := range msg.Properties() {
		props[k] = v
	}

	result := &backends.Message{
		Data:            msg.Payload(),
		Properties:      props,
		MessageID:       fmt.Sprint(msg.ID()),
		CorrelationID:   msg.Properties()["correlation-id"],
		ContentType:     msg.Properties()["content-type"],
		DeliveryCount:   msg.RedeliveryCount(),
		OriginalAddress: msg.Properties()[realTopicProperty],
		Timestamp:       msg.PublishTime(),
		Persistent:      true,
		InternalMetadata: map[string]any{
			"topic": msg.Topic(),
		},
	}
	if key := msg.Key(); key != "" {
		result.InternalMetadata["key"] = key
	}
	if producer := msg.ProducerName(); producer != "" {
		result.InternalMetadata["producer"] = producer
	}
	if origin, ok := msg.Properties()[originMessageProperty]; ok {
		result.InternalMetadata["originMessageId"] = origin
	}
	if !msg.EventTime().IsZero() {
		result.InternalMetadata["eventTime"] = msg.EventTime()
	}
	maps.DeleteFunc(result.Properties, func(k string, _ any) bool {
		return k == realTopicProperty || k == originMessageProperty
	})
	return result
}
