package kafka

import (
	"github.com/makibytes/dlqm/broker/backends"
	"github.com/segmentio/kafka-go"
)

// Headers written by the common dead letter producers to record the source topic
var originalTopicHeaders = []string{
	"kafka_dlt-original-topic", // Spring Kafka
	"__connect.errors.topic",   // Kafka Connect
}

func convertKafkaToBackendMessage(msg *kafka.Message) *backends.Message {
	result := &backends.Message{
		Data:             msg.Value,
		Properties:       make(map[string]any),
		InternalMetadata: make(map[string]any),
		Timestamp:        msg.Time,
	}

	// Convert headers to properties
	for _, h := range msg.Headers {
		result.Properties[h.Key] = string(h.Value)
	}

	// Extract standard metadata from headers if present
	if contentType, ok := result.Properties["content-type"].(string); ok {
		result.ContentType = contentType
		delete(result.Properties, "content-type")
	}
	if correlID, ok := result.Properties["correlation-id"].(string); ok {
		result.CorrelationID = correlID
		delete(result.Properties, "correlation-id")
	}
	if msgID, ok := result.Properties["message-id"].(string); ok {
		result.MessageID = msgID
		delete(result.Properties, "message-id")
	}
	for _, h := range originalTopicHeaders {
		if topic, ok := result.Properties[h].(string); ok && topic != "" {
			result.OriginalAddress = topic
			break
		}
	}

	result.InternalMetadata["topic"] = msg.Topic
	result.InternalMetadata["partition"] = msg.Partition
	result.InternalMetadata["offset"] = msg.Offset
	if len(msg.Key) > 0 {
		result.InternalMetadata["key"] = string(msg.Key)
	}

	return result
}
