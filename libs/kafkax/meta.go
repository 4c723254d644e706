package kafkax

import (
	"github.com/segmentio/kafka-go"
)

// EventMeta is the metadata carried in headers on every appointment event.
type EventMeta struct {
	EventID       string
	EventType     string
	AggregateID   string
	SchemaVersion string
}

const (
	HeaderEventID       = "event_id"
	HeaderEventType     = "event_type"
	HeaderSchemaVersion = "schema_version"
)

func ExtractEventMeta(msg kafka.Message) EventMeta {
	meta := EventMeta{
		EventID:       HeaderValue(msg.Headers, HeaderEventID),
		EventType:     HeaderValue(msg.Headers, HeaderEventType),
		AggregateID:   string(msg.Key),
		SchemaVersion: HeaderValue(msg.Headers, HeaderSchemaVersion),
	}
	if meta.EventType == "" {
		meta.EventType = msg.Topic
	}
	return meta
}

// MetaHeaders builds the metadata headers in a stable order.
func MetaHeaders(meta EventMeta) []kafka.Header {
	headers := []kafka.Header{
		{Key: HeaderEventID, Value: []byte(meta.EventID)},
		{Key: HeaderEventType, Value: []byte(meta.EventType)},
	}
	if meta.SchemaVersion != "" {
		headers = append(headers, kafka.Header{Key: HeaderSchemaVersion, Value: []byte(meta.SchemaVersion)})
	}
	return headers
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
