package main

import (
	"encoding/json"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"github.com/linkedin/goavro/v2"
)

// eventSchema is the Avro schema of the events that we send to Kafka.
const eventSchema = `{
	"type": "record",
	"name": "RelayEvent",
	"namespace": "com.brave.nacrelay",
	"fields": [
		{"name": "id", "type": "string"},
		{"name": "command", "type": "string"},
		{"name": "outcome", "type": "string"},
		{"name": "duration_ms", "type": "long"},
		{"name": "created_at", "type": "string"}
	]
}`

var ourCodec = mustNewCodec(eventSchema)

func mustNewCodec(schema string) *goavro.Codec {
	codec, err := goavro.NewCodec(schema)
	if err != nil {
		panic(fmt.Sprintf("failed to create Avro codec: %v", err))
	}
	return codec
}

// kafkaMessage is the textual representation of an event, as defined by
// eventSchema.
type kafkaMessage struct {
	ID         string `json:"id"`
	Command    string `json:"command"`
	Outcome    string `json:"outcome"`
	DurationMs int64  `json:"duration_ms"`
	CreatedAt  string `json:"created_at"`
}

// event records that we handled a command from the relay.
type event struct {
	id        uuid.UUID
	command   string
	outcome   string
	duration  time.Duration
	createdAt time.Time
}

func newEvent(command, outcome string, duration time.Duration) *event {
	return &event{
		id:        uuid.New(),
		command:   command,
		outcome:   outcome,
		duration:  duration,
		createdAt: time.Now().UTC(),
	}
}

func (e *event) message() *kafkaMessage {
	return &kafkaMessage{
		ID:         e.id.String(),
		Command:    e.command,
		Outcome:    e.outcome,
		DurationMs: e.duration.Milliseconds(),
		CreatedAt:  e.createdAt.Format(time.RFC3339Nano),
	}
}

func (e *event) json() ([]byte, error) {
	return json.Marshal(e.message())
}

// avro returns the event's Avro encoding.
func (e *event) avro() ([]byte, error) {
	blob, err := e.json()
	if err != nil {
		return nil, err
	}
	return avroEncode(ourCodec, blob)
}

// String implements the Stringer interface for event.
func (e *event) String() string {
	return fmt.Sprintf("%s: %s (%s) after %s", e.id, e.command, e.outcome, e.duration)
}
