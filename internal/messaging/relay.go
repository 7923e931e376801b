package messaging

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/Kjeonghyun5142/bap-pool/internal/metrics"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Envelope is what travels between instances: an already encoded room event
// tagged with the instance that produced it.
type Envelope struct {
	Origin string          `json:"origin"`
	RoomID int64           `json:"room_id"`
	Event  json.RawMessage `json:"event"`
}

// DeliverFunc hands a relayed event to the local room group.
type DeliverFunc func(roomID int64, event []byte)

type publisher interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler func(msg *nats.Msg)) error
}

// Relay publishes local room events and delivers remote ones. Events carrying
// this instance's origin are ignored on receipt, local members already got them.
type Relay struct {
	bus    publisher
	prefix string
	origin string
}

func NewRelay(bus publisher, prefix string) *Relay {
	if prefix == "" {
		prefix = "chat.room"
	}
	return &Relay{bus: bus, prefix: prefix, origin: uuid.NewString()}
}

func (r *Relay) Origin() string { return r.origin }

func (r *Relay) subject(roomID int64) string {
	return r.prefix + "." + strconv.FormatInt(roomID, 10)
}

func (r *Relay) Publish(roomID int64, event []byte) error {
	data, err := json.Marshal(Envelope{Origin: r.origin, RoomID: roomID, Event: event})
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := r.bus.Publish(r.subject(roomID), data); err != nil {
		return fmt.Errorf("publish %s: %w", r.subject(roomID), err)
	}
	metrics.RelayTotal.WithLabelValues("published").Inc()
	return nil
}

// Start subscribes to every room subject and calls deliver for foreign events.
func (r *Relay) Start(deliver DeliverFunc) error {
	return r.bus.Subscribe(r.prefix+".*", func(msg *nats.Msg) {
		r.handle(msg.Subject, msg.Data, deliver)
	})
}

func (r *Relay) handle(subject string, data []byte, deliver DeliverFunc) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		metrics.RelayTotal.WithLabelValues("dropped").Inc()
		slog.Warn("relay: bad envelope", slog.String("subject", subject), slog.Any("err", err))
		return
	}
	if env.Origin == r.origin {
		return
	}
	if !strings.HasSuffix(subject, "."+strconv.FormatInt(env.RoomID, 10)) || env.RoomID <= 0 {
		metrics.RelayTotal.WithLabelValues("dropped").Inc()
		slog.Warn("relay: subject and room mismatch", slog.String("subject", subject), slog.Int64("room_id", env.RoomID))
		return
	}
	metrics.RelayTotal.WithLabelValues("delivered").Inc()
	deliver(env.RoomID, env.Event)
}
