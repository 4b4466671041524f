// Package events fans room events out across lobby instances over NATS.
package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"lobbyd/internal/model"
	"lobbyd/internal/service"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

const subjectPrefix = "lobby.rooms."

// Subject is the NATS subject carrying events for roomID
func Subject(roomID string) string {
	return subjectPrefix + roomID
}

// RoomIDFromSubject is the inverse of Subject
func RoomIDFromSubject(subject string) (string, bool) {
	if !strings.HasPrefix(subject, subjectPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(subject, subjectPrefix)
	return id, id != ""
}

// NATSBus publishes room events to NATS and relays every event it receives
// into the local sink. Each instance's websocket hub therefore sees events
// produced by any instance.
type NATSBus struct {
	conn  *nats.Conn
	local service.Broadcaster
	sub   *nats.Subscription
}

// Connect dials NATS with reconnects enabled
func Connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("lobbyd"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logrus.WithError(err).Warn("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logrus.WithField("url", nc.ConnectedUrl()).Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return nc, nil
}

// NewNATSBus subscribes to every room subject and relays into local
func NewNATSBus(conn *nats.Conn, local service.Broadcaster) (*NATSBus, error) {
	b := &NATSBus{conn: conn, local: local}

	sub, err := conn.Subscribe(subjectPrefix+"*", b.relay)
	if err != nil {
		return nil, fmt.Errorf("subscribe to room events: %w", err)
	}
	b.sub = sub
	return b, nil
}

func (b *NATSBus) relay(msg *nats.Msg) {
	var event model.RoomEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		logrus.WithError(err).WithField("subject", msg.Subject).Warn("dropping malformed room event")
		return
	}
	if id, ok := RoomIDFromSubject(msg.Subject); ok && event.RoomID == "" {
		event.RoomID = id
	}
	b.local.Publish(&event)
}

// Publish sends the event to every instance (implements service.Broadcaster).
// If NATS is unavailable the event is still delivered locally.
func (b *NATSBus) Publish(event *model.RoomEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		logrus.WithError(err).WithField("type", event.Type).Error("room event encode failed")
		return
	}
	if err := b.conn.Publish(Subject(event.RoomID), data); err != nil {
		logrus.WithError(err).WithField("room_id", event.RoomID).Warn("nats publish failed, delivering locally")
		b.local.Publish(event)
	}
}

// Close unsubscribes and drains the connection
func (b *NATSBus) Close() error {
	if b.sub != nil {
		if err := b.sub.Unsubscribe(); err != nil {
			logrus.WithError(err).Debug("nats unsubscribe failed")
		}
	}
	return b.conn.Drain()
}
