package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"serverstf/internal/domain/server"
	"serverstf/internal/shared/logger"
)

// EventKind discriminates notifier events.
type EventKind int

const (
	// EventServer signals that a server's status was rewritten.
	EventServer EventKind = iota + 1
	// EventTag signals that a tag was newly applied to a server.
	EventTag
)

// Event is one change notification. Address identifies the server the
// event is about; Tag is set only for EventTag.
type Event struct {
	Kind    EventKind
	Address server.Address
	Tag     string
}

// NotifierError marks misuse or failure of a notifier.
type NotifierError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *NotifierError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("notifier: %s: %v", e.Reason, e.Err)
	}
	return "notifier: " + e.Reason
}

// Unwrap supports errors.Is and errors.As.
func (e *NotifierError) Unwrap() error { return e.Err }

// Notifier delivers change notifications for watched servers and
// tags, or publishes them. The two modes are exclusive: once any
// watch is established the connection is pinned to subscriber mode
// and publishing fails with a NotifierError. Watches may be added and
// removed at any time; Watch receives events until the context is
// cancelled or the notifier is closed.
type Notifier struct {
	client *redis.Client
	log    logger.Interface

	mu     sync.Mutex
	pubsub *redis.PubSub
	closed bool
}

func newNotifier(client *redis.Client, log logger.Interface) *Notifier {
	return &Notifier{
		client: client,
		log:    log.Named("notifier"),
	}
}

// NotifyServer publishes a status notification for an address.
func (n *Notifier) NotifyServer(ctx context.Context, addr server.Address) error {
	return n.publish(ctx, channelServer(addr), addr)
}

// NotifyTag publishes a newly-applied notification for a tag.
func (n *Notifier) NotifyTag(ctx context.Context, tag string, addr server.Address) error {
	return n.publish(ctx, channelTag(tag), addr)
}

func (n *Notifier) publish(ctx context.Context, channel string, addr server.Address) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return &NotifierError{Reason: "publish on closed notifier"}
	}
	if n.pubsub != nil {
		return &NotifierError{Reason: "publish on a watching notifier"}
	}
	if err := n.client.Publish(ctx, channel, addr.String()).Err(); err != nil {
		return &NotifierError{Reason: "failed to publish to " + channel, Err: err}
	}
	return nil
}

// WatchServer subscribes to status notifications for an address.
func (n *Notifier) WatchServer(ctx context.Context, addr server.Address) error {
	return n.subscribe(ctx, channelServer(addr))
}

// UnwatchServer removes a server watch. Unwatching an address that
// was never watched is a no-op.
func (n *Notifier) UnwatchServer(ctx context.Context, addr server.Address) error {
	return n.unsubscribe(ctx, channelServer(addr))
}

// WatchTag subscribes to newly-applied notifications for a tag.
func (n *Notifier) WatchTag(ctx context.Context, tag string) error {
	return n.subscribe(ctx, channelTag(tag))
}

// UnwatchTag removes a tag watch.
func (n *Notifier) UnwatchTag(ctx context.Context, tag string) error {
	return n.unsubscribe(ctx, channelTag(tag))
}

func (n *Notifier) subscribe(ctx context.Context, channel string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return &NotifierError{Reason: "subscribe on closed notifier"}
	}
	if n.pubsub == nil {
		// The first watch pins the connection into subscriber mode.
		n.pubsub = n.client.Subscribe(ctx)
	}
	if err := n.pubsub.Subscribe(ctx, channel); err != nil {
		return &NotifierError{Reason: "failed to subscribe to " + channel, Err: err}
	}
	return nil
}

func (n *Notifier) unsubscribe(ctx context.Context, channel string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed || n.pubsub == nil {
		return nil
	}
	if err := n.pubsub.Unsubscribe(ctx, channel); err != nil {
		return &NotifierError{Reason: "failed to unsubscribe from " + channel, Err: err}
	}
	return nil
}

// Watch blocks until the next event on any watched channel, or
// indefinitely when nothing is watched yet. It returns the context
// error on cancellation. Messages on unrecognised or malformed
// channels are logged and skipped.
func (n *Notifier) Watch(ctx context.Context) (Event, error) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return Event{}, &NotifierError{Reason: "watch on closed notifier"}
	}
	if n.pubsub == nil {
		n.pubsub = n.client.Subscribe(ctx)
	}
	pubsub := n.pubsub
	n.mu.Unlock()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return Event{}, ctx.Err()
			}
			return Event{}, &NotifierError{Reason: "failed to receive notification", Err: err}
		}
		event, ok := n.decode(msg)
		if !ok {
			continue
		}
		return event, nil
	}
}

func (n *Notifier) decode(msg *redis.Message) (Event, bool) {
	kind, subject, ok := parseChannel(msg.Channel)
	if !ok {
		n.log.Warnw("notification on unrecognised channel", "channel", msg.Channel)
		return Event{}, false
	}
	addr, err := server.ParseAddress(msg.Payload)
	if err != nil {
		n.log.Warnw("malformed notification payload",
			"channel", msg.Channel,
			"payload", msg.Payload,
		)
		return Event{}, false
	}
	event := Event{Kind: kind, Address: addr}
	if kind == EventTag {
		event.Tag = subject
	} else if subject != addr.String() {
		n.log.Warnw("notification channel and payload disagree",
			"channel", msg.Channel,
			"payload", msg.Payload,
		)
		return Event{}, false
	}
	return event, true
}

// Close releases the pub/sub connection. Close is idempotent; a
// blocked Watch returns with an error.
func (n *Notifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	var err error
	if n.pubsub != nil {
		err = n.pubsub.Close()
	}
	if cerr := n.client.Close(); err == nil {
		err = cerr
	}
	return err
}
