package workqueue

import (
	"context"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog"

	"github.com/sandgraph/sandgraph/pkg/graph"
)

// Names holds the resolved durable queue names. Queue names are fixed;
// an optional deployment prefix keeps several installations apart on a
// shared broker.
type Names struct {
	GraphProperty      string
	LongRunningProcess string
}

// ResolveNames applies prefix to the well-known queue names. An empty
// prefix returns the base names unchanged.
func ResolveNames(prefix string) Names {
	n := Names{
		GraphProperty:      "graphProperty",
		LongRunningProcess: "longRunningProcess",
	}
	if prefix != "" {
		n.GraphProperty = prefix + "-" + n.GraphProperty
		n.LongRunningProcess = prefix + "-" + n.LongRunningProcess
	}
	return n
}

// Queue is the durable at-least-once transport for work messages.
type Queue interface {
	Push(ctx context.Context, queue string, payload []byte) error
}

// Broadcaster delivers a serialized event envelope to connected clients.
// Delivery is best-effort; a broadcaster must not fail the caller for a
// slow or absent consumer.
type Broadcaster interface {
	Broadcast(ctx context.Context, message []byte) error
}

// TransportError wraps a queue or broadcast failure with the destination
// it was bound for.
type TransportError struct {
	Destination string
	Err         error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("workqueue: push to %s failed: %v", e.Destination, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// GraphPropertyMessage is the durable work item emitted for every graph
// mutation that downstream processors should react to. Either the vertex
// or the edge id is set, never both.
type GraphPropertyMessage struct {
	VertexID         string `cbor:"graphVertexId,omitempty"`
	EdgeID           string `cbor:"graphEdgeId,omitempty"`
	PropertyKey      string `cbor:"propertyKey,omitempty"`
	PropertyName     string `cbor:"propertyName,omitempty"`
	WorkspaceID      string `cbor:"workspaceId,omitempty"`
	VisibilitySource string `cbor:"visibilitySource,omitempty"`
}

// Bus publishes change notifications: durable work messages on the
// queue, then real-time scoped broadcasts. The graph is flushed before
// any message is enqueued so a consumer dequeuing immediately reads the
// state the message describes.
type Bus struct {
	graph graph.Graph
	queue Queue
	rt    Broadcaster
	names Names
	log   zerolog.Logger
}

func NewBus(g graph.Graph, q Queue, rt Broadcaster, names Names, log zerolog.Logger) *Bus {
	return &Bus{graph: g, queue: q, rt: rt, names: names, log: log}
}

// PushGraphProperty enqueues a property-level change for el and
// broadcasts the matching real-time event.
func (b *Bus) PushGraphProperty(ctx context.Context, el graph.Element, key, name, workspaceID, visibilitySource string, scope *Permissions) error {
	msg := GraphPropertyMessage{
		PropertyKey:      key,
		PropertyName:     name,
		WorkspaceID:      workspaceID,
		VisibilitySource: visibilitySource,
	}
	ev := PropertyChangeEvent{WorkspaceID: workspaceID, Scope: scope}
	switch el.(type) {
	case graph.Edge:
		msg.EdgeID = el.ID()
		ev.EdgeID = el.ID()
	default:
		msg.VertexID = el.ID()
		ev.VertexID = el.ID()
	}
	if err := b.pushMessage(ctx, b.names.GraphProperty, msg); err != nil {
		return err
	}
	return b.Broadcast(ctx, ev)
}

// PushElement enqueues an element-level change with no property
// coordinates, used after hide/unhide and structural mutations.
func (b *Bus) PushElement(ctx context.Context, el graph.Element, workspaceID string, scope *Permissions) error {
	return b.PushGraphProperty(ctx, el, "", "", workspaceID, "", scope)
}

// PushLongRunningProcess enqueues a long-running process state change and
// notifies the owning user.
func (b *Bus) PushLongRunningProcess(ctx context.Context, userID string, process map[string]any) error {
	if err := b.pushMessage(ctx, b.names.LongRunningProcess, process); err != nil {
		return err
	}
	return b.Broadcast(ctx, LongRunningProcessChangeEvent{UserID: userID, Process: process})
}

func (b *Bus) pushMessage(ctx context.Context, queue string, msg any) error {
	if err := b.graph.Flush(ctx); err != nil {
		return fmt.Errorf("workqueue: flush before push: %w", err)
	}
	payload, err := cbor.Marshal(msg)
	if err != nil {
		return fmt.Errorf("workqueue: encode message for %s: %w", queue, err)
	}
	if err := b.queue.Push(ctx, queue, payload); err != nil {
		return &TransportError{Destination: queue, Err: err}
	}
	return nil
}

// Broadcast serializes ev and hands it to the real-time transport.
// Broadcast failures are logged, not returned: a dropped notification
// must never fail the graph mutation that preceded it.
func (b *Bus) Broadcast(ctx context.Context, ev Event) error {
	message, err := ev.MarshalEvent()
	if err != nil {
		return fmt.Errorf("workqueue: encode %s event: %w", ev.EventType(), err)
	}
	if err := b.rt.Broadcast(ctx, message); err != nil {
		b.log.Warn().Err(err).Str("event", ev.EventType()).Msg("broadcast failed")
	}
	return nil
}
