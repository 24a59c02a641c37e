/*
Package events provides an in-memory event broker for the core's pub/sub
messaging.

The events package implements a lightweight event bus for broadcasting
session and kernel lifecycle events to interested subscribers. It supports
topic-agnostic subscriptions with asynchronous event delivery, enabling loose
coupling between the dispatcher, agent RPC layer, and anything that needs to
react to or report on scheduling activity.

# Architecture

The event system provides non-blocking pub/sub messaging with buffered
channels:

	┌──────────────────── EVENT BROKER ────────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │              Event Broker                   │          │
	│  │  - In-memory message bus                    │          │
	│  │  - Topic-agnostic (all events broadcast)    │          │
	│  │  - Non-blocking publish                     │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          Event Distribution                  │          │
	│  │                                              │          │
	│  │  Publisher → Event Channel (buffer: 100)    │          │
	│  │       ↓                                      │          │
	│  │  Broadcast Loop                              │          │
	│  │       ↓                                      │          │
	│  │  Subscriber Channels (buffer: 50 each)      │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Event Types (pkg/types)            │          │
	│  │                                              │          │
	│  │  Session Events:                            │          │
	│  │    - session.enqueued, session.scheduled    │          │
	│  │    - session.preparing, session.cancelled   │          │
	│  │    - session.started, session.terminating   │          │
	│  │    - session.terminated                     │          │
	│  │                                              │          │
	│  │  Kernel Events:                             │          │
	│  │    - kernel.cancelled, kernel.terminating   │          │
	│  │    - kernel.terminated                      │          │
	│  │                                              │          │
	│  │  Routing Events:                            │          │
	│  │    - route.created                          │          │
	│  │                                              │          │
	│  │  Timer Events:                              │          │
	│  │    - timer.do_schedule, timer.do_check_precond │       │
	│  │    - timer.do_start_session, timer.do_scale │          │
	│  └────────────────────────────────────────────┘           │
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Subscribers                      │          │
	│  │                                              │          │
	│  │  Any broker.Subscribe() caller; the        │          │
	│  │  packages in this tree only publish         │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Event Broker:
  - Central message bus for event distribution
  - Manages subscriber lifecycle
  - Non-blocking publish (buffered channel)
  - Graceful shutdown via stop channel

types.Event:
  - Type: event type (session.scheduled, kernel.terminated, etc.)
  - Timestamp: when event occurred
  - SessionID, KernelID, AgentID: the subject of the event, where applicable
  - Message: human-readable description
  - Metadata: key-value pairs for additional context

Subscriber:
  - Channel that receives *types.Event
  - Buffered (50 events) to handle bursts
  - Created via broker.Subscribe()
  - Closed via broker.Unsubscribe()

# Event Flow

Publish Flow:
 1. Publisher calls broker.Publish(event)
 2. Event added to main event channel (non-blocking)
 3. Broadcast loop receives event
 4. Event sent to all subscriber channels
 5. Subscribers receive event asynchronously
 6. Full subscriber buffers skip (no blocking)

Subscribe Flow:
 1. Subscriber calls broker.Subscribe()
 2. New buffered channel created
 3. Channel registered in subscriber map
 4. Subscriber channel returned
 5. Subscriber receives events via channel
 6. Subscriber processes events in own goroutine

Unsubscribe Flow:
 1. Subscriber calls broker.Unsubscribe(channel)
 2. Channel removed from subscriber map
 3. Channel closed
 4. Subscriber stops receiving events

# Usage

Creating and Starting Broker:

	import "github.com/cuemby/warren/pkg/events"

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

Subscribing to Events:

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			fmt.Printf("Event: %s - %s\n", event.Type, event.Message)
		}
	}()

Publishing Events:

	broker.Publish(&types.Event{
		Type:      types.EventSessionScheduled,
		SessionID: session.ID,
		Message:   "session scheduled",
	})

Filtering Events by Type:

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			switch event.Type {
			case types.EventSessionScheduled:
				handleSessionScheduled(event)
			case types.EventKernelTerminated:
				handleKernelTerminated(event)
			default:
				// Ignore other events
			}
		}
	}()

# Integration Points

This package integrates with:

  - pkg/scheduler: the Dispatcher publishes session lifecycle events
    (session scheduled, cancelled, started)

No package in this tree subscribes to the broker.

# Design Patterns

Non-Blocking Publish:
  - Publish sends to buffered channel
  - Returns immediately (no waiting)
  - Events may be dropped if buffer full
  - Trade-off: throughput over guaranteed delivery

Fan-Out Pattern:
  - Single event broadcast to all subscribers
  - Each subscriber gets own channel
  - Independent processing rates
  - Full buffers skip to prevent blocking

Fire-and-Forget:
  - No acknowledgment from subscribers
  - No retry on delivery failure
  - Simplifies broker implementation
  - Suitable for monitoring, not critical operations

Graceful Shutdown:
  - broker.Stop() signals broadcast loop
  - Events still queued in the event channel are not delivered
  - Subscriber channels remain open
  - Explicit Unsubscribe to close channels

# Limitations

  - In-memory only (no persistence)
  - No event replay or history
  - No guaranteed delivery (best effort)
  - No topic-based filtering (all events broadcast)
  - No priority or ordering guarantees

# Best Practices

Do:
  - Always defer broker.Unsubscribe(sub)
  - Process events asynchronously in goroutine
  - Filter events by type at subscriber
  - Include relevant metadata in events
  - Start broker before publishing events

Don't:
  - Block in subscriber event loop
  - Process events synchronously (blocking)
  - Publish events before broker.Start()
  - Forget to unsubscribe (causes leaks)
  - Rely on event delivery for critical operations
*/
package events
