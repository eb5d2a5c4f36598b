package bird

import (
	"braces.dev/errtrace"
	evbus "github.com/asaskevich/EventBus"
)

// Event topics. Handlers are called on the goroutine that raised the event,
// mostly the receive loop. They must not block and must not publish or
// subscribe themselves, otherwise the bus deadlocks. Calls into Conn or
// Manager from a handler need their own goroutine.
const (
	// EventConnect fires with no arguments when the backend becomes responsive.
	EventConnect = "connect"
	// EventLogin fires with the bot id when a Manager saw its first connect.
	EventLogin = "login"
	// EventError fires with an error.
	EventError = "error"
	// EventMessage fires with a *MessagePayload.
	EventMessage = "message"
	// EventReady fires with no arguments after the initial sync.
	EventReady = "ready"
	// EventClose fires with the error that closed the connection.
	EventClose = "close"
	// EventHeartbeat fires with the HeartbeatState of every heartbeat frame.
	EventHeartbeat = "heartbeat"
	// EventAvatar fires with every AvatarList batch.
	EventAvatar = "avatar"
)

type emitter struct {
	bus evbus.Bus
}

func newEmitter(bus evbus.Bus) emitter {
	if bus == nil {
		bus = evbus.New()
	}
	return emitter{bus: bus}
}

// On subscribes fn to topic. The signature of fn has to match the arguments
// documented for the topic.
func (e emitter) On(topic string, fn any) error {
	return errtrace.Wrap(e.bus.Subscribe(topic, fn))
}

// Once subscribes fn to the next event of topic.
func (e emitter) Once(topic string, fn any) error {
	return errtrace.Wrap(e.bus.SubscribeOnce(topic, fn))
}

// Off removes fn from topic.
func (e emitter) Off(topic string, fn any) error {
	return errtrace.Wrap(e.bus.Unsubscribe(topic, fn))
}

func (e emitter) emit(topic string, args ...any) {
	if !e.bus.HasCallback(topic) {
		return
	}
	e.bus.Publish(topic, args...)
}
