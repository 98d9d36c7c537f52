package pubsub

// EventType tags the kind of change an event describes.
type EventType string

const (
	// CreatedEvent signals a new entity (attention raised, agent added).
	CreatedEvent EventType = "created"
	// UpdatedEvent signals a state change on an existing entity.
	UpdatedEvent EventType = "updated"
	// DeletedEvent signals removal (attention dismissed, panel closed).
	DeletedEvent EventType = "deleted"
	// AnnouncedEvent carries a user-facing announcement string.
	AnnouncedEvent EventType = "announced"
)

// Event pairs a type tag with its payload.
type Event[T any] struct {
	Type    EventType
	Payload T
}
