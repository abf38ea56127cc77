package bpmn

import "github.com/google/uuid"

// NewInstanceID returns a time-ordered instance identifier (UUIDv7, per
// §3.2), so that instances sort by creation order even when compared as
// opaque strings.
func NewInstanceID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		// uuid.NewV7 only fails if the OS entropy source is broken; fall
		// back to a random v4 rather than panic the engine over it.
		return uuid.New()
	}
	return id
}

// NewFiberID returns a fiber identifier, unique within its owning instance.
func NewFiberID() uuid.UUID {
	return uuid.New()
}

// NewIncidentID returns an incident identifier.
func NewIncidentID() uuid.UUID {
	return uuid.New()
}
