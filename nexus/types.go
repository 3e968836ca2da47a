package nexus

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sledctl/sledctl/instance"
)

// Project is a namespace for instances. Instance names are unique
// within a project.
type Project struct {
	ID          uuid.UUID
	Name        string
	Description string
	TimeCreated time.Time
	TimeUpdated time.Time
}

func (p *Project) field(name string) (any, error) {
	switch name {
	case "ID":
		return p.ID, nil
	case "Name":
		return p.Name, nil
	default:
		return nil, fmt.Errorf("project has no field %q", name)
	}
}

func (p *Project) copy() *Project {
	cp := *p
	return &cp
}

// Instance is an instance's identity plus its authoritative observed
// runtime state, as last reported by the sled that owns it.
type Instance struct {
	ID        uuid.UUID
	ProjectID uuid.UUID
	Name      string
	Runtime   instance.RuntimeState

	// Desired is the last target requested of the sled on this
	// instance's behalf. It is retained so a reconnecting sled (or a
	// reconciliation pass) can be handed the same target again.
	Desired instance.RuntimeStateRequested
}

func (i *Instance) field(name string) (any, error) {
	switch name {
	case "ID":
		return i.ID, nil
	case "ProjectID":
		return i.ProjectID, nil
	case "Name":
		return i.Name, nil
	default:
		return nil, fmt.Errorf("instance has no field %q", name)
	}
}

func (i *Instance) copy() *Instance {
	cp := *i
	return &cp
}

// Sled is a registered compute server. Sleds join at runtime; they
// are never removed (decommissioning is an operational concern
// handled elsewhere).
type Sled struct {
	ID      uuid.UUID
	Address string
	// ordinal is the sled's position in registration order. It is
	// recorded for reference only; round-robin allocation rotates over
	// Controller.sledOrder and does not read it.
	ordinal int
}

func (s *Sled) field(name string) (any, error) {
	switch name {
	case "ID":
		return s.ID, nil
	default:
		return nil, fmt.Errorf("sled has no field %q", name)
	}
}

func (s *Sled) copy() *Sled {
	cp := *s
	return &cp
}
