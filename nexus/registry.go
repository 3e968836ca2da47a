// Package nexus implements the central controller / rack manager: the
// authoritative in-memory registry of projects, instances, and sleds,
// plus the reconciliation logic that drives desired state out to sled
// controllers and applies the state updates they report back.
package nexus

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"
	"github.com/sledctl/sledctl/instance"
	"github.com/sledctl/sledctl/sledagent"
)

// SledClient is the central controller's view of a sled: the only
// operation it performs against a sled is an idempotent ensure-target
// request. A *sledagent.SledAgent satisfies this directly for
// in-process tests; a NATS-backed implementation is used in
// production (see cmd/nexus).
type SledClient interface {
	InstanceEnsure(ctx context.Context, instanceID uuid.UUID, hw sledagent.Hardware, target instance.RuntimeStateRequested) (instance.RuntimeState, error)
}

// Controller is the central registry of projects, instances, and
// sleds. Each of the three resource kinds lives in its own memdb
// table within a single database; memdb's own write-transaction
// serialization means no two registries are ever locked
// simultaneously and lock ordering never arises.
type Controller struct {
	db *memdb.MemDB

	mu          sync.Mutex
	sledOrder   []uuid.UUID
	sledClients map[uuid.UUID]SledClient
	rrNext      int
}

// NewController creates an empty central registry.
func NewController() (*Controller, error) {
	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, err
	}
	return &Controller{
		db:          db,
		sledClients: make(map[uuid.UUID]SledClient),
	}, nil
}

// nextSled picks the next sled in round-robin rotation by
// registration order, a deterministic policy stable under replay.
func (c *Controller) nextSled() (uuid.UUID, SledClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.sledOrder) == 0 {
		return uuid.Nil, nil, errNoSleds()
	}
	id := c.sledOrder[c.rrNext%len(c.sledOrder)]
	c.rrNext++
	return id, c.sledClients[id], nil
}

func (c *Controller) clientFor(sledID uuid.UUID) (SledClient, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	client, ok := c.sledClients[sledID]
	return client, ok
}
