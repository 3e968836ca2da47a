package nexus

import (
	"github.com/google/uuid"
	"github.com/sledctl/sledctl/apierr"
)

// RegisterSled adds a sled to the registry under the id the sled
// announced for itself, and records the client used to reach it. The
// sled is authoritative for its own identity: every runtime state it
// reports carries this id, so the registry must key the sled by it
// rather than assigning one. Re-registration of a known id (a sled
// that restarted) refreshes the address and client without disturbing
// the sled's position in the round-robin rotation. Sleds only ever
// join; there is no unregister.
func (c *Controller) RegisterSled(id uuid.UUID, address string, client SledClient) (*Sled, error) {
	c.mu.Lock()
	_, known := c.sledClients[id]
	if !known {
		c.sledOrder = append(c.sledOrder, id)
	}
	c.sledClients[id] = client
	var ordinal int
	for i, existing := range c.sledOrder {
		if existing == id {
			ordinal = i
			break
		}
	}
	c.mu.Unlock()

	s := &Sled{ID: id, Address: address, ordinal: ordinal}

	txn := c.db.Txn(true)
	if err := txn.Insert("sled", s); err != nil {
		txn.Abort()
		return nil, apierr.Internal("registering sled: %v", err)
	}
	txn.Commit()

	return s.copy(), nil
}

// SledLookup finds a sled by id.
func (c *Controller) SledLookup(id uuid.UUID) (*Sled, error) {
	txn := c.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First("sled", "id", id)
	if err != nil {
		return nil, apierr.Internal("looking up sled: %v", err)
	}
	if raw == nil {
		return nil, apierr.NotFound("sled", id.String())
	}
	return raw.(*Sled).copy(), nil
}

// SledsList returns every registered sled in registration order.
func (c *Controller) SledsList() ([]*Sled, error) {
	c.mu.Lock()
	order := make([]uuid.UUID, len(c.sledOrder))
	copy(order, c.sledOrder)
	c.mu.Unlock()

	txn := c.db.Txn(false)
	defer txn.Abort()

	out := make([]*Sled, 0, len(order))
	for _, id := range order {
		raw, err := txn.First("sled", "id", id)
		if err != nil {
			return nil, apierr.Internal("listing sleds: %v", err)
		}
		if raw != nil {
			out = append(out, raw.(*Sled).copy())
		}
	}
	return out, nil
}
