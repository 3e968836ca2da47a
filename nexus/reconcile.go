package nexus

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/sledctl/sledctl/apierr"
	"github.com/sledctl/sledctl/sledagent"
)

// ReconcileSled resubmits the last-known desired state for every
// instance the registry believes is owned by sledID. Resubmitting
// matters for a sled that (re)connects, since anything it missed while
// disconnected is not redelivered by the retry queue on the sled side
// (that queue only covers notify_instance_updated, not the reverse
// direction). Sled registration does not call it: the registration
// handler in cmd/nexus only calls RegisterSled.
func (c *Controller) ReconcileSled(ctx context.Context, sledID uuid.UUID, hw sledagent.Hardware) error {
	client, ok := c.clientFor(sledID)
	if !ok {
		return apierr.NotFound("sled", sledID.String())
	}

	txn := c.db.Txn(false)
	it, err := txn.Get("instance", "id")
	txn.Abort()
	if err != nil {
		return err
	}

	var owned []*Instance
	for raw := it.Next(); raw != nil; raw = it.Next() {
		inst := raw.(*Instance)
		if inst.Runtime.SledID == sledID {
			owned = append(owned, inst)
		}
	}

	for _, inst := range owned {
		rt, err := client.InstanceEnsure(ctx, inst.ID, hw, inst.Desired)
		if err != nil {
			slog.Warn("reconcile: sled rejected resubmitted target", "instanceId", inst.ID, "sledId", sledID, "error", err)
			continue
		}
		if rt.Gen > inst.Runtime.Gen {
			if werr := c.NotifyInstanceUpdated(inst.ID, rt); werr != nil {
				slog.Warn("reconcile: failed to persist resubmitted state", "instanceId", inst.ID, "error", werr)
			}
		}
	}
	return nil
}
