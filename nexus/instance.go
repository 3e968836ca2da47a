package nexus

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"
	"github.com/sledctl/sledctl/apierr"
	"github.com/sledctl/sledctl/instance"
	"github.com/sledctl/sledctl/sledagent"
)

// InstanceCreate allocates a sled for a new instance (round-robin by
// sled registration order), builds it with run_state=Creating, gen=1,
// and asks the sled to bring it up; the registry then records the
// runtime state the sled returns. The write transaction is committed
// only after the sled call succeeds, so a failed sled call leaves no
// partial instance, and the instance is never visible in the registry
// as Creating — the write transaction plays the role a saga's
// compensating action would in a distributed implementation.
func (c *Controller) InstanceCreate(ctx context.Context, projectName, name string, hw sledagent.Hardware) (*Instance, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	txn := c.db.Txn(true)
	defer txn.Abort()

	proj, err := c.lookupProjectTxn(txn, projectName)
	if err != nil {
		return nil, err
	}

	if existing, _ := txn.First("instance", "project_name", proj.ID, name); existing != nil {
		return nil, apierr.AlreadyExists("instance", name)
	}

	sledID, client, err := c.nextSled()
	if err != nil {
		return nil, err
	}

	inst := &Instance{
		ID:        uuid.New(),
		ProjectID: proj.ID,
		Name:      name,
		Runtime: instance.RuntimeState{
			RunState:    instance.StateCreating,
			SledID:      sledID,
			Gen:         1,
			TimeUpdated: time.Now(),
		},
		Desired: instance.RuntimeStateRequested{RunState: instance.StateRunning},
	}

	rt, err := client.InstanceEnsure(ctx, inst.ID, hw, inst.Desired)
	if err != nil {
		return nil, apierr.Unavailable("sled %s unreachable: %v", sledID, err)
	}
	inst.Runtime = rt

	if err := txn.Insert("instance", inst); err != nil {
		return nil, apierr.Internal("inserting instance: %v", err)
	}
	txn.Commit()

	return inst.copy(), nil
}

// InstanceLookup finds an instance by (project name, instance name).
func (c *Controller) InstanceLookup(projectName, name string) (*Instance, error) {
	txn := c.db.Txn(false)
	defer txn.Abort()
	_, inst, err := c.lookupInstanceTxn(txn, projectName, name)
	if err != nil {
		return nil, err
	}
	return inst.copy(), nil
}

func (c *Controller) lookupInstanceTxn(txn *memdb.Txn, projectName, name string) (*Project, *Instance, error) {
	proj, err := c.lookupProjectTxn(txn, projectName)
	if err != nil {
		return nil, nil, err
	}
	raw, err := txn.First("instance", "project_name", proj.ID, name)
	if err != nil {
		return nil, nil, apierr.Internal("looking up instance %q: %v", name, err)
	}
	if raw == nil {
		return nil, nil, apierr.NotFound("instance", name)
	}
	return proj, raw.(*Instance), nil
}

// InstancesList returns one page of instances within a project.
func (c *Controller) InstancesList(projectName string, params PageParams) ([]*Instance, error) {
	txn := c.db.Txn(false)
	defer txn.Abort()

	proj, err := c.lookupProjectTxn(txn, projectName)
	if err != nil {
		return nil, err
	}

	it, err := txn.Get("instance", "project_id", proj.ID)
	if err != nil {
		return nil, apierr.Internal("listing instances: %v", err)
	}

	var all []*Instance
	for raw := it.Next(); raw != nil; raw = it.Next() {
		all = append(all, raw.(*Instance))
	}

	page := paginate(all, params,
		func(i *Instance) string { return i.Name },
		func(i *Instance) string { return i.ID.String() },
	)

	out := make([]*Instance, len(page))
	for i, inst := range page {
		out[i] = inst.copy()
	}
	return out, nil
}

// ensureTarget looks up an instance, forwards target to its sled, and
// applies the synchronously-returned current state to the registry
// before returning it. This is the shared body of Start/Stop/Reboot.
func (c *Controller) ensureTarget(ctx context.Context, projectName, name string, target instance.RuntimeStateRequested) (*Instance, error) {
	txn := c.db.Txn(true)
	defer txn.Abort()

	_, inst, err := c.lookupInstanceTxn(txn, projectName, name)
	if err != nil {
		return nil, err
	}
	updated := inst.copy()

	client, ok := c.clientFor(inst.Runtime.SledID)
	if !ok {
		return nil, apierr.Unavailable("sled %s is not reachable", inst.Runtime.SledID)
	}

	rt, err := client.InstanceEnsure(ctx, inst.ID, sledagent.Hardware{}, target)
	if err != nil {
		return nil, apierr.Unavailable("sled %s unreachable: %v", inst.Runtime.SledID, err)
	}

	updated.Desired = target
	if rt.Gen > updated.Runtime.Gen {
		updated.Runtime = rt
	}

	if err := txn.Insert("instance", updated); err != nil {
		return nil, apierr.Internal("updating instance: %v", err)
	}
	txn.Commit()

	return updated.copy(), nil
}

// InstanceStart issues target Running.
func (c *Controller) InstanceStart(ctx context.Context, projectName, name string) (*Instance, error) {
	return c.ensureTarget(ctx, projectName, name, instance.RuntimeStateRequested{RunState: instance.StateRunning})
}

// InstanceStop issues target Stopped.
func (c *Controller) InstanceStop(ctx context.Context, projectName, name string) (*Instance, error) {
	return c.ensureTarget(ctx, projectName, name, instance.RuntimeStateRequested{RunState: instance.StateStopped})
}

// InstanceReboot issues target {Running, reboot_wanted=true}.
func (c *Controller) InstanceReboot(ctx context.Context, projectName, name string) (*Instance, error) {
	return c.ensureTarget(ctx, projectName, name, instance.RuntimeStateRequested{RunState: instance.StateRunning, RebootWanted: true})
}

// InstanceDestroy issues target Destroyed. Because Destroyed is a
// stopped variant, the sled takes the instance through Stopping first;
// the registry entry is only removed once NotifyInstanceUpdated
// reports Destroyed has actually been reached.
func (c *Controller) InstanceDestroy(ctx context.Context, projectName, name string) (*Instance, error) {
	return c.ensureTarget(ctx, projectName, name, instance.RuntimeStateRequested{RunState: instance.StateDestroyed})
}

// NotifyInstanceUpdated applies a state update reported asynchronously
// by a sled controller. Updates with gen <= the stored generation are
// discarded (possibly-stale or duplicate at-least-once redelivery). On
// acceptance, if the new state is Destroyed and nothing has since
// superseded the destroy request, the instance is removed from the
// registry.
func (c *Controller) NotifyInstanceUpdated(instanceID uuid.UUID, newState instance.RuntimeState) error {
	txn := c.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First("instance", "id", instanceID)
	if err != nil {
		return apierr.Internal("looking up instance %s: %v", instanceID, err)
	}
	if raw == nil {
		slog.Debug("notify_instance_updated for unknown instance, discarding", "instanceId", instanceID)
		return nil
	}
	inst := raw.(*Instance)

	if newState.Gen <= inst.Runtime.Gen {
		slog.Debug("discarding stale instance update", "instanceId", instanceID, "gen", newState.Gen, "storedGen", inst.Runtime.Gen)
		return nil
	}

	if newState.RunState == instance.StateDestroyed && inst.Desired.RunState == instance.StateDestroyed {
		if err := txn.Delete("instance", inst); err != nil {
			return apierr.Internal("removing destroyed instance: %v", err)
		}
		txn.Commit()
		return nil
	}

	updated := inst.copy()
	updated.Runtime = newState
	if err := txn.Insert("instance", updated); err != nil {
		return apierr.Internal("applying instance update: %v", err)
	}
	txn.Commit()
	return nil
}
