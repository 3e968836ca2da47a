package rpc

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/sledctl/sledctl/instance"
	"github.com/sledctl/sledctl/nexus"
	"github.com/sledctl/sledctl/sledagent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Shared embedded NATS server for all rpc tests, started once in
// TestMain.
var sharedNATSURL string

func TestMain(m *testing.M) {
	ns, err := server.NewServer(&server.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create embedded NATS server: %v\n", err)
		os.Exit(1)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		fmt.Fprintln(os.Stderr, "Embedded NATS server failed to start")
		os.Exit(1)
	}
	sharedNATSURL = ns.ClientURL()

	code := m.Run()
	ns.Shutdown()
	os.Exit(code)
}

func connectTest(t *testing.T) *nats.Conn {
	t.Helper()
	nc, err := Connect(sharedNATSURL, "")
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}

// wireUp runs a full in-process cluster over NATS: a nexus controller
// serving notify + registration, and one sled agent in the given sim
// mode serving instance_ensure. Returns the controller, the agent,
// and the sled id.
func wireUp(t *testing.T, mode sledagent.Mode) (*nexus.Controller, *sledagent.SledAgent, uuid.UUID) {
	t.Helper()

	nexusConn := connectTest(t)
	sledConn := connectTest(t)

	controller, err := nexus.NewController()
	require.NoError(t, err)

	notifySub, err := ServeController(nexusConn, controller.NotifyInstanceUpdated)
	require.NoError(t, err)
	t.Cleanup(func() { notifySub.Unsubscribe() })

	registerSub, err := ServeRegister(nexusConn, func(sledID uuid.UUID, address string) error {
		_, err := controller.RegisterSled(sledID, address, NewSledClient(nexusConn, sledID))
		return err
	})
	require.NoError(t, err)
	t.Cleanup(func() { registerSub.Unsubscribe() })

	sledID := uuid.New()
	agent := sledagent.New(sledID, mode, NotifyFunc(sledConn))
	t.Cleanup(agent.Shutdown)

	ensureSub, err := ServeSledAgent(sledConn, agent, sledID)
	require.NoError(t, err)
	t.Cleanup(func() { ensureSub.Unsubscribe() })

	require.NoError(t, RegisterSelf(sledConn, sledID, "sled-0.local:7000"))

	return controller, agent, sledID
}

// The lifecycle-critical path, end to end over the wire: create an
// instance (nexus -> sled instance_ensure), observe Starting, drive the
// simulated transition, and watch the notify path land Running in the
// registry with a higher generation.
func TestInstanceLifecycleOverNATS(t *testing.T) {
	controller, agent, sledID := wireUp(t, sledagent.ModeAPI)

	_, err := controller.ProjectCreate(nexus.ProjectCreateParams{Name: "prod"})
	require.NoError(t, err)

	inst, err := controller.InstanceCreate(context.Background(), "prod", "vm-1", sledagent.Hardware{VCPUs: 2, MemoryMiB: 1024})
	require.NoError(t, err)
	assert.Equal(t, instance.StateStarting, inst.Runtime.RunState)
	assert.Equal(t, sledID, inst.Runtime.SledID)

	agent.FinishTransition(inst.ID)

	require.Eventually(t, func() bool {
		found, err := controller.InstanceLookup("prod", "vm-1")
		return err == nil && found.Runtime.RunState == instance.StateRunning
	}, 3*time.Second, 10*time.Millisecond)

	found, err := controller.InstanceLookup("prod", "vm-1")
	require.NoError(t, err)
	assert.Greater(t, found.Runtime.Gen, inst.Runtime.Gen)
}

// A reboot issued over the wire produces the exact
// Stopping(reboot=true) -> Starting -> Running sequence, with the
// registry converging on Running via generation-gated notifies.
func TestRebootSequenceOverNATS(t *testing.T) {
	controller, agent, _ := wireUp(t, sledagent.ModeAPI)

	_, err := controller.ProjectCreate(nexus.ProjectCreateParams{Name: "prod"})
	require.NoError(t, err)
	inst, err := controller.InstanceCreate(context.Background(), "prod", "vm-1", sledagent.Hardware{})
	require.NoError(t, err)

	agent.FinishTransition(inst.ID) // Starting -> Running

	rebooted, err := controller.InstanceReboot(context.Background(), "prod", "vm-1")
	require.NoError(t, err)
	assert.Equal(t, instance.StateStopping, rebooted.Runtime.RunState)
	assert.True(t, rebooted.Runtime.RebootInProgress)

	agent.FinishTransition(inst.ID) // Stopping -> Stopped -> Starting (reboot continues)
	agent.FinishTransition(inst.ID) // Starting -> Running

	require.Eventually(t, func() bool {
		found, err := controller.InstanceLookup("prod", "vm-1")
		return err == nil &&
			found.Runtime.RunState == instance.StateRunning &&
			!found.Runtime.RebootInProgress
	}, 3*time.Second, 10*time.Millisecond)
}

// A reboot in ModeAuto, driven end to end by the background worker's
// (scaled-down) settle timer: the registry converges back to Running
// through the notify path alone, with no explicit pokes.
func TestModeAutoRebootOverNATS(t *testing.T) {
	oldDelay := sledagent.SettleDelay
	sledagent.SettleDelay = 5 * time.Millisecond
	defer func() { sledagent.SettleDelay = oldDelay }()

	controller, _, _ := wireUp(t, sledagent.ModeAuto)

	_, err := controller.ProjectCreate(nexus.ProjectCreateParams{Name: "prod"})
	require.NoError(t, err)
	inst, err := controller.InstanceCreate(context.Background(), "prod", "vm-1", sledagent.Hardware{})
	require.NoError(t, err)
	assert.Equal(t, instance.StateStarting, inst.Runtime.RunState)

	require.Eventually(t, func() bool {
		found, err := controller.InstanceLookup("prod", "vm-1")
		return err == nil && found.Runtime.RunState == instance.StateRunning
	}, 3*time.Second, 10*time.Millisecond)

	rebooted, err := controller.InstanceReboot(context.Background(), "prod", "vm-1")
	require.NoError(t, err)
	assert.Equal(t, instance.StateStopping, rebooted.Runtime.RunState)
	assert.True(t, rebooted.Runtime.RebootInProgress)

	require.Eventually(t, func() bool {
		found, err := controller.InstanceLookup("prod", "vm-1")
		return err == nil &&
			found.Runtime.RunState == instance.StateRunning &&
			!found.Runtime.RebootInProgress &&
			found.Runtime.Gen > rebooted.Runtime.Gen
	}, 3*time.Second, 10*time.Millisecond)
}

// A malformed reboot target is rejected by the sled and surfaces to
// the caller through the request/reply error payload.
func TestEnsureErrorPropagatesOverNATS(t *testing.T) {
	_, _, sledID := wireUp(t, sledagent.ModeAPI)

	nc := connectTest(t)
	client := NewSledClient(nc, sledID)

	id := uuid.New()
	_, err := client.InstanceEnsure(context.Background(), id, sledagent.Hardware{},
		instance.RuntimeStateRequested{RunState: instance.StateStopped, RebootWanted: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot reboot")
}
