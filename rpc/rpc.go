// Package rpc carries instance-ensure requests from the central
// controller to a sled and state-update notifications back, over NATS
// request/reply subjects with JSON payloads.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sledctl/sledctl/instance"
	"github.com/sledctl/sledctl/sledagent"
)

// instanceEnsureSubjectPrefix is the prefix of the request/reply
// subject a sled listens on for instance_ensure calls. Each sled is
// addressed by its own subject, instanceEnsureSubjectPrefix + "." +
// sledID, so only that sled's instances are reached.
const instanceEnsureSubjectPrefix = "sled.instance.ensure"

// InstanceNotifySubject is the subject a sled publishes
// notify_instance_updated requests to; the central controller
// subscribes here with a queue group so any one of its replicas can
// pick up a given notification.
const InstanceNotifySubject = "nexus.instance.notify"

func instanceEnsureSubject(sledID uuid.UUID) string {
	return fmt.Sprintf("%s.%s", instanceEnsureSubjectPrefix, sledID)
}

type ensureRequest struct {
	InstanceID uuid.UUID                      `json:"instanceId"`
	Hardware   sledagent.Hardware             `json:"hardware"`
	Target     instance.RuntimeStateRequested `json:"target"`
}

type errorPayload struct {
	Error string `json:"error"`
}

// SledClient is a nexus.SledClient implementation that forwards
// instance_ensure calls to a sled over NATS.
type SledClient struct {
	conn   *nats.Conn
	sledID uuid.UUID
}

// NewSledClient builds a SledClient addressed at a specific sled.
func NewSledClient(conn *nats.Conn, sledID uuid.UUID) *SledClient {
	return &SledClient{conn: conn, sledID: sledID}
}

// InstanceEnsure implements nexus.SledClient.
func (c *SledClient) InstanceEnsure(ctx context.Context, instanceID uuid.UUID, hw sledagent.Hardware, target instance.RuntimeStateRequested) (instance.RuntimeState, error) {
	payload, err := json.Marshal(ensureRequest{InstanceID: instanceID, Hardware: hw, Target: target})
	if err != nil {
		return instance.RuntimeState{}, fmt.Errorf("marshal instance_ensure request: %w", err)
	}

	msg, err := c.conn.RequestWithContext(ctx, instanceEnsureSubject(c.sledID), payload)
	if err != nil {
		return instance.RuntimeState{}, fmt.Errorf("instance_ensure request to sled %s: %w", c.sledID, err)
	}

	var errPayload errorPayload
	if err := json.Unmarshal(msg.Data, &errPayload); err == nil && errPayload.Error != "" {
		return instance.RuntimeState{}, fmt.Errorf("sled %s: %s", c.sledID, errPayload.Error)
	}

	var rt instance.RuntimeState
	if err := json.Unmarshal(msg.Data, &rt); err != nil {
		return instance.RuntimeState{}, fmt.Errorf("unmarshal instance_ensure response: %w", err)
	}
	return rt, nil
}

// ServeSledAgent subscribes a SledAgent to its instance_ensure subject
// with a queue group, so at most one subscriber per process answers
// each request.
func ServeSledAgent(conn *nats.Conn, agent *sledagent.SledAgent, sledID uuid.UUID) (*nats.Subscription, error) {
	subject := instanceEnsureSubject(sledID)
	return conn.QueueSubscribe(subject, "sledctl-sled", func(msg *nats.Msg) {
		var req ensureRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			respondError(msg, fmt.Errorf("unmarshal instance_ensure request: %w", err))
			return
		}

		rt, err := agent.InstanceEnsure(context.Background(), req.InstanceID, req.Hardware, req.Target)
		if err != nil {
			respondError(msg, err)
			return
		}

		reply, err := json.Marshal(rt)
		if err != nil {
			respondError(msg, fmt.Errorf("marshal instance_ensure response: %w", err))
			return
		}
		msg.Respond(reply)
	})
}

func respondError(msg *nats.Msg, err error) {
	payload, _ := json.Marshal(errorPayload{Error: err.Error()})
	msg.Respond(payload)
}

type notifyRequest struct {
	InstanceID uuid.UUID             `json:"instanceId"`
	State      instance.RuntimeState `json:"state"`
}

// NotifyFunc adapts a NATS connection into a sledagent.NotifyFunc that
// sends a notify_instance_updated request and waits for the reply. A
// transport failure (no responder, timeout) is returned, so the sled's
// retry queue covers redelivery; the reply body, including any error
// payload from the controller, is not inspected.
func NotifyFunc(conn *nats.Conn) sledagent.NotifyFunc {
	return func(ctx context.Context, instanceID uuid.UUID, state instance.RuntimeState) error {
		payload, err := json.Marshal(notifyRequest{InstanceID: instanceID, State: state})
		if err != nil {
			return fmt.Errorf("marshal notify_instance_updated: %w", err)
		}
		_, err = conn.RequestWithContext(ctx, InstanceNotifySubject, payload)
		if err != nil {
			return fmt.Errorf("notify_instance_updated request: %w", err)
		}
		return nil
	}
}

// ServeController subscribes the central controller to the
// notify_instance_updated subject with a queue group.
func ServeController(conn *nats.Conn, apply func(instanceID uuid.UUID, state instance.RuntimeState) error) (*nats.Subscription, error) {
	return conn.QueueSubscribe(InstanceNotifySubject, "sledctl-nexus", func(msg *nats.Msg) {
		var req notifyRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			respondError(msg, fmt.Errorf("unmarshal notify_instance_updated: %w", err))
			return
		}
		if err := apply(req.InstanceID, req.State); err != nil {
			respondError(msg, err)
			return
		}
		msg.Respond([]byte(`{}`))
	})
}
