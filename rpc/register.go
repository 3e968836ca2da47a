package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// RegisterSubject is the subject a sled agent calls on startup to join
// the central controller's sled registry.
const RegisterSubject = "nexus.sled.register"

type registerRequest struct {
	SledID  uuid.UUID `json:"sledId"`
	Address string    `json:"address"`
}

type registerResponse struct {
	SledID uuid.UUID `json:"sledId"`
}

// RegisterSelf announces sledID/address to the central controller and
// waits for acknowledgement. It is called once at sled-agent startup.
func RegisterSelf(conn *nats.Conn, sledID uuid.UUID, address string) error {
	payload, err := json.Marshal(registerRequest{SledID: sledID, Address: address})
	if err != nil {
		return fmt.Errorf("marshal sled registration: %w", err)
	}
	msg, err := conn.Request(RegisterSubject, payload, requestTimeout)
	if err != nil {
		return fmt.Errorf("sled registration request: %w", err)
	}

	var errPayload errorPayload
	if err := json.Unmarshal(msg.Data, &errPayload); err == nil && errPayload.Error != "" {
		return fmt.Errorf("nexus rejected registration: %s", errPayload.Error)
	}
	return nil
}

// RegisterHandler is the signature the central controller supplies to
// ServeRegister: it registers a new sled, addressed by a SledClient the
// caller is responsible for constructing (NewSledClient(conn, sledID)).
type RegisterHandler func(sledID uuid.UUID, address string) error

// ServeRegister subscribes to RegisterSubject on behalf of the central
// controller.
func ServeRegister(conn *nats.Conn, handle RegisterHandler) (*nats.Subscription, error) {
	return conn.QueueSubscribe(RegisterSubject, "sledctl-nexus", func(msg *nats.Msg) {
		var req registerRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			respondError(msg, fmt.Errorf("unmarshal sled registration: %w", err))
			return
		}
		if err := handle(req.SledID, req.Address); err != nil {
			respondError(msg, err)
			return
		}
		reply, _ := json.Marshal(registerResponse{SledID: req.SledID})
		msg.Respond(reply)
	})
}
