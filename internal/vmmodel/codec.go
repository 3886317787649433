package vmmodel

import (
	"fmt"

	"github.com/google/uuid"
)

// MessageType tags a WireEnvelope's body shape.
type MessageType string

const (
	TypeCreate                  MessageType = "CREATE"
	TypeDelete                  MessageType = "DELETE"
	TypeBootupStart              MessageType = "BOOTUP_START"
	TypeBootupSuccess            MessageType = "BOOTUP_SUCCESS"
	TypeBootupFail               MessageType = "BOOTUP_FAIL"
	TypeShutdownStart            MessageType = "SHUTDOWN_START"
	TypeShutdownSuccess          MessageType = "SHUTDOWN_SUCCESS"
	TypeShutdownFail             MessageType = "SHUTDOWN_FAIL"
	TypeDataStatic               MessageType = "DATA_STATIC"
	TypeDataDynamic              MessageType = "DATA_DYNAMIC"
	TypeDataDynamicDisks         MessageType = "DATA_DYNAMIC_DISKS"
	TypeDataDynamicConnections   MessageType = "DATA_DYNAMIC_CONNECTIONS"
)

// WireEnvelope is the JSON frame sent to every client: {uuid, type, body}.
// uuid is generated fresh for every envelope, never cached or reused.
type WireEnvelope struct {
	UUID string      `json:"uuid"`
	Type MessageType `json:"type"`
	Body interface{} `json:"body"`
}

// LifecycleBody is the body shape for DELETE/BOOTUP_*/SHUTDOWN_* messages:
// {uuid: <machine_id>, error: null|<string>}.
type LifecycleBody struct {
	UUID  string  `json:"uuid"`
	Error *string `json:"error"`
}

// NewEnvelope builds a WireEnvelope with a fresh message uuid.
func NewEnvelope(msgType MessageType, body interface{}) WireEnvelope {
	return WireEnvelope{
		UUID: uuid.NewString(),
		Type: msgType,
		Body: body,
	}
}

// NewLifecycleOK builds the body for a non-failure lifecycle message.
func NewLifecycleOK(machineID fmt.Stringer) LifecycleBody {
	return LifecycleBody{UUID: machineID.String(), Error: nil}
}

// NewLifecycleFail builds the body for a *_FAIL lifecycle message.
func NewLifecycleFail(machineID fmt.Stringer, errMsg string) LifecycleBody {
	return LifecycleBody{UUID: machineID.String(), Error: &errMsg}
}
