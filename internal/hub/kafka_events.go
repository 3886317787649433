package hub

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"cherryvm/vmhub/internal/vmid"
	"cherryvm/vmhub/pkg/kafka"
)

// linkedUserIDs reads the pre-captured linked_user_ids the producer embeds
// on a delete event. The management service resolves this linkage before it
// removes the machine; reading it live from the hypervisor directory after
// the fact would return empty, since the resource is already gone.
func linkedUserIDs(event kafka.Event) []vmid.UserID {
	raw, _ := event.Data["linked_user_ids"].([]interface{})
	ids := make([]vmid.UserID, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		uid, err := vmid.NewUserID(s)
		if err != nil {
			continue
		}
		ids = append(ids, uid)
	}
	return ids
}

// Lifecycle event type tags carried on the Kafka topic. Mutating control
// actions (start/stop a machine, create/delete it) happen in a separate
// management service; this hub only reacts to the events it publishes.
const (
	kafkaEventMachineCreate        = "machine.create"
	kafkaEventMachineDelete        = "machine.delete"
	kafkaEventMachineModify        = "machine.modify"
	kafkaEventMachineBootupStart   = "machine.bootup.start"
	kafkaEventMachineBootupSuccess = "machine.bootup.success"
	kafkaEventMachineBootupFail    = "machine.bootup.fail"
	kafkaEventMachineShutdownStart = "machine.shutdown.start"
	kafkaEventShutdownSuccess      = "machine.shutdown.success"
	kafkaEventShutdownFail         = "machine.shutdown.fail"
)

// LifecycleEventHandler adapts decoded Kafka events into Orchestrator calls.
// It implements kafka.EventHandler.
type LifecycleEventHandler struct {
	Orchestrator *Orchestrator
	Provider     PayloadProvider
	Logger       *logrus.Entry
}

func NewLifecycleEventHandler(o *Orchestrator, provider PayloadProvider, logger *logrus.Entry) *LifecycleEventHandler {
	return &LifecycleEventHandler{Orchestrator: o, Provider: provider, Logger: logger}
}

func (h *LifecycleEventHandler) HandleEvent(event kafka.Event) error {
	machineIDStr, _ := event.Data["machine_id"].(string)
	if machineIDStr == "" {
		return fmt.Errorf("event %s missing machine_id", event.Type)
	}
	mid, err := vmid.NewMachineID(machineIDStr)
	if err != nil {
		return fmt.Errorf("event %s has invalid machine_id: %w", event.Type, err)
	}

	ctx := context.Background()

	switch event.Type {
	case kafkaEventMachineCreate:
		h.Orchestrator.OnMachineCreate(ctx, h.Provider, mid)
	case kafkaEventMachineModify:
		h.Orchestrator.OnMachineModify(ctx, h.Provider, mid)
	case kafkaEventMachineDelete:
		h.Orchestrator.OnMachineDelete(ctx, mid, linkedUserIDs(event))
	case kafkaEventMachineBootupStart:
		h.Orchestrator.OnMachineBootupStart(ctx, mid)
	case kafkaEventMachineBootupSuccess:
		h.Orchestrator.OnMachineBootupSuccess(ctx, mid)
	case kafkaEventMachineBootupFail:
		reason, _ := event.Data["reason"].(string)
		h.Orchestrator.OnMachineBootupFail(ctx, mid, reason)
	case kafkaEventMachineShutdownStart:
		h.Orchestrator.OnMachineShutdownStart(ctx, mid)
	case kafkaEventShutdownSuccess:
		h.Orchestrator.OnMachineShutdownSuccess(ctx, mid)
	case kafkaEventShutdownFail:
		reason, _ := event.Data["reason"].(string)
		h.Orchestrator.OnMachineShutdownFail(ctx, mid, reason)
	default:
		h.Logger.WithField("event_type", event.Type).Debug("ignoring unrecognized event type")
	}
	return nil
}
