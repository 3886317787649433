package hub

import (
	"context"

	"github.com/sirupsen/logrus"

	"cherryvm/vmhub/internal/vmid"
	"cherryvm/vmhub/internal/vmmodel"
)

// Orchestrator is the single entry point for lifecycle events. It forwards
// each one to the three scope managers per the routing table in §4.5 of the
// design: machine scope (direct followers), account scope (linked users),
// and global scope (everyone with VIEW_ALL_VMS). It owns no subscription
// state itself — that lives in the scopes — only their lifecycle.
type Orchestrator struct {
	Machine *Scope[vmid.MachineID]
	Account *Scope[vmid.UserID]
	Global  *Scope[struct{}]
	Logger  *logrus.Entry
}

// StartAllBroadcasts starts every scope's broadcast loops. Call once at
// process start, after the orchestrator is fully constructed; never as a
// side effect of importing a package.
func (o *Orchestrator) StartAllBroadcasts(ctx context.Context) {
	o.Machine.StartBroadcasts(ctx)
	o.Account.StartBroadcasts(ctx)
	o.Global.StartBroadcasts(ctx)
}

// StopAllBroadcasts signals every scope's loops to stop at their next cycle
// boundary. Call once at shutdown.
func (o *Orchestrator) StopAllBroadcasts() {
	o.Machine.StopBroadcasts()
	o.Account.StopBroadcasts()
	o.Global.StopBroadcasts()
}

// OnMachineCreate notifies the account scope (for the machine's linked
// users) and the global scope; a freshly created machine has no per-machine
// followers yet.
func (o *Orchestrator) OnMachineCreate(ctx context.Context, provider PayloadProvider, mid vmid.MachineID) {
	payload, err := provider.StaticPayload(ctx, mid)
	if err != nil {
		return
	}
	o.Account.SendByMachine(ctx, mid, vmmodel.TypeCreate, payload)
	o.Global.SendByMachine(ctx, mid, vmmodel.TypeCreate, payload)
}

// OnMachineDelete notifies all three scopes. linkedUsers must be captured by
// the caller before the underlying resource was removed — resolving it
// after the fact would return nothing.
func (o *Orchestrator) OnMachineDelete(ctx context.Context, mid vmid.MachineID, linkedUsers []vmid.UserID) {
	body := vmmodel.LifecycleBody{UUID: mid.String(), Error: nil}
	o.Machine.SendByMachine(ctx, mid, vmmodel.TypeDelete, body)
	o.Account.SendByKeys(linkedUsers, vmmodel.TypeDelete, body)
	o.Global.SendByKeys([]struct{}{}, vmmodel.TypeDelete, body)
}

// OnMachineModify re-sends the static payload to every scope's followers of mid.
func (o *Orchestrator) OnMachineModify(ctx context.Context, provider PayloadProvider, mid vmid.MachineID) {
	payload, err := provider.StaticPayload(ctx, mid)
	if err != nil {
		return
	}
	o.Logger.WithField("machine_id", mid.String()).Debug("re-sent static payload after modify")
	o.Machine.SendByMachine(ctx, mid, vmmodel.TypeDataStatic, payload)
	o.Account.SendByMachine(ctx, mid, vmmodel.TypeDataStatic, payload)
	o.Global.SendByMachine(ctx, mid, vmmodel.TypeDataStatic, payload)
}

func (o *Orchestrator) dispatchLifecycle(ctx context.Context, mid vmid.MachineID, msgType vmmodel.MessageType, errMsg *string) {
	body := vmmodel.LifecycleBody{UUID: mid.String(), Error: errMsg}
	o.Machine.SendByMachine(ctx, mid, msgType, body)
	o.Account.SendByMachine(ctx, mid, msgType, body)
	o.Global.SendByMachine(ctx, mid, msgType, body)
}

func (o *Orchestrator) OnMachineBootupStart(ctx context.Context, mid vmid.MachineID) {
	o.dispatchLifecycle(ctx, mid, vmmodel.TypeBootupStart, nil)
}

func (o *Orchestrator) OnMachineBootupSuccess(ctx context.Context, mid vmid.MachineID) {
	o.dispatchLifecycle(ctx, mid, vmmodel.TypeBootupSuccess, nil)
}

func (o *Orchestrator) OnMachineBootupFail(ctx context.Context, mid vmid.MachineID, reason string) {
	o.dispatchLifecycle(ctx, mid, vmmodel.TypeBootupFail, &reason)
}

func (o *Orchestrator) OnMachineShutdownStart(ctx context.Context, mid vmid.MachineID) {
	o.dispatchLifecycle(ctx, mid, vmmodel.TypeShutdownStart, nil)
}

func (o *Orchestrator) OnMachineShutdownSuccess(ctx context.Context, mid vmid.MachineID) {
	o.dispatchLifecycle(ctx, mid, vmmodel.TypeShutdownSuccess, nil)
}

func (o *Orchestrator) OnMachineShutdownFail(ctx context.Context, mid vmid.MachineID, reason string) {
	o.dispatchLifecycle(ctx, mid, vmmodel.TypeShutdownFail, &reason)
}
