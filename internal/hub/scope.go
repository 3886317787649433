package hub

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"cherryvm/vmhub/internal/registry"
	"cherryvm/vmhub/internal/vmid"
	"cherryvm/vmhub/internal/vmmodel"
)

// BroadcastKind names one of the three periodic dynamic-data loops.
type BroadcastKind string

const (
	BroadcastState       BroadcastKind = "state"
	BroadcastDisks       BroadcastKind = "disks"
	BroadcastConnections BroadcastKind = "connections"
)

// ScopeConfig supplies the three axes the three scope managers differ on:
// the registry key type K, how a machine id resolves to affected keys
// (ResolveMachine, used for event routing) and to the machine set a given
// key cares about (MachinesForKey, used by the broadcast engine), and which
// dynamic payload kinds this scope broadcasts periodically.
type ScopeConfig[K comparable] struct {
	Name string

	// MatchAll is true only for the global scope: every session matches
	// every machine, independent of ResolveMachine/MachinesForKey.
	MatchAll bool

	ResolveMachine func(ctx context.Context, machine vmid.MachineID) ([]K, error)
	MachinesForKey func(ctx context.Context, key K) ([]vmid.MachineID, error)

	BroadcastKinds []BroadcastKind
	Intervals      map[BroadcastKind]time.Duration

	// IncludeConnectionsOnConnect sends DATA_DYNAMIC_CONNECTIONS as the
	// fourth initial-snapshot message even for scopes (global) that do not
	// run a periodic connections broadcast loop.
	IncludeConnectionsOnConnect bool

	Providers PayloadProvider
	Directory MachineDirectory
	Logger    *logrus.Entry
	Metrics   *Metrics
}

// Scope is the generic per-scope manager: a subscription registry plus the
// broadcast loops and event-dispatch logic that operate on it. The three
// concrete scopes (machine, account, global) are each just a Scope
// instantiated with a different K and ScopeConfig.
type Scope[K comparable] struct {
	cfg ScopeConfig[K]
	reg *registry.Registry[K]

	loopMu  sync.Mutex
	running map[BroadcastKind]chan struct{}
}

func NewScope[K comparable](cfg ScopeConfig[K]) *Scope[K] {
	return &Scope[K]{
		cfg:     cfg,
		reg:     registry.New[K](),
		running: make(map[BroadcastKind]chan struct{}),
	}
}

func (sc *Scope[K]) Subscribe(session *Session, key K) {
	sc.reg.Subscribe(session, key)
	if sc.cfg.Metrics != nil {
		sc.cfg.Metrics.Sessions.WithLabelValues(sc.cfg.Name).Inc()
	}
}

func (sc *Scope[K]) Unsubscribe(session *Session) {
	sc.reg.Unsubscribe(session.Key())
	if sc.cfg.Metrics != nil {
		sc.cfg.Metrics.Sessions.WithLabelValues(sc.cfg.Name).Dec()
	}
}

func (sc *Scope[K]) Len() int { return sc.reg.Len() }

// sessionsForMachine resolves which live sessions in this scope are
// interested in machine, for event dispatch.
func (sc *Scope[K]) sessionsForMachine(ctx context.Context, machine vmid.MachineID) []registry.Session {
	if sc.cfg.MatchAll {
		return sc.reg.All()
	}
	keys, err := sc.cfg.ResolveMachine(ctx, machine)
	if err != nil {
		sc.cfg.Logger.WithError(err).Warn("resolve machine to interest keys failed")
		return nil
	}
	return sc.reg.LookupByKeys(keys)
}

// SendByMachine dispatches a lifecycle event to every session in this scope
// interested in machine, resolving linkage live.
func (sc *Scope[K]) SendByMachine(ctx context.Context, machine vmid.MachineID, msgType vmmodel.MessageType, body interface{}) {
	sessions := sc.sessionsForMachine(ctx, machine)
	for _, s := range sessions {
		s.(*Session).EnqueueEssential(msgType, body)
	}
	sc.countDispatch(msgType, len(sessions))
}

// SendByKeys dispatches directly to the sessions subscribed to the given
// keys. Used for on_machine_delete, where the caller must supply linkage
// captured before the underlying resource was removed.
func (sc *Scope[K]) SendByKeys(keys []K, msgType vmmodel.MessageType, body interface{}) {
	var sessions []registry.Session
	if sc.cfg.MatchAll {
		sessions = sc.reg.All()
	} else {
		sessions = sc.reg.LookupByKeys(keys)
	}
	for _, s := range sessions {
		s.(*Session).EnqueueEssential(msgType, body)
	}
	sc.countDispatch(msgType, len(sessions))
}

func (sc *Scope[K]) countDispatch(msgType vmmodel.MessageType, n int) {
	if sc.cfg.Metrics == nil || n == 0 {
		return
	}
	sc.cfg.Metrics.EventsDispatched.WithLabelValues(sc.cfg.Name, string(msgType)).Add(float64(n))
}

// machinesForKey resolves which machines a given registry entry cares
// about, for the broadcast engine.
func (sc *Scope[K]) machinesForKey(ctx context.Context, key K) []vmid.MachineID {
	if sc.cfg.MatchAll {
		machines, err := sc.cfg.Directory.AllMachineUUIDs(ctx)
		if err != nil {
			sc.cfg.Logger.WithError(err).Warn("list all machines failed")
			return nil
		}
		return machines
	}
	machines, err := sc.cfg.MachinesForKey(ctx, key)
	if err != nil {
		sc.cfg.Logger.WithError(err).Warn("resolve key to machines failed")
		return nil
	}
	return machines
}

// InitialSnapshot sends the four-message initial snapshot in the order
// specified: static, state, disks, and (only for scopes configured to)
// connections. Each send is independently failure-isolated.
func (sc *Scope[K]) InitialSnapshot(ctx context.Context, session *Session, key K) {
	machines := sc.machinesForKey(ctx, key)

	func() {
		defer sc.recoverSnapshotSend("static")
		body := sc.cfg.Providers.StaticPayloadsByUUIDs(ctx, machines)
		sc.cfg.Logger.WithField("machines", len(machines)).Debug("sent static snapshot")
		session.EnqueueSnapshot(vmmodel.TypeDataStatic, body)
	}()
	func() {
		defer sc.recoverSnapshotSend("state")
		body := sc.cfg.Providers.StatePayloadsByUUIDs(ctx, machines)
		session.EnqueueSnapshot(vmmodel.TypeDataDynamic, body)
	}()
	func() {
		defer sc.recoverSnapshotSend("disks")
		body := sc.cfg.Providers.DisksPayloadsByUUIDs(ctx, machines)
		session.EnqueueSnapshot(vmmodel.TypeDataDynamicDisks, body)
	}()
	if sc.cfg.IncludeConnectionsOnConnect {
		func() {
			defer sc.recoverSnapshotSend("connections")
			body := sc.cfg.Providers.ConnectionsPayloadsByUUIDs(ctx, machines)
			session.EnqueueSnapshot(vmmodel.TypeDataDynamicConnections, body)
		}()
	}
}

func (sc *Scope[K]) recoverSnapshotSend(kind string) {
	if r := recover(); r != nil {
		sc.cfg.Logger.WithField("payload_kind", kind).Errorf("initial snapshot send panicked: %v", r)
	}
}

// StartBroadcasts launches one goroutine per configured broadcast kind.
// Idempotent: a kind already running is left alone.
func (sc *Scope[K]) StartBroadcasts(ctx context.Context) {
	sc.loopMu.Lock()
	defer sc.loopMu.Unlock()
	for _, kind := range sc.cfg.BroadcastKinds {
		if _, ok := sc.running[kind]; ok {
			continue
		}
		stop := make(chan struct{})
		sc.running[kind] = stop
		interval := sc.cfg.Intervals[kind]
		go sc.runBroadcastLoop(ctx, kind, interval, stop)
	}
}

// StopBroadcasts signals every running loop to stop at its next cycle
// boundary; it does not cancel a pass already in flight.
func (sc *Scope[K]) StopBroadcasts() {
	sc.loopMu.Lock()
	defer sc.loopMu.Unlock()
	for kind, stop := range sc.running {
		close(stop)
		delete(sc.running, kind)
	}
}

func (sc *Scope[K]) runBroadcastLoop(ctx context.Context, kind BroadcastKind, interval time.Duration, stop chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			sc.broadcastPassSafe(ctx, kind)
		}
	}
}

// broadcastPassSafe recovers a panicking pass: per §7 error kind 6, the
// loop must never terminate on a recoverable error, it just retries next tick.
func (sc *Scope[K]) broadcastPassSafe(ctx context.Context, kind BroadcastKind) {
	defer func() {
		if r := recover(); r != nil {
			sc.cfg.Logger.WithField("broadcast_kind", kind).Errorf("broadcast pass panicked: %v", r)
		}
	}()
	sc.broadcastPass(ctx, kind)
}

func (sc *Scope[K]) broadcastPass(ctx context.Context, kind BroadcastKind) {
	entries := sc.reg.Snapshot()
	var dead []registry.SessionKey

	for _, e := range entries {
		session, ok := e.Session.(*Session)
		if !ok || !session.SendCapable() {
			dead = append(dead, e.Session.Key())
			continue
		}

		machines := sc.machinesForKey(ctx, e.Key)
		switch kind {
		case BroadcastState:
			body := sc.cfg.Providers.StatePayloadsByUUIDs(ctx, machines)
			session.EnqueueSnapshot(vmmodel.TypeDataDynamic, body)
		case BroadcastDisks:
			body := sc.cfg.Providers.DisksPayloadsByUUIDs(ctx, machines)
			session.EnqueueSnapshot(vmmodel.TypeDataDynamicDisks, body)
		case BroadcastConnections:
			body := sc.cfg.Providers.ConnectionsPayloadsByUUIDs(ctx, machines)
			session.EnqueueSnapshot(vmmodel.TypeDataDynamicConnections, body)
		}
	}

	sc.reg.Prune(dead)
	if sc.cfg.Metrics != nil {
		sc.cfg.Metrics.BroadcastPasses.WithLabelValues(sc.cfg.Name, string(kind)).Inc()
	}
}
