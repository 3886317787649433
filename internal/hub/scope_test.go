package hub

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"cherryvm/vmhub/internal/vmid"
	"cherryvm/vmhub/internal/vmmodel"
)

// fakeProvider serves canned payloads and records how many times each
// aggregate fetch was called, standing in for the hypervisor adapter.
type fakeProvider struct {
	staticCalls int
	stateCalls  int
	disksCalls  int
	connCalls   int
}

func (p *fakeProvider) StaticPayloadsByUUIDs(_ context.Context, machines []vmid.MachineID) vmmodel.StaticByMachine {
	p.staticCalls++
	out := make(vmmodel.StaticByMachine, len(machines))
	for _, m := range machines {
		out[m] = vmmodel.MachinePropertiesPayload{MachineID: m}
	}
	return out
}

func (p *fakeProvider) StatePayloadsByUUIDs(_ context.Context, machines []vmid.MachineID) vmmodel.StateByMachine {
	p.stateCalls++
	out := make(vmmodel.StateByMachine, len(machines))
	for _, m := range machines {
		out[m] = vmmodel.MachineStatePayload{MachineID: m}
	}
	return out
}

func (p *fakeProvider) DisksPayloadsByUUIDs(_ context.Context, machines []vmid.MachineID) vmmodel.DisksByMachine {
	p.disksCalls++
	out := make(vmmodel.DisksByMachine, len(machines))
	for _, m := range machines {
		out[m] = vmmodel.MachineDisksPayload{MachineID: m}
	}
	return out
}

func (p *fakeProvider) ConnectionsPayloadsByUUIDs(_ context.Context, machines []vmid.MachineID) vmmodel.ConnectionsByMachine {
	p.connCalls++
	return make(vmmodel.ConnectionsByMachine, len(machines))
}

func (p *fakeProvider) StaticPayload(_ context.Context, machine vmid.MachineID) (vmmodel.MachinePropertiesPayload, error) {
	return vmmodel.MachinePropertiesPayload{MachineID: machine}, nil
}

type fakeDirectory struct {
	linked    map[vmid.MachineID][]vmid.UserID
	userMachs map[vmid.UserID][]vmid.MachineID
	all       []vmid.MachineID
}

func (d *fakeDirectory) LinkedAccountUUIDs(_ context.Context, machine vmid.MachineID) ([]vmid.UserID, error) {
	return d.linked[machine], nil
}

func (d *fakeDirectory) UserMachineUUIDs(_ context.Context, user vmid.UserID) ([]vmid.MachineID, error) {
	return d.userMachs[user], nil
}

func (d *fakeDirectory) AllMachineUUIDs(_ context.Context) ([]vmid.MachineID, error) {
	return d.all, nil
}

func newTestMachineScope(provider *fakeProvider, directory *fakeDirectory) *Scope[vmid.MachineID] {
	logger, _ := test.NewNullLogger()
	return NewScope(ScopeConfig[vmid.MachineID]{
		Name: "machine",
		ResolveMachine: func(_ context.Context, machine vmid.MachineID) ([]vmid.MachineID, error) {
			return []vmid.MachineID{machine}, nil
		},
		MachinesForKey: func(_ context.Context, key vmid.MachineID) ([]vmid.MachineID, error) {
			return []vmid.MachineID{key}, nil
		},
		BroadcastKinds:              []BroadcastKind{BroadcastState, BroadcastDisks},
		Intervals:                   map[BroadcastKind]time.Duration{BroadcastState: time.Millisecond, BroadcastDisks: time.Millisecond},
		IncludeConnectionsOnConnect: false,
		Providers:                   provider,
		Directory:                   directory,
		Logger:                      logger.WithField("scope", "machine"),
	})
}

func newTestGlobalScope(provider *fakeProvider, directory *fakeDirectory) *Scope[struct{}] {
	logger, _ := test.NewNullLogger()
	return NewScope(ScopeConfig[struct{}]{
		Name:                         "global",
		MatchAll:                     true,
		BroadcastKinds:               []BroadcastKind{BroadcastState},
		Intervals:                    map[BroadcastKind]time.Duration{BroadcastState: time.Millisecond},
		IncludeConnectionsOnConnect:  true,
		Providers:                    provider,
		Directory:                    directory,
		Logger:                       logger.WithField("scope", "global"),
	})
}

func TestInitialSnapshotSendsStaticStateDisksInOrder(t *testing.T) {
	mid, _ := vmid.NewMachineID(uuid.New().String())
	provider := &fakeProvider{}
	directory := &fakeDirectory{}
	scope := newTestMachineScope(provider, directory)

	session, transport := newTestSession()
	go session.WritePump()
	defer session.Close(0, "")

	scope.InitialSnapshot(context.Background(), session, mid)

	require.Eventually(t, func() bool {
		return len(transport.messages(t)) == 3
	}, time.Second, 10*time.Millisecond)

	msgs := transport.messages(t)
	require.Equal(t, vmmodel.TypeDataStatic, msgs[0].Type)
	require.Equal(t, vmmodel.TypeDataDynamic, msgs[1].Type)
	require.Equal(t, vmmodel.TypeDataDynamicDisks, msgs[2].Type)
}

func TestInitialSnapshotIncludesConnectionsWhenConfigured(t *testing.T) {
	provider := &fakeProvider{}
	directory := &fakeDirectory{all: []vmid.MachineID{}}
	scope := newTestGlobalScope(provider, directory)

	session, transport := newTestSession()
	go session.WritePump()
	defer session.Close(0, "")

	scope.InitialSnapshot(context.Background(), session, struct{}{})

	require.Eventually(t, func() bool {
		return len(transport.messages(t)) == 4
	}, time.Second, 10*time.Millisecond)

	msgs := transport.messages(t)
	require.Equal(t, vmmodel.TypeDataDynamicConnections, msgs[3].Type)
}

func TestBroadcastPassPrunesDeadSessions(t *testing.T) {
	mid, _ := vmid.NewMachineID(uuid.New().String())
	provider := &fakeProvider{}
	directory := &fakeDirectory{}
	scope := newTestMachineScope(provider, directory)

	session, _ := newTestSession()
	scope.Subscribe(session, mid)
	require.Equal(t, 1, scope.Len())

	session.Close(0, "")
	scope.broadcastPass(context.Background(), BroadcastState)

	require.Equal(t, 0, scope.Len())
}

func TestBroadcastPassReachesLiveSubscriber(t *testing.T) {
	mid, _ := vmid.NewMachineID(uuid.New().String())
	provider := &fakeProvider{}
	directory := &fakeDirectory{}
	scope := newTestMachineScope(provider, directory)

	session, transport := newTestSession()
	go session.WritePump()
	defer session.Close(0, "")
	scope.Subscribe(session, mid)

	scope.broadcastPass(context.Background(), BroadcastState)

	require.Eventually(t, func() bool {
		return len(transport.messages(t)) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestSendByMachineEnqueuesEssentialFrame(t *testing.T) {
	mid, _ := vmid.NewMachineID(uuid.New().String())
	provider := &fakeProvider{}
	directory := &fakeDirectory{}
	scope := newTestMachineScope(provider, directory)

	session, _ := newTestSession()
	scope.Subscribe(session, mid)

	scope.SendByMachine(context.Background(), mid, vmmodel.TypeDelete, vmmodel.LifecycleBody{UUID: mid.String()})
	require.Len(t, session.queue, 1)
	require.True(t, session.queue[0].essential)
}

func TestStartStopBroadcastsIsIdempotent(t *testing.T) {
	provider := &fakeProvider{}
	directory := &fakeDirectory{}
	scope := newTestMachineScope(provider, directory)

	ctx := context.Background()
	scope.StartBroadcasts(ctx)
	scope.StartBroadcasts(ctx)
	require.Len(t, scope.running, 2)

	scope.StopBroadcasts()
	require.Empty(t, scope.running)
	scope.StopBroadcasts()
}
