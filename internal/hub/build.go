package hub

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"cherryvm/vmhub/internal/vmid"
)

// Intervals holds the three broadcast cadences read from WebsocketsConfig.
type Intervals struct {
	State       time.Duration
	Disks       time.Duration
	Connections time.Duration
}

// NewOrchestrator builds the three scope managers and wires them into an
// Orchestrator. This is the one place the three scopes' differing
// (key type, resolver, broadcast kinds) triples are spelled out.
func NewOrchestrator(provider PayloadProvider, directory MachineDirectory, intervals Intervals, logger *logrus.Logger, metrics *Metrics) *Orchestrator {
	machineScope := NewScope(ScopeConfig[vmid.MachineID]{
		Name:     "machine",
		MatchAll: false,
		ResolveMachine: func(_ context.Context, machine vmid.MachineID) ([]vmid.MachineID, error) {
			return []vmid.MachineID{machine}, nil
		},
		MachinesForKey: func(_ context.Context, key vmid.MachineID) ([]vmid.MachineID, error) {
			return []vmid.MachineID{key}, nil
		},
		BroadcastKinds: []BroadcastKind{BroadcastState, BroadcastDisks},
		Intervals: map[BroadcastKind]time.Duration{
			BroadcastState: intervals.State,
			BroadcastDisks: intervals.Disks,
		},
		IncludeConnectionsOnConnect: false,
		Providers:                   provider,
		Directory:                   directory,
		Logger:                      logger.WithField("scope", "machine"),
		Metrics:                     metrics,
	})

	accountScope := NewScope(ScopeConfig[vmid.UserID]{
		Name:     "account",
		MatchAll: false,
		ResolveMachine: func(ctx context.Context, machine vmid.MachineID) ([]vmid.UserID, error) {
			return directory.LinkedAccountUUIDs(ctx, machine)
		},
		MachinesForKey: func(ctx context.Context, key vmid.UserID) ([]vmid.MachineID, error) {
			return directory.UserMachineUUIDs(ctx, key)
		},
		BroadcastKinds: []BroadcastKind{BroadcastState, BroadcastDisks, BroadcastConnections},
		Intervals: map[BroadcastKind]time.Duration{
			BroadcastState:       intervals.State,
			BroadcastDisks:       intervals.Disks,
			BroadcastConnections: intervals.Connections,
		},
		IncludeConnectionsOnConnect: true,
		Providers:                   provider,
		Directory:                   directory,
		Logger:                      logger.WithField("scope", "account"),
		Metrics:                     metrics,
	})

	globalScope := NewScope(ScopeConfig[struct{}]{
		Name:                         "global",
		MatchAll:                     true,
		BroadcastKinds:               []BroadcastKind{BroadcastState, BroadcastDisks},
		Intervals: map[BroadcastKind]time.Duration{
			BroadcastState: intervals.State,
			BroadcastDisks: intervals.Disks,
		},
		IncludeConnectionsOnConnect: true,
		Providers:                   provider,
		Directory:                   directory,
		Logger:                      logger.WithField("scope", "global"),
		Metrics:                     metrics,
	})

	return &Orchestrator{Machine: machineScope, Account: accountScope, Global: globalScope, Logger: logger.WithField("component", "orchestrator")}
}
