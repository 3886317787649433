package hub

import (
	"context"

	"cherryvm/vmhub/internal/vmid"
	"cherryvm/vmhub/internal/vmmodel"
)

// User is the minimal identity the hub needs once a session is authenticated.
type User struct {
	ID           vmid.UserID
	Capabilities []string
}

// HasCapability reports whether the user carries the named capability
// (VIEW_ALL_VMS gates the global scope).
func (u User) HasCapability(name string) bool {
	for _, c := range u.Capabilities {
		if c == name {
			return true
		}
	}
	return false
}

const CapabilityViewAllVMs = "view_all_vms"

// Authenticator resolves a session's identity from its access token. It
// returns ok=false on an invalid or expired token, never an error — an
// invalid token is an expected outcome, not a fault.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (user User, ok bool)
}

// MachineDirectory answers the membership questions the scope managers and
// orchestrator need. Implementations talk to the REST-side user/machine
// registry; they are external collaborators, out of scope for this service.
type MachineDirectory interface {
	// LinkedAccountUUIDs returns the union of owner and assigned clients for
	// a machine. May be stale for a machine that was just deleted — callers
	// that need the pre-deletion linkage must capture it themselves.
	LinkedAccountUUIDs(ctx context.Context, machine vmid.MachineID) ([]vmid.UserID, error)
	// UserMachineUUIDs returns every machine linked to a user.
	UserMachineUUIDs(ctx context.Context, user vmid.UserID) ([]vmid.MachineID, error)
	// AllMachineUUIDs returns every machine the server manages.
	AllMachineUUIDs(ctx context.Context) ([]vmid.MachineID, error)
}

// PayloadProvider adapts to the hypervisor/registry to produce the four
// payload kinds. Each *ByUUIDs method tolerates per-machine failures: a
// machine whose fetch fails is simply omitted from the result map rather
// than failing the whole call.
type PayloadProvider interface {
	StaticPayloadsByUUIDs(ctx context.Context, machines []vmid.MachineID) vmmodel.StaticByMachine
	StatePayloadsByUUIDs(ctx context.Context, machines []vmid.MachineID) vmmodel.StateByMachine
	DisksPayloadsByUUIDs(ctx context.Context, machines []vmid.MachineID) vmmodel.DisksByMachine
	ConnectionsPayloadsByUUIDs(ctx context.Context, machines []vmid.MachineID) vmmodel.ConnectionsByMachine

	// StaticPayload fetches a single machine's static payload, used for
	// CREATE and modify-triggered re-sends where only one machine changed.
	StaticPayload(ctx context.Context, machine vmid.MachineID) (vmmodel.MachinePropertiesPayload, error)
}
