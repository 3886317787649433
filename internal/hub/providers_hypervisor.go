package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"cherryvm/vmhub/internal/vmid"
	"cherryvm/vmhub/internal/vmmodel"
	"cherryvm/vmhub/pkg/config"
)

// HypervisorClient adapts to the hypervisor control daemon's HTTP management
// API: authenticated JSON requests with a bounded client timeout, no
// connection held across suspension points. It implements both
// PayloadProvider and MachineDirectory.
type HypervisorClient struct {
	BaseURL    string
	APIToken   string
	httpClient *http.Client
	Logger     *logrus.Entry
}

// NewHypervisorClient builds a client from environment configuration:
// HYPERVISOR_API_URL and HYPERVISOR_API_TOKEN.
func NewHypervisorClient(logger *logrus.Entry) *HypervisorClient {
	return &HypervisorClient{
		BaseURL:  strings.TrimRight(config.GetEnv("HYPERVISOR_API_URL", "http://localhost:8090"), "/"),
		APIToken: config.GetEnv("HYPERVISOR_API_TOKEN", ""),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		Logger: logger,
	}
}

func (h *HypervisorClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if h.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+h.APIToken)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("hypervisor request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("hypervisor returned status %d for %s", resp.StatusCode, path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (h *HypervisorClient) StaticPayload(ctx context.Context, machine vmid.MachineID) (vmmodel.MachinePropertiesPayload, error) {
	var payload vmmodel.MachinePropertiesPayload
	err := h.get(ctx, "/machines/"+machine.String()+"/static", &payload)
	return payload, err
}

// StaticPayloadsByUUIDs fetches one machine at a time and tolerates
// per-machine failures: a failing machine is logged and omitted, never
// poisoning the aggregate result.
func (h *HypervisorClient) StaticPayloadsByUUIDs(ctx context.Context, machines []vmid.MachineID) vmmodel.StaticByMachine {
	out := make(vmmodel.StaticByMachine, len(machines))
	for _, m := range machines {
		payload, err := h.StaticPayload(ctx, m)
		if err != nil {
			h.Logger.WithError(err).WithField("machine_id", m.String()).Warn("static payload fetch failed, omitting from snapshot")
			continue
		}
		out[m] = payload
	}
	return out
}

func (h *HypervisorClient) StatePayloadsByUUIDs(ctx context.Context, machines []vmid.MachineID) vmmodel.StateByMachine {
	out := make(vmmodel.StateByMachine, len(machines))
	for _, m := range machines {
		var payload vmmodel.MachineStatePayload
		if err := h.get(ctx, "/machines/"+m.String()+"/state", &payload); err != nil {
			h.Logger.WithError(err).WithField("machine_id", m.String()).Warn("state payload fetch failed, omitting from snapshot")
			continue
		}
		out[m] = payload
	}
	return out
}

func (h *HypervisorClient) DisksPayloadsByUUIDs(ctx context.Context, machines []vmid.MachineID) vmmodel.DisksByMachine {
	out := make(vmmodel.DisksByMachine, len(machines))
	for _, m := range machines {
		var payload vmmodel.MachineDisksPayload
		if err := h.get(ctx, "/machines/"+m.String()+"/disks", &payload); err != nil {
			h.Logger.WithError(err).WithField("machine_id", m.String()).Warn("disks payload fetch failed, omitting from snapshot")
			continue
		}
		out[m] = payload
	}
	return out
}

func (h *HypervisorClient) ConnectionsPayloadsByUUIDs(ctx context.Context, machines []vmid.MachineID) vmmodel.ConnectionsByMachine {
	out := make(vmmodel.ConnectionsByMachine, len(machines))
	for _, m := range machines {
		var payload vmmodel.MachineConnectionsPayload
		if err := h.get(ctx, "/machines/"+m.String()+"/connections", &payload); err != nil {
			h.Logger.WithError(err).WithField("machine_id", m.String()).Warn("connections payload fetch failed, omitting from snapshot")
			continue
		}
		out[m] = payload
	}
	return out
}

func (h *HypervisorClient) LinkedAccountUUIDs(ctx context.Context, machine vmid.MachineID) ([]vmid.UserID, error) {
	var ids []vmid.UserID
	err := h.get(ctx, "/machines/"+machine.String()+"/linked-accounts", &ids)
	return ids, err
}

func (h *HypervisorClient) UserMachineUUIDs(ctx context.Context, user vmid.UserID) ([]vmid.MachineID, error) {
	var ids []vmid.MachineID
	err := h.get(ctx, "/users/"+user.String()+"/machines", &ids)
	return ids, err
}

func (h *HypervisorClient) AllMachineUUIDs(ctx context.Context) ([]vmid.MachineID, error) {
	var ids []vmid.MachineID
	err := h.get(ctx, "/machines", &ids)
	return ids, err
}
