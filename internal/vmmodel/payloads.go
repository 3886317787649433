// Package vmmodel holds the payload and wire-message shapes vmhub streams
// to subscribed sessions. These are values: produced by providers, consumed
// by the codec, never retained.
package vmmodel

import "cherryvm/vmhub/internal/vmid"

// StaticDiskInfo describes a disk as it is configured, independent of runtime use.
type StaticDiskInfo struct {
	System string `json:"system"`
	Name   string `json:"name"`
	SizeBytes int64 `json:"size_bytes"`
	Type   string `json:"type"`
}

// DynamicDiskInfo adds the runtime occupancy of a disk to its static description.
type DynamicDiskInfo struct {
	StaticDiskInfo
	OccupiedBytes int64 `json:"occupied_bytes"`
}

// ConnectionEndpoint names a remote-access protocol and where to reach it.
type ConnectionEndpoint struct {
	Protocol string `json:"protocol"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
}

// MachinePropertiesPayload is the static, rarely-changing description of a machine.
type MachinePropertiesPayload struct {
	MachineID            vmid.MachineID       `json:"machine_id"`
	Title                string               `json:"title"`
	Tags                 []string             `json:"tags"`
	Description          string               `json:"description"`
	Owner                vmid.UserID          `json:"owner"`
	AssignedClients      []vmid.UserID        `json:"assigned_clients"`
	DisplayEndpointHost  string               `json:"display_endpoint_host"`
	DisplayEndpointPort  int                  `json:"display_endpoint_port"`
	Disks                []StaticDiskInfo     `json:"disks"`
	Connections          []ConnectionEndpoint `json:"connections"`
}

// MachineStatePayload is the frequent dynamic snapshot of a running machine.
// active_connections deliberately never appears here; it lives only on
// MachineConnectionsPayload.
type MachineStatePayload struct {
	MachineID     vmid.MachineID `json:"machine_id"`
	Active        bool           `json:"active"`
	Loading       bool           `json:"loading"`
	VCPU          int            `json:"vcpu"`
	RAMMaxBytes   int64          `json:"ram_max"`
	RAMUsedBytes  int64          `json:"ram_used"`
	BootTimestamp int64          `json:"boot_timestamp"`
}

// MachineDisksPayload is the infrequent dynamic disk-occupancy snapshot.
type MachineDisksPayload struct {
	MachineID vmid.MachineID    `json:"machine_id"`
	Disks     []DynamicDiskInfo `json:"disks"`
}

// MachineConnectionsPayload is the moderate-frequency active-session snapshot.
type MachineConnectionsPayload struct {
	ActiveConnections []string `json:"active_connections"`
}

// StaticByMachine, StateByMachine, DisksByMachine, ConnectionsByMachine are the
// aggregate shapes a broadcast pass or initial snapshot sends: machine-id
// strings mapped to the corresponding payload.
type StaticByMachine map[vmid.MachineID]MachinePropertiesPayload
type StateByMachine map[vmid.MachineID]MachineStatePayload
type DisksByMachine map[vmid.MachineID]MachineDisksPayload
type ConnectionsByMachine map[vmid.MachineID]MachineConnectionsPayload
