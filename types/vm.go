package types

import "time"

// VMState represents the lifecycle state of the sandbox VM as derived from
// the provisioning backend's state and live reachability, never cached
// in-process.
type VMState string

const (
	VMStateAbsent  VMState = "absent"  // no declared record, nothing provisioned
	VMStateStopped VMState = "stopped" // declared record exists, endpoint unreachable
	VMStateRunning VMState = "running" // endpoint accepts connections
)

// ResourceSpec describes the resources requested for the sandbox VM.
// The values are fixed at creation time; later overrides are ignored with a
// warning because changing them would require destroy+recreate.
type ResourceSpec struct {
	Memory int64 `json:"memory"` // bytes
	CPUs   int   `json:"cpus"`
	Disk   int64 `json:"disk"` // bytes
}

// Endpoint is the network identity of the running VM, as exposed by the
// provisioning backend's outputs.
type Endpoint struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	User    string `json:"user"`
	KeyPath string `json:"key_path"`
}

// VMRecord is the declared state persisted for the singleton VM: the
// write-once resource spec plus bookkeeping stamped at creation. It doubles
// as the var payload handed to the provisioning backend, so the backend's
// declared state and ours can never diverge.
type VMRecord struct {
	InstanceID string       `json:"instance_id"`
	Resources  ResourceSpec `json:"resources"`
	// CredentialSource records where creation-time credentials came from
	// ("" when none were found). The material itself is never persisted.
	CredentialSource string    `json:"credential_source,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// VMStatus is the read-only view returned by the status intent.
type VMStatus struct {
	State     VMState       `json:"state"`
	Endpoint  *Endpoint     `json:"endpoint,omitempty"`
	Resources *ResourceSpec `json:"resources,omitempty"`
	CreatedAt *time.Time    `json:"created_at,omitempty"`
}
