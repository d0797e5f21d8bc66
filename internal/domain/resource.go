package domain

import "time"

// ResourceType enumerates the kinds of resource a function can bind.
type ResourceType string

const (
	ResourceKV  ResourceType = "kv"
	ResourceSQL ResourceType = "sql"
)

// ResourceRecord is the persisted form of a bindable resource: its type,
// the set of functions permitted to bind it, and backend configuration.
// Runtime handles (an in-memory map for kv, a pool for sql) are created
// lazily and live only for the process lifetime.
type ResourceRecord struct {
	ID        string            `json:"id"`
	Type      ResourceType      `json:"type"`
	Owners    []string          `json:"owners"`
	Config    map[string]string `json:"config,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// HasOwner reports whether fnID already appears in Owners.
func (r *ResourceRecord) HasOwner(fnID string) bool {
	for _, o := range r.Owners {
		if o == fnID {
			return true
		}
	}
	return false
}

// CreateResourceRequest is the body of POST /resources.
type CreateResourceRequest struct {
	Type   ResourceType      `json:"type"`
	Owners []string          `json:"owners,omitempty"`
	Config map[string]string `json:"config,omitempty"`
}

// AttachOwnerRequest is the body of POST /resources/{id}/owners.
type AttachOwnerRequest struct {
	FunctionID string `json:"functionId"`
}
