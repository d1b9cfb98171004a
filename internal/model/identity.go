package model

import "fmt"

// Role selects which side of the marketplace the client acts as.
type Role string

const (
	RoleClient Role = "client"
	RoleWorker Role = "worker"
)

// Identity is the active role + wallet address pair driving which backend
// resources the client fetches. At most one Identity is active at a time;
// switching roles overwrites the previous one.
type Identity struct {
	Role        Role   `json:"userMode"`
	DisplayName string `json:"currentUser"`
	Address     string `json:"walletAddress"`
}

// Valid reports whether the identity can drive a connection.
func (id Identity) Valid() bool {
	return (id.Role == RoleClient || id.Role == RoleWorker) && id.Address != ""
}

// JobNoticeKey returns the notice key used for job-scoped notices.
func JobNoticeKey(jobID int64) string {
	return fmt.Sprintf("job-%d", jobID)
}
