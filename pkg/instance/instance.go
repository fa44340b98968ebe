// Package instance names the running process in logs.
package instance

import (
	"os"

	"github.com/machawaste/wastelink-backend/pkg/env"
)

// GetID prefers an explicit WASTELINK_INSTANCE_ID, then the platform dyno
// name, then the host name.
func GetID() string {
	if id, ok := env.First("WASTELINK_INSTANCE_ID", "DYNO"); ok {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
