// Package instance names the running replica in lock values and logs.
package instance

import "os"

const fallbackID = "worker-0"

// GetID prefers AUTOESCROW_INSTANCE_ID, then the pod hostname.
func GetID() string {
	if id := os.Getenv("AUTOESCROW_INSTANCE_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fallbackID
}
