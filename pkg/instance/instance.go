package instance

import "os"

// GetID identifies the running replica in logs and lock ownership. It prefers
// LANKACART_INSTANCE_ID, then the container hostname.
func GetID() string {
	if id := os.Getenv("LANKACART_INSTANCE_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "worker-0"
}
