package instance

import "os"

// GetID returns the process instance identifier used in logs and lock values.
func GetID() string {
	for _, key := range []string{"WABALEDGER_INSTANCE_ID", "DYNO", "HOSTNAME"} {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	return "local"
}
