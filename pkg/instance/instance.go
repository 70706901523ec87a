// Package instance names the running process so cross-instance notification
// relays can recognise their own messages.
package instance

import (
	"fmt"
	"os"

	"github.com/rxledger/pharmacy-backend/pkg/env"
)

// GetID returns RX_INSTANCE_ID (or INSTANCE_ID) when set, otherwise
// <hostname>-<pid>.
func GetID() string {
	return resolve(os.Hostname, os.Getpid)
}

func resolve(hostname func() (string, error), pid func() int) string {
	if configured := env.Get("INSTANCE_ID", ""); configured != "" {
		return configured
	}
	host, err := hostname()
	if err != nil || host == "" {
		host = "pharmacyd"
	}
	return fmt.Sprintf("%s-%d", host, pid())
}
