package singleinstance

import (
	"os"
	"strconv"
)

const (
	PortStartEnvVar = "SINGLEINSTANCE_PORT_START"
	PortEndEnvVar   = "SINGLEINSTANCE_PORT_END"

	defaultPortStart = 49500
	defaultPortEnd   = 49550
	minPort          = 1024
	maxPort          = 65535
)

// PortRange returns the inclusive port range the resident binds and clients
// scan. The resident always takes the first port.
func PortRange() (start, end int) {
	start = envPort(PortStartEnvVar, defaultPortStart)
	end = envPort(PortEndEnvVar, defaultPortEnd)
	if start < minPort {
		start = minPort
	}
	if end > maxPort {
		end = maxPort
	}
	if end < start {
		start, end = end, start
	}
	return start, end
}

func envPort(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return n
}
