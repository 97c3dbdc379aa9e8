package net

import (
	inet "net"
	"strconv"
)

func IsValidPort(port string) bool {
	p, err := strconv.Atoi(port)
	if err != nil {
		return false
	}
	return p >= 0 && p <= 65535
}

// IsValidHostPort accepts "host:port" addresses such as zookeeper servers.
func IsValidHostPort(addr string) bool {
	host, port, err := inet.SplitHostPort(addr)
	if err != nil || host == "" {
		return false
	}
	return IsValidPort(port)
}
