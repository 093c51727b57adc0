package main

import (
	"net"
	"strings"
)

// wildcardHosts maps listen-anywhere hosts to something a browser can open.
var wildcardHosts = map[string]bool{"": true, "0.0.0.0": true, "::": true, "[::]": true}

// listenerURL renders the startup log's reachable URL for a listen address,
// mapping wildcard hosts to localhost so the printed link actually works.
func listenerURL(address string, tlsEnabled bool) string {
	scheme := "http://"
	if tlsEnabled {
		scheme = "https://"
	}
	return scheme + displayHostPort(address)
}

func displayHostPort(address string) string {
	address = strings.TrimSpace(address)
	switch {
	case address == "":
		return "localhost"
	case strings.HasPrefix(address, ":"):
		return "localhost" + address
	}
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return address
	}
	if wildcardHosts[strings.TrimSpace(host)] {
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}
