package opcua

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gopcua/opcua/ua"
)

// ResolveNodeID builds a node id from a namespace/identifier pair. Identifiers
// already written in node id syntax ("ns=2;s=Speed", "i=2258") are parsed as
// they are and the namespace is ignored.
func ResolveNodeID(namespace, identifier string) (*ua.NodeID, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, fmt.Errorf("empty identifier")
	}
	if looksLikeNodeID(identifier) {
		return ua.ParseNodeID(identifier)
	}

	ns := strings.TrimSpace(namespace)
	if ns == "" {
		ns = "0"
	}
	if _, err := strconv.ParseUint(ns, 10, 16); err != nil {
		return nil, fmt.Errorf("namespace %q: %w", namespace, err)
	}

	if _, err := strconv.ParseUint(identifier, 10, 32); err == nil {
		return ua.ParseNodeID("ns=" + ns + ";i=" + identifier)
	}
	return ua.ParseNodeID("ns=" + ns + ";s=" + identifier)
}

func looksLikeNodeID(s string) bool {
	for _, prefix := range []string{"ns=", "nsu=", "i=", "s=", "g=", "b="} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
