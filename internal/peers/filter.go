// Package peers filters the daemon's raw peer records into the grouped
// listing the peers endpoint serves.
package peers

import (
	"fmt"
	"net"
	"strings"
)

// MinimumSubVer is the oldest wallet version listed. The comparison is
// plain lexicographic, not semver: a hypothetical "DIVI Core: 10.0.0.0"
// would sort before this tag. Known limitation, kept for parity with the
// listing the gateway has always served.
const MinimumSubVer = "DIVI Core: 3.0.0.0"

// syncWindow is how far behind the current height a peer's starting
// height may lag and still count as recently synced.
const syncWindow = 1000

// PeerRecord is the slice of a getpeerinfo entry the filter cares about.
type PeerRecord struct {
	SubVer         string `json:"subver"`
	StartingHeight int64  `json:"startingheight"`
	Addr           string `json:"addr"`
}

type Peer struct {
	IP   string `json:"ip"`
	Port string `json:"port"`
}

// Group collects the surviving peers running one exact wallet version.
type Group struct {
	Core  string `json:"core"`
	Peers []Peer `json:"peers"`
}

// Filter reduces raw peer records to recently synced peers of supported
// wallet versions, grouped by exact version string. Groups appear in the
// order their version was first seen; peers keep their input order. A
// peer address that is neither bracketed IPv6 nor host:port is an error,
// never silently dropped.
func Filter(records []PeerRecord, currentHeight int64, includeIPv6 bool) ([]Group, error) {
	groups := []Group{}
	groupIndex := make(map[string]int)
	for _, record := range records {
		if !includeIPv6 && strings.HasPrefix(record.Addr, "[") {
			continue
		}
		ip, port, err := net.SplitHostPort(record.Addr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse peer address %q: %w", record.Addr, err)
		}
		if record.SubVer < MinimumSubVer {
			continue
		}
		if record.StartingHeight < currentHeight-syncWindow {
			continue
		}
		index, ok := groupIndex[record.SubVer]
		if !ok {
			index = len(groups)
			groupIndex[record.SubVer] = index
			groups = append(groups, Group{Core: record.SubVer, Peers: []Peer{}})
		}
		groups[index].Peers = append(groups[index].Peers, Peer{IP: ip, Port: port})
	}
	return groups, nil
}
