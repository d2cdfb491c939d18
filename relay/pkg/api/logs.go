package relayapi

import "strings"

// LogCollectSkipped prefixes the program log of a Collect that advanced the
// watermark without paying, because the proof held less than the commission.
const LogCollectSkipped = "relay: collect skipped"

// CollectSkipped reports whether the logs of a successful Collect show it paid
// nothing.
func CollectSkipped(logs []string) bool {
	for _, line := range logs {
		if strings.Contains(line, LogCollectSkipped) {
			return true
		}
	}
	return false
}
