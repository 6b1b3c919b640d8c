// Package tasks runs the background job queue: one-shot metadata
// downloads plus the periodic rescans that give downloads their retry
// durability.
package tasks

import "encoding/json"

const (
	// TypeProcessMetadata downloads metadata for one (address, chain) pair.
	TypeProcessMetadata = "contract:process_metadata"
	// TypeRescanMissingMetadata re-enqueues every contract still missing
	// an ABI.
	TypeRescanMissingMetadata = "contract:rescan_missing_metadata"
	// TypeRefreshProxies re-downloads metadata for known proxy contracts.
	TypeRefreshProxies = "contract:refresh_proxies"
	// TypeUpdateWellKnownContracts applies curated names to the static
	// Safe deployment list.
	TypeUpdateWellKnownContracts = "contract:update_well_known_contracts"

	// QueueDefault is the only queue the service uses.
	QueueDefault = "default"
)

// ProcessMetadataPayload is the payload of a TypeProcessMetadata task.
type ProcessMetadataPayload struct {
	Address          string `json:"address"`
	ChainID          int64  `json:"chain_id"`
	SkipAttemptCheck bool   `json:"skip_attempt_check"`
}

func (p ProcessMetadataPayload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}
