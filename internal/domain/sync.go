package domain

// SyncResult is the transient report for one extension's sync run.
// It is returned to the caller and never persisted.
type SyncResult struct {
	ExtensionName string   `json:"extension_name"`
	NewVersions   []string `json:"new_versions"`
	Mismatches    []string `json:"mismatches,omitempty"`
	Updated       bool     `json:"updated"`
	Skipped       bool     `json:"skipped,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// BulkSyncResult aggregates the per-extension results of an admin bulk run.
// One extension's failure never aborts the run for the others.
type BulkSyncResult struct {
	Results   []SyncResult `json:"results"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Skipped   int          `json:"skipped"`
}
