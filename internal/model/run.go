package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// RunRecord is the persisted description of one simulation run.
type RunRecord struct {
	VersionedRecord
	ID           string     `json:"id"`
	CreatedAtUTC string     `json:"created_at_utc"`
	Config       ConfigSpec `json:"config"`
	Steps        int        `json:"steps"`
}
