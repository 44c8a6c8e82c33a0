package types

// Event represents a typed event emitted during state transitions.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// BlockContext identifies the block an execution runs in.
type BlockContext struct {
	Height    uint64 `json:"height"`
	Timestamp int64  `json:"timestamp"`
}
