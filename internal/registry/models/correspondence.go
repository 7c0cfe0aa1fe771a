package models

// Correspondence expresses that the entity once stored under OldID now lives
// under NewID. Tables of these pairs drive the identity remap engine.
type Correspondence struct {
	OldID string `json:"nationalIdRef"`
	NewID string `json:"nationalId"`
}

// Snapshot is the pair of natural-keyed maps representing the full registry
// state as of one extract. A snapshot is immutable once diffed.
type Snapshot struct {
	Professionals map[string]Professional
	Structures    map[string]Structure
}

// NewSnapshot returns an empty snapshot with both maps allocated.
func NewSnapshot() Snapshot {
	return Snapshot{
		Professionals: make(map[string]Professional),
		Structures:    make(map[string]Structure),
	}
}
