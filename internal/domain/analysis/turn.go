package analysis

import "time"

// Turn is one worker's contribution to the transcript. Turns are append-only
// and keep the causal order of production within a phase; across parallel
// branches they interleave arbitrarily but carry the branch tag so per-branch
// order can be reconstructed.
type Turn struct {
	WorkerID  string    `json:"worker_id"`
	Phase     string    `json:"phase"`
	Branch    string    `json:"branch,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
