package queue

import (
	"fmt"

	"launchkit-core/internal/domain/ports/adapter"
)

// priorityStride spaces priorities so the insertion sequence breaks ties
// inside one priority level.
const priorityStride = 4294967296

const maxPriority = 1000

type laneKeys struct {
	wait       string
	active     string
	delayed    string
	completed  string
	failed     string
	paused     string
	seq        string
	taskPrefix string
}

func keysFor(prefix string, lane adapter.Lane) laneKeys {
	base := fmt.Sprintf("%s:%s:", prefix, lane)
	return laneKeys{
		wait:       base + "wait",
		active:     base + "active",
		delayed:    base + "delayed",
		completed:  base + "completed",
		failed:     base + "failed",
		paused:     base + "paused",
		seq:        base + "seq",
		taskPrefix: base + "t:",
	}
}

func (k laneKeys) task(id string) string { return k.taskPrefix + id }

func clampPriority(p int) int {
	if p < 0 {
		return 0
	}
	if p > maxPriority {
		return maxPriority
	}
	return p
}
