package session

import "sync"

// Job is one unit of work for a sender. It runs on that sender's lane.
type Job func()

type lane struct {
	queue []Job
}

// Lanes serializes work per sender while letting different senders run in
// parallel. A lane's worker starts on the first Submit and exits once its
// queue drains.
type Lanes struct {
	mu     sync.Mutex
	lanes  map[string]*lane
	wg     sync.WaitGroup
	closed bool
}
