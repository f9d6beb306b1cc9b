package session

import (
	"errors"
	"runtime/debug"

	"github.com/bowerhall/courier/internal/logger"
)

var ErrClosed = errors.New("lanes closed")

func NewLanes() *Lanes {
	return &Lanes{lanes: make(map[string]*lane)}
}

// Submit queues job behind any earlier work for sender.
func (l *Lanes) Submit(sender string, job Job) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}

	ln, ok := l.lanes[sender]
	if ok {
		ln.queue = append(ln.queue, job)
		return nil
	}

	ln = &lane{queue: []Job{job}}
	l.lanes[sender] = ln

	l.wg.Add(1)
	go l.work(sender, ln)

	return nil
}

func (l *Lanes) work(sender string, ln *lane) {
	defer l.wg.Done()

	for {
		l.mu.Lock()
		if len(ln.queue) == 0 {
			delete(l.lanes, sender)
			l.mu.Unlock()
			return
		}
		job := ln.queue[0]
		ln.queue[0] = nil
		ln.queue = ln.queue[1:]
		l.mu.Unlock()

		run(sender, job)
	}
}

// run keeps a panicking job from taking the lane, and the process, down.
func run(sender string, job Job) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("lane job panicked", "sender", sender, "panic", r, "stack", string(debug.Stack()))
		}
	}()

	job()
}

// QueueLen reports jobs waiting behind the one currently running.
func (l *Lanes) QueueLen(sender string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ln, ok := l.lanes[sender]; ok {
		return len(ln.queue)
	}
	return 0
}

// Active reports how many senders currently have a running worker.
func (l *Lanes) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lanes)
}

// Close rejects further submissions and waits for queued work to finish.
func (l *Lanes) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	l.wg.Wait()
}
