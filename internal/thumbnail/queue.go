package thumbnail

import (
	"container/list"
	"context"
	"image"
	"sync"

	"photo-catalog/internal/logging"
	"photo-catalog/internal/metrics"
)

// Depth is the number of pending jobs per priority.
type Depth struct {
	High   int
	Medium int
	Low    int
}

// Total returns the number of pending jobs.
func (d Depth) Total() int { return d.High + d.Medium + d.Low }

// Queue holds pending thumbnail jobs, at most one per slot. Jobs are
// served by priority and first-in first-out within a priority.
//
// Enqueueing a slot that already has a pending job replaces that job: the
// newest priority applies and the job moves to the back of its tier. Force
// is kept if either job asked for it.
type Queue struct {
	queuedIcon image.Image

	mu     sync.Mutex
	tiers  [numPriorities]*list.List
	index  map[Slot]*list.Element
	signal chan struct{}
}

// NewQueue creates an empty queue. queuedIcon is shown on slots while
// their job is pending.
func NewQueue(queuedIcon image.Image) *Queue {
	q := &Queue{
		queuedIcon: queuedIcon,
		index:      make(map[Slot]*list.Element),
		signal:     make(chan struct{}),
	}
	for i := range q.tiers {
		q.tiers[i] = list.New()
	}
	return q
}

// Enqueue adds job without blocking. The slot shows the queued placeholder
// before Enqueue returns.
func (q *Queue) Enqueue(job Job) {
	if job.Target == nil {
		logging.Warn("thumbnail job without a target ignored")
		return
	}
	if !job.Priority.valid() {
		job.Priority = Low
	}

	// Placeholder first: once the job is visible a worker may write the
	// bitmap at any moment.
	job.Target.SetPlaceholder(q.queuedIcon)

	q.mu.Lock()
	if el, ok := q.index[job.Target]; ok {
		old := el.Value.(Job)
		job.Force = job.Force || old.Force
		q.tiers[old.Priority].Remove(el)
		metrics.QueueEventsTotal.WithLabelValues("replaced").Inc()
	} else {
		metrics.QueueEventsTotal.WithLabelValues("enqueued").Inc()
	}
	q.index[job.Target] = q.tiers[job.Priority].PushBack(job)
	q.notifyLocked()
	q.mu.Unlock()
}

func (q *Queue) notifyLocked() {
	close(q.signal)
	q.signal = make(chan struct{})
}

// DequeueHighestPriority removes and returns the oldest job of the most
// urgent non-empty tier. ok is false when nothing is pending.
func (q *Queue) DequeueHighestPriority() (job Job, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dequeueLocked()
}

func (q *Queue) dequeueLocked() (Job, bool) {
	for _, tier := range q.tiers {
		if el := tier.Front(); el != nil {
			job := tier.Remove(el).(Job)
			delete(q.index, job.Target)
			metrics.QueueEventsTotal.WithLabelValues("dequeued").Inc()
			return job, true
		}
	}
	return Job{}, false
}

// Wait blocks until a job can be dequeued or ctx ends.
func (q *Queue) Wait(ctx context.Context) (Job, bool) {
	for {
		q.mu.Lock()
		if job, ok := q.dequeueLocked(); ok {
			q.mu.Unlock()
			return job, true
		}
		signal := q.signal
		q.mu.Unlock()

		select {
		case <-signal:
		case <-ctx.Done():
			return Job{}, false
		}
	}
}

// Cancel removes the pending job for target. A job already taken by a
// worker is unaffected.
func (q *Queue) Cancel(target Slot) bool {
	q.mu.Lock()
	el, ok := q.index[target]
	if !ok {
		q.mu.Unlock()
		return false
	}
	job := el.Value.(Job)
	q.tiers[job.Priority].Remove(el)
	delete(q.index, target)
	q.mu.Unlock()

	metrics.QueueEventsTotal.WithLabelValues("cancelled").Inc()
	notifyDropped(target)
	return true
}

// Clear removes every pending job and returns how many were dropped.
func (q *Queue) Clear() int {
	q.mu.Lock()
	dropped := make([]Slot, 0, len(q.index))
	for target := range q.index {
		dropped = append(dropped, target)
	}
	for _, tier := range q.tiers {
		tier.Init()
	}
	clear(q.index)
	q.mu.Unlock()

	metrics.QueueEventsTotal.WithLabelValues("cleared").Add(float64(len(dropped)))
	for _, target := range dropped {
		notifyDropped(target)
	}
	return len(dropped)
}

func notifyDropped(target Slot) {
	if d, ok := target.(Dropper); ok {
		d.Dropped()
	}
}

// Len returns the number of pending jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.index)
}

// LenByPriority returns pending jobs per tier.
func (q *Queue) LenByPriority() Depth {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Depth{
		High:   q.tiers[High].Len(),
		Medium: q.tiers[Medium].Len(),
		Low:    q.tiers[Low].Len(),
	}
}
