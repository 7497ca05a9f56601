package jobs

import (
	"slices"
	"sync"
	"time"
)

// Registry is the concurrency-safe job status table.
type Registry struct {
	mu      sync.RWMutex
	jobs    map[string]*Job
	nextRun uint64
	now     func() time.Time

	watchers map[string]map[uint64]chan View
	nextSub  uint64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		jobs:     make(map[string]*Job),
		now:      time.Now,
		watchers: make(map[string]map[uint64]chan View),
	}
}

// Put inserts a PENDING record for id, replacing any previous record under
// the same id, and returns the run token that owns it.
func (r *Registry) Put(id string, kind Kind, status string, progress int) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextRun++
	now := r.now()
	job := &Job{
		ID:        id,
		Kind:      kind,
		State:     StatePending,
		Status:    status,
		Progress:  clampPercent(progress),
		CreatedAt: now,
		UpdatedAt: now,
		run:       r.nextRun,
	}
	r.jobs[id] = job
	r.publishLocked(job)
	return job.run
}

// Get returns a copy of the record for id.
func (r *Registry) Get(id string) (View, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return View{}, false
	}
	return job.view(), true
}

// Status returns the record for id, or NotFoundView when unknown.
func (r *Registry) Status(id string) View {
	if v, ok := r.Get(id); ok {
		return v
	}
	return NotFoundView(id)
}

// Update applies mutate to the record owned by run. It returns false, leaving
// the record untouched, when id is unknown, run has been superseded, or the
// record is already terminal. Progress is kept non-decreasing unless the
// mutation moves the job to FAILURE.
func (r *Registry) Update(id string, run uint64, mutate func(*Job)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || job.run != run || job.State.Terminal() {
		return false
	}
	before := job.Progress
	next := *job
	mutate(&next)
	next.ID, next.Kind, next.CreatedAt, next.run = job.ID, job.Kind, job.CreatedAt, job.run
	next.Progress = clampPercent(next.Progress)
	if next.State != StateFailure && next.Progress < before {
		next.Progress = before
	}
	next.UpdatedAt = r.now()
	*job = next
	r.publishLocked(job)
	return true
}

// Advance moves the job to PROCESSING with the given checkpoint.
func (r *Registry) Advance(id string, run uint64, progress int, status string) bool {
	return r.Update(id, run, func(j *Job) {
		j.State = StateProcessing
		j.Progress = progress
		j.Status = status
	})
}

// Succeed performs the terminal SUCCESS write.
func (r *Registry) Succeed(id string, run uint64, status string, result *Result) bool {
	return r.Update(id, run, func(j *Job) {
		j.State = StateSuccess
		j.Progress = 100
		j.Status = status
		j.Result = result
		j.Error = ""
	})
}

// Fail performs the terminal FAILURE write with status "Error: <message>".
func (r *Registry) Fail(id string, run uint64, message string) bool {
	return r.Update(id, run, func(j *Job) {
		j.State = StateFailure
		j.Progress = 0
		j.Status = "Error: " + message
		j.Error = message
		j.Result = nil
	})
}

// List returns copies of every record, oldest first.
func (r *Registry) List() []View {
	r.mu.RLock()
	views := make([]View, 0, len(r.jobs))
	for _, job := range r.jobs {
		views = append(views, job.view())
	}
	r.mu.RUnlock()
	slices.SortFunc(views, func(a, b View) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return views
}

// Len returns the number of tracked jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// Watch delivers the current view of id and every later change. Slow
// receivers only ever see the most recent view. The returned stop function
// must be called to release the subscription.
func (r *Registry) Watch(id string) (<-chan View, func()) {
	ch := make(chan View, 1)
	r.mu.Lock()
	r.nextSub++
	sub := r.nextSub
	if r.watchers[id] == nil {
		r.watchers[id] = make(map[uint64]chan View)
	}
	r.watchers[id][sub] = ch
	if job, ok := r.jobs[id]; ok {
		ch <- job.view()
	} else {
		ch <- NotFoundView(id)
	}
	r.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.watchers[id], sub)
			if len(r.watchers[id]) == 0 {
				delete(r.watchers, id)
			}
		})
	}
	return ch, stop
}

// publishLocked sends job's view to its watchers, replacing any undelivered
// view. Callers hold r.mu; publishers are the only senders.
func (r *Registry) publishLocked(job *Job) {
	subs := r.watchers[job.ID]
	if len(subs) == 0 {
		return
	}
	v := job.view()
	for _, ch := range subs {
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}

func clampPercent(p int) int {
	return min(max(p, 0), 100)
}
