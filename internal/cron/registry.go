package cron

import (
	"context"
	"fmt"
	"strings"
)

// Job is one maintenance task. Run is called once per cycle while the
// maintenance lock is held.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry keeps jobs in run order with unique names. The first job
// registered under a name wins.
type Registry struct {
	jobs  []Job
	index map[string]int
}

func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{index: make(map[string]int, len(jobs))}
	for _, job := range jobs {
		r.Register(job)
	}
	return r
}

func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	if _, dup := r.index[job.Name()]; dup {
		return
	}
	r.index[job.Name()] = len(r.jobs)
	r.jobs = append(r.jobs, job)
}

// Jobs returns a copy of the registered jobs.
func (r *Registry) Jobs() []Job {
	return append([]Job(nil), r.jobs...)
}

func (r *Registry) Names() []string {
	names := make([]string, len(r.jobs))
	for i, job := range r.jobs {
		names[i] = job.Name()
	}
	return names
}

// Only narrows the registry to the named jobs, keeping registration order.
// No names keeps everything; an unknown name is an error.
func (r *Registry) Only(names ...string) (*Registry, error) {
	if len(names) == 0 {
		return r, nil
	}
	keep := make(map[string]bool, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if _, ok := r.index[name]; !ok {
			return nil, fmt.Errorf("unknown maintenance job %q (have %s)", name, strings.Join(r.Names(), ", "))
		}
		keep[name] = true
	}
	out := NewRegistry()
	for _, job := range r.jobs {
		if keep[job.Name()] {
			out.Register(job)
		}
	}
	return out, nil
}
