// SPDX-FileCopyrightText: 2023 M. Shulhan <ms@kilabit.info>
// SPDX-License-Identifier: GPL-3.0-or-later

package daebug

import (
	"sync"
	"time"

	"git.sr.ht/~shulhan/pakakeh.go/lib/mlog"
)

// Job is a single pending or in-flight request, owned by at most one Page.
type Job struct {
	Page *Page `json:"-"`

	RequestedAt time.Time `json:"requested_at"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`

	Agent  string `json:"agent"`
	Target string `json:"target,omitempty"`
	Code   string `json:"code"`

	// requestTime is the HH:MM:SS string captured from the agent header
	// in the file, empty when the header was defaulted (no explicit
	// header line present).
	requestTime string

	// requestHeaderLine is the original, unparsed agent-header line
	// text, when one was present in the file; empty when defaulted.
	requestHeaderLine string

	ID int64 `json:"id"`

	RequestHasFooter bool `json:"-"`

	timeoutTimer      *time.Timer
	placeholderTicker *time.Ticker

	mu sync.Mutex
}

// jobManager owns the one-shot request/response lifecycle: at most one
// Job per page, created from a parsed request and finished either by a
// posted Result or by timeout.
type jobManager struct {
	env *Env

	jobs map[string]*Job // keyed by page name

	waiters map[string][]chan *Job

	mu sync.Mutex

	nextID int64
}

func newJobManager(env *Env) *jobManager {
	return &jobManager{
		env:     env,
		jobs:    make(map[string]*Job),
		waiters: make(map[string][]chan *Job),
	}
}

// create builds a new Job for page from a parsed request. It does not
// check for an existing job for that page; an existing entry is replaced.
// It arms the job timeout timer and wakes any blocked long-poll waiter.
func (jm *jobManager) create(page *Page, req *parsedRequest) *Job {
	jm.mu.Lock()

	jm.nextID++
	var job = &Job{
		ID:                jm.nextID,
		Page:              page,
		Agent:             req.Agent,
		Target:            req.Target,
		Code:              req.Code,
		RequestHasFooter:  req.HasFooter,
		RequestedAt:       TimeNow(),
		requestTime:       req.Time,
		requestHeaderLine: req.HeaderLine,
	}
	jm.jobs[page.Name] = job

	job.timeoutTimer = time.AfterFunc(jm.env.JobTimeout, func() {
		jm.onTimeout(job)
	})

	var waiters = jm.waiters[page.Name]
	delete(jm.waiters, page.Name)
	jm.mu.Unlock()

	page.setState(PageStateExecuting)

	for _, w := range waiters {
		w <- job
	}
	return job
}

// get returns the current job for pageName, if any.
func (jm *jobManager) get(pageName string) *Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	return jm.jobs[pageName]
}

// start marks job as dispatched: idempotent, sets StartedAt on first call
// only, writes the executing placeholder into the page file, and arms the
// placeholder-refresh ticker.
func (jm *jobManager) start(job *Job) {
	job.mu.Lock()
	if !job.StartedAt.IsZero() {
		job.mu.Unlock()
		return
	}
	job.StartedAt = TimeNow()
	job.mu.Unlock()

	var err = writeExecuting(job)
	if err != nil {
		mlog.Errf(`jobManager: start: %s: %s`, job.Page.Name, err)
	}

	job.placeholderTicker = time.NewTicker(jm.env.Ticker)
	go jm.refreshPlaceholder(job)
}

func (jm *jobManager) refreshPlaceholder(job *Job) {
	for range job.placeholderTicker.C {
		job.mu.Lock()
		var finished = !job.FinishedAt.IsZero()
		job.mu.Unlock()
		if finished {
			return
		}
		var err = writeExecutingRefresh(job)
		if err != nil {
			mlog.Errf(`jobManager: refreshPlaceholder: %s: %s`, job.Page.Name, err)
		}
	}
}

// finish records the result in the page file and retires job. Only the
// first call has effect (first-write-wins on FinishedAt).
func (jm *jobManager) finish(job *Job, result Result) {
	job.mu.Lock()
	if !job.FinishedAt.IsZero() {
		job.mu.Unlock()
		return
	}
	job.FinishedAt = TimeNow()
	job.mu.Unlock()

	if job.timeoutTimer != nil {
		job.timeoutTimer.Stop()
	}
	if job.placeholderTicker != nil {
		job.placeholderTicker.Stop()
	}

	var err = writeReply(job, result)
	if err != nil {
		mlog.Errf(`jobManager: finish: %s: %s`, job.Page.Name, err)
	}

	job.Page.setState(PageStateIdle)

	jm.mu.Lock()
	delete(jm.jobs, job.Page.Name)
	jm.mu.Unlock()
}

// onTimeout finishes job with a synthesized timeout error, unless it has
// already finished.
func (jm *jobManager) onTimeout(job *Job) {
	job.mu.Lock()
	var alreadyFinished = !job.FinishedAt.IsZero()
	job.mu.Unlock()
	if alreadyFinished {
		return
	}

	jm.finish(job, Result{
		OK:    false,
		Error: `job timed out after 60000ms`,
	})
}

// waitForJob returns the current job for pageName if one already exists;
// otherwise it suspends up to timeout and returns the first job that
// appears, or nil if the deadline elapses first. Cancelling the wait on
// timeout never cancels the job itself.
func (jm *jobManager) waitForJob(pageName string, timeout time.Duration) *Job {
	jm.mu.Lock()
	if job, ok := jm.jobs[pageName]; ok {
		jm.mu.Unlock()
		return job
	}

	var ch = make(chan *Job, 1)
	jm.waiters[pageName] = append(jm.waiters[pageName], ch)
	jm.mu.Unlock()

	var timer = time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case job := <-ch:
		return job
	case <-timer.C:
		jm.removeWaiter(pageName, ch)
		return nil
	}
}

func (jm *jobManager) removeWaiter(pageName string, ch chan *Job) {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	var list = jm.waiters[pageName]
	for i, w := range list {
		if w == ch {
			jm.waiters[pageName] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(jm.waiters[pageName]) == 0 {
		delete(jm.waiters, pageName)
	}
}
