// SPDX-FileCopyrightText: 2023 M. Shulhan <ms@kilabit.info>
// SPDX-License-Identifier: GPL-3.0-or-later

package daebug

import (
	"os"
	"strings"
	"testing"
	"time"

	"git.sr.ht/~shulhan/pakakeh.go/lib/test"
)

func newTestEnv(t *testing.T) *Env {
	t.Helper()
	var env = NewEnv()
	env.Root = t.TempDir()
	env.JobTimeout = 50 * time.Millisecond
	env.Ticker = 10 * time.Millisecond
	var err = env.init()
	if err != nil {
		t.Fatal(err)
	}
	return env
}

func TestJobManager_create_onePerPage(t *testing.T) {
	var env = newTestEnv(t)
	var jm = newJobManager(env)
	var page = newPage(`p`, ``, env.Root+`/p.md`)
	page.markSeen()
	var err = os.WriteFile(page.File, []byte(canonicalFooter+"\n"), 0600)
	if err != nil {
		t.Fatal(err)
	}

	var job = jm.create(page, &parsedRequest{Agent: `agent`, Code: `1+1`})
	test.Assert(t, `ID`, int64(1), job.ID)
	test.Assert(t, `page state`, PageStateExecuting, page.State)

	if jm.get(page.Name) != job {
		t.Fatal(`jobManager.get: expected the job just created`)
	}
}

func TestJobManager_start_idempotent(t *testing.T) {
	var env = newTestEnv(t)
	var jm = newJobManager(env)
	var page = newPage(`p`, ``, env.Root+`/p.md`)
	page.markSeen()
	var err = os.WriteFile(page.File, []byte(canonicalFooter+"\n"), 0600)
	if err != nil {
		t.Fatal(err)
	}

	var job = jm.create(page, &parsedRequest{Agent: `agent`, Code: `1+1`})
	jm.start(job)
	var first = job.StartedAt
	jm.start(job)

	test.Assert(t, `StartedAt unchanged`, first, job.StartedAt)
}

func TestJobManager_finish_firstWriteWins(t *testing.T) {
	var env = newTestEnv(t)
	var jm = newJobManager(env)
	var page = newPage(`p`, ``, env.Root+`/p.md`)
	page.markSeen()
	var err = os.WriteFile(page.File, []byte(canonicalFooter+"\n"), 0600)
	if err != nil {
		t.Fatal(err)
	}

	var job = jm.create(page, &parsedRequest{Agent: `agent`, Code: `1+1`})
	jm.start(job)

	jm.finish(job, Result{OK: true, Value: float64(2)})
	var first = job.FinishedAt

	jm.finish(job, Result{OK: false, Error: `should be ignored`})
	test.Assert(t, `FinishedAt unchanged`, first, job.FinishedAt)

	test.Assert(t, `page idle after finish`, PageStateIdle, page.State)
	if jm.get(page.Name) != nil {
		t.Fatal(`jobManager.get: expected nil after finish`)
	}
}

func TestJobManager_onTimeout(t *testing.T) {
	var env = newTestEnv(t)
	var jm = newJobManager(env)
	var page = newPage(`p`, ``, env.Root+`/p.md`)
	page.markSeen()
	var err = os.WriteFile(page.File, []byte(canonicalFooter+"\n"), 0600)
	if err != nil {
		t.Fatal(err)
	}

	var job = jm.create(page, &parsedRequest{Agent: `agent`, Code: `1+1`})
	jm.start(job)

	var deadline = time.Now().Add(2 * time.Second)
	for jm.get(page.Name) != nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if jm.get(page.Name) != nil {
		t.Fatal(`jobManager: job was not finished by timeout`)
	}

	var raw, rerr = os.ReadFile(page.File)
	if rerr != nil {
		t.Fatal(rerr)
	}
	test.Assert(t, `timeout marks error`, true, strings.Contains(string(raw), `(**ERROR**)`))
	test.Assert(t, `timeout message`, true, strings.Contains(string(raw), `job timed out after 60000ms`))
}

func TestJobManager_waitForJob_timeout(t *testing.T) {
	var env = newTestEnv(t)
	var jm = newJobManager(env)

	var job = jm.waitForJob(`nope`, 10*time.Millisecond)
	if job != nil {
		t.Fatal(`waitForJob: expected nil on timeout`)
	}
}

func TestJobManager_waitForJob_wakesOnCreate(t *testing.T) {
	var env = newTestEnv(t)
	var jm = newJobManager(env)
	var page = newPage(`p`, ``, env.Root+`/p.md`)
	page.markSeen()
	var err = os.WriteFile(page.File, []byte(canonicalFooter+"\n"), 0600)
	if err != nil {
		t.Fatal(err)
	}

	var resultCh = make(chan *Job, 1)
	go func() {
		resultCh <- jm.waitForJob(page.Name, time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	var created = jm.create(page, &parsedRequest{Agent: `agent`, Code: `1+1`})

	select {
	case got := <-resultCh:
		if got != created {
			t.Fatal(`waitForJob: expected the newly created job`)
		}
	case <-time.After(time.Second):
		t.Fatal(`waitForJob: timed out waiting for wakeup`)
	}
}
