// SPDX-FileCopyrightText: 2023 M. Shulhan <ms@kilabit.info>
// SPDX-License-Identifier: GPL-3.0-or-later

package daebug

import (
	"os"
	"testing"
	"time"

	"git.sr.ht/~shulhan/pakakeh.go/lib/test"
)

func TestFileWatcher_watchPage_idempotentAndDetectsRequest(t *testing.T) {
	var env = newTestEnv(t)
	env.Debounce = 10 * time.Millisecond

	var reg, err = NewRegistry(env)
	if err != nil {
		t.Fatal(err)
	}
	var jm = newJobManager(env)

	var fw, ferr = newFileWatcher(env, reg, jm)
	if ferr != nil {
		t.Fatal(ferr)
	}
	defer fw.stop()

	var page, _, cerr = reg.getOrCreate(`p`, ``)
	if cerr != nil {
		t.Fatal(cerr)
	}

	var werr = os.WriteFile(page.File, []byte(canonicalFooter+"\n"), 0600)
	if werr != nil {
		t.Fatal(werr)
	}

	fw.watchPage(page)
	fw.watchPage(page) // idempotent per spec.md §8

	var werr2 = os.WriteFile(page.File, []byte(canonicalFooter+"\n\n```js\n1+1\n```\n"), 0600)
	if werr2 != nil {
		t.Fatal(werr2)
	}

	var deadline = time.Now().Add(2 * time.Second)
	for jm.get(page.Name) == nil && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	var job = jm.get(page.Name)
	if job == nil {
		t.Fatal(`fileWatcher: expected a job to have been created from the file edit`)
	}
	test.Assert(t, `job code`, `1+1`, job.Code)
}

func TestIsShutdownSentinel(t *testing.T) {
	var cases = []struct {
		in  string
		exp bool
	}{
		{"some text\n%%SHUTDOWN%%\nmore", true},
		{"prefix %%SHUTDOWN%%", false},
		{"```\n%%SHUTDOWN%%\n```", false}, // spec: occurrences inside fenced code are ignored
		{"nothing here", false},
	}

	for _, c := range cases {
		var got = isShutdownSentinel(c.in)
		test.Assert(t, c.in, c.exp, got)
	}
}
