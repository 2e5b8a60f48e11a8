// SPDX-FileCopyrightText: 2023 M. Shulhan <ms@kilabit.info>
// SPDX-License-Identifier: GPL-3.0-or-later

package daebug

import (
	"os"
	"strings"
	"testing"

	"git.sr.ht/~shulhan/pakakeh.go/lib/test"
)

func TestRegistry_getOrCreate(t *testing.T) {
	var env = newTestEnv(t)
	var reg, err = NewRegistry(env)
	if err != nil {
		t.Fatal(err)
	}

	var page, isNew, cerr = reg.getOrCreate(`My Page`, `http://x`)
	if cerr != nil {
		t.Fatal(cerr)
	}
	test.Assert(t, `isNew`, true, isNew)
	test.Assert(t, `state`, PageStateIdle, page.State)

	var again, isNew2, cerr2 = reg.getOrCreate(`My Page`, `http://y`)
	if cerr2 != nil {
		t.Fatal(cerr2)
	}
	test.Assert(t, `isNew (second call)`, false, isNew2)
	if again != page {
		t.Fatal(`getOrCreate: expected the same Page instance`)
	}
	test.Assert(t, `url unchanged by second call`, `http://x`, again.URL)
}

func TestRegistry_getOrCreate_adoptsExistingFile(t *testing.T) {
	var env = newTestEnv(t)
	var reg, err = NewRegistry(env)
	if err != nil {
		t.Fatal(err)
	}

	var existing = env.dirPages + `/tab-1.md`
	var werr = os.WriteFile(existing, []byte(canonicalFooter+"\n"), 0600)
	if werr != nil {
		t.Fatal(werr)
	}

	var page, _, cerr = reg.getOrCreate(`Tab 1`, ``)
	if cerr != nil {
		t.Fatal(cerr)
	}
	test.Assert(t, `adopted file`, existing, page.File)
}

func TestRegistry_updateMaster(t *testing.T) {
	var env = newTestEnv(t)
	var reg, err = NewRegistry(env)
	if err != nil {
		t.Fatal(err)
	}

	var _, _, cerr = reg.getOrCreate(`p1`, ``)
	if cerr != nil {
		t.Fatal(cerr)
	}

	var raw, rerr = os.ReadFile(env.masterPath())
	if rerr != nil {
		t.Fatal(rerr)
	}
	test.Assert(t, `master mentions page`, true, strings.Contains(string(raw), `p1`))
}

func TestSanitizeName_idempotentPublic(t *testing.T) {
	var names = []string{`Worker://Tab 1`, ``, `already-sane`}
	for _, n := range names {
		var once = sanitizeName(n)
		var twice = sanitizeName(once)
		test.Assert(t, `idempotent: `+n, once, twice)
	}
}
