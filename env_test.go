// SPDX-FileCopyrightText: 2021 M. Shulhan <ms@kilabit.info>
// SPDX-License-Identifier: GPL-3.0-or-later

package daebug

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestNewEnv(t *testing.T) {
	var env = NewEnv()

	if env.Name != defEnvName {
		t.Fatalf(`Name: got %q, want %q`, env.Name, defEnvName)
	}
	if env.MasterFile != defMasterFile {
		t.Fatalf(`MasterFile: got %q, want %q`, env.MasterFile, defMasterFile)
	}
	if env.PagesDir != defPagesDir {
		t.Fatalf(`PagesDir: got %q, want %q`, env.PagesDir, defPagesDir)
	}
	if env.PollTimeoutMin != defPollTimeoutMin {
		t.Fatalf(`PollTimeoutMin: got %s, want %s`, env.PollTimeoutMin, defPollTimeoutMin)
	}
	if env.JobTimeout != defJobTimeout {
		t.Fatalf(`JobTimeout: got %s, want %s`, env.JobTimeout, defJobTimeout)
	}
}

func TestEnv_init(t *testing.T) {
	var (
		dir = t.TempDir()
		env = &Env{Root: dir}
	)

	var err = env.init()
	if err != nil {
		t.Fatal(err)
	}

	if len(env.Secret) == 0 {
		t.Fatal(`init: Secret should have been generated`)
	}
	var wantAddress = fmt.Sprintf(`127.0.0.1:%d`, derivePort(filepath.Base(dir)))
	if env.ListenAddress != wantAddress {
		t.Fatalf(`ListenAddress: got %q, want %q`, env.ListenAddress, wantAddress)
	}

	var wantPages = filepath.Join(dir, defPagesDir)
	if env.dirPages != wantPages {
		t.Fatalf(`dirPages: got %q, want %q`, env.dirPages, wantPages)
	}

	var fi os.FileInfo
	fi, err = os.Stat(wantPages)
	if err != nil {
		t.Fatal(err)
	}
	if !fi.IsDir() {
		t.Fatalf(`%s: not a directory`, wantPages)
	}
}

func TestEnv_init_presetSecret(t *testing.T) {
	var (
		dir = t.TempDir()
		env = &Env{Root: dir, Secret: `my-secret`}
	)

	var err = env.init()
	if err != nil {
		t.Fatal(err)
	}

	if env.Secret != `my-secret` {
		t.Fatalf(`Secret: got %q, want %q`, env.Secret, `my-secret`)
	}
}

func TestDerivePort_deterministicAndDistinct(t *testing.T) {
	var a = derivePort(`project-a`)
	var again = derivePort(`project-a`)
	if a != again {
		t.Fatalf(`derivePort: not deterministic: %d != %d`, a, again)
	}

	var b = derivePort(`project-b`)
	if a == b {
		t.Fatalf(`derivePort: expected different basenames to (likely) derive different ports, both got %d`, a)
	}

	if a < 1024 || a > 65535 {
		t.Fatalf(`derivePort: %d out of valid unprivileged TCP port range`, a)
	}
}

func TestEnv_masterPath(t *testing.T) {
	var env = &Env{Root: `/tmp/x`, MasterFile: `daebug.md`}

	var got = env.masterPath()
	var want = filepath.Join(`/tmp/x`, `daebug.md`)
	if got != want {
		t.Fatalf(`masterPath: got %q, want %q`, got, want)
	}
}
