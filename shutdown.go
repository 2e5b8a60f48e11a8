// SPDX-FileCopyrightText: 2023 M. Shulhan <ms@kilabit.info>
// SPDX-License-Identifier: GPL-3.0-or-later

package daebug

import (
	"os"
	"sync"
	"time"

	"git.sr.ht/~shulhan/pakakeh.go/lib/memfs"
	"git.sr.ht/~shulhan/pakakeh.go/lib/mlog"
)

// shutdownSentinel is the exact line, on its own, that triggers a
// controlled shutdown when written into the master file.
const shutdownSentinel = `%%SHUTDOWN%%`

// shutdownWatcher watches the master file for shutdownSentinel, reusing
// the same debounce machinery as fileWatcher (spec.md §4.G).
type shutdownWatcher struct {
	env     *Env
	onMatch func()

	mu    sync.Mutex
	mfs   *memfs.MemFS
	dw    *memfs.DirWatcher
	timer *time.Timer

	stopOnce sync.Once
	stopCh   chan struct{}
}

// newShutdownWatcher arms a watcher over env.Root, triggering onMatch the
// first time the master file contains the shutdown sentinel on its own
// line.
func newShutdownWatcher(env *Env, onMatch func()) (sw *shutdownWatcher, err error) {
	sw = &shutdownWatcher{
		env:     env,
		onMatch: onMatch,
		stopCh:  make(chan struct{}),
	}

	sw.mfs, err = memfs.New(&memfs.Options{Root: env.Root})
	if err != nil {
		return nil, err
	}

	sw.dw, err = sw.mfs.Watch(memfs.WatchOptions{})
	if err != nil {
		return nil, err
	}

	go sw.loop()
	sw.check()
	return sw, nil
}

func (sw *shutdownWatcher) loop() {
	for {
		select {
		case _, ok := <-sw.dw.C:
			if !ok {
				return
			}
			sw.scheduleCheck()
		case <-sw.stopCh:
			sw.dw.Stop()
			return
		}
	}
}

func (sw *shutdownWatcher) scheduleCheck() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.timer != nil {
		sw.timer.Stop()
	}
	sw.timer = time.AfterFunc(sw.env.Debounce, sw.check)
}

func (sw *shutdownWatcher) check() {
	var content, err = os.ReadFile(sw.env.masterPath())
	if err != nil {
		return
	}
	if isShutdownSentinel(string(content)) {
		mlog.Outf(`shutdownWatcher: shutdown sentinel detected in %s`, sw.env.MasterFile)
		sw.onMatch()
	}
}

func (sw *shutdownWatcher) stop() {
	sw.stopOnce.Do(func() {
		close(sw.stopCh)
	})
}
