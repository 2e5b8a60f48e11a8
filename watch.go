// SPDX-FileCopyrightText: 2023 M. Shulhan <ms@kilabit.info>
// SPDX-License-Identifier: GPL-3.0-or-later

package daebug

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"git.sr.ht/~shulhan/pakakeh.go/lib/memfs"
	"git.sr.ht/~shulhan/pakakeh.go/lib/mlog"
)

// pageWatcher is the non-owning handle a Page carries on its watcher
// struct field; it exists only so fileWatcher's internal state is
// reachable from Page without exporting it.
type pageWatcher struct {
	fw *fileWatcher
}

// fileWatcher is the shared, debounced watcher over a pages directory
// (spec.md §4.D). One fileWatcher instance watches every Page's backing
// file through a single *memfs.DirWatcher.
type fileWatcher struct {
	env *Env
	reg *Registry
	jm  *jobManager

	dir string

	mu             sync.Mutex
	mfs            *memfs.MemFS
	dw             *memfs.DirWatcher
	armedPages     map[string]bool
	lastContent    map[string]string
	debounceTimers map[string]*time.Timer

	stopOnce sync.Once
	stopCh   chan struct{}
}

// newFileWatcher creates a fileWatcher rooted at env.Root/env.PagesDir and
// starts its background event loop.
func newFileWatcher(env *Env, reg *Registry, jm *jobManager) (fw *fileWatcher, err error) {
	fw = &fileWatcher{
		env:            env,
		reg:            reg,
		jm:             jm,
		dir:            filepath.Join(env.Root, env.PagesDir),
		armedPages:     make(map[string]bool),
		lastContent:    make(map[string]string),
		debounceTimers: make(map[string]*time.Timer),
		stopCh:         make(chan struct{}),
	}

	err = fw.arm()
	if err != nil {
		return nil, err
	}

	go fw.loop()
	return fw, nil
}

func (fw *fileWatcher) arm() (err error) {
	var mfs *memfs.MemFS
	mfs, err = memfs.New(&memfs.Options{Root: fw.dir})
	if err != nil {
		return err
	}

	var dw *memfs.DirWatcher
	dw, err = mfs.Watch(memfs.WatchOptions{})
	if err != nil {
		return err
	}

	fw.mu.Lock()
	fw.mfs = mfs
	fw.dw = dw
	fw.mu.Unlock()
	return nil
}

func (fw *fileWatcher) loop() {
	for {
		fw.mu.Lock()
		var ch = fw.dw.C
		fw.mu.Unlock()

		select {
		case _, ok := <-ch:
			if !ok {
				// The underlying watch closed (e.g. the directory
				// itself was removed and recreated); re-arm it.
				var err = fw.arm()
				if err != nil {
					mlog.Errf(`fileWatcher: re-arm: %s`, err)
					return
				}
				continue
			}
			fw.onDirEvent()

		case <-fw.stopCh:
			fw.mu.Lock()
			if fw.dw != nil {
				fw.dw.Stop()
			}
			fw.mu.Unlock()
			return
		}
	}
}

func (fw *fileWatcher) onDirEvent() {
	for _, page := range fw.reg.all() {
		fw.scheduleCheck(page)
	}
}

// watchPage arms debounced watching for page, idempotently, and performs
// an immediate check to pick up an edit that landed before this call.
func (fw *fileWatcher) watchPage(page *Page) {
	fw.mu.Lock()
	if fw.armedPages[page.Name] {
		fw.mu.Unlock()
		return
	}
	fw.armedPages[page.Name] = true
	fw.mu.Unlock()

	page.watcher = &pageWatcher{fw: fw}
	fw.check(page)
}

// scheduleCheck (re)arms the per-page debounce timer.
func (fw *fileWatcher) scheduleCheck(page *Page) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if t, ok := fw.debounceTimers[page.Name]; ok {
		t.Stop()
	}
	fw.debounceTimers[page.Name] = time.AfterFunc(fw.env.Debounce, func() {
		fw.check(page)
	})
}

// check re-reads page's file, and if its content changed since the last
// check, parses it for a pending request and creates a Job if one is
// found and none is already running for this page.
func (fw *fileWatcher) check(page *Page) {
	var raw, err = os.ReadFile(page.File)
	if err != nil {
		if os.IsNotExist(err) {
			fw.mu.Lock()
			fw.lastContent[page.Name] = ``
			fw.mu.Unlock()
		}
		return
	}

	page.markSeen()

	var content = string(raw)

	fw.mu.Lock()
	var prev = fw.lastContent[page.Name]
	if content == prev {
		fw.mu.Unlock()
		return
	}
	fw.lastContent[page.Name] = content
	fw.mu.Unlock()

	var req = parseRequest(content, page.Name)
	if req == nil {
		return
	}

	if fw.jm.get(page.Name) != nil {
		return
	}

	page.logSnippet(req.Code)
	fw.jm.create(page, req)

	var uerr = fw.reg.updateMaster()
	if uerr != nil {
		mlog.Errf(`fileWatcher: check: %s: %s`, page.Name, uerr)
	}
}

// stop tears down the underlying directory watch.
func (fw *fileWatcher) stop() {
	fw.stopOnce.Do(func() {
		close(fw.stopCh)
	})
}

// isShutdownSentinel reports whether text contains a line equal, after
// trimming, to the shutdown marker outside of any fenced code block —
// occurrences inside fenced code or with surrounding prefix text are
// ignored by this exact-line check.
func isShutdownSentinel(text string) bool {
	var inFence bool
	for _, line := range strings.Split(text, "\n") {
		if fenceOpenRe.MatchString(line) || fenceCloseRe.MatchString(line) {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		if strings.TrimSpace(line) == shutdownSentinel {
			return true
		}
	}
	return false
}
