// SPDX-FileCopyrightText: 2023 M. Shulhan <ms@kilabit.info>
// SPDX-License-Identifier: GPL-3.0-or-later

package daebug

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"git.sr.ht/~shulhan/pakakeh.go/lib/clise"
	"git.sr.ht/~shulhan/pakakeh.go/lib/mlog"
)

// Page states.
const (
	PageStateIdle      = `idle`
	PageStateExecuting = `executing`
)

const defRecentCodeSize = 20

// Page is a connected runtime: a top-level browser tab or a Web Worker,
// identified by a stable name chosen by the runtime on first contact.
type Page struct {
	LastSeen time.Time `json:"last_seen"`

	Name  string `json:"name"`
	URL   string `json:"url,omitempty"`
	File  string `json:"file"`
	State string `json:"state"`

	watcher            *pageWatcher
	recentCodeSnippets *clise.Clise

	mu   sync.Mutex
	seen bool
}

func newPage(name, url, file string) *Page {
	return &Page{
		Name:               name,
		URL:                url,
		File:               file,
		State:              PageStateIdle,
		LastSeen:           TimeNow(),
		recentCodeSnippets: clise.New(defRecentCodeSize),
	}
}

func (page *Page) touch() {
	page.mu.Lock()
	page.LastSeen = TimeNow()
	page.mu.Unlock()
}

func (page *Page) setState(state string) {
	page.mu.Lock()
	page.State = state
	page.mu.Unlock()
}

func (page *Page) markSeen() {
	page.mu.Lock()
	page.seen = true
	page.mu.Unlock()
}

func (page *Page) isSeen() bool {
	page.mu.Lock()
	defer page.mu.Unlock()
	return page.seen
}

// logSnippet records a truncated, whitespace-normalized preview of code in
// the page's bounded recent-snippet ring, used only by the operator-facing
// environment introspection endpoint.
func (page *Page) logSnippet(code string) {
	var normalized = strings.Join(strings.Fields(code), ` `)
	if len(normalized) > 20 {
		normalized = normalized[:20]
	}
	if page.recentCodeSnippets != nil {
		_, _ = page.recentCodeSnippets.Write([]byte(normalized))
	}
}

// recentSnippets returns the page's bounded recent-code ring in insertion
// order, oldest first.
func (page *Page) recentSnippets() []string {
	if page.recentCodeSnippets == nil {
		return nil
	}
	var raw = page.recentCodeSnippets.Slice()
	var out = make([]string, 0, len(raw))
	for _, v := range raw {
		if b, ok := v.([]byte); ok {
			out = append(out, string(b))
		}
	}
	return out
}

// Registry maps page name to Page and tracks the broker's start time.
type Registry struct {
	env       *Env
	pages     map[string]*Page
	startTime time.Time
	mu        sync.Mutex
}

// NewRegistry creates a Registry rooted at env.Root and ensures the master
// index file exists.
func NewRegistry(env *Env) (reg *Registry, err error) {
	reg = &Registry{
		env:       env,
		pages:     make(map[string]*Page),
		startTime: TimeNow(),
	}

	err = reg.ensureMasterFile()
	if err != nil {
		return nil, fmt.Errorf(`NewRegistry: %w`, err)
	}
	return reg, nil
}

func (reg *Registry) ensureMasterFile() (err error) {
	var path = reg.env.masterPath()

	_, err = os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return err
	}
	return os.WriteFile(path, renderMasterIndex(reg.env.Name, nil, reg.startTime), 0600)
}

// getOrCreate returns the Page named name, creating it (and its backing
// file) on first contact. url is recorded as the page's origin on
// creation only; later calls only refresh lastSeen.
func (reg *Registry) getOrCreate(name, url string) (page *Page, isNew bool, err error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	var existing, ok = reg.pages[name]
	if ok {
		existing.touch()
		return existing, false, nil
	}

	var file string
	file, err = reg.resolvePageFile(name)
	if err != nil {
		return nil, false, err
	}
	if _, serr := os.Stat(file); os.IsNotExist(serr) {
		err = os.WriteFile(file, []byte(canonicalFooter+"\n"), 0600)
		if err != nil {
			return nil, false, err
		}
	}

	page = newPage(name, url, file)
	reg.pages[name] = page

	err = reg.updateMasterLocked()
	if err != nil {
		mlog.Errf(`Registry: getOrCreate: %s: %s`, name, err)
	}
	return page, true, nil
}

// resolvePageFile implements spec.md §4.C step 2: prefer an existing file
// in the pages directory whose basename (sans extension) case-insensitively
// matches the sanitized name and that still carries the footer sentinel;
// otherwise derive a fresh path.
func (reg *Registry) resolvePageFile(name string) (string, error) {
	var sanitized = sanitizeName(name)
	var dir = filepath.Join(reg.env.Root, reg.env.PagesDir)

	var entries, err = os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return ``, err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var base = strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		if !strings.EqualFold(base, sanitized) {
			continue
		}

		var path = filepath.Join(dir, entry.Name())
		var content []byte
		content, err = os.ReadFile(path)
		if err != nil {
			continue
		}
		if strings.Contains(string(content), footerInstruction) {
			return path, nil
		}
	}

	return filepath.Join(dir, sanitized+`.md`), nil
}

// get returns the Page named name, if any.
func (reg *Registry) get(name string) (page *Page, ok bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	page, ok = reg.pages[name]
	return page, ok
}

// all returns every known Page.
func (reg *Registry) all() []*Page {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	var out = make([]*Page, 0, len(reg.pages))
	for _, page := range reg.pages {
		out = append(out, page)
	}
	return out
}

// updateMaster re-renders the master index file from the current page
// map, sorted by lastSeen descending.
func (reg *Registry) updateMaster() error {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.updateMasterLocked()
}

func (reg *Registry) updateMasterLocked() error {
	var pages = make([]*Page, 0, len(reg.pages))
	for _, page := range reg.pages {
		pages = append(pages, page)
	}
	sort.Slice(pages, func(i, j int) bool {
		return pages[i].LastSeen.After(pages[j].LastSeen)
	})

	return os.WriteFile(reg.env.masterPath(), renderMasterIndex(reg.env.Name, pages, reg.startTime), 0600)
}

// renderMasterIndex renders the master index file content listing every
// known page, most recently seen first.
func renderMasterIndex(name string, pages []*Page, startTime time.Time) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", name)
	fmt.Fprintf(&b, "Started at %s.\n\n", startTime.Local().Format(time.RFC3339))

	if len(pages) == 0 {
		b.WriteString("No pages have connected yet.\n")
	} else {
		b.WriteString("| Page | State | Last seen |\n")
		b.WriteString("|---|---|---|\n")
		for _, page := range pages {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", page.Name, page.State, clockFmt(page.LastSeen))
		}
	}

	b.WriteString("\nWrite a line containing exactly `%%SHUTDOWN%%` to stop the broker.\n")
	return []byte(b.String())
}

// writeShutdownIndex rewrites the master file with the shutdown template,
// called once the shutdown sentinel has been detected.
func (reg *Registry) writeShutdownIndex() error {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", reg.env.Name)
	b.WriteString("Shutting down.\n")
	return os.WriteFile(reg.env.masterPath(), []byte(b.String()), 0600)
}
