// SPDX-FileCopyrightText: 2021 M. Shulhan <ms@kilabit.info>
// SPDX-License-Identifier: GPL-3.0-or-later

package daebug

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"time"

	"git.sr.ht/~shulhan/pakakeh.go/lib/ascii"
	libhtml "git.sr.ht/~shulhan/pakakeh.go/lib/html"
	"git.sr.ht/~shulhan/pakakeh.go/lib/ini"
	"git.sr.ht/~shulhan/pakakeh.go/lib/mlog"
)

const (
	defEnvName        = `daebug`
	defMasterFile     = `daebug.md`
	defPagesDir       = `pages`
	defPollTimeoutMin = 10 * time.Second
	defPollTimeoutMax = 15 * time.Second
	defJobTimeout     = 60 * time.Second
	defDebounce       = 150 * time.Millisecond
	defTicker         = 5 * time.Second
)

// Env contains configuration for the broker: where its root directory is,
// the address it listens on, and the timing constants that govern the job
// lifecycle.
type Env struct {
	// Root is the directory that contains the MasterFile and the
	// PagesDir. Defaults to the current working directory.
	Root string `ini:"daebug::root" json:"root"`

	// Name of the service. Used as the log prefix and the title on the
	// master index file.
	Name string `ini:"daebug::name" json:"name"`
	name string

	// ListenAddress for the HTTP server. Defaults to a port derived
	// deterministically from Root's basename (see derivePort), unless
	// the PORT environment variable or the --port flag override it.
	ListenAddress string `ini:"daebug::listen_address" json:"listen_address"`

	// MasterFile is the basename of the master index file inside Root.
	MasterFile string `ini:"daebug::master_file" json:"master_file"`

	// PagesDir is the basename of the directory, inside Root, holding
	// one Markdown file per connected Page.
	PagesDir string `ini:"daebug::pages_dir" json:"pages_dir"`

	// Secret signs requests made through the admin Client. Optional: if
	// empty, one is generated and printed on startup.
	Secret  string `ini:"daebug::secret" json:"-"`
	secretb []byte

	// PollTimeoutMin/PollTimeoutMax bound the randomized long-poll
	// deadline (spec: 10-15s).
	PollTimeoutMin time.Duration `ini:"daebug::poll_timeout_min" json:"poll_timeout_min"`
	PollTimeoutMax time.Duration `ini:"daebug::poll_timeout_max" json:"poll_timeout_max"`

	// JobTimeout bounds how long a Job may run before it is finished
	// with a synthesized timeout error (spec: 60s).
	JobTimeout time.Duration `ini:"daebug::job_timeout" json:"job_timeout"`

	// Debounce is how long the file watcher waits after the last
	// filesystem event before re-parsing a page file (spec: 150ms).
	Debounce time.Duration `ini:"daebug::debounce" json:"debounce"`

	// Ticker is how often the executing-placeholder is refreshed while
	// a job is running (spec: 5s).
	Ticker time.Duration `ini:"daebug::ticker" json:"ticker"`

	dirPages string
	file     string
}

// LoadEnv loads the configuration from an ini file.
func LoadEnv(file string) (env *Env, err error) {
	var (
		logp = `LoadEnv`
		cfg  *ini.Ini
	)

	cfg, err = ini.Open(file)
	if err != nil {
		return nil, fmt.Errorf(`%s: %w`, logp, err)
	}

	env = &Env{file: file}

	err = cfg.Unmarshal(env)
	if err != nil {
		return nil, fmt.Errorf(`%s: %w`, logp, err)
	}

	return env, nil
}

// NewEnv creates a new Env with default values: name "daebug", master file
// "daebug.md", pages directory "pages", and the timing constants from
// spec.md §4.
func NewEnv() (env *Env) {
	env = &Env{
		Name:           defEnvName,
		MasterFile:     defMasterFile,
		PagesDir:       defPagesDir,
		PollTimeoutMin: defPollTimeoutMin,
		PollTimeoutMax: defPollTimeoutMax,
		JobTimeout:     defJobTimeout,
		Debounce:       defDebounce,
		Ticker:         defTicker,
	}
	return env
}

// init normalizes and completes the Env after it has been loaded or
// constructed: filling defaults, resolving directories, and generating a
// Secret if one was not set.
func (env *Env) init() (err error) {
	var logp = `init`

	if len(env.Name) == 0 {
		env.Name = defEnvName
	}
	env.name = libhtml.NormalizeForID(env.Name)

	if len(env.Root) == 0 {
		env.Root, err = os.Getwd()
		if err != nil {
			return fmt.Errorf(`%s: %w`, logp, err)
		}
	}

	if len(env.ListenAddress) == 0 {
		env.ListenAddress = fmt.Sprintf(`127.0.0.1:%d`, derivePort(filepath.Base(env.Root)))
	}
	if len(env.MasterFile) == 0 {
		env.MasterFile = defMasterFile
	}
	if len(env.PagesDir) == 0 {
		env.PagesDir = defPagesDir
	}
	if env.PollTimeoutMin <= 0 {
		env.PollTimeoutMin = defPollTimeoutMin
	}
	if env.PollTimeoutMax <= 0 {
		env.PollTimeoutMax = defPollTimeoutMax
	}
	if env.JobTimeout <= 0 {
		env.JobTimeout = defJobTimeout
	}
	if env.Debounce <= 0 {
		env.Debounce = defDebounce
	}
	if env.Ticker <= 0 {
		env.Ticker = defTicker
	}

	if len(env.Secret) == 0 {
		var secret = ascii.Random([]byte(ascii.LettersNumber), 32)
		env.Secret = string(secret)

		mlog.Outf(`!!! WARNING: Your secret is empty and has been generated: %s`, secret)
	}
	env.secretb = []byte(env.Secret)

	env.dirPages = filepath.Join(env.Root, env.PagesDir)

	err = os.MkdirAll(env.dirPages, 0700)
	if err != nil {
		return fmt.Errorf(`%s: %s: %w`, logp, env.dirPages, err)
	}

	return nil
}

// masterPath returns the absolute path to the master index file.
func (env *Env) masterPath() string {
	return filepath.Join(env.Root, env.MasterFile)
}

// derivePort computes a deterministic, unprivileged TCP port from
// basename (spec.md §6: "--port <n> (default: deterministic function of
// the basename)"), so that two brokers rooted at differently-named
// directories default to stable, distinct ports without coordination.
func derivePort(basename string) int {
	var h = fnv.New32a()
	_, _ = h.Write([]byte(basename))
	return 1024 + int(h.Sum32()%64511)
}
