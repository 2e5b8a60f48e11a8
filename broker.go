// SPDX-FileCopyrightText: 2023 M. Shulhan <ms@kilabit.info>
// SPDX-License-Identifier: GPL-3.0-or-later

// Package daebug implements a file-mediated REPL broker: it lets an
// external editor or agent drive JavaScript execution inside a running
// browser page or worker by exchanging requests and replies through plain
// Markdown files, with the runtime-facing long-poll/result protocol
// served over HTTP.
package daebug

import (
	"fmt"

	libhttp "git.sr.ht/~shulhan/pakakeh.go/lib/http"
	"git.sr.ht/~shulhan/pakakeh.go/lib/mlog"
)

// Broker is the top-level server: it owns the page Registry, the
// jobManager, the file and shutdown watchers, and the HTTP server that
// exposes the long-poll/result protocol and the static client assets.
type Broker struct {
	env *Env

	reg *Registry
	jm  *jobManager
	fw  *fileWatcher
	sw  *shutdownWatcher

	httpd *libhttp.Server
}

// New creates a Broker from env, wiring together the registry, job
// manager, watchers, and HTTP server. It does not start listening; call
// Start for that.
func New(env *Env) (b *Broker, err error) {
	var logp = `New`

	err = env.init()
	if err != nil {
		return nil, fmt.Errorf(`%s: %w`, logp, err)
	}

	b = &Broker{env: env}

	b.reg, err = NewRegistry(env)
	if err != nil {
		return nil, fmt.Errorf(`%s: %w`, logp, err)
	}

	b.jm = newJobManager(env)

	b.fw, err = newFileWatcher(env, b.reg, b.jm)
	if err != nil {
		return nil, fmt.Errorf(`%s: %w`, logp, err)
	}

	b.sw, err = newShutdownWatcher(env, b.onShutdownSentinel)
	if err != nil {
		return nil, fmt.Errorf(`%s: %w`, logp, err)
	}

	var serverOpts = &libhttp.ServerOptions{
		Address: env.ListenAddress,
	}

	err = b.initAssets(serverOpts)
	if err != nil {
		return nil, fmt.Errorf(`%s: %w`, logp, err)
	}

	b.httpd, err = libhttp.NewServer(serverOpts)
	if err != nil {
		return nil, fmt.Errorf(`%s: %w`, logp, err)
	}

	err = b.initHTTPd()
	if err != nil {
		return nil, fmt.Errorf(`%s: %w`, logp, err)
	}

	return b, nil
}

// Start runs the HTTP server. It blocks until Stop is called or the
// listener fails.
func (b *Broker) Start() (err error) {
	mlog.Outf(`daebug: listening on %s, root=%s`, b.env.ListenAddress, b.env.Root)
	err = b.httpd.Start()
	if err != nil {
		return fmt.Errorf(`Start: %w`, err)
	}
	return nil
}

// Stop shuts down the HTTP server and the background watchers.
func (b *Broker) Stop() (err error) {
	b.sw.stop()
	b.fw.stop()

	err = b.httpd.Stop(0)
	if err != nil {
		return fmt.Errorf(`Stop: %w`, err)
	}
	return nil
}

// onShutdownSentinel is invoked once the shutdown marker is detected in
// the master file (spec.md §4.G); it stops the broker from a background
// goroutine.
func (b *Broker) onShutdownSentinel() {
	mlog.Outf(`daebug: shutdown marker detected, stopping`)

	var werr = b.reg.writeShutdownIndex()
	if werr != nil {
		mlog.Errf(`onShutdownSentinel: %s`, werr)
	}

	var err = b.Stop()
	if err != nil {
		mlog.Errf(`onShutdownSentinel: %s`, err)
	}
}
