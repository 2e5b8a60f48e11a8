// SPDX-FileCopyrightText: 2023 M. Shulhan <ms@kilabit.info>
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	daebug "git.sr.ht/~shulhan/daebug"
	"git.sr.ht/~shulhan/pakakeh.go/lib/mlog"
)

// version is set at release time via -ldflags.
var version = `devel`

func main() {
	mlog.SetPrefix(`daebug:`)

	var (
		root        string
		port        string
		showHelp    bool
		showVersion bool
	)

	flag.StringVar(&root, `root`, ``, `the root directory that contains the master file and the pages directory (default: current directory)`)
	flag.StringVar(&port, `port`, ``, `the TCP port to listen on, overriding the PORT environment variable (default: derived deterministically from the root directory's name)`)
	flag.BoolVar(&showHelp, `help`, false, `print this help message`)
	flag.BoolVar(&showVersion, `version`, false, `print the version and exit`)
	flag.Parse()

	if showHelp {
		flag.PrintDefaults()
		return
	}
	if showVersion {
		fmt.Println(`daebug`, version)
		return
	}

	var env = daebug.NewEnv()
	env.Root = root

	if len(port) == 0 {
		port = os.Getenv(`PORT`)
	}
	if len(port) > 0 {
		env.ListenAddress = `127.0.0.1:` + port
	}

	var b, err = daebug.New(env)
	if err != nil {
		mlog.Fatalf(err.Error())
	}

	go func() {
		var c = make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
		<-c
		var serr = b.Stop()
		if serr != nil {
			mlog.Errf(serr.Error())
		}
	}()

	defer func() {
		var r = recover()
		if r != nil {
			mlog.Errf("recover: %s\n", r)
			mlog.Flush()
			debug.PrintStack()
			os.Exit(1)
		}
	}()
	defer mlog.Flush()

	err = b.Start()
	if err != nil {
		mlog.Fatalf(err.Error())
	}
}
