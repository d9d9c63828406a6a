// Copyright (C) The Strata Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package strata

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var version = "dev"

type commandHandler interface {
	RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int
}

var handler = multi{
	"version":   versioncmd{},
	"-version":  versioncmd{},
	"--version": versioncmd{},

	"preview":      &previewcmd{},
	"deg":          &degcmd{},
	"summary":      &summarycmd{},
	"volcano":      &volcanocmd{},
	"boxplot":      &boxplotcmd{},
	"pca":          &pcacmd{},
	"stability":    &stabilitycmd{},
	"elastic-net":  &elasticnetcmd{},
	"rfe":          &rfecmd{},
	"export-numpy": &exportNumpy{},
	"serve":        &servecmd{},
}

type multi map[string]commandHandler

func (m multi) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintf(stderr, "usage: %s command [options]\n\ncommands:\n", prog)
		var names []string
		for name := range m {
			if name[0] != '-' {
				names = append(names, name)
			}
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(stderr, "  %s\n", name)
		}
		return 2
	}
	cmd, ok := m[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "%s: unrecognized command %q (try %q with no arguments for a list)\n", prog, args[0], prog)
		return 2
	}
	return cmd.RunCommand(prog+" "+args[0], args[1:], stdin, stdout, stderr)
}

type versioncmd struct{}

func (versioncmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fmt.Fprintf(stdout, "strata %s\n", version)
	return 0
}

func Main() {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		logrus.StandardLogger().Formatter = &logrus.TextFormatter{DisableTimestamp: true}
	}
	os.Exit(handler.RunCommand(os.Args[0], os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
