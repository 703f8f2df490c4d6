// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package common provides the shared command line plumbing of the tools.
package common

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"charm.land/lipgloss/v2"
	"github.com/carlmjohnson/versioninfo"
	"github.com/charmbracelet/colorprofile"
	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var usageErrors = []string{
	"flag needs an argument:",
	"unknown flag:",
	"unknown shorthand flag:",
	"unknown command",
	"invalid argument",
	"required flag",
	"accepts",
	"arg(s), received",
	"failed to load config file",
}

// ExecuteWithFang runs cmd through fang and exits non zero on failure.
func ExecuteWithFang(cmd *cobra.Command) {
	if err := fang.Execute(
		context.Background(),
		cmd,
		fang.WithVersion(versioninfo.Short()),
		fang.WithErrorHandler(ErrorHandlerWithUsage(cmd)),
	); err != nil {
		os.Exit(1)
	}
}

// ErrorHandlerWithUsage prints err, followed by the usage of cmd when err
// is a command line mistake.
func ErrorHandlerWithUsage(cmd *cobra.Command) fang.ErrorHandler {
	return func(w io.Writer, styles fang.Styles, err error) {
		_, _ = fmt.Fprintln(w, styles.ErrorHeader.String())
		_, _ = fmt.Fprintln(w, styles.ErrorText.Render(err.Error()+"."))
		_, _ = fmt.Fprintln(w)

		if isUsageError(err) {
			if helpFunc := cmd.HelpFunc(); helpFunc != nil {
				helpFunc(cmd, []string{})
			}
			return
		}
		_, _ = fmt.Fprintln(w, lipgloss.JoinHorizontal(
			lipgloss.Left,
			styles.ErrorText.UnsetWidth().Render("Try"),
			styles.Program.Flag.Render("--help"),
			styles.ErrorText.UnsetWidth().UnsetMargins().UnsetTransform().PaddingLeft(1).Render("for usage."),
		))
		_, _ = fmt.Fprintln(w)
	}
}

func isUsageError(err error) bool {
	s := err.Error()
	for _, prefix := range usageErrors {
		if strings.Contains(s, prefix) {
			return true
		}
	}
	return false
}

// Output is a styled writer that degrades to what the terminal supports.
// It is safe for concurrent use.
type Output struct {
	sync.Mutex

	w     io.Writer
	label lipgloss.Style
	value lipgloss.Style
	dim   lipgloss.Style
}

// NewOutput wraps w, detecting the color profile from the environment.
func NewOutput(w io.Writer) *Output {
	return &Output{
		w:     colorprofile.NewWriter(w, os.Environ()),
		label: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14")),
		value: lipgloss.NewStyle(),
		dim:   lipgloss.NewStyle().Faint(true),
	}
}

// Field prints a "label: value" line.
func (o *Output) Field(label string, value interface{}) {
	o.Lock()
	defer o.Unlock()
	_, _ = fmt.Fprintln(o.w, o.label.Render(label+":"), o.value.Render(fmt.Sprint(value)))
}

// Line prints a dimmed line.
func (o *Output) Line(format string, a ...interface{}) {
	o.Lock()
	defer o.Unlock()
	_, _ = fmt.Fprintln(o.w, o.dim.Render(fmt.Sprintf(format, a...)))
}
