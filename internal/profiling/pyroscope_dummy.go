// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

//go:build !pyroscope
// +build !pyroscope

package profiling

import "gopkg.in/op/go-logging.v1"

// Start does nothing, profiling is not compiled in.
func Start(log *logging.Logger, session string) (func(), error) {
	log.Debug("Pyroscope is disabled")
	return func() {}, nil
}
