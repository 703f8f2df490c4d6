// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package common

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsUsageError(t *testing.T) {
	require := require.New(t)

	require.True(isUsageError(errors.New("unknown flag: --dcs")))
	require.True(isUsageError(errors.New("failed to load config file 'x.toml': open x.toml: no such file")))
	require.False(isUsageError(errors.New("ping failed: context deadline exceeded")))
}

func TestOutput(t *testing.T) {
	require := require.New(t)

	var buf bytes.Buffer
	o := NewOutput(&buf)
	o.Field("pts", 42)
	o.Line("following %s", "updates")
	require.Contains(buf.String(), "pts:")
	require.Contains(buf.String(), "42")
	require.Contains(buf.String(), "following updates")
}
