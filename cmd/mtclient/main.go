// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/katzenpost/mtproto/client"
	"github.com/katzenpost/mtproto/client/config"
	"github.com/katzenpost/mtproto/client/updates"
	"github.com/katzenpost/mtproto/common"
	"github.com/katzenpost/mtproto/core/tl"
	"github.com/katzenpost/mtproto/core/tl/api"
	"github.com/katzenpost/mtproto/internal/profiling"
)

// Config holds the command line configuration
type Config struct {
	ConfigFile string
	DC         int
	Follow     bool
	Timeout    int
}

func newRootCommand() *cobra.Command {
	var cfg Config

	cmd := &cobra.Command{
		Use:   "mtclient",
		Short: "MTProto client connectivity tool",
		Long: `mtclient connects to a data center, creating an auth key if the session
has none, and reports the round trip time and the update state of the
account.  With --follow it keeps the session open and prints the updates
pushed by the server, in order, until interrupted.`,
		Example: `  # Check connectivity with the built in data centers
  mtclient

  # Use a persistent session and data center 4
  mtclient -c client.toml --dc 4

  # Print updates until interrupted
  mtclient -c client.toml --follow`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, cfg)
		},
	}

	cmd.Flags().StringVarP(&cfg.ConfigFile, "config", "c", "", "configuration file")
	cmd.Flags().IntVar(&cfg.DC, "dc", 0, "data center to connect to, overriding the configuration")
	cmd.Flags().BoolVar(&cfg.Follow, "follow", false, "print updates until interrupted")
	cmd.Flags().IntVarP(&cfg.Timeout, "timeout", "t", 60, "timeout in seconds for the initial calls")

	return cmd
}

func main() {
	common.ExecuteWithFang(newRootCommand())
}

func loadConfig(cfg Config) (*config.Config, error) {
	var (
		clientCfg *config.Config
		err       error
	)
	if cfg.ConfigFile == "" {
		clientCfg, err = config.Load(nil)
	} else {
		clientCfg, err = config.LoadFile(cfg.ConfigFile)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config file '%v': %v", cfg.ConfigFile, err)
	}
	if cfg.DC != 0 {
		if clientCfg.Network.Address(cfg.DC, false) == "" {
			return nil, fmt.Errorf("invalid argument: DC %d has no address", cfg.DC)
		}
		clientCfg.Network.DefaultDC = cfg.DC
	}
	return clientCfg, nil
}

func run(cmd *cobra.Command, cfg Config) error {
	clientCfg, err := loadConfig(cfg)
	if err != nil {
		return err
	}
	out := common.NewOutput(cmd.OutOrStdout())

	var h updates.Handler
	if cfg.Follow {
		h = updates.HandlerFunc(func(ev *updates.Event) {
			printEvent(out, ev)
		})
	}
	c, err := client.New(clientCfg, h)
	if err != nil {
		return fmt.Errorf("failed to create client: %v", err)
	}
	defer c.Shutdown()

	stopProfiling, err := profiling.Start(c.GetLogger("profiling"), clientCfg.Session.Name)
	if err != nil {
		return err
	}
	defer stopProfiling()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	callCtx, callCancel := context.WithTimeout(ctx, time.Duration(cfg.Timeout)*time.Second)
	defer callCancel()

	out.Field("Data center", c.Network().PrimaryDC())
	rtt, err := c.Network().Ping(callCtx)
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	out.Field("Round trip", rtt.Round(time.Millisecond))

	res, err := c.Call(callCtx, &api.UpdatesGetState{})
	if err != nil {
		return fmt.Errorf("updates.getState failed: %w", err)
	}
	st, ok := res.(*api.UpdatesState)
	if !ok {
		return fmt.Errorf("unexpected answer to updates.getState: %s", tl.TypeName(res))
	}
	out.Field("pts", st.Pts)
	out.Field("qts", st.Qts)
	out.Field("seq", st.Seq)
	out.Field("date", time.Unix(int64(st.Date), 0).UTC().Format(time.RFC3339))
	out.Field("unread", st.UnreadCount)

	if !cfg.Follow {
		return nil
	}
	if err := c.Start(callCtx); err != nil {
		return err
	}
	out.Line("Following updates, interrupt to stop.")
	select {
	case <-ctx.Done():
	case <-c.HaltCh():
	}
	return nil
}

func printEvent(out *common.Output, ev *updates.Event) {
	switch ev.Kind {
	case updates.EventReset:
		out.Line("state reset (channel %d, pts %d)", ev.ChannelID, ev.Pts)
	default:
		label := tl.TypeName(ev.Update)
		if ev.ChannelID != 0 {
			label = fmt.Sprintf("%s [channel %d]", label, ev.ChannelID)
		}
		suffix := ""
		if ev.FromDifference {
			suffix = " (difference)"
		}
		out.Field(label, fmt.Sprintf("pts %d%s", ev.Pts, suffix))
	}
}
