// This file is part of beebotte-mqtt
//
// Copyright (C) 2020  BizFly Cloud
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bizflycloud/beebotte-mqtt/pkg/beebotte"
)

var (
	debugSchedule string
	debugStatus   time.Duration
)

// debugCmd represents the debug command
var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Exercise the client with debug logging until interrupted.",
	Long: `Subscribe to <topic_base>/test/# and publish "test message 2" and
"test message 3" to <topic_base>/test/2 and <topic_base>/test/3 on a schedule.

host, port, ca_cert, channel_token and topic_base are read from the config file.`,
	PreRun: func(cmd *cobra.Command, args []string) {
		if !debug {
			l, err := zap.NewDevelopment()
			if err != nil {
				panic(err)
			}
			logger = l
			zap.ReplaceGlobals(logger)
		}
		if err := checkStatusInterval(debugStatus); err != nil {
			logger.Fatal("invalid flag", zap.Error(err))
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		token := channelToken()
		c, err := newClient()
		if err != nil {
			logger.Fatal("failed to create client", zap.Error(err))
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := runDebug(ctx, c, token, viper.GetString("topic_base")); err != nil {
			logger.Error("debug sample failed", zap.Error(err))
			os.Exit(1)
		}
	},
}

func checkStatusInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("--status-interval must be positive, got %s", d)
	}
	return nil
}

func runDebug(ctx context.Context, c *beebotte.Client, token, topicBase string) error {
	if err := c.Connect(token, nil, nil); err != nil {
		return err
	}
	defer c.Close()
	if err := c.Start(); err != nil {
		return err
	}
	if err := c.Subscribe(beebotte.Topic(topicBase + "/test/#")); err != nil {
		return err
	}

	sched := cron.New()
	if _, err := sched.AddFunc(debugSchedule, func() {
		for _, n := range []string{"2", "3"} {
			if _, err := c.PublishString(topicBase+"/test/"+n, "test message "+n, 0, false); err != nil {
				logger.Error("publish failed", zap.String("topic", topicBase+"/test/"+n), zap.Error(err))
			}
		}
	}); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sched.Start()
		<-ctx.Done()
		<-sched.Stop().Done()
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(debugStatus)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				logger.Debug("client status",
					zap.Strings("topics", c.Topics()),
					zap.Int("pending", c.Pending()),
					zap.Bool("running", c.Running()))
			}
		}
	})
	err := g.Wait()

	logger.Info("Stopping...")
	c.Stop(true)
	return err
}

func init() {
	rootCmd.AddCommand(debugCmd)
	debugCmd.Flags().StringVar(&debugSchedule, "schedule", "@every 5s", "cron schedule of the test publishes.")
	debugCmd.Flags().DurationVar(&debugStatus, "status-interval", 30*time.Second, "interval between client status logs.")
}
