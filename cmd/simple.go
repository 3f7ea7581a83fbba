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
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bizflycloud/beebotte-mqtt/pkg/beebotte"
	"github.com/bizflycloud/beebotte-mqtt/pkg/broker"
)

var (
	simpleTopic    string
	simpleCount    int
	simpleInterval time.Duration
)

// simpleCmd represents the simple command
var simpleCmd = &cobra.Command{
	Use:   "simple",
	Short: "Subscribe to a resource and publish a few messages to it.",
	Long: `Subscribe to <topic>/# and publish "test count N" to <topic>/1.

The topic must be "channel/resource", so a channel named "test" with a
resource named "res" is needed for the default topic.`,
	Run: func(cmd *cobra.Command, args []string) {
		token := channelToken()
		c, err := newClient()
		if err != nil {
			logger.Fatal("failed to create client", zap.Error(err))
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := runSimple(ctx, c, token, cmd.OutOrStdout()); err != nil {
			logger.Error("simple sample failed", zap.Error(err))
			os.Exit(1)
		}
	},
}

func runSimple(ctx context.Context, c *beebotte.Client, token string, out io.Writer) error {
	onConnect := func(broker.ConnectEvent) {
		fmt.Fprintln(out, "Connected to Beebotte")
	}
	onMessage := func(e broker.Event) error {
		fmt.Fprintf(out, "[%s] %s\n", e.Topic, e.Payload)
		return nil
	}
	if err := c.Connect(token, onConnect, onMessage); err != nil {
		return err
	}
	defer c.Close()
	if err := c.Start(); err != nil {
		return err
	}

	fmt.Fprintln(out, "Subscribe to "+simpleTopic+"/#")
	if err := c.Subscribe(beebotte.Topic(simpleTopic + "/#")); err != nil {
		return err
	}

	for i := 0; i < simpleCount; i++ {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "Stop requested.")
			c.Stop(true)
			return nil
		case <-time.After(simpleInterval):
		}
		fmt.Fprintln(out, "Publish a message to "+simpleTopic+"/1")
		if _, err := c.PublishString(simpleTopic+"/1", fmt.Sprintf("test count %d", i), 0, false); err != nil {
			return err
		}
	}

	// wait for the last message to come back
	select {
	case <-ctx.Done():
	case <-time.After(simpleInterval):
	}
	c.Stop(true)
	return nil
}

func init() {
	rootCmd.AddCommand(simpleCmd)
	simpleCmd.Flags().StringVar(&simpleTopic, "topic", "test/res", "topic as channel/resource.")
	simpleCmd.Flags().IntVar(&simpleCount, "count", 3, "number of messages to publish.")
	simpleCmd.Flags().DurationVar(&simpleInterval, "interval", 5*time.Second, "delay before each publish.")
}
