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
	"errors"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/bizflycloud/beebotte-mqtt/pkg/agentversion"
	"github.com/bizflycloud/beebotte-mqtt/pkg/server"
)

var bridgeTopics []string

// bridgeCmd represents the bridge command
var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Run a local HTTP bridge to Beebotte.",
	Run: func(cmd *cobra.Command, args []string) {
		token := channelToken()
		c, err := newClient()
		if err != nil {
			logger.Fatal("failed to create client", zap.Error(err))
		}

		addr := viper.GetString("addr")
		logger.Info("Starting bridge", zap.String("build", agentversion.String()))
		logger.Debug("Listening address: " + addr)
		s, err := server.New(
			server.WithAddr(addr),
			server.WithClient(c),
			server.WithToken(token),
			server.WithSubscribeTopics(bridgeTopics...),
			server.WithLogger(logger),
		)
		if err != nil {
			logger.Fatal("failed to create new server", zap.Error(err))
		}
		if err := s.Run(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server run failed", zap.Error(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(bridgeCmd)
	bridgeCmd.Flags().StringSliceVar(&bridgeTopics, "subscribe", nil, "topics to subscribe once connected.")
}
