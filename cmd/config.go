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
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

// Config is the effective configuration printed by the config command.
type Config struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port,omitempty"`
	CACert       string `yaml:"ca_cert,omitempty"`
	ChannelToken string `yaml:"channel_token"`
	TopicBase    string `yaml:"topic_base"`
	Addr         string `yaml:"addr"`
}

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration.",
	Run: func(cmd *cobra.Command, args []string) {
		out, err := yaml.Marshal(currentConfig())
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		fmt.Print(string(out))
	},
}

func currentConfig() Config {
	return Config{
		Host:         viper.GetString("host"),
		Port:         viper.GetInt("port"),
		CACert:       viper.GetString("ca_cert"),
		ChannelToken: maskToken(viper.GetString("channel_token")),
		TopicBase:    viper.GetString("topic_base"),
		Addr:         viper.GetString("addr"),
	}
}

// maskToken keeps the "token_" prefix and the last 4 characters.
func maskToken(token string) string {
	const visible = 4
	prefix := ""
	if strings.HasPrefix(token, "token_") {
		prefix, token = "token_", strings.TrimPrefix(token, "token_")
	}
	if len(token) <= visible {
		return prefix + strings.Repeat("*", len(token))
	}
	return prefix + strings.Repeat("*", len(token)-visible) + token[len(token)-visible:]
}

func init() {
	rootCmd.AddCommand(configCmd)
}
