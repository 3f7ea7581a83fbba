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
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/bizflycloud/beebotte-mqtt/pkg/beebotte"
)

const (
	envPrefix  = "BEEBOTTE"
	unixPrefix = "unix://"
	httpPrefix = "http://"
)

var (
	cfgFile string
	debug   bool
	logger  *zap.Logger

	defaultAddr = unixPrefix + filepath.Join(os.TempDir(), "beebotte.sock")
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "beebotte-mqtt",
	Short: "Beebotte MQTT client.",
	Long:  `beebotte-mqtt is a CLI application to publish and subscribe to Beebotte channels over MQTT.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := cmd.Help(); err != nil {
			fmt.Println(err)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if debug {
			logger.Error(err.Error())
		}
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.beebotte.yaml)")
	flags.BoolVar(&debug, "debug", false, "enable debug (default is false)")
	flags.String("host", beebotte.DefaultHost, "Beebotte MQTT host.")
	flags.Int("port", 0, "Beebotte MQTT port (default 1883, or 8883 with --ca-cert).")
	flags.String("ca-cert", "", "CA certificate file, enables TLS.")
	flags.String("token", "", "channel token.")
	flags.String("addr", defaultAddr, "listening address of the bridge server.")

	bindFlag("host", "host")
	bindFlag("port", "port")
	bindFlag("ca_cert", "ca-cert")
	bindFlag("channel_token", "token")
	bindFlag("addr", "addr")
}

func bindFlag(key, flag string) {
	if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	newLogger := zap.NewProduction
	if debug {
		newLogger = zap.NewDevelopment
	}
	var err error
	if logger, err = newLogger(); err != nil {
		panic(err)
	}
	zap.ReplaceGlobals(logger)

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			logger.Error(err.Error())
			os.Exit(1)
		}

		// Search config in home directory with name ".beebotte" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigName(".beebotte")
	}

	viper.SetDefault("topic_base", "test")

	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		logger.Info("Using config file: " + viper.ConfigFileUsed())
	} else if cfgFile != "" {
		logger.Fatal("failed to read config file", zap.String("config", cfgFile), zap.Error(err))
	}
}

// clientOptions builds the Client options from the configuration.
func clientOptions() []beebotte.Option {
	opts := []beebotte.Option{
		beebotte.WithHost(viper.GetString("host")),
		beebotte.WithLogger(zap.L()),
	}
	if port := viper.GetInt("port"); port != 0 {
		opts = append(opts, beebotte.WithPort(port))
	}
	if caCert := viper.GetString("ca_cert"); caCert != "" {
		opts = append(opts, beebotte.WithCACert(caCert))
	}
	return opts
}

func newClient() (*beebotte.Client, error) {
	return beebotte.New(clientOptions()...)
}

func channelToken() string {
	token := viper.GetString("channel_token")
	if token == "" {
		logger.Fatal("missing channel token, set channel_token in config file, BEEBOTTE_CHANNEL_TOKEN or --token")
	}
	return token
}

// bridgeClient returns an HTTP client for the bridge listening on address,
// and the base URL of its API.
func bridgeClient(address string) (*http.Client, string) {
	if !strings.HasPrefix(address, unixPrefix) {
		return &http.Client{}, httpPrefix + address
	}
	sock := strings.TrimPrefix(address, unixPrefix)
	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(_ context.Context, _, _ string) (net.Conn, error) {
				return net.Dial("unix", sock)
			},
		},
	}, httpPrefix + "unix"
}
