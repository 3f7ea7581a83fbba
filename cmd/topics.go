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
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/bizflycloud/bizflyctl/formatter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bizflycloud/beebotte-mqtt/pkg/server"
)

var listTopicsHeaders = []string{"#", "Topic"}

// topicsCmd represents the topics command
var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "List topics subscribed by a running bridge.",
	Run: func(cmd *cobra.Command, args []string) {
		httpc, baseURL := bridgeClient(viper.GetString("addr"))

		var st server.Status
		if err := getJSON(httpc, baseURL+"/status", &st); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		var topics []string
		if err := getJSON(httpc, baseURL+"/topics", &topics); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		fmt.Printf("Connected: %t, pending publishes: %d\n", st.Connected, st.Pending)
		formatter.Output(listTopicsHeaders, topicRows(topics))
	},
}

func getJSON(httpc *http.Client, url string, v interface{}) error {
	resp, err := httpc.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func topicRows(topics []string) [][]string {
	data := make([][]string, 0, len(topics))
	for i, topic := range topics {
		data = append(data, []string{strconv.Itoa(i + 1), topic})
	}
	return data
}

func init() {
	rootCmd.AddCommand(topicsCmd)
}
