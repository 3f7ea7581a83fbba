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
	"bytes"
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bizflycloud/beebotte-mqtt/pkg/beebotte"
	"github.com/bizflycloud/beebotte-mqtt/pkg/broker"
	"github.com/bizflycloud/beebotte-mqtt/pkg/testlib"
)

func TestMain(m *testing.M) {
	logger = zap.NewNop()
	os.Exit(m.Run())
}

func testClient(t *testing.T) (*beebotte.Client, *testlib.Transport) {
	t.Helper()
	f := testlib.NewTransport()
	c, err := beebotte.New(
		beebotte.WithTransportFactory(f.Factory),
		beebotte.WithLoopTimeout(5*time.Millisecond),
		beebotte.WithLogger(zap.NewNop()),
	)
	require.NoError(t, err)
	return c, f
}

// completeUntil completes every publish of f until done is closed.
func completeUntil(f *testlib.Transport, done <-chan struct{}) {
	for {
		f.CompleteAll()
		select {
		case <-done:
			return
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestMaskToken(t *testing.T) {
	tests := []struct {
		token string
		want  string
	}{
		{"", ""},
		{"abc", "***"},
		{"token_1234567890", "token_******7890"},
		{"1234567890", "******7890"},
		{"token_12", "token_**"},
	}
	for _, tc := range tests {
		t.Run(tc.token, func(t *testing.T) {
			assert.Equal(t, tc.want, maskToken(tc.token))
		})
	}
}

func TestTopicRows(t *testing.T) {
	assert.Empty(t, topicRows(nil))
	assert.Equal(t, [][]string{{"1", "a/b"}, {"2", "c/#"}}, topicRows([]string{"a/b", "c/#"}))
}

func TestClientOptions(t *testing.T) {
	defer viper.Reset()

	viper.Set("host", "localhost")
	c, err := newClient()
	require.NoError(t, err)
	assert.Equal(t, "localhost", c.Host())
	assert.Equal(t, 1883, c.Port())

	viper.Set("ca_cert", "mqtt.beebotte.com.pem")
	c, err = newClient()
	require.NoError(t, err)
	assert.Equal(t, 8883, c.Port())
	assert.Equal(t, "mqtt.beebotte.com.pem", c.CACert())

	viper.Set("port", 18883)
	c, err = newClient()
	require.NoError(t, err)
	assert.Equal(t, 18883, c.Port())

	viper.Set("channel_token", "token_abcdefgh")
	cfg := currentConfig()
	assert.Equal(t, "token_****efgh", cfg.ChannelToken)
	assert.Equal(t, "localhost", cfg.Host)
}

func TestRunSimple(t *testing.T) {
	c, f := testClient(t)
	simpleInterval = 10 * time.Millisecond
	defer func() { simpleInterval = 5 * time.Second }()

	var out bytes.Buffer
	done := make(chan struct{})
	var err error
	go func() {
		err = runSimple(context.Background(), c, "token_test", &out)
		close(done)
	}()
	f.Events <- broker.Event{Topic: "test/res/1", Payload: []byte("test count 0")}
	completeUntil(f, done)

	require.NoError(t, err)
	assert.Equal(t, "token_test", f.Password)
	assert.Equal(t, []broker.Filter{{Topic: "test/res/#"}}, f.Subscribes()[0])
	handles := f.Handles()
	require.Len(t, handles, simpleCount)
	for i, h := range handles {
		assert.Equal(t, "test/res/1", h.Topic)
		assert.Equal(t, fmt.Sprintf("test count %d", i), string(h.Payload))
	}
	assert.Contains(t, out.String(), "Subscribe to test/res/#")
	assert.Contains(t, out.String(), "[test/res/1] test count 0")
	assert.True(t, f.Disconnected())
	assert.False(t, c.IsConnected())
}

func TestRunSimpleInterrupted(t *testing.T) {
	c, f := testClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	require.NoError(t, runSimple(ctx, c, "token_test", &out))
	assert.Contains(t, out.String(), "Stop requested.")
	assert.Empty(t, f.Handles())
	assert.True(t, f.Disconnected())
}

func TestRunDebug(t *testing.T) {
	c, f := testClient(t)
	debugSchedule = "@every 1s"
	defer func() { debugSchedule = "@every 5s" }()

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	var err error
	go func() {
		err = runDebug(ctx, c, "token_test", "ch/res")
		close(done)
	}()
	completeUntil(f, done)

	require.NoError(t, err)
	assert.Equal(t, []broker.Filter{{Topic: "ch/res/test/#"}}, f.Subscribes()[0])
	// "@every 1s" fires on second boundaries, so once or twice within 1.5s
	handles := f.Handles()
	require.True(t, len(handles) == 2 || len(handles) == 4, "got %d publishes", len(handles))
	assert.Equal(t, "ch/res/test/2", handles[0].Topic)
	assert.Equal(t, "test message 2", string(handles[0].Payload))
	assert.Equal(t, "ch/res/test/3", handles[1].Topic)
	assert.Equal(t, "test message 3", string(handles[1].Payload))
	assert.True(t, f.Disconnected())
}

func TestCheckStatusInterval(t *testing.T) {
	assert.NoError(t, checkStatusInterval(time.Second))
	assert.Error(t, checkStatusInterval(0))
	assert.Error(t, checkStatusInterval(-time.Second))
}
