/*
  Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.

  Licensed under the Apache License, Version 2.0 (the "License").
  You may not use this file except in compliance with the License.
  You may obtain a copy of the License at

  http://www.apache.org/licenses/LICENSE-2.0

  Unless required by applicable law or agreed to in writing, software
  distributed under the License is distributed on an "AS IS" BASIS,
  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
  See the License for the specific language governing permissions and
  limitations under the License.
*/

package plugins_test

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/aws/aws-advanced-go-wrapper/failover/host_info_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/plugins"
	"github.com/aws/aws-advanced-go-wrapper/failover/test_utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClusterPluginService(cluster *test_utils.MockCluster) *test_utils.MockPluginService {
	pluginService := test_utils.NewMockPluginService(cluster.Hosts())
	pluginService.Provider.ConnectFunc = cluster.Connect
	pluginService.HostListProvider = &test_utils.MockHostListProvider{TopologyFunc: cluster.Topology}
	return pluginService
}

func newReaderHandler(pluginService *test_utils.MockPluginService, failoverTimeout time.Duration) *plugins.ClusterAwareReaderFailoverHandler {
	return plugins.NewClusterAwareReaderFailoverHandler(pluginService, map[string]string{}, failoverTimeout, 500*time.Millisecond, nil)
}

func TestReaderFailoverSkipsFailedHostAndPrefersLightReaders(t *testing.T) {
	cluster := test_utils.NewMockCluster("instance-1", "instance-2", "instance-3", "instance-4")
	cluster.SetCpu("instance-2", 10)
	cluster.SetCpu("instance-3", 30)
	cluster.SetCpu("instance-4", 20)
	pluginService := newClusterPluginService(cluster)
	handler := newReaderHandler(pluginService, 5*time.Second)

	result := handler.Failover(context.Background(), cluster.Hosts(), cluster.Host("instance-2"))

	require.True(t, result.Connected)
	assert.Contains(t, []string{"instance-3", "instance-4"}, result.Host.HostId)
	assert.Equal(t, host_info_util.AVAILABLE, result.Host.Availability)
	assert.Equal(t, result.Host.HostId, cluster.InstanceOf(result.Conn))
	assert.ElementsMatch(t,
		[]string{cluster.InstanceEndpoint("instance-4"), cluster.InstanceEndpoint("instance-3")},
		pluginService.Provider.Attempts())

	availability, ok := pluginService.GetAvailability("instance-2")
	require.True(t, ok)
	assert.Equal(t, host_info_util.UNAVAILABLE, availability)

	for _, conn := range pluginService.Provider.Opened() {
		assert.Equal(t, conn != result.Conn, conn.IsClosed())
	}
}

func TestReaderFailoverFallsBackToWriter(t *testing.T) {
	cluster := test_utils.NewMockCluster("instance-1", "instance-2", "instance-3")
	cluster.SetDown("instance-2", true)
	cluster.SetDown("instance-3", true)
	pluginService := newClusterPluginService(cluster)
	handler := newReaderHandler(pluginService, 5*time.Second)
	hosts := host_info_util.ReplaceHost(cluster.Hosts(), cluster.Host("instance-3").WithAvailability(host_info_util.UNAVAILABLE))

	result := handler.Failover(context.Background(), hosts, nil)

	require.True(t, result.Connected)
	assert.Equal(t, "instance-1", result.Host.HostId)
	assert.Equal(t, host_info_util.WRITER, result.Host.Role)
	availability, _ := pluginService.GetAvailability("instance-2")
	assert.Equal(t, host_info_util.UNAVAILABLE, availability)
	availability, _ = pluginService.GetAvailability("instance-1")
	assert.Equal(t, host_info_util.AVAILABLE, availability)
	assert.NotContains(t, pluginService.Provider.Attempts(), cluster.InstanceEndpoint("instance-3"))
}

func TestReaderFailoverTimesOut(t *testing.T) {
	cluster := test_utils.NewMockCluster("instance-1", "instance-2")
	cluster.SetDown("instance-1", true)
	cluster.SetDown("instance-2", true)
	pluginService := newClusterPluginService(cluster)
	handler := newReaderHandler(pluginService, 200*time.Millisecond)

	start := time.Now()
	result := handler.Failover(context.Background(), cluster.Hosts(), nil)

	assert.False(t, result.Connected)
	assert.ErrorIs(t, result.Err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestReaderFailoverWithEmptyTopology(t *testing.T) {
	handler := newReaderHandler(test_utils.NewMockPluginService(nil), time.Second)
	assert.False(t, handler.Failover(context.Background(), nil, nil).Connected)
	assert.False(t, handler.GetReaderConnection(context.Background(), nil).Connected)
}

func TestReaderFailoverClosesConnectionArrivingAfterTimeout(t *testing.T) {
	cluster := test_utils.NewMockCluster("instance-1", "instance-2")
	pluginService := newClusterPluginService(cluster)
	release := make(chan struct{})
	slowConn := test_utils.NewMockConn(cluster.InstanceEndpoint("instance-2"))
	pluginService.Provider.ConnectFunc = func(hostInfo *host_info_util.HostInfo) (driver.Conn, error) {
		if hostInfo.HostId == "instance-2" {
			<-release
			return slowConn, nil
		}
		return cluster.Connect(hostInfo)
	}
	handler := plugins.NewClusterAwareReaderFailoverHandler(pluginService, map[string]string{}, 5*time.Second, 50*time.Millisecond, nil)

	result := handler.Failover(context.Background(), cluster.Hosts(), nil)
	require.True(t, result.Connected)
	assert.Equal(t, "instance-1", result.Host.HostId)

	close(release)
	assert.Eventually(t, slowConn.IsClosed, 2*time.Second, 10*time.Millisecond)
}

func TestGetReaderConnectionPrefersReaders(t *testing.T) {
	cluster := test_utils.NewMockCluster("instance-1", "instance-2")
	pluginService := newClusterPluginService(cluster)
	handler := newReaderHandler(pluginService, 5*time.Second)

	result := handler.GetReaderConnection(context.Background(), cluster.Hosts())
	require.True(t, result.Connected)
	assert.Equal(t, "instance-2", result.Host.HostId)
	assert.Equal(t, []string{cluster.InstanceEndpoint("instance-2")}, pluginService.Provider.Attempts())

	writerOnly := test_utils.NewMockCluster("instance-1")
	pluginService = newClusterPluginService(writerOnly)
	handler = newReaderHandler(pluginService, 5*time.Second)
	result = handler.GetReaderConnection(context.Background(), writerOnly.Hosts())
	require.True(t, result.Connected)
	assert.Equal(t, "instance-1", result.Host.HostId)
}
