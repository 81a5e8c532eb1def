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
	"database/sql/driver"
	"testing"

	"github.com/aws/aws-advanced-go-wrapper/failover/driver_infrastructure"
	"github.com/aws/aws-advanced-go-wrapper/failover/error_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/host_info_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/plugins"
	"github.com/aws/aws-advanced-go-wrapper/failover/plugins/connection_tracker"
	"github.com/aws/aws-advanced-go-wrapper/failover/test_utils"
	"github.com/aws/aws-advanced-go-wrapper/failover/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// identifyingHostListProvider resolves a connection to the instance the cluster opened it to.
type identifyingHostListProvider struct {
	*test_utils.MockHostListProvider
	cluster *test_utils.MockCluster
}

func (p identifyingHostListProvider) IdentifyConnection(conn driver.Conn) (*host_info_util.HostInfo, error) {
	return p.cluster.Host(p.cluster.InstanceOf(conn)), nil
}

type trackerFixture struct {
	cluster       *test_utils.MockCluster
	pluginService *test_utils.MockPluginService
	tracker       *connection_tracker.OpenedConnectionTracker
	plugin        *plugins.AuroraConnectionTrackerPlugin
}

func newTrackerFixture() *trackerFixture {
	cluster := test_utils.NewMockCluster("instance-1", "instance-2")
	pluginService := newClusterPluginService(cluster)
	pluginService.HostListProvider = identifyingHostListProvider{
		MockHostListProvider: &test_utils.MockHostListProvider{TopologyFunc: cluster.Topology},
		cluster:              cluster,
	}
	tracker := connection_tracker.NewOpenedConnectionTracker()
	return &trackerFixture{
		cluster:       cluster,
		pluginService: pluginService,
		tracker:       tracker,
		plugin:        plugins.NewAuroraConnectionTrackerPlugin(pluginService, map[string]string{}, tracker),
	}
}

func (f *trackerFixture) connect(t *testing.T, host *host_info_util.HostInfo) *test_utils.MockConn {
	conn, err := f.plugin.Connect(host, map[string]string{}, false, func() (driver.Conn, error) {
		return f.cluster.Connect(host)
	})
	require.NoError(t, err)
	return conn.(*test_utils.MockConn)
}

func (f *trackerFixture) hostAndPort(instance string) string {
	return f.cluster.Host(instance).GetHostAndPort()
}

func TestConnectionTrackerTracksInstanceConnections(t *testing.T) {
	f := newTrackerFixture()

	conn := f.connect(t, f.cluster.Host("instance-2"))

	assert.Equal(t, 1, f.tracker.CountOpenedConnections(f.hostAndPort("instance-2")))
	assert.False(t, conn.IsClosed())
}

func TestConnectionTrackerResolvesClusterEndpoint(t *testing.T) {
	f := newTrackerFixture()
	clusterHost, err := host_info_util.NewHostInfoBuilder().SetHost(f.cluster.WriterClusterEndpoint()).SetPort(5432).Build()
	require.NoError(t, err)

	f.connect(t, clusterHost)

	assert.Equal(t, 1, f.tracker.CountOpenedConnections(f.hostAndPort("instance-1")))
	assert.Equal(t, 0, f.tracker.CountOpenedConnections(clusterHost.GetHostAndPort()))
}

func TestConnectionTrackerSkipsFailedConnect(t *testing.T) {
	f := newTrackerFixture()
	f.cluster.SetDown("instance-2", true)
	host := f.cluster.Host("instance-2")

	conn, err := f.plugin.ForceConnect(host, map[string]string{}, false, func() (driver.Conn, error) {
		return f.cluster.Connect(host)
	})

	assert.Nil(t, conn)
	assert.ErrorIs(t, err, test_utils.ErrMockNetwork)
	assert.Equal(t, 0, f.tracker.CountOpenedConnections(f.hostAndPort("instance-2")))
}

func TestConnectionTrackerStopsTrackingClosedConnections(t *testing.T) {
	f := newTrackerFixture()
	conn := f.connect(t, f.cluster.Host("instance-1"))

	_, _, _, err := f.plugin.Execute(conn, utils.CONN_CLOSE, func() (any, any, bool, error) {
		return nil, nil, true, conn.Close()
	})

	require.NoError(t, err)
	assert.Equal(t, 0, f.tracker.CountOpenedConnections(f.hostAndPort("instance-1")))
}

func TestConnectionTrackerClosesConnectionsToDemotedWriter(t *testing.T) {
	f := newTrackerFixture()
	oldWriterConn := f.connect(t, f.cluster.Host("instance-1"))
	readerConn := f.connect(t, f.cluster.Host("instance-2"))

	_, _, _, err := f.plugin.Execute(readerConn, utils.CONN_QUERY_CONTEXT, func() (any, any, bool, error) {
		f.cluster.Promote("instance-2")
		f.pluginService.SetHosts(f.cluster.Hosts())
		return nil, nil, false, error_util.FailoverSuccessError
	})

	assert.ErrorIs(t, err, error_util.FailoverSuccessError)
	assert.True(t, oldWriterConn.IsClosed())
	assert.False(t, readerConn.IsClosed())
	assert.Equal(t, 0, f.tracker.CountOpenedConnections(f.hostAndPort("instance-1")))
}

func TestConnectionTrackerIgnoresOrdinaryErrors(t *testing.T) {
	f := newTrackerFixture()
	writerConn := f.connect(t, f.cluster.Host("instance-1"))

	_, _, _, err := f.plugin.Execute(writerConn, utils.CONN_QUERY_CONTEXT, func() (any, any, bool, error) {
		f.cluster.Promote("instance-2")
		f.pluginService.SetHosts(f.cluster.Hosts())
		return nil, nil, false, test_utils.ErrMockNetwork
	})

	assert.ErrorIs(t, err, test_utils.ErrMockNetwork)
	assert.False(t, writerConn.IsClosed())
}

func TestConnectionTrackerInvalidatesPromotedHosts(t *testing.T) {
	f := newTrackerFixture()
	writerConn := f.connect(t, f.cluster.Host("instance-1"))
	readerConn := f.connect(t, f.cluster.Host("instance-2"))

	f.plugin.NotifyHostListChanged(map[string]map[driver_infrastructure.HostChangeOptions]bool{
		f.hostAndPort("instance-1"): {driver_infrastructure.PROMOTED_TO_READER: true},
		f.hostAndPort("instance-2"): {driver_infrastructure.WENT_UP: true},
	})

	assert.True(t, writerConn.IsClosed())
	assert.False(t, readerConn.IsClosed())
}

func TestConnectionTrackerFactoryUsesSharedTracker(t *testing.T) {
	f := newTrackerFixture()

	plugin, err := plugins.NewAuroraConnectionTrackerPluginFactory().GetInstance(f.pluginService, map[string]string{})

	require.NoError(t, err)
	assert.Equal(t, driver_infrastructure.AURORA_CONNECTION_TRACKER_PLUGIN_CODE, plugin.GetPluginCode())
	assert.Contains(t, plugin.GetSubscribedMethods(), utils.CONN_CLOSE)
	assert.Contains(t, plugin.GetSubscribedMethods(), utils.NOTIFY_HOST_LIST_CHANGED)
}
