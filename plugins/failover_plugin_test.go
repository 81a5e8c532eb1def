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
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-advanced-go-wrapper/failover/driver_infrastructure"
	"github.com/aws/aws-advanced-go-wrapper/failover/error_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/host_info_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/plugins"
	"github.com/aws/aws-advanced-go-wrapper/failover/property_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/test_utils"
	"github.com/aws/aws-advanced-go-wrapper/failover/utils"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failoverFixture struct {
	cluster       *test_utils.MockCluster
	pluginService *test_utils.MockPluginService
	plugin        *plugins.FailoverPlugin
	metrics       *plugins.FailoverMetrics
	conn          *test_utils.MockConn
}

func failoverProps(host string) map[string]string {
	return map[string]string{
		property_util.HOST.Name:                                      host,
		property_util.PORT.Name:                                      "5432",
		property_util.FAILOVER_TIMEOUT_MS.Name:                       "3000",
		property_util.FAILOVER_CLUSTER_TOPOLOGY_REFRESH_RATE_MS.Name: "20",
		property_util.FAILOVER_WRITER_RECONNECT_INTERVAL_MS.Name:     "20",
		property_util.FAILOVER_READER_CONNECT_TIMEOUT_MS.Name:        "500",
	}
}

// newFailoverFixture opens the session's connection to instance. The cluster endpoint in the
// props decides between writer and reader failover.
func newFailoverFixture(t *testing.T, cluster *test_utils.MockCluster, props map[string]string, instance string) *failoverFixture {
	pluginService := newClusterPluginService(cluster)
	metrics := plugins.NewFailoverMetrics(nil)
	factory := plugins.FailoverPluginFactory{
		TopologyCacheService: driver_infrastructure.NewTopologyCacheService(),
		Metrics:              metrics,
	}
	connectionPlugin, err := factory.GetInstance(pluginService, props)
	require.NoError(t, err)
	plugin := connectionPlugin.(*plugins.FailoverPlugin)
	require.NoError(t, plugin.InitHostProvider(props, pluginService, func() error { return nil }))

	conn, err := cluster.Connect(cluster.Host(instance))
	require.NoError(t, err)
	require.NoError(t, pluginService.SetCurrentConnection(conn, cluster.Host(instance), nil))
	return &failoverFixture{
		cluster:       cluster,
		pluginService: pluginService,
		plugin:        plugin,
		metrics:       metrics,
		conn:          conn.(*test_utils.MockConn),
	}
}

func (f *failoverFixture) execute(method utils.Method, err error, args ...any) error {
	_, _, _, wrappedErr := f.plugin.Execute(f.conn, method, func() (any, any, bool, error) {
		if err != nil {
			return nil, nil, false, err
		}
		return "ok", nil, true, nil
	}, args...)
	return wrappedErr
}

func (f *failoverFixture) currentInstance() string {
	return f.cluster.InstanceOf(f.pluginService.GetCurrentConnection())
}

func TestFailoverToNewWriter(t *testing.T) {
	cluster := test_utils.NewMockCluster("instance-1", "instance-2", "instance-3")
	fixture := newFailoverFixture(t, cluster, failoverProps(cluster.WriterClusterEndpoint()), "instance-1")
	cluster.SetDown("instance-1", true)
	cluster.Promote("instance-2")

	err := fixture.execute(utils.CONN_QUERY_CONTEXT, test_utils.ErrMockNetwork, "SELECT 1")

	assert.ErrorIs(t, err, error_util.FailoverSuccessError)
	assert.Equal(t, "instance-2", fixture.currentInstance())
	assert.Equal(t, "instance-2", fixture.pluginService.GetCurrentHostInfo().HostId)
	assert.Equal(t, host_info_util.AVAILABLE, fixture.pluginService.GetCurrentHostInfo().Availability)
	assert.True(t, fixture.conn.IsClosed())
	availability, _ := fixture.pluginService.GetAvailability("instance-1")
	assert.Equal(t, host_info_util.UNAVAILABLE, availability)
	assert.Equal(t, "instance-2", host_info_util.GetWriter(fixture.pluginService.GetHosts()).HostId)
	assert.Equal(t, 1, fixture.pluginService.ForceRefreshCount())

	assert.Equal(t, 1.0, testutil.ToFloat64(fixture.metrics.WriterTriggered))
	assert.Equal(t, 1.0, testutil.ToFloat64(fixture.metrics.WriterSuccess))
	assert.Equal(t, 0.0, testutil.ToFloat64(fixture.metrics.ReaderTriggered))
}

func TestFailoverReconnectsToHealthyWriterOncePerError(t *testing.T) {
	cluster := test_utils.NewMockCluster("instance-1", "instance-2")
	fixture := newFailoverFixture(t, cluster, failoverProps(cluster.WriterClusterEndpoint()), "instance-1")
	connReset := fmt.Errorf("write: %w", test_utils.ErrMockNetwork)

	err := fixture.execute(utils.CONN_EXEC_CONTEXT, connReset, "UPDATE t SET a = 1")
	assert.ErrorIs(t, err, error_util.FailoverSuccessError)
	assert.Equal(t, "instance-1", fixture.currentInstance())
	assert.NotSame(t, fixture.conn, fixture.pluginService.GetCurrentConnection())
	writerAttempts := countAttempts(fixture.pluginService, cluster.InstanceEndpoint("instance-1"))
	assert.Positive(t, writerAttempts)

	err = fixture.execute(utils.CONN_EXEC_CONTEXT, connReset, "UPDATE t SET a = 1")
	assert.Same(t, connReset, err)
	assert.Equal(t, writerAttempts, countAttempts(fixture.pluginService, cluster.InstanceEndpoint("instance-1")))
}

// batchError holds a slice, so its values cannot be compared with ==.
type batchError struct {
	causes []error
}

func (e batchError) Error() string {
	return errors.Join(e.causes...).Error()
}

func (e batchError) Unwrap() []error {
	return e.causes
}

func TestFailoverRunsOncePerUncomparableError(t *testing.T) {
	cluster := test_utils.NewMockCluster("instance-1", "instance-2")
	fixture := newFailoverFixture(t, cluster, failoverProps(cluster.WriterClusterEndpoint()), "instance-1")
	batchErr := batchError{causes: []error{test_utils.ErrMockNetwork}}

	err := fixture.execute(utils.CONN_EXEC_CONTEXT, batchErr, "UPDATE t SET a = 1")
	assert.ErrorIs(t, err, error_util.FailoverSuccessError)
	writerAttempts := countAttempts(fixture.pluginService, cluster.InstanceEndpoint("instance-1"))

	err = fixture.execute(utils.CONN_EXEC_CONTEXT, batchErr, "UPDATE t SET a = 1")
	assert.Equal(t, batchErr, err)
	assert.Equal(t, writerAttempts, countAttempts(fixture.pluginService, cluster.InstanceEndpoint("instance-1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(fixture.metrics.WriterTriggered))
}

func TestFailoverReconnectsWithoutCurrentConnection(t *testing.T) {
	cluster := test_utils.NewMockCluster("instance-1", "instance-2")
	fixture := newFailoverFixture(t, cluster, failoverProps(cluster.WriterClusterEndpoint()), "instance-1")
	require.NoError(t, fixture.pluginService.SetCurrentConnection(nil, nil, nil))

	err := fixture.execute(utils.CONN_QUERY_CONTEXT, test_utils.ErrMockNetwork, "SELECT 1")

	assert.ErrorIs(t, err, error_util.FailoverSuccessError)
	assert.Equal(t, "instance-1", fixture.currentInstance())
	assert.Equal(t, 0.0, testutil.ToFloat64(fixture.metrics.WriterTriggered))
}

func TestFailoverReappliesSessionStateOnNewWriter(t *testing.T) {
	cluster := test_utils.NewMockCluster("instance-1", "instance-2")
	fixture := newFailoverFixture(t, cluster, failoverProps(cluster.WriterClusterEndpoint()), "instance-1")
	sessionState := fixture.pluginService.GetSessionState()
	sessionState.AutoCommit.SetValue(false)
	sessionState.TransactionIsolation.SetValue(driver_infrastructure.TRANSACTION_SERIALIZABLE)
	cluster.SetDown("instance-1", true)
	cluster.Promote("instance-2")

	err := fixture.execute(utils.CONN_QUERY_CONTEXT, test_utils.ErrMockNetwork, "SELECT 1")
	require.ErrorIs(t, err, error_util.FailoverSuccessError)

	newConn := fixture.pluginService.GetCurrentConnection().(*test_utils.MockConn)
	isolationQuery, err := fixture.pluginService.GetDialect().GetSetTransactionIsolationQuery(driver_infrastructure.TRANSACTION_SERIALIZABLE)
	require.NoError(t, err)
	assert.Contains(t, newConn.Execs(), isolationQuery)
	assert.Equal(t, driver_infrastructure.TRANSACTION_SERIALIZABLE,
		sessionState.TransactionIsolation.GetOrDefault(driver_infrastructure.TRANSACTION_READ_COMMITTED))
	// The new session runs with the server's autocommit default.
	assert.False(t, sessionState.AutoCommit.IsSet())
	assert.True(t, sessionState.AutoCommit.GetOrDefault(true))
}

func countAttempts(pluginService *test_utils.MockPluginService, host string) int {
	count := 0
	for _, attempt := range pluginService.Provider.Attempts() {
		if attempt == host {
			count++
		}
	}
	return count
}

func TestFailoverToReaderExcludesFailedReader(t *testing.T) {
	cluster := test_utils.NewMockCluster("instance-1", "instance-2", "instance-3", "instance-4")
	fixture := newFailoverFixture(t, cluster, failoverProps(cluster.ReaderClusterEndpoint()), "instance-2")
	cluster.SetDown("instance-2", true)

	err := fixture.execute(utils.CONN_QUERY_CONTEXT, test_utils.ErrMockNetwork, "SELECT 1")

	assert.ErrorIs(t, err, error_util.FailoverSuccessError)
	assert.Contains(t, []string{"instance-3", "instance-4"}, fixture.currentInstance())
	assert.Equal(t, host_info_util.READER, fixture.pluginService.GetCurrentHostInfo().Role)
	assert.NotContains(t, fixture.pluginService.Provider.Attempts(), cluster.InstanceEndpoint("instance-2"))
	assert.NotContains(t, fixture.pluginService.Provider.Attempts(), cluster.InstanceEndpoint("instance-1"))
	assert.Equal(t, 1, fixture.pluginService.ForceRefreshCount())
	assert.Equal(t, 1.0, testutil.ToFloat64(fixture.metrics.ReaderSuccess))
}

func TestFailoverInTransactionReportsUnknownResolution(t *testing.T) {
	cluster := test_utils.NewMockCluster("instance-1", "instance-2")
	fixture := newFailoverFixture(t, cluster, failoverProps(cluster.WriterClusterEndpoint()), "instance-1")
	fixture.pluginService.SetInTransaction(true)

	err := fixture.execute(utils.CONN_EXEC_CONTEXT, test_utils.ErrMockNetwork, "INSERT INTO t VALUES (1)")

	assert.ErrorIs(t, err, error_util.TransactionResolutionUnknownError)
	assert.Contains(t, fixture.conn.Execs(), "ROLLBACK")
	assert.False(t, fixture.pluginService.IsInTransaction())
}

func TestFailoverDisabledForMultiWriterCluster(t *testing.T) {
	cluster := test_utils.NewMockCluster("instance-1", "instance-2")
	fixture := newFailoverFixture(t, cluster, failoverProps(cluster.WriterClusterEndpoint()), "instance-1")
	hosts := cluster.Hosts()
	fixture.pluginService.SetHosts([]*host_info_util.HostInfo{hosts[0], hosts[1].WithRole(host_info_util.WRITER)})

	assert.False(t, fixture.plugin.IsFailoverEnabled())
	err := fixture.execute(utils.CONN_QUERY_CONTEXT, test_utils.ErrMockNetwork, "SELECT 1")
	assert.ErrorIs(t, err, test_utils.ErrMockNetwork)
	assert.Empty(t, fixture.pluginService.Provider.Attempts())
	assert.False(t, fixture.conn.IsClosed())
}

func TestFailoverDisabledBySetting(t *testing.T) {
	cluster := test_utils.NewMockCluster("instance-1", "instance-2")
	props := failoverProps(cluster.WriterClusterEndpoint())
	props[property_util.ENABLE_CLUSTER_AWARE_FAILOVER.Name] = "false"
	fixture := newFailoverFixture(t, cluster, props, "instance-1")

	err := fixture.execute(utils.CONN_QUERY_CONTEXT, test_utils.ErrMockNetwork, "SELECT 1")
	assert.ErrorIs(t, err, test_utils.ErrMockNetwork)
	assert.Empty(t, fixture.pluginService.Provider.Attempts())
}

func TestFailoverIgnoresNonNetworkErrors(t *testing.T) {
	cluster := test_utils.NewMockCluster("instance-1", "instance-2")
	fixture := newFailoverFixture(t, cluster, failoverProps(cluster.WriterClusterEndpoint()), "instance-1")
	syntaxErr := errors.New("syntax error at or near SELEC")

	err := fixture.execute(utils.CONN_QUERY_CONTEXT, syntaxErr, "SELEC 1")
	assert.Same(t, syntaxErr, err)
	assert.Empty(t, fixture.pluginService.Provider.Attempts())
}

func TestFailoverFailureClosesSessionUntilNextCall(t *testing.T) {
	cluster := test_utils.NewMockCluster("instance-1", "instance-2")
	props := failoverProps(cluster.WriterClusterEndpoint())
	props[property_util.FAILOVER_TIMEOUT_MS.Name] = "300"
	fixture := newFailoverFixture(t, cluster, props, "instance-1")
	cluster.SetDown("instance-1", true)
	cluster.SetDown("instance-2", true)

	err := fixture.execute(utils.CONN_QUERY_CONTEXT, test_utils.ErrMockNetwork, "SELECT 1")
	assert.ErrorIs(t, err, error_util.FailoverFailedError)
	assert.Equal(t, 1.0, testutil.ToFloat64(fixture.metrics.WriterFailed))

	cluster.SetDown("instance-1", false)
	err = fixture.execute(utils.CONN_QUERY_CONTEXT, nil, "SELECT 1")
	assert.ErrorIs(t, err, error_util.FailoverSuccessError)
	assert.Equal(t, "instance-1", fixture.currentInstance())

	err = fixture.execute(utils.CONN_QUERY_CONTEXT, nil, "SELECT 1")
	assert.NoError(t, err)
}

func TestFailoverAfterExplicitClose(t *testing.T) {
	cluster := test_utils.NewMockCluster("instance-1", "instance-2")
	fixture := newFailoverFixture(t, cluster, failoverProps(cluster.WriterClusterEndpoint()), "instance-1")

	require.NoError(t, fixture.execute(utils.CONN_CLOSE, nil))

	err := fixture.execute(utils.CONN_QUERY_CONTEXT, nil, "SELECT 1")
	var wrapperErr *error_util.AwsWrapperError
	require.ErrorAs(t, err, &wrapperErr)
	assert.True(t, wrapperErr.IsType(error_util.ClosedConnectionErrorType))

	assert.NoError(t, fixture.execute(utils.CONN_GET_AUTO_COMMIT, nil))
	assert.Empty(t, fixture.pluginService.Provider.Attempts())
}

func TestFailoverSwitchesToWriterWhenReadOnlyIsCleared(t *testing.T) {
	cluster := test_utils.NewMockCluster("instance-1", "instance-2")
	fixture := newFailoverFixture(t, cluster, failoverProps(cluster.ReaderClusterEndpoint()), "instance-2")

	require.NoError(t, fixture.execute(utils.CONN_SET_READ_ONLY, nil, false))

	assert.Equal(t, "instance-1", fixture.currentInstance())
	assert.Equal(t, host_info_util.WRITER, fixture.pluginService.GetCurrentHostInfo().Role)
	newConn := fixture.pluginService.GetCurrentConnection().(*test_utils.MockConn)
	assert.Contains(t, newConn.Execs(), "SET SESSION CHARACTERISTICS AS TRANSACTION READ WRITE")
	assert.False(t, fixture.pluginService.IsInTransaction())
}

func TestFailoverTracksAutoCommitAndTransactions(t *testing.T) {
	cluster := test_utils.NewMockCluster("instance-1", "instance-2")
	fixture := newFailoverFixture(t, cluster, failoverProps(cluster.WriterClusterEndpoint()), "instance-1")

	require.NoError(t, fixture.execute(utils.CONN_SET_AUTO_COMMIT, nil, false))
	assert.True(t, fixture.pluginService.IsInTransaction())
	require.NoError(t, fixture.execute(utils.TX_COMMIT, nil))
	assert.False(t, fixture.pluginService.IsInTransaction())
}

func TestFailoverInitHostProviderInstallsClusterProvider(t *testing.T) {
	cluster := test_utils.NewMockCluster("instance-1", "instance-2")
	pluginService := newClusterPluginService(cluster)
	pluginService.HostListProvider = &test_utils.MockHostListProvider{Static: true}
	plugin := plugins.NewFailoverPlugin(pluginService, failoverProps(cluster.WriterClusterEndpoint()))

	initialized := false
	err := plugin.InitHostProvider(failoverProps(cluster.WriterClusterEndpoint()), pluginService, func() error {
		initialized = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, initialized)
	_, ok := pluginService.GetHostListProvider().(*driver_infrastructure.RdsHostListProvider)
	assert.True(t, ok)
	assert.Equal(t, driver_infrastructure.FAILOVER_PLUGIN_CODE, plugin.GetPluginCode())
}

func TestFailoverConnectRefreshesHostsOnInitialConnection(t *testing.T) {
	cluster := test_utils.NewMockCluster("instance-1", "instance-2")
	fixture := newFailoverFixture(t, cluster, failoverProps(cluster.WriterClusterEndpoint()), "instance-1")
	provider := fixture.pluginService.HostListProvider.(*test_utils.MockHostListProvider)
	before := provider.RefreshCount()

	conn, err := fixture.plugin.Connect(cluster.Host("instance-1"), map[string]string{}, true, func() (driver.Conn, error) {
		return cluster.Connect(cluster.Host("instance-1"))
	})
	require.NoError(t, err)
	assert.NotNil(t, conn)
	assert.Equal(t, before+1, provider.RefreshCount())

	_, err = fixture.plugin.Connect(cluster.Host("instance-1"), map[string]string{}, false, func() (driver.Conn, error) {
		return cluster.Connect(cluster.Host("instance-1"))
	})
	require.NoError(t, err)
	assert.Equal(t, before+1, provider.RefreshCount())
}
