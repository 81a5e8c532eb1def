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

package plugin_helpers_test

import (
	"errors"
	"testing"

	"github.com/aws/aws-advanced-go-wrapper/failover/driver_infrastructure"
	"github.com/aws/aws-advanced-go-wrapper/failover/plugin_helpers"
	"github.com/aws/aws-advanced-go-wrapper/failover/test_utils"
	"github.com/aws/aws-advanced-go-wrapper/failover/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingPlugin keeps every notification it receives and answers connection changes with action.
type recordingPlugin struct {
	*test_utils.TestPlugin
	action            driver_infrastructure.OldConnectionSuggestedAction
	hostListChanges   []map[string]map[driver_infrastructure.HostChangeOptions]bool
	connectionChanges []map[driver_infrastructure.HostChangeOptions]bool
}

func newRecordingPlugin(calls *[]string) *recordingPlugin {
	return &recordingPlugin{
		TestPlugin: test_utils.NewTestPlugin("Recorder", calls),
		action:     driver_infrastructure.NO_OPINION,
	}
}

func (r *recordingPlugin) NotifyHostListChanged(changes map[string]map[driver_infrastructure.HostChangeOptions]bool) {
	r.hostListChanges = append(r.hostListChanges, changes)
}

func (r *recordingPlugin) NotifyConnectionChanged(changes map[driver_infrastructure.HostChangeOptions]bool) driver_infrastructure.OldConnectionSuggestedAction {
	r.connectionChanges = append(r.connectionChanges, changes)
	return r.action
}

type releasablePlugin struct {
	*test_utils.TestPlugin
	panics   bool
	released bool
}

func (r *releasablePlugin) ReleaseResources() {
	if r.panics {
		panic("release failed")
	}
	r.released = true
}

func newPluginManager(t *testing.T, plugins ...driver_infrastructure.ConnectionPlugin) (*plugin_helpers.PluginManagerImpl, *plugin_helpers.PluginServiceImpl) {
	props := map[string]string{}
	pluginManager := plugin_helpers.NewPluginManagerImpl(props, &test_utils.MockConnectionProvider{})
	pluginService := plugin_helpers.NewPluginServiceImplWithDialect(
		pluginManager, &test_utils.MockDriverDialect{}, &driver_infrastructure.AuroraPgDatabaseDialect{}, nil, props, "",
		driver_infrastructure.NewTopologyCacheService())
	require.NoError(t, pluginManager.Init(pluginService, plugins))
	return pluginManager, pluginService
}

func targetFunc(calls *[]string) driver_infrastructure.ExecuteFunc {
	return func() (any, any, bool, error) {
		*calls = append(*calls, "target")
		return "result", nil, true, nil
	}
}

func TestExecuteRunsSubscribedPluginsInOrder(t *testing.T) {
	calls := []string{}
	pluginManager, _ := newPluginManager(t,
		test_utils.NewTestPlugin("A", &calls),
		test_utils.NewTestPlugin("B", &calls, utils.CONN_QUERY_CONTEXT),
		test_utils.NewTestPlugin("C", &calls))

	result, _, ok, err := pluginManager.Execute(nil, utils.CONN_EXEC_CONTEXT, targetFunc(&calls))

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "result", result)
	assert.Equal(t, []string{"A:before", "C:before", "target", "C:after", "A:after"}, calls)

	calls = calls[:0]
	_, _, _, err = pluginManager.Execute(nil, utils.CONN_QUERY_CONTEXT, targetFunc(&calls))

	require.NoError(t, err)
	assert.Equal(t, []string{"A:before", "B:before", "C:before", "target", "C:after", "B:after", "A:after"}, calls)
}

func TestExecuteStopsAtFailingPlugin(t *testing.T) {
	calls := []string{}
	failing := test_utils.NewTestPlugin("B", &calls)
	failing.Err = errors.New("plugin failed")
	pluginManager, _ := newPluginManager(t,
		test_utils.NewTestPlugin("A", &calls),
		failing,
		test_utils.NewTestPlugin("C", &calls))

	_, _, _, err := pluginManager.Execute(nil, utils.CONN_PING, targetFunc(&calls))

	assert.EqualError(t, err, "plugin failed")
	assert.Equal(t, []string{"A:before", "B:before", "A:after"}, calls)
}

func TestExecuteRejectsCallsOnReplacedConnection(t *testing.T) {
	calls := []string{}
	pluginManager, pluginService := newPluginManager(t, test_utils.NewTestPlugin("A", &calls))
	current := test_utils.NewMockConn("instance-1")
	replaced := test_utils.NewMockConn("instance-2")
	cluster := test_utils.NewMockCluster("instance-1")
	require.NoError(t, pluginService.SetCurrentConnection(current, cluster.Host("instance-1"), nil))

	_, _, _, err := pluginManager.Execute(replaced, utils.CONN_EXEC_CONTEXT, targetFunc(&calls))
	assert.Error(t, err)
	assert.NotContains(t, calls, "target")

	_, _, _, err = pluginManager.Execute(replaced, utils.CONN_CLOSE, targetFunc(&calls))
	assert.NoError(t, err)

	_, _, _, err = pluginManager.Execute(current, utils.CONN_EXEC_CONTEXT, targetFunc(&calls))
	assert.NoError(t, err)
}

func TestConnectRunsThroughPlugins(t *testing.T) {
	calls := []string{}
	last := test_utils.NewTestPlugin("C", &calls)
	last.Connection = test_utils.NewMockConn("instance-1")
	pluginManager, _ := newPluginManager(t,
		test_utils.NewTestPlugin("A", &calls),
		test_utils.NewTestPlugin("B", &calls, utils.CONN_EXEC_CONTEXT),
		last)
	host := test_utils.NewMockCluster("instance-1").Host("instance-1")

	conn, err := pluginManager.Connect(host, map[string]string{}, true)

	require.NoError(t, err)
	assert.Same(t, last.Connection, conn)
	assert.Equal(t, []string{"A:before connect", "C:before connect", "C:connection", "A:after connect"}, calls)

	calls = calls[:0]
	_, err = pluginManager.ForceConnect(host, map[string]string{}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"A:before connect", "C:before connect", "C:connection", "A:after connect"}, calls)
}

func TestConnectWithoutConnectingPluginFails(t *testing.T) {
	calls := []string{}
	pluginManager, _ := newPluginManager(t, test_utils.NewTestPlugin("A", &calls))

	conn, err := pluginManager.Connect(test_utils.NewMockCluster("instance-1").Host("instance-1"), map[string]string{}, true)

	assert.Nil(t, conn)
	assert.Error(t, err)
}

func TestExecuteWithoutSubscribersFails(t *testing.T) {
	calls := []string{}
	pluginManager, _ := newPluginManager(t, test_utils.NewTestPlugin("A", &calls, utils.CONN_PING))

	_, _, _, err := pluginManager.Execute(nil, utils.CONN_EXEC_CONTEXT, targetFunc(&calls))

	assert.Error(t, err)
	assert.Empty(t, calls)
}

func TestInitRequiresPlugins(t *testing.T) {
	pluginManager := plugin_helpers.NewPluginManagerImpl(map[string]string{}, nil)

	assert.Error(t, pluginManager.Init(nil, nil))
}

func TestNotifyConnectionChangedSkipsCaller(t *testing.T) {
	calls := []string{}
	caller := test_utils.NewTestPlugin("A", &calls)
	recorder := newRecordingPlugin(&calls)
	recorder.action = driver_infrastructure.PRESERVE
	pluginManager, _ := newPluginManager(t, caller, recorder)
	changes := map[driver_infrastructure.HostChangeOptions]bool{driver_infrastructure.CONNECTION_OBJECT_CHANGED: true}

	opinions := pluginManager.NotifyConnectionChanged(changes, caller)

	assert.Equal(t, map[driver_infrastructure.OldConnectionSuggestedAction]bool{driver_infrastructure.PRESERVE: true}, opinions)
	assert.Empty(t, calls)
	assert.Equal(t, []map[driver_infrastructure.HostChangeOptions]bool{changes}, recorder.connectionChanges)
}

func TestNotifyHostListChangedOnlyReachesSubscribers(t *testing.T) {
	calls := []string{}
	subscribed := newRecordingPlugin(&calls)
	unsubscribed := newRecordingPlugin(&calls)
	unsubscribed.Methods = []utils.Method{utils.CONN_PING}
	pluginManager, _ := newPluginManager(t, subscribed, unsubscribed)
	changes := map[string]map[driver_infrastructure.HostChangeOptions]bool{
		"instance-1": {driver_infrastructure.WENT_DOWN: true},
	}

	pluginManager.NotifyHostListChanged(changes)

	assert.Len(t, subscribed.hostListChanges, 1)
	assert.Empty(t, unsubscribed.hostListChanges)
}

func TestInitHostProviderVisitsEveryPlugin(t *testing.T) {
	calls := []string{}
	pluginManager, pluginService := newPluginManager(t,
		test_utils.NewTestPlugin("A", &calls),
		test_utils.NewTestPlugin("B", &calls))

	require.NoError(t, pluginManager.InitHostProvider(map[string]string{}, pluginService))

	assert.Equal(t, []string{"A:initHostProvider", "B:initHostProvider"}, calls)
}

func TestReleaseResourcesSurvivesPanics(t *testing.T) {
	calls := []string{}
	failing := &releasablePlugin{TestPlugin: test_utils.NewTestPlugin("A", &calls), panics: true}
	healthy := &releasablePlugin{TestPlugin: test_utils.NewTestPlugin("B", &calls)}
	pluginManager, _ := newPluginManager(t, failing, healthy)

	assert.NotPanics(t, pluginManager.ReleaseResources)
	assert.False(t, failing.released)
	assert.True(t, healthy.released)
}

func TestDefaultConnectionProvider(t *testing.T) {
	provider := &test_utils.MockConnectionProvider{}
	pluginManager := plugin_helpers.NewPluginManagerImpl(map[string]string{}, provider)

	assert.Same(t, provider, pluginManager.GetDefaultConnectionProvider())
}
