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

package plugins

import (
	"database/sql/driver"
	"log/slog"

	"github.com/aws/aws-advanced-go-wrapper/failover/driver_infrastructure"
	"github.com/aws/aws-advanced-go-wrapper/failover/error_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/host_info_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/plugins/connection_tracker"
	"github.com/aws/aws-advanced-go-wrapper/failover/utils"
)

type AuroraConnectionTrackerPluginFactory struct {
	Tracker connection_tracker.ConnectionTracker
}

func (factory AuroraConnectionTrackerPluginFactory) GetInstance(
	pluginService driver_infrastructure.PluginService,
	props map[string]string) (driver_infrastructure.ConnectionPlugin, error) {
	tracker := factory.Tracker
	if tracker == nil {
		tracker = connection_tracker.DefaultOpenedConnectionTracker
	}
	return NewAuroraConnectionTrackerPlugin(pluginService, props, tracker), nil
}

func NewAuroraConnectionTrackerPluginFactory() driver_infrastructure.ConnectionPluginFactory {
	return AuroraConnectionTrackerPluginFactory{}
}

// AuroraConnectionTrackerPlugin closes the connections still open to a demoted writer.
type AuroraConnectionTrackerPlugin struct {
	BaseConnectionPlugin
	pluginService           driver_infrastructure.PluginService
	tracker                 connection_tracker.ConnectionTracker
	props                   map[string]string
	currentWriter           *host_info_util.HostInfo
	needUpdateCurrentWriter bool
}

func NewAuroraConnectionTrackerPlugin(
	pluginService driver_infrastructure.PluginService,
	props map[string]string,
	tracker connection_tracker.ConnectionTracker) *AuroraConnectionTrackerPlugin {
	return &AuroraConnectionTrackerPlugin{
		pluginService: pluginService,
		props:         props,
		tracker:       tracker,
	}
}

func (a *AuroraConnectionTrackerPlugin) GetPluginCode() string {
	return driver_infrastructure.AURORA_CONNECTION_TRACKER_PLUGIN_CODE
}

func (a *AuroraConnectionTrackerPlugin) GetSubscribedMethods() []utils.Method {
	return append([]utils.Method{
		utils.CONNECT,
		utils.FORCE_CONNECT,
		utils.CONN_CLOSE,
		utils.CONN_ABORT,
		utils.NOTIFY_HOST_LIST_CHANGED,
	}, utils.NETWORK_BOUND_METHODS...)
}

func (a *AuroraConnectionTrackerPlugin) Execute(
	connInvokedOn driver.Conn,
	method utils.Method,
	executeFunc driver_infrastructure.ExecuteFunc,
	_ ...any) (wrappedReturnValue any, wrappedReturnValue2 any, wrappedOk bool, wrappedErr error) {
	if method == utils.CONN_CLOSE || method == utils.CONN_ABORT {
		a.tracker.RemoveConnection(connInvokedOn)
		return executeFunc()
	}

	a.rememberWriter()
	wrappedReturnValue, wrappedReturnValue2, wrappedOk, wrappedErr = executeFunc()
	if wrappedErr != nil && error_util.IsFailoverSignal(wrappedErr) {
		a.checkWriterChanged()
	}
	return
}

func (a *AuroraConnectionTrackerPlugin) Connect(
	hostInfo *host_info_util.HostInfo,
	_ map[string]string,
	_ bool,
	connectFunc driver_infrastructure.ConnectFunc) (driver.Conn, error) {
	return a.connectAndTrack(hostInfo, connectFunc)
}

func (a *AuroraConnectionTrackerPlugin) ForceConnect(
	hostInfo *host_info_util.HostInfo,
	_ map[string]string,
	_ bool,
	connectFunc driver_infrastructure.ConnectFunc) (driver.Conn, error) {
	return a.connectAndTrack(hostInfo, connectFunc)
}

func (a *AuroraConnectionTrackerPlugin) connectAndTrack(
	hostInfo *host_info_util.HostInfo,
	connectFunc driver_infrastructure.ConnectFunc) (driver.Conn, error) {
	conn, err := connectFunc()
	if err != nil || conn == nil {
		return conn, err
	}

	trackedHost := hostInfo
	rdsUrlType := utils.IdentifyRdsUrlType(hostInfo.Host)
	if rdsUrlType.IsRdsCluster || rdsUrlType == utils.OTHER || rdsUrlType == utils.IP_ADDRESS {
		trackedHost = a.pluginService.FillAliases(conn, hostInfo.WithResetAliases())
	}
	a.tracker.PopulateOpenedConnectionQueue(trackedHost, conn)
	return conn, nil
}

func (a *AuroraConnectionTrackerPlugin) NotifyHostListChanged(changes map[string]map[driver_infrastructure.HostChangeOptions]bool) {
	for host, hostChanges := range changes {
		if hostChanges[driver_infrastructure.PROMOTED_TO_READER] || hostChanges[driver_infrastructure.PROMOTED_TO_WRITER] {
			a.tracker.InvalidateAllConnectionsMultipleHosts(host)
		}
	}
	a.tracker.LogOpenedConnections()
	a.needUpdateCurrentWriter = true
}

func (a *AuroraConnectionTrackerPlugin) rememberWriter() {
	if a.currentWriter.IsNil() || a.needUpdateCurrentWriter {
		a.currentWriter = host_info_util.GetWriter(a.pluginService.GetHosts())
		a.needUpdateCurrentWriter = false
	}
}

func (a *AuroraConnectionTrackerPlugin) checkWriterChanged() {
	writerAfterFailover := host_info_util.GetWriter(a.pluginService.GetHosts())
	if writerAfterFailover.IsNil() {
		return
	}

	if a.currentWriter.IsNil() {
		a.currentWriter = writerAfterFailover
		a.needUpdateCurrentWriter = false
		return
	}
	if a.currentWriter.GetHostAndPort() != writerAfterFailover.GetHostAndPort() {
		slog.Debug(error_util.GetMessage("AuroraConnectionTrackerPlugin.writerChanged",
			a.currentWriter.GetHostAndPort(), writerAfterFailover.GetHostAndPort()))
		a.tracker.InvalidateAllConnections(a.currentWriter)
		a.tracker.LogOpenedConnections()
		a.currentWriter = writerAfterFailover
		a.needUpdateCurrentWriter = false
	}
}
