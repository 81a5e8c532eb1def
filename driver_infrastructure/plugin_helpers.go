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

package driver_infrastructure

import (
	"database/sql/driver"

	"github.com/aws/aws-advanced-go-wrapper/failover/host_info_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/utils"
)

type ConnectFunc func() (driver.Conn, error)
type ExecuteFunc func() (any, any, bool, error)
type PluginExecFunc func(plugin ConnectionPlugin, targetFunc ExecuteFunc) (any, any, bool, error)
type PluginConnectFunc func(plugin ConnectionPlugin, targetFunc ConnectFunc) (driver.Conn, error)

type HostListProviderService interface {
	IsStaticHostListProvider() bool
	GetHostListProvider() HostListProvider
	SetHostListProvider(hostListProvider HostListProvider)
	SetInitialConnectionHostInfo(info *host_info_util.HostInfo)
	GetInitialConnectionHostInfo() *host_info_util.HostInfo
	GetDialect() DatabaseDialect
	GetCurrentConnection() driver.Conn
}

// PluginService is the per-session view of the current connection and cluster topology shared by all plugins.
type PluginService interface {
	HostListProviderService
	SetCurrentConnection(conn driver.Conn, hostInfo *host_info_util.HostInfo, skipNotificationForThisPlugin ConnectionPlugin) error
	GetCurrentHostInfo() *host_info_util.HostInfo
	GetHosts() []*host_info_util.HostInfo
	SetAvailability(hostAliases map[string]bool, availability host_info_util.HostAvailability)
	IsInTransaction() bool
	SetInTransaction(inTransaction bool)
	RefreshHostList(conn driver.Conn) error
	ForceRefreshHostList(conn driver.Conn) error
	Connect(hostInfo *host_info_util.HostInfo, props map[string]string) (driver.Conn, error)
	ForceConnect(hostInfo *host_info_util.HostInfo, props map[string]string) (driver.Conn, error)
	GetHostRole(conn driver.Conn) (host_info_util.HostRole, error)
	IdentifyConnection(conn driver.Conn) (*host_info_util.HostInfo, error)
	FillAliases(conn driver.Conn, hostInfo *host_info_util.HostInfo) *host_info_util.HostInfo
	GetTargetDriverDialect() DriverDialect
	UpdateDialect(conn driver.Conn) error
	GetConnectionProvider() ConnectionProvider
	GetProperties() map[string]string
	GetSessionState() *SessionState
	UpdateState(sql string)
	IsNetworkError(err error) bool
	IsLoginError(err error) bool
	IsClosed(conn driver.Conn) bool
}

type PluginManager interface {
	Init(pluginService PluginService, plugins []ConnectionPlugin) error
	InitHostProvider(props map[string]string, hostListProviderService HostListProviderService) error
	Connect(hostInfo *host_info_util.HostInfo, props map[string]string, isInitialConnection bool) (driver.Conn, error)
	ForceConnect(hostInfo *host_info_util.HostInfo, props map[string]string, isInitialConnection bool) (driver.Conn, error)
	Execute(connInvokedOn driver.Conn, method utils.Method, methodFunc ExecuteFunc, methodArgs ...any) (
		wrappedReturnValue any,
		wrappedReturnValue2 any,
		wrappedOk bool,
		wrappedErr error)
	NotifyHostListChanged(changes map[string]map[HostChangeOptions]bool)
	NotifyConnectionChanged(
		changes map[HostChangeOptions]bool, skipNotificationForThisPlugin ConnectionPlugin) map[OldConnectionSuggestedAction]bool
	NotifySubscribedPlugins(method utils.Method, pluginFunc PluginExecFunc, skipNotificationForThisPlugin ConnectionPlugin) error
	GetDefaultConnectionProvider() ConnectionProvider
	ReleaseResources()
}

type CanReleaseResources interface {
	ReleaseResources()
}
