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

	"github.com/aws/aws-advanced-go-wrapper/failover/driver_infrastructure"
	"github.com/aws/aws-advanced-go-wrapper/failover/host_info_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/utils"
)

// DefaultPlugin is always last in the chain. It makes the physical call and keeps the
// transaction and session state of the plugin service in step with what was executed.
type DefaultPlugin struct {
	PluginService       driver_infrastructure.PluginService
	DefaultConnProvider driver_infrastructure.ConnectionProvider
}

func NewDefaultPlugin(pluginService driver_infrastructure.PluginService, connProvider driver_infrastructure.ConnectionProvider) *DefaultPlugin {
	return &DefaultPlugin{PluginService: pluginService, DefaultConnProvider: connProvider}
}

func (d *DefaultPlugin) GetPluginCode() string {
	return driver_infrastructure.DEFAULT_PLUGIN_CODE
}

func (d *DefaultPlugin) InitHostProvider(
	props map[string]string,
	hostListProviderService driver_infrastructure.HostListProviderService,
	initHostProviderFunc func() error) error {
	// Last in the chain, nothing to delegate to.
	return nil
}

func (d *DefaultPlugin) GetSubscribedMethods() []utils.Method {
	return []utils.Method{utils.ALL_METHODS}
}

func (d *DefaultPlugin) Execute(
	_ driver.Conn,
	method utils.Method,
	executeFunc driver_infrastructure.ExecuteFunc,
	methodArgs ...any) (wrappedReturnValue any, wrappedReturnValue2 any, wrappedOk bool, wrappedErr error) {
	wrappedReturnValue, wrappedReturnValue2, wrappedOk, wrappedErr = executeFunc()
	if wrappedErr != nil {
		return
	}

	if utils.DoesOpenTransaction(method, methodArgs...) {
		d.PluginService.SetInTransaction(true)
	} else if utils.DoesCloseTransaction(method, methodArgs...) {
		d.PluginService.SetInTransaction(false)
	}
	d.updateSessionState(method, methodArgs)
	return
}

func (d *DefaultPlugin) updateSessionState(method utils.Method, methodArgs []any) {
	if len(methodArgs) == 0 {
		return
	}
	sessionState := d.PluginService.GetSessionState()
	switch method {
	case utils.CONN_EXEC_CONTEXT, utils.CONN_QUERY_CONTEXT, utils.STMT_EXEC_CONTEXT, utils.STMT_QUERY_CONTEXT:
		if query, ok := methodArgs[0].(string); ok {
			d.PluginService.UpdateState(query)
		}
	case utils.CONN_SET_READ_ONLY:
		if readOnly, ok := methodArgs[0].(bool); ok {
			sessionState.ReadOnly.SetValue(readOnly)
		}
	case utils.CONN_SET_AUTO_COMMIT:
		if autoCommit, ok := methodArgs[0].(bool); ok {
			sessionState.AutoCommit.SetValue(autoCommit)
		}
	case utils.CONN_SET_TRANSACTION_ISOLATION:
		if level, ok := methodArgs[0].(driver_infrastructure.TransactionIsolationLevel); ok {
			sessionState.TransactionIsolation.SetValue(level)
		}
	}
}

func (d *DefaultPlugin) Connect(
	hostInfo *host_info_util.HostInfo,
	props map[string]string,
	isInitialConnection bool,
	_ driver_infrastructure.ConnectFunc) (driver.Conn, error) {
	return d.connectInternal(hostInfo, props, isInitialConnection)
}

func (d *DefaultPlugin) ForceConnect(
	hostInfo *host_info_util.HostInfo,
	props map[string]string,
	isInitialConnection bool,
	_ driver_infrastructure.ConnectFunc) (driver.Conn, error) {
	return d.connectInternal(hostInfo, props, isInitialConnection)
}

func (d *DefaultPlugin) connectInternal(
	hostInfo *host_info_util.HostInfo,
	props map[string]string,
	isInitialConnection bool) (driver.Conn, error) {
	conn, err := d.DefaultConnProvider.Connect(hostInfo, props, d.PluginService)
	if err != nil {
		return nil, err
	}
	d.PluginService.SetAvailability(hostInfo.AllAliases(), host_info_util.AVAILABLE)
	if isInitialConnection {
		if err = d.PluginService.UpdateDialect(conn); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

func (d *DefaultPlugin) NotifyConnectionChanged(_ map[driver_infrastructure.HostChangeOptions]bool) driver_infrastructure.OldConnectionSuggestedAction {
	return driver_infrastructure.NO_OPINION
}

func (d *DefaultPlugin) NotifyHostListChanged(_ map[string]map[driver_infrastructure.HostChangeOptions]bool) {
	// Do nothing.
}
