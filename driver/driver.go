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

package driver

import (
	"database/sql"
	"database/sql/driver"
	"log/slog"
	"maps"
	"sync"

	"github.com/aws/aws-advanced-go-wrapper/failover/driver_infrastructure"
	"github.com/aws/aws-advanced-go-wrapper/failover/error_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/plugin_helpers"
	"github.com/aws/aws-advanced-go-wrapper/failover/plugins"
	"github.com/aws/aws-advanced-go-wrapper/failover/plugins/connection_tracker"
	"github.com/aws/aws-advanced-go-wrapper/failover/property_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/utils"
)

const DRIVER_NAME = "awssql"

var pluginFactoryByCode = map[string]driver_infrastructure.ConnectionPluginFactory{
	driver_infrastructure.FAILOVER_PLUGIN_CODE:                  plugins.NewFailoverPluginFactory(),
	driver_infrastructure.AURORA_CONNECTION_TRACKER_PLUGIN_CODE: plugins.NewAuroraConnectionTrackerPluginFactory(),
}
var pluginFactoryLock sync.RWMutex

// AwsWrapperDriver opens sessions that survive Aurora failover. TargetDriverDialect is optional;
// by default the dialect follows the DSN protocol.
type AwsWrapperDriver struct {
	TargetDriverDialect driver_infrastructure.DriverDialect
}

func (d *AwsWrapperDriver) Open(dsn string) (driver.Conn, error) {
	props, err := utils.ParseDsn(dsn)
	if err != nil {
		return nil, err
	}
	props, err = property_util.ApplyPropertyProfile(props)
	if err != nil {
		return nil, err
	}
	slog.Debug(error_util.GetMessage("AwsWrapper.initializingDatabaseHandle", property_util.HOST.Get(props)))

	engine, err := GetDatabaseEngine(props)
	if err != nil {
		return nil, err
	}
	driverDialect := d.TargetDriverDialect
	if driverDialect == nil {
		driverDialect = GetTargetDriverDialect(engine)
	}

	defaultConnProvider := driver_infrastructure.NewDriverConnectionProvider(driverDialect.GetDriver())
	pluginManager := plugin_helpers.NewPluginManagerImpl(props, defaultConnProvider)
	pluginService, err := plugin_helpers.NewPluginServiceImpl(pluginManager, driverDialect, props, dsn)
	if err != nil {
		return nil, err
	}

	pluginChainBuilder := ConnectionPluginChainBuilder{}
	currentPlugins, err := pluginChainBuilder.GetPlugins(pluginService, pluginManager, props, getPluginFactories())
	if err != nil {
		return nil, err
	}
	return OpenWithPlugins(pluginManager, pluginService, currentPlugins, props)
}

// OpenWithPlugins initializes the host provider and opens the initial connection through plugins.
func OpenWithPlugins(
	pluginManager driver_infrastructure.PluginManager,
	pluginService driver_infrastructure.PluginService,
	currentPlugins []driver_infrastructure.ConnectionPlugin,
	props map[string]string) (*AwsWrapperConn, error) {
	if err := pluginManager.Init(pluginService, currentPlugins); err != nil {
		return nil, err
	}
	if err := pluginManager.InitHostProvider(props, pluginService); err != nil {
		return nil, err
	}
	if err := pluginService.RefreshHostList(nil); err != nil {
		return nil, err
	}

	initialHost := pluginService.GetInitialConnectionHostInfo()
	if initialHost.IsNil() {
		return nil, error_util.NewIllegalArgumentError(error_util.GetMessage("Driver.initialHostNotSet"))
	}
	conn, err := pluginManager.Connect(initialHost, pluginService.GetProperties(), true)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, error_util.NewGenericAwsWrapperError(error_util.GetMessage("Driver.connectionNotOpen"))
	}
	if err = pluginService.SetCurrentConnection(conn, initialHost, nil); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err = pluginService.RefreshHostList(conn); err != nil {
		slog.Warn(error_util.GetMessage("Driver.unableToRefreshHostList", err.Error()))
	}
	return NewAwsWrapperConn(pluginManager, pluginService), nil
}

func getPluginFactories() map[string]driver_infrastructure.ConnectionPluginFactory {
	pluginFactoryLock.RLock()
	defer pluginFactoryLock.RUnlock()
	return maps.Clone(pluginFactoryByCode)
}

// UsePluginFactory registers or replaces the factory behind a plugin code.
func UsePluginFactory(code string, pluginFactory driver_infrastructure.ConnectionPluginFactory) {
	pluginFactoryLock.Lock()
	defer pluginFactoryLock.Unlock()
	pluginFactoryByCode[code] = pluginFactory
}

func RemovePluginFactory(code string) {
	pluginFactoryLock.Lock()
	defer pluginFactoryLock.Unlock()
	delete(pluginFactoryByCode, code)
}

// ClearCaches drops the process wide topology, dialect and availability caches and stops topology
// monitors. Call it at program exit, not per connection.
func ClearCaches() {
	driver_infrastructure.DefaultClusterTopologyMonitorService.ReleaseResources()
	driver_infrastructure.DefaultTopologyCacheService.Clear()
	driver_infrastructure.ClearDialectCache()
	connection_tracker.DefaultOpenedConnectionTracker.ClearCache()
}

func init() {
	sql.Register(DRIVER_NAME, &AwsWrapperDriver{})
}
