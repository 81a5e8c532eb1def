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

package plugin_helpers

import (
	"database/sql/driver"
	"log/slog"
	"sync"

	"github.com/aws/aws-advanced-go-wrapper/failover/driver_infrastructure"
	"github.com/aws/aws-advanced-go-wrapper/failover/error_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/host_info_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/utils"

	"github.com/hashicorp/go-multierror"
)

type PluginChain struct {
	execChain    func(pluginFunc driver_infrastructure.PluginExecFunc, execFunc driver_infrastructure.ExecuteFunc) (any, any, bool, error)
	connectChain func(pluginFunc driver_infrastructure.PluginConnectFunc, connectFunc driver_infrastructure.ConnectFunc) (driver.Conn, error)
}

func (chain *PluginChain) ExecAddToHead(plugin driver_infrastructure.ConnectionPlugin) {
	if chain.execChain == nil {
		chain.execChain = func(pluginFunc driver_infrastructure.PluginExecFunc, execFunc driver_infrastructure.ExecuteFunc) (any, any, bool, error) {
			return pluginFunc(plugin, execFunc)
		}
	} else {
		pipelineSoFar := chain.execChain
		chain.execChain = func(pluginFunc driver_infrastructure.PluginExecFunc, execFunc driver_infrastructure.ExecuteFunc) (any, any, bool, error) {
			return pluginFunc(plugin, func() (any, any, bool, error) { return pipelineSoFar(pluginFunc, execFunc) })
		}
	}
}

func (chain *PluginChain) ConnectAddToHead(plugin driver_infrastructure.ConnectionPlugin) {
	if chain.connectChain == nil {
		chain.connectChain = func(pluginFunc driver_infrastructure.PluginConnectFunc, connectFunc driver_infrastructure.ConnectFunc) (driver.Conn, error) {
			return pluginFunc(plugin, connectFunc)
		}
	} else {
		pipelineSoFar := chain.connectChain
		chain.connectChain = func(pluginFunc driver_infrastructure.PluginConnectFunc, connectFunc driver_infrastructure.ConnectFunc) (driver.Conn, error) {
			return pluginFunc(plugin, func() (driver.Conn, error) { return pipelineSoFar(pluginFunc, connectFunc) })
		}
	}
}

func (chain *PluginChain) Execute(pluginFunc driver_infrastructure.PluginExecFunc, execFunc driver_infrastructure.ExecuteFunc) (any, any, bool, error) {
	if chain.execChain == nil {
		slog.Warn(error_util.GetMessage("PluginManager.pipelineNone"))
		return nil, nil, false, error_util.NewGenericAwsWrapperError(error_util.GetMessage("PluginManager.pipelineNone"))
	}
	return chain.execChain(pluginFunc, execFunc)
}

func (chain *PluginChain) Connect(pluginFunc driver_infrastructure.PluginConnectFunc, connectFunc driver_infrastructure.ConnectFunc) (driver.Conn, error) {
	if chain.connectChain == nil {
		slog.Warn(error_util.GetMessage("PluginManager.pipelineNone"))
		return nil, error_util.NewGenericAwsWrapperError(error_util.GetMessage("PluginManager.pipelineNone"))
	}
	return chain.connectChain(pluginFunc, connectFunc)
}

// PluginManagerImpl runs every intercepted operation through the plugins subscribed to it, in
// configured order. The last plugin is always the DefaultPlugin, which performs the real call.
type PluginManagerImpl struct {
	pluginService             driver_infrastructure.PluginService
	defaultConnectionProvider driver_infrastructure.ConnectionProvider
	props                     map[string]string
	plugins                   []driver_infrastructure.ConnectionPlugin
	subscriptions             []utils.MethodSet
	execChains                [utils.METHOD_COUNT]*PluginChain
	connectChains             [utils.METHOD_COUNT]*PluginChain
	chainsLock                sync.Mutex
}

func NewPluginManagerImpl(props map[string]string, defaultConnectionProvider driver_infrastructure.ConnectionProvider) *PluginManagerImpl {
	return &PluginManagerImpl{
		props:                     props,
		defaultConnectionProvider: defaultConnectionProvider,
	}
}

// Init stores the plugins in order; plugins must already end with the DefaultPlugin.
func (pluginManager *PluginManagerImpl) Init(
	pluginService driver_infrastructure.PluginService,
	plugins []driver_infrastructure.ConnectionPlugin) error {
	if len(plugins) == 0 {
		return error_util.NewIllegalArgumentError(error_util.GetMessage("PluginManager.pipelineNone"))
	}
	pluginManager.pluginService = pluginService
	pluginManager.plugins = plugins
	pluginManager.subscriptions = make([]utils.MethodSet, len(plugins))
	for i, plugin := range plugins {
		pluginManager.subscriptions[i] = utils.NewMethodSet(plugin.GetSubscribedMethods()...)
	}
	pluginManager.chainsLock.Lock()
	pluginManager.execChains = [utils.METHOD_COUNT]*PluginChain{}
	pluginManager.connectChains = [utils.METHOD_COUNT]*PluginChain{}
	pluginManager.chainsLock.Unlock()
	return nil
}

func (pluginManager *PluginManagerImpl) InitHostProvider(
	props map[string]string,
	hostListProviderService driver_infrastructure.HostListProviderService) error {
	pluginFunc := func(plugin driver_infrastructure.ConnectionPlugin, targetFunc driver_infrastructure.ExecuteFunc) (any, any, bool, error) {
		initFunc := func() error {
			_, _, _, err := targetFunc()
			return err
		}
		err := plugin.InitHostProvider(props, hostListProviderService, initFunc)
		if err != nil {
			return nil, nil, false, err
		}
		return nil, nil, true, nil
	}
	targetFunc := func() (any, any, bool, error) {
		return nil, nil, true, nil
	}
	_, _, _, err := pluginManager.executeWithSubscribedPlugins(utils.INIT_HOST_PROVIDER, pluginFunc, targetFunc)
	return err
}

func (pluginManager *PluginManagerImpl) Connect(
	hostInfo *host_info_util.HostInfo,
	props map[string]string,
	isInitialConnection bool) (driver.Conn, error) {
	pluginFunc := func(plugin driver_infrastructure.ConnectionPlugin, targetFunc driver_infrastructure.ConnectFunc) (driver.Conn, error) {
		return plugin.Connect(hostInfo, props, isInitialConnection, targetFunc)
	}
	targetFunc := func() (driver.Conn, error) {
		return nil, error_util.NewGenericAwsWrapperError(error_util.GetMessage("PluginManager.shouldNotBeCalled", utils.CONNECT))
	}
	return pluginManager.connectWithSubscribedPlugins(utils.CONNECT, pluginFunc, targetFunc)
}

func (pluginManager *PluginManagerImpl) ForceConnect(
	hostInfo *host_info_util.HostInfo,
	props map[string]string,
	isInitialConnection bool) (driver.Conn, error) {
	pluginFunc := func(plugin driver_infrastructure.ConnectionPlugin, targetFunc driver_infrastructure.ConnectFunc) (driver.Conn, error) {
		return plugin.ForceConnect(hostInfo, props, isInitialConnection, targetFunc)
	}
	targetFunc := func() (driver.Conn, error) {
		return nil, error_util.NewGenericAwsWrapperError(error_util.GetMessage("PluginManager.shouldNotBeCalled", utils.FORCE_CONNECT))
	}
	return pluginManager.connectWithSubscribedPlugins(utils.FORCE_CONNECT, pluginFunc, targetFunc)
}

func (pluginManager *PluginManagerImpl) Execute(
	connInvokedOn driver.Conn,
	method utils.Method,
	executeFunc driver_infrastructure.ExecuteFunc,
	methodArgs ...any) (any, any, bool, error) {
	if connInvokedOn != nil &&
		connInvokedOn != pluginManager.pluginService.GetCurrentConnection() &&
		!utils.CLOSING_METHODS.Contains(method) {
		return nil, nil, false, error_util.NewGenericAwsWrapperError(
			error_util.GetMessage("PluginManager.invokedAgainstOldConnection", method))
	}
	pluginFunc := func(plugin driver_infrastructure.ConnectionPlugin, targetFunc driver_infrastructure.ExecuteFunc) (any, any, bool, error) {
		return plugin.Execute(connInvokedOn, method, targetFunc, methodArgs...)
	}
	return pluginManager.executeWithSubscribedPlugins(method, pluginFunc, executeFunc)
}

func (pluginManager *PluginManagerImpl) executeWithSubscribedPlugins(
	method utils.Method,
	pluginFunc driver_infrastructure.PluginExecFunc,
	targetFunc driver_infrastructure.ExecuteFunc) (any, any, bool, error) {
	return pluginManager.getChain(method, true).Execute(pluginFunc, targetFunc)
}

func (pluginManager *PluginManagerImpl) connectWithSubscribedPlugins(
	method utils.Method,
	pluginFunc driver_infrastructure.PluginConnectFunc,
	targetFunc driver_infrastructure.ConnectFunc) (driver.Conn, error) {
	return pluginManager.getChain(method, false).Connect(pluginFunc, targetFunc)
}

func (pluginManager *PluginManagerImpl) getChain(method utils.Method, creatingExecChain bool) *PluginChain {
	if method >= utils.METHOD_COUNT {
		return &PluginChain{}
	}
	pluginManager.chainsLock.Lock()
	defer pluginManager.chainsLock.Unlock()

	chains := &pluginManager.connectChains
	if creatingExecChain {
		chains = &pluginManager.execChains
	}
	if chains[method] == nil {
		chains[method] = pluginManager.makePluginChain(method, creatingExecChain)
	}
	return chains[method]
}

func (pluginManager *PluginManagerImpl) makePluginChain(method utils.Method, creatingExecChain bool) *PluginChain {
	chain := &PluginChain{}
	for i := len(pluginManager.plugins) - 1; i >= 0; i-- {
		if !pluginManager.subscriptions[i].Contains(method) {
			continue
		}
		if creatingExecChain {
			chain.ExecAddToHead(pluginManager.plugins[i])
		} else {
			chain.ConnectAddToHead(pluginManager.plugins[i])
		}
	}
	return chain
}

func (pluginManager *PluginManagerImpl) NotifyHostListChanged(changes map[string]map[driver_infrastructure.HostChangeOptions]bool) {
	notifyFunc := func(plugin driver_infrastructure.ConnectionPlugin, _ driver_infrastructure.ExecuteFunc) (any, any, bool, error) {
		plugin.NotifyHostListChanged(changes)
		return nil, nil, true, nil
	}
	_ = pluginManager.NotifySubscribedPlugins(utils.NOTIFY_HOST_LIST_CHANGED, notifyFunc, nil)
}

func (pluginManager *PluginManagerImpl) NotifyConnectionChanged(
	changes map[driver_infrastructure.HostChangeOptions]bool,
	skipNotificationForThisPlugin driver_infrastructure.ConnectionPlugin) map[driver_infrastructure.OldConnectionSuggestedAction]bool {
	result := make(map[driver_infrastructure.OldConnectionSuggestedAction]bool)
	pluginFunc := func(plugin driver_infrastructure.ConnectionPlugin, _ driver_infrastructure.ExecuteFunc) (any, any, bool, error) {
		result[plugin.NotifyConnectionChanged(changes)] = true
		return nil, nil, true, nil
	}
	_ = pluginManager.NotifySubscribedPlugins(utils.NOTIFY_CONNECTION_CHANGED, pluginFunc, skipNotificationForThisPlugin)
	return result
}

func (pluginManager *PluginManagerImpl) NotifySubscribedPlugins(
	method utils.Method,
	pluginFunc driver_infrastructure.PluginExecFunc,
	skipNotificationForThisPlugin driver_infrastructure.ConnectionPlugin) error {
	for i, currentPlugin := range pluginManager.plugins {
		if currentPlugin == skipNotificationForThisPlugin || !pluginManager.subscriptions[i].Contains(method) {
			continue
		}
		_, _, _, err := pluginFunc(currentPlugin, func() (any, any, bool, error) { return nil, nil, true, nil })
		if err != nil {
			return err
		}
	}
	return nil
}

func (pluginManager *PluginManagerImpl) GetDefaultConnectionProvider() driver_infrastructure.ConnectionProvider {
	return pluginManager.defaultConnectionProvider
}

func (pluginManager *PluginManagerImpl) ReleaseResources() {
	slog.Debug(error_util.GetMessage("PluginManager.releaseResources"))
	var result *multierror.Error
	for _, plugin := range pluginManager.plugins {
		releasable, ok := plugin.(driver_infrastructure.CanReleaseResources)
		if !ok {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					result = multierror.Append(result, error_util.NewGenericAwsWrapperError(
						error_util.GetMessage("PluginManager.releaseResourcesPanic", plugin.GetPluginCode(), r)))
				}
			}()
			releasable.ReleaseResources()
		}()
	}
	if err := result.ErrorOrNil(); err != nil {
		slog.Warn(err.Error())
	}
}
