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
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/aws/aws-advanced-go-wrapper/failover/driver_infrastructure"
	"github.com/aws/aws-advanced-go-wrapper/failover/error_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/plugins"
	"github.com/aws/aws-advanced-go-wrapper/failover/property_util"
)

const WEIGHT_RELATIVE_TO_PRIOR_PLUGIN = -1

type PluginFactoryWeight struct {
	pluginFactory driver_infrastructure.ConnectionPluginFactory
	weight        int
}

var pluginWeightByCode = map[string]int{
	driver_infrastructure.AURORA_CONNECTION_TRACKER_PLUGIN_CODE: 400,
	driver_infrastructure.FAILOVER_PLUGIN_CODE:                  700,
}

type ConnectionPluginChainBuilder struct {
}

// GetPlugins instantiates the plugins named by the plugins property and appends the DefaultPlugin.
func (builder *ConnectionPluginChainBuilder) GetPlugins(
	pluginService driver_infrastructure.PluginService,
	pluginManager driver_infrastructure.PluginManager,
	props map[string]string,
	availablePlugins map[string]driver_infrastructure.ConnectionPluginFactory) ([]driver_infrastructure.ConnectionPlugin, error) {
	var resultPlugins []driver_infrastructure.ConnectionPlugin
	var pluginFactoryWeights []PluginFactoryWeight

	pluginCodes := property_util.PLUGINS.Get(props)
	usingDefault := pluginCodes == property_util.DEFAULT_PLUGINS

	pluginCodes = strings.ReplaceAll(strings.TrimSpace(pluginCodes), " ", "")
	var pluginCodesSlice []string
	if len(pluginCodes) != 0 && strings.ToLower(pluginCodes) != "none" {
		pluginCodesSlice = strings.Split(pluginCodes, ",")
	}
	lastWeight := 0
	for _, pluginCode := range pluginCodesSlice {
		if pluginCode == "" {
			continue
		}
		factory, ok := availablePlugins[pluginCode]
		if !ok {
			return nil, error_util.NewIllegalArgumentError(error_util.GetMessage("ConnectionPluginChainBuilder.unknownPluginCode", pluginCode))
		}
		weight, known := pluginWeightByCode[pluginCode]
		if !known || weight == WEIGHT_RELATIVE_TO_PRIOR_PLUGIN {
			lastWeight++
		} else {
			lastWeight = weight
		}
		pluginFactoryWeights = append(pluginFactoryWeights, PluginFactoryWeight{factory, lastWeight})
	}

	autoSort := property_util.GetBoolProperty(props, property_util.AUTO_SORT_PLUGIN_ORDER)
	pluginsSorted := false
	if !usingDefault && len(pluginFactoryWeights) > 1 && autoSort {
		sort.SliceStable(pluginFactoryWeights, func(i, j int) bool {
			return pluginFactoryWeights[i].weight < pluginFactoryWeights[j].weight
		})
		pluginsSorted = true
	}

	for _, pluginFactoryWeight := range pluginFactoryWeights {
		plugin, err := pluginFactoryWeight.pluginFactory.GetInstance(pluginService, props)
		if err != nil {
			return nil, err
		}
		if plugin != nil {
			resultPlugins = append(resultPlugins, plugin)
		}
	}

	resultPlugins = append(resultPlugins, plugins.NewDefaultPlugin(pluginService, pluginManager.GetDefaultConnectionProvider()))
	if pluginsSorted {
		slog.Info(error_util.GetMessage("ConnectionPluginChainBuilder.pluginsRearranged", getPluginOrder(resultPlugins)))
	}

	return resultPlugins, nil
}

func getPluginOrder(plugins []driver_infrastructure.ConnectionPlugin) string {
	var codes []string
	for _, plugin := range plugins {
		codes = append(codes, fmt.Sprintf("%s(%T)", plugin.GetPluginCode(), plugin))
	}
	return strings.Join(codes, ",")
}
