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

package driver_test

import (
	"testing"

	awsDriver "github.com/aws/aws-advanced-go-wrapper/failover/driver"
	"github.com/aws/aws-advanced-go-wrapper/failover/driver_infrastructure"
	"github.com/aws/aws-advanced-go-wrapper/failover/error_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/plugin_helpers"
	"github.com/aws/aws-advanced-go-wrapper/failover/plugins"
	"github.com/aws/aws-advanced-go-wrapper/failover/property_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/test_utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPluginFactory struct {
	name  string
	calls *[]string
}

func (f testPluginFactory) GetInstance(_ driver_infrastructure.PluginService, _ map[string]string) (driver_infrastructure.ConnectionPlugin, error) {
	return test_utils.NewTestPlugin(f.name, f.calls), nil
}

func buildChain(t *testing.T, props map[string]string) ([]driver_infrastructure.ConnectionPlugin, error) {
	t.Helper()
	calls := []string{}
	factories := map[string]driver_infrastructure.ConnectionPluginFactory{
		driver_infrastructure.FAILOVER_PLUGIN_CODE:                  plugins.FailoverPluginFactory{Metrics: plugins.NewFailoverMetrics(nil)},
		driver_infrastructure.AURORA_CONNECTION_TRACKER_PLUGIN_CODE: plugins.NewAuroraConnectionTrackerPluginFactory(),
		"custom": testPluginFactory{name: "Custom", calls: &calls},
	}
	pluginService := test_utils.NewMockPluginService(nil)
	pluginManager := plugin_helpers.NewPluginManagerImpl(props, pluginService.Provider)
	builder := awsDriver.ConnectionPluginChainBuilder{}
	return builder.GetPlugins(pluginService, pluginManager, props, factories)
}

func pluginCodes(chain []driver_infrastructure.ConnectionPlugin) []string {
	codes := make([]string, len(chain))
	for i, plugin := range chain {
		codes[i] = plugin.GetPluginCode()
	}
	return codes
}

func TestChainBuilderUsesDefaultPlugins(t *testing.T) {
	chain, err := buildChain(t, map[string]string{})

	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.IsType(t, &plugins.FailoverPlugin{}, chain[0])
	assert.IsType(t, &plugins.DefaultPlugin{}, chain[1])
}

func TestChainBuilderSortsKnownPlugins(t *testing.T) {
	chain, err := buildChain(t, map[string]string{
		property_util.PLUGINS.Name: "failover, auroraConnectionTracker",
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"auroraConnectionTracker", "failover", "default"}, pluginCodes(chain))
}

func TestChainBuilderKeepsOrderWhenSortingDisabled(t *testing.T) {
	chain, err := buildChain(t, map[string]string{
		property_util.PLUGINS.Name:                "failover,auroraConnectionTracker",
		property_util.AUTO_SORT_PLUGIN_ORDER.Name: "false",
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"failover", "auroraConnectionTracker", "default"}, pluginCodes(chain))
}

func TestChainBuilderPlacesUnknownWeightsAfterPriorPlugin(t *testing.T) {
	chain, err := buildChain(t, map[string]string{
		property_util.PLUGINS.Name: "failover,custom,auroraConnectionTracker",
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"auroraConnectionTracker", "failover", "custom", "default"}, pluginCodes(chain))

	chain, err = buildChain(t, map[string]string{
		property_util.PLUGINS.Name: "custom,failover",
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"custom", "failover", "default"}, pluginCodes(chain))
}

func TestChainBuilderWithNoPlugins(t *testing.T) {
	for _, pluginsValue := range []string{"", "none", " NONE "} {
		chain, err := buildChain(t, map[string]string{property_util.PLUGINS.Name: pluginsValue})

		require.NoError(t, err)
		assert.Equal(t, []string{"default"}, pluginCodes(chain), pluginsValue)
	}
}

func TestChainBuilderRejectsUnknownPlugin(t *testing.T) {
	chain, err := buildChain(t, map[string]string{property_util.PLUGINS.Name: "failover,efm"})

	assert.Nil(t, chain)
	var awsErr *error_util.AwsWrapperError
	require.ErrorAs(t, err, &awsErr)
	assert.True(t, awsErr.IsType(error_util.IllegalArgumentErrorType))
}
