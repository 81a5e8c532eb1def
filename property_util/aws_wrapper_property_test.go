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

package property_util_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-advanced-go-wrapper/failover/property_util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwsWrapperPropertyGetAndSet(t *testing.T) {
	props := map[string]string{}
	assert.Equal(t, property_util.DEFAULT_PLUGINS, property_util.PLUGINS.Get(props))
	assert.False(t, property_util.PLUGINS.IsSet(props))

	property_util.PLUGINS.Set(props, "auroraConnectionTracker,failover")
	assert.True(t, property_util.PLUGINS.IsSet(props))
	assert.Equal(t, "auroraConnectionTracker,failover", property_util.PLUGINS.Get(props))
}

func TestGetBoolProperty(t *testing.T) {
	assert.True(t, property_util.GetBoolProperty(map[string]string{}, property_util.ENABLE_CLUSTER_AWARE_FAILOVER))
	assert.False(t, property_util.GetBoolProperty(
		map[string]string{property_util.ENABLE_CLUSTER_AWARE_FAILOVER.Name: "false"}, property_util.ENABLE_CLUSTER_AWARE_FAILOVER))
	assert.True(t, property_util.GetBoolProperty(
		map[string]string{property_util.ENABLE_CLUSTER_AWARE_FAILOVER.Name: "nope"}, property_util.ENABLE_CLUSTER_AWARE_FAILOVER))
}

func TestGetPositiveIntProperty(t *testing.T) {
	assert.Equal(t, 300000, property_util.GetPositiveIntProperty(map[string]string{}, property_util.FAILOVER_TIMEOUT_MS))
	assert.Equal(t, 1500, property_util.GetPositiveIntProperty(
		map[string]string{property_util.FAILOVER_TIMEOUT_MS.Name: "1500"}, property_util.FAILOVER_TIMEOUT_MS))
	assert.Equal(t, 300000, property_util.GetPositiveIntProperty(
		map[string]string{property_util.FAILOVER_TIMEOUT_MS.Name: "-5"}, property_util.FAILOVER_TIMEOUT_MS))
	assert.Equal(t, 300000, property_util.GetPositiveIntProperty(
		map[string]string{property_util.FAILOVER_TIMEOUT_MS.Name: "abc"}, property_util.FAILOVER_TIMEOUT_MS))

	assert.Equal(t, 2*time.Second, property_util.GetDurationMs(
		map[string]string{property_util.FAILOVER_WRITER_RECONNECT_INTERVAL_MS.Name: "2000"}, property_util.FAILOVER_WRITER_RECONNECT_INTERVAL_MS))
}

func TestRemoveWrapperProperties(t *testing.T) {
	props := map[string]string{
		property_util.USER.Name:                "user",
		property_util.HOST.Name:                "host",
		property_util.PLUGINS.Name:             "failover",
		property_util.FAILOVER_TIMEOUT_MS.Name: "1000",
		"topology-monitoring-user":             "monitor",
		"sslmode":                              "disable",
	}

	targetProps := property_util.RemoveWrapperProperties(props)
	assert.Equal(t, map[string]string{
		property_util.USER.Name: "user",
		property_util.HOST.Name: "host",
		"sslmode":               "disable",
	}, targetProps)
	assert.Len(t, props, 6)
}

func TestGetMonitoringProperties(t *testing.T) {
	props := map[string]string{
		property_util.USER.Name:    "user",
		"topology-monitoring-user": "monitor",
		"sslmode":                  "disable",
	}

	monitoringProps := property_util.GetMonitoringProperties(props)
	assert.Equal(t, map[string]string{
		property_util.USER.Name: "monitor",
		"sslmode":               "disable",
	}, monitoringProps)
	assert.Equal(t, "user", props[property_util.USER.Name])
}

func TestCopyProps(t *testing.T) {
	assert.NotNil(t, property_util.CopyProps(nil))

	props := map[string]string{"a": "1"}
	copied := property_util.CopyProps(props)
	copied["a"] = "2"
	assert.Equal(t, "1", props["a"])
}

func TestParsePropertyProfile(t *testing.T) {
	profile, err := property_util.ParsePropertyProfile([]byte(`
plugins: auroraConnectionTracker,failover
failoverTimeoutMs: 60000
enableClusterAwareFailover: true
clusterId:
`))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"plugins":                    "auroraConnectionTracker,failover",
		"failoverTimeoutMs":          "60000",
		"enableClusterAwareFailover": "true",
		"clusterId":                  "",
	}, profile)
}

func TestParsePropertyProfileRejectsNestedValues(t *testing.T) {
	_, err := property_util.ParsePropertyProfile([]byte("plugins:\n  - failover\n"))
	assert.Error(t, err)

	_, err = property_util.ParsePropertyProfile([]byte("failover: {timeout: 1}"))
	assert.Error(t, err)

	_, err = property_util.ParsePropertyProfile([]byte("plugins: [unterminated"))
	assert.Error(t, err)
}

func TestApplyPropertyProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte("failoverTimeoutMs: 60000\nplugins: failover\n"), 0o600))

	props := map[string]string{
		property_util.WRAPPER_PROFILE_FILE.Name: path,
		property_util.FAILOVER_TIMEOUT_MS.Name:  "1000",
	}
	merged, err := property_util.ApplyPropertyProfile(props)
	require.NoError(t, err)

	assert.Equal(t, "1000", merged[property_util.FAILOVER_TIMEOUT_MS.Name])
	assert.Equal(t, "failover", merged[property_util.PLUGINS.Name])
}

func TestApplyPropertyProfileWithoutFile(t *testing.T) {
	props := map[string]string{"a": "1"}
	merged, err := property_util.ApplyPropertyProfile(props)
	assert.NoError(t, err)
	assert.Equal(t, props, merged)

	props[property_util.WRAPPER_PROFILE_FILE.Name] = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = property_util.ApplyPropertyProfile(props)
	assert.Error(t, err)
}

func TestWrapperPropertyRegistry(t *testing.T) {
	names := property_util.GetPropertyNames()
	assert.Contains(t, names, property_util.FAILOVER_TIMEOUT_MS.Name)
	assert.Contains(t, names, property_util.PLUGINS.Name)
	assert.Equal(t, "300000", property_util.FAILOVER_TIMEOUT_MS.DefaultValue())
	assert.NotEmpty(t, property_util.FAILOVER_TIMEOUT_MS.Description())
}
