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

package property_util

import (
	"log/slog"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-advanced-go-wrapper/failover/error_util"
)

const DEFAULT_PLUGINS = "failover"
const MONITORING_PROPERTY_PREFIX = "topology-monitoring-"

type WrapperPropertyType int

const (
	WRAPPER_TYPE_INT    WrapperPropertyType = 1
	WRAPPER_TYPE_STRING WrapperPropertyType = 2
	WRAPPER_TYPE_BOOL   WrapperPropertyType = 3
)

type AwsWrapperProperty struct {
	Name                string
	description         string
	defaultValue        string
	wrapperPropertyType WrapperPropertyType
}

func (prop *AwsWrapperProperty) Get(props map[string]string) string {
	var result, ok = props[prop.Name]
	if !ok {
		return prop.defaultValue
	}
	return result
}

func (prop *AwsWrapperProperty) Set(props map[string]string, val string) {
	props[prop.Name] = val
}

func (prop *AwsWrapperProperty) IsSet(props map[string]string) bool {
	_, ok := props[prop.Name]
	return ok
}

func (prop *AwsWrapperProperty) Description() string {
	return prop.description
}

func (prop *AwsWrapperProperty) DefaultValue() string {
	return prop.defaultValue
}

func GetVerifiedWrapperPropertyValue[T any](props map[string]string, property AwsWrapperProperty) (result T, err error) {
	propValue := property.Get(props)
	var parsedValue any
	switch property.wrapperPropertyType {
	case WRAPPER_TYPE_INT:
		parsedValue, err = strconv.Atoi(propValue)
		if err != nil {
			slog.Warn(error_util.GetMessage("AwsWrapperProperty.usingDefaultValue", property.defaultValue, property.Name, err.Error()))
			parsedValue, _ = strconv.Atoi(property.defaultValue)
		}
	case WRAPPER_TYPE_BOOL:
		parsedValue, err = strconv.ParseBool(propValue)
		if err != nil {
			slog.Warn(error_util.GetMessage("AwsWrapperProperty.usingDefaultValue", property.defaultValue, property.Name, err.Error()))
			parsedValue, _ = strconv.ParseBool(property.defaultValue)
		}
	default: // Default type is: WRAPPER_TYPE_STRING.
		parsedValue = propValue
	}

	result, ok := parsedValue.(T)
	if !ok {
		// This should never be called.
		return result, error_util.NewGenericAwsWrapperError(error_util.GetMessage("AwsWrapperProperty.unexpectedType", property.Name, propValue))
	}

	return result, nil
}

func GetBoolProperty(props map[string]string, property AwsWrapperProperty) bool {
	value, _ := GetVerifiedWrapperPropertyValue[bool](props, property)
	return value
}

// GetPositiveIntProperty falls back to the default when the value does not parse or is not positive.
func GetPositiveIntProperty(props map[string]string, property AwsWrapperProperty) int {
	value, _ := GetVerifiedWrapperPropertyValue[int](props, property)
	if value <= 0 {
		slog.Warn(error_util.GetMessage("AwsWrapperProperty.nonPositiveValue", property.Name, value, property.defaultValue))
		value, _ = strconv.Atoi(property.defaultValue)
	}
	return value
}

func GetDurationMs(props map[string]string, property AwsWrapperProperty) time.Duration {
	return time.Duration(GetPositiveIntProperty(props, property)) * time.Millisecond
}

func GetPropertyNames() []string {
	names := make([]string, 0, len(ALL_WRAPPER_PROPERTIES))
	for name := range ALL_WRAPPER_PROPERTIES {
		names = append(names, name)
	}
	return names
}

var USER = AwsWrapperProperty{
	Name:                "user",
	description:         "The user name that the driver will use to connect to database.",
	wrapperPropertyType: WRAPPER_TYPE_STRING,
}

var PASSWORD = AwsWrapperProperty{
	Name:                "password",
	description:         "The password that the driver will use to connect to database.",
	wrapperPropertyType: WRAPPER_TYPE_STRING,
}

var HOST = AwsWrapperProperty{
	Name:                "host",
	description:         "The host name of the database server the driver will connect to.",
	wrapperPropertyType: WRAPPER_TYPE_STRING,
}

var PORT = AwsWrapperProperty{
	Name:                "port",
	description:         "The port of the database server the driver will connect to.",
	wrapperPropertyType: WRAPPER_TYPE_INT,
}

var DATABASE = AwsWrapperProperty{
	Name:                "database",
	description:         "The name of the database the driver will connect to.",
	wrapperPropertyType: WRAPPER_TYPE_STRING,
}

var DRIVER_PROTOCOL = AwsWrapperProperty{
	Name:                "protocol",
	description:         "The underlying driver protocol the wrapper will connect with.",
	wrapperPropertyType: WRAPPER_TYPE_STRING,
}

var NET = AwsWrapperProperty{
	Name:                "net",
	description:         "The named network to connect with.",
	wrapperPropertyType: WRAPPER_TYPE_STRING,
}

var PLUGINS = AwsWrapperProperty{
	Name:                "plugins",
	description:         "Comma separated list of connection plugin codes.",
	defaultValue:        DEFAULT_PLUGINS,
	wrapperPropertyType: WRAPPER_TYPE_STRING,
}

var AUTO_SORT_PLUGIN_ORDER = AwsWrapperProperty{
	Name:                "autoSortPluginOrder",
	description:         "Sort the configured plugins into their recommended order.",
	defaultValue:        "true",
	wrapperPropertyType: WRAPPER_TYPE_BOOL,
}

var DATABASE_DIALECT = AwsWrapperProperty{
	Name:                "databaseDialect",
	description:         "A unique identifier for the supported database dialect.",
	wrapperPropertyType: WRAPPER_TYPE_STRING,
}

var WRAPPER_PROFILE_FILE = AwsWrapperProperty{
	Name:                "wrapperProfileFile",
	description:         "Path to a YAML file of default connection properties. Values in the DSN take precedence.",
	wrapperPropertyType: WRAPPER_TYPE_STRING,
}

var ENABLE_CLUSTER_AWARE_FAILOVER = AwsWrapperProperty{
	Name:                "enableClusterAwareFailover",
	description:         "Enable/disable cluster-aware failover logic.",
	defaultValue:        "true",
	wrapperPropertyType: WRAPPER_TYPE_BOOL,
}

var FAILOVER_TIMEOUT_MS = AwsWrapperProperty{
	Name:                "failoverTimeoutMs",
	description:         "Maximum allowed time for the failover process.",
	defaultValue:        "300000",
	wrapperPropertyType: WRAPPER_TYPE_INT,
}

var FAILOVER_CLUSTER_TOPOLOGY_REFRESH_RATE_MS = AwsWrapperProperty{
	Name:                "failoverClusterTopologyRefreshRateMs",
	description:         "Cluster topology refresh rate in millis during a writer failover process.",
	defaultValue:        "2000",
	wrapperPropertyType: WRAPPER_TYPE_INT,
}

var FAILOVER_WRITER_RECONNECT_INTERVAL_MS = AwsWrapperProperty{
	Name:                "failoverWriterReconnectIntervalMs",
	description:         "Interval of time to wait between attempts to reconnect to a failed writer during a writer failover process.",
	defaultValue:        "2000",
	wrapperPropertyType: WRAPPER_TYPE_INT,
}

var FAILOVER_READER_CONNECT_TIMEOUT_MS = AwsWrapperProperty{
	Name:                "failoverReaderConnectTimeoutMs",
	description:         "Reader connection attempt timeout during a reader switch process.",
	defaultValue:        "30000",
	wrapperPropertyType: WRAPPER_TYPE_INT,
}

var CLUSTER_TOPOLOGY_REFRESH_RATE_MS = AwsWrapperProperty{
	Name:                "clusterTopologyRefreshRateMs",
	description:         "Cluster topology refresh rate in millis. The cached topology for the cluster will be invalidated after the specified time.",
	defaultValue:        "30000",
	wrapperPropertyType: WRAPPER_TYPE_INT,
}

var CLUSTER_ID = AwsWrapperProperty{
	Name:                "clusterId",
	description:         "A unique identifier for the cluster. Connections with the same cluster id share a cluster topology cache.",
	wrapperPropertyType: WRAPPER_TYPE_STRING,
}

var CLUSTER_INSTANCE_HOST_PATTERN = AwsWrapperProperty{
	Name:                "clusterInstanceHostPattern",
	description:         "The cluster instance DNS pattern that will be used to build a complete instance endpoint. A \"?\" character in this pattern should be used as a placeholder for cluster instance names.",
	wrapperPropertyType: WRAPPER_TYPE_STRING,
}

var CLUSTER_TOPOLOGY_MONITORING_ENABLED = AwsWrapperProperty{
	Name:                "clusterTopologyMonitoringEnabled",
	description:         "Keep the cluster topology cache warm with a background monitor per cluster.",
	defaultValue:        "false",
	wrapperPropertyType: WRAPPER_TYPE_BOOL,
}

var CLUSTER_TOPOLOGY_MONITOR_INTERVAL_MS = AwsWrapperProperty{
	Name:                "clusterTopologyMonitorIntervalMs",
	description:         "Interval between topology queries issued by the background topology monitor.",
	defaultValue:        "30000",
	wrapperPropertyType: WRAPPER_TYPE_INT,
}

var ALL_WRAPPER_PROPERTIES = map[string]bool{
	USER.Name:                                      true,
	PASSWORD.Name:                                  true,
	HOST.Name:                                      true,
	PORT.Name:                                      true,
	DATABASE.Name:                                  true,
	DRIVER_PROTOCOL.Name:                           true,
	NET.Name:                                       true,
	PLUGINS.Name:                                   true,
	AUTO_SORT_PLUGIN_ORDER.Name:                    true,
	DATABASE_DIALECT.Name:                          true,
	WRAPPER_PROFILE_FILE.Name:                      true,
	ENABLE_CLUSTER_AWARE_FAILOVER.Name:             true,
	FAILOVER_TIMEOUT_MS.Name:                       true,
	FAILOVER_CLUSTER_TOPOLOGY_REFRESH_RATE_MS.Name: true,
	FAILOVER_WRITER_RECONNECT_INTERVAL_MS.Name:     true,
	FAILOVER_READER_CONNECT_TIMEOUT_MS.Name:        true,
	CLUSTER_TOPOLOGY_REFRESH_RATE_MS.Name:          true,
	CLUSTER_ID.Name:                                true,
	CLUSTER_INSTANCE_HOST_PATTERN.Name:             true,
	CLUSTER_TOPOLOGY_MONITORING_ENABLED.Name:       true,
	CLUSTER_TOPOLOGY_MONITOR_INTERVAL_MS.Name:      true,
}

// connection settings the target driver still needs after wrapper properties are removed.
var targetDriverProperties = map[string]bool{
	USER.Name:            true,
	PASSWORD.Name:        true,
	HOST.Name:            true,
	PORT.Name:            true,
	DATABASE.Name:        true,
	DRIVER_PROTOCOL.Name: true,
	NET.Name:             true,
}

// RemoveWrapperProperties returns a copy of props holding only what the target driver understands.
func RemoveWrapperProperties(props map[string]string) map[string]string {
	result := make(map[string]string, len(props))
	for key, value := range props {
		if ALL_WRAPPER_PROPERTIES[key] && !targetDriverProperties[key] {
			continue
		}
		if strings.HasPrefix(key, MONITORING_PROPERTY_PREFIX) {
			continue
		}
		result[key] = value
	}
	return result
}

// GetMonitoringProperties returns a copy of props where every "topology-monitoring-" prefixed key
// overrides its unprefixed counterpart.
func GetMonitoringProperties(props map[string]string) map[string]string {
	result := maps.Clone(props)
	for key, value := range props {
		if strings.HasPrefix(key, MONITORING_PROPERTY_PREFIX) {
			result[strings.TrimPrefix(key, MONITORING_PROPERTY_PREFIX)] = value
			delete(result, key)
		}
	}
	return result
}

func CopyProps(props map[string]string) map[string]string {
	if props == nil {
		return map[string]string{}
	}
	return maps.Clone(props)
}
