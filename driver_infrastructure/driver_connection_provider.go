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
)

// DriverConnectionProvider opens physical connections through the target driver.
type DriverConnectionProvider struct {
	targetDriver driver.Driver
}

func NewDriverConnectionProvider(targetDriver driver.Driver) *DriverConnectionProvider {
	return &DriverConnectionProvider{targetDriver}
}

func (d *DriverConnectionProvider) AcceptsUrl(_ *host_info_util.HostInfo, _ map[string]string) bool {
	return true
}

func (d *DriverConnectionProvider) Connect(hostInfo *host_info_util.HostInfo, props map[string]string, pluginService PluginService) (driver.Conn, error) {
	targetDriverDialect := pluginService.GetTargetDriverDialect()
	dsn := targetDriverDialect.PrepareDsn(props, hostInfo)
	return d.targetDriver.Open(dsn)
}
