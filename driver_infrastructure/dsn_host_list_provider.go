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
	"log/slog"
	"math"
	"time"

	"github.com/aws/aws-advanced-go-wrapper/failover/error_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/host_info_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/property_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/utils"
)

// DsnHostListProvider serves the fixed host list written in the DSN.
type DsnHostListProvider struct {
	props                   map[string]string
	hostListProviderService HostListProviderService
	isInitialized           bool
	hostList                []*host_info_util.HostInfo
	initialHost             string
}

func NewDsnHostListProvider(props map[string]string, hostListProviderService HostListProviderService) *DsnHostListProvider {
	return &DsnHostListProvider{
		props:                   props,
		hostListProviderService: hostListProviderService,
		initialHost:             property_util.HOST.Get(props),
	}
}

func (c *DsnHostListProvider) init() error {
	if c.isInitialized {
		return nil
	}

	hosts, err := utils.GetHostsFromProps(c.props)
	if err != nil {
		return err
	}
	if len(hosts) == 0 {
		return error_util.NewIllegalArgumentError(error_util.GetMessage("DsnHostListProvider.parsedListEmpty"))
	}
	c.hostList = hosts

	c.hostListProviderService.SetInitialConnectionHostInfo(c.hostList[0])
	c.isInitialized = true
	return nil
}

func (c *DsnHostListProvider) IsStaticHostListProvider() bool {
	return true
}

func (c *DsnHostListProvider) Refresh(_ driver.Conn) ([]*host_info_util.HostInfo, error) {
	err := c.init()
	return c.hostList, err
}

func (c *DsnHostListProvider) ForceRefresh(_ driver.Conn) ([]*host_info_util.HostInfo, error) {
	err := c.init()
	return c.hostList, err
}

func (c *DsnHostListProvider) GetHostRole(_ driver.Conn) (host_info_util.HostRole, error) {
	slog.Warn(error_util.GetMessage("DsnHostListProvider.unsupportedGetHostRole"))
	return host_info_util.UNKNOWN, error_util.NewUnsupportedMethodError("GetHostRole")
}

func (c *DsnHostListProvider) IdentifyConnection(_ driver.Conn) (*host_info_util.HostInfo, error) {
	return nil, error_util.NewUnsupportedMethodError("IdentifyConnection")
}

func (c *DsnHostListProvider) GetClusterId() (string, error) {
	return "", error_util.NewUnsupportedMethodError("GetClusterId")
}

func (c *DsnHostListProvider) CreateHost(hostName string, isWriter bool, lag float64, cpu float64, lastUpdateTime time.Time) *host_info_util.HostInfo {
	weight := int(math.Round(lag)*100 + math.Round(cpu))
	port := host_info_util.HOST_NO_PORT
	if dialect := c.hostListProviderService.GetDialect(); dialect != nil {
		port = dialect.GetDefaultPort()
	}
	if hostName == "" {
		hostName = c.initialHost
	}
	role := host_info_util.READER
	if isWriter {
		role = host_info_util.WRITER
	}
	hostInfo, _ := host_info_util.NewHostInfoBuilder().
		SetHost(hostName).
		SetPort(port).
		SetRole(role).
		SetWeight(weight).
		SetLastUpdateTime(lastUpdateTime).
		Build()
	return hostInfo
}
