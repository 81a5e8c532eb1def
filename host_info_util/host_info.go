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

package host_info_util

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/aws/aws-advanced-go-wrapper/failover/error_util"
)

type HostAvailability string

const (
	AVAILABLE   HostAvailability = "available"
	UNAVAILABLE HostAvailability = "unavailable"
)

type HostRole string

const (
	READER  HostRole = "reader"
	WRITER  HostRole = "writer"
	UNKNOWN HostRole = "unknown"
)

const (
	HOST_NO_PORT        = -1
	HOST_DEFAULT_WEIGHT = 0
)

// HostInfo describes one cluster member. Values are never modified after Build; alias and
// availability changes return a new HostInfo that replaces the old one wherever it is held.
type HostInfo struct {
	Host           string
	HostId         string
	Port           int
	Availability   HostAvailability
	Role           HostRole
	Weight         int
	LastUpdateTime time.Time
	aliases        map[string]bool
	allAliases     map[string]bool
}

func (hostInfo *HostInfo) GetUrl() string {
	return hostInfo.GetHostAndPort() + "/"
}

func (hostInfo *HostInfo) GetHostAndPort() string {
	if hostInfo.IsPortSpecified() {
		return hostInfo.Host + ":" + strconv.Itoa(hostInfo.Port)
	}
	return hostInfo.Host
}

func (hostInfo *HostInfo) IsPortSpecified() bool {
	return hostInfo.Port != HOST_NO_PORT
}

// Aliases returns the aliases learned after connecting, sorted.
func (hostInfo *HostInfo) Aliases() []string {
	return slices.Sorted(maps.Keys(hostInfo.aliases))
}

// AllAliases returns host-and-port plus every alias.
func (hostInfo *HostInfo) AllAliases() map[string]bool {
	return maps.Clone(hostInfo.allAliases)
}

func (hostInfo *HostInfo) HasAlias(alias string) bool {
	return hostInfo.allAliases[alias]
}

func (hostInfo *HostInfo) WithAliases(aliases ...string) *HostInfo {
	copied := hostInfo.copy()
	for _, alias := range aliases {
		copied.aliases[alias] = true
		copied.allAliases[alias] = true
	}
	return copied
}

func (hostInfo *HostInfo) WithoutAliases(aliases ...string) *HostInfo {
	copied := hostInfo.copy()
	for _, alias := range aliases {
		delete(copied.aliases, alias)
		if alias != copied.GetHostAndPort() {
			delete(copied.allAliases, alias)
		}
	}
	return copied
}

func (hostInfo *HostInfo) WithResetAliases() *HostInfo {
	copied := hostInfo.copy()
	copied.aliases = map[string]bool{}
	copied.allAliases = map[string]bool{copied.GetHostAndPort(): true}
	return copied
}

func (hostInfo *HostInfo) WithAvailability(availability HostAvailability) *HostInfo {
	if hostInfo.Availability == availability {
		return hostInfo
	}
	copied := hostInfo.copy()
	copied.Availability = availability
	return copied
}

func (hostInfo *HostInfo) WithRole(role HostRole) *HostInfo {
	copied := hostInfo.copy()
	copied.Role = role
	return copied
}

func (hostInfo *HostInfo) copy() *HostInfo {
	copied := *hostInfo
	copied.aliases = maps.Clone(hostInfo.aliases)
	copied.allAliases = maps.Clone(hostInfo.allAliases)
	if copied.aliases == nil {
		copied.aliases = map[string]bool{}
	}
	if copied.allAliases == nil {
		copied.allAliases = map[string]bool{copied.GetHostAndPort(): true}
	}
	return &copied
}

func (hostInfo *HostInfo) Equals(host *HostInfo) bool {
	if hostInfo == nil || host == nil {
		return hostInfo == host
	}
	return hostInfo.Host == host.Host &&
		hostInfo.Port == host.Port &&
		hostInfo.Availability == host.Availability &&
		hostInfo.Role == host.Role &&
		hostInfo.Weight == host.Weight
}

func (hostInfo *HostInfo) IsNil() bool {
	return hostInfo == nil || hostInfo.Host == ""
}

func (hostInfo *HostInfo) String() string {
	if hostInfo == nil {
		return "<nil>"
	}
	return fmt.Sprintf("HostInfo[host=%s, port=%d, %s, %s, weight=%d, %s]",
		hostInfo.Host, hostInfo.Port, hostInfo.Role, hostInfo.Availability, hostInfo.Weight, hostInfo.LastUpdateTime.Format(time.RFC3339))
}

type HostInfoBuilder struct {
	host           string
	hostId         string
	port           int
	availability   HostAvailability
	role           HostRole
	weight         int
	lastUpdateTime time.Time
	aliases        []string
}

func NewHostInfoBuilder() *HostInfoBuilder {
	return &HostInfoBuilder{
		port:         HOST_NO_PORT,
		availability: AVAILABLE,
		role:         WRITER,
		weight:       HOST_DEFAULT_WEIGHT,
	}
}

func (hostInfoBuilder *HostInfoBuilder) SetHost(host string) *HostInfoBuilder {
	hostInfoBuilder.host = host
	return hostInfoBuilder
}

func (hostInfoBuilder *HostInfoBuilder) SetHostId(hostId string) *HostInfoBuilder {
	hostInfoBuilder.hostId = hostId
	return hostInfoBuilder
}

func (hostInfoBuilder *HostInfoBuilder) SetPort(port int) *HostInfoBuilder {
	hostInfoBuilder.port = port
	return hostInfoBuilder
}

func (hostInfoBuilder *HostInfoBuilder) SetAvailability(availability HostAvailability) *HostInfoBuilder {
	hostInfoBuilder.availability = availability
	return hostInfoBuilder
}

func (hostInfoBuilder *HostInfoBuilder) SetRole(role HostRole) *HostInfoBuilder {
	hostInfoBuilder.role = role
	return hostInfoBuilder
}

func (hostInfoBuilder *HostInfoBuilder) SetWeight(weight int) *HostInfoBuilder {
	hostInfoBuilder.weight = weight
	return hostInfoBuilder
}

func (hostInfoBuilder *HostInfoBuilder) SetLastUpdateTime(lastUpdateTime time.Time) *HostInfoBuilder {
	hostInfoBuilder.lastUpdateTime = lastUpdateTime
	return hostInfoBuilder
}

func (hostInfoBuilder *HostInfoBuilder) AddAlias(alias ...string) *HostInfoBuilder {
	hostInfoBuilder.aliases = append(hostInfoBuilder.aliases, alias...)
	return hostInfoBuilder
}

func (hostInfoBuilder *HostInfoBuilder) Build() (*HostInfo, error) {
	if hostInfoBuilder.host == "" {
		return nil, error_util.NewIllegalArgumentError(error_util.GetMessage("HostInfoBuilder.invalidEmptyHost"))
	}
	if hostInfoBuilder.role == "" || hostInfoBuilder.availability == "" {
		return nil, error_util.NewIllegalArgumentError(error_util.GetMessage("HostInfoBuilder.invalidRoleOrAvailability", hostInfoBuilder.host))
	}

	hostInfo := &HostInfo{
		Host:           hostInfoBuilder.host,
		HostId:         hostInfoBuilder.hostId,
		Port:           hostInfoBuilder.port,
		Availability:   hostInfoBuilder.availability,
		Role:           hostInfoBuilder.role,
		Weight:         hostInfoBuilder.weight,
		LastUpdateTime: hostInfoBuilder.lastUpdateTime,
		aliases:        map[string]bool{},
		allAliases:     map[string]bool{},
	}
	hostInfo.allAliases[hostInfo.GetHostAndPort()] = true
	for _, alias := range hostInfoBuilder.aliases {
		hostInfo.aliases[alias] = true
		hostInfo.allAliases[alias] = true
	}
	return hostInfo, nil
}
