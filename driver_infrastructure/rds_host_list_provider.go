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
	"context"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-advanced-go-wrapper/failover/error_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/host_info_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/property_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/utils"

	"github.com/google/uuid"
)

// RdsHostListProvider resolves the cluster id of the initial connection and serves the cluster
// topology from the TopologyCacheService, querying the database when the cache has nothing usable.
type RdsHostListProvider struct {
	pluginService   PluginService
	databaseDialect TopologyAwareDialect
	properties      map[string]string
	cacheService    *TopologyCacheService
	monitorService  *ClusterTopologyMonitorService
	isInitialized   bool
	initErr         error
	// The following are derived from the above in init().
	initialHostList         []*host_info_util.HostInfo
	initialHostInfo         *host_info_util.HostInfo
	isPrimaryClusterId      bool
	clusterId               string
	clusterInstanceTemplate *host_info_util.HostInfo
	rdsUrlType              utils.RdsUrlType
	refreshRate             time.Duration
	lastReturnedHosts       []*host_info_util.HostInfo
	monitoredClusterId      string
	lock                    sync.Mutex
}

func NewRdsHostListProvider(
	pluginService PluginService,
	databaseDialect TopologyAwareDialect,
	properties map[string]string,
	cacheService *TopologyCacheService,
	monitorService *ClusterTopologyMonitorService) *RdsHostListProvider {
	if cacheService == nil {
		cacheService = DefaultTopologyCacheService
	}
	return &RdsHostListProvider{
		pluginService:   pluginService,
		databaseDialect: databaseDialect,
		properties:      properties,
		cacheService:    cacheService,
		monitorService:  monitorService,
	}
}

func (r *RdsHostListProvider) init() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.isInitialized {
		return r.initErr
	}
	r.isInitialized = true
	r.initErr = r.initLocked()
	if r.initErr == nil && r.monitorService != nil && property_util.GetBoolProperty(r.properties, property_util.CLUSTER_TOPOLOGY_MONITORING_ENABLED) {
		r.monitorService.StartMonitor(r.clusterId, r)
		r.monitoredClusterId = r.clusterId
	}
	return r.initErr
}

// ReleaseResources gives up this provider's hold on the topology monitor of its cluster.
func (r *RdsHostListProvider) ReleaseResources() {
	r.lock.Lock()
	clusterId := r.monitoredClusterId
	r.monitoredClusterId = ""
	r.lock.Unlock()
	if clusterId != "" {
		r.monitorService.ReleaseMonitor(clusterId)
	}
}

func (r *RdsHostListProvider) initLocked() error {
	r.refreshRate = property_util.GetDurationMs(r.properties, property_util.CLUSTER_TOPOLOGY_REFRESH_RATE_MS)
	hostListFromDsn, err := utils.GetHostsFromProps(r.properties)
	if err != nil {
		return err
	}
	if len(hostListFromDsn) == 0 {
		return error_util.NewIllegalArgumentError(error_util.GetMessage("RdsHostListProvider.emptyHostList"))
	}
	r.initialHostList = hostListFromDsn
	r.initialHostInfo = hostListFromDsn[0]
	r.pluginService.SetInitialConnectionHostInfo(r.initialHostInfo)

	r.clusterInstanceTemplate, err = r.buildClusterInstanceTemplate()
	if err != nil {
		return err
	}

	r.rdsUrlType = utils.IdentifyRdsUrlType(r.initialHostInfo.Host)
	r.clusterId = uuid.New().String()
	r.isPrimaryClusterId = false
	clusterIdSetting := property_util.CLUSTER_ID.Get(r.properties)

	switch {
	case clusterIdSetting != "":
		r.clusterId = clusterIdSetting
	case r.rdsUrlType == utils.RDS_PROXY:
		r.clusterId = r.initialHostInfo.GetUrl()
	case r.rdsUrlType.IsRds:
		suggestedClusterId, isPrimary := r.getSuggestedClusterId(r.initialHostInfo.GetHostAndPort())
		if suggestedClusterId != "" {
			r.clusterId = suggestedClusterId
			r.isPrimaryClusterId = isPrimary
		} else {
			clusterRdsHostUrl := utils.GetRdsClusterHostUrl(r.initialHostInfo.Host)
			if clusterRdsHostUrl != "" {
				if r.clusterInstanceTemplate.IsPortSpecified() {
					r.clusterId = fmt.Sprintf("%s:%d", clusterRdsHostUrl, r.clusterInstanceTemplate.Port)
				} else {
					r.clusterId = clusterRdsHostUrl
				}
				r.isPrimaryClusterId = true
				r.cacheService.SetPrimaryClusterId(r.clusterId)
			}
		}
	}
	slog.Debug(error_util.GetMessage("RdsHostListProvider.clusterId", r.clusterId, r.isPrimaryClusterId))
	return nil
}

func (r *RdsHostListProvider) buildClusterInstanceTemplate() (*host_info_util.HostInfo, error) {
	clusterInstancePattern := property_util.CLUSTER_INSTANCE_HOST_PATTERN.Get(r.properties)
	if clusterInstancePattern == "" {
		return host_info_util.NewHostInfoBuilder().
			SetHost(utils.GetRdsInstanceHostPattern(r.initialHostInfo.Host)).
			SetPort(r.initialHostInfo.Port).
			Build()
	}

	template, err := utils.ParseHostPortPair(clusterInstancePattern, r.initialHostInfo.Port)
	if err != nil {
		return nil, err
	}
	if !strings.Contains(template.Host, "?") {
		return nil, error_util.NewIllegalArgumentError(error_util.GetMessage("RdsHostListProvider.invalidPattern", clusterInstancePattern))
	}
	rdsUrlType := utils.IdentifyRdsUrlType(template.Host)
	if rdsUrlType == utils.RDS_PROXY {
		return nil, error_util.NewIllegalArgumentError(error_util.GetMessage("RdsHostListProvider.clusterInstanceHostPatternNotSupportedForRDSProxy"))
	}
	if rdsUrlType == utils.RDS_CUSTOM_CLUSTER {
		return nil, error_util.NewIllegalArgumentError(error_util.GetMessage("RdsHostListProvider.clusterInstanceHostPatternNotSupportedForRdsCustom"))
	}
	return template, nil
}

// Refresh returns nil when the topology comes from the same cache entry it returned last time.
func (r *RdsHostListProvider) Refresh(conn driver.Conn) ([]*host_info_util.HostInfo, error) {
	if err := r.init(); err != nil {
		return nil, err
	}
	if conn == nil {
		conn = r.pluginService.GetCurrentConnection()
	}
	hosts, isCachedData, err := r.getTopology(conn, false)
	if err != nil {
		return nil, err
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	if isCachedData && host_info_util.IsSameSnapshot(hosts, r.lastReturnedHosts) {
		return nil, nil
	}
	r.lastReturnedHosts = hosts
	msgPrefix := "From SQL Query"
	if isCachedData {
		msgPrefix = "From cache"
	}
	slog.Debug(host_info_util.LogTopology(hosts, msgPrefix))
	return hosts, nil
}

func (r *RdsHostListProvider) ForceRefresh(conn driver.Conn) ([]*host_info_util.HostInfo, error) {
	if err := r.init(); err != nil {
		return nil, err
	}
	if conn == nil {
		conn = r.pluginService.GetCurrentConnection()
	}
	hosts, _, err := r.getTopology(conn, true)
	if err != nil {
		return nil, err
	}

	r.lock.Lock()
	r.lastReturnedHosts = hosts
	r.lock.Unlock()
	slog.Debug(host_info_util.LogTopology(hosts, "From ForceRefresh"))
	return hosts, nil
}

// getTopology returns the hosts and whether they were served from the cache.
func (r *RdsHostListProvider) getTopology(conn driver.Conn, forceUpdate bool) ([]*host_info_util.HostInfo, bool, error) {
	r.lock.Lock()
	suggestedPrimaryId := r.cacheService.GetSuggestedPrimaryClusterId(r.clusterId)
	if suggestedPrimaryId != "" && r.clusterId != suggestedPrimaryId {
		slog.Debug(error_util.GetMessage("RdsHostListProvider.switchingToSuggestedClusterId", r.clusterId, suggestedPrimaryId))
		r.clusterId = suggestedPrimaryId
		r.isPrimaryClusterId = true
	}
	clusterId := r.clusterId
	isPrimaryClusterId := r.isPrimaryClusterId
	r.lock.Unlock()

	cachedHosts, ok := r.cacheService.GetTopology(clusterId)

	// A primary cluster id about to create its cache entry is suggested to non-primary entries sharing its hosts.
	needToSuggest := !ok && isPrimaryClusterId

	if !ok || forceUpdate {
		if conn == nil {
			return r.initialHostList, false, nil
		}

		hosts, err := r.queryForTopology(conn)
		if err != nil {
			return nil, false, err
		}
		if len(hosts) > 0 {
			r.cacheService.PutTopology(clusterId, hosts, r.refreshRate)
			if needToSuggest {
				r.suggestPrimaryCluster(clusterId, hosts)
			}
			cached, _ := r.cacheService.GetTopology(clusterId)
			if cached != nil {
				return cached, false, nil
			}
			return hosts, false, nil
		}
	}

	if !ok {
		return r.initialHostList, false, nil
	}
	return cachedHosts, true, nil
}

func (r *RdsHostListProvider) queryForTopology(conn driver.Conn) ([]*host_info_util.HostInfo, error) {
	rows, err := utils.QueryRows(context.Background(), conn, r.databaseDialect.GetTopologyQuery())
	if err != nil {
		return nil, error_util.NewQueryError(error_util.GetMessage("RdsHostListProvider.errorQueryingTopology", err.Error()), err)
	}
	return r.processQueryResults(rows), nil
}

// processQueryResults keeps the last row of each host. Rows arrive oldest first.
func (r *RdsHostListProvider) processQueryResults(rows [][]driver.Value) []*host_info_util.HostInfo {
	hostMap := map[string]*host_info_util.HostInfo{}
	var order []string
	for _, row := range rows {
		host, err := r.createHostFromRow(row)
		if err != nil {
			slog.Debug(error_util.GetMessage("RdsHostListProvider.errorProcessingQueryResults", err.Error()))
			continue
		}
		if _, seen := hostMap[host.Host]; !seen {
			order = append(order, host.Host)
		}
		hostMap[host.Host] = host
	}

	var writers, readers []*host_info_util.HostInfo
	for _, hostName := range order {
		host := hostMap[hostName]
		if host.Role == host_info_util.WRITER {
			writers = append(writers, host)
		} else {
			readers = append(readers, host)
		}
	}

	if len(writers) == 0 {
		slog.Error(error_util.GetMessage("RdsHostListProvider.invalidTopology"))
		return nil
	}
	return append(writers, readers...)
}

// createHostFromRow reads node id, is writer, cpu, lag and an optional last update timestamp.
func (r *RdsHostListProvider) createHostFromRow(row []driver.Value) (*host_info_util.HostInfo, error) {
	if len(row) < 4 {
		return nil, error_util.NewGenericAwsWrapperError(error_util.GetMessage("RdsHostListProvider.unexpectedColumnCount", len(row)))
	}
	hostName := utils.ToString(row[0])
	if hostName == "" {
		return nil, error_util.NewGenericAwsWrapperError(error_util.GetMessage("RdsHostListProvider.emptyNodeId"))
	}
	isWriter, err := utils.ToBool(row[1])
	if err != nil {
		return nil, err
	}
	cpu, _ := utils.ToFloat64(row[2])
	lag, _ := utils.ToFloat64(row[3])
	lastUpdateTime := time.Now()
	if len(row) > 4 && row[4] != nil {
		lastUpdateTime = utils.ToTime(row[4])
	}
	return r.CreateHost(hostName, isWriter, lag, cpu, lastUpdateTime), nil
}

func (r *RdsHostListProvider) CreateHost(hostName string, isWriter bool, lag float64, cpu float64, lastUpdateTime time.Time) *host_info_util.HostInfo {
	weight := int(math.Round(lag)*100 + math.Round(cpu))

	port := r.clusterInstanceTemplate.Port
	if port == host_info_util.HOST_NO_PORT {
		if r.initialHostInfo.IsPortSpecified() {
			port = r.initialHostInfo.Port
		} else {
			port = r.databaseDialect.GetDefaultPort()
		}
	}

	role := host_info_util.READER
	if isWriter {
		role = host_info_util.WRITER
	}

	hostInfo, _ := host_info_util.NewHostInfoBuilder().
		SetHost(r.getHostEndpoint(hostName)).
		SetHostId(hostName).
		SetPort(port).
		SetRole(role).
		SetAvailability(host_info_util.AVAILABLE).
		SetWeight(weight).
		SetLastUpdateTime(lastUpdateTime).
		AddAlias(hostName).
		Build()
	return hostInfo
}

func (r *RdsHostListProvider) getHostEndpoint(hostName string) string {
	return strings.ReplaceAll(r.clusterInstanceTemplate.Host, "?", hostName)
}

func (r *RdsHostListProvider) getSuggestedClusterId(url string) (string, bool) {
	for key, hosts := range r.cacheService.Entries() {
		isPrimaryCluster := r.cacheService.IsPrimaryClusterId(key)
		if key == url {
			return url, isPrimaryCluster
		}
		for _, host := range hosts {
			if host.GetHostAndPort() == url {
				slog.Debug(error_util.GetMessage("RdsHostListProvider.suggestedClusterId", key, url))
				return key, isPrimaryCluster
			}
		}
	}
	return "", false
}

func (r *RdsHostListProvider) suggestPrimaryCluster(primaryClusterId string, primaryClusterHosts []*host_info_util.HostInfo) {
	primaryClusterHostUrls := map[string]bool{}
	for _, hostInfo := range primaryClusterHosts {
		primaryClusterHostUrls[hostInfo.GetUrl()] = true
	}

	suggested := false
	for clusterId, clusterHosts := range r.cacheService.Entries() {
		if clusterId == primaryClusterId ||
			r.cacheService.IsPrimaryClusterId(clusterId) ||
			r.cacheService.GetSuggestedPrimaryClusterId(clusterId) != "" ||
			len(clusterHosts) == 0 {
			continue
		}

		for _, host := range clusterHosts {
			if primaryClusterHostUrls[host.GetUrl()] {
				slog.Debug(error_util.GetMessage("RdsHostListProvider.suggestingClusterId", primaryClusterId, clusterId))
				r.cacheService.SuggestPrimaryClusterId(clusterId, primaryClusterId)
				suggested = true
				break
			}
		}
	}
	if suggested {
		r.cacheService.LogCache()
	}
}

// GetHostRole runs the is_reader probe on conn.
func (r *RdsHostListProvider) GetHostRole(conn driver.Conn) (host_info_util.HostRole, error) {
	rows, err := utils.QueryRows(context.Background(), conn, r.databaseDialect.GetIsReaderQuery())
	if err != nil {
		return host_info_util.UNKNOWN, error_util.NewQueryError(error_util.GetMessage("RdsHostListProvider.errorGettingHostRole", err.Error()), err)
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return host_info_util.UNKNOWN, error_util.NewQueryError(error_util.GetMessage("RdsHostListProvider.errorGettingHostRole", "no rows"), nil)
	}
	isReader, err := utils.ToBool(rows[0][0])
	if err != nil {
		return host_info_util.UNKNOWN, error_util.NewQueryError(error_util.GetMessage("RdsHostListProvider.errorGettingHostRole", err.Error()), err)
	}
	if isReader {
		return host_info_util.READER, nil
	}
	return host_info_util.WRITER, nil
}

// IdentifyConnection finds the topology entry of the instance conn is connected to.
func (r *RdsHostListProvider) IdentifyConnection(conn driver.Conn) (*host_info_util.HostInfo, error) {
	row := utils.GetFirstRowFromQuery(conn, r.databaseDialect.GetNodeIdQuery())
	if len(row) == 0 {
		return nil, error_util.NewGenericAwsWrapperError(error_util.GetMessage("RdsHostListProvider.unableToGetHostName"))
	}
	instanceName := utils.ToString(row[0])
	if instanceName == "" {
		return nil, error_util.NewGenericAwsWrapperError(error_util.GetMessage("RdsHostListProvider.unableToGetHostName"))
	}

	topology, err := r.Refresh(conn)
	forcedRefresh := false
	if err != nil || len(topology) == 0 {
		topology, err = r.ForceRefresh(conn)
		forcedRefresh = true
	}
	if err != nil {
		return nil, err
	}
	if len(topology) == 0 {
		return nil, error_util.NewGenericAwsWrapperError(error_util.GetMessage("RdsHostListProvider.unableToGatherTopology"))
	}

	foundHost := host_info_util.FindHostInTopology(topology, instanceName, r.getHostEndpoint(instanceName))
	if foundHost == nil && !forcedRefresh {
		topology, err = r.ForceRefresh(conn)
		if err != nil {
			return nil, err
		}
		foundHost = host_info_util.FindHostInTopology(topology, instanceName, r.getHostEndpoint(instanceName))
	}
	if foundHost == nil {
		return nil, error_util.NewGenericAwsWrapperError(error_util.GetMessage("RdsHostListProvider.unableToGetHostName"))
	}
	return foundHost, nil
}

func (r *RdsHostListProvider) GetClusterId() (string, error) {
	if err := r.init(); err != nil {
		return "", err
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.clusterId, nil
}

func (r *RdsHostListProvider) IsPrimaryClusterId() bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.isPrimaryClusterId
}

func (r *RdsHostListProvider) GetRdsUrlType() (utils.RdsUrlType, error) {
	if err := r.init(); err != nil {
		return utils.OTHER, err
	}
	return r.rdsUrlType, nil
}

func (r *RdsHostListProvider) GetInitialHosts() []*host_info_util.HostInfo {
	return r.initialHostList
}

func (r *RdsHostListProvider) IsStaticHostListProvider() bool {
	return false
}

// Clear drops the cached topology of this provider's cluster.
func (r *RdsHostListProvider) Clear() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.cacheService.RemoveTopology(r.clusterId)
	r.lastReturnedHosts = nil
}

func (r *RdsHostListProvider) ClearAll() {
	r.cacheService.Clear()
}
