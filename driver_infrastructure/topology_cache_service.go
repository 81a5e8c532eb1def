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
	"log/slog"
	"slices"
	"time"

	"github.com/aws/aws-advanced-go-wrapper/failover/error_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/host_info_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/utils"

	"github.com/jonboulle/clockwork"
)

var SUGGESTED_CLUSTER_ID_EXPIRATION = 10 * time.Minute
var HOST_AVAILABILITY_EXPIRATION = 5 * time.Minute

// TopologyCacheService holds the cluster topology cache, the cluster id bookkeeping and the host
// availability overrides shared by every provider and plugin service that uses it. All methods are
// safe for concurrent use.
type TopologyCacheService struct {
	topologyCache                *utils.CacheMap[[]*host_info_util.HostInfo]
	primaryClusterIdCache        *utils.CacheMap[bool]
	suggestedPrimaryClusterCache *utils.CacheMap[string]
	hostAvailabilityCache        *utils.CacheMap[host_info_util.HostAvailability]
}

func NewTopologyCacheService() *TopologyCacheService {
	return NewTopologyCacheServiceWithClock(clockwork.NewRealClock())
}

func NewTopologyCacheServiceWithClock(clock clockwork.Clock) *TopologyCacheService {
	return &TopologyCacheService{
		topologyCache:                utils.NewCacheWithClock[[]*host_info_util.HostInfo](clock),
		primaryClusterIdCache:        utils.NewCacheWithClock[bool](clock),
		suggestedPrimaryClusterCache: utils.NewCacheWithClock[string](clock),
		hostAvailabilityCache:        utils.NewCacheWithClock[host_info_util.HostAvailability](clock),
	}
}

// DefaultTopologyCacheService is shared by connections opened through the registered driver.
var DefaultTopologyCacheService = NewTopologyCacheService()

// GetTopology returns the cached snapshot. The same slice is returned until the entry is replaced.
func (t *TopologyCacheService) GetTopology(clusterId string) ([]*host_info_util.HostInfo, bool) {
	return t.topologyCache.Get(clusterId)
}

func (t *TopologyCacheService) PutTopology(clusterId string, hosts []*host_info_util.HostInfo, ttl time.Duration) {
	t.topologyCache.Put(clusterId, slices.Clone(hosts), ttl)
}

func (t *TopologyCacheService) RemoveTopology(clusterId string) {
	t.topologyCache.Remove(clusterId)
}

// Entries returns the live topology entries at the time of the call.
func (t *TopologyCacheService) Entries() map[string][]*host_info_util.HostInfo {
	return t.topologyCache.Entries()
}

func (t *TopologyCacheService) IsPrimaryClusterId(clusterId string) bool {
	isPrimary, ok := t.primaryClusterIdCache.Get(clusterId)
	return ok && isPrimary
}

func (t *TopologyCacheService) SetPrimaryClusterId(clusterId string) {
	t.primaryClusterIdCache.Put(clusterId, true, utils.CleanupInterval)
}

func (t *TopologyCacheService) GetSuggestedPrimaryClusterId(clusterId string) string {
	suggested, _ := t.suggestedPrimaryClusterCache.Get(clusterId)
	return suggested
}

func (t *TopologyCacheService) SuggestPrimaryClusterId(clusterId string, primaryClusterId string) {
	t.suggestedPrimaryClusterCache.Put(clusterId, primaryClusterId, SUGGESTED_CLUSTER_ID_EXPIRATION)
}

// GetHostAvailability returns the availability last recorded for a "host:port" key or alias.
func (t *TopologyCacheService) GetHostAvailability(key string) (host_info_util.HostAvailability, bool) {
	return t.hostAvailabilityCache.Get(key)
}

func (t *TopologyCacheService) PutHostAvailability(key string, availability host_info_util.HostAvailability) {
	t.hostAvailabilityCache.Put(key, availability, HOST_AVAILABILITY_EXPIRATION)
}

// CleanUp drops expired entries from every cache, at most once per utils.CleanupInterval.
func (t *TopologyCacheService) CleanUp() {
	before := t.size()
	t.topologyCache.CleanUp()
	t.primaryClusterIdCache.CleanUp()
	t.suggestedPrimaryClusterCache.CleanUp()
	t.hostAvailabilityCache.CleanUp()
	if removed := before - t.size(); removed > 0 {
		slog.Debug(error_util.GetMessage("TopologyCacheService.removedExpiredEntries", removed))
	}
}

func (t *TopologyCacheService) size() int {
	return t.topologyCache.Size() + t.primaryClusterIdCache.Size() +
		t.suggestedPrimaryClusterCache.Size() + t.hostAvailabilityCache.Size()
}

func (t *TopologyCacheService) Clear() {
	t.topologyCache.Clear()
	t.primaryClusterIdCache.Clear()
	t.suggestedPrimaryClusterCache.Clear()
	t.hostAvailabilityCache.Clear()
}

func (t *TopologyCacheService) LogCache() {
	for clusterId, hosts := range t.Entries() {
		slog.Debug(host_info_util.LogTopology(hosts, "Cluster "+clusterId))
	}
}
