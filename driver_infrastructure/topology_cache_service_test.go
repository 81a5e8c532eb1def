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

package driver_infrastructure_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-advanced-go-wrapper/failover/driver_infrastructure"
	"github.com/aws/aws-advanced-go-wrapper/failover/host_info_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/test_utils"
	"github.com/aws/aws-advanced-go-wrapper/failover/utils"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopologyCacheServiceExpiresTopology(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cacheService := driver_infrastructure.NewTopologyCacheServiceWithClock(clock)
	cluster := test_utils.NewMockCluster("instance-1", "instance-2")

	cacheService.PutTopology("cluster-a", cluster.Hosts(), time.Minute)
	hosts, ok := cacheService.GetTopology("cluster-a")
	require.True(t, ok)
	assert.Len(t, hosts, 2)
	assert.Len(t, cacheService.Entries(), 1)

	clock.Advance(59 * time.Second)
	_, ok = cacheService.GetTopology("cluster-a")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = cacheService.GetTopology("cluster-a")
	assert.False(t, ok)
	assert.Empty(t, cacheService.Entries())
}

func TestTopologyCacheServiceStoresCopy(t *testing.T) {
	cacheService := driver_infrastructure.NewTopologyCacheService()
	cluster := test_utils.NewMockCluster("instance-1", "instance-2")
	hosts := cluster.Hosts()

	cacheService.PutTopology("cluster-a", hosts, time.Minute)
	hosts[0] = hosts[1]

	cached, ok := cacheService.GetTopology("cluster-a")
	require.True(t, ok)
	assert.Equal(t, host_info_util.WRITER, cached[0].Role)

	again, _ := cacheService.GetTopology("cluster-a")
	assert.True(t, host_info_util.IsSameSnapshot(cached, again))

	cacheService.RemoveTopology("cluster-a")
	_, ok = cacheService.GetTopology("cluster-a")
	assert.False(t, ok)
}

func TestTopologyCacheServiceClusterIds(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cacheService := driver_infrastructure.NewTopologyCacheServiceWithClock(clock)

	assert.False(t, cacheService.IsPrimaryClusterId("primary"))
	cacheService.SetPrimaryClusterId("primary")
	assert.True(t, cacheService.IsPrimaryClusterId("primary"))

	assert.Equal(t, "", cacheService.GetSuggestedPrimaryClusterId("other"))
	cacheService.SuggestPrimaryClusterId("other", "primary")
	assert.Equal(t, "primary", cacheService.GetSuggestedPrimaryClusterId("other"))

	clock.Advance(driver_infrastructure.SUGGESTED_CLUSTER_ID_EXPIRATION)
	assert.Equal(t, "", cacheService.GetSuggestedPrimaryClusterId("other"))

	cacheService.Clear()
	assert.False(t, cacheService.IsPrimaryClusterId("primary"))
}

func TestTopologyCacheServiceCleanUpDropsExpiredEntries(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cacheService := driver_infrastructure.NewTopologyCacheServiceWithClock(clock)
	cluster := test_utils.NewMockCluster("instance-1", "instance-2")
	handler, restore := test_utils.CaptureLogs()
	defer restore()
	removed := "Removed 2 expired topology cache entries."

	cacheService.PutTopology("cluster-a", cluster.Hosts(), time.Minute)
	cacheService.PutTopology("cluster-b", cluster.Hosts(), 2*utils.CleanupInterval)
	cacheService.SuggestPrimaryClusterId("cluster-c", "cluster-a")

	cacheService.CleanUp()
	assert.NotContains(t, handler.Messages(slog.LevelDebug), removed)

	clock.Advance(utils.CleanupInterval + time.Second)
	cacheService.CleanUp()

	assert.Contains(t, handler.Messages(slog.LevelDebug), removed)
	_, ok := cacheService.GetTopology("cluster-b")
	assert.True(t, ok)
	assert.Len(t, cacheService.Entries(), 1)
}
