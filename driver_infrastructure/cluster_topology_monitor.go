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
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-advanced-go-wrapper/failover/error_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/host_info_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/property_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/utils"

	"github.com/jonboulle/clockwork"
)

var MonitorStopTimeout = 5 * time.Second

// ClusterTopologyMonitorService keeps at most one ClusterTopologyMonitor per cluster id. A monitor
// runs while at least one host list provider holds a reference to it.
type ClusterTopologyMonitorService struct {
	monitors *utils.RWMap[*ClusterTopologyMonitor]
	refs     map[string]int
	lock     sync.Mutex
	clock    clockwork.Clock
}

func NewClusterTopologyMonitorService(clock clockwork.Clock) *ClusterTopologyMonitorService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ClusterTopologyMonitorService{
		monitors: utils.NewRWMap[*ClusterTopologyMonitor](),
		refs:     map[string]int{},
		clock:    clock,
	}
}

var DefaultClusterTopologyMonitorService = NewClusterTopologyMonitorService(nil)

// StartMonitor starts a monitor for clusterId unless one is already running, and takes a reference
// on it. Every call is paired with a ReleaseMonitor.
func (s *ClusterTopologyMonitorService) StartMonitor(clusterId string, provider *RdsHostListProvider) *ClusterTopologyMonitor {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.refs[clusterId]++
	return s.monitors.ComputeIfAbsent(clusterId, func() *ClusterTopologyMonitor {
		monitor := NewClusterTopologyMonitor(clusterId, provider, s.clock)
		monitor.Start()
		return monitor
	})
}

func (s *ClusterTopologyMonitorService) GetMonitor(clusterId string) (*ClusterTopologyMonitor, bool) {
	return s.monitors.Get(clusterId)
}

// ReleaseMonitor drops one reference and stops the monitor when none remain.
func (s *ClusterTopologyMonitorService) ReleaseMonitor(clusterId string) {
	s.lock.Lock()
	refs, ok := s.refs[clusterId]
	if !ok {
		s.lock.Unlock()
		return
	}
	if refs > 1 {
		s.refs[clusterId] = refs - 1
		s.lock.Unlock()
		return
	}
	delete(s.refs, clusterId)
	monitor, ok := s.monitors.Remove(clusterId)
	s.lock.Unlock()
	if ok {
		slog.Debug(error_util.GetMessage("ClusterTopologyMonitorService.lastReferenceReleased", clusterId))
		monitor.Close()
	}
}

// StopMonitor stops the monitor of clusterId regardless of the references held on it.
func (s *ClusterTopologyMonitorService) StopMonitor(clusterId string) {
	s.lock.Lock()
	delete(s.refs, clusterId)
	monitor, ok := s.monitors.Remove(clusterId)
	s.lock.Unlock()
	if ok {
		monitor.Close()
	}
}

func (s *ClusterTopologyMonitorService) ReleaseResources() {
	for clusterId := range s.monitors.GetAllEntries() {
		s.StopMonitor(clusterId)
	}
}

// ClusterTopologyMonitor periodically queries the topology over its own connection and writes it
// to the topology cache of the provider that started it.
type ClusterTopologyMonitor struct {
	clusterId       string
	provider        *RdsHostListProvider
	monitoringProps map[string]string
	interval        time.Duration
	clock           clockwork.Clock
	monitoringConn  atomic.Pointer[driver.Conn]
	stop            atomic.Bool
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
}

func NewClusterTopologyMonitor(clusterId string, provider *RdsHostListProvider, clock clockwork.Clock) *ClusterTopologyMonitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &ClusterTopologyMonitor{
		clusterId:       clusterId,
		provider:        provider,
		monitoringProps: property_util.GetMonitoringProperties(provider.properties),
		interval:        property_util.GetDurationMs(provider.properties, property_util.CLUSTER_TOPOLOGY_MONITOR_INTERVAL_MS),
		clock:           clock,
		ctx:             ctx,
		cancel:          cancel,
	}
}

func (c *ClusterTopologyMonitor) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run()
	}()
}

func (c *ClusterTopologyMonitor) run() {
	slog.Debug(error_util.GetMessage("ClusterTopologyMonitor.startMonitoring", c.clusterId))
	for !c.stop.Load() {
		conn := c.getMonitoringConn()
		if conn == nil {
			newConn, err := c.openMonitoringConn()
			if err != nil {
				slog.Debug(error_util.GetMessage("ClusterTopologyMonitor.unableToConnect", c.clusterId, err.Error()))
				if !c.sleep() {
					break
				}
				continue
			}
			conn = newConn
		}

		hosts, err := c.provider.queryForTopology(conn)
		if err != nil {
			slog.Debug(error_util.GetMessage("ClusterTopologyMonitor.errorFetchingTopology", c.clusterId, err.Error()))
			c.closeMonitoringConn()
		} else if len(hosts) > 0 {
			c.provider.cacheService.PutTopology(c.clusterId, hosts, c.provider.refreshRate)
		}
		c.provider.cacheService.CleanUp()

		if !c.sleep() {
			break
		}
	}
	c.closeMonitoringConn()
	slog.Debug(error_util.GetMessage("ClusterTopologyMonitor.stopMonitoring", c.clusterId))
}

// sleep waits one interval and reports false when the monitor was stopped meanwhile.
func (c *ClusterTopologyMonitor) sleep() bool {
	select {
	case <-c.ctx.Done():
		return false
	case <-c.clock.After(c.interval):
		return !c.stop.Load()
	}
}

func (c *ClusterTopologyMonitor) openMonitoringConn() (driver.Conn, error) {
	pluginService := c.provider.pluginService
	hostInfo := c.provider.initialHostInfo
	conn, err := pluginService.GetConnectionProvider().Connect(hostInfo, c.monitoringProps, pluginService)
	if err != nil {
		return nil, err
	}
	if !c.monitoringConn.CompareAndSwap(nil, &conn) {
		_ = conn.Close()
		return c.getMonitoringConn(), nil
	}
	slog.Debug(error_util.GetMessage("ClusterTopologyMonitor.openedMonitoringConnection", hostInfo.GetHostAndPort()))
	return conn, nil
}

func (c *ClusterTopologyMonitor) getMonitoringConn() driver.Conn {
	conn := c.monitoringConn.Load()
	if conn == nil {
		return nil
	}
	return *conn
}

func (c *ClusterTopologyMonitor) closeMonitoringConn() {
	conn := c.monitoringConn.Swap(nil)
	if conn != nil && *conn != nil {
		_ = (*conn).Close()
	}
}

func (c *ClusterTopologyMonitor) GetClusterId() string {
	return c.clusterId
}

// GetTopology returns what the monitor last cached for its cluster.
func (c *ClusterTopologyMonitor) GetTopology() []*host_info_util.HostInfo {
	hosts, _ := c.provider.cacheService.GetTopology(c.clusterId)
	return hosts
}

// Close stops the monitoring routine, waiting up to MonitorStopTimeout before closing the
// monitoring connection out from under it.
func (c *ClusterTopologyMonitor) Close() {
	c.stop.Store(true)
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(MonitorStopTimeout):
		slog.Warn(error_util.GetMessage("ClusterTopologyMonitor.forcedStop", c.clusterId))
		c.closeMonitoringConn()
	}
}
