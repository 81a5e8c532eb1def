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

package connection_tracker

import (
	"database/sql/driver"
	"log/slog"
	"net"
	"slices"
	"strings"
	"sync"

	"github.com/aws/aws-advanced-go-wrapper/failover/error_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/host_info_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/utils"
)

// connectionSet holds the physical connections opened against one instance endpoint.
type connectionSet struct {
	lock  sync.Mutex
	conns []driver.Conn
}

func (s *connectionSet) add(conn driver.Conn) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if !slices.Contains(s.conns, conn) {
		s.conns = append(s.conns, conn)
	}
}

func (s *connectionSet) remove(conn driver.Conn) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.conns = slices.DeleteFunc(s.conns, func(tracked driver.Conn) bool {
		return tracked == conn
	})
}

func (s *connectionSet) drain() []driver.Conn {
	s.lock.Lock()
	defer s.lock.Unlock()
	conns := s.conns
	s.conns = nil
	return conns
}

func (s *connectionSet) size() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.conns)
}

// OpenedConnectionTracker indexes open connections by the instance endpoint they reached.
type OpenedConnectionTracker struct {
	openedConnections *utils.RWMap[*connectionSet]
}

func NewOpenedConnectionTracker() *OpenedConnectionTracker {
	return &OpenedConnectionTracker{
		openedConnections: utils.NewRWMap[*connectionSet](),
	}
}

// DefaultOpenedConnectionTracker is shared by every session opened through the driver.
var DefaultOpenedConnectionTracker = NewOpenedConnectionTracker()

func (o *OpenedConnectionTracker) PopulateOpenedConnectionQueue(hostInfo *host_info_util.HostInfo, conn driver.Conn) {
	if hostInfo.IsNil() || conn == nil {
		return
	}
	if utils.IsRdsInstance(hostInfo.Host) {
		o.trackConnection(hostInfo.GetHostAndPort(), conn)
		return
	}

	// Aliases are unordered; pick the greatest instance endpoint so the choice is stable.
	instanceEndpoint := ""
	for alias := range hostInfo.AllAliases() {
		if utils.IsRdsInstance(removePort(alias)) && alias > instanceEndpoint {
			instanceEndpoint = alias
		}
	}
	if instanceEndpoint == "" {
		slog.Debug(error_util.GetMessage("OpenedConnectionTracker.unableToPopulateOpenedConnectionQueue", hostInfo.Host))
		return
	}
	o.trackConnection(instanceEndpoint, conn)
}

func (o *OpenedConnectionTracker) InvalidateAllConnections(hostInfo *host_info_util.HostInfo) {
	if hostInfo.IsNil() {
		return
	}
	o.InvalidateAllConnectionsMultipleHosts(hostInfo.GetHostAndPort())
	o.InvalidateAllConnectionsMultipleHosts(hostInfo.Aliases()...)
}

func (o *OpenedConnectionTracker) InvalidateAllConnectionsMultipleHosts(hosts ...string) {
	instanceEndpoint := ""
	for _, host := range hosts {
		if utils.IsRdsInstance(removePort(host)) {
			instanceEndpoint = host
			break
		}
	}
	if instanceEndpoint == "" {
		return
	}

	set, ok := o.openedConnections.Get(instanceEndpoint)
	if !ok {
		return
	}
	conns := set.drain()
	if len(conns) == 0 {
		return
	}
	slog.Debug(error_util.GetMessage("OpenedConnectionTracker.invalidatingConnections", instanceEndpoint, len(conns)))
	for _, conn := range conns {
		_ = conn.Close()
	}
}

// RemoveConnection stops tracking conn under every endpoint.
func (o *OpenedConnectionTracker) RemoveConnection(conn driver.Conn) {
	if conn == nil {
		return
	}
	for _, set := range o.openedConnections.GetAllEntries() {
		set.remove(conn)
	}
}

func (o *OpenedConnectionTracker) trackConnection(hostAndPort string, conn driver.Conn) {
	set := o.openedConnections.ComputeIfAbsent(hostAndPort, func() *connectionSet {
		return &connectionSet{}
	})
	set.add(conn)
	o.LogOpenedConnections()
}

func (o *OpenedConnectionTracker) LogOpenedConnections() {
	hostList := []string{}
	for host, set := range o.openedConnections.GetAllEntries() {
		if set.size() > 0 {
			hostList = append(hostList, host)
		}
	}
	slices.Sort(hostList)
	slog.Debug("Opened Connections Tracked", "connections", strings.Join(hostList, "\n\t"))
}

// CountOpenedConnections returns the number of connections tracked under hostAndPort.
func (o *OpenedConnectionTracker) CountOpenedConnections(hostAndPort string) int {
	set, ok := o.openedConnections.Get(hostAndPort)
	if !ok {
		return 0
	}
	return set.size()
}

func (o *OpenedConnectionTracker) ClearCache() {
	o.openedConnections.Clear()
}

func removePort(host string) string {
	hostOnly, _, err := net.SplitHostPort(host)
	if err != nil {
		return host
	}
	return hostOnly
}
