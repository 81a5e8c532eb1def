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

package test_utils

import (
	"database/sql/driver"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-advanced-go-wrapper/failover/host_info_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/utils"
)

const MockClusterDomain = "xyz.us-east-2.rds.amazonaws.com"

// MockCluster simulates an Aurora cluster for MockConns. Connections answer the topology, node id
// and role queries of both Aurora dialects from the cluster's current state, so a promotion or an
// instance going down is seen by every open connection.
type MockCluster struct {
	Port    int
	lock    sync.Mutex
	writer  string
	readers []string
	down    map[string]bool
	cpu     map[string]float64
	conns   map[*MockConn]string
}

func NewMockCluster(writer string, readers ...string) *MockCluster {
	return &MockCluster{
		Port:    5432,
		writer:  writer,
		readers: readers,
		down:    map[string]bool{},
		cpu:     map[string]float64{},
		conns:   map[*MockConn]string{},
	}
}

func (c *MockCluster) WriterClusterEndpoint() string {
	return "mydb.cluster-" + MockClusterDomain
}

func (c *MockCluster) ReaderClusterEndpoint() string {
	return "mydb.cluster-ro-" + MockClusterDomain
}

func (c *MockCluster) InstanceEndpoint(instance string) string {
	return instance + "." + MockClusterDomain
}

// Promote makes instance the writer. The previous writer becomes a reader.
func (c *MockCluster) Promote(instance string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if instance == c.writer {
		return
	}
	readers := []string{c.writer}
	for _, reader := range c.readers {
		if reader != instance {
			readers = append(readers, reader)
		}
	}
	c.writer = instance
	c.readers = readers
}

// SetDown makes connection attempts and queries against instance fail with ErrMockNetwork.
func (c *MockCluster) SetDown(instance string, down bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.down[instance] = down
}

// SetCpu sets the cpu reported for instance, which drives its weight.
func (c *MockCluster) SetCpu(instance string, cpu float64) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.cpu[instance] = cpu
}

// Hosts returns the topology as a host list provider would build it, writer first.
func (c *MockCluster) Hosts() []*host_info_util.HostInfo {
	c.lock.Lock()
	defer c.lock.Unlock()
	hosts := []*host_info_util.HostInfo{c.hostLocked(c.writer, host_info_util.WRITER)}
	for _, reader := range c.readers {
		hosts = append(hosts, c.hostLocked(reader, host_info_util.READER))
	}
	return hosts
}

func (c *MockCluster) Host(instance string) *host_info_util.HostInfo {
	return host_info_util.FindHostInTopology(c.Hosts(), instance)
}

func (c *MockCluster) hostLocked(instance string, role host_info_util.HostRole) *host_info_util.HostInfo {
	host, _ := host_info_util.NewHostInfoBuilder().
		SetHost(c.InstanceEndpoint(instance)).
		SetHostId(instance).
		SetPort(c.Port).
		SetRole(role).
		SetWeight(int(c.cpu[instance])).
		AddAlias(instance).
		Build()
	return host
}

// TopologyRows returns the rows of the Aurora topology query, writer last as the oldest update
// comes first.
func (c *MockCluster) TopologyRows() [][]driver.Value {
	c.lock.Lock()
	defer c.lock.Unlock()
	now := time.Now()
	var rows [][]driver.Value
	for i, reader := range c.readers {
		rows = append(rows, []driver.Value{reader, false, c.cpu[reader], 0.0, now.Add(time.Duration(i-len(c.readers)) * time.Second)})
	}
	return append(rows, []driver.Value{c.writer, true, c.cpu[c.writer], 0.0, now})
}

// Connect opens a MockConn to the instance behind hostInfo. It can be used as a
// MockConnectionProvider's ConnectFunc.
func (c *MockCluster) Connect(hostInfo *host_info_util.HostInfo) (driver.Conn, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	instance := c.instanceForLocked(hostInfo.Host)
	if instance == "" {
		return nil, fmt.Errorf("unknown host '%s': %w", hostInfo.Host, ErrMockNetwork)
	}
	if c.down[instance] {
		return nil, fmt.Errorf("instance '%s' is down: %w", instance, ErrMockNetwork)
	}
	conn := NewMockConn(hostInfo.Host)
	conn.QueryFunc = func(query string) (driver.Rows, error) {
		return c.answer(instance, query)
	}
	c.conns[conn] = instance
	return conn, nil
}

func (c *MockCluster) instanceForLocked(host string) string {
	switch {
	case utils.IsWriterClusterDns(host):
		return c.writer
	case utils.IsReaderClusterDns(host):
		for _, reader := range c.readers {
			if !c.down[reader] {
				return reader
			}
		}
		return c.writer
	}
	instance, _, _ := strings.Cut(host, ".")
	if instance == c.writer || slices.Contains(c.readers, instance) {
		return instance
	}
	return ""
}

// InstanceOf returns the instance conn was opened to, or "" for connections the cluster did not open.
func (c *MockCluster) InstanceOf(conn driver.Conn) string {
	mockConn, ok := conn.(*MockConn)
	if !ok {
		return ""
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.conns[mockConn]
}

// Topology answers for conn the way a topology query over it would. It can be used as a
// MockHostListProvider's TopologyFunc.
func (c *MockCluster) Topology(conn driver.Conn) ([]*host_info_util.HostInfo, error) {
	if conn == nil {
		return c.Hosts(), nil
	}
	if mockConn, ok := conn.(*MockConn); ok && mockConn.IsClosed() {
		return nil, driver.ErrBadConn
	}
	instance := c.InstanceOf(conn)
	c.lock.Lock()
	isDown := c.down[instance]
	c.lock.Unlock()
	if isDown {
		return nil, ErrMockNetwork
	}
	return c.Hosts(), nil
}

func (c *MockCluster) answer(instance string, query string) (driver.Rows, error) {
	c.lock.Lock()
	isDown, writer := c.down[instance], c.writer
	c.lock.Unlock()
	if isDown {
		return nil, ErrMockNetwork
	}

	switch {
	case strings.Contains(query, "rds.extensions"):
		return NewMockRows([]string{"aurora_stat_utils"}, []driver.Value{true}), nil
	case strings.Contains(query, "aurora_replica_status") || strings.Contains(query, "replica_host_status"):
		return NewMockRows([]string{"server_id", "is_writer", "cpu", "lag", "last_update"}, c.TopologyRows()...), nil
	case strings.Contains(query, "aurora_db_instance_identifier") || strings.Contains(query, "aurora_server_id"):
		return NewMockRows([]string{"id"}, []driver.Value{instance}), nil
	case strings.Contains(query, "is_reader"):
		return NewMockRows([]string{"is_reader"}, []driver.Value{instance != writer}), nil
	case strings.Contains(query, "inet_server_addr") || strings.Contains(query, "@@hostname"):
		return NewMockRows([]string{"alias"}, []driver.Value{fmt.Sprintf("%s:%d", c.InstanceEndpoint(instance), c.Port)}), nil
	case strings.Contains(query, "pg_proc") || strings.Contains(query, "aurora_version"):
		return NewMockRows([]string{"value"}, []driver.Value{int64(1)}), nil
	}
	return NewMockRows([]string{"result"}), nil
}
