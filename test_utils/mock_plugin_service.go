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
	"context"
	"database/sql/driver"
	"sync"

	"github.com/aws/aws-advanced-go-wrapper/failover/driver_infrastructure"
	"github.com/aws/aws-advanced-go-wrapper/failover/host_info_util"
)

// MockPluginService is a thread safe PluginService backed by a MockConnectionProvider and a
// MockHostListProvider. It records every availability change.
type MockPluginService struct {
	Provider          *MockConnectionProvider
	HostListProvider  driver_infrastructure.HostListProvider
	Dialect           driver_infrastructure.DatabaseDialect
	DriverDialect     driver_infrastructure.DriverDialect
	Props             map[string]string
	lock              sync.Mutex
	currentConn       driver.Conn
	currentHost       *host_info_util.HostInfo
	initialHost       *host_info_util.HostInfo
	hosts             []*host_info_util.HostInfo
	availability      map[string]host_info_util.HostAvailability
	inTransaction     bool
	sessionState      driver_infrastructure.SessionState
	setConnectionLog  []string
	forceRefreshCount int
}

func NewMockPluginService(hosts []*host_info_util.HostInfo) *MockPluginService {
	return &MockPluginService{
		Provider:         &MockConnectionProvider{},
		HostListProvider: &MockHostListProvider{Topology: hosts},
		Dialect:          &driver_infrastructure.AuroraPgDatabaseDialect{},
		DriverDialect:    &MockDriverDialect{},
		Props:            map[string]string{},
		hosts:            hosts,
		availability:     map[string]host_info_util.HostAvailability{},
	}
}

func (p *MockPluginService) IsStaticHostListProvider() bool {
	return p.HostListProvider.IsStaticHostListProvider()
}

func (p *MockPluginService) GetHostListProvider() driver_infrastructure.HostListProvider {
	return p.HostListProvider
}

func (p *MockPluginService) SetHostListProvider(hostListProvider driver_infrastructure.HostListProvider) {
	p.HostListProvider = hostListProvider
}

func (p *MockPluginService) SetInitialConnectionHostInfo(info *host_info_util.HostInfo) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.initialHost = info
}

func (p *MockPluginService) GetInitialConnectionHostInfo() *host_info_util.HostInfo {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.initialHost
}

func (p *MockPluginService) GetDialect() driver_infrastructure.DatabaseDialect {
	return p.Dialect
}

func (p *MockPluginService) GetCurrentConnection() driver.Conn {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.currentConn
}

func (p *MockPluginService) SetCurrentConnection(conn driver.Conn, hostInfo *host_info_util.HostInfo, _ driver_infrastructure.ConnectionPlugin) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.currentConn != nil && p.currentConn != conn {
		if conn != nil {
			if err := driver_infrastructure.ApplySessionState(context.Background(), p.Dialect, &p.sessionState, conn); err != nil {
				return err
			}
		}
		p.inTransaction = false
	}
	p.currentConn = conn
	p.currentHost = hostInfo
	if !hostInfo.IsNil() {
		p.setConnectionLog = append(p.setConnectionLog, hostInfo.Host)
	}
	return nil
}

// SetConnectionLog lists the hosts passed to SetCurrentConnection, oldest first.
func (p *MockPluginService) SetConnectionLog() []string {
	p.lock.Lock()
	defer p.lock.Unlock()
	return append([]string(nil), p.setConnectionLog...)
}

func (p *MockPluginService) GetCurrentHostInfo() *host_info_util.HostInfo {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.currentHost
}

func (p *MockPluginService) GetHosts() []*host_info_util.HostInfo {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.hosts
}

func (p *MockPluginService) SetHosts(hosts []*host_info_util.HostInfo) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.hosts = hosts
}

func (p *MockPluginService) SetAvailability(hostAliases map[string]bool, availability host_info_util.HostAvailability) {
	p.lock.Lock()
	defer p.lock.Unlock()
	for alias := range hostAliases {
		p.availability[alias] = availability
	}
}

// GetAvailability returns the last availability recorded for alias.
func (p *MockPluginService) GetAvailability(alias string) (host_info_util.HostAvailability, bool) {
	p.lock.Lock()
	defer p.lock.Unlock()
	availability, ok := p.availability[alias]
	return availability, ok
}

func (p *MockPluginService) IsInTransaction() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.inTransaction
}

func (p *MockPluginService) SetInTransaction(inTransaction bool) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.inTransaction = inTransaction
}

func (p *MockPluginService) RefreshHostList(conn driver.Conn) error {
	return p.refresh(conn)
}

func (p *MockPluginService) ForceRefreshHostList(conn driver.Conn) error {
	p.lock.Lock()
	p.forceRefreshCount++
	p.lock.Unlock()
	return p.refresh(conn)
}

func (p *MockPluginService) refresh(conn driver.Conn) error {
	hosts, err := p.HostListProvider.ForceRefresh(conn)
	if err != nil {
		return err
	}
	if hosts != nil {
		p.SetHosts(hosts)
	}
	return nil
}

func (p *MockPluginService) ForceRefreshCount() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.forceRefreshCount
}

func (p *MockPluginService) Connect(hostInfo *host_info_util.HostInfo, props map[string]string) (driver.Conn, error) {
	return p.Provider.Connect(hostInfo, props, p)
}

func (p *MockPluginService) ForceConnect(hostInfo *host_info_util.HostInfo, props map[string]string) (driver.Conn, error) {
	return p.Provider.Connect(hostInfo, props, p)
}

func (p *MockPluginService) GetHostRole(conn driver.Conn) (host_info_util.HostRole, error) {
	return p.HostListProvider.GetHostRole(conn)
}

func (p *MockPluginService) IdentifyConnection(conn driver.Conn) (*host_info_util.HostInfo, error) {
	return p.HostListProvider.IdentifyConnection(conn)
}

func (p *MockPluginService) FillAliases(conn driver.Conn, hostInfo *host_info_util.HostInfo) *host_info_util.HostInfo {
	identified, err := p.IdentifyConnection(conn)
	if err != nil || identified.IsNil() {
		return hostInfo.WithAliases(hostInfo.GetHostAndPort())
	}
	return hostInfo.WithAliases(identified.GetHostAndPort())
}

func (p *MockPluginService) GetTargetDriverDialect() driver_infrastructure.DriverDialect {
	return p.DriverDialect
}

func (p *MockPluginService) UpdateDialect(_ driver.Conn) error {
	return nil
}

func (p *MockPluginService) GetConnectionProvider() driver_infrastructure.ConnectionProvider {
	return p.Provider
}

func (p *MockPluginService) GetProperties() map[string]string {
	return p.Props
}

func (p *MockPluginService) GetSessionState() *driver_infrastructure.SessionState {
	return &p.sessionState
}

func (p *MockPluginService) UpdateState(_ string) {
}

func (p *MockPluginService) IsNetworkError(err error) bool {
	return p.DriverDialect.IsNetworkError(err)
}

func (p *MockPluginService) IsLoginError(err error) bool {
	return p.DriverDialect.IsLoginError(err)
}

func (p *MockPluginService) IsClosed(conn driver.Conn) bool {
	return p.DriverDialect.IsClosed(conn)
}
