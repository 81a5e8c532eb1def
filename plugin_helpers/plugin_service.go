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

package plugin_helpers

import (
	"context"
	"database/sql/driver"
	"log/slog"
	"sync"

	"github.com/aws/aws-advanced-go-wrapper/failover/driver_infrastructure"
	"github.com/aws/aws-advanced-go-wrapper/failover/error_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/host_info_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/utils"
)

type PluginServiceImpl struct {
	pluginManager    driver_infrastructure.PluginManager
	props            map[string]string
	currentConn      driver.Conn
	hostListProvider driver_infrastructure.HostListProvider
	currentHostInfo  *host_info_util.HostInfo
	dialect          driver_infrastructure.DatabaseDialect
	driverDialect    driver_infrastructure.DriverDialect
	dialectProvider  driver_infrastructure.DialectProvider
	originalDsn      string
	allHosts         []*host_info_util.HostInfo
	hostsLock        sync.RWMutex
	initialHostInfo  *host_info_util.HostInfo
	isInTransaction  bool
	sessionState     *driver_infrastructure.SessionState
	cacheService     *driver_infrastructure.TopologyCacheService
	hostInfoLock     sync.Mutex
}

func NewPluginServiceImpl(
	pluginManager driver_infrastructure.PluginManager,
	driverDialect driver_infrastructure.DriverDialect,
	props map[string]string,
	dsn string) (*PluginServiceImpl, error) {
	dialectProvider := &driver_infrastructure.DialectManager{}
	dialect, err := dialectProvider.GetDialect(dsn, props)
	if err != nil {
		return nil, err
	}
	return NewPluginServiceImplWithDialect(pluginManager, driverDialect, dialect, dialectProvider, props, dsn, nil), nil
}

func NewPluginServiceImplWithDialect(
	pluginManager driver_infrastructure.PluginManager,
	driverDialect driver_infrastructure.DriverDialect,
	dialect driver_infrastructure.DatabaseDialect,
	dialectProvider driver_infrastructure.DialectProvider,
	props map[string]string,
	dsn string,
	cacheService *driver_infrastructure.TopologyCacheService) *PluginServiceImpl {
	if cacheService == nil {
		cacheService = driver_infrastructure.DefaultTopologyCacheService
	}
	pluginService := &PluginServiceImpl{
		pluginManager:   pluginManager,
		driverDialect:   driverDialect,
		props:           props,
		dialectProvider: dialectProvider,
		dialect:         dialect,
		originalDsn:     dsn,
		sessionState:    &driver_infrastructure.SessionState{},
		cacheService:    cacheService,
	}
	pluginService.hostListProvider = driver_infrastructure.NewDsnHostListProvider(props, pluginService)
	return pluginService
}

func (p *PluginServiceImpl) IsStaticHostListProvider() bool {
	return p.GetHostListProvider().IsStaticHostListProvider()
}

func (p *PluginServiceImpl) SetHostListProvider(hostListProvider driver_infrastructure.HostListProvider) {
	p.hostListProvider = hostListProvider
}

func (p *PluginServiceImpl) GetHostListProvider() driver_infrastructure.HostListProvider {
	return p.hostListProvider
}

func (p *PluginServiceImpl) GetDialect() driver_infrastructure.DatabaseDialect {
	return p.dialect
}

// UpdateDialect checks the freshly opened connection and, when the dialect changes, lets the
// plugins install a host list provider that matches it.
func (p *PluginServiceImpl) UpdateDialect(conn driver.Conn) error {
	if p.dialectProvider == nil {
		return nil
	}
	p.hostInfoLock.Lock()
	currentHost := p.currentHostInfo
	if currentHost.IsNil() {
		currentHost = p.initialHostInfo
	}
	p.hostInfoLock.Unlock()
	if currentHost.IsNil() {
		slog.Warn(error_util.GetMessage("PluginServiceImpl.initialHostNotSet"))
		return nil
	}
	newDialect := p.dialectProvider.GetDialectForUpdate(conn, p.originalDsn, currentHost.Host)
	if p.dialect == newDialect {
		return nil
	}
	p.dialect = newDialect
	return p.pluginManager.InitHostProvider(p.props, p)
}

func (p *PluginServiceImpl) GetCurrentConnection() driver.Conn {
	return p.currentConn
}

func (p *PluginServiceImpl) SetCurrentConnection(
	conn driver.Conn,
	hostInfo *host_info_util.HostInfo,
	skipNotificationForThisPlugin driver_infrastructure.ConnectionPlugin) error {
	if conn == nil {
		return error_util.NewGenericAwsWrapperError(error_util.GetMessage("PluginServiceImpl.nilConn"))
	}
	if hostInfo.IsNil() {
		return error_util.NewGenericAwsWrapperError(error_util.GetMessage("PluginServiceImpl.nilHost"))
	}
	if p.currentConn == nil {
		p.currentConn = conn
		p.hostInfoLock.Lock()
		p.currentHostInfo = hostInfo
		if p.initialHostInfo.IsNil() {
			p.initialHostInfo = hostInfo
		}
		p.hostInfoLock.Unlock()
		p.sessionState.Reset()
		p.pluginManager.NotifyConnectionChanged(
			map[driver_infrastructure.HostChangeOptions]bool{driver_infrastructure.INITIAL_CONNECTION: true},
			skipNotificationForThisPlugin)
		return nil
	}

	changes := p.compare(p.currentConn, p.GetCurrentHostInfo(), conn, hostInfo)
	if len(changes) == 0 {
		return nil
	}

	if changes[driver_infrastructure.CONNECTION_OBJECT_CHANGED] {
		if err := driver_infrastructure.ApplySessionState(context.Background(), p.dialect, p.sessionState, conn); err != nil {
			return err
		}
	}

	oldConnection := p.currentConn
	p.currentConn = conn
	p.hostInfoLock.Lock()
	p.currentHostInfo = hostInfo
	p.hostInfoLock.Unlock()
	p.SetInTransaction(false)

	pluginOpinions := p.pluginManager.NotifyConnectionChanged(changes, skipNotificationForThisPlugin)
	shouldCloseConnection := changes[driver_infrastructure.CONNECTION_OBJECT_CHANGED] &&
		!pluginOpinions[driver_infrastructure.PRESERVE] &&
		!p.IsClosed(oldConnection)
	if shouldCloseConnection {
		_ = oldConnection.Close()
	}
	return nil
}

func (p *PluginServiceImpl) compare(connA driver.Conn, hostInfoA *host_info_util.HostInfo, connB driver.Conn,
	hostInfoB *host_info_util.HostInfo) map[driver_infrastructure.HostChangeOptions]bool {
	changes := compareHostInfos(hostInfoA, hostInfoB)
	if connA != connB {
		changes[driver_infrastructure.CONNECTION_OBJECT_CHANGED] = true
	}
	return changes
}

func compareHostInfos(hostInfoA *host_info_util.HostInfo, hostInfoB *host_info_util.HostInfo) map[driver_infrastructure.HostChangeOptions]bool {
	changes := map[driver_infrastructure.HostChangeOptions]bool{}
	if hostInfoA.IsNil() || hostInfoB.IsNil() {
		changes[driver_infrastructure.HOSTNAME] = true
		changes[driver_infrastructure.HOST_CHANGED] = true
		return changes
	}
	if hostInfoA.Host != hostInfoB.Host || hostInfoA.Port != hostInfoB.Port {
		changes[driver_infrastructure.HOSTNAME] = true
	}
	if hostInfoA.Role != hostInfoB.Role {
		switch hostInfoB.Role {
		case host_info_util.WRITER:
			changes[driver_infrastructure.PROMOTED_TO_WRITER] = true
		case host_info_util.READER:
			changes[driver_infrastructure.PROMOTED_TO_READER] = true
		}
	}
	if hostInfoA.Availability != hostInfoB.Availability {
		switch hostInfoB.Availability {
		case host_info_util.AVAILABLE:
			changes[driver_infrastructure.WENT_UP] = true
		case host_info_util.UNAVAILABLE:
			changes[driver_infrastructure.WENT_DOWN] = true
		}
	}
	if len(changes) != 0 {
		changes[driver_infrastructure.HOST_CHANGED] = true
	}
	return changes
}

// GetCurrentHostInfo falls back to the initial host, then to the writer of the host list, when no
// connection has been set yet. Safe to call from failover goroutines.
func (p *PluginServiceImpl) GetCurrentHostInfo() *host_info_util.HostInfo {
	p.hostInfoLock.Lock()
	defer p.hostInfoLock.Unlock()
	if p.currentHostInfo.IsNil() {
		p.currentHostInfo = p.initialHostInfo
		if p.currentHostInfo.IsNil() {
			hosts := p.GetHosts()
			if len(hosts) == 0 {
				return nil
			}
			p.currentHostInfo = host_info_util.GetWriter(hosts)
			if p.currentHostInfo.IsNil() {
				p.currentHostInfo = hosts[0]
			}
		}
		slog.Debug(error_util.GetMessage("PluginServiceImpl.setCurrentHost", p.currentHostInfo.Host))
	}
	return p.currentHostInfo
}

func (p *PluginServiceImpl) GetHosts() []*host_info_util.HostInfo {
	p.hostsLock.RLock()
	defer p.hostsLock.RUnlock()
	return p.allHosts
}

func (p *PluginServiceImpl) GetInitialConnectionHostInfo() *host_info_util.HostInfo {
	p.hostInfoLock.Lock()
	defer p.hostInfoLock.Unlock()
	return p.initialHostInfo
}

func (p *PluginServiceImpl) SetInitialConnectionHostInfo(hostInfo *host_info_util.HostInfo) {
	p.hostInfoLock.Lock()
	defer p.hostInfoLock.Unlock()
	p.initialHostInfo = hostInfo
}

func (p *PluginServiceImpl) GetHostRole(conn driver.Conn) (host_info_util.HostRole, error) {
	return p.hostListProvider.GetHostRole(conn)
}

// SetAvailability replaces every host matching one of hostAliases with a copy carrying the new availability.
func (p *PluginServiceImpl) SetAvailability(hostAliases map[string]bool, availability host_info_util.HostAvailability) {
	if len(hostAliases) == 0 {
		return
	}

	changes := map[string]map[driver_infrastructure.HostChangeOptions]bool{}
	hostsToChange := false

	p.hostsLock.Lock()
	updatedHosts := make([]*host_info_util.HostInfo, len(p.allHosts))
	for i, host := range p.allHosts {
		updatedHosts[i] = host
		if !hostMatchesAliases(host, hostAliases) {
			continue
		}
		hostsToChange = true
		p.cacheService.PutHostAvailability(host.GetHostAndPort(), availability)
		if host.Availability != availability {
			updatedHosts[i] = host.WithAvailability(availability)
			hostChanges := map[driver_infrastructure.HostChangeOptions]bool{driver_infrastructure.HOST_CHANGED: true}
			if availability == host_info_util.AVAILABLE {
				hostChanges[driver_infrastructure.WENT_UP] = true
			} else {
				hostChanges[driver_infrastructure.WENT_DOWN] = true
			}
			changes[host.GetHostAndPort()] = hostChanges
		}
	}
	if len(changes) > 0 {
		p.allHosts = updatedHosts
	}
	p.hostsLock.Unlock()

	if !hostsToChange {
		for alias := range hostAliases {
			p.cacheService.PutHostAvailability(alias, availability)
		}
		slog.Debug(error_util.GetMessage("PluginServiceImpl.hostsChangeListEmpty"))
	}

	if len(changes) > 0 {
		p.pluginManager.NotifyHostListChanged(changes)
	}
}

func hostMatchesAliases(host *host_info_util.HostInfo, hostAliases map[string]bool) bool {
	if hostAliases[host.GetHostAndPort()] {
		return true
	}
	for alias := range hostAliases {
		if host.HasAlias(alias) {
			return true
		}
	}
	return false
}

func (p *PluginServiceImpl) IsInTransaction() bool {
	return p.isInTransaction
}

func (p *PluginServiceImpl) SetInTransaction(inTransaction bool) {
	p.isInTransaction = inTransaction
}

func (p *PluginServiceImpl) RefreshHostList(conn driver.Conn) error {
	updatedHostList, err := p.GetHostListProvider().Refresh(conn)
	if err != nil {
		return err
	}
	// nil means the provider has nothing new since the last call.
	if updatedHostList == nil {
		return nil
	}
	p.updateHostListIfNeeded(updatedHostList)
	return nil
}

func (p *PluginServiceImpl) ForceRefreshHostList(conn driver.Conn) error {
	updatedHostList, err := p.GetHostListProvider().ForceRefresh(conn)
	if err != nil {
		return err
	}
	if len(updatedHostList) == 0 {
		return error_util.NewGenericAwsWrapperError(error_util.GetMessage("PluginServiceImpl.hostListEmpty"))
	}
	p.updateHostListIfNeeded(updatedHostList)
	return nil
}

func (p *PluginServiceImpl) updateHostListIfNeeded(updatedHostList []*host_info_util.HostInfo) {
	updatedHostList = p.applyCachedAvailability(updatedHostList)
	if !host_info_util.AreHostListsEqual(p.GetHosts(), updatedHostList) {
		p.setHostList(updatedHostList)
	}
}

func (p *PluginServiceImpl) applyCachedAvailability(hosts []*host_info_util.HostInfo) []*host_info_util.HostInfo {
	var result []*host_info_util.HostInfo
	for i, host := range hosts {
		availability, ok := p.cacheService.GetHostAvailability(host.GetHostAndPort())
		if !ok || availability == host.Availability {
			continue
		}
		if result == nil {
			result = make([]*host_info_util.HostInfo, len(hosts))
			copy(result, hosts)
		}
		result[i] = host.WithAvailability(availability)
	}
	if result == nil {
		return hosts
	}
	return result
}

func (p *PluginServiceImpl) setHostList(newHosts []*host_info_util.HostInfo) {
	p.hostsLock.Lock()
	oldHosts := p.allHosts
	oldHostMap := map[string]*host_info_util.HostInfo{}
	for _, host := range oldHosts {
		oldHostMap[host.GetHostAndPort()] = host
	}
	newHostMap := map[string]*host_info_util.HostInfo{}
	for _, host := range newHosts {
		newHostMap[host.GetHostAndPort()] = host
	}

	changes := map[string]map[driver_infrastructure.HostChangeOptions]bool{}
	for hostKey, hostInfo := range oldHostMap {
		correspondingNewHost, ok := newHostMap[hostKey]
		if !ok {
			changes[hostKey] = map[driver_infrastructure.HostChangeOptions]bool{driver_infrastructure.HOST_DELETED: true}
			continue
		}
		hostChanges := compareHostInfos(hostInfo, correspondingNewHost)
		if len(hostChanges) > 0 {
			changes[hostKey] = hostChanges
		}
	}
	for hostKey := range newHostMap {
		if _, ok := oldHostMap[hostKey]; !ok {
			changes[hostKey] = map[driver_infrastructure.HostChangeOptions]bool{driver_infrastructure.HOST_ADDED: true}
		}
	}
	p.allHosts = newHosts
	p.hostsLock.Unlock()

	if len(changes) > 0 {
		p.pluginManager.NotifyHostListChanged(changes)
	}
}

func (p *PluginServiceImpl) Connect(hostInfo *host_info_util.HostInfo, props map[string]string) (driver.Conn, error) {
	return p.pluginManager.Connect(hostInfo, props, p.currentConn == nil)
}

func (p *PluginServiceImpl) ForceConnect(hostInfo *host_info_util.HostInfo, props map[string]string) (driver.Conn, error) {
	return p.pluginManager.ForceConnect(hostInfo, props, p.currentConn == nil)
}

func (p *PluginServiceImpl) GetTargetDriverDialect() driver_infrastructure.DriverDialect {
	return p.driverDialect
}

func (p *PluginServiceImpl) IdentifyConnection(conn driver.Conn) (*host_info_util.HostInfo, error) {
	return p.hostListProvider.IdentifyConnection(conn)
}

// FillAliases returns hostInfo with the aliases the server reports for conn.
func (p *PluginServiceImpl) FillAliases(conn driver.Conn, hostInfo *host_info_util.HostInfo) *host_info_util.HostInfo {
	if hostInfo.IsNil() {
		return hostInfo
	}
	if len(hostInfo.Aliases()) > 0 {
		slog.Debug(error_util.GetMessage("PluginServiceImpl.nonEmptyAliases", hostInfo.Aliases()))
		return hostInfo
	}

	aliases := []string{hostInfo.GetHostAndPort()}
	rows, err := utils.QueryRows(context.Background(), conn, p.dialect.GetHostAliasQuery())
	if err == nil {
		for _, row := range rows {
			if len(row) > 0 {
				if alias := utils.ToString(row[0]); alias != "" {
					aliases = append(aliases, alias)
				}
			}
		}
	} else {
		slog.Debug(error_util.GetMessage("PluginServiceImpl.failedToRetrieveHostPort", err.Error()))
	}

	host, err := p.IdentifyConnection(conn)
	if err == nil && !host.IsNil() {
		for alias := range host.AllAliases() {
			aliases = append(aliases, alias)
		}
	}
	return hostInfo.WithAliases(aliases...)
}

func (p *PluginServiceImpl) GetConnectionProvider() driver_infrastructure.ConnectionProvider {
	return p.pluginManager.GetDefaultConnectionProvider()
}

func (p *PluginServiceImpl) GetProperties() map[string]string {
	return p.props
}

func (p *PluginServiceImpl) GetSessionState() *driver_infrastructure.SessionState {
	return p.sessionState
}

// UpdateState records session changes made by executing sql directly.
func (p *PluginServiceImpl) UpdateState(sql string) {
	if sql == "" || p.dialect == nil {
		return
	}
	if autoCommit, ok := p.dialect.DoesStatementSetAutoCommit(sql); ok {
		p.sessionState.AutoCommit.SetValue(autoCommit)
	}
	if readOnly, ok := p.dialect.DoesStatementSetReadOnly(sql); ok {
		p.sessionState.ReadOnly.SetValue(readOnly)
	}
	if isolation, ok := p.dialect.DoesStatementSetTransactionIsolation(sql); ok {
		p.sessionState.TransactionIsolation.SetValue(isolation)
	}
}

func (p *PluginServiceImpl) IsNetworkError(err error) bool {
	return p.driverDialect.IsNetworkError(err)
}

func (p *PluginServiceImpl) IsLoginError(err error) bool {
	return p.driverDialect.IsLoginError(err)
}

func (p *PluginServiceImpl) IsClosed(conn driver.Conn) bool {
	return p.driverDialect.IsClosed(conn)
}

func (p *PluginServiceImpl) ReleaseResources() {
	slog.Debug(error_util.GetMessage("PluginServiceImpl.releaseResources"))
	if p.currentConn != nil {
		_ = p.currentConn.Close()
		p.currentConn = nil
	}
	if releasable, ok := p.hostListProvider.(driver_infrastructure.CanReleaseResources); ok {
		releasable.ReleaseResources()
	}
}
