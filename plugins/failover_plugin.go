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

package plugins

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/aws/aws-advanced-go-wrapper/failover/driver_infrastructure"
	"github.com/aws/aws-advanced-go-wrapper/failover/error_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/host_info_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/property_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/utils"

	"github.com/prometheus/client_golang/prometheus"
)

// ROLLBACK_TIMEOUT bounds the best-effort rollback issued on a dying connection.
var ROLLBACK_TIMEOUT = 5 * time.Second

// allowedOnClosedConnection lists the calls a closed session still answers from local state.
var allowedOnClosedConnection = utils.NewMethodSet(
	utils.CONN_GET_AUTO_COMMIT,
	utils.CONN_GET_READ_ONLY,
	utils.CONN_GET_TRANSACTION_ISOLATION)

type FailoverPluginFactory struct {
	TopologyCacheService *driver_infrastructure.TopologyCacheService
	MonitorService       *driver_infrastructure.ClusterTopologyMonitorService
	Metrics              *FailoverMetrics
}

func (f FailoverPluginFactory) GetInstance(pluginService driver_infrastructure.PluginService, props map[string]string) (driver_infrastructure.ConnectionPlugin, error) {
	plugin := NewFailoverPlugin(pluginService, props)
	if f.TopologyCacheService != nil {
		plugin.topologyCacheService = f.TopologyCacheService
	}
	if f.MonitorService != nil {
		plugin.monitorService = f.MonitorService
	}
	if f.Metrics != nil {
		plugin.metrics = f.Metrics
	}
	return plugin, nil
}

func NewFailoverPluginFactory() driver_infrastructure.ConnectionPluginFactory {
	return FailoverPluginFactory{}
}

// FailoverPlugin replaces the session's connection when it fails with a network error. The call
// that hit the error always returns a failover error so the application can restore its session.
type FailoverPlugin struct {
	BaseConnectionPlugin
	pluginService           driver_infrastructure.PluginService
	hostListProviderService driver_infrastructure.HostListProviderService
	props                   map[string]string
	enableFailoverSetting   bool
	rdsUrlType              utils.RdsUrlType
	explicitlyReadOnly      *bool
	explicitlyAutoCommit    bool
	isInTransaction         bool
	isClosed                bool
	closedExplicitly        bool
	closedReason            string
	lastErrorDealtWith      error
	readerFailoverHandler   ReaderFailoverHandler
	writerFailoverHandler   WriterFailoverHandler
	readerHandlerFactory    ReaderFailoverHandlerFactory
	writerHandlerFactory    WriterFailoverHandlerFactory
	topologyCacheService    *driver_infrastructure.TopologyCacheService
	monitorService          *driver_infrastructure.ClusterTopologyMonitorService
	metrics                 *FailoverMetrics
	failoverLock            sync.Mutex
}

func NewFailoverPlugin(pluginService driver_infrastructure.PluginService, props map[string]string) *FailoverPlugin {
	return NewFailoverPluginWithHandlers(pluginService, props, DefaultReaderFailoverHandlerFactory, DefaultWriterFailoverHandlerFactory)
}

func NewFailoverPluginWithHandlers(
	pluginService driver_infrastructure.PluginService,
	props map[string]string,
	readerHandlerFactory ReaderFailoverHandlerFactory,
	writerHandlerFactory WriterFailoverHandlerFactory) *FailoverPlugin {
	return &FailoverPlugin{
		pluginService:         pluginService,
		props:                 props,
		enableFailoverSetting: property_util.GetBoolProperty(props, property_util.ENABLE_CLUSTER_AWARE_FAILOVER),
		rdsUrlType:            utils.OTHER,
		explicitlyAutoCommit:  true,
		readerHandlerFactory:  readerHandlerFactory,
		writerHandlerFactory:  writerHandlerFactory,
		topologyCacheService:  driver_infrastructure.DefaultTopologyCacheService,
		monitorService:        driver_infrastructure.DefaultClusterTopologyMonitorService,
		metrics:               DefaultFailoverMetrics(),
	}
}

func (p *FailoverPlugin) GetPluginCode() string {
	return driver_infrastructure.FAILOVER_PLUGIN_CODE
}

func (p *FailoverPlugin) GetSubscribedMethods() []utils.Method {
	return append([]utils.Method{
		utils.CONNECT,
		utils.INIT_HOST_PROVIDER,
		utils.NOTIFY_HOST_LIST_CHANGED,
		utils.CONN_CLOSE,
		utils.CONN_ABORT,
		utils.CONN_GET_AUTO_COMMIT,
		utils.CONN_GET_READ_ONLY,
		utils.CONN_GET_TRANSACTION_ISOLATION,
	}, utils.NETWORK_BOUND_METHODS...)
}

func (p *FailoverPlugin) InitHostProvider(
	props map[string]string,
	hostListProviderService driver_infrastructure.HostListProviderService,
	initHostProviderFunc func() error) error {
	if !p.enableFailoverSetting {
		return initHostProviderFunc()
	}

	p.hostListProviderService = hostListProviderService
	if hostListProviderService.IsStaticHostListProvider() {
		if dialect, ok := hostListProviderService.GetDialect().(driver_infrastructure.TopologyAwareDialect); ok {
			hostListProviderService.SetHostListProvider(driver_infrastructure.NewRdsHostListProvider(
				p.pluginService, dialect, props, p.topologyCacheService, p.monitorService))
		} else {
			slog.Debug(error_util.GetMessage("Failover.staticHostListProvider", hostListProviderService.GetDialect().GetDialectCode()))
		}
	}

	p.readerFailoverHandler = p.readerHandlerFactory(p.pluginService, props)
	p.writerFailoverHandler = p.writerHandlerFactory(p.pluginService, p.readerFailoverHandler, props)

	if err := initHostProviderFunc(); err != nil {
		return err
	}

	hosts, err := utils.GetHostsFromProps(props)
	if err != nil {
		return err
	}
	if len(hosts) > 0 {
		p.rdsUrlType = utils.IdentifyRdsUrlType(hosts[0].Host)
	}
	if p.rdsUrlType.IsRdsCluster {
		readOnly := p.rdsUrlType == utils.RDS_READER_CLUSTER
		p.explicitlyReadOnly = &readOnly
		slog.Debug(error_util.GetMessage("Failover.parameterValue", "explicitlyReadOnly", readOnly))
	}
	return nil
}

func (p *FailoverPlugin) Connect(
	hostInfo *host_info_util.HostInfo,
	props map[string]string,
	isInitialConnection bool,
	connectFunc driver_infrastructure.ConnectFunc) (driver.Conn, error) {
	conn, err := connectFunc()
	if err != nil {
		return nil, err
	}
	if isInitialConnection {
		if err = p.pluginService.RefreshHostList(conn); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

func (p *FailoverPlugin) NotifyHostListChanged(changes map[string]map[driver_infrastructure.HostChangeOptions]bool) {
	if !p.enableFailoverSetting {
		return
	}
	for host, hostChanges := range changes {
		slog.Debug(error_util.GetMessage("Failover.hostChanges", host, hostChangesString(hostChanges)))
	}

	currentHost := p.pluginService.GetCurrentHostInfo()
	if currentHost.IsNil() {
		return
	}
	if !isHostStillValid(currentHost.GetHostAndPort(), changes) {
		slog.Debug(error_util.GetMessage("Failover.invalidHost", currentHost.String()))
		return
	}
	for _, alias := range currentHost.Aliases() {
		if !isHostStillValid(alias, changes) {
			slog.Debug(error_util.GetMessage("Failover.invalidHost", currentHost.String()))
			return
		}
	}
}

func isHostStillValid(host string, changes map[string]map[driver_infrastructure.HostChangeOptions]bool) bool {
	hostChanges, ok := changes[host]
	if !ok {
		return true
	}
	return !hostChanges[driver_infrastructure.HOST_DELETED] && !hostChanges[driver_infrastructure.WENT_DOWN]
}

func hostChangesString(changes map[driver_infrastructure.HostChangeOptions]bool) string {
	result := ""
	for option := range changes {
		if result != "" {
			result += ", "
		}
		result += option.String()
	}
	return result
}

func (p *FailoverPlugin) Execute(
	_ driver.Conn,
	method utils.Method,
	executeFunc driver_infrastructure.ExecuteFunc,
	methodArgs ...any) (wrappedReturnValue any, wrappedReturnValue2 any, wrappedOk bool, wrappedErr error) {
	if !p.enableFailoverSetting || p.canDirectExecute(method) {
		wrappedReturnValue, wrappedReturnValue2, wrappedOk, wrappedErr = executeFunc()
		if method == utils.CONN_CLOSE || method == utils.CONN_ABORT {
			p.isClosed = true
			p.closedExplicitly = true
		}
		return
	}

	if p.isClosed && !allowedOnClosedConnection.Contains(method) {
		return nil, nil, false, p.invalidInvocationOnClosedConnection()
	}

	if err := p.updateTopology(false); err != nil {
		return nil, nil, false, p.dealWithError(err)
	}

	wrappedReturnValue, wrappedReturnValue2, wrappedOk, wrappedErr = executeFunc()
	if wrappedErr != nil {
		return nil, nil, false, p.dealWithError(wrappedErr)
	}

	if err := p.performSpecialMethodHandlingIfRequired(method, methodArgs); err != nil {
		return nil, nil, false, err
	}
	return
}

func (p *FailoverPlugin) canDirectExecute(method utils.Method) bool {
	return utils.CLOSING_METHODS.Contains(method)
}

func (p *FailoverPlugin) invalidInvocationOnClosedConnection() error {
	if p.closedExplicitly {
		reason := error_util.GetMessage("Failover.noOperationsAfterConnectionClosed")
		if p.closedReason != "" {
			reason += " " + p.closedReason
		}
		return error_util.NewClosedConnectionError(reason)
	}

	p.isClosed = false
	p.closedReason = ""
	return p.pickNewConnection(p.pluginService.GetCurrentHostInfo())
}

// IsFailoverEnabled is false behind an RDS proxy, with an empty topology, and on multi-writer clusters.
func (p *FailoverPlugin) IsFailoverEnabled() bool {
	hosts := p.pluginService.GetHosts()
	return p.enableFailoverSetting &&
		p.rdsUrlType != utils.RDS_PROXY &&
		len(hosts) != 0 &&
		host_info_util.CountWriters(hosts) <= 1
}

func (p *FailoverPlugin) updateTopology(forceUpdate bool) error {
	conn := p.pluginService.GetCurrentConnection()
	if !p.IsFailoverEnabled() || conn == nil || p.pluginService.IsClosed(conn) {
		return nil
	}
	if forceUpdate {
		return p.pluginService.ForceRefreshHostList(conn)
	}
	return p.pluginService.RefreshHostList(conn)
}

// dealWithError runs failover at most once for a given error value.
func (p *FailoverPlugin) dealWithError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, driver.ErrSkip) {
		return err
	}
	slog.Debug(error_util.GetMessage("Failover.detectedError", err.Error()))
	if isSameError(p.lastErrorDealtWith, err) || !p.shouldErrorTriggerConnectionSwitch(err) {
		return err
	}
	p.lastErrorDealtWith = err

	failedHost := p.pluginService.GetCurrentHostInfo()
	p.invalidateCurrentConnection()
	return p.pickNewConnection(failedHost)
}

// isSameError reports whether b is a repeated delivery of a. Errors of a type that cannot be
// compared with == are the same when they hold equal values.
func isSameError(a error, b error) bool {
	if a == nil || b == nil {
		return false
	}
	typeA := reflect.TypeOf(a)
	if typeA != reflect.TypeOf(b) {
		return false
	}
	if !typeA.Comparable() {
		return reflect.DeepEqual(a, b)
	}
	return a == b
}

func (p *FailoverPlugin) shouldErrorTriggerConnectionSwitch(err error) bool {
	if error_util.IsFailoverSignal(err) {
		return false
	}
	if !p.IsFailoverEnabled() {
		slog.Debug(error_util.GetMessage("Failover.failoverDisabled"))
		return false
	}
	return p.pluginService.IsNetworkError(err)
}

// invalidateCurrentConnection rolls back and closes the current connection and marks its host down.
func (p *FailoverPlugin) invalidateCurrentConnection() {
	conn := p.pluginService.GetCurrentConnection()
	if conn == nil {
		return
	}

	originalHost := p.pluginService.GetCurrentHostInfo()
	if p.pluginService.IsInTransaction() {
		p.isInTransaction = true
		ctx, cancel := context.WithTimeout(context.Background(), ROLLBACK_TIMEOUT)
		_ = utils.ExecQuery(ctx, conn, "ROLLBACK")
		cancel()
	}

	if !p.pluginService.IsClosed(conn) {
		_ = conn.Close()
	}

	if originalHost.IsNil() {
		return
	}
	err := p.pluginService.SetCurrentConnection(conn, originalHost.WithAvailability(host_info_util.UNAVAILABLE), nil)
	if err != nil {
		slog.Debug(error_util.GetMessage("Failover.failedToUpdateCurrentHostAvailability"))
	}
	p.pluginService.SetAvailability(originalHost.AllAliases(), host_info_util.UNAVAILABLE)
}

func (p *FailoverPlugin) pickNewConnection(failedHost *host_info_util.HostInfo) error {
	if p.isClosed && p.closedExplicitly {
		slog.Debug(error_util.GetMessage("Failover.connectionExplicitlyClosed"))
		return error_util.NewClosedConnectionError(error_util.GetMessage("Failover.noOperationsAfterConnectionClosed"))
	}

	if p.pluginService.GetCurrentConnection() == nil && !p.shouldAttemptReaderConnection() {
		writer := host_info_util.GetWriter(p.pluginService.GetHosts())
		if err := p.connectTo(writer); err != nil {
			return p.failover(writer)
		}
		return error_util.FailoverSuccessError
	}
	return p.failover(failedHost)
}

func (p *FailoverPlugin) shouldAttemptReaderConnection() bool {
	if !p.isExplicitlyReadOnly() {
		return false
	}
	return len(host_info_util.GetReaders(p.pluginService.GetHosts())) > 0
}

func (p *FailoverPlugin) isExplicitlyReadOnly() bool {
	return p.explicitlyReadOnly != nil && *p.explicitlyReadOnly
}

func (p *FailoverPlugin) shouldPerformWriterFailover() bool {
	return !p.isExplicitlyReadOnly()
}

// failover always returns an error: a signal error when a new connection is in place, or a
// FailoverFailed error.
func (p *FailoverPlugin) failover(failedHost *host_info_util.HostInfo) error {
	p.failoverLock.Lock()
	defer p.failoverLock.Unlock()

	var err error
	if p.shouldPerformWriterFailover() {
		err = p.failoverWriter()
	} else {
		err = p.failoverReader(failedHost)
	}
	if err != nil {
		p.isClosed = true
		p.closedReason = err.Error()
		return err
	}

	if p.isInTransaction || p.pluginService.IsInTransaction() {
		p.isInTransaction = false
		p.pluginService.SetInTransaction(false)
		slog.Info(error_util.GetMessage("Failover.transactionResolutionUnknownError"))
		return error_util.TransactionResolutionUnknownError
	}
	slog.Warn(error_util.GetMessage("Failover.connectionChangedError"))
	return error_util.FailoverSuccessError
}

func (p *FailoverPlugin) failoverWriter() error {
	start := time.Now()
	p.metrics.WriterTriggered.Inc()
	defer func() {
		p.metrics.observeDuration(writerMode, start)
		slog.Info(error_util.GetMessage("Failover.writerFailoverElapsed", time.Since(start)))
	}()

	slog.Info(error_util.GetMessage("Failover.startWriterFailover"))
	currentHost := p.pluginService.GetCurrentHostInfo()
	result := p.writerFailoverHandler.Failover(context.Background(), p.pluginService.GetHosts())
	if result.Err != nil && !result.Connected {
		slog.Debug(error_util.GetMessage("Failover.writerFailoverError", result.Err.Error()))
	}
	if !result.Connected {
		return p.processFailoverFailure(p.metrics.WriterFailed, error_util.GetMessage("Failover.unableToConnectToWriter"))
	}

	writerHost := currentHost
	if result.IsNewHost {
		writerHost = host_info_util.GetWriter(result.Topology)
	}
	if writerHost.IsNil() {
		_ = result.Conn.Close()
		return p.processFailoverFailure(p.metrics.WriterFailed, error_util.GetMessage("Failover.noWriterHost"))
	}
	writerHost = writerHost.WithAvailability(host_info_util.AVAILABLE)

	if err := p.pluginService.SetCurrentConnection(result.Conn, writerHost, nil); err != nil {
		_ = result.Conn.Close()
		p.metrics.WriterFailed.Inc()
		return error_util.NewFailoverFailedErrorWithCause(err.Error(), err)
	}
	slog.Info(error_util.GetMessage("Failover.establishedConnection", writerHost.String()))

	if err := p.updateTopology(true); err != nil {
		slog.Warn(error_util.GetMessage("Failover.unableToRefreshHostList", err.Error()))
	}
	p.metrics.WriterSuccess.Inc()
	return nil
}

func (p *FailoverPlugin) failoverReader(failedHost *host_info_util.HostInfo) error {
	start := time.Now()
	p.metrics.ReaderTriggered.Inc()
	defer func() {
		p.metrics.observeDuration(readerMode, start)
		slog.Info(error_util.GetMessage("Failover.readerFailoverElapsed", time.Since(start)))
	}()

	slog.Info(error_util.GetMessage("Failover.startReaderFailover"))
	var failed *host_info_util.HostInfo
	if !failedHost.IsNil() && failedHost.Availability == host_info_util.AVAILABLE {
		failed = failedHost
	}
	var oldAliases []string
	if currentHost := p.pluginService.GetCurrentHostInfo(); !currentHost.IsNil() {
		oldAliases = currentHost.Aliases()
	}

	result := p.readerFailoverHandler.Failover(context.Background(), p.pluginService.GetHosts(), failed)
	if result.Err != nil && !result.Connected {
		slog.Debug(error_util.GetMessage("Failover.readerFailoverError", result.Err.Error()))
	}
	if !result.Connected {
		return p.processFailoverFailure(p.metrics.ReaderFailed, error_util.GetMessage("Failover.unableToConnectToReader"))
	}

	newHost := result.Host.WithoutAliases(oldAliases...)
	if err := p.pluginService.SetCurrentConnection(result.Conn, newHost, nil); err != nil {
		_ = result.Conn.Close()
		p.metrics.ReaderFailed.Inc()
		return error_util.NewFailoverFailedErrorWithCause(err.Error(), err)
	}
	slog.Info(error_util.GetMessage("Failover.establishedConnection", newHost.String()))

	if err := p.updateTopology(true); err != nil {
		slog.Warn(error_util.GetMessage("Failover.unableToRefreshHostList", err.Error()))
	}
	p.metrics.ReaderSuccess.Inc()
	return nil
}

func (p *FailoverPlugin) processFailoverFailure(failedCounter prometheus.Counter, message string) error {
	slog.Error(message)
	failedCounter.Inc()
	return error_util.NewFailoverFailedError(message)
}

func (p *FailoverPlugin) performSpecialMethodHandlingIfRequired(method utils.Method, methodArgs []any) error {
	switch method {
	case utils.CONN_SET_AUTO_COMMIT:
		if autoCommit, ok := firstBoolArg(methodArgs); ok {
			p.explicitlyAutoCommit = autoCommit
			p.pluginService.SetInTransaction(!autoCommit)
		}
	case utils.TX_COMMIT, utils.TX_ROLLBACK:
		p.pluginService.SetInTransaction(false)
	case utils.CONN_SET_READ_ONLY:
		if readOnly, ok := firstBoolArg(methodArgs); ok {
			p.explicitlyReadOnly = &readOnly
			slog.Debug(error_util.GetMessage("Failover.parameterValue", "explicitlyReadOnly", readOnly))
			return p.connectToWriterIfRequired(readOnly)
		}
	}
	return nil
}

func firstBoolArg(methodArgs []any) (bool, bool) {
	if len(methodArgs) == 0 {
		return false, false
	}
	value, ok := methodArgs[0].(bool)
	return value, ok
}

func (p *FailoverPlugin) connectToWriterIfRequired(readOnly bool) error {
	if readOnly || len(p.pluginService.GetHosts()) == 0 {
		return nil
	}
	currentHost := p.pluginService.GetCurrentHostInfo()
	if !currentHost.IsNil() && currentHost.Role == host_info_util.WRITER {
		return nil
	}

	writer := host_info_util.GetWriter(p.pluginService.GetHosts())
	if err := p.connectTo(writer); err != nil {
		return p.failover(writer)
	}
	return nil
}

func (p *FailoverPlugin) connectTo(host *host_info_util.HostInfo) error {
	if host.IsNil() {
		return error_util.NewGenericAwsWrapperError(error_util.GetMessage("Failover.noWriterHost"))
	}
	conn, err := p.pluginService.Connect(host, property_util.CopyProps(p.props))
	if err != nil {
		role := "reader"
		if host.Role == host_info_util.WRITER {
			role = "writer"
		}
		slog.Warn(error_util.GetMessage("Failover.connectionToHostFailed", role, host.GetHostAndPort(), err.Error()))
		return err
	}
	if err = p.switchCurrentConnectionTo(host, conn); err != nil {
		_ = conn.Close()
		return err
	}
	slog.Debug(error_util.GetMessage("Failover.establishedConnection", host.String()))
	return nil
}

// switchCurrentConnectionTo records the read-only mode conn should run with and makes conn current.
// The plugin service replays the tracked session state on conn before the swap.
func (p *FailoverPlugin) switchCurrentConnectionTo(host *host_info_util.HostInfo, conn driver.Conn) error {
	sessionState := p.pluginService.GetSessionState()
	var readOnly bool
	switch {
	case host.Role == host_info_util.WRITER:
		readOnly = p.isExplicitlyReadOnly()
	case p.explicitlyReadOnly != nil:
		readOnly = *p.explicitlyReadOnly
	default:
		readOnly = sessionState.ReadOnly.GetOrDefault(false)
	}
	sessionState.ReadOnly.SetValue(readOnly)

	if err := p.pluginService.SetCurrentConnection(conn, host, nil); err != nil {
		return err
	}
	p.pluginService.SetInTransaction(false)
	return nil
}
