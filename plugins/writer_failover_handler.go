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
	"log/slog"
	"time"

	"github.com/aws/aws-advanced-go-wrapper/failover/driver_infrastructure"
	"github.com/aws/aws-advanced-go-wrapper/failover/error_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/host_info_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/property_util"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

const (
	RECONNECT_WRITER_TASK = "TaskA"
	WAIT_NEW_WRITER_TASK  = "TaskB"
)

type WriterFailoverResult struct {
	Connected bool
	IsNewHost bool
	Topology  []*host_info_util.HostInfo
	Conn      driver.Conn
	TaskName  string
	Err       error
}

type WriterFailoverHandler interface {
	Failover(ctx context.Context, hosts []*host_info_util.HostInfo) WriterFailoverResult
}

type WriterFailoverHandlerFactory func(
	pluginService driver_infrastructure.PluginService,
	readerFailoverHandler ReaderFailoverHandler,
	props map[string]string) WriterFailoverHandler

// ClusterAwareWriterFailoverHandler races two tasks: reconnecting to the original writer, and
// watching the topology from a reader until a new writer is promoted.
type ClusterAwareWriterFailoverHandler struct {
	pluginService           driver_infrastructure.PluginService
	readerFailoverHandler   ReaderFailoverHandler
	props                   map[string]string
	failoverTimeout         time.Duration
	topologyRefreshRate     time.Duration
	reconnectWriterInterval time.Duration
	clock                   clockwork.Clock
}

func NewClusterAwareWriterFailoverHandler(
	pluginService driver_infrastructure.PluginService,
	readerFailoverHandler ReaderFailoverHandler,
	props map[string]string,
	failoverTimeout time.Duration,
	topologyRefreshRate time.Duration,
	reconnectWriterInterval time.Duration,
	clock clockwork.Clock) *ClusterAwareWriterFailoverHandler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ClusterAwareWriterFailoverHandler{
		pluginService:           pluginService,
		readerFailoverHandler:   readerFailoverHandler,
		props:                   props,
		failoverTimeout:         failoverTimeout,
		topologyRefreshRate:     topologyRefreshRate,
		reconnectWriterInterval: reconnectWriterInterval,
		clock:                   clock,
	}
}

func DefaultWriterFailoverHandlerFactory(
	pluginService driver_infrastructure.PluginService,
	readerFailoverHandler ReaderFailoverHandler,
	props map[string]string) WriterFailoverHandler {
	return NewClusterAwareWriterFailoverHandler(
		pluginService,
		readerFailoverHandler,
		props,
		property_util.GetDurationMs(props, property_util.FAILOVER_TIMEOUT_MS),
		property_util.GetDurationMs(props, property_util.FAILOVER_CLUSTER_TOPOLOGY_REFRESH_RATE_MS),
		property_util.GetDurationMs(props, property_util.FAILOVER_WRITER_RECONNECT_INTERVAL_MS),
		nil)
}

func (w *ClusterAwareWriterFailoverHandler) Failover(ctx context.Context, hosts []*host_info_util.HostInfo) WriterFailoverResult {
	originalWriter := host_info_util.GetWriter(hosts)
	if originalWriter.IsNil() {
		slog.Error(host_info_util.LogTopology(hosts, error_util.GetMessage("WriterFailoverHandler.noWriterHost")))
		return WriterFailoverResult{}
	}

	ctx, cancel := context.WithTimeout(ctx, w.failoverTimeout)
	defer cancel()

	results := make(chan WriterFailoverResult, 2)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		results <- w.reconnectToWriter(groupCtx, originalWriter)
		return nil
	})
	group.Go(func() error {
		results <- w.waitForNewWriter(groupCtx, hosts, originalWriter)
		return nil
	})

	pending := 2
	for pending > 0 {
		select {
		case result := <-results:
			pending--
			if result.Connected {
				cancel()
				w.closeLateResults(group, results, pending)
				w.logTaskSuccess(result)
				return result
			}
		case <-ctx.Done():
			w.closeLateResults(group, results, pending)
			slog.Info(error_util.GetMessage("WriterFailoverHandler.failoverTimeout", w.failoverTimeout))
			return WriterFailoverResult{}
		}
	}
	slog.Info(error_util.GetMessage("WriterFailoverHandler.failedToConnectToWriterInstance"))
	return WriterFailoverResult{}
}

// closeLateResults waits in the background for the remaining tasks and closes anything they opened.
func (w *ClusterAwareWriterFailoverHandler) closeLateResults(group *errgroup.Group, results chan WriterFailoverResult, pending int) {
	go func() {
		for i := 0; i < pending; i++ {
			if result := <-results; result.Conn != nil {
				_ = result.Conn.Close()
			}
		}
		_ = group.Wait()
	}()
}

func (w *ClusterAwareWriterFailoverHandler) logTaskSuccess(result WriterFailoverResult) {
	if result.IsNewHost {
		newWriter := host_info_util.GetWriter(result.Topology)
		slog.Info(error_util.GetMessage("WriterFailoverHandler.successfulConnectionNewWriter", result.TaskName, newWriter))
		return
	}
	slog.Info(error_util.GetMessage("WriterFailoverHandler.successfulReconnectionOriginalWriter", result.TaskName))
}

// reconnectToWriter is task A. It only succeeds if the original writer is still the writer.
func (w *ClusterAwareWriterFailoverHandler) reconnectToWriter(ctx context.Context, originalWriter *host_info_util.HostInfo) WriterFailoverResult {
	slog.Debug(error_util.GetMessage("WriterFailoverHandler.taskAAttemptReconnectToWriterInstance", originalWriter.GetHostAndPort()))

	var conn driver.Conn
	var topology []*host_info_util.HostInfo
	operation := func() error {
		newConn, err := w.pluginService.ForceConnect(originalWriter, property_util.CopyProps(w.props))
		if err != nil {
			return err
		}
		latestTopology, err := w.pluginService.GetHostListProvider().ForceRefresh(newConn)
		if err != nil {
			_ = newConn.Close()
			return err
		}
		if len(latestTopology) == 0 {
			_ = newConn.Close()
			return error_util.NewGenericAwsWrapperError(error_util.GetMessage("WriterFailoverHandler.emptyTopology"))
		}
		if !isSameHost(host_info_util.GetWriter(latestTopology), originalWriter) {
			_ = newConn.Close()
			return backoff.Permanent(error_util.NewGenericAwsWrapperError(
				error_util.GetMessage("WriterFailoverHandler.taskAOriginalWriterNotWriter", originalWriter.GetHostAndPort())))
		}
		conn = newConn
		topology = latestTopology
		return nil
	}

	retryPolicy := backoff.WithContext(backoff.NewConstantBackOff(w.reconnectWriterInterval), ctx)
	err := backoff.RetryNotify(operation, retryPolicy, func(err error, next time.Duration) {
		slog.Debug(error_util.GetMessage("WriterFailoverHandler.taskAReconnectFailed", err.Error(), next))
	})
	if err != nil {
		slog.Debug(error_util.GetMessage("WriterFailoverHandler.taskAFinished", err.Error()))
		return WriterFailoverResult{TaskName: RECONNECT_WRITER_TASK, Err: err}
	}

	w.pluginService.SetAvailability(originalWriter.AllAliases(), host_info_util.AVAILABLE)
	return WriterFailoverResult{
		Connected: true,
		IsNewHost: false,
		Topology:  topology,
		Conn:      conn,
		TaskName:  RECONNECT_WRITER_TASK,
	}
}

// waitForNewWriter is task B. It reads the topology through a reader connection until another
// host is reported as writer, then connects to it.
func (w *ClusterAwareWriterFailoverHandler) waitForNewWriter(
	ctx context.Context,
	hosts []*host_info_util.HostInfo,
	originalWriter *host_info_util.HostInfo) WriterFailoverResult {
	slog.Debug(error_util.GetMessage("WriterFailoverHandler.taskBAttemptConnectionToNewWriterInstance"))

	var readerConn driver.Conn
	var readerHost *host_info_util.HostInfo
	closeReader := func() {
		if readerConn != nil {
			_ = readerConn.Close()
			readerConn = nil
		}
	}
	currentTopology := hosts

	for {
		if readerConn == nil {
			readerResult := w.readerFailoverHandler.GetReaderConnection(ctx, currentTopology)
			if !readerResult.Connected {
				return WriterFailoverResult{TaskName: WAIT_NEW_WRITER_TASK, Err: readerResult.Err}
			}
			readerConn = readerResult.Conn
			readerHost = readerResult.Host
			slog.Debug(error_util.GetMessage("WriterFailoverHandler.taskBConnectedToReader", readerHost.GetHostAndPort()))
		}

		topology, err := w.pluginService.GetHostListProvider().ForceRefresh(readerConn)
		if err != nil {
			slog.Debug(error_util.GetMessage("WriterFailoverHandler.taskBReaderConnectionFailed", readerHost.GetHostAndPort(), err.Error()))
			closeReader()
		} else if len(topology) > 0 {
			currentTopology = topology
			newWriter := host_info_util.GetWriter(topology)
			if !newWriter.IsNil() && !isSameHost(newWriter, originalWriter) {
				if isSameHost(newWriter, readerHost) {
					slog.Debug(error_util.GetMessage("WriterFailoverHandler.taskBReaderPromoted", newWriter.GetHostAndPort()))
					conn := readerConn
					readerConn = nil
					return w.newWriterResult(conn, newWriter, topology)
				}
				conn, connErr := w.pluginService.ForceConnect(newWriter, property_util.CopyProps(w.props))
				if connErr == nil {
					closeReader()
					return w.newWriterResult(conn, newWriter, topology)
				}
				slog.Debug(error_util.GetMessage("WriterFailoverHandler.taskBFailedToConnectToWriter", newWriter.GetHostAndPort(), connErr.Error()))
				w.pluginService.SetAvailability(newWriter.AllAliases(), host_info_util.UNAVAILABLE)
			}
		}

		select {
		case <-ctx.Done():
			closeReader()
			return WriterFailoverResult{TaskName: WAIT_NEW_WRITER_TASK, Err: ctx.Err()}
		case <-w.clock.After(w.topologyRefreshRate):
		}
	}
}

func (w *ClusterAwareWriterFailoverHandler) newWriterResult(
	conn driver.Conn,
	newWriter *host_info_util.HostInfo,
	topology []*host_info_util.HostInfo) WriterFailoverResult {
	w.pluginService.SetAvailability(newWriter.AllAliases(), host_info_util.AVAILABLE)
	return WriterFailoverResult{
		Connected: true,
		IsNewHost: true,
		Topology:  topology,
		Conn:      conn,
		TaskName:  WAIT_NEW_WRITER_TASK,
	}
}

func isSameHost(a *host_info_util.HostInfo, b *host_info_util.HostInfo) bool {
	if a.IsNil() || b.IsNil() {
		return false
	}
	return a.GetHostAndPort() == b.GetHostAndPort()
}
