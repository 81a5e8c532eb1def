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
	"slices"
	"time"

	"github.com/aws/aws-advanced-go-wrapper/failover/driver_infrastructure"
	"github.com/aws/aws-advanced-go-wrapper/failover/error_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/host_info_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/property_util"

	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// READER_FAILOVER_ROUND_DELAY is the pause between two passes over the candidate list.
var READER_FAILOVER_ROUND_DELAY = time.Second

type ReaderFailoverResult struct {
	Connected bool
	Conn      driver.Conn
	Host      *host_info_util.HostInfo
	Err       error
}

type ReaderFailoverHandler interface {
	// Failover connects to any host other than failedHost, readers first.
	Failover(ctx context.Context, hosts []*host_info_util.HostInfo, failedHost *host_info_util.HostInfo) ReaderFailoverResult
	// GetReaderConnection connects to a reader, or to the writer when the topology has no readers.
	GetReaderConnection(ctx context.Context, hosts []*host_info_util.HostInfo) ReaderFailoverResult
}

type ReaderFailoverHandlerFactory func(
	pluginService driver_infrastructure.PluginService,
	props map[string]string) ReaderFailoverHandler

type ClusterAwareReaderFailoverHandler struct {
	pluginService        driver_infrastructure.PluginService
	props                map[string]string
	failoverTimeout      time.Duration
	readerConnectTimeout time.Duration
	clock                clockwork.Clock
}

func NewClusterAwareReaderFailoverHandler(
	pluginService driver_infrastructure.PluginService,
	props map[string]string,
	failoverTimeout time.Duration,
	readerConnectTimeout time.Duration,
	clock clockwork.Clock) *ClusterAwareReaderFailoverHandler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ClusterAwareReaderFailoverHandler{
		pluginService:        pluginService,
		props:                props,
		failoverTimeout:      failoverTimeout,
		readerConnectTimeout: readerConnectTimeout,
		clock:                clock,
	}
}

func DefaultReaderFailoverHandlerFactory(pluginService driver_infrastructure.PluginService, props map[string]string) ReaderFailoverHandler {
	return NewClusterAwareReaderFailoverHandler(
		pluginService,
		props,
		property_util.GetDurationMs(props, property_util.FAILOVER_TIMEOUT_MS),
		property_util.GetDurationMs(props, property_util.FAILOVER_READER_CONNECT_TIMEOUT_MS),
		nil)
}

func (h *ClusterAwareReaderFailoverHandler) Failover(
	ctx context.Context,
	hosts []*host_info_util.HostInfo,
	failedHost *host_info_util.HostInfo) ReaderFailoverResult {
	if len(hosts) == 0 {
		slog.Info(error_util.GetMessage("ReaderFailoverHandler.invalidTopology", "Failover"))
		return ReaderFailoverResult{}
	}

	ctx, cancel := context.WithTimeout(ctx, h.failoverTimeout)
	defer cancel()

	if !failedHost.IsNil() {
		h.pluginService.SetAvailability(failedHost.AllAliases(), host_info_util.UNAVAILABLE)
	}
	result := h.connectToAnyHost(ctx, h.getHostsByPriority(hosts, failedHost))
	if !result.Connected {
		slog.Info(error_util.GetMessage("ReaderFailoverHandler.timeout", h.failoverTimeout))
	}
	return result
}

func (h *ClusterAwareReaderFailoverHandler) GetReaderConnection(ctx context.Context, hosts []*host_info_util.HostInfo) ReaderFailoverResult {
	if len(hosts) == 0 {
		slog.Info(error_util.GetMessage("ReaderFailoverHandler.invalidTopology", "GetReaderConnection"))
		return ReaderFailoverResult{}
	}

	ctx, cancel := context.WithTimeout(ctx, h.failoverTimeout)
	defer cancel()
	return h.connectToAnyHost(ctx, h.getReaderHostsByPriority(hosts))
}

// connectToAnyHost walks the candidates until one accepts a connection or ctx is done.
func (h *ClusterAwareReaderFailoverHandler) connectToAnyHost(ctx context.Context, candidates []*host_info_util.HostInfo) ReaderFailoverResult {
	for {
		result := h.getConnectionFromHostGroup(ctx, candidates)
		if result.Connected {
			return result
		}
		select {
		case <-ctx.Done():
			return ReaderFailoverResult{Err: ctx.Err()}
		case <-h.clock.After(READER_FAILOVER_ROUND_DELAY):
		}
	}
}

func (h *ClusterAwareReaderFailoverHandler) getConnectionFromHostGroup(ctx context.Context, candidates []*host_info_util.HostInfo) ReaderFailoverResult {
	var attemptErrors *multierror.Error
	for i := 0; i < len(candidates); i += 2 {
		if ctx.Err() != nil {
			break
		}
		result, err := h.getResultFromNextTaskBatch(ctx, candidates[i:min(i+2, len(candidates))])
		if result.Connected {
			return result
		}
		if err != nil {
			attemptErrors = multierror.Append(attemptErrors, err)
		}
	}
	if err := attemptErrors.ErrorOrNil(); err != nil {
		slog.Debug(error_util.GetMessage("ReaderFailoverHandler.failedReaderConnections", err.Error()))
	}
	return ReaderFailoverResult{}
}

// getResultFromNextTaskBatch tries the given hosts at the same time and keeps the first connection.
func (h *ClusterAwareReaderFailoverHandler) getResultFromNextTaskBatch(ctx context.Context, batch []*host_info_util.HostInfo) (ReaderFailoverResult, error) {
	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan ReaderFailoverResult, len(batch))
	var group errgroup.Group
	for _, host := range batch {
		group.Go(func() error {
			results <- h.attemptConnection(batchCtx, host)
			return nil
		})
	}
	go func() {
		_ = group.Wait()
		close(results)
	}()

	var winner ReaderFailoverResult
	var attemptErrors *multierror.Error
	for result := range results {
		switch {
		case result.Connected && !winner.Connected:
			winner = result
			cancel()
		case result.Connected:
			_ = result.Conn.Close()
		case result.Err != nil:
			attemptErrors = multierror.Append(attemptErrors, result.Err)
		}
	}
	return winner, attemptErrors.ErrorOrNil()
}

type connectAttempt struct {
	conn driver.Conn
	err  error
}

// attemptConnection gives up after the reader connect timeout; a connection that arrives later is closed.
func (h *ClusterAwareReaderFailoverHandler) attemptConnection(ctx context.Context, host *host_info_util.HostInfo) ReaderFailoverResult {
	attemptCtx, cancel := context.WithTimeout(ctx, h.readerConnectTimeout)
	defer cancel()

	slog.Debug(error_util.GetMessage("ReaderFailoverHandler.attemptingReaderConnection", host.GetHostAndPort()))
	attempts := make(chan connectAttempt, 1)
	go func() {
		conn, err := h.pluginService.ForceConnect(host, property_util.CopyProps(h.props))
		attempts <- connectAttempt{conn, err}
	}()

	select {
	case attempt := <-attempts:
		if attempt.err != nil {
			slog.Debug(error_util.GetMessage("ReaderFailoverHandler.failedReaderConnection", host.GetHostAndPort(), attempt.err.Error()))
			h.pluginService.SetAvailability(host.AllAliases(), host_info_util.UNAVAILABLE)
			return ReaderFailoverResult{Host: host, Err: attempt.err}
		}
		slog.Debug(error_util.GetMessage("ReaderFailoverHandler.successfulReaderConnection", host.GetHostAndPort()))
		h.pluginService.SetAvailability(host.AllAliases(), host_info_util.AVAILABLE)
		return ReaderFailoverResult{Connected: true, Conn: attempt.conn, Host: host.WithAvailability(host_info_util.AVAILABLE)}
	case <-attemptCtx.Done():
		go func() {
			if attempt := <-attempts; attempt.conn != nil {
				_ = attempt.conn.Close()
			}
		}()
		return ReaderFailoverResult{
			Host: host,
			Err:  error_util.NewGenericAwsWrapperError(error_util.GetMessage("ReaderFailoverHandler.attemptTimedOut", host.GetHostAndPort())),
		}
	}
}

// getHostsByPriority orders available readers by weight, then the writer, then readers known to be down.
func (h *ClusterAwareReaderFailoverHandler) getHostsByPriority(hosts []*host_info_util.HostInfo, failedHost *host_info_util.HostInfo) []*host_info_util.HostInfo {
	var activeReaders, downReaders []*host_info_util.HostInfo
	var writer *host_info_util.HostInfo
	for _, host := range hosts {
		if !failedHost.IsNil() && host.GetHostAndPort() == failedHost.GetHostAndPort() {
			continue
		}
		switch {
		case host.Role == host_info_util.WRITER:
			writer = host
		case host.Availability == host_info_util.UNAVAILABLE:
			downReaders = append(downReaders, host)
		default:
			activeReaders = append(activeReaders, host)
		}
	}
	sortByWeight(activeReaders)

	result := make([]*host_info_util.HostInfo, 0, len(hosts))
	result = append(result, activeReaders...)
	if writer != nil {
		result = append(result, writer)
	}
	return append(result, downReaders...)
}

func (h *ClusterAwareReaderFailoverHandler) getReaderHostsByPriority(hosts []*host_info_util.HostInfo) []*host_info_util.HostInfo {
	var activeReaders, downReaders []*host_info_util.HostInfo
	var writer *host_info_util.HostInfo
	for _, host := range hosts {
		switch {
		case host.Role == host_info_util.WRITER:
			writer = host
		case host.Availability == host_info_util.UNAVAILABLE:
			downReaders = append(downReaders, host)
		default:
			activeReaders = append(activeReaders, host)
		}
	}
	sortByWeight(activeReaders)

	result := append(activeReaders, downReaders...)
	if len(result) == 0 && writer != nil {
		result = append(result, writer)
	}
	return result
}

func sortByWeight(hosts []*host_info_util.HostInfo) {
	slices.SortStableFunc(hosts, func(a, b *host_info_util.HostInfo) int {
		return a.Weight - b.Weight
	})
}
