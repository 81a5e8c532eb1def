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

package driver

import (
	"context"
	"database/sql/driver"

	"github.com/aws/aws-advanced-go-wrapper/failover/driver_infrastructure"
	"github.com/aws/aws-advanced-go-wrapper/failover/utils"
)

// AwsWrapperConn is the connection handed to database/sql. Every call is routed through the plugin
// chain and lands on whichever physical connection is current at that moment.
type AwsWrapperConn struct {
	pluginManager driver_infrastructure.PluginManager
	pluginService driver_infrastructure.PluginService
}

func NewAwsWrapperConn(
	pluginManager driver_infrastructure.PluginManager,
	pluginService driver_infrastructure.PluginService) *AwsWrapperConn {
	return &AwsWrapperConn{pluginManager, pluginService}
}

func (c *AwsWrapperConn) current() driver.Conn {
	return c.pluginService.GetCurrentConnection()
}

func (c *AwsWrapperConn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

func (c *AwsWrapperConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	conn := c.current()
	prepareFunc := func() (any, any, bool, error) {
		if prepareCtx, ok := conn.(driver.ConnPrepareContext); ok {
			result, err := prepareCtx.PrepareContext(ctx, query)
			return result, nil, false, err
		}
		result, err := conn.Prepare(query)
		return result, nil, false, err
	}
	return prepareWithPlugins(conn, c.pluginManager, utils.CONN_PREPARE_CONTEXT, prepareFunc, c, query)
}

func (c *AwsWrapperConn) Close() error {
	conn := c.current()
	closeFunc := func() (any, any, bool, error) {
		if conn == nil || c.pluginService.IsClosed(conn) {
			return nil, nil, true, nil
		}
		return nil, nil, true, conn.Close()
	}
	_, _, _, err := ExecuteWithPlugins(conn, c.pluginManager, utils.CONN_CLOSE, closeFunc)
	c.pluginManager.ReleaseResources()
	if releasable, ok := c.pluginService.(driver_infrastructure.CanReleaseResources); ok {
		releasable.ReleaseResources()
	}
	return err
}

// Abort closes the physical connection without the usual cleanup.
func (c *AwsWrapperConn) Abort() error {
	conn := c.current()
	abortFunc := func() (any, any, bool, error) {
		if conn == nil {
			return nil, nil, true, nil
		}
		return nil, nil, true, conn.Close()
	}
	_, _, _, err := ExecuteWithPlugins(conn, c.pluginManager, utils.CONN_ABORT, abortFunc)
	return err
}

func (c *AwsWrapperConn) IsClosed() bool {
	conn := c.current()
	isClosedFunc := func() (any, any, bool, error) {
		return nil, nil, conn == nil || c.pluginService.IsClosed(conn), nil
	}
	_, _, closed, _ := ExecuteWithPlugins(conn, c.pluginManager, utils.CONN_IS_CLOSED, isClosedFunc)
	return closed
}

func (c *AwsWrapperConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *AwsWrapperConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	conn := c.current()
	beginFunc := func() (any, any, bool, error) {
		if beginTx, ok := conn.(driver.ConnBeginTx); ok {
			result, err := beginTx.BeginTx(ctx, opts)
			return result, nil, false, err
		}
		result, err := conn.Begin() //nolint:all
		return result, nil, false, err
	}
	return beginWithPlugins(conn, c.pluginManager, utils.CONN_BEGIN_TX, beginFunc)
}

func (c *AwsWrapperConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	conn := c.current()
	queryFunc := func() (any, any, bool, error) {
		queryerCtx, ok := conn.(driver.QueryerContext)
		if !ok {
			return nil, nil, false, driver.ErrSkip
		}
		result, err := queryerCtx.QueryContext(ctx, query, args)
		return result, nil, false, err
	}
	return queryWithPlugins(conn, c.pluginManager, utils.CONN_QUERY_CONTEXT, queryFunc, query)
}

func (c *AwsWrapperConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	conn := c.current()
	execFunc := func() (any, any, bool, error) {
		execerCtx, ok := conn.(driver.ExecerContext)
		if !ok {
			return nil, nil, false, driver.ErrSkip
		}
		result, err := execerCtx.ExecContext(ctx, query, args)
		return result, nil, false, err
	}
	return execWithPlugins(conn, c.pluginManager, utils.CONN_EXEC_CONTEXT, execFunc, query)
}

func (c *AwsWrapperConn) Ping(ctx context.Context) error {
	conn := c.current()
	pingFunc := func() (any, any, bool, error) {
		pinger, ok := conn.(driver.Pinger)
		if !ok {
			return nil, nil, false, nil
		}
		return nil, nil, false, pinger.Ping(ctx)
	}
	_, _, _, err := ExecuteWithPlugins(conn, c.pluginManager, utils.CONN_PING, pingFunc)
	return err
}

func (c *AwsWrapperConn) IsValid() bool {
	conn := c.current()
	isValidFunc := func() (any, any, bool, error) {
		if validator, ok := conn.(driver.Validator); ok {
			return nil, nil, validator.IsValid(), nil
		}
		return nil, nil, true, nil
	}
	_, _, result, err := ExecuteWithPlugins(conn, c.pluginManager, utils.CONN_IS_VALID, isValidFunc)
	return err == nil && result
}

func (c *AwsWrapperConn) ResetSession(ctx context.Context) error {
	conn := c.current()
	resetSessionFunc := func() (any, any, bool, error) {
		resetter, ok := conn.(driver.SessionResetter)
		if !ok {
			return nil, nil, false, nil
		}
		return nil, nil, false, resetter.ResetSession(ctx)
	}
	_, _, _, err := ExecuteWithPlugins(conn, c.pluginManager, utils.CONN_RESET_SESSION, resetSessionFunc)
	return err
}

// CheckNamedValue defers argument conversion to the physical connection.
func (c *AwsWrapperConn) CheckNamedValue(val *driver.NamedValue) error {
	namedValueChecker, ok := c.current().(driver.NamedValueChecker)
	if !ok {
		return driver.ErrSkip
	}
	return namedValueChecker.CheckNamedValue(val)
}

// SetReadOnly switches the session between read-write and read-only. With failover enabled,
// switching to read-write on a reader moves the session to the writer.
func (c *AwsWrapperConn) SetReadOnly(ctx context.Context, readOnly bool) error {
	query, err := c.pluginService.GetDialect().GetSetReadOnlyQuery(readOnly)
	if err != nil {
		return err
	}
	return c.execSessionStatement(ctx, utils.CONN_SET_READ_ONLY, query, readOnly)
}

func (c *AwsWrapperConn) GetReadOnly() bool {
	getFunc := func() (any, any, bool, error) {
		return nil, nil, c.pluginService.GetSessionState().ReadOnly.GetOrDefault(false), nil
	}
	_, _, readOnly, _ := ExecuteWithPlugins(c.current(), c.pluginManager, utils.CONN_GET_READ_ONLY, getFunc)
	return readOnly
}

func (c *AwsWrapperConn) SetAutoCommit(ctx context.Context, autoCommit bool) error {
	query, err := c.pluginService.GetDialect().GetSetAutoCommitQuery(autoCommit)
	if err != nil {
		return err
	}
	return c.execSessionStatement(ctx, utils.CONN_SET_AUTO_COMMIT, query, autoCommit)
}

func (c *AwsWrapperConn) GetAutoCommit() bool {
	getFunc := func() (any, any, bool, error) {
		return nil, nil, c.pluginService.GetSessionState().AutoCommit.GetOrDefault(true), nil
	}
	_, _, autoCommit, _ := ExecuteWithPlugins(c.current(), c.pluginManager, utils.CONN_GET_AUTO_COMMIT, getFunc)
	return autoCommit
}

func (c *AwsWrapperConn) SetTransactionIsolation(ctx context.Context, level driver_infrastructure.TransactionIsolationLevel) error {
	query, err := c.pluginService.GetDialect().GetSetTransactionIsolationQuery(level)
	if err != nil {
		return err
	}
	return c.execSessionStatement(ctx, utils.CONN_SET_TRANSACTION_ISOLATION, query, level)
}

// GetTransactionIsolation reports the level set through this connection; ok is false when the
// server default was never changed.
func (c *AwsWrapperConn) GetTransactionIsolation() (level driver_infrastructure.TransactionIsolationLevel, ok bool) {
	getFunc := func() (any, any, bool, error) {
		value := c.pluginService.GetSessionState().TransactionIsolation.GetValue()
		if value == nil {
			return nil, nil, false, nil
		}
		return *value, nil, true, nil
	}
	result, _, ok, _ := ExecuteWithPlugins(c.current(), c.pluginManager, utils.CONN_GET_TRANSACTION_ISOLATION, getFunc)
	if ok {
		level, ok = result.(driver_infrastructure.TransactionIsolationLevel)
	}
	return level, ok
}

func (c *AwsWrapperConn) execSessionStatement(ctx context.Context, method utils.Method, query string, value any) error {
	conn := c.current()
	execFunc := func() (any, any, bool, error) {
		return nil, nil, true, utils.ExecQuery(ctx, conn, query)
	}
	_, _, _, err := ExecuteWithPlugins(conn, c.pluginManager, method, execFunc, value)
	return err
}

var (
	_ driver.Conn               = (*AwsWrapperConn)(nil)
	_ driver.ConnPrepareContext = (*AwsWrapperConn)(nil)
	_ driver.ConnBeginTx        = (*AwsWrapperConn)(nil)
	_ driver.QueryerContext     = (*AwsWrapperConn)(nil)
	_ driver.ExecerContext      = (*AwsWrapperConn)(nil)
	_ driver.Pinger             = (*AwsWrapperConn)(nil)
	_ driver.Validator          = (*AwsWrapperConn)(nil)
	_ driver.SessionResetter    = (*AwsWrapperConn)(nil)
	_ driver.NamedValueChecker  = (*AwsWrapperConn)(nil)
)
