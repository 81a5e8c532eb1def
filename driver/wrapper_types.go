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
	"reflect"

	"github.com/aws/aws-advanced-go-wrapper/failover/driver_infrastructure"
	"github.com/aws/aws-advanced-go-wrapper/failover/utils"
)

// AwsWrapperStmt stays bound to the physical connection it was prepared on. After failover it fails
// and has to be prepared again.
type AwsWrapperStmt struct {
	underlyingConn driver.Conn
	underlyingStmt driver.Stmt
	pluginManager  driver_infrastructure.PluginManager
	conn           *AwsWrapperConn
	query          string
}

func (a *AwsWrapperStmt) Close() error {
	closeFunc := func() (any, any, bool, error) { return nil, nil, false, a.underlyingStmt.Close() }
	_, _, _, err := ExecuteWithPlugins(a.underlyingConn, a.pluginManager, utils.STMT_CLOSE, closeFunc)
	return err
}

func (a *AwsWrapperStmt) NumInput() int {
	return a.underlyingStmt.NumInput()
}

func (a *AwsWrapperStmt) Exec(args []driver.Value) (driver.Result, error) {
	return a.ExecContext(context.Background(), valuesToNamedValues(args))
}

func (a *AwsWrapperStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	execFunc := func() (any, any, bool, error) {
		if execerCtx, ok := a.underlyingStmt.(driver.StmtExecContext); ok {
			result, err := execerCtx.ExecContext(ctx, args)
			return result, nil, false, err
		}
		result, err := a.underlyingStmt.Exec(namedValuesToValues(args)) //nolint:all
		return result, nil, false, err
	}
	return execWithPlugins(a.underlyingConn, a.pluginManager, utils.STMT_EXEC_CONTEXT, execFunc, a.query)
}

func (a *AwsWrapperStmt) Query(args []driver.Value) (driver.Rows, error) {
	return a.QueryContext(context.Background(), valuesToNamedValues(args))
}

func (a *AwsWrapperStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	queryFunc := func() (any, any, bool, error) {
		if queryerCtx, ok := a.underlyingStmt.(driver.StmtQueryContext); ok {
			result, err := queryerCtx.QueryContext(ctx, args)
			return result, nil, false, err
		}
		result, err := a.underlyingStmt.Query(namedValuesToValues(args)) //nolint:all
		return result, nil, false, err
	}
	return queryWithPlugins(a.underlyingConn, a.pluginManager, utils.STMT_QUERY_CONTEXT, queryFunc, a.query)
}

func (a *AwsWrapperStmt) CheckNamedValue(val *driver.NamedValue) error {
	if namedValueChecker, ok := a.underlyingStmt.(driver.NamedValueChecker); ok {
		return namedValueChecker.CheckNamedValue(val)
	}
	return a.conn.CheckNamedValue(val)
}

type AwsWrapperTx struct {
	underlyingConn driver.Conn
	underlyingTx   driver.Tx
	pluginManager  driver_infrastructure.PluginManager
}

func (a *AwsWrapperTx) Commit() error {
	commitFunc := func() (any, any, bool, error) { return nil, nil, false, a.underlyingTx.Commit() }
	_, _, _, err := ExecuteWithPlugins(a.underlyingConn, a.pluginManager, utils.TX_COMMIT, commitFunc)
	return err
}

func (a *AwsWrapperTx) Rollback() error {
	rollbackFunc := func() (any, any, bool, error) { return nil, nil, false, a.underlyingTx.Rollback() }
	_, _, _, err := ExecuteWithPlugins(a.underlyingConn, a.pluginManager, utils.TX_ROLLBACK, rollbackFunc)
	return err
}

type AwsWrapperRows struct {
	underlyingConn driver.Conn
	underlyingRows driver.Rows
	pluginManager  driver_infrastructure.PluginManager
}

func (a *AwsWrapperRows) Close() error {
	closeFunc := func() (any, any, bool, error) { return nil, nil, false, a.underlyingRows.Close() }
	_, _, _, err := ExecuteWithPlugins(a.underlyingConn, a.pluginManager, utils.ROWS_CLOSE, closeFunc)
	return err
}

func (a *AwsWrapperRows) Columns() []string {
	return a.underlyingRows.Columns()
}

func (a *AwsWrapperRows) Next(dest []driver.Value) error {
	nextFunc := func() (any, any, bool, error) { return nil, nil, false, a.underlyingRows.Next(dest) }
	_, _, _, err := ExecuteWithPlugins(a.underlyingConn, a.pluginManager, utils.ROWS_NEXT, nextFunc)
	return err
}

func (a *AwsWrapperRows) ColumnTypeDatabaseTypeName(index int) string {
	if typed, ok := a.underlyingRows.(driver.RowsColumnTypeDatabaseTypeName); ok {
		return typed.ColumnTypeDatabaseTypeName(index)
	}
	return ""
}

func (a *AwsWrapperRows) ColumnTypeScanType(index int) reflect.Type {
	if typed, ok := a.underlyingRows.(driver.RowsColumnTypeScanType); ok {
		return typed.ColumnTypeScanType(index)
	}
	return reflect.TypeOf(new(any)).Elem()
}

func (a *AwsWrapperRows) ColumnTypeNullable(index int) (nullable, ok bool) {
	if typed, isTyped := a.underlyingRows.(driver.RowsColumnTypeNullable); isTyped {
		return typed.ColumnTypeNullable(index)
	}
	return false, false
}
