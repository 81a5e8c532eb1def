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
	"database/sql/driver"

	"github.com/aws/aws-advanced-go-wrapper/failover/driver_infrastructure"
	"github.com/aws/aws-advanced-go-wrapper/failover/error_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/utils"
)

func ExecuteWithPlugins(
	connInvokedOn driver.Conn,
	pluginManager driver_infrastructure.PluginManager,
	method utils.Method,
	executeFunc driver_infrastructure.ExecuteFunc,
	methodArgs ...any) (wrappedReturnValue any, wrappedReturnValue2 any, wrappedOk bool, wrappedErr error) {
	return pluginManager.Execute(connInvokedOn, method, executeFunc, methodArgs...)
}

func queryWithPlugins(
	connInvokedOn driver.Conn,
	pluginManager driver_infrastructure.PluginManager,
	method utils.Method,
	queryFunc driver_infrastructure.ExecuteFunc,
	methodArgs ...any) (driver.Rows, error) {
	result, _, _, err := ExecuteWithPlugins(connInvokedOn, pluginManager, method, queryFunc, methodArgs...)
	if err != nil {
		return nil, err
	}
	driverRows, ok := result.(driver.Rows)
	if !ok {
		return nil, error_util.NewGenericAwsWrapperError(error_util.GetMessage("AwsWrapperExecuteWithPlugins.unableToCastResult", "driver.Rows"))
	}
	return &AwsWrapperRows{connInvokedOn, driverRows, pluginManager}, nil
}

func execWithPlugins(
	connInvokedOn driver.Conn,
	pluginManager driver_infrastructure.PluginManager,
	method utils.Method,
	execFunc driver_infrastructure.ExecuteFunc,
	methodArgs ...any) (driver.Result, error) {
	result, _, _, err := ExecuteWithPlugins(connInvokedOn, pluginManager, method, execFunc, methodArgs...)
	if err != nil {
		return nil, err
	}
	driverResult, ok := result.(driver.Result)
	if !ok {
		return nil, error_util.NewGenericAwsWrapperError(error_util.GetMessage("AwsWrapperExecuteWithPlugins.unableToCastResult", "driver.Result"))
	}
	return driverResult, nil
}

func prepareWithPlugins(
	connInvokedOn driver.Conn,
	pluginManager driver_infrastructure.PluginManager,
	method utils.Method,
	prepareFunc driver_infrastructure.ExecuteFunc,
	conn *AwsWrapperConn,
	query string) (driver.Stmt, error) {
	result, _, _, err := ExecuteWithPlugins(connInvokedOn, pluginManager, method, prepareFunc, query)
	if err != nil {
		return nil, err
	}
	driverStmt, ok := result.(driver.Stmt)
	if !ok {
		return nil, error_util.NewGenericAwsWrapperError(error_util.GetMessage("AwsWrapperExecuteWithPlugins.unableToCastResult", "driver.Stmt"))
	}
	return &AwsWrapperStmt{connInvokedOn, driverStmt, pluginManager, conn, query}, nil
}

func beginWithPlugins(
	connInvokedOn driver.Conn,
	pluginManager driver_infrastructure.PluginManager,
	method utils.Method,
	beginFunc driver_infrastructure.ExecuteFunc) (driver.Tx, error) {
	result, _, _, err := ExecuteWithPlugins(connInvokedOn, pluginManager, method, beginFunc)
	if err != nil {
		return nil, err
	}
	driverTx, ok := result.(driver.Tx)
	if !ok {
		return nil, error_util.NewGenericAwsWrapperError(error_util.GetMessage("AwsWrapperExecuteWithPlugins.unableToCastResult", "driver.Tx"))
	}
	return &AwsWrapperTx{connInvokedOn, driverTx, pluginManager}, nil
}

func namedValuesToValues(args []driver.NamedValue) []driver.Value {
	values := make([]driver.Value, len(args))
	for i, arg := range args {
		values[i] = arg.Value
	}
	return values
}

func valuesToNamedValues(args []driver.Value) []driver.NamedValue {
	named := make([]driver.NamedValue, len(args))
	for i, arg := range args {
		named[i] = driver.NamedValue{Ordinal: i + 1, Value: arg}
	}
	return named
}
