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

package utils

// Method identifies one intercepted operation. The set is closed: plugins subscribe to these values
// and the plugin manager builds one execution chain per value.
type Method uint8

const (
	CONNECT Method = iota
	FORCE_CONNECT
	INIT_HOST_PROVIDER
	NOTIFY_CONNECTION_CHANGED
	NOTIFY_HOST_LIST_CHANGED
	CONN_PREPARE
	CONN_PREPARE_CONTEXT
	CONN_CLOSE
	CONN_ABORT
	CONN_IS_CLOSED
	CONN_BEGIN
	CONN_BEGIN_TX
	CONN_QUERY_CONTEXT
	CONN_EXEC_CONTEXT
	CONN_PING
	CONN_IS_VALID
	CONN_RESET_SESSION
	CONN_SET_READ_ONLY
	CONN_SET_AUTO_COMMIT
	CONN_SET_TRANSACTION_ISOLATION
	CONN_GET_READ_ONLY
	CONN_GET_AUTO_COMMIT
	CONN_GET_TRANSACTION_ISOLATION
	STMT_CLOSE
	STMT_EXEC_CONTEXT
	STMT_QUERY_CONTEXT
	TX_COMMIT
	TX_ROLLBACK
	ROWS_NEXT
	ROWS_CLOSE

	// METHOD_COUNT is the number of concrete methods; ALL_METHODS is the wildcard subscription marker.
	METHOD_COUNT
	ALL_METHODS Method = 255
)

var methodNames = [METHOD_COUNT]string{
	CONNECT:                        "connect",
	FORCE_CONNECT:                  "forceConnect",
	INIT_HOST_PROVIDER:             "initHostProvider",
	NOTIFY_CONNECTION_CHANGED:      "notifyConnectionChanged",
	NOTIFY_HOST_LIST_CHANGED:       "notifyHostListChanged",
	CONN_PREPARE:                   "Conn.Prepare",
	CONN_PREPARE_CONTEXT:           "Conn.PrepareContext",
	CONN_CLOSE:                     "Conn.Close",
	CONN_ABORT:                     "Conn.Abort",
	CONN_IS_CLOSED:                 "Conn.IsClosed",
	CONN_BEGIN:                     "Conn.Begin",
	CONN_BEGIN_TX:                  "Conn.BeginTx",
	CONN_QUERY_CONTEXT:             "Conn.QueryContext",
	CONN_EXEC_CONTEXT:              "Conn.ExecContext",
	CONN_PING:                      "Conn.Ping",
	CONN_IS_VALID:                  "Conn.IsValid",
	CONN_RESET_SESSION:             "Conn.ResetSession",
	CONN_SET_READ_ONLY:             "Conn.SetReadOnly",
	CONN_SET_AUTO_COMMIT:           "Conn.SetAutoCommit",
	CONN_SET_TRANSACTION_ISOLATION: "Conn.SetTransactionIsolation",
	CONN_GET_READ_ONLY:             "Conn.GetReadOnly",
	CONN_GET_AUTO_COMMIT:           "Conn.GetAutoCommit",
	CONN_GET_TRANSACTION_ISOLATION: "Conn.GetTransactionIsolation",
	STMT_CLOSE:                     "Stmt.Close",
	STMT_EXEC_CONTEXT:              "Stmt.ExecContext",
	STMT_QUERY_CONTEXT:             "Stmt.QueryContext",
	TX_COMMIT:                      "Tx.Commit",
	TX_ROLLBACK:                    "Tx.Rollback",
	ROWS_NEXT:                      "Rows.Next",
	ROWS_CLOSE:                     "Rows.Close",
}

func (m Method) String() string {
	if m == ALL_METHODS {
		return "*"
	}
	if m < METHOD_COUNT {
		return methodNames[m]
	}
	return "unknown"
}

var NETWORK_BOUND_METHODS = []Method{
	CONN_PREPARE,
	CONN_PREPARE_CONTEXT,
	CONN_BEGIN,
	CONN_BEGIN_TX,
	CONN_QUERY_CONTEXT,
	CONN_EXEC_CONTEXT,
	CONN_PING,
	CONN_IS_VALID,
	CONN_RESET_SESSION,
	CONN_SET_READ_ONLY,
	CONN_SET_AUTO_COMMIT,
	CONN_SET_TRANSACTION_ISOLATION,
	STMT_EXEC_CONTEXT,
	STMT_QUERY_CONTEXT,
	TX_COMMIT,
	TX_ROLLBACK,
	ROWS_NEXT,
}

// MethodSet is a bit set over Method.
type MethodSet uint64

func NewMethodSet(methods ...Method) MethodSet {
	var set MethodSet
	for _, method := range methods {
		if method == ALL_METHODS {
			return ALL_METHOD_SET
		}
		set |= 1 << method
	}
	return set
}

const ALL_METHOD_SET = MethodSet(1<<METHOD_COUNT - 1)

func (s MethodSet) Contains(method Method) bool {
	return method < METHOD_COUNT && s&(1<<method) != 0
}

// CLOSING_METHODS may run against a connection that is no longer current.
var CLOSING_METHODS = NewMethodSet(CONN_CLOSE, CONN_ABORT, CONN_IS_CLOSED, STMT_CLOSE, ROWS_CLOSE)
