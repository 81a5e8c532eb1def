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

package driver_infrastructure

import (
	"database/sql/driver"
	"strings"

	"github.com/aws/aws-advanced-go-wrapper/failover/utils"
)

type DatabaseDialect interface {
	GetDialectCode() string
	GetDefaultPort() int
	IsDialect(conn driver.Conn) bool
	GetHostAliasQuery() string
	GetSetAutoCommitQuery(autoCommit bool) (string, error)
	GetSetReadOnlyQuery(readOnly bool) (string, error)
	GetSetTransactionIsolationQuery(level TransactionIsolationLevel) (string, error)
	DoesStatementSetAutoCommit(statement string) (bool, bool)
	DoesStatementSetReadOnly(statement string) (bool, bool)
	DoesStatementSetTransactionIsolation(statement string) (TransactionIsolationLevel, bool)
}

// TopologyAwareDialect supplies the queries the cluster host list provider runs.
type TopologyAwareDialect interface {
	DatabaseDialect
	// GetTopologyQuery returns rows of (node id, is writer, cpu, replica lag ms, last update), oldest first.
	GetTopologyQuery() string
	// GetIsReaderQuery returns a single boolean column named is_reader.
	GetIsReaderQuery() string
	GetNodeIdQuery() string
}

var isolationLevelsByName = map[string]TransactionIsolationLevel{
	"READ UNCOMMITTED": TRANSACTION_READ_UNCOMMITTED,
	"READ COMMITTED":   TRANSACTION_READ_COMMITTED,
	"REPEATABLE READ":  TRANSACTION_REPEATABLE_READ,
	"SERIALIZABLE":     TRANSACTION_SERIALIZABLE,
}

func parseIsolationLevel(statement string, prefix string) (TransactionIsolationLevel, bool) {
	for _, stmt := range utils.GetSeparateSqlStatements(statement) {
		if !strings.HasPrefix(stmt, prefix) {
			continue
		}
		level, ok := isolationLevelsByName[strings.TrimSpace(strings.TrimPrefix(stmt, prefix))]
		if ok {
			return level, true
		}
	}
	return 0, false
}

func parseReadOnly(statement string, prefix string) (bool, bool) {
	for _, stmt := range utils.GetSeparateSqlStatements(statement) {
		switch stmt {
		case prefix + " READ ONLY":
			return true, true
		case prefix + " READ WRITE":
			return false, true
		}
	}
	return false, false
}
