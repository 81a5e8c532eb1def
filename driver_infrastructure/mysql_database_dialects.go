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
	"fmt"
	"strings"

	"github.com/aws/aws-advanced-go-wrapper/failover/error_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/utils"
)

const mySqlSessionTransaction = "SET SESSION TRANSACTION"

type MySQLDatabaseDialect struct {
}

func (m *MySQLDatabaseDialect) GetDialectCode() string {
	return MYSQL_DIALECT
}

func (m *MySQLDatabaseDialect) GetDefaultPort() int {
	return 3306
}

func (m *MySQLDatabaseDialect) IsDialect(conn driver.Conn) bool {
	row := utils.GetFirstRowFromQuery(conn, "SHOW VARIABLES LIKE 'version_comment'")
	return row != nil && len(row) > 1 && strings.Contains(strings.ToLower(utils.ToString(row[1])), "mysql")
}

func (m *MySQLDatabaseDialect) GetHostAliasQuery() string {
	return "SELECT CONCAT(@@hostname, ':', @@port)"
}

func (m *MySQLDatabaseDialect) GetSetAutoCommitQuery(autoCommit bool) (string, error) {
	if autoCommit {
		return "SET AUTOCOMMIT = 1", nil
	}
	return "SET AUTOCOMMIT = 0", nil
}

func (m *MySQLDatabaseDialect) GetSetReadOnlyQuery(readOnly bool) (string, error) {
	if readOnly {
		return mySqlSessionTransaction + " READ ONLY", nil
	}
	return mySqlSessionTransaction + " READ WRITE", nil
}

func (m *MySQLDatabaseDialect) GetSetTransactionIsolationQuery(level TransactionIsolationLevel) (string, error) {
	if _, ok := isolationLevelsByName[level.String()]; !ok {
		return "", error_util.NewIllegalArgumentError(error_util.GetMessage("DatabaseDialect.invalidTransactionIsolationLevel", int(level)))
	}
	return fmt.Sprintf("%s ISOLATION LEVEL %s", mySqlSessionTransaction, level), nil
}

func (m *MySQLDatabaseDialect) DoesStatementSetAutoCommit(statement string) (bool, bool) {
	return utils.DoesSetAutoCommit(statement)
}

func (m *MySQLDatabaseDialect) DoesStatementSetReadOnly(statement string) (bool, bool) {
	return parseReadOnly(statement, mySqlSessionTransaction)
}

func (m *MySQLDatabaseDialect) DoesStatementSetTransactionIsolation(statement string) (TransactionIsolationLevel, bool) {
	return parseIsolationLevel(statement, mySqlSessionTransaction+" ISOLATION LEVEL")
}

type AuroraMySQLDatabaseDialect struct {
	MySQLDatabaseDialect
}

func (a *AuroraMySQLDatabaseDialect) GetDialectCode() string {
	return AURORA_MYSQL_DIALECT
}

func (a *AuroraMySQLDatabaseDialect) IsDialect(conn driver.Conn) bool {
	return utils.GetFirstRowFromQuery(conn, "SHOW VARIABLES LIKE 'aurora_version'") != nil
}

func (a *AuroraMySQLDatabaseDialect) GetTopologyQuery() string {
	return "SELECT SERVER_ID, CASE WHEN SESSION_ID = 'MASTER_SESSION_ID' THEN TRUE ELSE FALSE END, " +
		"CPU, REPLICA_LAG_IN_MILLISECONDS, LAST_UPDATE_TIMESTAMP " +
		"FROM information_schema.replica_host_status " +
		"WHERE time_to_sec(timediff(now(), LAST_UPDATE_TIMESTAMP)) <= 300 OR SESSION_ID = 'MASTER_SESSION_ID' " +
		"ORDER BY LAST_UPDATE_TIMESTAMP"
}

func (a *AuroraMySQLDatabaseDialect) GetIsReaderQuery() string {
	return "SELECT @@innodb_read_only AS is_reader"
}

func (a *AuroraMySQLDatabaseDialect) GetNodeIdQuery() string {
	return "SELECT @@aurora_server_id"
}
