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

	"github.com/aws/aws-advanced-go-wrapper/failover/error_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/utils"
)

const pgSessionCharacteristics = "SET SESSION CHARACTERISTICS AS TRANSACTION"

type PgDatabaseDialect struct {
}

func (p *PgDatabaseDialect) GetDialectCode() string {
	return PG_DIALECT
}

func (p *PgDatabaseDialect) GetDefaultPort() int {
	return 5432
}

func (p *PgDatabaseDialect) IsDialect(conn driver.Conn) bool {
	return utils.GetFirstRowFromQuery(conn, "SELECT 1 FROM pg_catalog.pg_proc LIMIT 1") != nil
}

func (p *PgDatabaseDialect) GetHostAliasQuery() string {
	return "SELECT CONCAT(inet_server_addr(), ':', inet_server_port())"
}

// PostgreSQL has no session level auto-commit switch.
func (p *PgDatabaseDialect) GetSetAutoCommitQuery(_ bool) (string, error) {
	return "", error_util.NewUnsupportedMethodError("setAutoCommit")
}

func (p *PgDatabaseDialect) GetSetReadOnlyQuery(readOnly bool) (string, error) {
	if readOnly {
		return pgSessionCharacteristics + " READ ONLY", nil
	}
	return pgSessionCharacteristics + " READ WRITE", nil
}

func (p *PgDatabaseDialect) GetSetTransactionIsolationQuery(level TransactionIsolationLevel) (string, error) {
	if _, ok := isolationLevelsByName[level.String()]; !ok {
		return "", error_util.NewIllegalArgumentError(error_util.GetMessage("DatabaseDialect.invalidTransactionIsolationLevel", int(level)))
	}
	return pgSessionCharacteristics + " ISOLATION LEVEL " + level.String(), nil
}

func (p *PgDatabaseDialect) DoesStatementSetAutoCommit(_ string) (bool, bool) {
	return false, false
}

func (p *PgDatabaseDialect) DoesStatementSetReadOnly(statement string) (bool, bool) {
	return parseReadOnly(statement, pgSessionCharacteristics)
}

func (p *PgDatabaseDialect) DoesStatementSetTransactionIsolation(statement string) (TransactionIsolationLevel, bool) {
	return parseIsolationLevel(statement, pgSessionCharacteristics+" ISOLATION LEVEL")
}

type AuroraPgDatabaseDialect struct {
	PgDatabaseDialect
}

func (a *AuroraPgDatabaseDialect) GetDialectCode() string {
	return AURORA_PG_DIALECT
}

func (a *AuroraPgDatabaseDialect) IsDialect(conn driver.Conn) bool {
	if !a.PgDatabaseDialect.IsDialect(conn) {
		return false
	}
	hasExtensions := utils.GetFirstRowFromQuery(
		conn,
		"SELECT (setting LIKE '%aurora_stat_utils%') AS aurora_stat_utils FROM pg_catalog.pg_settings WHERE name = 'rds.extensions'")
	if hasExtensions == nil {
		return false
	}
	if enabled, err := utils.ToBool(hasExtensions[0]); err != nil || !enabled {
		return false
	}
	return utils.GetFirstRowFromQuery(conn, "SELECT 1 FROM aurora_replica_status() LIMIT 1") != nil
}

func (a *AuroraPgDatabaseDialect) GetTopologyQuery() string {
	return "SELECT SERVER_ID, CASE WHEN SESSION_ID = 'MASTER_SESSION_ID' THEN TRUE ELSE FALSE END, " +
		"CPU, COALESCE(REPLICA_LAG_IN_MSEC, 0), LAST_UPDATE_TIMESTAMP " +
		"FROM aurora_replica_status() " +
		"WHERE EXTRACT(EPOCH FROM(NOW() - LAST_UPDATE_TIMESTAMP)) <= 300 OR SESSION_ID = 'MASTER_SESSION_ID' " +
		"OR LAST_UPDATE_TIMESTAMP IS NULL " +
		"ORDER BY LAST_UPDATE_TIMESTAMP NULLS FIRST"
}

func (a *AuroraPgDatabaseDialect) GetIsReaderQuery() string {
	return "SELECT pg_is_in_recovery() AS is_reader"
}

func (a *AuroraPgDatabaseDialect) GetNodeIdQuery() string {
	return "SELECT aurora_db_instance_identifier()"
}
