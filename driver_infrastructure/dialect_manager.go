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
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-advanced-go-wrapper/failover/error_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/property_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/utils"
)

var KnownDialectsByCode = map[string]DatabaseDialect{
	MYSQL_DIALECT:        &MySQLDatabaseDialect{},
	PG_DIALECT:           &PgDatabaseDialect{},
	AURORA_MYSQL_DIALECT: &AuroraMySQLDatabaseDialect{},
	AURORA_PG_DIALECT:    &AuroraPgDatabaseDialect{},
}

var dialectUpdateCandidates = map[string]string{
	MYSQL_DIALECT: AURORA_MYSQL_DIALECT,
	PG_DIALECT:    AURORA_PG_DIALECT,
}

var knownEndpointDialectsCache = utils.NewCache[string]()
var ENDPOINT_CACHE_EXPIRATION = time.Hour * 24

type DialectProvider interface {
	GetDialect(dsn string, props map[string]string) (DatabaseDialect, error)
	GetDialectForUpdate(conn driver.Conn, originalHost string, newHost string) DatabaseDialect
}

type DialectManager struct {
	canUpdate   bool
	dialect     DatabaseDialect
	dialectCode string
}

func (d *DialectManager) GetDialect(dsn string, props map[string]string) (DatabaseDialect, error) {
	dialectCode := property_util.DATABASE_DIALECT.Get(props)
	ok := true
	if dialectCode == "" {
		dialectCode, ok = knownEndpointDialectsCache.Get(dsn)
	}
	if ok && dialectCode != "" {
		userDialect := KnownDialectsByCode[dialectCode]
		if userDialect != nil {
			d.dialectCode = dialectCode
			d.dialect = userDialect
			d.logCurrentDialect()
			return userDialect, nil
		}
		return nil, error_util.NewGenericAwsWrapperError(error_util.GetMessage("DialectManager.unknownDialectCode", dialectCode))
	}

	driverProtocol := property_util.DRIVER_PROTOCOL.Get(props)
	rdsUrlType := utils.IdentifyRdsUrlType(property_util.HOST.Get(props))

	var auroraCode, plainCode string
	switch {
	case strings.Contains(driverProtocol, "mysql"):
		auroraCode, plainCode = AURORA_MYSQL_DIALECT, MYSQL_DIALECT
	case strings.Contains(driverProtocol, "postgres"):
		auroraCode, plainCode = AURORA_PG_DIALECT, PG_DIALECT
	default:
		return nil, error_util.NewGenericAwsWrapperError(error_util.GetMessage("DialectManager.getDialectError", driverProtocol))
	}

	d.canUpdate = true
	if rdsUrlType.IsRds {
		d.dialectCode = auroraCode
		knownEndpointDialectsCache.Put(dsn, auroraCode, ENDPOINT_CACHE_EXPIRATION)
	} else {
		d.dialectCode = plainCode
	}
	d.dialect = KnownDialectsByCode[d.dialectCode]
	d.logCurrentDialect()
	return d.dialect, nil
}

// GetDialectForUpdate inspects an open connection once and upgrades a plain dialect when the server turns out to be Aurora.
func (d *DialectManager) GetDialectForUpdate(conn driver.Conn, originalHost string, newHost string) DatabaseDialect {
	if !d.canUpdate {
		return d.dialect
	}
	d.canUpdate = false

	candidateCode, ok := dialectUpdateCandidates[d.dialectCode]
	if ok {
		candidate := KnownDialectsByCode[candidateCode]
		if candidate.IsDialect(conn) {
			d.dialectCode = candidateCode
			d.dialect = candidate
		}
	}

	knownEndpointDialectsCache.Put(originalHost, d.dialectCode, ENDPOINT_CACHE_EXPIRATION)
	knownEndpointDialectsCache.Put(newHost, d.dialectCode, ENDPOINT_CACHE_EXPIRATION)
	d.logCurrentDialect()
	return d.dialect
}

func (d *DialectManager) logCurrentDialect() {
	slog.Debug(error_util.GetMessage("DialectManager.currentDialect", d.dialectCode, d.canUpdate))
}

func ClearDialectCache() {
	knownEndpointDialectsCache.Clear()
}
