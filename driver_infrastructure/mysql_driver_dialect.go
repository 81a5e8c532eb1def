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
	"net"
	"reflect"
	"strconv"

	"github.com/aws/aws-advanced-go-wrapper/failover/host_info_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/property_util"

	"github.com/go-sql-driver/mysql"
)

const MYSQL_DRIVER_CLASS_NAME = "mysql.MySQLDriver"

type MySQLDriverDialect struct {
	errorHandler ErrorHandler
	driver       driver.Driver
}

func NewMySQLDriverDialect() *MySQLDriverDialect {
	return &MySQLDriverDialect{errorHandler: &MySQLErrorHandler{}, driver: &mysql.MySQLDriver{}}
}

func (m *MySQLDriverDialect) IsDialect(driver driver.Driver) bool {
	name := reflect.TypeOf(driver).String()
	return name == MYSQL_DRIVER_CLASS_NAME || name == "*"+MYSQL_DRIVER_CLASS_NAME
}

func (m *MySQLDriverDialect) GetDriver() driver.Driver {
	return m.driver
}

func (m *MySQLDriverDialect) IsNetworkError(err error) bool {
	return m.errorHandler.IsNetworkError(err)
}

func (m *MySQLDriverDialect) IsLoginError(err error) bool {
	return m.errorHandler.IsLoginError(err)
}

func (m *MySQLDriverDialect) IsClosed(conn driver.Conn) bool {
	return isClosedByValidator(conn)
}

// PrepareDsn renders a go-sql-driver DSN pointed at hostInfo. Unknown properties become DSN parameters.
func (m *MySQLDriverDialect) PrepareDsn(properties map[string]string, hostInfo *host_info_util.HostInfo) string {
	cfg := mysql.NewConfig()
	cfg.User = property_util.USER.Get(properties)
	cfg.Passwd = property_util.PASSWORD.Get(properties)
	cfg.DBName = property_util.DATABASE.Get(properties)
	cfg.Net = property_util.NET.Get(properties)
	if cfg.Net == "" {
		cfg.Net = "tcp"
	}

	host := property_util.HOST.Get(properties)
	port := property_util.PORT.Get(properties)
	if !hostInfo.IsNil() {
		host = hostInfo.Host
		if hostInfo.IsPortSpecified() {
			port = strconv.Itoa(hostInfo.Port)
		}
	}
	if port == "" {
		port = strconv.Itoa((&MySQLDatabaseDialect{}).GetDefaultPort())
	}
	cfg.Addr = net.JoinHostPort(host, port)

	params := map[string]string{}
	for k, v := range property_util.RemoveWrapperProperties(properties) {
		if !property_util.ALL_WRAPPER_PROPERTIES[k] {
			params[k] = v
		}
	}
	if len(params) > 0 {
		cfg.Params = params
	}
	return cfg.FormatDSN()
}
