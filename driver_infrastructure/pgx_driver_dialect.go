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
	"reflect"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-advanced-go-wrapper/failover/host_info_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/property_util"

	"github.com/jackc/pgx/v5/stdlib"
)

var pgxPersistingProperties = []string{
	property_util.USER.Name,
	property_util.PASSWORD.Name,
	property_util.HOST.Name,
	property_util.DATABASE.Name,
	property_util.PORT.Name,
}

const PGX_DRIVER_CLASS_NAME = "stdlib.Driver"

type PgxDriverDialect struct {
	errorHandler ErrorHandler
	driver       driver.Driver
}

func NewPgxDriverDialect() *PgxDriverDialect {
	return &PgxDriverDialect{errorHandler: &PgxErrorHandler{}, driver: &stdlib.Driver{}}
}

func (p *PgxDriverDialect) IsDialect(driver driver.Driver) bool {
	name := reflect.TypeOf(driver).String()
	return name == PGX_DRIVER_CLASS_NAME || name == "*"+PGX_DRIVER_CLASS_NAME
}

func (p *PgxDriverDialect) GetDriver() driver.Driver {
	return p.driver
}

func (p *PgxDriverDialect) IsNetworkError(err error) bool {
	return p.errorHandler.IsNetworkError(err)
}

func (p *PgxDriverDialect) IsLoginError(err error) bool {
	return p.errorHandler.IsLoginError(err)
}

func (p *PgxDriverDialect) IsClosed(conn driver.Conn) bool {
	return isClosedByValidator(conn)
}

// PrepareDsn builds a keyword/value connection string pointed at hostInfo.
func (p *PgxDriverDialect) PrepareDsn(properties map[string]string, hostInfo *host_info_util.HostInfo) string {
	copyProps := property_util.RemoveWrapperProperties(properties)
	delete(copyProps, property_util.DRIVER_PROTOCOL.Name)
	delete(copyProps, property_util.NET.Name)
	if !hostInfo.IsNil() {
		copyProps[property_util.HOST.Name] = hostInfo.Host
		if hostInfo.IsPortSpecified() {
			copyProps[property_util.PORT.Name] = strconv.Itoa(hostInfo.Port)
		}
	}

	keys := make([]string, 0, len(copyProps))
	for k := range copyProps {
		if slices.Contains(pgxPersistingProperties, k) || !property_util.ALL_WRAPPER_PROPERTIES[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var builder strings.Builder
	for _, k := range keys {
		if builder.Len() != 0 {
			builder.WriteString(" ")
		}
		builder.WriteString(fmt.Sprintf("%s=%s", k, quotePgValue(copyProps[k])))
	}
	return builder.String()
}

func quotePgValue(value string) string {
	if value != "" && !strings.ContainsAny(value, ` '\`) {
		return value
	}
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `'`, `\'`)
	return "'" + escaped + "'"
}
