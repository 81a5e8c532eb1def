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

	"github.com/aws/aws-advanced-go-wrapper/failover/host_info_util"
)

type ErrorHandler interface {
	IsNetworkError(err error) bool
	IsLoginError(err error) bool
}

// DriverDialect adapts a target driver to the wrapper.
type DriverDialect interface {
	ErrorHandler
	IsDialect(driver driver.Driver) bool
	GetDriver() driver.Driver
	PrepareDsn(properties map[string]string, hostInfo *host_info_util.HostInfo) string
	IsClosed(conn driver.Conn) bool
}

func isClosedByValidator(conn driver.Conn) bool {
	if conn == nil {
		return true
	}
	validator, ok := conn.(driver.Validator)
	if ok {
		return !validator.IsValid()
	}
	return false
}
