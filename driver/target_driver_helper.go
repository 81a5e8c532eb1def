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
	"github.com/aws/aws-advanced-go-wrapper/failover/driver_infrastructure"
	"github.com/aws/aws-advanced-go-wrapper/failover/error_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/property_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/utils"
)

type DatabaseEngine string

const (
	MYSQL DatabaseEngine = "mysql"
	PG    DatabaseEngine = "postgres"
)

func GetDatabaseEngine(props map[string]string) (DatabaseEngine, error) {
	switch property_util.DRIVER_PROTOCOL.Get(props) {
	case utils.MYSQL_DRIVER_PROTOCOL:
		return MYSQL, nil
	case utils.PGX_DRIVER_PROTOCOL:
		return PG, nil
	}
	return "", error_util.NewIllegalArgumentError(
		error_util.GetMessage("TargetDriverHelper.invalidProtocol", property_util.DRIVER_PROTOCOL.Get(props)))
}

// GetTargetDriverDialect picks the driver that physically connects for the given engine.
func GetTargetDriverDialect(engine DatabaseEngine) driver_infrastructure.DriverDialect {
	if engine == MYSQL {
		return driver_infrastructure.NewMySQLDriverDialect()
	}
	return driver_infrastructure.NewPgxDriverDialect()
}
