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

type HostChangeOptions int

const (
	HOSTNAME                  HostChangeOptions = 0
	PROMOTED_TO_WRITER        HostChangeOptions = 1
	PROMOTED_TO_READER        HostChangeOptions = 2
	WENT_UP                   HostChangeOptions = 3
	WENT_DOWN                 HostChangeOptions = 4
	CONNECTION_OBJECT_CHANGED HostChangeOptions = 5
	INITIAL_CONNECTION        HostChangeOptions = 6
	HOST_ADDED                HostChangeOptions = 7
	HOST_CHANGED              HostChangeOptions = 8
	HOST_DELETED              HostChangeOptions = 9
)

var hostChangeOptionNames = map[HostChangeOptions]string{
	HOSTNAME:                  "HOSTNAME",
	PROMOTED_TO_WRITER:        "PROMOTED_TO_WRITER",
	PROMOTED_TO_READER:        "PROMOTED_TO_READER",
	WENT_UP:                   "WENT_UP",
	WENT_DOWN:                 "WENT_DOWN",
	CONNECTION_OBJECT_CHANGED: "CONNECTION_OBJECT_CHANGED",
	INITIAL_CONNECTION:        "INITIAL_CONNECTION",
	HOST_ADDED:                "HOST_ADDED",
	HOST_CHANGED:              "HOST_CHANGED",
	HOST_DELETED:              "HOST_DELETED",
}

func (h HostChangeOptions) String() string {
	return hostChangeOptionNames[h]
}

type OldConnectionSuggestedAction string

const (
	NO_OPINION OldConnectionSuggestedAction = "no_opinion"
	DISPOSE    OldConnectionSuggestedAction = "dispose"
	PRESERVE   OldConnectionSuggestedAction = "preserve"
)

type TransactionIsolationLevel int

const (
	TRANSACTION_READ_UNCOMMITTED TransactionIsolationLevel = 0
	TRANSACTION_READ_COMMITTED   TransactionIsolationLevel = 1
	TRANSACTION_REPEATABLE_READ  TransactionIsolationLevel = 2
	TRANSACTION_SERIALIZABLE     TransactionIsolationLevel = 3
)

func (t TransactionIsolationLevel) String() string {
	switch t {
	case TRANSACTION_READ_UNCOMMITTED:
		return "READ UNCOMMITTED"
	case TRANSACTION_READ_COMMITTED:
		return "READ COMMITTED"
	case TRANSACTION_REPEATABLE_READ:
		return "REPEATABLE READ"
	case TRANSACTION_SERIALIZABLE:
		return "SERIALIZABLE"
	}
	return "UNKNOWN"
}

const (
	AURORA_MYSQL_DIALECT = "aurora-mysql"
	MYSQL_DIALECT        = "mysql"
	AURORA_PG_DIALECT    = "aurora-pg"
	PG_DIALECT           = "pg"
)

const (
	FAILOVER_PLUGIN_CODE                  = "failover"
	AURORA_CONNECTION_TRACKER_PLUGIN_CODE = "auroraConnectionTracker"
	DEFAULT_PLUGIN_CODE                   = "default"
)
