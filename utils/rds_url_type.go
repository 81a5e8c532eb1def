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

type RdsUrlType struct {
	IsRds        bool
	IsRdsCluster bool
	Name         string
}

var (
	IP_ADDRESS         = RdsUrlType{IsRds: false, IsRdsCluster: false, Name: "IP_ADDRESS"}
	RDS_WRITER_CLUSTER = RdsUrlType{IsRds: true, IsRdsCluster: true, Name: "RDS_WRITER_CLUSTER"}
	RDS_READER_CLUSTER = RdsUrlType{IsRds: true, IsRdsCluster: true, Name: "RDS_READER_CLUSTER"}
	RDS_CUSTOM_CLUSTER = RdsUrlType{IsRds: true, IsRdsCluster: true, Name: "RDS_CUSTOM_CLUSTER"}
	RDS_PROXY          = RdsUrlType{IsRds: true, IsRdsCluster: false, Name: "RDS_PROXY"}
	RDS_INSTANCE       = RdsUrlType{IsRds: true, IsRdsCluster: false, Name: "RDS_INSTANCE"}
	OTHER              = RdsUrlType{IsRds: false, IsRdsCluster: false, Name: "OTHER"}
)

func (t RdsUrlType) String() string {
	return t.Name
}
