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

package utils_test

import (
	"testing"

	"github.com/aws/aws-advanced-go-wrapper/failover/utils"
	"github.com/stretchr/testify/assert"
)

const (
	usEastRegionCluster         = "database-test-name.cluster-XYZ.us-east-2.rds.amazonaws.com"
	usEastRegionClusterReadOnly = "database-test-name.cluster-ro-XYZ.us-east-2.rds.amazonaws.com"
	usEastRegionInstance        = "instance-test-name.XYZ.us-east-2.rds.amazonaws.com"
	usEastRegionProxy           = "proxy-test-name.proxy-XYZ.us-east-2.rds.amazonaws.com"
	usEastRegionCustomDomain    = "custom-test-name.cluster-custom-XYZ.us-east-2.rds.amazonaws.com"

	chinaRegionCluster         = "database-test-name.cluster-XYZ.rds.cn-northwest-1.amazonaws.com.cn"
	chinaRegionClusterReadOnly = "database-test-name.cluster-ro-XYZ.rds.cn-northwest-1.amazonaws.com.cn"
	chinaRegionInstance        = "instance-test-name.XYZ.rds.cn-northwest-1.amazonaws.com.cn"

	oldChinaRegionCluster  = "database-test-name.cluster-XYZ.cn-northwest-1.rds.amazonaws.com.cn"
	oldChinaRegionInstance = "instance-test-name.XYZ.cn-northwest-1.rds.amazonaws.com.cn"

	usIsobEastRegionCluster  = "database-test-name.cluster-XYZ.rds.us-isob-east-1.sc2s.sgov.gov"
	usIsoEastRegionInstance  = "instance-test-name.XYZ.rds.us-iso-east-1.c2s.ic.gov"
	usGovEastRegionClusterRo = "database-test-name.cluster-ro-XYZ.rds.us-gov-east-1.amazonaws.com"

	usEastRegionElbUrl = "elb-name.elb.us-east-2.amazonaws.com"
)

func TestIsRdsDns(t *testing.T) {
	assert.True(t, utils.IsRdsDns(usEastRegionCluster))
	assert.True(t, utils.IsRdsDns(usEastRegionClusterReadOnly))
	assert.True(t, utils.IsRdsDns(usEastRegionInstance))
	assert.True(t, utils.IsRdsDns(usEastRegionProxy))
	assert.True(t, utils.IsRdsDns(usEastRegionCustomDomain))
	assert.False(t, utils.IsRdsDns(usEastRegionElbUrl))

	assert.True(t, utils.IsRdsDns(chinaRegionCluster))
	assert.True(t, utils.IsRdsDns(oldChinaRegionInstance))
	assert.True(t, utils.IsRdsDns(usIsobEastRegionCluster))
	assert.True(t, utils.IsRdsDns(usIsoEastRegionInstance))
	assert.False(t, utils.IsRdsDns(""))
}

func TestIsWriterClusterDns(t *testing.T) {
	assert.True(t, utils.IsWriterClusterDns(usEastRegionCluster))
	assert.False(t, utils.IsWriterClusterDns(usEastRegionClusterReadOnly))
	assert.False(t, utils.IsWriterClusterDns(usEastRegionInstance))
	assert.False(t, utils.IsWriterClusterDns(usEastRegionProxy))
	assert.False(t, utils.IsWriterClusterDns(usEastRegionCustomDomain))
	assert.True(t, utils.IsWriterClusterDns(chinaRegionCluster))
	assert.True(t, utils.IsWriterClusterDns(oldChinaRegionCluster))
	assert.True(t, utils.IsWriterClusterDns(usIsobEastRegionCluster))
}

func TestIsReaderClusterDns(t *testing.T) {
	assert.False(t, utils.IsReaderClusterDns(usEastRegionCluster))
	assert.True(t, utils.IsReaderClusterDns(usEastRegionClusterReadOnly))
	assert.False(t, utils.IsReaderClusterDns(usEastRegionInstance))
	assert.True(t, utils.IsReaderClusterDns(chinaRegionClusterReadOnly))
	assert.True(t, utils.IsReaderClusterDns(usGovEastRegionClusterRo))
}

func TestIdentifyRdsUrlType(t *testing.T) {
	tests := map[string]utils.RdsUrlType{
		"":                          utils.OTHER,
		"10.0.0.1":                  utils.IP_ADDRESS,
		"2001:db8:85a3::8a2e:370":   utils.IP_ADDRESS,
		usEastRegionCluster:         utils.RDS_WRITER_CLUSTER,
		usEastRegionClusterReadOnly: utils.RDS_READER_CLUSTER,
		usEastRegionCustomDomain:    utils.RDS_CUSTOM_CLUSTER,
		usEastRegionProxy:           utils.RDS_PROXY,
		usEastRegionInstance:        utils.RDS_INSTANCE,
		usEastRegionElbUrl:          utils.OTHER,
		"localhost":                 utils.OTHER,
	}
	for host, expected := range tests {
		assert.Equal(t, expected, utils.IdentifyRdsUrlType(host), host)
	}
	assert.True(t, utils.RDS_READER_CLUSTER.IsRdsCluster)
	assert.False(t, utils.RDS_INSTANCE.IsRdsCluster)
	assert.Equal(t, "RDS_PROXY", utils.RDS_PROXY.String())
}

func TestIsRdsInstance(t *testing.T) {
	assert.True(t, utils.IsRdsInstance(usEastRegionInstance))
	assert.True(t, utils.IsRdsInstance(chinaRegionInstance))
	assert.False(t, utils.IsRdsInstance(usEastRegionCluster))
	assert.False(t, utils.IsRdsInstance(usEastRegionProxy))
	assert.False(t, utils.IsRdsInstance("localhost"))
}

func TestGetRdsInstanceHostPattern(t *testing.T) {
	assert.Equal(t, "?.XYZ.us-east-2.rds.amazonaws.com", utils.GetRdsInstanceHostPattern(usEastRegionCluster))
	assert.Equal(t, "?.XYZ.rds.cn-northwest-1.amazonaws.com.cn", utils.GetRdsInstanceHostPattern(chinaRegionClusterReadOnly))
	assert.Equal(t, "?", utils.GetRdsInstanceHostPattern("localhost"))
}

func TestGetRdsClusterHostUrl(t *testing.T) {
	assert.Equal(t, usEastRegionCluster, utils.GetRdsClusterHostUrl(usEastRegionClusterReadOnly))
	assert.Equal(t, usEastRegionCluster, utils.GetRdsClusterHostUrl(usEastRegionCluster))
	assert.Equal(t, "", utils.GetRdsClusterHostUrl(usEastRegionInstance))
	assert.Equal(t, "", utils.GetRdsClusterHostUrl(usEastRegionProxy))
}
