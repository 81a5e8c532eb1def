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

package error_util_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-advanced-go-wrapper/failover/error_util"
	"github.com/stretchr/testify/assert"
)

func TestGetMessage(t *testing.T) {
	assert.Equal(t, "Unknown plugin code: 'efm'.", error_util.GetMessage("ConnectionPluginChainBuilder.unknownPluginCode", "efm"))
	assert.Equal(t, "Invalidating opened connections to host 'instance-1:5432': 3 connections.",
		error_util.GetMessage("OpenedConnectionTracker.invalidatingConnections", "instance-1:5432", 3))
	assert.Equal(t, "Missing.key [a]", error_util.GetMessage("Missing.key", "a"))
}

func TestFailoverSignals(t *testing.T) {
	assert.True(t, error_util.IsFailoverSignal(error_util.FailoverSuccessError))
	assert.True(t, error_util.IsFailoverSignal(error_util.TransactionResolutionUnknownError))
	assert.True(t, error_util.IsFailoverSignal(error_util.NewFailoverFailedError("down")))
	assert.True(t, error_util.IsFailoverSignal(fmt.Errorf("wrapped: %w", error_util.FailoverSuccessError)))
	assert.False(t, error_util.IsFailoverSignal(error_util.NewGenericAwsWrapperError("generic")))
	assert.False(t, error_util.IsFailoverSignal(errors.New("plain")))
	assert.False(t, error_util.IsFailoverSignal(nil))
}

func TestAwsWrapperErrorIsMatchesType(t *testing.T) {
	failed := error_util.NewFailoverFailedError("unable to connect")
	assert.ErrorIs(t, failed, error_util.FailoverFailedError)
	assert.NotErrorIs(t, failed, error_util.FailoverSuccessError)
	assert.True(t, failed.IsType(error_util.FailoverFailedErrorType))
	assert.Equal(t, "unable to connect", failed.Error())

	cause := errors.New("connection refused")
	withCause := error_util.NewFailoverFailedErrorWithCause("unable to connect", cause)
	assert.ErrorIs(t, withCause, cause)

	queryErr := error_util.NewQueryError("query failed", cause)
	assert.ErrorIs(t, queryErr, cause)
	assert.False(t, queryErr.IsFailoverErrorType())

	unsupported := error_util.NewUnsupportedMethodError("Conn.Ping")
	assert.Equal(t, "Method 'Conn.Ping' is not supported by the underlying driver.", unsupported.Error())
	assert.Equal(t, "Host 'instance-2' is unavailable.", error_util.NewUnavailableHostError("instance-2").Error())
}
