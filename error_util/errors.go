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

package error_util

import "errors"

type AwsWrapperErrorType int

const (
	GenericAwsWrapperErrorType            AwsWrapperErrorType = 0
	UnsupportedMethodErrorType            AwsWrapperErrorType = 2
	IllegalArgumentErrorType              AwsWrapperErrorType = 3
	LoginErrorType                        AwsWrapperErrorType = 4
	InternalQueryTimeoutErrorType         AwsWrapperErrorType = 5
	UnavailableHostErrorType              AwsWrapperErrorType = 6
	DsnParsingErrorType                   AwsWrapperErrorType = 7
	QueryErrorType                        AwsWrapperErrorType = 8
	ClosedConnectionErrorType             AwsWrapperErrorType = 9
	FailoverSuccessErrorType              AwsWrapperErrorType = 300
	FailoverFailedErrorType               AwsWrapperErrorType = 301
	TransactionResolutionUnknownErrorType AwsWrapperErrorType = 302
)

type AwsWrapperError struct {
	Message   string
	ErrorType AwsWrapperErrorType
	cause     error
}

func (a *AwsWrapperError) Error() string {
	return a.Message
}

func (a *AwsWrapperError) Unwrap() error {
	return a.cause
}

// Is reports a match on error type so that a freshly built signal error satisfies
// errors.Is(err, FailoverSuccessError).
func (a *AwsWrapperError) Is(target error) bool {
	other, ok := target.(*AwsWrapperError)
	if !ok {
		return false
	}
	return a.ErrorType == other.ErrorType
}

func (a *AwsWrapperError) IsType(errorType AwsWrapperErrorType) bool {
	return a.ErrorType == errorType
}

func (a *AwsWrapperError) IsFailoverErrorType() bool {
	return a.ErrorType >= FailoverSuccessErrorType
}

func NewGenericAwsWrapperError(message string) *AwsWrapperError {
	return &AwsWrapperError{Message: message, ErrorType: GenericAwsWrapperErrorType}
}

func NewUnsupportedMethodError(methodName string) *AwsWrapperError {
	return &AwsWrapperError{Message: GetMessage("Conn.unsupportedMethodError", methodName), ErrorType: UnsupportedMethodErrorType}
}

func NewIllegalArgumentError(message string) *AwsWrapperError {
	return &AwsWrapperError{Message: message, ErrorType: IllegalArgumentErrorType}
}

func NewUnavailableHostError(host string) *AwsWrapperError {
	return &AwsWrapperError{Message: GetMessage("AwsWrapperError.unavailableHost", host), ErrorType: UnavailableHostErrorType}
}

func NewDsnParsingError(message string) *AwsWrapperError {
	return &AwsWrapperError{Message: message, ErrorType: DsnParsingErrorType}
}

func NewQueryError(message string, cause error) *AwsWrapperError {
	return &AwsWrapperError{Message: message, ErrorType: QueryErrorType, cause: cause}
}

func NewClosedConnectionError(message string) *AwsWrapperError {
	return &AwsWrapperError{Message: message, ErrorType: ClosedConnectionErrorType}
}

func NewFailoverFailedError(message string) *AwsWrapperError {
	return &AwsWrapperError{Message: message, ErrorType: FailoverFailedErrorType}
}

func NewFailoverFailedErrorWithCause(message string, cause error) *AwsWrapperError {
	return &AwsWrapperError{Message: message, ErrorType: FailoverFailedErrorType, cause: cause}
}

var FailoverSuccessError = &AwsWrapperError{
	Message:   GetMessage("Failover.connectionChangedError"),
	ErrorType: FailoverSuccessErrorType,
}

var TransactionResolutionUnknownError = &AwsWrapperError{
	Message:   GetMessage("Failover.transactionResolutionUnknownError"),
	ErrorType: TransactionResolutionUnknownErrorType,
}

var InternalQueryTimeoutError = &AwsWrapperError{
	Message:   GetMessage("AwsWrapperError.internalQueryTimeout"),
	ErrorType: InternalQueryTimeoutErrorType,
}

var FailoverFailedError = &AwsWrapperError{
	Message:   GetMessage("Failover.unableToConnect"),
	ErrorType: FailoverFailedErrorType,
}

// IsFailoverSignal reports whether err wraps one of the failover outcome errors.
func IsFailoverSignal(err error) bool {
	var awsErr *AwsWrapperError
	return errors.As(err, &awsErr) && awsErr.IsFailoverErrorType()
}
