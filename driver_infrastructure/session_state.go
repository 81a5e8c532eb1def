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
	"context"
	"database/sql/driver"
	"fmt"

	"github.com/aws/aws-advanced-go-wrapper/failover/utils"
)

type SessionStateField[T comparable] struct {
	value *T
}

func (ssf *SessionStateField[T]) GetValue() *T {
	return ssf.value
}

func (ssf *SessionStateField[T]) SetValue(value T) {
	ssf.value = &value
}

func (ssf *SessionStateField[T]) ResetValue() {
	ssf.value = nil
}

// IsSet reports whether the application has changed this field since the session started.
func (ssf *SessionStateField[T]) IsSet() bool {
	return ssf.value != nil
}

func (ssf *SessionStateField[T]) GetOrDefault(defaultValue T) T {
	if ssf.value == nil {
		return defaultValue
	}
	return *ssf.value
}

// SessionState tracks the session settings the application changed through the wrapper.
// Unset fields were never touched and keep the server default.
type SessionState struct {
	AutoCommit           SessionStateField[bool]
	ReadOnly             SessionStateField[bool]
	TransactionIsolation SessionStateField[TransactionIsolationLevel]
}

func (ss *SessionState) Copy() *SessionState {
	newSessionState := &SessionState{}
	if autoCommit := ss.AutoCommit.GetValue(); autoCommit != nil {
		newSessionState.AutoCommit.SetValue(*autoCommit)
	}
	if readOnly := ss.ReadOnly.GetValue(); readOnly != nil {
		newSessionState.ReadOnly.SetValue(*readOnly)
	}
	if isolation := ss.TransactionIsolation.GetValue(); isolation != nil {
		newSessionState.TransactionIsolation.SetValue(*isolation)
	}
	return newSessionState
}

func (ss *SessionState) Reset() {
	ss.AutoCommit.ResetValue()
	ss.ReadOnly.ResetValue()
	ss.TransactionIsolation.ResetValue()
}

func (ss *SessionState) String() string {
	return fmt.Sprintf(
		"autocommit: %v, readOnly: %v, transactionIsolation: %v",
		ss.AutoCommit.GetOrDefault(true),
		ss.ReadOnly.GetOrDefault(false),
		ss.TransactionIsolation.GetOrDefault(TRANSACTION_READ_COMMITTED),
	)
}

// ApplySessionState replays the tracked settings on conn. A field the dialect cannot set is reset,
// so the state reflects the server defaults of the new session.
func ApplySessionState(ctx context.Context, dialect DatabaseDialect, state *SessionState, conn driver.Conn) error {
	if dialect == nil || state == nil {
		return nil
	}
	if err := applySessionStateField(ctx, conn, &state.AutoCommit, dialect.GetSetAutoCommitQuery); err != nil {
		return err
	}
	if err := applySessionStateField(ctx, conn, &state.ReadOnly, dialect.GetSetReadOnlyQuery); err != nil {
		return err
	}
	return applySessionStateField(ctx, conn, &state.TransactionIsolation, dialect.GetSetTransactionIsolationQuery)
}

func applySessionStateField[T comparable](
	ctx context.Context,
	conn driver.Conn,
	field *SessionStateField[T],
	query func(T) (string, error)) error {
	value := field.GetValue()
	if value == nil {
		return nil
	}
	statement, err := query(*value)
	if err != nil {
		field.ResetValue()
		return nil
	}
	return utils.ExecQuery(ctx, conn, statement)
}
