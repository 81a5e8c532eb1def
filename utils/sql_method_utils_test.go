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
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/aws/aws-advanced-go-wrapper/failover/test_utils"
	"github.com/aws/aws-advanced-go-wrapper/failover/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoesOpenTransaction(t *testing.T) {
	assert.True(t, utils.DoesOpenTransaction(utils.CONN_BEGIN_TX))
	assert.True(t, utils.DoesOpenTransaction(utils.CONN_EXEC_CONTEXT, "begin"))
	assert.True(t, utils.DoesOpenTransaction(utils.CONN_EXEC_CONTEXT, "  START   TRANSACTION read only"))
	assert.True(t, utils.DoesOpenTransaction(utils.CONN_EXEC_CONTEXT, "select 1; set autocommit = off"))
	assert.True(t, utils.DoesOpenTransaction(utils.CONN_EXEC_CONTEXT, "/* comment */ begin"))
	assert.False(t, utils.DoesOpenTransaction(utils.CONN_EXEC_CONTEXT, "select 1"))
	assert.False(t, utils.DoesOpenTransaction(utils.CONN_EXEC_CONTEXT))
	assert.False(t, utils.DoesOpenTransaction(utils.CONN_EXEC_CONTEXT, 42))
}

func TestDoesCloseTransaction(t *testing.T) {
	assert.True(t, utils.DoesCloseTransaction(utils.TX_COMMIT))
	assert.True(t, utils.DoesCloseTransaction(utils.TX_ROLLBACK))
	assert.True(t, utils.DoesCloseTransaction(utils.CONN_EXEC_CONTEXT, "commit"))
	assert.True(t, utils.DoesCloseTransaction(utils.CONN_EXEC_CONTEXT, "update t set a = 1; rollback"))
	assert.True(t, utils.DoesCloseTransaction(utils.CONN_EXEC_CONTEXT, "END"))
	assert.False(t, utils.DoesCloseTransaction(utils.CONN_EXEC_CONTEXT, "select 1"))
}

func TestDoesSetAutoCommit(t *testing.T) {
	value, ok := utils.DoesSetAutoCommit("set autocommit = 1")
	assert.True(t, ok)
	assert.True(t, value)

	value, ok = utils.DoesSetAutoCommit("SET AUTOCOMMIT=OFF")
	assert.True(t, ok)
	assert.False(t, value)

	_, ok = utils.DoesSetAutoCommit("select 1")
	assert.False(t, ok)
}

func TestGetSeparateSqlStatements(t *testing.T) {
	statements := utils.GetSeparateSqlStatements(" select 1 ;\n /* hint */ update t  set a=1; ")
	assert.Equal(t, []string{"SELECT 1", "UPDATE T SET A=1"}, statements)
	assert.Empty(t, utils.GetSeparateSqlStatements(""))
}

func TestMethodSet(t *testing.T) {
	set := utils.NewMethodSet(utils.CONN_CLOSE, utils.ROWS_NEXT)
	assert.True(t, set.Contains(utils.CONN_CLOSE))
	assert.True(t, set.Contains(utils.ROWS_NEXT))
	assert.False(t, set.Contains(utils.CONN_PING))
	assert.False(t, set.Contains(utils.ALL_METHODS))

	all := utils.NewMethodSet(utils.CONN_PING, utils.ALL_METHODS)
	for method := utils.CONNECT; method < utils.METHOD_COUNT; method++ {
		assert.True(t, all.Contains(method), method.String())
	}

	assert.True(t, utils.CLOSING_METHODS.Contains(utils.STMT_CLOSE))
	assert.False(t, utils.CLOSING_METHODS.Contains(utils.CONN_QUERY_CONTEXT))
	assert.Equal(t, "Conn.QueryContext", utils.CONN_QUERY_CONTEXT.String())
	assert.Equal(t, "*", utils.ALL_METHODS.String())
}

func TestQueryRows(t *testing.T) {
	conn := test_utils.NewMockConn("host")
	conn.QueryFunc = func(query string) (driver.Rows, error) {
		return test_utils.NewMockRows([]string{"id", "is_writer"},
			[]driver.Value{"instance-1", true},
			[]driver.Value{"instance-2", false}), nil
	}

	rows, err := utils.QueryRows(context.Background(), conn, "select")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "instance-2", utils.ToString(rows[1][0]))

	assert.Equal(t, []driver.Value{"instance-1", true}, utils.GetFirstRowFromQuery(conn, "select"))

	conn.SetQueryErr(test_utils.ErrMockNetwork)
	_, err = utils.QueryRows(context.Background(), conn, "select")
	assert.ErrorIs(t, err, test_utils.ErrMockNetwork)
	assert.Nil(t, utils.GetFirstRowFromQuery(conn, "select"))
}

func TestExecQuery(t *testing.T) {
	conn := test_utils.NewMockConn("host")
	require.NoError(t, utils.ExecQuery(context.Background(), conn, "SET SESSION x = 1"))
	assert.Equal(t, []string{"SET SESSION x = 1"}, conn.Execs())

	_ = conn.Close()
	assert.ErrorIs(t, utils.ExecQuery(context.Background(), conn, "select"), driver.ErrBadConn)
}

func TestValueConversions(t *testing.T) {
	assert.Equal(t, "abc", utils.ToString([]byte("abc")))
	assert.Equal(t, "12", utils.ToString(int64(12)))
	assert.Equal(t, "", utils.ToString(nil))

	f, err := utils.ToFloat64("1.5")
	assert.NoError(t, err)
	assert.Equal(t, 1.5, f)
	f, err = utils.ToFloat64(int64(3))
	assert.NoError(t, err)
	assert.Equal(t, 3.0, f)

	b, err := utils.ToBool("t")
	assert.NoError(t, err)
	assert.True(t, b)
	b, err = utils.ToBool(int64(0))
	assert.NoError(t, err)
	assert.False(t, b)
	_, err = utils.ToBool("maybe")
	assert.Error(t, err)

	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, now, utils.ToTime(now))
	assert.Equal(t, now, utils.ToTime("2024-01-02 03:04:05"))
	assert.True(t, utils.ToTime("garbage").IsZero())
}
