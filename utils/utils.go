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

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"
)

var ErrQueryNotSupported = errors.New("connection does not implement driver.QueryerContext")
var ErrExecNotSupported = errors.New("connection does not implement driver.ExecerContext")

// QueryRows executes query directly on conn, bypassing any plugins, and returns every row.
func QueryRows(ctx context.Context, conn driver.Conn, query string) ([][]driver.Value, error) {
	queryerCtx, ok := conn.(driver.QueryerContext)
	if !ok {
		return nil, ErrQueryNotSupported
	}

	rows, err := queryerCtx.QueryContext(ctx, query, nil)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result [][]driver.Value
	for {
		row := make([]driver.Value, len(rows.Columns()))
		err = rows.Next(row)
		if errors.Is(err, io.EOF) {
			return result, nil
		}
		if err != nil {
			return nil, err
		}
		result = append(result, row)
	}
}

// GetFirstRowFromQuery directly executes query on conn and returns the first row.
// Returns nil if unable to obtain a row.
func GetFirstRowFromQuery(conn driver.Conn, query string) []driver.Value {
	rows, err := QueryRows(context.Background(), conn, query)
	if err != nil || len(rows) == 0 {
		return nil
	}
	return rows[0]
}

// ExecQuery directly executes statement on conn, bypassing any plugins.
func ExecQuery(ctx context.Context, conn driver.Conn, statement string) error {
	execerCtx, ok := conn.(driver.ExecerContext)
	if !ok {
		return ErrExecNotSupported
	}
	_, err := execerCtx.ExecContext(ctx, statement, nil)
	return err
}

func ToString(value driver.Value) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

func ToFloat64(value driver.Value) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case nil:
		return 0, nil
	default:
		return strconv.ParseFloat(ToString(v), 64)
	}
}

func ToBool(value driver.Value) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	case int32:
		return v != 0, nil
	case int:
		return v != 0, nil
	default:
		s := ToString(v)
		if s == "t" || s == "f" {
			return s == "t", nil
		}
		return strconv.ParseBool(s)
	}
}

func ToTime(value driver.Value) time.Time {
	switch v := value.(type) {
	case time.Time:
		return v
	default:
		parsed, err := time.Parse(time.DateTime, ToString(v))
		if err != nil {
			return time.Time{}
		}
		return parsed
	}
}
