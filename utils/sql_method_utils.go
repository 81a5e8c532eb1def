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
	"regexp"
	"strings"
)

const SET_AUTOCOMMIT_0 = "SET AUTOCOMMIT = 0"

var (
	blockCommentRegexp = regexp.MustCompile(`\s*/\*(.*?)\*/\s*`)
	whitespaceRegexp   = regexp.MustCompile(`\s+`)
	autoCommitRegexp   = regexp.MustCompile(`^SET AUTOCOMMIT\s*=\s*(0|1|OFF|ON|FALSE|TRUE)$`)
)

func DoesOpenTransaction(method Method, methodArgs ...any) bool {
	if method == CONN_BEGIN_TX || method == CONN_BEGIN {
		return true
	}
	query := firstStringArg(methodArgs)
	if query == "" {
		return false
	}

	return doesStatementStartTransaction(GetSeparateSqlStatements(query))
}

func DoesCloseTransaction(method Method, methodArgs ...any) bool {
	if method == TX_ROLLBACK || method == TX_COMMIT {
		return true
	}
	query := firstStringArg(methodArgs)
	if query == "" {
		return false
	}

	return doesStatementCloseTransaction(GetSeparateSqlStatements(query))
}

// DoesSetAutoCommit returns the auto-commit value a statement sets, if any.
func DoesSetAutoCommit(statement string) (bool, bool) {
	for _, stmt := range GetSeparateSqlStatements(statement) {
		groups := autoCommitRegexp.FindStringSubmatch(stmt)
		if groups == nil {
			continue
		}
		switch groups[1] {
		case "1", "ON", "TRUE":
			return true, true
		default:
			return false, true
		}
	}
	return false, false
}

// GetSeparateSqlStatements splits query on ';' and normalizes each statement to upper case without comments.
func GetSeparateSqlStatements(query string) []string {
	statementList := parseMultiStatementQueries(query)
	if len(statementList) == 0 {
		return []string{}
	}

	statements := make([]string, 0, len(statementList))
	for _, statement := range statementList {
		statement = strings.ToUpper(statement)
		statement = strings.TrimSpace(blockCommentRegexp.ReplaceAllString(statement, " "))
		if statement != "" {
			statements = append(statements, statement)
		}
	}
	return statements
}

func parseMultiStatementQueries(query string) []string {
	if query == "" {
		return []string{}
	}

	query = strings.TrimSpace(whitespaceRegexp.ReplaceAllString(query, " "))
	if query == "" {
		return []string{}
	}

	return strings.Split(query, ";")
}

func doesStatementStartTransaction(statements []string) bool {
	for _, statement := range statements {
		if strings.HasPrefix(statement, "BEGIN") || strings.HasPrefix(statement, "START TRANSACTION") || statement == SET_AUTOCOMMIT_0 {
			return true
		}
		if groups := autoCommitRegexp.FindStringSubmatch(statement); groups != nil && (groups[1] == "0" || groups[1] == "OFF" || groups[1] == "FALSE") {
			return true
		}
	}
	return false
}

func doesStatementCloseTransaction(statements []string) bool {
	for _, statement := range statements {
		if strings.HasPrefix(statement, "COMMIT") ||
			strings.HasPrefix(statement, "ROLLBACK") ||
			strings.HasPrefix(statement, "END") ||
			strings.HasPrefix(statement, "ABORT") {
			return true
		}
	}
	return false
}

func firstStringArg(methodArgs []any) string {
	if len(methodArgs) == 0 {
		return ""
	}
	query, _ := methodArgs[0].(string)
	return query
}
