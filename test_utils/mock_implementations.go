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

package test_utils

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-advanced-go-wrapper/failover/driver_infrastructure"
	"github.com/aws/aws-advanced-go-wrapper/failover/host_info_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/utils"
)

// ErrMockNetwork is reported as a network error by MockDriverDialect.
var ErrMockNetwork = errors.New("mock network error: connection reset by peer")

// ErrMockLogin is reported as a login error by MockDriverDialect.
var ErrMockLogin = errors.New("mock login error: access denied")

type MockRows struct {
	columns []string
	rows    [][]driver.Value
	index   int
	NextErr error
	closed  bool
}

func NewMockRows(columns []string, rows ...[]driver.Value) *MockRows {
	return &MockRows{columns: columns, rows: rows}
}

func (m *MockRows) Columns() []string {
	return m.columns
}

func (m *MockRows) Close() error {
	m.closed = true
	return nil
}

func (m *MockRows) Next(dest []driver.Value) error {
	if m.NextErr != nil {
		return m.NextErr
	}
	if m.index >= len(m.rows) {
		return io.EOF
	}
	copy(dest, m.rows[m.index])
	m.index++
	return nil
}

type MockResult struct {
	Affected int64
}

func (m MockResult) LastInsertId() (int64, error) {
	return 0, nil
}

func (m MockResult) RowsAffected() (int64, error) {
	return m.Affected, nil
}

type MockTx struct {
	conn *MockConn
}

func (m *MockTx) Commit() error {
	return m.conn.recordExec("COMMIT")
}

func (m *MockTx) Rollback() error {
	return m.conn.recordExec("ROLLBACK")
}

// MockConn is a physical connection to Host. QueryFunc answers queries; ExecErr and QueryErr
// make every call fail.
type MockConn struct {
	Host      string
	QueryFunc func(query string) (driver.Rows, error)
	ExecErr   error
	QueryErr  error
	lock      sync.Mutex
	closed    bool
	execs     []string
}

func NewMockConn(host string) *MockConn {
	return &MockConn{Host: host}
}

func (m *MockConn) Prepare(query string) (driver.Stmt, error) {
	return &MockStmt{conn: m, query: query}, nil
}

func (m *MockConn) Close() error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.closed = true
	return nil
}

func (m *MockConn) Begin() (driver.Tx, error) {
	if err := m.recordExec("BEGIN"); err != nil {
		return nil, err
	}
	return &MockTx{conn: m}, nil
}

func (m *MockConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	m.lock.Lock()
	queryErr, queryFunc, closed := m.QueryErr, m.QueryFunc, m.closed
	m.lock.Unlock()
	if closed {
		return nil, driver.ErrBadConn
	}
	if queryErr != nil {
		return nil, queryErr
	}
	if queryFunc != nil {
		return queryFunc(query)
	}
	return NewMockRows([]string{"result"}), nil
}

func (m *MockConn) ExecContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Result, error) {
	if err := m.recordExec(query); err != nil {
		return nil, err
	}
	return MockResult{Affected: 1}, nil
}

func (m *MockConn) recordExec(statement string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.closed {
		return driver.ErrBadConn
	}
	if m.ExecErr != nil {
		return m.ExecErr
	}
	m.execs = append(m.execs, statement)
	return nil
}

func (m *MockConn) IsValid() bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	return !m.closed
}

func (m *MockConn) SetQueryErr(err error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.QueryErr = err
}

func (m *MockConn) IsClosed() bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.closed
}

func (m *MockConn) Execs() []string {
	m.lock.Lock()
	defer m.lock.Unlock()
	return append([]string(nil), m.execs...)
}

type MockStmt struct {
	conn  *MockConn
	query string
}

func (m *MockStmt) Close() error {
	return nil
}

func (m *MockStmt) NumInput() int {
	return -1
}

func (m *MockStmt) Exec(_ []driver.Value) (driver.Result, error) {
	return m.conn.ExecContext(context.Background(), m.query, nil)
}

func (m *MockStmt) Query(_ []driver.Value) (driver.Rows, error) {
	return m.conn.QueryContext(context.Background(), m.query, nil)
}

// MockDriverDialect treats ErrMockNetwork as a network error and ErrMockLogin as a login error.
type MockDriverDialect struct {
}

func (m *MockDriverDialect) IsNetworkError(err error) bool {
	return errors.Is(err, ErrMockNetwork) || errors.Is(err, driver.ErrBadConn)
}

func (m *MockDriverDialect) IsLoginError(err error) bool {
	return errors.Is(err, ErrMockLogin)
}

func (m *MockDriverDialect) IsDialect(_ driver.Driver) bool {
	return true
}

func (m *MockDriverDialect) GetDriver() driver.Driver {
	return nil
}

func (m *MockDriverDialect) PrepareDsn(_ map[string]string, hostInfo *host_info_util.HostInfo) string {
	return hostInfo.GetHostAndPort()
}

func (m *MockDriverDialect) IsClosed(conn driver.Conn) bool {
	if mockConn, ok := conn.(*MockConn); ok {
		return mockConn.IsClosed()
	}
	return conn == nil
}

// MockConnectionProvider opens MockConns. ConnectFunc overrides the default of one new MockConn
// per call.
type MockConnectionProvider struct {
	ConnectFunc func(hostInfo *host_info_util.HostInfo) (driver.Conn, error)
	lock        sync.Mutex
	attempts    []string
	opened      []*MockConn
}

func (m *MockConnectionProvider) AcceptsUrl(_ *host_info_util.HostInfo, _ map[string]string) bool {
	return true
}

func (m *MockConnectionProvider) Connect(
	hostInfo *host_info_util.HostInfo,
	_ map[string]string,
	_ driver_infrastructure.PluginService) (driver.Conn, error) {
	m.lock.Lock()
	m.attempts = append(m.attempts, hostInfo.Host)
	connectFunc := m.ConnectFunc
	m.lock.Unlock()

	var conn driver.Conn
	var err error
	if connectFunc != nil {
		conn, err = connectFunc(hostInfo)
	} else {
		conn = NewMockConn(hostInfo.Host)
	}
	if mockConn, ok := conn.(*MockConn); ok && err == nil {
		m.lock.Lock()
		m.opened = append(m.opened, mockConn)
		m.lock.Unlock()
	}
	return conn, err
}

func (m *MockConnectionProvider) Attempts() []string {
	m.lock.Lock()
	defer m.lock.Unlock()
	return append([]string(nil), m.attempts...)
}

func (m *MockConnectionProvider) Opened() []*MockConn {
	m.lock.Lock()
	defer m.lock.Unlock()
	return append([]*MockConn(nil), m.opened...)
}

// MockHostListProvider returns Topology, or TopologyFunc's answer for the given connection.
type MockHostListProvider struct {
	Topology     []*host_info_util.HostInfo
	TopologyFunc func(conn driver.Conn) ([]*host_info_util.HostInfo, error)
	ClusterId    string
	Static       bool
	lock         sync.Mutex
	refreshes    int
}

func (m *MockHostListProvider) Refresh(conn driver.Conn) ([]*host_info_util.HostInfo, error) {
	return m.ForceRefresh(conn)
}

func (m *MockHostListProvider) ForceRefresh(conn driver.Conn) ([]*host_info_util.HostInfo, error) {
	m.lock.Lock()
	m.refreshes++
	topologyFunc, topology := m.TopologyFunc, m.Topology
	m.lock.Unlock()
	if topologyFunc != nil {
		return topologyFunc(conn)
	}
	return topology, nil
}

func (m *MockHostListProvider) SetTopology(topology []*host_info_util.HostInfo) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.Topology = topology
}

func (m *MockHostListProvider) RefreshCount() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.refreshes
}

func (m *MockHostListProvider) GetHostRole(conn driver.Conn) (host_info_util.HostRole, error) {
	host, err := m.IdentifyConnection(conn)
	if err != nil || host.IsNil() {
		return host_info_util.UNKNOWN, err
	}
	return host.Role, nil
}

func (m *MockHostListProvider) IdentifyConnection(conn driver.Conn) (*host_info_util.HostInfo, error) {
	mockConn, ok := conn.(*MockConn)
	if !ok {
		return nil, nil
	}
	topology, err := m.ForceRefresh(conn)
	if err != nil {
		return nil, err
	}
	return host_info_util.FindHostInTopology(topology, mockConn.Host), nil
}

func (m *MockHostListProvider) GetClusterId() (string, error) {
	return m.ClusterId, nil
}

func (m *MockHostListProvider) IsStaticHostListProvider() bool {
	return m.Static
}

func (m *MockHostListProvider) CreateHost(hostName string, isWriter bool, _ float64, _ float64, lastUpdateTime time.Time) *host_info_util.HostInfo {
	role := host_info_util.READER
	if isWriter {
		role = host_info_util.WRITER
	}
	host, _ := host_info_util.NewHostInfoBuilder().SetHost(hostName).SetRole(role).SetLastUpdateTime(lastUpdateTime).Build()
	return host
}

// TestPlugin appends "<name>:before" and "<name>:after" around every call it is subscribed to.
type TestPlugin struct {
	Name       string
	Methods    []utils.Method
	Calls      *[]string
	Err        error
	Connection driver.Conn
}

func NewTestPlugin(name string, calls *[]string, methods ...utils.Method) *TestPlugin {
	if len(methods) == 0 {
		methods = []utils.Method{utils.ALL_METHODS}
	}
	return &TestPlugin{Name: name, Methods: methods, Calls: calls}
}

func (t *TestPlugin) record(event string) {
	*t.Calls = append(*t.Calls, fmt.Sprintf("%s:%s", t.Name, event))
}

func (t *TestPlugin) GetPluginCode() string {
	return strings.ToLower(t.Name)
}

func (t *TestPlugin) GetSubscribedMethods() []utils.Method {
	return t.Methods
}

func (t *TestPlugin) Execute(
	_ driver.Conn,
	_ utils.Method,
	executeFunc driver_infrastructure.ExecuteFunc,
	_ ...any) (any, any, bool, error) {
	t.record("before")
	if t.Err != nil {
		return nil, nil, false, t.Err
	}
	result, result2, ok, err := executeFunc()
	t.record("after")
	return result, result2, ok, err
}

func (t *TestPlugin) Connect(
	_ *host_info_util.HostInfo,
	_ map[string]string,
	_ bool,
	connectFunc driver_infrastructure.ConnectFunc) (driver.Conn, error) {
	t.record("before connect")
	if t.Connection != nil {
		t.record("connection")
		return t.Connection, nil
	}
	conn, err := connectFunc()
	t.record("after connect")
	return conn, err
}

func (t *TestPlugin) ForceConnect(
	hostInfo *host_info_util.HostInfo,
	props map[string]string,
	isInitialConnection bool,
	connectFunc driver_infrastructure.ConnectFunc) (driver.Conn, error) {
	return t.Connect(hostInfo, props, isInitialConnection, connectFunc)
}

func (t *TestPlugin) NotifyConnectionChanged(_ map[driver_infrastructure.HostChangeOptions]bool) driver_infrastructure.OldConnectionSuggestedAction {
	t.record("notifyConnectionChanged")
	return driver_infrastructure.NO_OPINION
}

func (t *TestPlugin) NotifyHostListChanged(_ map[string]map[driver_infrastructure.HostChangeOptions]bool) {
	t.record("notifyHostListChanged")
}

func (t *TestPlugin) InitHostProvider(
	_ map[string]string,
	_ driver_infrastructure.HostListProviderService,
	initHostProviderFunc func() error) error {
	t.record("initHostProvider")
	return initHostProviderFunc()
}
