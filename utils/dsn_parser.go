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
	"errors"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/aws/aws-advanced-go-wrapper/failover/error_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/host_info_util"
	"github.com/aws/aws-advanced-go-wrapper/failover/property_util"
)

const (
	PGX_DRIVER_PROTOCOL   = "postgresql"
	MYSQL_DRIVER_PROTOCOL = "mysql"
)

var (
	pgxKeyValueDsnPattern = regexp.MustCompile("([a-zA-Z0-9]+=[-a-zA-Z0-9+&@#/%?=~_!:,.']+[ ]*)+")
	mySqlDsnPattern       = regexp.MustCompile(`^(?:(?P<user>[^:@/]+)(?::(?P<passwd>[^@/]*))?@)?` + // [user[:password]@]
		`(?:(?P<net>[^()/:?]+)?(?:\((?P<addr>[^\)]*)\))?)?` + // [net[(addr)]]
		`/(?P<dbname>[^?]*)` + // /dbname
		`(?:\?(?P<params>.*))?` + // [?param1=value1&paramN=valueN]
		`$`)
	pgxNameMap = map[string]string{"dbname": property_util.DATABASE.Name}
)

// GetHostsFromProps builds the initial host list from parsed DSN properties. The first host is the
// writer unless it is a reader cluster endpoint; the remaining hosts are readers.
func GetHostsFromProps(props map[string]string) ([]*host_info_util.HostInfo, error) {
	hostValue := property_util.HOST.Get(props)
	if hostValue == "" {
		return nil, nil
	}
	hostStringList := strings.Split(hostValue, ",")
	portStringList := strings.Split(property_util.PORT.Get(props), ",")

	var hosts []*host_info_util.HostInfo
	for i, hostString := range hostStringList {
		hostString = strings.TrimSpace(hostString)
		if hostString == "" {
			continue
		}
		port := host_info_util.HOST_NO_PORT
		portString := ""
		if i < len(portStringList) {
			portString = portStringList[i]
		} else if len(portStringList) == 1 {
			portString = portStringList[0]
		}
		if portString != "" {
			parsed, err := strconv.Atoi(portString)
			if err == nil {
				port = parsed
			}
		}

		hostRole := host_info_util.READER
		if i == 0 && IdentifyRdsUrlType(hostString) != RDS_READER_CLUSTER {
			hostRole = host_info_util.WRITER
		}

		hostInfo, err := host_info_util.NewHostInfoBuilder().SetHost(hostString).SetPort(port).SetRole(hostRole).Build()
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, hostInfo)
	}
	return hosts, nil
}

func GetHostsFromDsn(dsn string) ([]*host_info_util.HostInfo, error) {
	properties, err := ParseDsn(dsn)
	if err != nil {
		return nil, err
	}
	return GetHostsFromProps(properties)
}

// ParseHostPortPair parses "host[:port]", using defaultPort when no port is given.
func ParseHostPortPair(hostPortPair string, defaultPort int) (*host_info_util.HostInfo, error) {
	host, portString, found := strings.Cut(hostPortPair, ":")

	port := defaultPort
	if found {
		parsed, err := strconv.Atoi(portString)
		if err != nil {
			return nil, error_util.NewDsnParsingError(error_util.GetMessage("DsnParser.invalidPort", hostPortPair))
		}
		port = parsed
	}

	hostRole := host_info_util.WRITER
	if IdentifyRdsUrlType(host) == RDS_READER_CLUSTER {
		hostRole = host_info_util.READER
	}

	return host_info_util.NewHostInfoBuilder().SetHost(host).SetPort(port).SetRole(hostRole).Build()
}

func GetProtocol(dsn string) (string, error) {
	if isDsnPgxUrl(dsn) {
		return PGX_DRIVER_PROTOCOL, nil
	}

	if isDsnMySql(dsn) {
		return MYSQL_DRIVER_PROTOCOL, nil
	}

	if isDsnPgxKeyValueString(dsn) {
		return PGX_DRIVER_PROTOCOL, nil
	}

	return "", error_util.NewDsnParsingError(error_util.GetMessage("DsnParser.unableToDetermineProtocol", dsn))
}

func ParseDsn(dsn string) (map[string]string, error) {
	if isDsnPgxUrl(dsn) {
		return parsePgxURLSettings(dsn)
	}

	if isDsnMySql(dsn) {
		return parseMySqlDsn(dsn)
	}

	if isDsnPgxKeyValueString(dsn) {
		return parsePgxKeywordValueSettings(dsn)
	}

	return nil, error_util.NewDsnParsingError(error_util.GetMessage("DsnParser.unableToDetermineProtocol", dsn))
}

func isDsnPgxUrl(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func isDsnPgxKeyValueString(dsn string) bool {
	return pgxKeyValueDsnPattern.MatchString(dsn)
}

func isDsnMySql(dsn string) bool {
	return mySqlDsnPattern.MatchString(dsn)
}

func parsePgxURLSettings(connString string) (map[string]string, error) {
	properties := make(map[string]string)

	parsedURL, err := url.Parse(connString)
	if err != nil {
		if urlErr := new(url.Error); errors.As(err, &urlErr) {
			return nil, error_util.NewDsnParsingError(urlErr.Err.Error())
		}
		return nil, error_util.NewDsnParsingError(err.Error())
	}

	if parsedURL.User != nil {
		properties[property_util.USER.Name] = parsedURL.User.Username()
		if password, present := parsedURL.User.Password(); present {
			properties[property_util.PASSWORD.Name] = password
		}
	}

	// Multiple host:port pairs become "host,host" and "port,port".
	var hosts []string
	var ports []string
	for _, host := range strings.Split(parsedURL.Host, ",") {
		if host == "" {
			continue
		}
		if isIPOnly(host) {
			hosts = append(hosts, strings.Trim(host, "[]"))
			ports = append(ports, "")
			continue
		}
		h, p, err := net.SplitHostPort(host)
		if err != nil {
			return nil, error_util.NewDsnParsingError(error_util.GetMessage("DsnParser.failedToSplitHostPort", host, err))
		}
		hosts = append(hosts, h)
		ports = append(ports, p)
	}
	if len(hosts) > 0 {
		properties[property_util.HOST.Name] = strings.Join(hosts, ",")
	}
	if strings.Join(ports, "") != "" {
		properties[property_util.PORT.Name] = strings.Join(ports, ",")
	}

	database := strings.TrimLeft(parsedURL.Path, "/")
	if database != "" {
		properties[property_util.DATABASE.Name] = database
	}

	for k, v := range parsedURL.Query() {
		if k2, present := pgxNameMap[k]; present {
			k = k2
		}
		properties[k] = v[0]
	}

	properties[property_util.DRIVER_PROTOCOL.Name] = PGX_DRIVER_PROTOCOL
	return properties, nil
}

func isIPOnly(host string) bool {
	return net.ParseIP(strings.Trim(host, "[]")) != nil || !strings.Contains(host, ":")
}

const pgxSpaces = " \t\n\r\v\f"

// parsePgxKeywordValueSettings reads "key=value key='quoted value'" settings. A backslash escapes
// the next character in both forms.
func parsePgxKeywordValueSettings(dsn string) (map[string]string, error) {
	properties := make(map[string]string)
	rest := strings.TrimLeft(dsn, pgxSpaces)
	for rest != "" {
		key, remainder, found := strings.Cut(rest, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			return nil, error_util.NewDsnParsingError(error_util.GetMessage("DsnParser.invalidKeyValue", rest))
		}

		value, remainder, err := readPgxValue(strings.TrimLeft(remainder, pgxSpaces))
		if err != nil {
			return nil, err
		}
		if mapped, ok := pgxNameMap[key]; ok {
			key = mapped
		}
		properties[key] = value
		rest = strings.TrimLeft(remainder, pgxSpaces)
	}

	properties[property_util.DRIVER_PROTOCOL.Name] = PGX_DRIVER_PROTOCOL
	return properties, nil
}

func readPgxValue(s string) (value string, rest string, err error) {
	quoted := strings.HasPrefix(s, "'")
	if quoted {
		s = s[1:]
	}

	var builder strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\':
			i++
			if i == len(s) {
				return "", "", error_util.NewDsnParsingError(error_util.GetMessage("DsnParser.invalidBackslash", s))
			}
			builder.WriteByte(s[i])
		case quoted && c == '\'':
			return builder.String(), s[i+1:], nil
		case !quoted && strings.IndexByte(pgxSpaces, c) >= 0:
			return builder.String(), s[i+1:], nil
		default:
			builder.WriteByte(c)
		}
	}
	if quoted {
		return "", "", error_util.NewDsnParsingError(error_util.GetMessage("DsnParser.unterminatedQuotedString", s))
	}
	return builder.String(), "", nil
}

// [user[:password]@][net[(addr)]]/dbname[?param1=value1&paramN=valueN]
func parseMySqlDsn(dsn string) (map[string]string, error) {
	properties := make(map[string]string)

	// Parameter values such as endpoints may contain "/".
	paramsStartIndex := strings.Index(dsn, "?")
	if paramsStartIndex == -1 {
		paramsStartIndex = len(dsn)
	}

	lastSlashIndex := strings.LastIndex(dsn[:paramsStartIndex], "/")
	if lastSlashIndex == -1 {
		return nil, error_util.NewDsnParsingError(error_util.GetMessage("DsnParser.invalidDatabaseNoSlash", dsn))
	}

	lastAtIndex := strings.LastIndex(dsn[:lastSlashIndex], "@")
	if lastAtIndex != -1 {
		userInfo := dsn[:lastAtIndex]
		user, password, hasPassword := strings.Cut(userInfo, ":")
		properties[property_util.USER.Name] = user
		if hasPassword {
			properties[property_util.PASSWORD.Name] = password
		}
	}

	netAndAddress := dsn[lastAtIndex+1 : lastSlashIndex]
	openParenIndex := strings.Index(netAndAddress, "(")
	if openParenIndex == -1 {
		if netAndAddress != "" {
			properties[property_util.NET.Name] = netAndAddress
		}
	} else {
		closeParenIndex := strings.LastIndex(netAndAddress, ")")
		if closeParenIndex < openParenIndex {
			return nil, error_util.NewDsnParsingError(error_util.GetMessage("DsnParser.invalidAddress", dsn))
		}
		properties[property_util.NET.Name] = netAndAddress[:openParenIndex]
		address := netAndAddress[openParenIndex+1 : closeParenIndex]
		host, port, hasPort := strings.Cut(address, ":")
		properties[property_util.HOST.Name] = host
		if hasPort {
			properties[property_util.PORT.Name] = port
		}
	}

	var err error
	if paramsStartIndex == len(dsn) {
		properties[property_util.DATABASE.Name], err = url.PathUnescape(dsn[lastSlashIndex+1:])
	} else {
		properties[property_util.DATABASE.Name], err = url.PathUnescape(dsn[lastSlashIndex+1 : paramsStartIndex])
		if err == nil {
			err = parseDSNParams(properties, dsn[paramsStartIndex+1:])
		}
	}
	if err != nil {
		return nil, error_util.NewDsnParsingError(err.Error())
	}

	properties[property_util.DRIVER_PROTOCOL.Name] = MYSQL_DRIVER_PROTOCOL
	return properties, nil
}

func parseDSNParams(properties map[string]string, params string) (err error) {
	for _, v := range strings.Split(params, "&") {
		key, value, ok := strings.Cut(v, "=")
		if !ok {
			continue
		}

		properties[key], err = url.QueryUnescape(value)
		if err != nil {
			return
		}
	}
	return
}
