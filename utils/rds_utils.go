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
	"sync"
)

var (
	AURORA_DNS_PATTERN = regexp.MustCompile(
		"(?i)^(?P<instance>.+)\\." +
			"(?P<dns>proxy-|cluster-|cluster-ro-|cluster-custom-)?" +
			"(?P<domain>[a-zA-Z0-9]+\\.(?P<region>[a-zA-Z0-9\\-]+)" +
			"\\.rds\\.amazonaws\\.com)$")

	AURORA_CHINA_DNS_PATTERN = regexp.MustCompile(
		"(?i)^(?P<instance>.+)\\." +
			"(?P<dns>proxy-|cluster-|cluster-ro-|cluster-custom-)?" +
			"(?P<domain>[a-zA-Z0-9]+\\.rds\\.(?P<region>[a-zA-Z0-9\\-]+)" +
			"\\.amazonaws\\.com\\.cn)$")

	AURORA_OLD_CHINA_DNS_PATTERN = regexp.MustCompile(
		"(?i)^(?P<instance>.+)\\." +
			"(?P<dns>proxy-|cluster-|cluster-ro-|cluster-custom-)?" +
			"(?P<domain>[a-zA-Z0-9]+\\.(?P<region>[a-zA-Z0-9\\-]+)" +
			"\\.rds\\.amazonaws\\.com\\.cn)$")

	AURORA_GOV_DNS_PATTERN = regexp.MustCompile(
		"(?i)^(?P<instance>.+)\\." +
			"(?P<dns>proxy-|cluster-|cluster-ro-|cluster-custom-)?" +
			"(?P<domain>[a-zA-Z0-9]+\\.rds\\.(?P<region>[a-zA-Z0-9\\-]+)" +
			"\\.(amazonaws\\.com|c2s\\.ic\\.gov|sc2s\\.sgov\\.gov))$")

	IP_V4_REGEXP = regexp.MustCompile(
		"^(([1-9]|[1-9][0-9]|1[0-9]{2}|2[0-4][0-9]|25[0-5])\\.){1}" +
			"(([0-9]|[1-9][0-9]|1[0-9]{2}|2[0-4][0-9]|25[0-5])\\.){2}" +
			"([0-9]|[1-9][0-9]|1[0-9]{2}|2[0-4][0-9]|25[0-5])$")

	IP_V6_REGEXP = regexp.MustCompile("^[0-9a-fA-F]{1,4}(:[0-9a-fA-F]{1,4}){7}$")

	IP_V6_COMPRESSED_REGEXP = regexp.MustCompile("^(([0-9A-Fa-f]{1,4}(:[0-9A-Fa-f]{1,4}){0,5})?)" +
		"::(([0-9A-Fa-f]{1,4}(:[0-9A-Fa-f]{1,4}){0,5})?)$")

	dnsRegexpArray = [4]*regexp.Regexp{AURORA_DNS_PATTERN, AURORA_CHINA_DNS_PATTERN, AURORA_OLD_CHINA_DNS_PATTERN, AURORA_GOV_DNS_PATTERN}
	cachedMatches  = sync.Map{}
)

const (
	INSTANCE_GROUP = "instance"
	DNS_GROUP      = "dns"
	DOMAIN_GROUP   = "domain"
)

type dnsMatch struct {
	instance string
	dns      string
	domain   string
}

func IdentifyRdsUrlType(host string) RdsUrlType {
	if host == "" {
		return OTHER
	}

	if IsIPv4(host) || IsIPV6(host) {
		return IP_ADDRESS
	} else if IsWriterClusterDns(host) {
		return RDS_WRITER_CLUSTER
	} else if IsReaderClusterDns(host) {
		return RDS_READER_CLUSTER
	} else if IsRdsCustomClusterDns(host) {
		return RDS_CUSTOM_CLUSTER
	} else if IsRdsProxyDns(host) {
		return RDS_PROXY
	} else if IsRdsDns(host) {
		return RDS_INSTANCE
	}
	return OTHER
}

func IsIPv4(host string) bool {
	return host != "" && IP_V4_REGEXP.MatchString(host)
}

func IsIPV6(host string) bool {
	return host != "" && (IP_V6_REGEXP.MatchString(host) || IP_V6_COMPRESSED_REGEXP.MatchString(host))
}

func IsWriterClusterDns(host string) bool {
	return strings.EqualFold(getDnsGroup(host), "cluster-")
}

func IsReaderClusterDns(host string) bool {
	return strings.EqualFold(getDnsGroup(host), "cluster-ro-")
}

func IsRdsCustomClusterDns(host string) bool {
	return strings.EqualFold(getDnsGroup(host), "cluster-custom-")
}

func IsRdsProxyDns(host string) bool {
	return strings.HasPrefix(strings.ToLower(getDnsGroup(host)), "proxy-")
}

func IsRdsDns(host string) bool {
	_, ok := matchDns(host)
	return ok
}

// IsRdsInstance reports whether host is an instance endpoint rather than a cluster or proxy endpoint.
func IsRdsInstance(host string) bool {
	match, ok := matchDns(host)
	return ok && match.dns == ""
}

// GetRdsInstanceHostPattern returns the "?.<domain>" template instance endpoints of host's cluster follow,
// or "?" when host is not an RDS endpoint.
func GetRdsInstanceHostPattern(host string) string {
	match, ok := matchDns(host)
	if !ok {
		return "?"
	}
	return "?." + match.domain
}

// GetRdsClusterHostUrl maps a writer or reader cluster endpoint to its writer cluster endpoint.
func GetRdsClusterHostUrl(host string) string {
	match, ok := matchDns(host)
	if !ok {
		return ""
	}
	if !strings.EqualFold(match.dns, "cluster-") && !strings.EqualFold(match.dns, "cluster-ro-") {
		return ""
	}
	return match.instance + ".cluster-" + match.domain
}

func getDnsGroup(host string) string {
	match, ok := matchDns(host)
	if !ok {
		return ""
	}
	return match.dns
}

func matchDns(host string) (dnsMatch, bool) {
	if host == "" {
		return dnsMatch{}, false
	}
	if cached, ok := cachedMatches.Load(host); ok {
		return cached.(dnsMatch), true
	}
	for _, dnsRegexp := range dnsRegexpArray {
		groups := dnsRegexp.FindStringSubmatch(host)
		if groups == nil {
			continue
		}
		match := dnsMatch{
			instance: groups[dnsRegexp.SubexpIndex(INSTANCE_GROUP)],
			dns:      groups[dnsRegexp.SubexpIndex(DNS_GROUP)],
			domain:   groups[dnsRegexp.SubexpIndex(DOMAIN_GROUP)],
		}
		cached, _ := cachedMatches.LoadOrStore(host, match)
		return cached.(dnsMatch), true
	}
	return dnsMatch{}, false
}
