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

package host_info_util

import (
	"fmt"
	"strings"
)

func AreHostListsEqual(s1 []*HostInfo, s2 []*HostInfo) bool {
	if len(s1) != len(s2) {
		return false
	}

	for i := 0; i < len(s1); i++ {
		if !s1[i].Equals(s2[i]) {
			return false
		}
	}

	return true
}

// IsSameSnapshot reports whether both lists share the same backing array, which is how a
// topology served twice from the same cache entry is recognized.
func IsSameSnapshot(s1 []*HostInfo, s2 []*HostInfo) bool {
	if len(s1) != len(s2) || s1 == nil || s2 == nil {
		return false
	}
	if len(s1) == 0 {
		return true
	}
	return &s1[0] == &s2[0]
}

func GetWriter(hosts []*HostInfo) *HostInfo {
	for _, host := range hosts {
		if host.Role == WRITER {
			return host
		}
	}
	return nil
}

func GetReaders(hosts []*HostInfo) []*HostInfo {
	var readers []*HostInfo
	for _, host := range hosts {
		if host.Role == READER {
			readers = append(readers, host)
		}
	}
	return readers
}

func CountWriters(hosts []*HostInfo) int {
	count := 0
	for _, host := range hosts {
		if host.Role == WRITER {
			count++
		}
	}
	return count
}

// FindHostInTopology returns the first host whose name, host-and-port or alias matches one of hostNames.
func FindHostInTopology(hosts []*HostInfo, hostNames ...string) *HostInfo {
	for _, host := range hosts {
		for _, hostName := range hostNames {
			if host.Host == hostName || host.HasAlias(hostName) {
				return host
			}
		}
	}
	return nil
}

// ReplaceHost returns a copy of hosts with the entry matching replacement's host and port swapped for it.
func ReplaceHost(hosts []*HostInfo, replacement *HostInfo) []*HostInfo {
	replaced := make([]*HostInfo, len(hosts))
	for i, host := range hosts {
		if host.GetHostAndPort() == replacement.GetHostAndPort() {
			replaced[i] = replacement
		} else {
			replaced[i] = host
		}
	}
	return replaced
}

func LogTopology(hosts []*HostInfo, msgPrefix string) string {
	var sb strings.Builder

	if len(hosts) != 0 {
		sb.WriteString("\n")
		for _, host := range hosts {
			sb.WriteString("    ")
			sb.WriteString(host.String())
			sb.WriteString("\n")
		}
	} else {
		sb.WriteString("<nil>")
	}

	return fmt.Sprintf("%s Topology: %s", msgPrefix, sb.String())
}
