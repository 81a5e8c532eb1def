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

package property_util

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-advanced-go-wrapper/failover/error_util"
	"gopkg.in/yaml.v2"
)

// LoadPropertyProfile reads a flat YAML document of property names to values.
func LoadPropertyProfile(path string) (map[string]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, error_util.NewIllegalArgumentError(error_util.GetMessage("PropertyProfile.unableToRead", path, err))
	}
	return ParsePropertyProfile(content)
}

func ParsePropertyProfile(content []byte) (map[string]string, error) {
	raw := map[string]interface{}{}
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, error_util.NewIllegalArgumentError(error_util.GetMessage("PropertyProfile.invalidYaml", err))
	}

	props := make(map[string]string, len(raw))
	for key, value := range raw {
		switch value.(type) {
		case map[interface{}]interface{}, []interface{}:
			return nil, error_util.NewIllegalArgumentError(error_util.GetMessage("PropertyProfile.nestedValue", key))
		case nil:
			props[key] = ""
		default:
			props[key] = fmt.Sprint(value)
		}
	}
	return props, nil
}

// ApplyPropertyProfile layers the profile named by wrapperProfileFile underneath props.
func ApplyPropertyProfile(props map[string]string) (map[string]string, error) {
	path := WRAPPER_PROFILE_FILE.Get(props)
	if path == "" {
		return props, nil
	}

	profile, err := LoadPropertyProfile(path)
	if err != nil {
		return nil, err
	}
	slog.Debug(error_util.GetMessage("PropertyProfile.loaded", path, len(profile)))

	merged := make(map[string]string, len(profile)+len(props))
	for key, value := range profile {
		merged[key] = value
	}
	for key, value := range props {
		merged[key] = value
	}
	return merged, nil
}
