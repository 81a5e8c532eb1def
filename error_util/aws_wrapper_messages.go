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

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed resources/en.json
var enMessages []byte

var globalLocalizer *i18n.Localizer
var localizerErr error
var localizerOnce sync.Once

func getLocalizer() (*i18n.Localizer, error) {
	localizerOnce.Do(func() {
		bundle := i18n.NewBundle(language.English)
		bundle.RegisterUnmarshalFunc("json", json.Unmarshal)
		if _, err := bundle.ParseMessageFileBytes(enMessages, "en.json"); err != nil {
			localizerErr = fmt.Errorf("could not load messages file: %w", err)
			return
		}
		globalLocalizer = i18n.NewLocalizer(bundle, language.English.String())
	})
	return globalLocalizer, localizerErr
}

func GetMessage(messageId string, messageArgs ...any) string {
	localizer, err := getLocalizer()
	if err != nil {
		return fmt.Sprintf("Unable to display message %s with arguments %v. Error: %s.", messageId, messageArgs, err.Error())
	}

	message, err := localizer.Localize(&i18n.LocalizeConfig{MessageID: messageId})
	if err != nil {
		return fmt.Sprintf("%s %v", messageId, messageArgs)
	}
	return fmt.Sprintf(message, messageArgs...)
}
