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
	"log/slog"
	"sync"
)

// TestHandler captures slog records. Install it with CaptureLogs.
type TestHandler struct {
	lock    sync.Mutex
	records []slog.Record
}

// CaptureLogs routes the default logger to a new TestHandler until the returned function is called.
func CaptureLogs() (*TestHandler, func()) {
	previous := slog.Default()
	handler := &TestHandler{}
	slog.SetDefault(slog.New(handler))
	return handler, func() { slog.SetDefault(previous) }
}

func (h *TestHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *TestHandler) Handle(_ context.Context, r slog.Record) error {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.records = append(h.records, r)
	return nil
}

func (h *TestHandler) WithAttrs(_ []slog.Attr) slog.Handler {
	return h
}

func (h *TestHandler) WithGroup(_ string) slog.Handler {
	return h
}

// Messages returns the messages logged at level or above.
func (h *TestHandler) Messages(level slog.Level) []string {
	h.lock.Lock()
	defer h.lock.Unlock()
	var messages []string
	for _, record := range h.records {
		if record.Level >= level {
			messages = append(messages, record.Message)
		}
	}
	return messages
}
