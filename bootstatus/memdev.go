// Copyright 2024 The Secure Loader authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bootstatus

import "fmt"

// MemDevice is a volatile word store, standing in for the platform's status
// registers on hosts and in tests.
type MemDevice struct {
	words [TotalWords]uint32

	// WriteErr, when set, is returned by every WriteWord call.
	WriteErr error
}

func (m *MemDevice) ReadWord(index int) (uint32, error) {
	if index < 0 || index >= TotalWords {
		return 0, fmt.Errorf("word %d out of range", index)
	}
	return m.words[index], nil
}

func (m *MemDevice) WriteWord(index int, v uint32) error {
	if m.WriteErr != nil {
		return m.WriteErr
	}
	if index < 0 || index >= TotalWords {
		return fmt.Errorf("word %d out of range", index)
	}
	m.words[index] = v
	return nil
}
