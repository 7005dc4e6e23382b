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

package testonly

import (
	"fmt"

	"github.com/hardened-boot/secureload/secure"
)

// RecordingEngine wraps a hash engine, recording call events interleaved
// with a MemMover sharing the same Events slice.
type RecordingEngine struct {
	Engine secure.Engine

	// Events receives one line per engine call.
	Events *[]string

	// Resets counts Reset invocations.
	Resets int

	finishes int
}

func (e *RecordingEngine) record(ev string) {
	if e.Events != nil {
		*e.Events = append(*e.Events, ev)
	}
}

func (e *RecordingEngine) Start() error {
	e.record("hash start")
	return e.Engine.Start()
}

func (e *RecordingEngine) Update(p []byte) error {
	return e.Engine.Update(p)
}

func (e *RecordingEngine) Finish() ([]byte, error) {
	e.finishes++
	e.record(fmt.Sprintf("hash finish %d", e.finishes))
	return e.Engine.Finish()
}

func (e *RecordingEngine) Reset() error {
	e.Resets++
	e.record("hash reset")
	return e.Engine.Reset()
}
