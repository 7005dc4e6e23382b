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

package secure

import (
	"bytes"
	"testing"

	"golang.org/x/crypto/sha3"
)

func TestSHA3Engine(t *testing.T) {
	msg := []byte("secure partition chunk")
	want := sha3.Sum384(msg)

	e := NewSHA3Engine()
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Incremental updates accumulate into one digest.
	if err := e.Update(msg[:7]); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := e.Update(msg[7:]); err != nil {
		t.Fatalf("Update: %v", err)
	}
	sum, err := e.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if !bytes.Equal(sum, want[:]) {
		t.Errorf("digest %x, want %x", sum, want)
	}
	if len(sum) != HashLen {
		t.Errorf("digest length %d, want %d", len(sum), HashLen)
	}
}

func TestSHA3EngineResetThenReuse(t *testing.T) {
	e := NewSHA3Engine()
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := e.Update([]byte("abandoned")); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := e.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	// A fresh Start after reset must not carry over abandoned state.
	if err := e.Start(); err != nil {
		t.Fatalf("Start after Reset: %v", err)
	}
	msg := []byte("fresh chunk")
	if err := e.Update(msg); err != nil {
		t.Fatalf("Update: %v", err)
	}
	sum, err := e.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	want := sha3.Sum384(msg)
	if !bytes.Equal(sum, want[:]) {
		t.Errorf("digest %x, want %x", sum, want)
	}
}
