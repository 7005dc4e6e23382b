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
	"errors"
	"hash"

	"golang.org/x/crypto/sha3"
)

// HashLen is the digest length of the partition hash chain (SHA3-384).
const HashLen = 48

// Engine is the hash primitive used by the verification pipeline. A single
// engine instance is bound to a context and restarted for every chunk.
//
// Reset places the engine in its reset state, discarding any in-progress
// digest. It is asserted unconditionally by Clear and must be safe to call
// at any time, including before Start.
type Engine interface {
	Start() error
	Update(p []byte) error
	Finish() ([]byte, error)
	Reset() error
}

type sha3Engine struct {
	h hash.Hash
}

// NewSHA3Engine returns the default SHA3-384 hash engine.
func NewSHA3Engine() Engine {
	return &sha3Engine{}
}

func (e *sha3Engine) Start() error {
	if e.h == nil {
		e.h = sha3.New384()
	}
	e.h.Reset()
	return nil
}

func (e *sha3Engine) Update(p []byte) error {
	if e.h == nil {
		return errors.New("hash engine not started")
	}
	_, err := e.h.Write(p)
	return err
}

func (e *sha3Engine) Finish() ([]byte, error) {
	if e.h == nil {
		return nil, errors.New("hash engine not started")
	}
	return e.h.Sum(nil), nil
}

func (e *sha3Engine) Reset() error {
	// Drop the internal state entirely rather than rewinding it.
	e.h = nil
	return nil
}
