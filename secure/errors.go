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
	"fmt"
)

var (
	// ErrInit tags failures during secure context initialization.
	ErrInit = errors.New("secure context initialization failed")

	// ErrTransfer tags data mover failures, at either the blocking/wait
	// step or the prefetch initiate step.
	ErrTransfer = errors.New("device copy failed")

	// ErrHashCalc tags hash engine failures while digesting a chunk, as
	// opposed to a digest comparison failure.
	ErrHashCalc = errors.New("partition hash calculation failed")
)

// HashMismatchError reports a chunk whose computed digest does not match the
// expected value carried over from the previous chunk. Both digests are
// retained for diagnostics; they are public values, never key material.
type HashMismatchError struct {
	Block    uint32
	Expected []byte
	Computed []byte
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("block %d hash mismatch: computed %x, expected %x", e.Block, e.Computed, e.Expected)
}

// CopyError is returned by SecureCopy when partition processing fails. It
// carries the primary failure alongside the outcome of the destination
// scrub, two independent failure axes: a failed scrub means the destination
// may still hold partially verified data and is the more severe condition.
type CopyError struct {
	// Err is the processing failure which aborted the partition.
	Err error
	// ScrubErr is nil if the destination range was cleared successfully.
	ScrubErr error
}

func (e *CopyError) Error() string {
	if e.ScrubErr != nil {
		return fmt.Sprintf("%v (destination scrub also failed: %v)", e.Err, e.ScrubErr)
	}
	return fmt.Sprintf("%v (destination scrubbed)", e.Err)
}

func (e *CopyError) Unwrap() error {
	return e.Err
}
