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

	"k8s.io/klog/v2"
)

// SecureCopy streams the whole partition through the bound processing
// strategy into dst. len(dst) is the partition's raw stream length; the
// verified payload lands at the front of dst, excluding embedded hash
// overhead (encoded streams are verified in place and consumed through
// SecureData instead).
//
// On any processor failure the full destination range is scrubbed before
// returning and the error is a *CopyError carrying both the primary failure
// and the scrub outcome. A failed scrub is the more severe condition; both
// are terminal for the partition.
func (s *Context) SecureCopy(dst []byte) error {
	if s.processor == nil {
		return fmt.Errorf("%w: no processing strategy bound", ErrInit)
	}

	var err error

	remaining := len(dst)
	off := 0
	chunkLen := s.chunkSize

	for remaining > 0 {
		last := false
		if remaining <= chunkLen {
			last = true
			chunkLen = remaining
		}

		// Record the pre-dispatch remainder so nested helpers can size
		// the prefetch of the following chunk.
		s.remainingLen = remaining

		if err = s.processor.Process(s, dst[off:], chunkLen, last); err != nil {
			break
		}

		off += s.secureDataLen
		remaining -= s.processedLen

		// The prefetched slot becomes the active one.
		s.active = s.next
	}

	if err != nil {
		scrubErr := scrub(dst)
		if scrubErr != nil {
			klog.Warningf("Destination scrub failed: %v", scrubErr)
		}
		return &CopyError{Err: err, ScrubErr: scrubErr}
	}
	return nil
}

// scrub zero-fills b and verifies the fill with a read-back pass.
func scrub(b []byte) error {
	for i := range b {
		b[i] = 0
	}
	for i := range b {
		if b[i] != 0 {
			return errors.New("scrub verification failed")
		}
	}
	return nil
}
