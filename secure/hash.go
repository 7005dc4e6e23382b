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
	"fmt"

	"k8s.io/klog/v2"

	"github.com/hardened-boot/secureload/internal/temporal"
)

// VerifyHashChain digests the chunk payload in data, compares it against
// the expected value carried over from the previous chunk, and on success
// advances the chain: the trailing HashLen bytes following the payload in
// the active buffer become the expected digest for the next chunk.
//
// For non-final chunks of a raw image the hashed range covers the payload
// plus the trailing embedded digest; for the self-describing encoded kind
// it covers exactly the payload, the trailing digest being consumed only as
// the next link of the chain. The final chunk has no trailing digest.
//
// The digest comparison is constant time and executed twice, the second
// pass reading the computed digest back from the temporal-redundancy
// scratch area, so that a single flipped comparison cannot force a false
// match.
func (s *Context) VerifyHashChain(data []byte, last bool) error {
	var trailing []byte
	if !last {
		trailing = s.chunkBuf()[len(data) : len(data)+HashLen]
	}

	if err := s.engine.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrHashCalc, err)
	}
	if err := s.engine.Update(data); err != nil {
		return fmt.Errorf("%w: %v", ErrHashCalc, err)
	}
	if !last && !s.encoded {
		// The embedded next-block digest is part of this chunk's
		// authenticated range.
		if err := s.engine.Update(trailing); err != nil {
			return fmt.Errorf("%w: %v", ErrHashCalc, err)
		}
	}

	sum, err := s.engine.Finish()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHashCalc, err)
	}
	copy(s.temp.computedHash[:], sum)

	if !temporal.ConstantTimeEqual(s.expectedHash[:], sum) ||
		!temporal.ConstantTimeEqual(s.expectedHash[:], s.temp.computedHash[:]) {
		klog.Infof("Hash mismatch on block %d", s.blockNum)
		return &HashMismatchError{
			Block:    s.blockNum,
			Expected: append([]byte(nil), s.expectedHash[:]...),
			Computed: append([]byte(nil), sum...),
		}
	}

	if !last {
		copy(s.expectedHash[:], trailing)
	}
	return nil
}
