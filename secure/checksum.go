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
)

// checksumProcessor is the integrity-only partition processing strategy: it
// stages one chunk, strips the embedded hash overhead, places raw-image
// payload at its destination, and verifies the hash chain.
type checksumProcessor struct{}

func (checksumProcessor) Process(s *Context, dst []byte, blockSize int, last bool) error {
	klog.V(2).Infof("Processing block %d", s.blockNum)

	s.processedLen = 0

	var src int64
	if s.blockNum == 0 {
		src = s.desc.DataOffset
	} else {
		src = s.nextBlkAddr
	}

	totalSize := blockSize
	if err := s.ChunkCopy(src, last, blockSize, totalSize); err != nil {
		return err
	}

	// All chunks but the last carry the next block's digest as trailing
	// overhead; the final chunk is payload in full.
	n := totalSize
	if !last {
		n = totalSize - HashLen
	}
	s.SetSecureData(n)

	data := s.secureData
	if !s.encoded {
		if len(dst) < s.secureDataLen {
			return fmt.Errorf("%w: destination window %d smaller than payload %d", ErrTransfer, len(dst), s.secureDataLen)
		}
		copy(dst[:s.secureDataLen], s.secureData)
		data = dst[:s.secureDataLen]
	}

	err := s.VerifyHashChain(data, last)
	s.temp.verifyErr = err
	if err != nil || s.temp.verifyErr != nil {
		return err
	}

	s.Advance(src, totalSize)
	return nil
}

func (checksumProcessor) Clear() error {
	// No key material in checksum mode; the hash engine reset is asserted
	// by Context.Clear.
	return nil
}
