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

// ChunkCopy moves totalSize bytes from src on the source medium into the
// active staging slot. If an asynchronous prefetch into this slot was
// started by a previous call, the transfer waits for its completion instead
// of re-initiating it; this is the consumer side of the double-buffering
// handshake. Once the blocking portion completes, and unless this is the
// last chunk or the very first (which has no predecessor to overlap with),
// the next chunk's transfer is initiated into the other slot.
//
// An initiate failure does not invalidate the already completed blocking
// copy, but it still propagates so the driver aborts before the next
// iteration would wait on data that never arrives.
func (s *Context) ChunkCopy(src int64, last bool, blockSize, totalSize int) error {
	flags := CopyBlocking
	if s.nextChunkStarted {
		s.nextChunkStarted = false
		flags = CopyWaitDone
	}

	if err := s.mover.Transfer(src, s.chunkBuf()[:totalSize], flags|s.moverFlags); err != nil {
		return fmt.Errorf("%w: chunk at offset %#x: %v", ErrTransfer, src, err)
	}

	if !last && s.blockNum != 0 {
		return s.startNextChunkCopy(s.remainingLen-totalSize, src+int64(totalSize), blockSize)
	}
	return nil
}

// startNextChunkCopy initiates the transfer of the next chunk into the slot
// not currently being verified. totalLen is the partition bytes remaining
// after the chunk now in flight.
func (s *Context) startNextChunkCopy(totalLen int, nextBlkAddr int64, chunkLen int) error {
	s.next = 1 - s.active

	copyLen := chunkLen
	if totalLen <= chunkLen {
		copyLen = totalLen
	}

	s.nextChunkStarted = true

	klog.V(2).Infof("Prefetching %d bytes at offset %#x", copyLen, nextBlkAddr)

	if err := s.mover.Transfer(nextBlkAddr, s.bufs.slot(s.next)[:copyLen], CopyInitiate|s.moverFlags); err != nil {
		return fmt.Errorf("%w: prefetch at offset %#x: %v", ErrTransfer, nextBlkAddr, err)
	}
	return nil
}
