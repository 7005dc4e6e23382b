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

// Package secure implements the streaming ingestion pipeline for secure
// partitions: a double-buffered chunked copy from an external store into the
// partition's load region, with chained-hash verification of every chunk and
// destination scrubbing on any failure.
package secure

import (
	"fmt"

	"k8s.io/klog/v2"

	"github.com/hardened-boot/secureload/image"
	"github.com/hardened-boot/secureload/internal/temporal"
)

// DefaultChunkSize is the maximum number of raw partition bytes moved and
// verified as one unit.
const DefaultChunkSize = 0x8000

// Flags describe a data mover invocation. The low bits select the transfer
// phase; higher bits are medium-specific hints forwarded opaquely from
// Params.MoverFlags.
type Flags uint32

const (
	// CopyBlocking performs a full synchronous transfer.
	CopyBlocking Flags = 0x0
	// CopyInitiate starts an asynchronous transfer and returns immediately.
	CopyInitiate Flags = 0x1
	// CopyWaitDone blocks until a previously initiated transfer completes.
	CopyWaitDone Flags = 0x2
)

// Mover is the device-to-memory data mover. Transfer moves len(dst) bytes
// from the source medium at offset src into dst. Implementations must
// support being invoked in initiate and wait phases independently.
type Mover interface {
	Transfer(src int64, dst []byte, flags Flags) error
}

// Processor is a partition processing strategy, invoked once per chunk by
// the copy driver. Exactly one strategy is bound at initialization, based on
// the partition's declared attributes, and never changes afterwards.
//
// Clear tears down any cryptographic material held by the strategy. It is
// invoked from Context.Clear on failure paths.
type Processor interface {
	Process(s *Context, dst []byte, blockSize int, last bool) error
	Clear() error
}

// ProcessorInit attempts to bind a processing strategy to a context during
// initialization. A (nil, nil) return means the strategy does not apply to
// the partition.
type ProcessorInit func(s *Context) (Processor, error)

// Buffers is the pair of fixed scratch regions used for ping-pong chunk
// staging. The pipeline depends on there being exactly two: at any time at
// most one slot is being verified and at most one is being filled by an
// in-flight transfer. Buffers are owned by the boot loader's reserved RAM,
// not by a context, and are reused across partitions.
type Buffers struct {
	slots [2][]byte
}

// NewBuffers allocates a buffer pair able to stage chunks of up to size
// bytes each.
func NewBuffers(size int) *Buffers {
	return &Buffers{
		slots: [2][]byte{make([]byte, size), make([]byte, size)},
	}
}

func (b *Buffers) slot(i int) []byte {
	return b.slots[i]
}

// Params configures a secure context for one partition.
type Params struct {
	// Descriptor is the partition's metadata, borrowed for the lifetime of
	// the context.
	Descriptor *image.Descriptor

	// Mover is the data mover for the partition's source medium.
	Mover Mover

	// MoverFlags are medium-specific hints OR'd into every transfer, e.g.
	// a parallel-transfer mode.
	MoverFlags Flags

	// Engine is the hash primitive. Nil selects the SHA3-384 engine.
	Engine Engine

	// Buffers is the chunk staging pair. Nil allocates a fresh pair sized
	// for ChunkSize.
	Buffers *Buffers

	// ChunkSize overrides DefaultChunkSize when non-zero.
	ChunkSize int

	// AuthInit and EncInit bind the authenticated and encrypted processing
	// strategies for partitions that declare those attributes. Both are
	// invoked with doubled control flow; either duplicate succeeding is
	// accepted.
	AuthInit ProcessorInit
	EncInit  ProcessorInit
}

// scratch is the temporal-redundancy area: duplicate storage used by
// double-read fault-resistant comparisons. It is zeroed on every Init so no
// stale data leaks into a later partition's redundant checks.
type scratch struct {
	computedHash [HashLen]byte
	verifyErr    error
}

// Context holds the streaming state for one partition being loaded. It is
// owned exclusively by the caller for the partition's lifetime and must not
// be shared between concurrent copies.
type Context struct {
	desc      *image.Descriptor
	mover     Mover
	engine    Engine
	processor Processor
	bufs      *Buffers

	// active and next are the slot roles of the ping-pong pair, swapped by
	// the copy driver after every chunk.
	active int
	next   int

	blockNum     uint32
	processedLen int
	remainingLen int
	nextBlkAddr  int64

	expectedHash  [HashLen]byte
	secureData    []byte
	secureDataLen int

	checksumMode     bool
	encoded          bool
	nextChunkStarted bool

	moverFlags Flags
	chunkSize  int

	temp scratch
}

// Init prepares ctx for a single partition described by p.Descriptor. The
// context and its temporal-redundancy scratch area are reset to zero first,
// then exactly one processing strategy is selected from the partition's
// declared attributes. The context remains owned by its caller so that
// Clear stays reachable from abnormal termination paths even when Init
// fails partway.
func Init(ctx *Context, p Params) error {
	*ctx = Context{}
	ctx.temp = scratch{}

	if p.Descriptor == nil {
		return fmt.Errorf("%w: no partition descriptor", ErrInit)
	}
	if p.Mover == nil {
		return fmt.Errorf("%w: data mover unavailable", ErrInit)
	}

	ctx.desc = p.Descriptor
	ctx.mover = p.Mover
	ctx.moverFlags = p.MoverFlags
	ctx.encoded = p.Descriptor.Encoded

	ctx.chunkSize = p.ChunkSize
	if ctx.chunkSize == 0 {
		ctx.chunkSize = DefaultChunkSize
	}

	ctx.engine = p.Engine
	if ctx.engine == nil {
		ctx.engine = NewSHA3Engine()
	}

	ctx.bufs = p.Buffers
	if ctx.bufs == nil {
		ctx.bufs = NewBuffers(ctx.chunkSize)
	}
	if len(ctx.bufs.slot(0)) < ctx.chunkSize || len(ctx.bufs.slot(1)) < ctx.chunkSize {
		return fmt.Errorf("%w: chunk buffers smaller than chunk size %d", ErrInit, ctx.chunkSize)
	}

	if err := ctx.checksumInit(); err != nil {
		return err
	}

	if !ctx.checksumMode {
		var authProc, encProc Processor

		if p.AuthInit != nil {
			if err := temporal.Either(func() error {
				proc, err := p.AuthInit(ctx)
				if err != nil {
					return err
				}
				// A failed duplicate must not clobber a successful bind.
				if proc != nil {
					authProc = proc
				}
				return nil
			}); err != nil {
				return err
			}
		}
		if p.EncInit != nil {
			if err := temporal.Either(func() error {
				proc, err := p.EncInit(ctx)
				if err != nil {
					return err
				}
				if proc != nil {
					encProc = proc
				}
				return nil
			}); err != nil {
				return err
			}
		}

		switch {
		case encProc != nil:
			ctx.processor = encProc
		case authProc != nil:
			ctx.processor = authProc
		}
	}

	if ctx.processor == nil {
		return fmt.Errorf("%w: partition selects no processing mode", ErrInit)
	}

	return nil
}

// Clear wipes security-critical state: it tears down the bound processor's
// key material and unconditionally places the hash engine in reset, even if
// the teardown reports failure. Clear is the designated handler for
// abnormal termination paths and is safe to call on a partially initialized
// or zero context.
func (s *Context) Clear() error {
	var procErr error
	if s.processor != nil {
		procErr = s.processor.Clear()
	}

	var engErr error
	if s.engine != nil {
		engErr = s.engine.Reset()
	}

	if procErr != nil || engErr != nil {
		return fmt.Errorf("secure clear failed (teardown: %v, engine reset: %v)", procErr, engErr)
	}
	return nil
}

// checksumInit detects checksum mode and, when active, validates the
// declared checksum algorithm and seeds the hash chain with the partition's
// stored checksum.
func (s *Context) checksumInit() error {
	typ := s.desc.ChecksumType()
	if typ == image.ChecksumNone {
		return nil
	}

	klog.Info("Checksum verification is enabled")

	if typ != image.ChecksumSHA3 {
		return fmt.Errorf("%w: unsupported checksum type %#x", ErrInit, uint32(typ))
	}
	s.checksumMode = true

	if err := s.mover.Transfer(s.desc.ChecksumOffset, s.expectedHash[:], CopyBlocking|s.moverFlags); err != nil {
		return fmt.Errorf("%w: checksum copy: %v", ErrInit, err)
	}

	s.processor = checksumProcessor{}
	return nil
}

// chunkBuf returns the active staging slot.
func (s *Context) chunkBuf() []byte {
	return s.bufs.slot(s.active)
}

// Descriptor returns the partition descriptor bound at initialization.
func (s *Context) Descriptor() *image.Descriptor {
	return s.desc
}

// BlockNum returns the count of chunks processed so far for this partition.
func (s *Context) BlockNum() uint32 {
	return s.blockNum
}

// RemainingLen returns the raw bytes left to stream, as recorded by the
// copy driver before dispatching the current chunk.
func (s *Context) RemainingLen() int {
	return s.remainingLen
}

// NextBlkAddr returns the source address of the next chunk, recorded by the
// processor after each chunk.
func (s *Context) NextBlkAddr() int64 {
	return s.nextBlkAddr
}

// ActiveBuffer returns the staging slot holding the current chunk.
func (s *Context) ActiveBuffer() []byte {
	return s.chunkBuf()
}

// SecureData returns the verified payload bytes of the most recent chunk,
// excluding hash overhead. For encoded streams downstream consumers read
// chunk content through this window.
func (s *Context) SecureData() []byte {
	return s.secureData
}

// SetSecureData marks the first n bytes of the active buffer as the
// chunk's payload, excluding trailing hash overhead.
func (s *Context) SetSecureData(n int) {
	s.secureData = s.chunkBuf()[:n]
	s.secureDataLen = n
}

// SeedExpectedHash installs the expected digest of the first chunk,
// anchoring the hash chain. Checksum mode seeds it from the partition's
// stored checksum during Init; authenticated strategies seed it from their
// verified header.
func (s *Context) SeedExpectedHash(h []byte) error {
	if len(h) != HashLen {
		return fmt.Errorf("expected hash must be %d bytes, got %d", HashLen, len(h))
	}
	copy(s.expectedHash[:], h)
	return nil
}

// Advance records the bookkeeping for a fully processed chunk: the source
// address of the next block, the raw bytes consumed, and the block count.
func (s *Context) Advance(src int64, totalSize int) {
	s.nextBlkAddr = src + int64(totalSize)
	s.processedLen = totalSize
	s.blockNum++
}
