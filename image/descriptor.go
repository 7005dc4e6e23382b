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

// Package image gives access to the partition descriptor and boot header
// fields consumed by the ingestion pipeline. It deliberately parses nothing
// beyond those fields.
package image

import (
	"encoding/binary"
	"fmt"
)

const (
	// WordLen is the image word size in bytes; offsets in descriptors are
	// expressed in words.
	WordLen = 4

	// DescriptorLen is the serialized descriptor size in bytes.
	DescriptorLen = 32

	descriptorMagic = 0x53504454 // "SPDT"
)

// Partition attribute bits.
const (
	attrChecksumMask  = 0x7
	attrAuthMask      = 1 << 3
	attrEncMask       = 1 << 4
	attrEncodedMask   = 1 << 5
	attrKeySourceMask = 0xff << 8
)

// ChecksumType is the declared checksum algorithm of a partition.
type ChecksumType uint32

const (
	// ChecksumNone means the partition carries no checksum.
	ChecksumNone ChecksumType = 0x0
	// ChecksumSHA3 selects SHA3-384 chained-hash verification, the only
	// supported algorithm.
	ChecksumSHA3 ChecksumType = 0x3
)

// Descriptor carries the partition metadata consumed by the pipeline. It is
// read-only input, borrowed by a secure context for the partition's
// lifetime.
type Descriptor struct {
	// TotalLength is the raw partition stream size in bytes, including
	// embedded hash overhead.
	TotalLength int

	// DataOffset is the byte offset of the partition data on the source
	// medium.
	DataOffset int64

	// ChecksumOffset is the byte offset of the stored first-chunk digest.
	ChecksumOffset int64

	// Attributes packs the checksum/authentication/encryption bits and the
	// declared key source.
	Attributes uint32

	// Encoded marks a self-describing command stream rather than a raw
	// image; encoded chunks are verified in place and consumed from the
	// staging buffer by downstream interpreters.
	Encoded bool

	// Version is the partition's firmware version epoch, used for
	// anti-rollback checking. May be empty.
	Version string
}

// ChecksumType returns the declared checksum algorithm.
func (d *Descriptor) ChecksumType() ChecksumType {
	return ChecksumType(d.Attributes & attrChecksumMask)
}

// Authenticated reports whether the partition declares authentication.
func (d *Descriptor) Authenticated() bool {
	return d.Attributes&attrAuthMask != 0
}

// Encrypted reports whether the partition declares encryption.
func (d *Descriptor) Encrypted() bool {
	return d.Attributes&attrEncMask != 0
}

// KeySource returns the declared decryption key source, 0 if none.
func (d *Descriptor) KeySource() uint32 {
	return (d.Attributes & attrKeySourceMask) >> 8
}

// ParseDescriptor decodes a serialized descriptor.
func ParseDescriptor(b []byte) (*Descriptor, error) {
	if len(b) < DescriptorLen {
		return nil, fmt.Errorf("descriptor too short: %d bytes", len(b))
	}
	if m := binary.LittleEndian.Uint32(b[0:]); m != descriptorMagic {
		return nil, fmt.Errorf("bad descriptor magic %#x", m)
	}

	d := &Descriptor{
		TotalLength:    int(binary.LittleEndian.Uint32(b[4:])),
		DataOffset:     int64(binary.LittleEndian.Uint32(b[8:])) * WordLen,
		ChecksumOffset: int64(binary.LittleEndian.Uint32(b[12:])) * WordLen,
		Attributes:     binary.LittleEndian.Uint32(b[16:]),
	}
	d.Encoded = d.Attributes&attrEncodedMask != 0

	if d.TotalLength == 0 {
		return nil, fmt.Errorf("descriptor declares empty partition")
	}
	return d, nil
}

// MarshalBinary serializes the descriptor. Offsets must be word aligned.
func (d *Descriptor) MarshalBinary() ([]byte, error) {
	if d.DataOffset%WordLen != 0 || d.ChecksumOffset%WordLen != 0 {
		return nil, fmt.Errorf("descriptor offsets must be word aligned")
	}

	attrs := d.Attributes
	if d.Encoded {
		attrs |= attrEncodedMask
	}

	b := make([]byte, DescriptorLen)
	binary.LittleEndian.PutUint32(b[0:], descriptorMagic)
	binary.LittleEndian.PutUint32(b[4:], uint32(d.TotalLength))
	binary.LittleEndian.PutUint32(b[8:], uint32(d.DataOffset/WordLen))
	binary.LittleEndian.PutUint32(b[12:], uint32(d.ChecksumOffset/WordLen))
	binary.LittleEndian.PutUint32(b[16:], attrs)
	return b, nil
}
