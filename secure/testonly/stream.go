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
	"golang.org/x/crypto/sha3"

	"github.com/hardened-boot/secureload/secure"
)

// BuildChainedStream lays out a chunked partition stream from per-chunk
// payloads: every chunk but the last is followed by the digest expected for
// the chunk after it. The returned first digest is the chain anchor a real
// image stores as the partition checksum.
//
// For raw streams each non-final digest covers the payload plus its
// trailing embedded digest; for encoded streams it covers the payload only.
func BuildChainedStream(payloads [][]byte, encoded bool) (stream []byte, first [secure.HashLen]byte) {
	n := len(payloads)
	hashes := make([][secure.HashLen]byte, n)

	for k := n - 1; k >= 0; k-- {
		last := k == n-1
		switch {
		case last:
			hashes[k] = sha3.Sum384(payloads[k])
		case encoded:
			hashes[k] = sha3.Sum384(payloads[k])
		default:
			blob := append(append([]byte(nil), payloads[k]...), hashes[k+1][:]...)
			hashes[k] = sha3.Sum384(blob)
		}
	}

	for k, p := range payloads {
		stream = append(stream, p...)
		if k != n-1 {
			stream = append(stream, hashes[k+1][:]...)
		}
	}
	return stream, hashes[0]
}

// ChunkPayloads slices a flat payload into per-chunk payloads for a given
// raw chunk size: every chunk but the last reserves room for the trailing
// digest.
func ChunkPayloads(payload []byte, chunkSize int) [][]byte {
	var out [][]byte
	for len(payload) > 0 {
		n := chunkSize
		if len(payload) <= chunkSize {
			// Final chunk, no trailing digest.
			n = len(payload)
		} else {
			n = chunkSize - secure.HashLen
		}
		out = append(out, payload[:n])
		payload = payload[n:]
	}
	return out
}
