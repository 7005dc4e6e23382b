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

package image

// Boot header image attribute fields.
const (
	// BHAuthMask selects the two-bit "boot header authentication enabled"
	// field of the image attributes word.
	BHAuthMask  = 0x3 << BHAuthShift
	BHAuthShift = 14

	// BHAuthValue is the field value meaning enabled; a two-bit pattern is
	// used rather than a single bit so that one flipped bit cannot enable
	// or disable the field.
	BHAuthValue = 0x3
)

// BootHeader carries the boot header fields the root-of-trust classifier
// consumes.
type BootHeader struct {
	// Attributes is the image attributes word.
	Attributes uint32

	// KeySource is the loader image's declared encryption key source, 0 if
	// the image is not encrypted.
	KeySource uint32
}

// ImgAttributes returns the image attributes word. The classifier reads the
// word redundantly through this accessor.
func (h *BootHeader) ImgAttributes() uint32 {
	return h.Attributes
}

// PlmKeySource returns the loader image's declared key source.
func (h *BootHeader) PlmKeySource() uint32 {
	return h.KeySource
}

// BHAuthEnabled decodes the authentication-enabled field of an attributes
// word.
func BHAuthEnabled(attrs uint32) bool {
	return (attrs&BHAuthMask)>>BHAuthShift == BHAuthValue
}
