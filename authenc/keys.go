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

package authenc

import (
	"crypto/sha256"
	"errors"

	"golang.org/x/crypto/pbkdf2"
)

const kdfIter = 4096

// DerivedKeys is a KeyProvider stretching a device root secret with PBKDF2,
// standing in for a hardware key derivation engine.
type DerivedKeys struct {
	// Secret is the device root secret.
	Secret []byte
}

func (d *DerivedKeys) DeriveKey(diversifier []byte, keyLen int) ([]byte, error) {
	if len(d.Secret) == 0 {
		return nil, errors.New("no device secret")
	}
	return pbkdf2.Key(d.Secret, diversifier, kdfIter, keyLen, sha256.New), nil
}
