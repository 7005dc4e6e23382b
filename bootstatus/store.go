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

// Package bootstatus implements the non-volatile boot-status storage: a
// small word-addressable area holding the device's root-of-trust state and
// firmware version epoch, sealed with an authentication tag and a monotonic
// write counter so that stale or tampered status content is detected at
// boot.
package bootstatus

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// NumWords is the number of status words available to callers.
	NumWords = 16

	// counterWord and the seal words live past the caller-visible area.
	counterWord = NumWords
	sealWord    = NumWords + 1
	sealWords   = sha256.Size / 4

	// TotalWords is the backing device capacity a Store requires.
	TotalWords = sealWord + sealWords

	keyLen = 32
	iter   = 4096
)

// ErrStorageWrite tags persistence failures. Callers treat it as fatal: a
// boot whose status cannot be recorded must not proceed.
var ErrStorageWrite = errors.New("boot status write failed")

// Device is the word-addressable persistent storage backing a Store.
type Device interface {
	ReadWord(index int) (uint32, error)
	WriteWord(index int, v uint32) error
}

// Store seals boot-status words stored on a Device with an HMAC-SHA256 tag
// over the status area and a monotonic write counter.
type Store struct {
	sync.Mutex

	dev Device
	key [keyLen]byte
}

// Open returns a Store over dev, deriving the sealing key from the device
// secret and diversifier.
func Open(dev Device, secret, diversifier []byte) (*Store, error) {
	if dev == nil {
		return nil, errors.New("no backing device")
	}
	if len(secret) == 0 {
		return nil, errors.New("missing device secret")
	}

	s := &Store{dev: dev}
	copy(s.key[:], pbkdf2.Key(secret, diversifier, iter, keyLen, sha256.New))

	return s, nil
}

// WriteWord persists v at the given status word, bumps the write counter
// and reseals the status area. Any underlying failure is reported as
// ErrStorageWrite.
func (s *Store) WriteWord(index int, v uint32) error {
	s.Lock()
	defer s.Unlock()

	if index < 0 || index >= NumWords {
		return fmt.Errorf("%w: word %d out of range", ErrStorageWrite, index)
	}

	if err := s.dev.WriteWord(index, v); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}

	n, err := s.dev.ReadWord(counterWord)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}
	if err := s.dev.WriteWord(counterWord, n+1); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}

	return s.seal()
}

// ReadWord returns the given status word.
func (s *Store) ReadWord(index int) (uint32, error) {
	s.Lock()
	defer s.Unlock()

	if index < 0 || index >= NumWords {
		return 0, fmt.Errorf("word %d out of range", index)
	}
	return s.dev.ReadWord(index)
}

// Counter returns the store's monotonic write counter.
func (s *Store) Counter() (uint32, error) {
	s.Lock()
	defer s.Unlock()

	return s.dev.ReadWord(counterWord)
}

// Verify recomputes the seal over the status area and compares it against
// the stored tag.
func (s *Store) Verify() error {
	s.Lock()
	defer s.Unlock()

	want, err := s.mac()
	if err != nil {
		return err
	}

	got := make([]byte, 0, sha256.Size)
	for i := 0; i < sealWords; i++ {
		w, err := s.dev.ReadWord(sealWord + i)
		if err != nil {
			return err
		}
		got = binary.LittleEndian.AppendUint32(got, w)
	}

	if !hmac.Equal(want, got) {
		return errors.New("boot status seal mismatch")
	}
	return nil
}

// seal writes the authentication tag over the status area and counter.
// Callers hold the lock.
func (s *Store) seal() error {
	tag, err := s.mac()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}

	for i := 0; i < sealWords; i++ {
		if err := s.dev.WriteWord(sealWord+i, binary.LittleEndian.Uint32(tag[i*4:])); err != nil {
			return fmt.Errorf("%w: %v", ErrStorageWrite, err)
		}
	}
	return nil
}

// mac computes the HMAC over the status words and write counter. Callers
// hold the lock.
func (s *Store) mac() ([]byte, error) {
	h := hmac.New(sha256.New, s.key[:])

	buf := make([]byte, 4)
	for i := 0; i <= counterWord; i++ {
		w, err := s.dev.ReadWord(i)
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint32(buf, w)
		h.Write(buf)
	}
	return h.Sum(nil), nil
}
