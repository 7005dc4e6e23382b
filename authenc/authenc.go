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

// Package authenc implements the authenticated and authenticated+encrypted
// partition processing strategies. Partition authenticity is anchored in a
// signed note binding the first chunk digest of the hash chain; encrypted
// partitions are deciphered after chain verification with a key derived
// from a device secret. Strategy selection is gated by the root-of-trust
// classifier: a non-secure device refuses both strategies.
package authenc

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/mod/sumdb/note"
	"k8s.io/klog/v2"

	"github.com/hardened-boot/secureload/rot"
	"github.com/hardened-boot/secureload/secure"
)

// noteHeader is the first line of a partition note's text.
const noteHeader = "secureload partition v1"

// KeyProvider derives symmetric key material from a device root secret.
type KeyProvider interface {
	// DeriveKey returns keyLen bytes diversified by the given label.
	DeriveKey(diversifier []byte, keyLen int) ([]byte, error)
}

// Config carries the authentication and decryption collaborator inputs for
// one partition.
type Config struct {
	// State is the classifier output gating strategy selection.
	State *rot.State

	// VerifierKey is the public verifier key for partition notes.
	VerifierKey string

	// PartitionNote is the signed note binding the partition's first chunk
	// digest.
	PartitionNote []byte

	// Keys derives the partition decryption key; required only for
	// encrypted partitions.
	Keys KeyProvider
}

// AuthInit binds the authenticated strategy when the partition declares
// authentication. Pass it as secure.Params.AuthInit.
func (c *Config) AuthInit(s *secure.Context) (secure.Processor, error) {
	if !s.Descriptor().Authenticated() {
		return nil, nil
	}

	posture, err := c.State.Auth()
	if err != nil {
		return nil, err
	}
	if posture == rot.AuthNonSecure {
		return nil, errors.New("authenticated partition not permitted on non-secure device")
	}

	if _, err := c.seedFromNote(s); err != nil {
		return nil, err
	}

	klog.Info("Partition authentication is enabled")
	return &Processor{}, nil
}

// EncInit binds the authenticated+encrypted strategy when the partition
// declares encryption. Pass it as secure.Params.EncInit.
func (c *Config) EncInit(s *secure.Context) (secure.Processor, error) {
	d := s.Descriptor()
	if !d.Encrypted() {
		return nil, nil
	}
	if !d.Authenticated() {
		return nil, errors.New("encrypted partitions must also be authenticated")
	}

	posture, err := c.State.Enc()
	if err != nil {
		return nil, err
	}
	if posture == rot.EncNonSecure {
		return nil, errors.New("encrypted partition not permitted on non-secure device")
	}

	if _, err := c.seedFromNote(s); err != nil {
		return nil, err
	}

	if c.Keys == nil {
		return nil, errors.New("no key provider for encrypted partition")
	}

	// Key and IV in one derivation, diversified by the declared key source.
	diversifier := fmt.Sprintf("secureload/aes/%d", d.KeySource())
	kb, err := c.Keys.DeriveKey([]byte(diversifier), 32+aes.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("could not derive partition key: %v", err)
	}

	block, err := aes.NewCipher(kb[:32])
	if err != nil {
		return nil, err
	}

	p := &Processor{
		key:    kb,
		stream: cipher.NewCTR(block, kb[32:]),
	}

	klog.Info("Partition decryption is enabled")
	return p, nil
}

// seedFromNote verifies the partition note and anchors the hash chain with
// the digest it binds.
func (c *Config) seedFromNote(s *secure.Context) ([]byte, error) {
	if len(c.PartitionNote) == 0 {
		return nil, errors.New("missing partition note")
	}

	v, err := note.NewVerifier(c.VerifierKey)
	if err != nil {
		return nil, err
	}

	n, err := note.Open(c.PartitionNote, note.VerifierList(v))
	if err != nil {
		return nil, fmt.Errorf("partition note verification failed: %v", err)
	}

	lines := strings.Split(strings.TrimSuffix(n.Text, "\n"), "\n")
	if len(lines) != 2 || lines[0] != noteHeader {
		return nil, errors.New("malformed partition note")
	}

	h, err := hex.DecodeString(lines[1])
	if err != nil || len(h) != secure.HashLen {
		return nil, errors.New("malformed partition note digest")
	}

	if err := s.SeedExpectedHash(h); err != nil {
		return nil, err
	}
	return h, nil
}

// FormatNoteText returns the note text binding the given first chunk
// digest, to be signed by the image signer.
func FormatNoteText(firstHash []byte) string {
	return fmt.Sprintf("%s\n%s\n", noteHeader, hex.EncodeToString(firstHash))
}

// Processor is the authenticated(+encrypted) partition processing strategy.
// The hash chain is verified over the stored stream in the staging buffer;
// for encrypted partitions the verified payload is then deciphered on its
// way to the destination.
type Processor struct {
	key    []byte
	stream cipher.Stream
}

// Process stages, verifies and places one chunk.
func (p *Processor) Process(s *secure.Context, dst []byte, blockSize int, last bool) error {
	klog.V(2).Infof("Processing block %d", s.BlockNum())

	var src int64
	if s.BlockNum() == 0 {
		src = s.Descriptor().DataOffset
	} else {
		src = s.NextBlkAddr()
	}

	totalSize := blockSize
	if err := s.ChunkCopy(src, last, blockSize, totalSize); err != nil {
		return err
	}

	n := totalSize
	if !last {
		n = totalSize - secure.HashLen
	}
	s.SetSecureData(n)
	payload := s.SecureData()

	if err := s.VerifyHashChain(payload, last); err != nil {
		return err
	}

	encoded := s.Descriptor().Encoded
	switch {
	case p.stream != nil && !encoded:
		if len(dst) < n {
			return fmt.Errorf("%w: destination window %d smaller than payload %d", secure.ErrTransfer, len(dst), n)
		}
		p.stream.XORKeyStream(dst[:n], payload)
	case p.stream != nil:
		// Encoded streams are deciphered in place for downstream
		// consumers of SecureData.
		p.stream.XORKeyStream(payload, payload)
	case !encoded:
		if len(dst) < n {
			return fmt.Errorf("%w: destination window %d smaller than payload %d", secure.ErrTransfer, len(dst), n)
		}
		copy(dst[:n], payload)
	}

	s.Advance(src, totalSize)
	return nil
}

// Clear zeroizes the key schedule and drops the cipher stream.
func (p *Processor) Clear() error {
	for i := range p.key {
		p.key[i] = 0
	}
	p.stream = nil
	return nil
}
