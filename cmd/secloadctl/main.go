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

// secloadctl verifies a checksum-mode partition image on the host, streaming
// it through the same pipeline the boot loader uses and optionally
// extracting the verified payload.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/cheggaaa/pb/v3"
	"k8s.io/klog/v2"

	"github.com/hardened-boot/secureload/image"
	"github.com/hardened-boot/secureload/secure"
)

var (
	imagePath = flag.String("image", "", "partition image to verify")
	outPath   = flag.String("out", "", "write the verified payload to this file")
	chunkSize = flag.Int("chunk", secure.DefaultChunkSize, "chunk size in bytes")
	progress  = flag.Bool("progress", true, "show transfer progress")
)

// fileMover serves transfers from an image file held in memory. Initiated
// transfers complete on their wait phase, as on the device.
type fileMover struct {
	data    []byte
	bar     *pb.ProgressBar
	pending []byte
	pendSrc int64
}

func (m *fileMover) Transfer(src int64, dst []byte, flags secure.Flags) error {
	switch {
	case flags&secure.CopyInitiate != 0:
		m.pending = dst
		m.pendSrc = src
		return nil
	case flags&secure.CopyWaitDone != 0:
		if m.pending == nil {
			return fmt.Errorf("wait on a transfer that was never initiated")
		}
		dst = m.pending
		src = m.pendSrc
		m.pending = nil
	}

	if src < 0 || src+int64(len(dst)) > int64(len(m.data)) {
		return fmt.Errorf("read [%d, %d) outside image of %d bytes", src, src+int64(len(dst)), len(m.data))
	}
	copy(dst, m.data[src:])

	if m.bar != nil {
		m.bar.Add(len(dst))
	}
	return nil
}

func run() error {
	if *imagePath == "" {
		return fmt.Errorf("missing -image")
	}

	buf, err := os.ReadFile(*imagePath)
	if err != nil {
		return err
	}

	desc, err := image.ParseDescriptor(buf)
	if err != nil {
		return fmt.Errorf("could not parse partition descriptor: %v", err)
	}

	klog.Infof("Partition: %d raw bytes, data at %#x, checksum type %#x",
		desc.TotalLength, desc.DataOffset, uint32(desc.ChecksumType()))

	mover := &fileMover{data: buf}
	if *progress {
		mover.bar = pb.Full.Start64(int64(desc.TotalLength))
		defer mover.bar.Finish()
	}

	var ctx secure.Context
	if err := secure.Init(&ctx, secure.Params{
		Descriptor: desc,
		Mover:      mover,
		ChunkSize:  *chunkSize,
	}); err != nil {
		return err
	}

	dst := make([]byte, desc.TotalLength)
	if err := ctx.SecureCopy(dst); err != nil {
		if clrErr := ctx.Clear(); clrErr != nil {
			klog.Warningf("Secure clear failed: %v", clrErr)
		}
		return err
	}

	chunks := (desc.TotalLength + *chunkSize - 1) / *chunkSize
	payloadLen := desc.TotalLength - (chunks-1)*secure.HashLen

	klog.Infof("Verified %d payload bytes over %d chunks", payloadLen, chunks)

	if *outPath != "" {
		if err := os.WriteFile(*outPath, dst[:payloadLen], 0o644); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	if err := run(); err != nil {
		klog.Exitf("secloadctl: %v", err)
	}
}
