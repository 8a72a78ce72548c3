// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalmeet
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/q191201771/naza/pkg/bele"
	"github.com/q191201771/naza/pkg/nazabytes"
)

// DumpFile 把收发的原始rtp包落盘，用于排查问题
//
// 每条消息的格式：
// | Ver(4) | Typ(4) | Len(4) | Timestamp(4) | Body(Len) |
// 字段均为大端
type DumpFile struct {
	mu   sync.Mutex
	file *os.File
}

type DumpFileMessage struct {
	Ver       uint32
	Typ       uint32
	Len       uint32
	Timestamp uint32
	Body      []byte
}

const dumpFileVersion = 1

const (
	DumpTypeRtpSend uint32 = 1
	DumpTypeRtpRecv uint32 = 2
)

func NewDumpFile() *DumpFile {
	return &DumpFile{}
}

func (d *DumpFile) OpenToWrite(filename string) (err error) {
	dir := filepath.Dir(filename)
	if err = os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	d.file, err = os.Create(filename)
	return
}

func (d *DumpFile) OpenToRead(filename string) (err error) {
	d.file, err = os.Open(filename)
	return
}

func (d *DumpFile) WriteWithType(b []byte, typ uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return os.ErrClosed
	}
	_, err := d.file.Write(d.pack(b, typ))
	return err
}

// ReadOneMessage 读取结束时返回 io.EOF
func (d *DumpFile) ReadOneMessage() (m DumpFileMessage, err error) {
	var header [16]byte
	if _, err = io.ReadFull(d.file, header[:]); err != nil {
		return
	}
	m.Ver = bele.BeUint32(header[:])
	m.Typ = bele.BeUint32(header[4:])
	m.Len = bele.BeUint32(header[8:])
	m.Timestamp = bele.BeUint32(header[12:])
	if m.Ver != dumpFileVersion {
		err = fmt.Errorf("%w. unknown dump file version. ver=%d", ErrInvalidParams, m.Ver)
		return
	}
	m.Body = make([]byte, m.Len)
	if _, err = io.ReadFull(d.file, m.Body); err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return
}

func (d *DumpFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}

// ---------------------------------------------------------------------------------------------------------------------

func (m *DumpFileMessage) DebugString() string {
	return fmt.Sprintf("ver: %d, typ: %d, len: %d, timestamp: %d, hex: %s",
		m.Ver, m.Typ, m.Len, m.Timestamp, hex.Dump(nazabytes.Prefix(m.Body, 16)))
}

// ---------------------------------------------------------------------------------------------------------------------

func (d *DumpFile) pack(b []byte, typ uint32) []byte {
	ret := make([]byte, len(b)+16)
	bele.BePutUint32(ret, dumpFileVersion)
	bele.BePutUint32(ret[4:], typ)
	bele.BePutUint32(ret[8:], uint32(len(b)))
	bele.BePutUint32(ret[12:], uint32(time.Now().Unix()))
	copy(ret[16:], b)
	return ret
}
