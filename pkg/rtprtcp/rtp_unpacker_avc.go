// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalmeet
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtprtcp

import (
	"fmt"

	"github.com/q191201771/lalmeet/pkg/avc"
	"github.com/q191201771/lalmeet/pkg/base"
	"github.com/q191201771/naza/pkg/bele"
)

type AvcFrameAssemblerOption struct {
	BufferSize int
}

var defaultAvcFrameAssemblerOption = AvcFrameAssemblerOption{
	BufferSize: AssemblerBufferSize,
}

type ModAvcFrameAssemblerOption func(option *AvcFrameAssemblerOption)

// AvcFrameAssembler 把按序到达的h264 rtp包还原成Annex-B格式的数据
//
// 不做排序，排序由上游的 RtpPacketList 负责。
// PushPacket 返回true时，Frame 中是一段完整的数据：
// 一个Single NAL Unit包、一个STAP-A包中的所有nalu、或者一组FU-A分片合成的nalu
//
// 非并发安全
type AvcFrameAssembler struct {
	option AvcFrameAssemblerOption

	buf  []byte
	used int

	fuaStarted bool
}

func NewAvcFrameAssembler(modOptions ...ModAvcFrameAssemblerOption) *AvcFrameAssembler {
	option := defaultAvcFrameAssemblerOption
	for _, fn := range modOptions {
		fn(&option)
	}
	return &AvcFrameAssembler{
		option: option,
		buf:    make([]byte, option.BufferSize),
	}
}

// PushPacket
//
// @return ready: true表示 Frame 可读取
//
// @return err:   包格式错误或内存块不足，当前正在合成的数据被丢弃
func (a *AvcFrameAssembler) PushPacket(pkt *RtpPacket) (ready bool, err error) {
	payload := pkt.Payload
	if len(payload) == 0 {
		return false, fmt.Errorf("%w. empty payload", base.ErrAssemblerInvalid)
	}

	// rfc3984 5.3.  NAL Unit Octet Usage
	//
	// +---------------+
	// |0|1|2|3|4|5|6|7|
	// +-+-+-+-+-+-+-+-+
	// |F|NRI|  Type   |
	// +---------------+
	outerNaluType := payload[0] & 0x1F
	switch {
	case outerNaluType <= NaluTypeAvcSingleMax:
		return a.unpackSingle(payload)
	case outerNaluType == NaluTypeAvcStapa:
		return a.unpackStapa(payload[stapaHeaderSize:])
	case outerNaluType == NaluTypeAvcFua:
		return a.unpackFua(payload)
	}
	return false, fmt.Errorf("%w. unknown nalu type. type=%d", base.ErrAssemblerInvalid, outerNaluType)
}

// Frame 引用内部内存块，下次调用 PushPacket 后失效
func (a *AvcFrameAssembler) Frame() []byte {
	return a.buf[:a.used]
}

func (a *AvcFrameAssembler) Reset() {
	a.used = 0
	a.fuaStarted = false
}

// ---------------------------------------------------------------------------------------------------------------------

// unpackSingle 一个Single NAL Unit包就是一段完整的数据，覆盖之前的内容
func (a *AvcFrameAssembler) unpackSingle(nal []byte) (bool, error) {
	a.Reset()
	if err := a.appendNal(nal[0], nal[1:]); err != nil {
		a.Reset()
		return false, err
	}
	return true, nil
}

// unpackStapa
//
// rfc3984 5.7.1.  Single-Time Aggregation Packet (STAP)
//
// | STAP-A NAL HDR | NALU 1 Size(16b) | NALU 1 HDR | NALU 1 Data | NALU 2 Size | ...
func (a *AvcFrameAssembler) unpackStapa(b []byte) (bool, error) {
	a.Reset()
	for len(b) > stapaSizeLength {
		nalSize := int(bele.BeUint16(b))
		b = b[stapaSizeLength:]
		if nalSize > len(b) {
			a.Reset()
			return false, fmt.Errorf("%w. stapa nalu size overflow. size=%d, remain=%d", base.ErrAssemblerInvalid, nalSize, len(b))
		}
		if nalSize > 0 {
			if err := a.appendNal(b[0], b[1:nalSize]); err != nil {
				a.Reset()
				return false, err
			}
		}
		b = b[nalSize:]
	}
	return true, nil
}

// unpackFua
//
// rfc3984 5.8.  Fragmentation Units (FUs)
//
// | FU indicator | FU header | FU payload ... |
//
// FU indicator:  |F|NRI|  Type(28) |
// FU header:     |S|E|R|  Type     |
func (a *AvcFrameAssembler) unpackFua(b []byte) (bool, error) {
	if len(b) < fuaHeaderSize+1 {
		a.Reset()
		return false, fmt.Errorf("%w. fua too short. len=%d", base.ErrAssemblerInvalid, len(b))
	}

	fuIndicator := b[0]
	fuHeader := b[1]
	start := fuHeader&0x80 != 0
	end := fuHeader&0x40 != 0
	data := b[fuaHeaderSize:]

	if start {
		a.Reset()
		nal := (fuIndicator & 0xE0) | (fuHeader & 0x1F)
		if err := a.appendNal(nal, data); err != nil {
			a.Reset()
			return false, err
		}
		a.fuaStarted = true
		return false, nil
	}

	if !a.fuaStarted {
		return false, fmt.Errorf("%w. fua fragment without start", base.ErrAssemblerInvalid)
	}
	if err := a.append(data); err != nil {
		a.Reset()
		return false, err
	}
	if end {
		a.fuaStarted = false
		return true, nil
	}
	return false, nil
}

// appendNal 写入起始码、nalu头以及剩余部分
//
// 起始码的长度由nalu内容决定：
// nalu头为0x65，或者为0x61、0x41且后一个字节的最高位为0时，使用3字节起始码，否则使用4字节起始码
func (a *AvcFrameAssembler) appendNal(nalHeader byte, rest []byte) error {
	startCode := avc.NaluStartCode4
	if nalHeader == 0x65 || ((nalHeader == 0x61 || nalHeader == 0x41) && len(rest) > 0 && rest[0]&0x80 == 0) {
		startCode = avc.NaluStartCode3
	}
	need := a.used + len(startCode) + 1 + len(rest)
	if need > len(a.buf) {
		return fmt.Errorf("%w. need=%d, capacity=%d", base.ErrAssemblerOverflow, need, len(a.buf))
	}
	a.used += copy(a.buf[a.used:], startCode)
	a.buf[a.used] = nalHeader
	a.used++
	a.used += copy(a.buf[a.used:], rest)
	return nil
}

func (a *AvcFrameAssembler) append(b []byte) error {
	need := a.used + len(b)
	if need > len(a.buf) {
		return fmt.Errorf("%w. need=%d, capacity=%d", base.ErrAssemblerOverflow, need, len(a.buf))
	}
	a.used += copy(a.buf[a.used:], b)
	return nil
}
