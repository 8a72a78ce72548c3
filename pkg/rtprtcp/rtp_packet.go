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

	"github.com/q191201771/lalmeet/pkg/base"
	"github.com/q191201771/naza/pkg/bele"
)

// -----------------------------------
// rfc3550 5.1 RTP Fixed Header Fields
// -----------------------------------
//
// 0                   1                   2                   3
// 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// |V=2|P|X|  CC   |M|     PT      |       sequence number         |
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// |                           timestamp                           |
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// |           synchronization source (SSRC) identifier            |
// +=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+
// |            contributing source (CSRC) identifiers             |
// |                             ....                              |
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//
// 扩展头，总是存在，紧跟在csrc列表之后，共16字节
//
// 0                   1                   2                   3
// 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// |       defined by profile      |           length(=3)          |
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// |       reserved                |high 16 bits of sequence number|
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// |          NTP timestamp, most significant word                 |
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// |          NTP timestamp, least significant word                |
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+

const (
	RtpFixedHeaderLength     = 12
	RtpExtensionHeaderLength = 16
	RtpHeaderLength          = RtpFixedHeaderLength + RtpExtensionHeaderLength

	DefaultRtpVersion = 2

	// RtpExtensionWords 扩展头中length字段的值，单位4字节
	RtpExtensionWords = 3
)

// RtpHeader 打包时调用方提供的字段，其余字段固定：version=2，padding=0，extension=1，csrc count=0
type RtpHeader struct {
	Mark        uint8
	PayloadType uint8
	Seq         uint32 // 32位逻辑序号，低16位写入固定头，高16位写入扩展头
	Timestamp   uint32
	Ssrc        uint32
	Reserved    uint16
	Msw         uint32
	Lsw         uint32
}

// RtpPacket 解析后的rtp包
//
// 注意，不拷贝内存，Raw 和 Payload 都引用解析时传入的内存块，
// 在内存块被复用或释放之前有效
type RtpPacket struct {
	Padding     bool
	Extension   bool
	CsrcCount   uint8
	Mark        bool
	PayloadType uint8
	Seq         uint32 // 32位逻辑序号，(seqHigh16 << 16) | seq
	Timestamp   uint32
	Ssrc        uint32

	ExtensionId     uint16
	ExtensionLength uint16
	Reserved        uint16
	Msw             uint32
	Lsw             uint32

	Raw     []byte // 整个rtp包
	Payload []byte

	item *rtpPacketListItem // 非nil时，Raw 引用的是池中的内存块
}

// ParseRtpPacket
//
// @param b: 函数返回后，返回值仍然引用该内存块
func ParseRtpPacket(b []byte) (pkt RtpPacket, err error) {
	err = pkt.Parse(b)
	return
}

// Parse 解析失败时 pkt 保持不变
func (pkt *RtpPacket) Parse(b []byte) error {
	var p RtpPacket

	if len(b) <= RtpFixedHeaderLength {
		return base.NewErrRtpShortBuffer(RtpFixedHeaderLength+1, len(b))
	}

	version := b[0] >> 6
	if version != DefaultRtpVersion {
		return fmt.Errorf("%w. version=%d", base.ErrRtpVersion, version)
	}

	p.Padding = (b[0]>>5)&0x1 != 0
	p.Extension = (b[0]>>4)&0x1 != 0
	p.CsrcCount = b[0] & 0xF
	p.Mark = b[1]>>7 != 0
	p.PayloadType = b[1] & 0x7F
	seqLow := bele.BeUint16(b[2:])
	p.Timestamp = bele.BeUint32(b[4:])
	p.Ssrc = bele.BeUint32(b[8:])

	paddingLength := 0
	if p.Padding {
		paddingLength = int(b[len(b)-1])
		if paddingLength == 0 {
			return fmt.Errorf("%w. padding bit set but padding length is 0", base.ErrRtpPaddingLength)
		}
	}

	if !p.Extension {
		return base.ErrRtpNoExtension
	}

	extOffset := RtpFixedHeaderLength + int(p.CsrcCount)*4
	payloadOffset := extOffset + RtpExtensionHeaderLength
	if len(b) < payloadOffset {
		return base.NewErrRtpShortBuffer(payloadOffset, len(b))
	}

	p.ExtensionId = bele.BeUint16(b[extOffset:])
	p.ExtensionLength = bele.BeUint16(b[extOffset+2:])
	if p.ExtensionLength != RtpExtensionWords {
		return fmt.Errorf("%w. length=%d", base.ErrRtpExtensionLength, p.ExtensionLength)
	}
	p.Reserved = bele.BeUint16(b[extOffset+4:])
	seqHigh := bele.BeUint16(b[extOffset+6:])
	p.Msw = bele.BeUint32(b[extOffset+8:])
	p.Lsw = bele.BeUint32(b[extOffset+12:])
	p.Seq = uint32(seqHigh)<<16 | uint32(seqLow)

	payloadLength := len(b) - paddingLength - payloadOffset
	if payloadLength < 0 {
		return fmt.Errorf("%w. len=%d, padding=%d, csrc=%d", base.ErrRtpPayloadLength, len(b), paddingLength, p.CsrcCount)
	}

	p.Raw = b
	p.Payload = b[payloadOffset : payloadOffset+payloadLength]
	*pkt = p
	return nil
}

// Csrc 下标越界时返回0
func (pkt *RtpPacket) Csrc(index int) uint32 {
	if index < 0 || index >= int(pkt.CsrcCount) {
		return 0
	}
	return bele.BeUint32(pkt.Raw[RtpFixedHeaderLength+index*4:])
}

// SetSsrc 直接修改 Raw 中的ssrc字段，转发时使用
func (pkt *RtpPacket) SetSsrc(ssrc uint32) {
	pkt.Ssrc = ssrc
	bele.BePutUint32(pkt.Raw[8:], ssrc)
}

// SetSeq 直接修改 Raw 中的序号字段，包括扩展头中的高16位
func (pkt *RtpPacket) SetSeq(seq uint32) {
	pkt.Seq = seq
	bele.BePutUint16(pkt.Raw[2:], uint16(seq))
	bele.BePutUint16(pkt.Raw[RtpFixedHeaderLength+int(pkt.CsrcCount)*4+6:], uint16(seq>>16))
}

// ---------------------------------------------------------------------------------------------------------------------

// PackTo 将固定头和扩展头写入 out 的 offset 位置
//
// @return 写入的字节数，即 RtpHeaderLength
func (h *RtpHeader) PackTo(out []byte, offset int) (int, error) {
	if len(out)-offset < RtpHeaderLength {
		return 0, base.NewErrRtpShortBuffer(offset+RtpHeaderLength, len(out))
	}
	b := out[offset:]
	b[0] = DefaultRtpVersion<<6 | 1<<4
	b[1] = h.PayloadType&0x7F | (h.Mark&0x1)<<7
	bele.BePutUint16(b[2:], uint16(h.Seq))
	bele.BePutUint32(b[4:], h.Timestamp)
	bele.BePutUint32(b[8:], h.Ssrc)

	bele.BePutUint16(b[12:], 0)
	bele.BePutUint16(b[14:], RtpExtensionWords)
	bele.BePutUint16(b[16:], h.Reserved)
	bele.BePutUint16(b[18:], uint16(h.Seq>>16))
	bele.BePutUint32(b[20:], h.Msw)
	bele.BePutUint32(b[24:], h.Lsw)
	return RtpHeaderLength, nil
}

// MakeRtpPacket 申请新的内存块，写入头和payload
func MakeRtpPacket(h RtpHeader, payload []byte) []byte {
	out := make([]byte, RtpHeaderLength+len(payload))
	_, _ = h.PackTo(out, 0)
	copy(out[RtpHeaderLength:], payload)
	return out
}

// setMark 直接修改已打包好的rtp包中的mark位
func setMark(raw []byte, mark bool) {
	if mark {
		raw[1] |= 0x80
	} else {
		raw[1] &= 0x7F
	}
}

// setReserved 直接修改已打包好的rtp包中扩展头的reserved字段，打包时csrc count固定为0
func setReserved(raw []byte, reserved uint16) {
	bele.BePutUint16(raw[RtpFixedHeaderLength+4:], reserved)
}
