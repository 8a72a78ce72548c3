// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalmeet
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtprtcp_test

import (
	"errors"
	"testing"

	"github.com/pion/rtp"
	"github.com/q191201771/lalmeet/pkg/base"
	"github.com/q191201771/lalmeet/pkg/rtprtcp"
	"github.com/q191201771/naza/pkg/assert"
)

func TestParseRtpPacket(t *testing.T) {
	h := rtprtcp.RtpHeader{
		Mark:        1,
		PayloadType: 96,
		Seq:         1<<16 | 10,
		Timestamp:   123456,
		Ssrc:        0x11223344,
		Reserved:    3,
		Msw:         7,
		Lsw:         8,
	}
	raw := rtprtcp.MakeRtpPacket(h, []byte{0x65, 1, 2, 3})
	assert.Equal(t, rtprtcp.RtpHeaderLength+4, len(raw))

	pkt, err := rtprtcp.ParseRtpPacket(raw)
	assert.Equal(t, nil, err)
	assert.Equal(t, uint32(65546), pkt.Seq)
	assert.Equal(t, true, pkt.Mark)
	assert.Equal(t, true, pkt.Extension)
	assert.Equal(t, false, pkt.Padding)
	assert.Equal(t, uint8(0), pkt.CsrcCount)
	assert.Equal(t, uint8(96), pkt.PayloadType)
	assert.Equal(t, uint32(123456), pkt.Timestamp)
	assert.Equal(t, uint32(0x11223344), pkt.Ssrc)
	assert.Equal(t, uint16(0), pkt.ExtensionId)
	assert.Equal(t, uint16(3), pkt.ExtensionLength)
	assert.Equal(t, uint16(3), pkt.Reserved)
	assert.Equal(t, uint32(7), pkt.Msw)
	assert.Equal(t, uint32(8), pkt.Lsw)
	assert.Equal(t, []byte{0x65, 1, 2, 3}, pkt.Payload)
	assert.Equal(t, raw, pkt.Raw)

	// 解析结果引用原内存块
	pkt.SetSsrc(0x55667788)
	again, err := rtprtcp.ParseRtpPacket(raw)
	assert.Equal(t, nil, err)
	assert.Equal(t, uint32(0x55667788), again.Ssrc)

	again.SetSeq(0x00020003)
	again, err = rtprtcp.ParseRtpPacket(raw)
	assert.Equal(t, nil, err)
	assert.Equal(t, uint32(0x00020003), again.Seq)

	// 只有头，没有payload
	pkt, err = rtprtcp.ParseRtpPacket(rtprtcp.MakeRtpPacket(h, nil))
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, len(pkt.Payload))
}

func TestParseRtpPacket_Reject(t *testing.T) {
	good := rtprtcp.MakeRtpPacket(rtprtcp.RtpHeader{PayloadType: 97, Seq: 1}, []byte{1, 2, 3, 4})

	check := func(b []byte, target error) {
		var pkt rtprtcp.RtpPacket
		pkt.Seq = 0xABCD
		err := pkt.Parse(b)
		assert.Equal(t, true, errors.Is(err, target))
		// 失败时不修改
		assert.Equal(t, uint32(0xABCD), pkt.Seq)
		assert.Equal(t, 0, len(pkt.Raw))
	}

	check(good[:11], base.ErrRtpShortBuffer)
	check(good[:12], base.ErrRtpShortBuffer)

	b := append([]byte(nil), good...)
	b[0] = 1<<6 | 1<<4
	check(b, base.ErrRtpVersion)

	b = append([]byte(nil), good...)
	b[0] &^= 1 << 4
	check(b, base.ErrRtpNoExtension)

	b = append([]byte(nil), good...)
	b[15] = 4
	check(b, base.ErrRtpExtensionLength)

	// 有padding标志，但是padding长度为0
	b = append([]byte(nil), good...)
	b[0] |= 1 << 5
	b[len(b)-1] = 0
	check(b, base.ErrRtpPaddingLength)

	// padding长度超过了payload长度
	b = append([]byte(nil), good...)
	b[0] |= 1 << 5
	b[len(b)-1] = 5
	check(b, base.ErrRtpPayloadLength)

	// 声明了csrc，但是长度不够放下csrc和扩展头
	b = append([]byte(nil), good...)
	b[0] |= 2
	check(b, base.ErrRtpShortBuffer)
}

func TestRtpPacket_PaddingAndCsrc(t *testing.T) {
	// 手工构造: 2个csrc，3字节padding
	b := []byte{
		2<<6 | 1<<5 | 1<<4 | 2, 97, 0x00, 0x05,
		0, 0, 0, 1,
		0, 0, 0, 2,
		0xAA, 0xAA, 0xAA, 0xAA, // csrc 0
		0xBB, 0xBB, 0xBB, 0xBB, // csrc 1
		0, 0, 0, 3, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0, // 扩展头
		9, 8, 7, // payload
		0, 0, 3, // padding
	}
	pkt, err := rtprtcp.ParseRtpPacket(b)
	assert.Equal(t, nil, err)
	assert.Equal(t, true, pkt.Padding)
	assert.Equal(t, uint8(2), pkt.CsrcCount)
	assert.Equal(t, uint32(0xAAAAAAAA), pkt.Csrc(0))
	assert.Equal(t, uint32(0xBBBBBBBB), pkt.Csrc(1))
	assert.Equal(t, uint32(0), pkt.Csrc(2))
	assert.Equal(t, uint32(0), pkt.Csrc(-1))
	assert.Equal(t, uint32(1<<16|5), pkt.Seq)
	assert.Equal(t, []byte{9, 8, 7}, pkt.Payload)
}

// 使用pion/rtp解析，确认线上格式是合法的rtp
func TestRtpPacket_PionInterop(t *testing.T) {
	h := rtprtcp.RtpHeader{
		Mark:        1,
		PayloadType: 96,
		Seq:         0x0003FFFE,
		Timestamp:   90000,
		Ssrc:        1234,
		Reserved:    2,
	}
	payload := []byte{0x67, 0x42, 0x00, 0x1F}
	raw := rtprtcp.MakeRtpPacket(h, payload)

	var p rtp.Packet
	err := p.Unmarshal(raw)
	assert.Equal(t, nil, err)
	assert.Equal(t, uint8(2), p.Version)
	assert.Equal(t, true, p.Marker)
	assert.Equal(t, uint8(96), p.PayloadType)
	assert.Equal(t, uint16(0xFFFE), p.SequenceNumber)
	assert.Equal(t, uint32(90000), p.Timestamp)
	assert.Equal(t, uint32(1234), p.SSRC)
	assert.Equal(t, true, p.Extension)
	assert.Equal(t, uint16(0), p.ExtensionProfile)
	assert.Equal(t, payload, p.Payload)

	ext := p.GetExtension(0)
	assert.Equal(t, rtprtcp.RtpExtensionHeaderLength-4, len(ext))
	assert.Equal(t, []byte{0, 2, 0, 3}, ext[:4])
}
