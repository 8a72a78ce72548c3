// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalmeet
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtprtcp

import "github.com/q191201771/lalmeet/pkg/base"

// IRtpPacker 把一个媒体单元(视频access unit或音频ADTS帧)打包成rtp包
//
// 返回的rtp包引用打包器内部的内存块，下次调用 Pack 后失效
type IRtpPacker interface {
	Pack(in []byte, timestamp uint32) (out [][]byte, err error)

	Ssrc() uint32
	SetSsrc(ssrc uint32)

	// Seq 下一个rtp包将要使用的32位逻辑序号
	Seq() uint32
}

var (
	_ IRtpPacker = &RtpPackerAvc{}
	_ IRtpPacker = &RtpPackerAac{}
)

type RtpPackerOption struct {
	PayloadType    uint8
	MaxPayloadSize int // rtp包体部分（不含固定头和扩展头）的最大大小
	BufferSize     int // 打包使用的内存块大小，一次 Pack 的所有输出都存放在这里
	FirstSeq       uint32
}

type ModRtpPackerOption func(option *RtpPackerOption)

// rtpPackerCore 打包器的公共部分：序号、ssrc以及内存块的分配
type rtpPackerCore struct {
	option RtpPackerOption
	ssrc   uint32
	seq    uint32

	buf []byte
	pos int
	out [][]byte
}

func newRtpPackerCore(option RtpPackerOption, ssrc uint32) rtpPackerCore {
	return rtpPackerCore{
		option: option,
		ssrc:   ssrc,
		seq:    option.FirstSeq,
		buf:    make([]byte, option.BufferSize),
	}
}

func (c *rtpPackerCore) Ssrc() uint32 {
	return c.ssrc
}

func (c *rtpPackerCore) SetSsrc(ssrc uint32) {
	c.ssrc = ssrc
}

func (c *rtpPackerCore) Seq() uint32 {
	return c.seq
}

func (c *rtpPackerCore) reset() {
	c.pos = 0
	c.out = c.out[:0]
}

// beginPacket 在内存块中写入rtp头，返回写入payload的起始位置
//
// payloadSize 为该包payload的总大小，内存块不足时返回错误，且不做任何修改
func (c *rtpPackerCore) beginPacket(timestamp uint32, payloadSize int) (start int, err error) {
	need := c.pos + RtpHeaderLength + payloadSize
	if need > len(c.buf) {
		return 0, base.NewErrPacketizerOverflow(need, len(c.buf))
	}

	h := RtpHeader{
		PayloadType: c.option.PayloadType,
		Seq:         c.seq,
		Timestamp:   timestamp,
		Ssrc:        c.ssrc,
	}
	start = c.pos
	n, _ := h.PackTo(c.buf, c.pos)
	c.pos += n
	return
}

// endPacket 以 start 开头的rtp包写入完成
func (c *rtpPackerCore) endPacket(start int) {
	c.out = append(c.out, c.buf[start:c.pos:c.pos])
	c.seq++
}

func (c *rtpPackerCore) write(b []byte) {
	c.pos += copy(c.buf[c.pos:], b)
}

func (c *rtpPackerCore) writeByte(v byte) {
	c.buf[c.pos] = v
	c.pos++
}
