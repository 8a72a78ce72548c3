// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalmeet
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtprtcp

import (
	"github.com/q191201771/lalmeet/pkg/avc"
	"github.com/q191201771/lalmeet/pkg/base"
	"github.com/q191201771/naza/pkg/bele"
)

var defaultRtpPackerAvcOption = RtpPackerOption{
	PayloadType:    base.RtpPacketTypeAvc,
	MaxPayloadSize: RtpPayloadSize,
	BufferSize:     RtpPacketsBufferSize,
	FirstSeq:       0,
}

// RtpPackerAvc 把一个Annex-B格式的access unit打包成rtp包
//
//   - 大于 MaxPayloadSize 的nalu使用FU-A分片
//   - 连续的小nalu合并在一起，只有一个时使用Single NAL Unit，多个时使用STAP-A
//   - access unit的最后一个rtp包设置mark
//   - 扩展头的reserved字段写入该access unit的rtp包个数
//
// 非并发安全
type RtpPackerAvc struct {
	rtpPackerCore

	nals [][]byte
	run  [][]byte
}

func NewRtpPackerAvc(ssrc uint32, modOptions ...ModRtpPackerOption) *RtpPackerAvc {
	option := defaultRtpPackerAvcOption
	for _, fn := range modOptions {
		fn(&option)
	}
	return &RtpPackerAvc{
		rtpPackerCore: newRtpPackerCore(option, ssrc),
	}
}

// Pack
//
// @param in: Annex-B格式的一个完整access unit
//
// @param timestamp: 写入rtp包头的时间戳
//
// @return out: 引用内部内存块，下次调用 Pack 后失效
//
// 失败时返回错误，序号不前进，已打包的部分不可用
func (r *RtpPackerAvc) Pack(in []byte, timestamp uint32) (out [][]byte, err error) {
	r.reset()
	r.nals = r.nals[:0]
	r.run = r.run[:0]
	firstSeq := r.seq

	avc.IterateNaluAnnexb(in, func(nal []byte) {
		if len(nal) > 0 {
			r.nals = append(r.nals, nal)
		}
	})

	maxSize := r.option.MaxPayloadSize
	runSize := 0
	for _, nal := range r.nals {
		if len(nal) > maxSize {
			if err = r.flushRun(timestamp); err != nil {
				break
			}
			runSize = 0
			if err = r.packFua(nal, timestamp); err != nil {
				break
			}
			continue
		}

		if len(r.run) > 0 && runSize+stapaSizeLength+len(nal) > maxSize {
			if err = r.flushRun(timestamp); err != nil {
				break
			}
			runSize = 0
		}
		if len(r.run) == 0 {
			runSize = stapaHeaderSize
		}
		r.run = append(r.run, nal)
		runSize += stapaSizeLength + len(nal)
	}
	if err == nil {
		err = r.flushRun(timestamp)
	}
	if err != nil {
		r.seq = firstSeq
		r.reset()
		return nil, err
	}

	if len(r.out) > 0 {
		setMark(r.out[len(r.out)-1], true)
	}
	n := uint16(len(r.out))
	for _, pkt := range r.out {
		setReserved(pkt, n)
	}
	return r.out, nil
}

// flushRun 把缓存的小nalu打成一个rtp包
func (r *RtpPackerAvc) flushRun(timestamp uint32) error {
	switch len(r.run) {
	case 0:
		return nil
	case 1:
		nal := r.run[0]
		start, err := r.beginPacket(timestamp, len(nal))
		if err != nil {
			return err
		}
		r.write(nal)
		r.endPacket(start)
	default:
		size := stapaHeaderSize
		for _, nal := range r.run {
			size += stapaSizeLength + len(nal)
		}
		start, err := r.beginPacket(timestamp, size)
		if err != nil {
			return err
		}
		r.writeByte(NaluTypeAvcStapa)
		for _, nal := range r.run {
			bele.BePutUint16(r.buf[r.pos:], uint16(len(nal)))
			r.pos += stapaSizeLength
			r.write(nal)
		}
		r.endPacket(start)
	}
	r.run = r.run[:0]
	return nil
}

// packFua 把一个大nalu切分成多个FU-A包
//
// 原nalu的头部字节不直接拷贝，而是拆分到FU indicator和FU header中
func (r *RtpPackerAvc) packFua(nal []byte, timestamp uint32) error {
	fnri := nal[0] & 0xE0
	nalType := nal[0] & 0x1F
	data := nal[1:]

	fragmentSize := r.option.MaxPayloadSize - fuaHeaderSize
	for bpos := 0; bpos < len(data); {
		copyLen := len(data) - bpos
		if copyLen > fragmentSize {
			copyLen = fragmentSize
		}

		start, err := r.beginPacket(timestamp, fuaHeaderSize+copyLen)
		if err != nil {
			return err
		}

		// FU indicator
		r.writeByte(fnri | NaluTypeAvcFua)
		// FU header
		switch {
		case bpos == 0:
			r.writeByte(0x80 | nalType)
		case bpos+copyLen == len(data):
			r.writeByte(0x40 | nalType)
		default:
			r.writeByte(nalType)
		}
		r.write(data[bpos : bpos+copyLen])
		r.endPacket(start)

		bpos += copyLen
	}
	return nil
}
