// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalmeet
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package aac

import (
	"fmt"

	"github.com/q191201771/lalmeet/pkg/base"
	"github.com/q191201771/naza/pkg/nazabits"
)

// AudioSpecificConfig(asc)
//
// ADTS(Audio Data Transport Stream)
// e.g. es, ts
//
// 会议中音频以带ADTS头的帧为单位传输，一个rtp包携带一个ADTS帧

const (
	AdtsHeaderLength = 7

	AscSamplingFrequencyIndex48000 = 3
	AscSamplingFrequencyIndex44100 = 4
)

const minAscLength = 2

var samplingFrequencyTable = []int{
	96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050, 16000, 12000, 11025, 8000, 7350,
}

// <ISO_IEC_14496-3.pdf>
// <1.6.2.1 AudioSpecificConfig>, <page 33/110>
// <1.5.1.1 Audio Object type definition>, <page 23/110>
// <1.6.3.3 samplingFrequencyIndex>, <page 35/110>
// <1.6.3.4 channelConfiguration>
// --------------------------------------------------------
// audio object type      [5b] 1=AAC MAIN  2=AAC LC
// samplingFrequencyIndex [4b] 3=48000  4=44100  6=24000  5=32000  11=11025
// channelConfiguration   [4b] 1=center front speaker  2=left, right front speakers
type AscContext struct {
	AudioObjectType        uint8 // [5b]
	SamplingFrequencyIndex uint8 // [4b]
	ChannelConfiguration   uint8 // [4b]
}

func NewAscContext(asc []byte) (*AscContext, error) {
	var ascCtx AscContext
	if err := ascCtx.Unpack(asc); err != nil {
		return nil, err
	}
	return &ascCtx, nil
}

// @param asc: 2字节的AAC Audio Specifc Config
func (ascCtx *AscContext) Unpack(asc []byte) error {
	if len(asc) < minAscLength {
		return fmt.Errorf("%w. asc too short. len=%d", base.ErrAdts, len(asc))
	}

	br := nazabits.NewBitReader(asc)
	ascCtx.AudioObjectType, _ = br.ReadBits8(5)
	ascCtx.SamplingFrequencyIndex, _ = br.ReadBits8(4)
	ascCtx.ChannelConfiguration, _ = br.ReadBits8(4)
	return nil
}

// @return asc: 内存块为独立新申请
func (ascCtx *AscContext) Pack() (asc []byte) {
	asc = make([]byte, minAscLength)
	bw := nazabits.NewBitWriter(asc)
	bw.WriteBits8(5, ascCtx.AudioObjectType)
	bw.WriteBits8(4, ascCtx.SamplingFrequencyIndex)
	bw.WriteBits8(4, ascCtx.ChannelConfiguration)
	return
}

// PackAdtsHeader 生成ADTS头
//
// @param frameLength: raw aac frame的大小，不包含ADTS头
//
// @return 内存块为独立新申请
func (ascCtx *AscContext) PackAdtsHeader(frameLength int) (out []byte) {
	out = make([]byte, AdtsHeaderLength)
	_ = ascCtx.PackToAdtsHeader(out, frameLength)
	return
}

func (ascCtx *AscContext) PackToAdtsHeader(out []byte, frameLength int) error {
	if len(out) < AdtsHeaderLength {
		return fmt.Errorf("%w. out too short. len=%d", base.ErrAdts, len(out))
	}

	// 固定头28位 + 可变头28位，见 ISO_IEC_14496-3 1.A.2.2
	// syncword(12) id(1) layer(2) protection_absent(1) profile(2) sf_index(4) private(1) channel(3) orig+home(2)
	// copyright(2) aac_frame_length(13) buffer_fullness(11) raw_data_blocks(2)
	bw := nazabits.NewBitWriter(out)
	bw.WriteBits16(12, 0xFFF)
	bw.WriteBits8(4, 0x1)
	bw.WriteBits8(2, ascCtx.AudioObjectType-1)
	bw.WriteBits8(4, ascCtx.SamplingFrequencyIndex)
	bw.WriteBits8(1, 0)
	bw.WriteBits8(3, ascCtx.ChannelConfiguration)
	bw.WriteBits8(4, 0)
	bw.WriteBits16(13, uint16(frameLength+AdtsHeaderLength))
	bw.WriteBits16(11, 0x7FF)
	bw.WriteBits8(2, 0)
	return nil
}

func (ascCtx *AscContext) GetSamplingFrequency() (int, error) {
	if int(ascCtx.SamplingFrequencyIndex) >= len(samplingFrequencyTable) {
		return -1, fmt.Errorf("%w. invalid sampling frequency index. index=%d", base.ErrAdts, ascCtx.SamplingFrequencyIndex)
	}
	return samplingFrequencyTable[ascCtx.SamplingFrequencyIndex], nil
}

// ---------------------------------------------------------------------------------------------------------------------

type AdtsHeaderContext struct {
	AscCtx AscContext

	AdtsLength uint16 // 字段中的值，包含了adts header + adts frame
}

func NewAdtsHeaderContext(adtsHeader []byte) (*AdtsHeaderContext, error) {
	var ctx AdtsHeaderContext
	if err := ctx.Unpack(adtsHeader); err != nil {
		return nil, err
	}
	return &ctx, nil
}

func (ctx *AdtsHeaderContext) Unpack(adtsHeader []byte) error {
	if len(adtsHeader) < AdtsHeaderLength {
		return fmt.Errorf("%w. header too short. len=%d", base.ErrAdts, len(adtsHeader))
	}
	if adtsHeader[0] != 0xFF || adtsHeader[1]&0xF0 != 0xF0 {
		return fmt.Errorf("%w. invalid syncword. header=%v", base.ErrAdts, adtsHeader[:2])
	}

	br := nazabits.NewBitReader(adtsHeader)
	_ = br.SkipBits(16)
	v, _ := br.ReadBits8(2)
	ctx.AscCtx.AudioObjectType = v + 1
	ctx.AscCtx.SamplingFrequencyIndex, _ = br.ReadBits8(4)
	_ = br.SkipBits(1)
	ctx.AscCtx.ChannelConfiguration, _ = br.ReadBits8(3)
	_ = br.SkipBits(4)
	ctx.AdtsLength, _ = br.ReadBits16(13)
	if ctx.AdtsLength < AdtsHeaderLength {
		return fmt.Errorf("%w. invalid aac_frame_length. length=%d", base.ErrAdts, ctx.AdtsLength)
	}
	return nil
}

// IterateAdtsFrame 遍历字节流中的ADTS帧，回调中的 frame 包含ADTS头
//
// 末尾不完整的帧被忽略；遇到非法的头时返回错误
func IterateAdtsFrame(b []byte, handler func(frame []byte)) error {
	var ctx AdtsHeaderContext
	for len(b) >= AdtsHeaderLength {
		if err := ctx.Unpack(b); err != nil {
			return err
		}
		l := int(ctx.AdtsLength)
		if l > len(b) {
			break
		}
		handler(b[:l])
		b = b[l:]
	}
	return nil
}
