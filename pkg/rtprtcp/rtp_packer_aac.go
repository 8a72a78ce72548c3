// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalmeet
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtprtcp

import (
	"github.com/q191201771/lalmeet/pkg/aac"
	"github.com/q191201771/lalmeet/pkg/base"
)

var defaultRtpPackerAacOption = RtpPackerOption{
	PayloadType:    base.RtpPacketTypeAac,
	MaxPayloadSize: RtpPayloadSize,
	BufferSize:     AacPacketBufferSize,
	FirstSeq:       0,
}

// RtpPackerAac 一个ADTS帧打包成一个rtp包，不分片，mark恒为0
//
// 非并发安全
type RtpPackerAac struct {
	rtpPackerCore
}

func NewRtpPackerAac(ssrc uint32, modOptions ...ModRtpPackerOption) *RtpPackerAac {
	option := defaultRtpPackerAacOption
	for _, fn := range modOptions {
		fn(&option)
	}
	return &RtpPackerAac{
		rtpPackerCore: newRtpPackerCore(option, ssrc),
	}
}

// Pack
//
// @param in: 带ADTS头的一帧音频
//
// @return out: 长度为1，引用内部内存块，下次调用 Pack 后失效
func (r *RtpPackerAac) Pack(in []byte, timestamp uint32) (out [][]byte, err error) {
	r.reset()

	if len(in) > r.option.MaxPayloadSize {
		Log.Warnf("adts frame bigger than rtp payload size while packing. len(in)=%d, maxSize=%d", len(in), r.option.MaxPayloadSize)
	}
	if len(in) >= aac.AdtsHeaderLength {
		if ctx, err := aac.NewAdtsHeaderContext(in); err != nil || int(ctx.AdtsLength) != len(in) {
			Log.Debugf("input is not a single adts frame. len(in)=%d, err=%+v", len(in), err)
		}
	}

	start, err := r.beginPacket(timestamp, len(in))
	if err != nil {
		return nil, err
	}
	r.write(in)
	r.endPacket(start)
	return r.out, nil
}
