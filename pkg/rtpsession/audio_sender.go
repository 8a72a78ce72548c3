// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalmeet
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtpsession

import (
	"github.com/q191201771/lalmeet/pkg/base"
	"github.com/q191201771/lalmeet/pkg/rtprtcp"
)

// AudioSender 发送aac的rtp会话，一个ADTS帧对应一个rtp包
type AudioSender struct {
	*baseSender
}

func NewAudioSender(modOptions ...ModSenderOption) (*AudioSender, error) {
	option := defaultSenderOption
	for _, fn := range modOptions {
		fn(&option)
	}

	packer := rtprtcp.NewRtpPackerAac(option.Ssrc, func(o *rtprtcp.RtpPackerOption) {
		o.FirstSeq = option.FirstSeq
	})
	s, err := newBaseSender(base.GenUkAudioSender(), base.StatSessionTypeAudioSend, option, packer)
	if err != nil {
		return nil, err
	}
	return &AudioSender{baseSender: s}, nil
}

// SendAac
//
// @param b: 带ADTS头的一帧音频
func (s *AudioSender) SendAac(b []byte) error {
	return s.send(b, base.NowMsTimestamp())
}
