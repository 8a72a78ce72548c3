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

// VideoSender 发送h264的rtp会话
type VideoSender struct {
	*baseSender
}

func NewVideoSender(modOptions ...ModSenderOption) (*VideoSender, error) {
	option := defaultSenderOption
	for _, fn := range modOptions {
		fn(&option)
	}

	packer := rtprtcp.NewRtpPackerAvc(option.Ssrc, func(o *rtprtcp.RtpPackerOption) {
		o.FirstSeq = option.FirstSeq
	})
	s, err := newBaseSender(base.GenUkVideoSender(), base.StatSessionTypeVideoSend, option, packer)
	if err != nil {
		return nil, err
	}
	return &VideoSender{baseSender: s}, nil
}

// SendAvc
//
// @param b: Annex-B格式的一个完整access unit，rtp时间戳取当前毫秒时间
func (s *VideoSender) SendAvc(b []byte) error {
	return s.send(b, base.NowMsTimestamp())
}
