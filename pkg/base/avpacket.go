// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalmeet
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

type AvPacketPt int

const (
	AvPacketPtUnknown AvPacketPt = -1
	AvPacketPtAvc     AvPacketPt = RtpPacketTypeAvc
	AvPacketPtAac     AvPacketPt = RtpPacketTypeAac
)

// 本项目中固定使用的rtp payload type
const (
	RtpPacketTypeAvc = 96
	RtpPacketTypeAac = 97
)

// AvPacket 向上层回调的音视频帧
//
// Payload:   视频是Annex-B格式的一个完整access unit，音频是带ADTS头的一帧
// Timestamp: rtp包头中的时间戳，单位毫秒(发送方的墙上时钟)
// Ssrc:      rtp包头中的ssrc
//
// 注意，Payload 引用的是内部复用的内存块，回调结束后不再有效
type AvPacket struct {
	PayloadType AvPacketPt
	Timestamp   uint32
	Ssrc        uint32
	Payload     []byte
}

func (a AvPacketPt) ReadableString() string {
	switch a {
	case AvPacketPtUnknown:
		return "unknown"
	case AvPacketPtAvc:
		return "avc"
	case AvPacketPtAac:
		return "aac"
	}
	return ""
}

func (packet *AvPacket) IsAudio() bool {
	return packet.PayloadType == AvPacketPtAac
}

func (packet *AvPacket) IsVideo() bool {
	return packet.PayloadType == AvPacketPtAvc
}
