// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalmeet
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtprtcp

import "github.com/q191201771/lalmeet/pkg/base"

var Log = base.Log

// h264的格式：
//
// rfc3984 5.2.  Common Structure of the RTP Payload Format
// Table 1.  Summary of NAL unit types and their payload structures
//
// Type   Packet    Type name                        Section
// ---------------------------------------------------------
// 0      undefined                                    -
// 1-23   NAL unit  Single NAL unit packet per H.264   5.6
// 24     STAP-A    Single-time aggregation packet     5.7.1
// 25     STAP-B    Single-time aggregation packet     5.7.1
// 26     MTAP16    Multi-time aggregation packet      5.7.2
// 27     MTAP24    Multi-time aggregation packet      5.7.2
// 28     FU-A      Fragmentation unit                 5.8
// 29     FU-B      Fragmentation unit                 5.8
// 30-31  undefined                                    -

const (
	NaluTypeAvcSingleMax = 23
	NaluTypeAvcStapa     = 24 // one packet, multiple nals
	NaluTypeAvcFua       = 28
)

const (
	Mtu = 1400

	// RtpPayloadSize 单个rtp包的最大payload，MTU减去固定头和扩展头
	RtpPayloadSize = Mtu - RtpFixedHeaderLength - RtpExtensionHeaderLength

	// RtpPacketsBufferSize 视频打包器的内存块大小，一个access unit打包后的所有rtp包都存放在这里
	RtpPacketsBufferSize = 256 * 1024

	// AacPacketBufferSize 音频打包器的内存块大小
	AacPacketBufferSize = 128 * 1024

	// AssemblerBufferSize 合帧的内存块大小
	AssemblerBufferSize = 256 * 1024

	// RtpRecvBufferSize 接收单个udp包的内存块大小
	RtpRecvBufferSize = 2048
)

const (
	fuaHeaderSize   = 2
	stapaHeaderSize = 1
	stapaSizeLength = 2
)

// ComparePacketSeq 比较两个包的32位逻辑序号，不处理翻转
//
// @return
//   - 0 a和b相等
//   - 1 a大于b
//   - -1 a小于b
func ComparePacketSeq(a, b uint32) int {
	switch {
	case a == b:
		return 0
	case a > b:
		return 1
	}
	return -1
}
