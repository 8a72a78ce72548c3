// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalmeet
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

const (
	ProtocolRtp = "RTP"

	StatSessionTypeVideoSend = "VIDEO_SEND"
	StatSessionTypeAudioSend = "AUDIO_SEND"
	StatSessionTypeRecv      = "RECV"
)

// StatSession rtp会话的统计信息
type StatSession struct {
	SessionId     string `json:"session_id"`
	Protocol      string `json:"protocol"`
	Type          string `json:"type"`
	Ssrc          uint32 `json:"ssrc"`
	StartTime     string `json:"start_time"`
	LocalAddr     string `json:"local_addr"`
	ReadBytesSum  uint64 `json:"read_bytes_sum"`
	WroteBytesSum uint64 `json:"wrote_bytes_sum"`
	ReadPackets   uint64 `json:"read_packets"`
	WrotePackets  uint64 `json:"wrote_packets"`
	DropPackets   uint64 `json:"drop_packets"`
	ReadBitrate   int    `json:"read_bitrate"`  // kbit/s
	WriteBitrate  int    `json:"write_bitrate"` // kbit/s
}

// StatRoom 会议房间的统计信息
type StatRoom struct {
	RoomId    string        `json:"room_id"`
	ConfId    string        `json:"conf_id"`
	MyUuid    string        `json:"my_uuid"`
	UserCount int           `json:"user_count"`
	Receiving bool          `json:"receiving"`
	VideoSend StatSession   `json:"video_send"`
	AudioSend StatSession   `json:"audio_send"`
	RecvStats []StatSession `json:"recv"`
}
