// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalmeet
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import (
	"github.com/q191201771/naza/pkg/bitrate"
	"github.com/q191201771/naza/pkg/connection"
	"github.com/q191201771/naza/pkg/nazaatomic"
)

const statBitrateWindowMs = 5000

// BasicSessionStat rtp会话的收发统计
//
// 字节数和包数使用原子变量，可在收发协程中直接累加；码率使用滑动窗口计算
type BasicSessionStat struct {
	stat StatSession

	staleStat *connection.Stat

	currConnStat connection.StatAtomic
	readPackets  nazaatomic.Uint64
	wrotePackets nazaatomic.Uint64
	dropPackets  nazaatomic.Uint64

	readBitrate  bitrate.Bitrate
	writeBitrate bitrate.Bitrate
}

func NewBasicSessionStat(typ string, ssrc uint32, sessionId string) BasicSessionStat {
	var s BasicSessionStat
	s.stat.SessionId = sessionId
	s.stat.Protocol = ProtocolRtp
	s.stat.Type = typ
	s.stat.Ssrc = ssrc
	s.stat.StartTime = ReadableNowTime()
	s.readBitrate = bitrate.New(func(option *bitrate.Option) {
		option.WindowMs = statBitrateWindowMs
	})
	s.writeBitrate = bitrate.New(func(option *bitrate.Option) {
		option.WindowMs = statBitrateWindowMs
	})
	return s
}

func (s *BasicSessionStat) SetLocalAddr(addr string) {
	s.stat.LocalAddr = addr
}

func (s *BasicSessionStat) SetSsrc(ssrc uint32) {
	s.stat.Ssrc = ssrc
}

// ---------------------------------------------------------------------------------------------------------------------

func (s *BasicSessionStat) AddReadPacket(nBytes int) {
	s.currConnStat.ReadBytesSum.Add(uint64(nBytes))
	s.readPackets.Increment()
	s.readBitrate.Add(nBytes)
}

func (s *BasicSessionStat) AddWritePacket(nBytes int) {
	s.currConnStat.WroteBytesSum.Add(uint64(nBytes))
	s.wrotePackets.Increment()
	s.writeBitrate.Add(nBytes)
}

// AddDropPacket 解析失败、重复或过期的包
func (s *BasicSessionStat) AddDropPacket() {
	s.dropPackets.Increment()
}

func (s *BasicSessionStat) GetStat() StatSession {
	s.stat.ReadBytesSum = s.currConnStat.ReadBytesSum.Load()
	s.stat.WroteBytesSum = s.currConnStat.WroteBytesSum.Load()
	s.stat.ReadPackets = s.readPackets.Load()
	s.stat.WrotePackets = s.wrotePackets.Load()
	s.stat.DropPackets = s.dropPackets.Load()
	s.stat.ReadBitrate = int(s.readBitrate.Rate())
	s.stat.WriteBitrate = int(s.writeBitrate.Rate())
	return s.stat
}

// IsAlive 与上次调用相比，是否有新的收发数据
func (s *BasicSessionStat) IsAlive() (readAlive, writeAlive bool) {
	readBytesSum := s.currConnStat.ReadBytesSum.Load()
	wroteBytesSum := s.currConnStat.WroteBytesSum.Load()
	if s.staleStat == nil {
		s.staleStat = new(connection.Stat)
		s.staleStat.ReadBytesSum = readBytesSum
		s.staleStat.WroteBytesSum = wroteBytesSum
		return true, true
	}

	readAlive = readBytesSum != s.staleStat.ReadBytesSum
	writeAlive = wroteBytesSum != s.staleStat.WroteBytesSum
	s.staleStat.ReadBytesSum = readBytesSum
	s.staleStat.WroteBytesSum = wroteBytesSum
	return
}

func (s *BasicSessionStat) UniqueKey() string {
	return s.stat.SessionId
}
