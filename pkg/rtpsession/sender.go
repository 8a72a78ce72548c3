// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalmeet
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtpsession

import (
	"sync"

	"github.com/q191201771/lalmeet/pkg/base"
	"github.com/q191201771/lalmeet/pkg/rtprtcp"
	"github.com/q191201771/lalmeet/pkg/udptrans"
	"github.com/q191201771/naza/pkg/nazaerrors"
)

type SenderOption struct {
	Ssrc     uint32
	FirstSeq uint32

	BindIp   string
	BindPort int // 为0时由系统分配

	DumpFilename string // 不为空时，发送的rtp包写入该文件
}

var defaultSenderOption = SenderOption{
	Ssrc:         0,
	FirstSeq:     0,
	BindIp:       "",
	BindPort:     0,
	DumpFilename: "",
}

type ModSenderOption func(option *SenderOption)

// baseSender 视频和音频发送会话的公共部分
//
// 打包器不做并发保护，同一个发送会话的 send 不能在多个协程中同时调用
type baseSender struct {
	uniqueKey string
	option    SenderOption

	packer rtprtcp.IRtpPacker
	trans  *udptrans.Transmitter
	stat   base.BasicSessionStat
	dump   *base.DumpFile

	disposeOnce sync.Once
}

func newBaseSender(uk string, statType string, option SenderOption, packer rtprtcp.IRtpPacker) (*baseSender, error) {
	trans, err := udptrans.NewTransmitter(func(o *udptrans.TransmitterOption) {
		o.BindIp = option.BindIp
		o.BindPort = option.BindPort
	})
	if err != nil {
		Log.Errorf("[%s] init transmitter failed. err=%+v", uk, err)
		return nil, nazaerrors.Wrap(err)
	}

	s := &baseSender{
		uniqueKey: uk,
		option:    option,
		packer:    packer,
		trans:     trans,
		stat:      base.NewBasicSessionStat(statType, option.Ssrc, uk),
	}
	s.stat.SetLocalAddr(trans.LocalAddr().String())

	if option.DumpFilename != "" {
		s.dump = base.NewDumpFile()
		if err = s.dump.OpenToWrite(option.DumpFilename); err != nil {
			Log.Errorf("[%s] open dump file failed. filename=%s, err=%+v", uk, option.DumpFilename, err)
			_ = trans.Dispose()
			return nil, err
		}
	}

	Log.Infof("[%s] lifecycle new rtp sender. ssrc=%d, laddr=%s", uk, option.Ssrc, trans.LocalAddr().String())
	return s, nil
}

func (s *baseSender) UniqueKey() string {
	return s.uniqueKey
}

func (s *baseSender) Ssrc() uint32 {
	return s.packer.Ssrc()
}

func (s *baseSender) LocalPort() int {
	return s.trans.LocalPort()
}

func (s *baseSender) AddDestination(ip string, port int) error {
	Log.Infof("[%s] add destination. ip=%s, port=%d", s.uniqueKey, ip, port)
	return s.trans.AddDestination(ip, port)
}

// DeleteDestination 删除所有匹配的目标地址
func (s *baseSender) DeleteDestination(ip string, port int) error {
	n, err := s.trans.DeleteDestination(ip, port)
	Log.Infof("[%s] delete destination. ip=%s, port=%d, deleted=%d", s.uniqueKey, ip, port, n)
	return err
}

func (s *baseSender) ClearDestination() {
	s.trans.ClearDestination()
}

func (s *baseSender) GetStat() base.StatSession {
	return s.stat.GetStat()
}

func (s *baseSender) Dispose() error {
	var err error
	s.disposeOnce.Do(func() {
		Log.Infof("[%s] lifecycle dispose rtp sender.", s.uniqueKey)
		e1 := s.trans.Dispose()
		var e2 error
		if s.dump != nil {
			e2 = s.dump.Close()
		}
		err = nazaerrors.CombineErrors(e1, e2)
	})
	return err
}

// send 打包后发送给所有目标地址，任何一个rtp包发送失败则立即返回
func (s *baseSender) send(b []byte, timestamp uint32) error {
	pkts, err := s.packer.Pack(b, timestamp)
	if err != nil {
		Log.Errorf("[%s] pack failed. len=%d, err=%+v", s.uniqueKey, len(b), err)
		return err
	}
	for _, pkt := range pkts {
		if err = s.trans.Send(pkt); err != nil {
			Log.Errorf("[%s] send failed. err=%+v", s.uniqueKey, err)
			return err
		}
		s.stat.AddWritePacket(len(pkt))
		if s.dump != nil {
			_ = s.dump.WriteWithType(pkt, base.DumpTypeRtpSend)
		}
	}
	return nil
}
