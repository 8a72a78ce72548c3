// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalmeet
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtpsession_test

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/q191201771/lalmeet/pkg/avc"
	"github.com/q191201771/lalmeet/pkg/base"
	"github.com/q191201771/lalmeet/pkg/portmgr"
	"github.com/q191201771/lalmeet/pkg/rtprtcp"
	"github.com/q191201771/lalmeet/pkg/rtpsession"
	"github.com/q191201771/lalmeet/pkg/udptrans"
	"github.com/q191201771/naza/pkg/assert"
)

func makeNal(header byte, size int) []byte {
	nal := make([]byte, size)
	nal[0] = header
	for i := 1; i < size; i++ {
		nal[i] = byte(i*7 + 3)
	}
	return nal
}

func localSender(option *rtpsession.SenderOption) {
	option.BindIp = "127.0.0.1"
}

func newReceiver(t *testing.T, pinholePort int, reorder bool) *rtpsession.Receiver {
	r, err := rtpsession.NewReceiver("127.0.0.1", pinholePort, func(option *rtpsession.ReceiverOption) {
		option.BindIp = "127.0.0.1"
		option.Reorder = reorder
	})
	assert.Equal(t, nil, err)
	return r
}

// pollPacket 模拟轮询协程，短超时反复读取
func pollPacket(r *rtpsession.Receiver, reorderLen int, total time.Duration) *rtprtcp.RtpPacket {
	end := time.Now().Add(total)
	for time.Now().Before(end) {
		pkt, _ := r.ReceivePacketReorder(reorderLen, 5*time.Microsecond)
		if pkt != nil {
			return pkt
		}
		time.Sleep(time.Millisecond)
	}
	return nil
}

func TestVideoSender_Receiver(t *testing.T) {
	r := newReceiver(t, 9, false)
	defer r.Dispose()

	s, err := rtpsession.NewVideoSender(localSender, func(option *rtpsession.SenderOption) {
		option.Ssrc = 0xABCD
		option.FirstSeq = 100
	})
	assert.Equal(t, nil, err)
	defer s.Dispose()
	assert.Equal(t, uint32(0xABCD), s.Ssrc())
	assert.Equal(t, nil, s.AddDestination("127.0.0.1", r.LocalPort()))

	sps := makeNal(0x67, 20)
	pps := makeNal(0x68, 30)
	idr := makeNal(0x65, 3000)
	var au []byte
	for _, nal := range [][]byte{sps, pps, idr} {
		au = append(au, avc.NaluStartCode4...)
		au = append(au, nal...)
	}
	assert.Equal(t, nil, s.SendAvc(au))

	// stap-a(sps+pps) + 3个fu-a
	assembler := rtprtcp.NewAvcFrameAssembler()
	var frames [][]byte
	var marks []bool
	for i := 0; i < 4; i++ {
		pkt := pollPacket(r, 0, 2*time.Second)
		if pkt == nil {
			t.Fatalf("receive timeout. i=%d", i)
		}
		assert.Equal(t, uint32(0xABCD), pkt.Ssrc)
		assert.Equal(t, uint32(100+i), pkt.Seq)
		assert.Equal(t, uint16(4), pkt.Reserved)
		assert.Equal(t, uint8(base.RtpPacketTypeAvc), pkt.PayloadType)
		marks = append(marks, pkt.Mark)

		ready, err := assembler.PushPacket(pkt)
		assert.Equal(t, nil, err)
		if ready {
			frames = append(frames, append([]byte(nil), assembler.Frame()...))
		}
		r.EndReceivePacket(pkt)
	}
	assert.Equal(t, []bool{false, false, false, true}, marks)
	assert.Equal(t, 2, len(frames))

	nals := avc.SplitNaluAnnexb(frames[0])
	assert.Equal(t, 2, len(nals))
	assert.Equal(t, sps, nals[0])
	assert.Equal(t, pps, nals[1])
	assert.Equal(t, true, bytes.HasSuffix(frames[1], idr))

	sendStat := s.GetStat()
	assert.Equal(t, uint64(4), sendStat.WrotePackets)
	recvStat := r.GetStat()
	assert.Equal(t, uint64(4), recvStat.ReadPackets)
	assert.Equal(t, uint32(0xABCD), recvStat.Ssrc)
}

func TestAudioSender_Receiver(t *testing.T) {
	r := newReceiver(t, 9, true)
	defer r.Dispose()

	s, err := rtpsession.NewAudioSender(localSender, func(option *rtpsession.SenderOption) {
		option.Ssrc = 77
	})
	assert.Equal(t, nil, err)
	defer s.Dispose()
	assert.Equal(t, nil, s.AddDestination("127.0.0.1", r.LocalPort()))

	frame := []byte{0xFF, 0xF1, 0x50, 0x80, 0x01, 0x7F, 0xFC, 0x21, 0x00}
	assert.Equal(t, nil, s.SendAac(frame))

	// 没有开启排序的情况下，直接返回
	pkt := pollPacket(r, 0, 2*time.Second)
	if pkt == nil {
		t.Fatal("receive timeout")
	}
	assert.Equal(t, frame, pkt.Payload)
	assert.Equal(t, uint16(0), pkt.Reserved)
	assert.Equal(t, false, pkt.Mark)
	assert.Equal(t, uint8(base.RtpPacketTypeAac), pkt.PayloadType)
	r.EndReceivePacket(pkt)

	assert.Equal(t, nil, s.DeleteDestination("127.0.0.1", r.LocalPort()))
	assert.Equal(t, nil, s.SendAac(frame))
	pkt, err = r.ReceivePacket(50 * time.Millisecond)
	assert.Equal(t, nil, err)
	assert.Equal(t, true, pkt == nil)
}

func TestReceiver_Reorder(t *testing.T) {
	r := newReceiver(t, 9, true)
	defer r.Dispose()

	raw, err := udptrans.NewTransmitter(func(option *udptrans.TransmitterOption) {
		option.BindIp = "127.0.0.1"
	})
	assert.Equal(t, nil, err)
	defer raw.Dispose()
	assert.Equal(t, nil, raw.AddDestination("127.0.0.1", r.LocalPort()))

	// 重复的3在第一份仍缓存在链表中时到达
	for _, seq := range []uint32{5, 3, 3, 4, 6} {
		b := rtprtcp.MakeRtpPacket(rtprtcp.RtpHeader{PayloadType: 96, Seq: seq, Ssrc: 1}, []byte{0x41, byte(seq)})
		assert.Equal(t, nil, raw.Send(b))
	}

	var got []uint32
	end := time.Now().Add(2 * time.Second)
	for len(got) < 2 && time.Now().Before(end) {
		pkt, _ := r.ReceivePacketReorder(2, 5*time.Microsecond)
		if pkt != nil {
			assert.Equal(t, true, pkt.IsPooled())
			got = append(got, pkt.Seq)
			r.EndReceivePacket(pkt)
		}
	}
	assert.Equal(t, []uint32{3, 4}, got)
	assert.Equal(t, 2, r.BufferedCount())
	assert.Equal(t, uint64(1), r.GetStat().DropPackets)
	assert.Equal(t, uint64(5), r.GetStat().ReadPackets)
}

func TestReceiver_BadPacket(t *testing.T) {
	r := newReceiver(t, 9, false)
	defer r.Dispose()

	raw, err := udptrans.NewTransmitter(func(option *udptrans.TransmitterOption) {
		option.BindIp = "127.0.0.1"
	})
	assert.Equal(t, nil, err)
	defer raw.Dispose()
	assert.Equal(t, nil, raw.AddDestination("127.0.0.1", r.LocalPort()))
	assert.Equal(t, nil, raw.Send([]byte("not a rtp packet")))

	end := time.Now().Add(2 * time.Second)
	var rerr error
	for rerr == nil && time.Now().Before(end) {
		_, rerr = r.ReceivePacket(time.Millisecond)
	}
	assert.IsNotNil(t, rerr)
	assert.Equal(t, uint64(1), r.GetStat().DropPackets)
}

func TestReceiver_NatPinhole(t *testing.T) {
	server, err := udptrans.NewTransmitter(func(option *udptrans.TransmitterOption) {
		option.BindIp = "127.0.0.1"
	})
	assert.Equal(t, nil, err)
	defer server.Dispose()

	r := newReceiver(t, server.LocalPort(), true)
	defer r.Dispose()
	assert.Equal(t, true, r.IsAlive())
	assert.Equal(t, false, r.IsAlive())
	assert.Equal(t, nil, r.NatPinhole([]byte(`{"uuid":"abc"}`)))

	buf := make([]byte, 2048)
	end := time.Now().Add(2 * time.Second)
	for time.Now().Before(end) {
		n, raddr, err := server.Receive(buf, time.Millisecond)
		assert.Equal(t, nil, err)
		if n > 0 {
			assert.Equal(t, `{"uuid":"abc"}`, string(buf[:n]))
			assert.Equal(t, r.LocalPort(), raddr.Port)
			return
		}
	}
	t.Fatal("pinhole message not received")
}

func TestReceiver_PortManager(t *testing.T) {
	pm := portmgr.NewPortManager(portmgr.WithProbe(func(port uint16) bool { return true }))
	assert.Equal(t, nil, pm.Init(0, 1))

	// 端口0交给系统分配
	r, err := rtpsession.NewReceiver("127.0.0.1", 9, func(option *rtpsession.ReceiverOption) {
		option.BindIp = "127.0.0.1"
		option.PortManager = pm
	})
	assert.Equal(t, nil, err)
	_, inUse := pm.Snapshot()
	assert.Equal(t, []uint16{0}, inUse)

	assert.Equal(t, nil, r.Dispose())
	available, inUse := pm.Snapshot()
	assert.Equal(t, []uint16{0}, available)
	assert.Equal(t, 0, len(inUse))
}

func TestSender_Dump(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "send.lalmeetdump")
	r := newReceiver(t, 9, false)
	defer r.Dispose()

	s, err := rtpsession.NewAudioSender(localSender, func(option *rtpsession.SenderOption) {
		option.DumpFilename = filename
	})
	assert.Equal(t, nil, err)
	assert.Equal(t, nil, s.AddDestination("127.0.0.1", r.LocalPort()))
	assert.Equal(t, nil, s.SendAac([]byte{1, 2, 3}))
	assert.Equal(t, nil, s.Dispose())

	df := base.NewDumpFile()
	assert.Equal(t, nil, df.OpenToRead(filename))
	defer df.Close()
	m, err := df.ReadOneMessage()
	assert.Equal(t, nil, err)
	assert.Equal(t, base.DumpTypeRtpSend, m.Typ)
	assert.Equal(t, rtprtcp.RtpHeaderLength+3, int(m.Len))
}
