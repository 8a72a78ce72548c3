// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalmeet
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtpsession

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/q191201771/lalmeet/pkg/base"
	"github.com/q191201771/lalmeet/pkg/portmgr"
	"github.com/q191201771/lalmeet/pkg/rtprtcp"
	"github.com/q191201771/lalmeet/pkg/udptrans"
	"github.com/q191201771/naza/pkg/nazabytes"
	"github.com/q191201771/naza/pkg/nazaerrors"
)

const receiverLogDumpMaxNum = 10

type ReceiverOption struct {
	// Reorder 为false时， ReceivePacketReorder 等同于 ReceivePacket
	Reorder bool

	BindIp string

	// PortManager 不为nil时，从中分配本地端口，否则由系统分配
	PortManager *portmgr.PortManager

	DumpFilename string // 不为空时，收到的udp包写入该文件
}

var defaultReceiverOption = ReceiverOption{
	Reorder:      true,
	BindIp:       "",
	PortManager:  nil,
	DumpFilename: "",
}

type ModReceiverOption func(option *ReceiverOption)

// Receiver 接收rtp包的会话
//
// 绑定一个本地端口，唯一的目标地址是对端的打洞地址，用于发送打洞消息。
// 所有 Receive 系列方法只应在一个协程中调用
type Receiver struct {
	uniqueKey string
	option    ReceiverOption

	trans        *udptrans.Transmitter
	port         uint16 // 从 PortManager 中分配的端口
	portAcquired bool

	recvBuf []byte
	pkt     rtprtcp.RtpPacket // 直接解析的包，引用 recvBuf
	list    *rtprtcp.RtpPacketList

	stat    base.BasicSessionStat
	logDump base.LogDump
	dump    *base.DumpFile

	disposeOnce sync.Once
}

// NewReceiver 绑定端口并添加打洞地址，任何一步失败都会释放已经持有的资源
func NewReceiver(pinholeIp string, pinholePort int, modOptions ...ModReceiverOption) (*Receiver, error) {
	option := defaultReceiverOption
	for _, fn := range modOptions {
		fn(&option)
	}

	uk := base.GenUkRecvSession()
	r := &Receiver{
		uniqueKey: uk,
		option:    option,
		recvBuf:   make([]byte, rtprtcp.RtpRecvBufferSize),
		list:      rtprtcp.NewRtpPacketList(),
		stat:      base.NewBasicSessionStat(base.StatSessionTypeRecv, 0, uk),
		logDump:   base.NewLogDump(Log, receiverLogDumpMaxNum),
	}

	bindPort := 0
	if option.PortManager != nil {
		p, err := option.PortManager.GetUdpPort()
		if err != nil {
			Log.Errorf("[%s] no available port for rtp receiver. err=%+v", uk, err)
			return nil, err
		}
		r.port = p
		r.portAcquired = true
		bindPort = int(p)
	}

	var err error
	r.trans, err = udptrans.NewTransmitter(func(o *udptrans.TransmitterOption) {
		o.BindIp = option.BindIp
		o.BindPort = bindPort
	})
	if err != nil {
		Log.Errorf("[%s] init transmitter failed. port=%d, err=%+v", uk, bindPort, err)
		r.releasePort()
		return nil, nazaerrors.Wrap(err)
	}
	r.stat.SetLocalAddr(r.trans.LocalAddr().String())

	if err = r.trans.AddDestination(pinholeIp, pinholePort); err != nil {
		_ = r.trans.Dispose()
		r.releasePort()
		return nil, err
	}

	if option.DumpFilename != "" {
		r.dump = base.NewDumpFile()
		if err = r.dump.OpenToWrite(option.DumpFilename); err != nil {
			_ = r.trans.Dispose()
			r.releasePort()
			return nil, err
		}
	}

	Log.Infof("[%s] lifecycle new rtp receiver. laddr=%s, pinhole=%s:%d, reorder=%v",
		uk, r.trans.LocalAddr().String(), pinholeIp, pinholePort, option.Reorder)
	return r, nil
}

func (r *Receiver) UniqueKey() string {
	return r.uniqueKey
}

func (r *Receiver) LocalPort() int {
	return r.trans.LocalPort()
}

// NatPinhole 向打洞地址发送一条消息，保持NAT映射
func (r *Receiver) NatPinhole(msg []byte) error {
	return r.trans.Send(msg)
}

// ReceivePacket 读取一个udp包并解析
//
// 返回的包引用会话内部的内存块，下次调用 Receive 系列方法后失效
//
// @return pkt: 超时时间内没有数据时为nil，err也为nil
func (r *Receiver) ReceivePacket(timeout time.Duration) (*rtprtcp.RtpPacket, error) {
	n, err := r.receive(timeout)
	if n == 0 || err != nil {
		return nil, err
	}
	if err = r.pkt.Parse(r.recvBuf[:n]); err != nil {
		r.onBadPacket(n, err)
		return nil, err
	}
	r.stat.SetSsrc(r.pkt.Ssrc)
	return &r.pkt, nil
}

// ReceivePacketReorder 读取一个udp包，放入排序链表
//
// 链表中的包个数超过 reorderLen 时，弹出seq最小的包。
// reorderLen 小于等于0，或者没有开启排序时，等同于 ReceivePacket
//
// 返回的包使用完毕后需调用 EndReceivePacket
func (r *Receiver) ReceivePacketReorder(reorderLen int, timeout time.Duration) (*rtprtcp.RtpPacket, error) {
	if reorderLen <= 0 || !r.option.Reorder {
		return r.ReceivePacket(timeout)
	}

	n, err := r.receive(timeout)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		inserted, ierr := r.list.Insert(r.recvBuf[:n])
		if ierr != nil {
			r.onBadPacket(n, ierr)
			err = ierr
		} else if !inserted {
			r.stat.AddDropPacket()
		}
	}

	if r.list.Size() > reorderLen {
		pkt := r.list.PopFirst()
		r.stat.SetSsrc(pkt.Ssrc)
		return pkt, nil
	}
	return nil, err
}

// EndReceivePacket 归还排序链表中弹出的包，对直接解析的包不做任何事情
func (r *Receiver) EndReceivePacket(pkt *rtprtcp.RtpPacket) {
	if pkt != nil && pkt.IsPooled() {
		rtprtcp.ReleaseRtpPacket(pkt)
	}
}

// BufferedCount 排序链表中缓存的包个数
func (r *Receiver) BufferedCount() int {
	return r.list.Size()
}

// IsAlive 与上次调用相比，是否收到了新的数据。首次调用返回true
func (r *Receiver) IsAlive() bool {
	readAlive, _ := r.stat.IsAlive()
	return readAlive
}

func (r *Receiver) GetStat() base.StatSession {
	return r.stat.GetStat()
}

func (r *Receiver) Dispose() error {
	var err error
	r.disposeOnce.Do(func() {
		Log.Infof("[%s] lifecycle dispose rtp receiver.", r.uniqueKey)
		r.list.Clear()
		e1 := r.trans.Dispose()
		var e2 error
		if r.dump != nil {
			e2 = r.dump.Close()
		}
		r.releasePort()
		err = nazaerrors.CombineErrors(e1, e2)
	})
	return err
}

// ---------------------------------------------------------------------------------------------------------------------

func (r *Receiver) receive(timeout time.Duration) (int, error) {
	n, _, err := r.trans.Receive(r.recvBuf, timeout)
	if err != nil {
		Log.Warnf("[%s] receive failed. err=%+v", r.uniqueKey, err)
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	r.stat.AddReadPacket(n)
	if r.dump != nil {
		_ = r.dump.WriteWithType(r.recvBuf[:n], base.DumpTypeRtpRecv)
	}
	return n, nil
}

func (r *Receiver) onBadPacket(n int, err error) {
	r.stat.AddDropPacket()
	if r.logDump.ShouldDump() {
		r.logDump.Outf("[%s] invalid rtp packet. len=%d, err=%+v, hex=%s",
			r.uniqueKey, n, err, hex.Dump(nazabytes.Prefix(r.recvBuf[:n], 32)))
	}
}

func (r *Receiver) releasePort() {
	if r.portAcquired {
		r.option.PortManager.ReleasePort(r.port)
		r.portAcquired = false
	}
}
