// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalmeet
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package udptrans

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/q191201771/lalmeet/pkg/base"
	"github.com/q191201771/naza/pkg/nazaatomic"
	"github.com/q191201771/naza/pkg/nazanet"
)

// 数据已经就绪时，读操作的超时保护
const pendingReadGuard = 100 * time.Millisecond

const maxReadPacketSize = 2048

type TransmitterOption struct {
	BindIp   string // 为空时绑定所有网卡
	BindPort int    // 为0时由系统分配
}

var defaultTransmitterOption = TransmitterOption{
	BindIp:   "",
	BindPort: 0,
}

type ModTransmitterOption func(option *TransmitterOption)

// Transmitter 绑定一个本地udp端口，持有一组目标地址
//
// Send 把数据发送给所有目标地址；Receive 在给定的超时时间内尝试读取一个udp包，不会无限阻塞。
// 目标地址列表由内部的锁保护，可在不同协程中修改；Receive 只应在一个协程中调用
type Transmitter struct {
	uniqueKey string
	option    TransmitterOption

	conn  *net.UDPConn
	nconn *nazanet.UdpConnection

	mu           sync.Mutex
	destinations []*net.UDPAddr

	disposeOnce sync.Once
	disposed    nazaatomic.Bool
}

// NewTransmitter 创建并绑定端口，失败时不持有任何资源
func NewTransmitter(modOptions ...ModTransmitterOption) (*Transmitter, error) {
	option := defaultTransmitterOption
	for _, fn := range modOptions {
		fn(&option)
	}

	uk := base.GenUkTransmitter()
	laddr := net.JoinHostPort(option.BindIp, strconv.Itoa(option.BindPort))
	udpAddr, err := net.ResolveUDPAddr("udp4", laddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		Log.Errorf("[%s] bind failed. laddr=%s, err=%+v", uk, laddr, err)
		return nil, err
	}
	nconn, err := nazanet.NewUdpConnection(func(opt *nazanet.UdpConnectionOption) {
		opt.Conn = conn
		opt.MaxReadPacketSize = maxReadPacketSize
	})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	t := &Transmitter{
		uniqueKey: uk,
		option:    option,
		conn:      conn,
		nconn:     nconn,
	}
	Log.Infof("[%s] lifecycle new udp transmitter. laddr=%s", uk, conn.LocalAddr().String())
	return t, nil
}

func (t *Transmitter) UniqueKey() string {
	return t.uniqueKey
}

func (t *Transmitter) LocalAddr() *net.UDPAddr {
	return t.conn.LocalAddr().(*net.UDPAddr)
}

func (t *Transmitter) LocalPort() int {
	return t.LocalAddr().Port
}

// AddDestination 不去重，同一地址添加多次则会发送多次
func (t *Transmitter) AddDestination(ip string, port int) error {
	addr, err := resolveDestination(ip, port)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.destinations = append(t.destinations, addr)
	t.mu.Unlock()
	Log.Debugf("[%s] add destination. addr=%s", t.uniqueKey, addr.String())
	return nil
}

// DeleteDestination 删除所有匹配的目标地址
//
// @return 删除的个数
func (t *Transmitter) DeleteDestination(ip string, port int) (int, error) {
	addr, err := resolveDestination(ip, port)
	if err != nil {
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	kept := t.destinations[:0]
	for _, d := range t.destinations {
		if d.IP.Equal(addr.IP) && d.Port == addr.Port {
			n++
			continue
		}
		kept = append(kept, d)
	}
	for i := len(kept); i < len(t.destinations); i++ {
		t.destinations[i] = nil
	}
	t.destinations = kept
	return n, nil
}

func (t *Transmitter) ClearDestination() {
	t.mu.Lock()
	t.destinations = nil
	t.mu.Unlock()
}

func (t *Transmitter) DestinationCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.destinations)
}

// Send 发送给所有目标地址，任意一个失败则整体失败，不重试
func (t *Transmitter) Send(b []byte) error {
	if t.disposed.Load() {
		return base.ErrTransmitterNotInit
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, addr := range t.destinations {
		if err := t.nconn.Write2Addr(b, addr); err != nil {
			return fmt.Errorf("send to %s failed: %w", addr.String(), err)
		}
	}
	return nil
}

// Receive 尝试读取一个udp包
//
// 先查询socket中是否已有数据，没有的话最多等待 timeout 。
// 不支持查询的平台上， timeout 最小为1毫秒
//
// @return n: 为0时表示超时时间内没有数据
func (t *Transmitter) Receive(b []byte, timeout time.Duration) (n int, raddr *net.UDPAddr, err error) {
	if t.disposed.Load() {
		return 0, nil, base.ErrTransmitterNotInit
	}

	var deadline time.Time
	if pending, perr := pendingBytes(t.conn); perr == nil && pending > 0 {
		deadline = time.Now().Add(pendingReadGuard)
	} else {
		if timeout < minReceiveTimeout {
			timeout = minReceiveTimeout
		}
		deadline = time.Now().Add(timeout)
	}
	if err = t.conn.SetReadDeadline(deadline); err != nil {
		return 0, nil, err
	}

	n, raddr, err = t.conn.ReadFromUDP(b)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return 0, nil, nil
		}
		return 0, nil, err
	}
	return n, raddr, nil
}

func (t *Transmitter) Dispose() error {
	var err error
	t.disposeOnce.Do(func() {
		Log.Infof("[%s] lifecycle dispose udp transmitter.", t.uniqueKey)
		t.disposed.Store(true)
		err = t.nconn.Dispose()
	})
	return err
}

func resolveDestination(ip string, port int) (*net.UDPAddr, error) {
	addr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(ip, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("%w. invalid destination. ip=%s, port=%d, err=%+v", base.ErrInvalidParams, ip, port, err)
	}
	return addr, nil
}
