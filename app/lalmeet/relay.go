// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalmeet
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package main

import (
	"sync"
	"time"

	"github.com/q191201771/lalmeet/pkg/rtprtcp"
	"github.com/q191201771/lalmeet/pkg/udptrans"
	log "github.com/q191201771/naza/pkg/nazalog"
)

const relayReadTimeout = 100 * time.Millisecond

// streamRelay 服务端的一路流转发
//
// 推流方的rtp包发到这个端口，拉流方从接收会话向这个端口打洞，
// 打洞包的源地址加入转发目标
type streamRelay struct {
	ssrc  uint32
	trans *udptrans.Transmitter

	mu    sync.Mutex
	peers map[string]struct{}

	wg sync.WaitGroup
}

func newStreamRelay(ssrc uint32) (*streamRelay, error) {
	trans, err := udptrans.NewTransmitter(func(option *udptrans.TransmitterOption) {
		option.BindIp = "127.0.0.1"
	})
	if err != nil {
		return nil, err
	}
	r := &streamRelay{
		ssrc:  ssrc,
		trans: trans,
		peers: make(map[string]struct{}),
	}
	r.wg.Add(1)
	go r.runLoop()
	return r, nil
}

func (r *streamRelay) Port() int {
	return r.trans.LocalPort()
}

func (r *streamRelay) PeerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

func (r *streamRelay) Dispose() {
	_ = r.trans.Dispose()
	r.wg.Wait()
}

func (r *streamRelay) runLoop() {
	defer r.wg.Done()

	var pkt rtprtcp.RtpPacket
	buf := make([]byte, rtprtcp.RtpRecvBufferSize)
	for {
		n, raddr, err := r.trans.Receive(buf, relayReadTimeout)
		if err != nil {
			log.Debugf("relay loop exit. ssrc=%d, err=%+v", r.ssrc, err)
			return
		}
		if n == 0 || raddr == nil {
			continue
		}

		if pkt.Parse(buf[:n]) == nil {
			_ = r.trans.Send(buf[:n])
			continue
		}

		key := raddr.String()
		r.mu.Lock()
		_, exist := r.peers[key]
		if !exist {
			r.peers[key] = struct{}{}
		}
		r.mu.Unlock()
		if !exist {
			log.Infof("relay add peer. ssrc=%d, peer=%s, pinhole=%s", r.ssrc, key, string(buf[:n]))
			_ = r.trans.AddDestination(raddr.IP.String(), raddr.Port)
		}
	}
}
