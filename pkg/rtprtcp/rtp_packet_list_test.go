// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalmeet
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtprtcp_test

import (
	"testing"

	"github.com/q191201771/lalmeet/pkg/rtprtcp"
	"github.com/q191201771/naza/pkg/assert"
)

func rawWithSeq(seq uint32) []byte {
	return rtprtcp.MakeRtpPacket(rtprtcp.RtpHeader{PayloadType: 96, Seq: seq}, []byte{byte(seq), 0x01})
}

// 模拟接收端：每插入一个包，超过深度时弹出seq最小的包
func TestRtpPacketList_Reorder(t *testing.T) {
	const reorderLen = 2
	l := rtprtcp.NewRtpPacketList()

	var out []uint32
	push := func(seq uint32) {
		_, err := l.Insert(rawWithSeq(seq))
		assert.Equal(t, nil, err)
		if l.Size() > reorderLen {
			pkt := l.PopFirst()
			out = append(out, pkt.Seq)
			assert.Equal(t, true, pkt.IsPooled())
			rtprtcp.ReleaseRtpPacket(pkt)
		}
	}

	push(5)
	push(3)
	assert.Equal(t, 0, len(out))
	push(4)
	assert.Equal(t, []uint32{3}, out)
	push(6)
	assert.Equal(t, []uint32{3, 4}, out)

	// 重复的包被丢弃，不会触发弹出
	inserted, err := l.Insert(rawWithSeq(5))
	assert.Equal(t, nil, err)
	assert.Equal(t, false, inserted)
	assert.Equal(t, 2, l.Size())

	assert.Equal(t, uint32(5), l.PeekFirst().Seq)
	l.Clear()
	assert.Equal(t, 0, l.Size())
	assert.Equal(t, true, l.PopFirst() == nil)
	assert.Equal(t, true, l.PeekFirst() == nil)
}

func TestRtpPacketList_Order(t *testing.T) {
	l := rtprtcp.NewRtpPacketList()
	seqs := []uint32{10, 2, 7, 0x10005, 1, 9, 3, 8, 4, 6, 5, 0x10001, 2, 7}
	for _, seq := range seqs {
		_, err := l.Insert(rawWithSeq(seq))
		assert.Equal(t, nil, err)
	}
	assert.Equal(t, 12, l.Size())

	var out []uint32
	for pkt := l.PopFirst(); pkt != nil; pkt = l.PopFirst() {
		// 拷贝后的内存块独立于输入
		assert.Equal(t, []byte{byte(pkt.Seq), 0x01}, pkt.Payload)
		out = append(out, pkt.Seq)
		rtprtcp.ReleaseRtpPacket(pkt)
	}
	assert.Equal(t, []uint32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 0x10001, 0x10005}, out)
}

func TestRtpPacketList_InsertInvalid(t *testing.T) {
	l := rtprtcp.NewRtpPacketList()
	inserted, err := l.Insert([]byte{0x80, 96, 0, 1})
	assert.Equal(t, false, inserted)
	assert.IsNotNil(t, err)
	assert.Equal(t, 0, l.Size())

	// 空链表时，插入的也是解析后的包
	inserted, err = l.Insert(rawWithSeq(1))
	assert.Equal(t, nil, err)
	assert.Equal(t, true, inserted)
	assert.Equal(t, uint32(1), l.PeekFirst().Seq)

	// 非池中的包，调用归还不做任何事情
	pkt, err := rtprtcp.ParseRtpPacket(rawWithSeq(2))
	assert.Equal(t, nil, err)
	assert.Equal(t, false, pkt.IsPooled())
	rtprtcp.ReleaseRtpPacket(&pkt)
	assert.Equal(t, uint32(2), pkt.Seq)
}
