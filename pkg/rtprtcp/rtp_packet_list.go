// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalmeet
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtprtcp

import "sync"

type rtpPacketListItem struct {
	packet RtpPacket
	buf    []byte

	prev *rtpPacketListItem
	next *rtpPacketListItem
}

var rtpPacketListItemPool = sync.Pool{
	New: func() interface{} {
		return &rtpPacketListItem{
			buf: make([]byte, RtpRecvBufferSize),
		}
	},
}

// RtpPacketList rtp packet的有序双向链表，前面的seq小于后面的seq，用于接收端排序
//
// 插入的包拷贝到池中的内存块里，弹出的包使用完毕后需调用 ReleaseRtpPacket 归还。
// 插入时从尾部往前查找，乱序程度不高时，一般比较一两次就能找到位置
//
// 非并发安全
type RtpPacketList struct {
	head rtpPacketListItem // 哨兵，自身不存放rtp包，head.next为第一个，head.prev为最后一个
	size int
}

func NewRtpPacketList() *RtpPacketList {
	l := &RtpPacketList{}
	l.head.prev = &l.head
	l.head.next = &l.head
	return l
}

// Insert 拷贝并解析 raw ，按32位逻辑序号插入有序链表
//
// @return inserted: 解析失败返回error；seq已存在时丢弃，返回false
func (l *RtpPacketList) Insert(raw []byte) (inserted bool, err error) {
	item := acquireRtpPacketListItem(len(raw))
	copy(item.buf, raw)
	if err = item.packet.Parse(item.buf); err != nil {
		putRtpPacketListItem(item)
		return false, err
	}
	item.packet.item = item

	seq := item.packet.Seq
	p := l.head.prev
	for p != &l.head && ComparePacketSeq(p.packet.Seq, seq) > 0 {
		p = p.prev
	}
	if p != &l.head && p.packet.Seq == seq {
		putRtpPacketListItem(item)
		return false, nil
	}

	item.prev = p
	item.next = p.next
	p.next.prev = item
	p.next = item
	l.size++
	return true, nil
}

// PopFirst 弹出seq最小的包，容器为空时返回nil
func (l *RtpPacketList) PopFirst() *RtpPacket {
	first := l.head.next
	if first == &l.head {
		return nil
	}
	l.head.next = first.next
	first.next.prev = &l.head
	first.prev = nil
	first.next = nil
	l.size--
	return &first.packet
}

// PeekFirst 查看seq最小的包，容器为空时返回nil
func (l *RtpPacketList) PeekFirst() *RtpPacket {
	if l.head.next == &l.head {
		return nil
	}
	return &l.head.next.packet
}

func (l *RtpPacketList) Size() int {
	return l.size
}

// Clear 清空并归还所有包的内存块
func (l *RtpPacketList) Clear() {
	for pkt := l.PopFirst(); pkt != nil; pkt = l.PopFirst() {
		ReleaseRtpPacket(pkt)
	}
}

// ReleaseRtpPacket 归还 RtpPacketList 中弹出的包的内存块，之后 pkt 不可再使用
//
// 对不是从 RtpPacketList 中弹出的包调用时，不做任何事情
func ReleaseRtpPacket(pkt *RtpPacket) {
	if pkt == nil || pkt.item == nil {
		return
	}
	putRtpPacketListItem(pkt.item)
}

// IsPooled 是否引用了池中的内存块
func (pkt *RtpPacket) IsPooled() bool {
	return pkt.item != nil
}

// ---------------------------------------------------------------------------------------------------------------------

func acquireRtpPacketListItem(size int) *rtpPacketListItem {
	item := rtpPacketListItemPool.Get().(*rtpPacketListItem)
	if cap(item.buf) < size {
		item.buf = make([]byte, size)
	}
	item.buf = item.buf[:size]
	return item
}

func putRtpPacketListItem(item *rtpPacketListItem) {
	item.packet = RtpPacket{}
	item.prev = nil
	item.next = nil
	rtpPacketListItemPool.Put(item)
}
