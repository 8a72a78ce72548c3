// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalmeet
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package main

import (
	"fmt"
	"time"

	"github.com/q191201771/lalmeet/pkg/aac"
	"github.com/q191201771/lalmeet/pkg/avc"
	"github.com/q191201771/lalmeet/pkg/base"
	"github.com/q191201771/lalmeet/pkg/portmgr"
	"github.com/q191201771/lalmeet/pkg/room"
	"github.com/q191201771/naza/pkg/nazaatomic"
	log "github.com/q191201771/naza/pkg/nazalog"
)

const (
	gopSize           = 25
	idrSliceSize      = 9000
	pSliceSize        = 1500
	aacRawFrameSize   = 256
	peerEventChanSize = 32
)

// 44100Hz，双声道，AAC LC
var demoAsc = []byte{0x12, 0x10}

// peer 会议中的一个参与者，产生合成的音视频数据并统计收到的数据
type peer struct {
	name   string
	client *signalClient
	room   *room.Room
	events chan room.Event

	recvVideo nazaatomic.Uint64
	recvAudio nazaatomic.Uint64
	recvBytes nazaatomic.Uint64
}

func newPeer(name string, server *signalServer, pm *portmgr.PortManager, config room.Config) *peer {
	p := &peer{
		name:   name,
		client: newSignalClient(server),
		events: make(chan room.Event, peerEventChanSize),
	}
	p.room = room.NewRoom(pm, p.client, p, func(option *room.RoomOption) {
		option.Config = config
	})
	p.client.Start(p.room)
	return p
}

func (p *peer) OnRoomEvent(event room.Event) {
	log.Infof("[%s] room event. type=%s, conf=%s, uuid=%s", p.name, event.Type.ReadableString(), event.ConferenceId, event.UserUuid)
	select {
	case p.events <- event:
	default:
		log.Warnf("[%s] event chan full, drop. type=%s", p.name, event.Type.ReadableString())
	}
}

func (p *peer) OnAvPacket(userUuid string, pkt base.AvPacket) {
	if pkt.IsVideo() {
		p.recvVideo.Increment()
	} else {
		p.recvAudio.Increment()
	}
	p.recvBytes.Add(uint64(len(pkt.Payload)))
}

// waitEvent 等待指定类型的事件，其他事件丢弃
func (p *peer) waitEvent(typ room.EventType, timeout time.Duration) (room.Event, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	for {
		select {
		case e := <-p.events:
			if e.Type == typ {
				return e, nil
			}
		case <-t.C:
			return room.Event{}, fmt.Errorf("wait event timeout. peer=%s, type=%s", p.name, typ.ReadableString())
		}
	}
}

// pullAll 拉取会议中其他所有人的音视频
func (p *peer) pullAll(timeout time.Duration) error {
	if err := p.room.SignalOnlineUsers(); err != nil {
		return err
	}
	e, err := p.waitEvent(room.EventOnlineUsers, timeout)
	if err != nil {
		return err
	}
	streams := make(map[string][]uint32)
	for _, u := range e.Users {
		streams[u.UserUuid] = []uint32{u.VideoSsrc, u.AudioSsrc}
	}
	return p.room.SignalStartPullStream(streams)
}

// runProducer 按帧率发送合成的H264和AAC数据，直到stop关闭
func (p *peer) runProducer(fps int, stop <-chan struct{}) {
	ascCtx, err := aac.NewAscContext(demoAsc)
	if err != nil {
		log.Errorf("[%s] invalid asc. err=%+v", p.name, err)
		return
	}
	sampleRate, _ := ascCtx.GetSamplingFrequency()

	videoTicker := time.NewTicker(time.Second / time.Duration(fps))
	defer videoTicker.Stop()
	// 每帧1024个采样
	audioTicker := time.NewTicker(time.Duration(1024 * int64(time.Second) / int64(sampleRate)))
	defer audioTicker.Stop()

	rawAac := make([]byte, aacRawFrameSize)
	adts := append(ascCtx.PackAdtsHeader(len(rawAac)), rawAac...)

	var frameIndex int
	for {
		select {
		case <-stop:
			return
		case <-videoTicker.C:
			au := makeSyntheticAu(frameIndex)
			frameIndex++
			if err := p.room.SendAvc(au); err != nil {
				log.Debugf("[%s] send avc failed. err=%+v", p.name, err)
			}
		case <-audioTicker.C:
			if err := p.room.SendAac(adts); err != nil {
				log.Debugf("[%s] send aac failed. err=%+v", p.name, err)
			}
		}
	}
}

func (p *peer) Dispose() {
	p.room.Dispose()
	p.client.Dispose()
}

// makeSyntheticAu 每个gop的第一帧是sps+pps+idr，其余是p帧
func makeSyntheticAu(frameIndex int) []byte {
	var nals [][]byte
	if frameIndex%gopSize == 0 {
		nals = append(nals,
			[]byte{0x67, 0x42, 0xC0, 0x1F, 0xDA, 0x01, 0x40, 0x16, 0xE8},
			[]byte{0x68, 0xCE, 0x3C, 0x80},
			makeSyntheticSlice(0x65, idrSliceSize, frameIndex))
	} else {
		nals = append(nals, makeSyntheticSlice(0x41, pSliceSize, frameIndex))
	}

	var au []byte
	for _, nal := range nals {
		au = append(au, avc.NaluStartCode4...)
		au = append(au, nal...)
	}
	return au
}

// makeSyntheticSlice 内容中不包含起始码
func makeSyntheticSlice(header byte, size int, seed int) []byte {
	b := make([]byte, size)
	b[0] = header
	for i := 1; i < size; i++ {
		b[i] = byte(0x80 | ((i + seed) & 0x7F))
	}
	return b
}
