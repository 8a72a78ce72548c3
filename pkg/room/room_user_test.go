// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalmeet
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package room_test

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/q191201771/lalmeet/pkg/avc"
	"github.com/q191201771/lalmeet/pkg/base"
	"github.com/q191201771/lalmeet/pkg/room"
	"github.com/q191201771/lalmeet/pkg/rtpsession"
	"github.com/q191201771/lalmeet/pkg/udptrans"
	"github.com/q191201771/naza/pkg/assert"
)

// 9字节的ADTS帧，2字节payload
var testAdtsFrame = []byte{0xFF, 0xF1, 0x50, 0x80, 0x01, 0x3F, 0xFC, 0x21, 0x00}

type testObserver struct {
	mu     sync.Mutex
	events []room.Event
	videos [][]byte
	audios [][]byte
	uuids  []string
}

func (o *testObserver) OnRoomEvent(event room.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
}

func (o *testObserver) OnAvPacket(userUuid string, pkt base.AvPacket) {
	o.mu.Lock()
	defer o.mu.Unlock()
	payload := append([]byte(nil), pkt.Payload...)
	if pkt.IsVideo() {
		o.videos = append(o.videos, payload)
	} else {
		o.audios = append(o.audios, payload)
	}
	o.uuids = append(o.uuids, userUuid)
}

func (o *testObserver) eventTypes() []room.EventType {
	o.mu.Lock()
	defer o.mu.Unlock()
	var ret []room.EventType
	for _, e := range o.events {
		ret = append(ret, e.Type)
	}
	return ret
}

func (o *testObserver) lastEvent() room.Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.events[len(o.events)-1]
}

func (o *testObserver) mediaCount() (video int, audio int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.videos), len(o.audios)
}

func makeNal(header byte, size int) []byte {
	nal := make([]byte, size)
	nal[0] = header
	for i := 1; i < size; i++ {
		nal[i] = byte(i*13 + 1)
	}
	return nal
}

func makeAu(nals ...[]byte) []byte {
	var au []byte
	for _, nal := range nals {
		au = append(au, avc.NaluStartCode4...)
		au = append(au, nal...)
	}
	return au
}

func newLocalTransmitter(t *testing.T) *udptrans.Transmitter {
	trans, err := udptrans.NewTransmitter(func(option *udptrans.TransmitterOption) {
		option.BindIp = "127.0.0.1"
	})
	assert.Equal(t, nil, err)
	return trans
}

func waitUntil(total time.Duration, cond func() bool) bool {
	end := time.Now().Add(total)
	for time.Now().Before(end) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}

func TestRoomUser(t *testing.T) {
	catcher := newLocalTransmitter(t)
	defer catcher.Dispose()

	recordDir := t.TempDir()
	obs := &testObserver{}
	info := room.OnlineUser{UserId: "u2", UserName: "bob", UserUuid: "peer-uuid", VideoSsrc: 1001, AudioSsrc: 1002}
	u := room.NewRoomUser(info, "my-uuid", obs, func(option *room.RoomUserOption) {
		option.BindIp = "127.0.0.1"
		option.Reorder = false
		option.RecordOutPath = recordDir
	})
	assert.Equal(t, info, u.Info())
	assert.Equal(t, `{"uuid":"my-uuid"}`, string(u.PinholeMessage()))

	err := u.Initialize("127.0.0.1", catcher.LocalPort(), 9999)
	assert.Equal(t, true, errors.Is(err, base.ErrUnknownSsrc))
	assert.Equal(t, false, u.IsVideoReady())
	assert.Equal(t, false, u.IsAudioReady())
	assert.Equal(t, 0, u.VideoPort())

	// 未初始化时不读取
	u.ReceiveVideo(time.Millisecond)
	u.ReceiveAudio(time.Millisecond)

	assert.Equal(t, nil, u.Initialize("127.0.0.1", catcher.LocalPort(), 1001))
	assert.Equal(t, nil, u.Initialize("127.0.0.1", catcher.LocalPort(), 1002))
	assert.Equal(t, true, u.IsVideoReady())
	assert.Equal(t, true, u.IsAudioReady())
	videoPort := u.VideoPort()
	audioPort := u.AudioPort()
	assert.Equal(t, true, videoPort != 0 && audioPort != 0 && videoPort != audioPort)

	// 已创建的不再重建
	assert.Equal(t, nil, u.Initialize("127.0.0.1", catcher.LocalPort(), 1001))
	assert.Equal(t, videoPort, u.VideoPort())

	u.NatPinhole()
	buf := make([]byte, 2048)
	fromPorts := make(map[int]bool)
	for i := 0; i < 2; i++ {
		n, raddr, err := catcher.Receive(buf, 2*time.Second)
		assert.Equal(t, nil, err)
		assert.Equal(t, `{"uuid":"my-uuid"}`, string(buf[:n]))
		if raddr != nil {
			fromPorts[raddr.Port] = true
		}
	}
	assert.Equal(t, true, fromPorts[videoPort])
	assert.Equal(t, true, fromPorts[audioPort])

	vs, err := rtpsession.NewVideoSender(func(option *rtpsession.SenderOption) {
		option.Ssrc = 1001
	})
	assert.Equal(t, nil, err)
	defer vs.Dispose()
	assert.Equal(t, nil, vs.AddDestination("127.0.0.1", videoPort))

	as, err := rtpsession.NewAudioSender(func(option *rtpsession.SenderOption) {
		option.Ssrc = 1002
	})
	assert.Equal(t, nil, err)
	defer as.Dispose()
	assert.Equal(t, nil, as.AddDestination("127.0.0.1", audioPort))

	sps := makeNal(0x67, 16)
	pps := makeNal(0x68, 8)
	idr := makeNal(0x65, 4000)
	assert.Equal(t, nil, vs.SendAvc(makeAu(sps, pps, idr)))
	assert.Equal(t, nil, as.SendAac(testAdtsFrame))

	ok := waitUntil(3*time.Second, func() bool {
		u.ReceiveAudio(5 * time.Microsecond)
		u.ReceiveVideo(5 * time.Microsecond)
		v, a := obs.mediaCount()
		return v == 1 && a == 1
	})
	assert.Equal(t, true, ok)

	obs.mu.Lock()
	nals := avc.SplitNaluAnnexb(obs.videos[0])
	assert.Equal(t, 3, len(nals))
	assert.Equal(t, sps, nals[0])
	assert.Equal(t, pps, nals[1])
	assert.Equal(t, idr, nals[2])
	assert.Equal(t, testAdtsFrame, obs.audios[0])
	assert.Equal(t, "peer-uuid", obs.uuids[0])
	obs.mu.Unlock()

	stats := u.GetStat()
	assert.Equal(t, 2, len(stats))

	assert.Equal(t, nil, u.Dispose())
	assert.Equal(t, false, u.IsVideoReady())
	assert.Equal(t, 0, u.AudioPort())

	fi, err := os.Stat(filepath.Join(recordDir, "peer-uuid.ts"))
	assert.Equal(t, nil, err)
	assert.Equal(t, true, fi.Size() > 0)
}

func TestRoomUser_SetPinholeUuid(t *testing.T) {
	u := room.NewRoomUser(room.OnlineUser{UserUuid: "peer"}, "", nil)
	assert.Equal(t, `{"uuid":""}`, string(u.PinholeMessage()))
	u.SetPinholeUuid("abc")
	assert.Equal(t, `{"uuid":"abc"}`, string(u.PinholeMessage()))
	u.NatPinhole()
	assert.Equal(t, 0, len(u.GetStat()))
	assert.Equal(t, nil, u.Dispose())
}
