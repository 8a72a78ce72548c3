// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalmeet
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package room

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/q191201771/lalmeet/pkg/base"
	"github.com/q191201771/lalmeet/pkg/portmgr"
	"github.com/q191201771/lalmeet/pkg/recorder"
	"github.com/q191201771/lalmeet/pkg/rtprtcp"
	"github.com/q191201771/lalmeet/pkg/rtpsession"
	"github.com/q191201771/naza/pkg/nazaerrors"
)

// 一个access unit可能由多次 PushPacket 的输出拼接而成
const avcRecvBufferSize = 1024 * 1024

type RoomUserOption struct {
	PortManager *portmgr.PortManager
	BindIp      string
	Reorder     bool
	ReorderLen  int

	DumpPath      string
	RecordOutPath string // 不为空时录制成 <RecordOutPath>/<user uuid>.ts
}

var defaultRoomUserOption = RoomUserOption{
	Reorder:    true,
	ReorderLen: defaultReceiveReorderLen,
}

type ModRoomUserOption func(option *RoomUserOption)

// RoomUser 会议中的一个其他用户
//
// 视频和音频的接收会话在收到对应ssrc的打洞地址时才创建。
// 除 Initialize 和 Dispose 外，其余方法只在房间的接收协程中调用
type RoomUser struct {
	uniqueKey string
	option    RoomUserOption
	info      OnlineUser
	observer  IRoomObserver

	pinholeUuid string
	pinholeMsg  []byte

	videoReceiver *rtpsession.Receiver
	audioReceiver *rtpsession.Receiver

	assembler  *rtprtcp.AvcFrameAssembler
	avcBuf     []byte
	avcBufUsed int

	recorder *recorder.TsRecorder
}

func NewRoomUser(info OnlineUser, pinholeUuid string, observer IRoomObserver, modOptions ...ModRoomUserOption) *RoomUser {
	option := defaultRoomUserOption
	for _, fn := range modOptions {
		fn(&option)
	}

	u := &RoomUser{
		uniqueKey: base.GenUkRoomUser(),
		option:    option,
		info:      info,
		observer:  observer,
	}
	u.SetPinholeUuid(pinholeUuid)
	Log.Infof("[%s] lifecycle new room user. user=%+v", u.uniqueKey, info)
	return u
}

func (u *RoomUser) UniqueKey() string {
	return u.uniqueKey
}

func (u *RoomUser) Info() OnlineUser {
	return u.info
}

// SetPinholeUuid 打洞消息的内容是本端用户的uuid
func (u *RoomUser) SetPinholeUuid(uuid string) {
	u.pinholeUuid = uuid
	u.pinholeMsg, _ = json.Marshal(struct {
		Uuid string `json:"uuid"`
	}{uuid})
}

func (u *RoomUser) PinholeMessage() []byte {
	return u.pinholeMsg
}

// Initialize 根据ssrc判断是视频还是音频，创建对应的接收会话，已创建则直接返回
func (u *RoomUser) Initialize(pinholeIp string, pinholePort int, ssrc uint32) error {
	switch ssrc {
	case u.info.VideoSsrc:
		return u.initializeVideo(pinholeIp, pinholePort)
	case u.info.AudioSsrc:
		return u.initializeAudio(pinholeIp, pinholePort)
	}
	return fmt.Errorf("%w. ssrc=%d, video=%d, audio=%d", base.ErrUnknownSsrc, ssrc, u.info.VideoSsrc, u.info.AudioSsrc)
}

func (u *RoomUser) IsVideoReady() bool {
	return u.videoReceiver != nil
}

func (u *RoomUser) IsAudioReady() bool {
	return u.audioReceiver != nil
}

// VideoPort 视频接收会话绑定的本地端口，未创建时返回0
func (u *RoomUser) VideoPort() int {
	if u.videoReceiver == nil {
		return 0
	}
	return u.videoReceiver.LocalPort()
}

func (u *RoomUser) AudioPort() int {
	if u.audioReceiver == nil {
		return 0
	}
	return u.audioReceiver.LocalPort()
}

// ReceiveVideo 最多读取一个rtp包，marker为1时回调拼好的access unit
func (u *RoomUser) ReceiveVideo(timeout time.Duration) {
	if u.videoReceiver == nil {
		return
	}
	pkt, _ := u.videoReceiver.ReceivePacketReorder(u.option.ReorderLen, timeout)
	if pkt == nil {
		return
	}
	defer u.videoReceiver.EndReceivePacket(pkt)

	ready, err := u.assembler.PushPacket(pkt)
	if err != nil {
		Log.Debugf("[%s] assemble failed. seq=%d, err=%+v", u.uniqueKey, pkt.Seq, err)
		u.avcBufUsed = 0
		return
	}
	if !ready {
		return
	}

	frame := u.assembler.Frame()
	if u.avcBufUsed+len(frame) >= len(u.avcBuf) {
		Log.Warnf("[%s] avc buffer full, drop. used=%d, len=%d", u.uniqueKey, u.avcBufUsed, len(frame))
		u.avcBufUsed = 0
		if len(frame) >= len(u.avcBuf) {
			return
		}
	}
	u.avcBufUsed += copy(u.avcBuf[u.avcBufUsed:], frame)

	if !pkt.Mark {
		return
	}
	au := u.avcBuf[:u.avcBufUsed]
	u.avcBufUsed = 0
	if u.recorder != nil {
		_ = u.recorder.WriteAvc(au, pkt.Timestamp)
	}
	if u.observer != nil {
		u.observer.OnAvPacket(u.info.UserUuid, base.AvPacket{
			PayloadType: base.AvPacketPtAvc,
			Timestamp:   pkt.Timestamp,
			Ssrc:        pkt.Ssrc,
			Payload:     au,
		})
	}
}

// ReceiveAudio 最多读取一个rtp包，payload直接回调
func (u *RoomUser) ReceiveAudio(timeout time.Duration) {
	if u.audioReceiver == nil {
		return
	}
	pkt, _ := u.audioReceiver.ReceivePacketReorder(u.option.ReorderLen, timeout)
	if pkt == nil {
		return
	}
	defer u.audioReceiver.EndReceivePacket(pkt)

	if u.recorder != nil {
		_ = u.recorder.WriteAac(pkt.Payload, pkt.Timestamp)
	}
	if u.observer != nil {
		u.observer.OnAvPacket(u.info.UserUuid, base.AvPacket{
			PayloadType: base.AvPacketPtAac,
			Timestamp:   pkt.Timestamp,
			Ssrc:        pkt.Ssrc,
			Payload:     pkt.Payload,
		})
	}
}

// NatPinhole 从已创建的接收会话向打洞地址发送打洞消息
func (u *RoomUser) NatPinhole() {
	if u.videoReceiver != nil {
		if !u.videoReceiver.IsAlive() {
			Log.Debugf("[%s] no video data since last pinhole.", u.uniqueKey)
		}
		if err := u.videoReceiver.NatPinhole(u.pinholeMsg); err != nil {
			Log.Warnf("[%s] video pinhole failed. err=%+v", u.uniqueKey, err)
		}
	}
	if u.audioReceiver != nil {
		if !u.audioReceiver.IsAlive() {
			Log.Debugf("[%s] no audio data since last pinhole.", u.uniqueKey)
		}
		if err := u.audioReceiver.NatPinhole(u.pinholeMsg); err != nil {
			Log.Warnf("[%s] audio pinhole failed. err=%+v", u.uniqueKey, err)
		}
	}
}

func (u *RoomUser) GetStat() []base.StatSession {
	var ret []base.StatSession
	if u.videoReceiver != nil {
		ret = append(ret, u.videoReceiver.GetStat())
	}
	if u.audioReceiver != nil {
		ret = append(ret, u.audioReceiver.GetStat())
	}
	return ret
}

func (u *RoomUser) Dispose() error {
	Log.Infof("[%s] lifecycle dispose room user.", u.uniqueKey)
	var errs []error
	if u.videoReceiver != nil {
		errs = append(errs, u.videoReceiver.Dispose())
		u.videoReceiver = nil
	}
	if u.audioReceiver != nil {
		errs = append(errs, u.audioReceiver.Dispose())
		u.audioReceiver = nil
	}
	if u.recorder != nil {
		errs = append(errs, u.recorder.Dispose())
		u.recorder = nil
	}
	return nazaerrors.CombineErrors(errs...)
}

// ---------------------------------------------------------------------------------------------------------------------

func (u *RoomUser) initializeVideo(pinholeIp string, pinholePort int) error {
	if u.videoReceiver != nil {
		return nil
	}
	r, err := u.newReceiver(pinholeIp, pinholePort, "video")
	if err != nil {
		return err
	}
	if err = u.ensureRecorder(); err != nil {
		_ = r.Dispose()
		return err
	}
	u.assembler = rtprtcp.NewAvcFrameAssembler()
	u.avcBuf = make([]byte, avcRecvBufferSize)
	u.avcBufUsed = 0
	u.videoReceiver = r
	Log.Debugf("[%s] receive video. port=%d", u.uniqueKey, r.LocalPort())
	return nil
}

func (u *RoomUser) initializeAudio(pinholeIp string, pinholePort int) error {
	if u.audioReceiver != nil {
		return nil
	}
	r, err := u.newReceiver(pinholeIp, pinholePort, "audio")
	if err != nil {
		return err
	}
	if err = u.ensureRecorder(); err != nil {
		_ = r.Dispose()
		return err
	}
	u.audioReceiver = r
	Log.Debugf("[%s] receive audio. port=%d", u.uniqueKey, r.LocalPort())
	return nil
}

func (u *RoomUser) newReceiver(pinholeIp string, pinholePort int, kind string) (*rtpsession.Receiver, error) {
	r, err := rtpsession.NewReceiver(pinholeIp, pinholePort, func(option *rtpsession.ReceiverOption) {
		option.PortManager = u.option.PortManager
		option.BindIp = u.option.BindIp
		option.Reorder = u.option.Reorder
		if u.option.DumpPath != "" {
			option.DumpFilename = filepath.Join(u.option.DumpPath, fmt.Sprintf("%s_%s.lalmeetdump", u.info.UserUuid, kind))
		}
	})
	if err != nil {
		Log.Errorf("[%s] create %s receiver failed. err=%+v", u.uniqueKey, kind, err)
		return nil, err
	}
	return r, nil
}

func (u *RoomUser) ensureRecorder() error {
	if u.option.RecordOutPath == "" || u.recorder != nil {
		return nil
	}
	r, err := recorder.NewTsRecorder(filepath.Join(u.option.RecordOutPath, u.info.UserUuid+".ts"))
	if err != nil {
		Log.Errorf("[%s] create recorder failed. err=%+v", u.uniqueKey, err)
		return err
	}
	u.recorder = r
	return nil
}
