// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalmeet
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package room

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/q191201771/lalmeet/pkg/base"
	"github.com/q191201771/lalmeet/pkg/portmgr"
	"github.com/q191201771/lalmeet/pkg/rtpsession"
	"github.com/q191201771/naza/pkg/nazaatomic"
	"github.com/q191201771/naza/pkg/nazaerrors"
)

// SelfInfo 创建或加入会议后，服务器分配给本端的信息
type SelfInfo struct {
	ConferenceId  string
	User          OnlineUser
	PushVideoIp   string
	PushVideoPort int
	PushAudioIp   string
	PushAudioPort int
}

// PullStreamAddr 某个ssrc对应的打洞地址
type PullStreamAddr struct {
	Ssrc uint32
	Ip   string
	Port int
}

type PullStreamResult struct {
	UserUuid string
	Addrs    []PullStreamAddr
}

type RoomOption struct {
	Config Config

	// NowFn 信令限频使用的时钟
	NowFn func() time.Time
}

type ModRoomOption func(option *RoomOption)

// Room 会议房间
//
// 持有本端的视频和音频发送会话，以及其他用户的 RoomUser 。
// 信令相关的方法在信令协程中调用，SendAvc 和 SendAac 在采集编码协程中调用，
// 接收由房间内部的接收协程驱动
type Room struct {
	uniqueKey    string
	option       RoomOption
	pm           *portmgr.PortManager
	signalSender ISignalSender
	observer     IRoomObserver
	guard        *signalGuard

	stateMu    sync.Mutex
	self       SelfInfo
	myUserId   string
	myUserName string

	sendMu      sync.Mutex
	videoSender *rtpsession.VideoSender
	audioSender *rtpsession.AudioSender

	usersMu sync.Mutex
	users   map[string]*RoomUser

	loopMu    sync.Mutex
	loopStop  chan struct{}
	loopDone  chan struct{}
	receiving nazaatomic.Bool
}

func NewRoom(pm *portmgr.PortManager, signalSender ISignalSender, observer IRoomObserver, modOptions ...ModRoomOption) *Room {
	option := RoomOption{
		Config: DefaultConfig(),
		NowFn:  time.Now,
	}
	for _, fn := range modOptions {
		fn(&option)
	}

	r := &Room{
		uniqueKey:    base.GenUkRoom(),
		option:       option,
		pm:           pm,
		signalSender: signalSender,
		observer:     observer,
		guard:        newSignalGuard(option.Config.SignalMinInterval(), option.NowFn),
		users:        make(map[string]*RoomUser),
	}
	Log.Infof("[%s] lifecycle new room.", r.uniqueKey)
	return r
}

func (r *Room) UniqueKey() string {
	return r.uniqueKey
}

// ----- 发送 ------------------------------------------------------------------------------------------------------------

// SendAvc 发送一个Annex-B格式的access unit，未加入会议时返回错误
func (r *Room) SendAvc(b []byte) error {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()
	if r.videoSender == nil {
		return base.ErrSessionNotInit
	}
	return r.videoSender.SendAvc(b)
}

// SendAac 发送一帧带ADTS头的音频，未加入会议时返回错误
func (r *Room) SendAac(b []byte) error {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()
	if r.audioSender == nil {
		return base.ErrSessionNotInit
	}
	return r.audioSender.SendAac(b)
}

// ----- 信令请求 ----------------------------------------------------------------------------------------------------------

func (r *Room) SignalCreateConference(myUserId, myUserName string) error {
	if r.signalSender == nil {
		return base.ErrSignalNotInit
	}
	if r.isJoined() {
		return base.ErrConferenceAlreadyJoined
	}
	return r.sendGuarded(SignalRequest{
		Opcode:   OpcodeConferenceCreate,
		UserId:   myUserId,
		UserName: myUserName,
	})
}

func (r *Room) SignalJoinConference(conferenceId, myUserId, myUserName string) error {
	if r.signalSender == nil {
		return base.ErrSignalNotInit
	}
	if r.isJoined() {
		return base.ErrConferenceAlreadyJoined
	}
	if !r.guard.tryAcquire() {
		return base.ErrSignalRateLimited
	}

	r.stateMu.Lock()
	r.myUserId = myUserId
	r.myUserName = myUserName
	r.stateMu.Unlock()

	return r.send(SignalRequest{
		Opcode:       OpcodeConferenceJoin,
		ConferenceId: conferenceId,
		UserId:       myUserId,
		UserName:     myUserName,
	})
}

// SignalStartPullStream
//
// @param streams: key为用户uuid，value为该用户要拉取的ssrc；本端自己和空的ssrc列表会被忽略
func (r *Room) SignalStartPullStream(streams map[string][]uint32) error {
	return r.signalPullStream(OpcodeConferencePullStream, streams)
}

func (r *Room) SignalStopPullStream(streams map[string][]uint32) error {
	return r.signalPullStream(OpcodeConferenceStopPulling, streams)
}

func (r *Room) SignalExitConference() error {
	return r.signalWithSelf(OpcodeConferenceExit)
}

func (r *Room) SignalStopConference() error {
	return r.signalWithSelf(OpcodeConferenceStop)
}

func (r *Room) SignalOnlineUsers() error {
	return r.signalWithSelf(OpcodeConferenceOnlineUsers)
}

// SignalHeartbeat 不受限频影响
func (r *Room) SignalHeartbeat() error {
	if r.signalSender == nil {
		return base.ErrSignalNotInit
	}
	self := r.SelfInfo()
	err := r.signalSender.SendSignal(SignalRequest{
		Opcode:       OpcodeConferenceHeartbeat,
		RequestId:    heartbeatRequestId,
		ConferenceId: self.ConferenceId,
		UserUuid:     self.User.UserUuid,
	})
	if err != nil {
		Log.Errorf("[%s] send heartbeat failed. err=%+v", r.uniqueKey, err)
		return fmt.Errorf("%w. opcode=%s, err=%+v", base.ErrSignalSendFailed, OpcodeConferenceHeartbeat.ReadableString(), err)
	}
	return nil
}

// IsSignalInFlight 是否有请求还没有收到响应
func (r *Room) IsSignalInFlight() bool {
	return r.guard.isInFlight()
}

// ----- 信令响应 ----------------------------------------------------------------------------------------------------------

func (r *Room) OnConferenceCreated(self SelfInfo) {
	Log.Infof("[%s] conference created. self=%+v", r.uniqueKey, self)
	r.onSelfJoined(self)
	r.guard.done()
	r.notify(Event{Type: EventConferenceCreated, ConferenceId: self.ConferenceId})
}

// OnConferenceJoined 只有响应中的用户是本端时，才会配置发送会话和启动接收
func (r *Room) OnConferenceJoined(self SelfInfo) {
	Log.Infof("[%s] conference joined. self=%+v", r.uniqueKey, self)
	r.stateMu.Lock()
	isMe := (self.User.UserUuid != "" && self.User.UserUuid == r.self.User.UserUuid) ||
		(self.User.UserId != "" && self.User.UserId == r.myUserId)
	r.stateMu.Unlock()
	if isMe {
		r.onSelfJoined(self)
	}
	r.guard.done()
	r.notify(Event{Type: EventConferenceJoined, ConferenceId: self.ConferenceId})
}

func (r *Room) OnUserJoined(user OnlineUser) {
	Log.Infof("[%s] user joined. user=%+v", r.uniqueKey, user)
	r.addUsers([]OnlineUser{user})
	r.notify(Event{Type: EventOtherUserJoined, User: user})
}

// OnPullStream 为每个ssrc创建接收会话，并立即打洞一次
func (r *Room) OnPullStream(results []PullStreamResult) {
	r.usersMu.Lock()
	for _, result := range results {
		u, ok := r.users[result.UserUuid]
		if !ok {
			Log.Warnf("[%s] pull stream of unknown user. uuid=%s", r.uniqueKey, result.UserUuid)
			continue
		}
		for _, addr := range result.Addrs {
			if err := u.Initialize(addr.Ip, addr.Port, addr.Ssrc); err != nil {
				Log.Errorf("[%s] initialize user receiver failed. uuid=%s, addr=%+v, err=%+v",
					r.uniqueKey, result.UserUuid, addr, err)
			}
		}
		u.NatPinhole()
	}
	r.usersMu.Unlock()
	r.guard.done()
}

func (r *Room) OnStopPulling() {
	r.guard.done()
}

func (r *Room) OnConferenceExit(userUuid string) {
	Log.Infof("[%s] conference exit. uuid=%s", r.uniqueKey, userUuid)
	r.teardown()
	r.notify(Event{Type: EventConferenceExit, UserUuid: userUuid})
}

func (r *Room) OnUserGone(userUuid string) {
	r.usersMu.Lock()
	u, ok := r.users[userUuid]
	if ok {
		delete(r.users, userUuid)
		if err := u.Dispose(); err != nil {
			Log.Warnf("[%s] dispose user failed. err=%+v", r.uniqueKey, err)
		}
	}
	r.usersMu.Unlock()
	Log.Infof("[%s] user gone. uuid=%s, exist=%v", r.uniqueKey, userUuid, ok)
	r.notify(Event{Type: EventUserGoneOut, UserUuid: userUuid})
}

func (r *Room) OnOnlineUsers(users []OnlineUser) {
	r.guard.done()
	r.addUsers(users)
	r.notify(Event{Type: EventOnlineUsers, Users: users})
}

func (r *Room) OnHeartbeat() {
}

func (r *Room) OnConferenceStop(conferenceId string) {
	Log.Infof("[%s] conference stop. id=%s", r.uniqueKey, conferenceId)
	r.teardown()
	r.notify(Event{Type: EventConferenceStopped, ConferenceId: conferenceId})
}

func (r *Room) OnConferenceClosing(conferenceId string) {
	Log.Infof("[%s] conference closing. id=%s", r.uniqueKey, conferenceId)
	r.teardown()
	r.notify(Event{Type: EventConferenceClosing, ConferenceId: conferenceId})
}

// OnSignalFailed 服务器返回非200，请求中的标记不清除，等待限频时间过期
func (r *Room) OnSignalFailed(opcode Opcode, code int, msg string) {
	Log.Errorf("[%s] signal response failed. opcode=%s, code=%d, msg=%s", r.uniqueKey, opcode.ReadableString(), code, msg)
}

// ----- 查询 ------------------------------------------------------------------------------------------------------------

func (r *Room) SelfInfo() SelfInfo {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	return r.self
}

func (r *Room) IsReceiving() bool {
	return r.receiving.Load()
}

// Users 按uuid排序
func (r *Room) Users() []OnlineUser {
	r.usersMu.Lock()
	defer r.usersMu.Unlock()
	ret := make([]OnlineUser, 0, len(r.users))
	for _, u := range r.users {
		ret = append(ret, u.Info())
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].UserUuid < ret[j].UserUuid })
	return ret
}

// UserPorts 某个用户的视频和音频接收端口，用户不存在或未创建接收会话时为0
func (r *Room) UserPorts(userUuid string) (videoPort, audioPort int) {
	r.usersMu.Lock()
	defer r.usersMu.Unlock()
	if u, ok := r.users[userUuid]; ok {
		return u.VideoPort(), u.AudioPort()
	}
	return 0, 0
}

func (r *Room) GetStat() base.StatRoom {
	self := r.SelfInfo()
	stat := base.StatRoom{
		RoomId:    r.uniqueKey,
		ConfId:    self.ConferenceId,
		MyUuid:    self.User.UserUuid,
		Receiving: r.IsReceiving(),
	}

	r.sendMu.Lock()
	if r.videoSender != nil {
		stat.VideoSend = r.videoSender.GetStat()
	}
	if r.audioSender != nil {
		stat.AudioSend = r.audioSender.GetStat()
	}
	r.sendMu.Unlock()

	r.usersMu.Lock()
	stat.UserCount = len(r.users)
	for _, u := range r.users {
		stat.RecvStats = append(stat.RecvStats, u.GetStat()...)
	}
	r.usersMu.Unlock()
	return stat
}

// Dispose 停止接收协程，释放所有会话，不回调事件
func (r *Room) Dispose() {
	Log.Infof("[%s] lifecycle dispose room.", r.uniqueKey)
	r.teardown()
}

// ---------------------------------------------------------------------------------------------------------------------

func (r *Room) isJoined() bool {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	return r.self.ConferenceId != "" || r.self.User.UserUuid != ""
}

func (r *Room) signalWithSelf(opcode Opcode) error {
	if r.signalSender == nil {
		return base.ErrSignalNotInit
	}
	if !r.isJoined() {
		return base.ErrConferenceNotJoined
	}
	self := r.SelfInfo()
	return r.sendGuarded(SignalRequest{
		Opcode:       opcode,
		ConferenceId: self.ConferenceId,
		UserUuid:     self.User.UserUuid,
	})
}

func (r *Room) signalPullStream(opcode Opcode, streams map[string][]uint32) error {
	if r.signalSender == nil {
		return base.ErrSignalNotInit
	}
	if !r.isJoined() {
		return base.ErrConferenceNotJoined
	}
	self := r.SelfInfo()

	var pss []PullStream
	for uuid, ssrcs := range streams {
		if uuid == self.User.UserUuid || len(ssrcs) == 0 {
			continue
		}
		pss = append(pss, PullStream{UserUuid: uuid, Ssrcs: ssrcs})
	}
	if len(pss) == 0 {
		return base.ErrInvalidParams
	}
	sort.Slice(pss, func(i, j int) bool { return pss[i].UserUuid < pss[j].UserUuid })

	return r.sendGuarded(SignalRequest{
		Opcode:       opcode,
		ConferenceId: self.ConferenceId,
		UserUuid:     self.User.UserUuid,
		Streams:      pss,
	})
}

func (r *Room) sendGuarded(req SignalRequest) error {
	if !r.guard.tryAcquire() {
		return base.ErrSignalRateLimited
	}
	return r.send(req)
}

// send 调用前已通过限频检查，发送失败时清除请求中的标记
func (r *Room) send(req SignalRequest) error {
	req.RequestId = signalRequestIdGenerator.GenUniqueKey()
	Log.Debugf("[%s] send signal. opcode=%s, id=%s", r.uniqueKey, req.Opcode.ReadableString(), req.RequestId)
	if err := r.signalSender.SendSignal(req); err != nil {
		Log.Errorf("[%s] send signal failed. opcode=%s, err=%+v", r.uniqueKey, req.Opcode.ReadableString(), err)
		r.guard.done()
		return fmt.Errorf("%w. opcode=%s, err=%+v", base.ErrSignalSendFailed, req.Opcode.ReadableString(), err)
	}
	return nil
}

func (r *Room) onSelfJoined(self SelfInfo) {
	r.stateMu.Lock()
	r.self = self
	r.myUserId = self.User.UserId
	r.myUserName = self.User.UserName
	r.stateMu.Unlock()

	if err := r.addSenderDestination(self); err != nil {
		Log.Errorf("[%s] setup rtp sender failed. err=%+v", r.uniqueKey, err)
	}
	r.startReceive()
}

// addSenderDestination 首次调用时创建发送会话，之后每次调用都追加目标地址
func (r *Room) addSenderDestination(self SelfInfo) error {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	if r.videoSender == nil || r.audioSender == nil {
		as, err := rtpsession.NewAudioSender(func(option *rtpsession.SenderOption) {
			option.Ssrc = self.User.AudioSsrc
		})
		if err != nil {
			return err
		}
		vs, err := rtpsession.NewVideoSender(func(option *rtpsession.SenderOption) {
			option.Ssrc = self.User.VideoSsrc
		})
		if err != nil {
			_ = as.Dispose()
			return err
		}
		r.audioSender = as
		r.videoSender = vs
	}

	return nazaerrors.CombineErrors(
		r.audioSender.AddDestination(self.PushAudioIp, self.PushAudioPort),
		r.videoSender.AddDestination(self.PushVideoIp, self.PushVideoPort),
	)
}

func (r *Room) removeSenders() {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()
	if r.videoSender != nil {
		_ = r.videoSender.Dispose()
		r.videoSender = nil
	}
	if r.audioSender != nil {
		_ = r.audioSender.Dispose()
		r.audioSender = nil
	}
}

func (r *Room) addUsers(users []OnlineUser) {
	self := r.SelfInfo()
	cfg := r.option.Config

	r.usersMu.Lock()
	defer r.usersMu.Unlock()
	for _, user := range users {
		if user.UserUuid == self.User.UserUuid {
			continue
		}
		if _, ok := r.users[user.UserUuid]; ok {
			continue
		}
		r.users[user.UserUuid] = NewRoomUser(user, self.User.UserUuid, r.observer, func(option *RoomUserOption) {
			option.PortManager = r.pm
			option.BindIp = cfg.Receive.BindIp
			option.Reorder = cfg.Receive.Reorder
			option.ReorderLen = cfg.Receive.ReorderLen
			option.DumpPath = cfg.Receive.DumpPath
			if cfg.Record.Enable {
				option.RecordOutPath = cfg.Record.OutPath
			}
		})
	}
}

// teardown 先停止接收协程，再释放用户和发送会话
func (r *Room) teardown() {
	r.stopReceive()
	r.removeSenders()

	r.usersMu.Lock()
	for uuid, u := range r.users {
		if err := u.Dispose(); err != nil {
			Log.Warnf("[%s] dispose user failed. uuid=%s, err=%+v", r.uniqueKey, uuid, err)
		}
	}
	r.users = make(map[string]*RoomUser)
	r.usersMu.Unlock()

	r.stateMu.Lock()
	r.self = SelfInfo{}
	r.myUserId = ""
	r.myUserName = ""
	r.stateMu.Unlock()

	r.guard.done()
}

func (r *Room) notify(event Event) {
	if r.observer != nil {
		r.observer.OnRoomEvent(event)
	}
}

// ----- 接收协程 ----------------------------------------------------------------------------------------------------------

func (r *Room) startReceive() {
	r.loopMu.Lock()
	defer r.loopMu.Unlock()
	if r.loopStop != nil {
		return
	}
	r.loopStop = make(chan struct{})
	r.loopDone = make(chan struct{})
	r.receiving.Store(true)
	go r.runReceiveLoop(r.loopStop, r.loopDone)
}

// stopReceive 等待接收协程退出后才返回
func (r *Room) stopReceive() {
	r.loopMu.Lock()
	defer r.loopMu.Unlock()
	if r.loopStop == nil {
		return
	}
	close(r.loopStop)
	<-r.loopDone
	r.loopStop = nil
	r.loopDone = nil
	r.receiving.Store(false)
}

// runReceiveLoop 每个tick轮询一遍所有用户，每次读取的超时很短，一轮的耗时上限为 用户数 * 2 * 超时时间
func (r *Room) runReceiveLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	cfg := r.option.Config
	timeout := cfg.ReceiveTimeout()
	pinholeEvery := uint32(cfg.Receive.PinholeEveryTicks)
	ticker := time.NewTicker(cfg.TickInterval())
	defer ticker.Stop()

	Log.Infof("[%s] receive loop start. tick=%v, timeout=%v", r.uniqueKey, cfg.TickInterval(), timeout)
	var count uint32
	for {
		select {
		case <-stop:
			Log.Infof("[%s] receive loop stop.", r.uniqueKey)
			return
		case <-ticker.C:
		}

		r.usersMu.Lock()
		for _, u := range r.users {
			u.ReceiveAudio(timeout)
			u.ReceiveVideo(timeout)
			if count%pinholeEvery == 0 {
				u.NatPinhole()
			}
		}
		r.usersMu.Unlock()
		count++
	}
}
