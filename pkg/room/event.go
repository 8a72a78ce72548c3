// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalmeet
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package room

import "github.com/q191201771/lalmeet/pkg/base"

type EventType int

const (
	EventConferenceCreated EventType = iota + 1
	EventConferenceJoined
	EventOtherUserJoined
	EventOnlineUsers
	EventConferenceExit
	EventUserGoneOut
	EventConferenceStopped
	EventConferenceClosing
)

func (t EventType) ReadableString() string {
	switch t {
	case EventConferenceCreated:
		return "CONFERENCE_CREATED"
	case EventConferenceJoined:
		return "CONFERENCE_JOINED"
	case EventOtherUserJoined:
		return "OTHER_USER_JOINED"
	case EventOnlineUsers:
		return "ONLINE_USERS"
	case EventConferenceExit:
		return "CONFERENCE_EXIT"
	case EventUserGoneOut:
		return "USER_GONE_OUT"
	case EventConferenceStopped:
		return "CONFERENCE_STOPPED"
	case EventConferenceClosing:
		return "CONFERENCE_CLOSING"
	}
	return "UNKNOWN"
}

// OnlineUser 会议中的一个用户
type OnlineUser struct {
	UserId    string `json:"user_id"`
	UserName  string `json:"user_name"`
	UserIp    string `json:"user_ip"`
	UserUuid  string `json:"user_uuid"`
	VideoSsrc uint32 `json:"video_ssrc"`
	AudioSsrc uint32 `json:"audio_ssrc"`
}

// Event 房间事件
//
// EventOtherUserJoined 时 User 有效；
// EventOnlineUsers 时 Users 有效；
// EventConferenceExit 和 EventUserGoneOut 时 UserUuid 有效；
// EventConferenceStopped 和 EventConferenceClosing 时 ConferenceId 有效
type Event struct {
	Type         EventType
	ConferenceId string
	UserUuid     string
	User         OnlineUser
	Users        []OnlineUser
}

// IRoomObserver 房间的回调
//
// OnAvPacket 在房间的接收协程中回调，持有房间的用户表锁，回调中不要调用 Room 的方法。
// pkt.Payload 在回调结束后失效
type IRoomObserver interface {
	OnRoomEvent(event Event)
	OnAvPacket(userUuid string, pkt base.AvPacket)
}
