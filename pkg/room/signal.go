// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalmeet
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package room

import (
	"sync"
	"time"

	"github.com/q191201771/naza/pkg/unique"
)

// Opcode 信令的操作码，请求和响应使用相同的值
type Opcode int

const (
	OpcodeConferenceCreate      Opcode = 1000
	OpcodeConferenceJoin        Opcode = 1001
	OpcodeConferenceNewJoined   Opcode = 1002
	OpcodeConferencePullStream  Opcode = 1100
	OpcodeConferenceStopPulling Opcode = 1101
	OpcodeConferenceExit        Opcode = 1200
	OpcodeConferenceUserGone    Opcode = 1201
	OpcodeConferenceStop        Opcode = 1202
	OpcodeConferenceClosing     Opcode = 1203
	OpcodeConferenceOnlineUsers Opcode = 2000
	OpcodeConferenceKickOut     Opcode = 2001
	OpcodeConferenceHeartbeat   Opcode = 3000
)

func (op Opcode) ReadableString() string {
	switch op {
	case OpcodeConferenceCreate:
		return "CREATE"
	case OpcodeConferenceJoin:
		return "JOIN"
	case OpcodeConferenceNewJoined:
		return "NEW_JOINED"
	case OpcodeConferencePullStream:
		return "PULL_STREAM"
	case OpcodeConferenceStopPulling:
		return "STOP_PULLING"
	case OpcodeConferenceExit:
		return "EXIT"
	case OpcodeConferenceUserGone:
		return "USER_GONE"
	case OpcodeConferenceStop:
		return "STOP"
	case OpcodeConferenceClosing:
		return "CLOSING"
	case OpcodeConferenceOnlineUsers:
		return "ONLINE_USERS"
	case OpcodeConferenceKickOut:
		return "KICK_OUT"
	case OpcodeConferenceHeartbeat:
		return "HEARTBEAT"
	}
	return "UNKNOWN"
}

// PullStream 拉取或停止拉取某个用户的流
type PullStream struct {
	UserUuid string   `json:"user_uuid"`
	Ssrcs    []uint32 `json:"ssrcs"`
}

// SignalRequest 发往信令服务器的请求
//
// 根据 Opcode 的不同，只有部分字段有意义
type SignalRequest struct {
	Opcode       Opcode       `json:"opcode"`
	RequestId    string       `json:"uuid"`
	ConferenceId string       `json:"conference_id,omitempty"`
	UserId       string       `json:"user_id,omitempty"`
	UserName     string       `json:"user_name,omitempty"`
	UserUuid     string       `json:"user_uuid,omitempty"`
	Streams      []PullStream `json:"streams,omitempty"`
}

// ISignalSender 信令的传输层，比如websocket客户端
//
// SendSignal 返回错误表示请求没有发送出去
type ISignalSender interface {
	SendSignal(req SignalRequest) error
}

var signalRequestIdGenerator = unique.NewSingleGenerator("SIGREQ")

const heartbeatRequestId = "0"

// signalGuard 信令请求的限频
//
// 上一个请求还没有收到响应，并且距离上一次请求不足 minInterval 时，拒绝新的请求
type signalGuard struct {
	minInterval time.Duration
	nowFn       func() time.Time

	mu       sync.Mutex
	inFlight bool
	prevTime time.Time
}

func newSignalGuard(minInterval time.Duration, nowFn func() time.Time) *signalGuard {
	return &signalGuard{
		minInterval: minInterval,
		nowFn:       nowFn,
	}
}

// tryAcquire 允许发送时，标记为请求中并返回true
func (g *signalGuard) tryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.nowFn()
	if g.inFlight && now.Sub(g.prevTime) < g.minInterval {
		return false
	}
	g.inFlight = true
	g.prevTime = now
	return true
}

// done 收到响应，或者请求发送失败
func (g *signalGuard) done() {
	g.mu.Lock()
	g.inFlight = false
	g.mu.Unlock()
}

func (g *signalGuard) isInFlight() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}
