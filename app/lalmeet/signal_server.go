// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalmeet
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package main

import (
	"sort"
	"sync"

	"github.com/q191201771/lalmeet/pkg/room"
	log "github.com/q191201771/naza/pkg/nazalog"
	"github.com/q191201771/naza/pkg/unique"
)

const (
	signalCodeNotFound    = 404
	signalCodeBadRequest  = 400
	signalClientQueueSize = 64
)

var (
	conferenceIdGenerator = unique.NewSingleGenerator("CONF")
	userUuidGenerator     = unique.NewSingleGenerator("USER")
)

// signalServer 进程内的信令服务器
//
// 维护会议和成员，为每个成员的视频和音频各分配一路 streamRelay 。
// 响应通过 signalClient 的队列异步回调给对应的房间
type signalServer struct {
	mu          sync.Mutex
	nextSsrc    uint32
	conferences map[string]*conference
}

type conference struct {
	id      string
	members map[string]*member
}

type member struct {
	user   room.OnlineUser
	client *signalClient
	video  *streamRelay
	audio  *streamRelay
}

func newSignalServer() *signalServer {
	return &signalServer{
		nextSsrc:    1000,
		conferences: make(map[string]*conference),
	}
}

func (s *signalServer) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, conf := range s.conferences {
		for _, m := range conf.members {
			m.dispose()
		}
		delete(s.conferences, id)
	}
}

func (s *signalServer) handle(c *signalClient, req room.SignalRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log.Debugf("signal server recv. opcode=%s, req=%+v", req.Opcode.ReadableString(), req)
	switch req.Opcode {
	case room.OpcodeConferenceCreate:
		conf := &conference{
			id:      conferenceIdGenerator.GenUniqueKey(),
			members: make(map[string]*member),
		}
		m, ok := s.addMember(c, conf, req)
		if !ok {
			return
		}
		s.conferences[conf.id] = conf
		self := m.selfInfo(conf.id)
		c.post(func(r *room.Room) { r.OnConferenceCreated(self) })

	case room.OpcodeConferenceJoin:
		conf, ok := s.conferences[req.ConferenceId]
		if !ok {
			c.postFailed(req.Opcode, signalCodeNotFound, "conference not found")
			return
		}
		m, ok := s.addMember(c, conf, req)
		if !ok {
			return
		}
		self := m.selfInfo(conf.id)
		c.post(func(r *room.Room) { r.OnConferenceJoined(self) })
		for uuid, other := range conf.members {
			if uuid == m.user.UserUuid {
				continue
			}
			user := m.user
			other.client.post(func(r *room.Room) { r.OnUserJoined(user) })
		}

	case room.OpcodeConferenceOnlineUsers:
		conf, ok := s.conferences[req.ConferenceId]
		if !ok {
			c.postFailed(req.Opcode, signalCodeNotFound, "conference not found")
			return
		}
		users := conf.onlineUsers()
		c.post(func(r *room.Room) { r.OnOnlineUsers(users) })

	case room.OpcodeConferencePullStream:
		conf, ok := s.conferences[req.ConferenceId]
		if !ok {
			c.postFailed(req.Opcode, signalCodeNotFound, "conference not found")
			return
		}
		results := conf.pullStream(req.Streams)
		c.post(func(r *room.Room) { r.OnPullStream(results) })

	case room.OpcodeConferenceStopPulling:
		c.post(func(r *room.Room) { r.OnStopPulling() })

	case room.OpcodeConferenceExit:
		conf, ok := s.conferences[req.ConferenceId]
		if !ok {
			c.postFailed(req.Opcode, signalCodeNotFound, "conference not found")
			return
		}
		uuid := req.UserUuid
		if m, ok := conf.members[uuid]; ok {
			m.dispose()
			delete(conf.members, uuid)
		}
		c.post(func(r *room.Room) { r.OnConferenceExit(uuid) })
		for _, other := range conf.members {
			other.client.post(func(r *room.Room) { r.OnUserGone(uuid) })
		}
		if len(conf.members) == 0 {
			delete(s.conferences, conf.id)
		}

	case room.OpcodeConferenceStop:
		conf, ok := s.conferences[req.ConferenceId]
		if !ok {
			c.postFailed(req.Opcode, signalCodeNotFound, "conference not found")
			return
		}
		id := conf.id
		for _, m := range conf.members {
			m.dispose()
			m.client.post(func(r *room.Room) { r.OnConferenceStop(id) })
		}
		delete(s.conferences, id)

	case room.OpcodeConferenceHeartbeat:
		c.post(func(r *room.Room) { r.OnHeartbeat() })

	default:
		c.postFailed(req.Opcode, signalCodeBadRequest, "unsupported opcode")
	}
}

func (s *signalServer) addMember(c *signalClient, conf *conference, req room.SignalRequest) (*member, bool) {
	m := &member{
		user: room.OnlineUser{
			UserId:    req.UserId,
			UserName:  req.UserName,
			UserIp:    "127.0.0.1",
			UserUuid:  userUuidGenerator.GenUniqueKey(),
			VideoSsrc: s.nextSsrc,
			AudioSsrc: s.nextSsrc + 1,
		},
		client: c,
	}
	s.nextSsrc += 2

	var err error
	if m.video, err = newStreamRelay(m.user.VideoSsrc); err != nil {
		log.Errorf("create video relay failed. err=%+v", err)
		c.postFailed(req.Opcode, signalCodeBadRequest, err.Error())
		return nil, false
	}
	if m.audio, err = newStreamRelay(m.user.AudioSsrc); err != nil {
		log.Errorf("create audio relay failed. err=%+v", err)
		m.video.Dispose()
		c.postFailed(req.Opcode, signalCodeBadRequest, err.Error())
		return nil, false
	}
	conf.members[m.user.UserUuid] = m
	log.Infof("signal server add member. conf=%s, user=%+v, video relay=%d, audio relay=%d",
		conf.id, m.user, m.video.Port(), m.audio.Port())
	return m, true
}

func (m *member) selfInfo(conferenceId string) room.SelfInfo {
	return room.SelfInfo{
		ConferenceId:  conferenceId,
		User:          m.user,
		PushVideoIp:   "127.0.0.1",
		PushVideoPort: m.video.Port(),
		PushAudioIp:   "127.0.0.1",
		PushAudioPort: m.audio.Port(),
	}
}

func (m *member) dispose() {
	m.video.Dispose()
	m.audio.Dispose()
}

func (conf *conference) onlineUsers() []room.OnlineUser {
	users := make([]room.OnlineUser, 0, len(conf.members))
	for _, m := range conf.members {
		users = append(users, m.user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserUuid < users[j].UserUuid })
	return users
}

// pullStream 拉流方的打洞地址即被拉取流的relay地址
func (conf *conference) pullStream(streams []room.PullStream) []room.PullStreamResult {
	var results []room.PullStreamResult
	for _, ps := range streams {
		m, ok := conf.members[ps.UserUuid]
		if !ok {
			continue
		}
		result := room.PullStreamResult{UserUuid: ps.UserUuid}
		for _, ssrc := range ps.Ssrcs {
			var relay *streamRelay
			switch ssrc {
			case m.user.VideoSsrc:
				relay = m.video
			case m.user.AudioSsrc:
				relay = m.audio
			default:
				continue
			}
			result.Addrs = append(result.Addrs, room.PullStreamAddr{Ssrc: ssrc, Ip: "127.0.0.1", Port: relay.Port()})
		}
		results = append(results, result)
	}
	return results
}

// ---------------------------------------------------------------------------------------------------------------------

// signalClient 房间侧的信令连接，实现 room.ISignalSender
type signalClient struct {
	server *signalServer
	room   *room.Room
	queue  chan func(r *room.Room)
	done   chan struct{}
	wg     sync.WaitGroup
}

func newSignalClient(server *signalServer) *signalClient {
	return &signalClient{
		server: server,
		queue:  make(chan func(r *room.Room), signalClientQueueSize),
		done:   make(chan struct{}),
	}
}

// Start 绑定房间后开始分发响应
func (c *signalClient) Start(r *room.Room) {
	c.room = r
	c.wg.Add(1)
	go c.runLoop()
}

func (c *signalClient) SendSignal(req room.SignalRequest) error {
	c.server.handle(c, req)
	return nil
}

func (c *signalClient) Dispose() {
	close(c.done)
	c.wg.Wait()
}

func (c *signalClient) post(fn func(r *room.Room)) {
	select {
	case c.queue <- fn:
	case <-c.done:
	}
}

func (c *signalClient) postFailed(opcode room.Opcode, code int, msg string) {
	c.post(func(r *room.Room) { r.OnSignalFailed(opcode, code, msg) })
}

func (c *signalClient) runLoop() {
	defer c.wg.Done()
	for {
		select {
		case fn := <-c.queue:
			fn(c.room)
		case <-c.done:
			return
		}
	}
}
