// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalmeet
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import "github.com/q191201771/naza/pkg/unique"

const (
	UkPreVideoSender = "RTPVSEND"
	UkPreAudioSender = "RTPASEND"
	UkPreRecvSession = "RTPRECV"
	UkPreTransmitter = "UDPTRANS"
	UkPreRoom        = "ROOM"
	UkPreRoomUser    = "ROOMUSER"
	UkPreTsRecorder  = "TSRECORD"
	UkPrePortManager = "PORTMGR"
)

func GenUkVideoSender() string {
	return siUkVideoSender.GenUniqueKey()
}

func GenUkAudioSender() string {
	return siUkAudioSender.GenUniqueKey()
}

func GenUkRecvSession() string {
	return siUkRecvSession.GenUniqueKey()
}

func GenUkTransmitter() string {
	return siUkTransmitter.GenUniqueKey()
}

func GenUkRoom() string {
	return siUkRoom.GenUniqueKey()
}

func GenUkRoomUser() string {
	return siUkRoomUser.GenUniqueKey()
}

func GenUkTsRecorder() string {
	return siUkTsRecorder.GenUniqueKey()
}

func GenUkPortManager() string {
	return siUkPortManager.GenUniqueKey()
}

var (
	siUkVideoSender *unique.SingleGenerator
	siUkAudioSender *unique.SingleGenerator
	siUkRecvSession *unique.SingleGenerator
	siUkTransmitter *unique.SingleGenerator
	siUkRoom        *unique.SingleGenerator
	siUkRoomUser    *unique.SingleGenerator
	siUkTsRecorder  *unique.SingleGenerator
	siUkPortManager *unique.SingleGenerator
)

func init() {
	siUkVideoSender = unique.NewSingleGenerator(UkPreVideoSender)
	siUkAudioSender = unique.NewSingleGenerator(UkPreAudioSender)
	siUkRecvSession = unique.NewSingleGenerator(UkPreRecvSession)
	siUkTransmitter = unique.NewSingleGenerator(UkPreTransmitter)
	siUkRoom = unique.NewSingleGenerator(UkPreRoom)
	siUkRoomUser = unique.NewSingleGenerator(UkPreRoomUser)
	siUkTsRecorder = unique.NewSingleGenerator(UkPreTsRecorder)
	siUkPortManager = unique.NewSingleGenerator(UkPrePortManager)
}
