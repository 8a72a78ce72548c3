// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalmeet
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base_test

import (
	"testing"

	"github.com/q191201771/lalmeet/pkg/base"
	"github.com/q191201771/naza/pkg/assert"
)

func TestBasicSessionStat(t *testing.T) {
	s := base.NewBasicSessionStat(base.StatSessionTypeRecv, 1234, "RTPRECV1")
	s.SetLocalAddr("127.0.0.1:30000")

	readAlive, writeAlive := s.IsAlive()
	assert.Equal(t, true, readAlive)
	assert.Equal(t, true, writeAlive)

	s.AddReadPacket(100)
	s.AddReadPacket(200)
	s.AddWritePacket(10)
	s.AddDropPacket()

	stat := s.GetStat()
	assert.Equal(t, "RTPRECV1", stat.SessionId)
	assert.Equal(t, base.ProtocolRtp, stat.Protocol)
	assert.Equal(t, base.StatSessionTypeRecv, stat.Type)
	assert.Equal(t, uint32(1234), stat.Ssrc)
	assert.Equal(t, "127.0.0.1:30000", stat.LocalAddr)
	assert.Equal(t, uint64(300), stat.ReadBytesSum)
	assert.Equal(t, uint64(10), stat.WroteBytesSum)
	assert.Equal(t, uint64(2), stat.ReadPackets)
	assert.Equal(t, uint64(1), stat.WrotePackets)
	assert.Equal(t, uint64(1), stat.DropPackets)
	assert.Equal(t, "RTPRECV1", s.UniqueKey())

	readAlive, writeAlive = s.IsAlive()
	assert.Equal(t, true, readAlive)
	assert.Equal(t, true, writeAlive)
	readAlive, writeAlive = s.IsAlive()
	assert.Equal(t, false, readAlive)
	assert.Equal(t, false, writeAlive)
}
