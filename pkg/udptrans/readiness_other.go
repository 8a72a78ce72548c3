// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalmeet
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

//go:build !linux && !darwin

package udptrans

import (
	"net"
	"time"
)

// 无法查询socket缓冲区，微秒级的超时可能在发起读之前就已到期，因此设置下限
const minReceiveTimeout = time.Millisecond

// pendingBytes 不支持查询的平台，总是走带超时的读取
func pendingBytes(conn *net.UDPConn) (int, error) {
	return 0, nil
}
