// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalmeet
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package udptrans

import (
	"net"

	"golang.org/x/sys/unix"
)

// 可以查询socket缓冲区，读超时不设下限
const minReceiveTimeout = 0

// pendingBytes 查询socket接收缓冲区中待读取的字节数
func pendingBytes(conn *net.UDPConn) (int, error) {
	rc, err := conn.SyscallConn()
	if err != nil {
		return 0, err
	}
	var n int
	var ioctlErr error
	err = rc.Control(func(fd uintptr) {
		n, ioctlErr = unix.IoctlGetInt(int(fd), unix.SIOCINQ)
	})
	if err != nil {
		return 0, err
	}
	return n, ioctlErr
}
