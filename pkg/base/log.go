// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalmeet
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import (
	"fmt"

	"github.com/q191201771/naza/pkg/nazalog"
)

// LogDump 热路径上的日志限流
//
// 收包路径上，对端发来的每一个坏包都可能触发一条日志，这里限制打印次数，避免刷屏
type LogDump struct {
	log    nazalog.Logger
	maxNum int

	count int
}

// NewLogDump
//
// @param maxNum: 最多打印的次数，Trace级别下不受限制
func NewLogDump(log nazalog.Logger, maxNum int) LogDump {
	return LogDump{
		log:    log,
		maxNum: maxNum,
	}
}

func (ld *LogDump) ShouldDump() bool {
	if ld.log.GetOption().Level == nazalog.LevelTrace {
		return true
	}
	if ld.count >= ld.maxNum {
		return false
	}
	ld.count++
	return true
}

// Outf
//
// 调用之前需调用 ShouldDump ，避免构造实参的开销，比如 hex.Dump(buf)
func (ld *LogDump) Outf(format string, v ...interface{}) {
	ld.log.Out(nazalog.LevelWarn, 3, fmt.Sprintf(format, v...))
}
