// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalmeet
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/q191201771/naza/pkg/bininfo"
)

var startTime string

var readableTimeLayout = "2006-01-02 15:04:05.999 Z0700 MST"

func ReadableNowTime() string {
	return time.Now().Format(readableTimeLayout)
}

// NowMsTimestamp 发送端rtp包头中的时间戳，取墙上时钟的毫秒值，截断到32位
func NowMsTimestamp() uint32 {
	return uint32(time.Now().UnixNano() / int64(time.Millisecond))
}

func GetWd() string {
	dir, _ := os.Getwd()
	return dir
}

func LogoutStartInfo() {
	Log.Infof("     start: %s", startTime)
	Log.Infof("        wd: %s", GetWd())
	Log.Infof("      args: %s", strings.Join(os.Args, " "))
	Log.Infof("   bininfo: %s", bininfo.StringifySingleLine())
	Log.Infof("   version: %s", LalMeetFullInfo)
}

// ReadConfigFile
//
// @param theConfigFile: 为空时返回nil，由调用方决定是否使用默认配置
func ReadConfigFile(theConfigFile string) ([]byte, error) {
	if theConfigFile == "" {
		return nil, nil
	}
	fi, err := os.Stat(theConfigFile)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%w. config file is a directory. file=%s", ErrInvalidParams, theConfigFile)
	}
	return os.ReadFile(theConfigFile)
}

func OsExitAndWaitPressIfWindows(code int) {
	if runtime.GOOS == "windows" {
		_, _ = fmt.Fprintf(os.Stderr, "Press Enter to exit...")
		r := bufio.NewReader(os.Stdin)
		_, _ = r.ReadByte()
	}
	os.Exit(code)
}

func init() {
	startTime = ReadableNowTime()
}
