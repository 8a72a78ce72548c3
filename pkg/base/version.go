// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalmeet
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

// 版本，该变量由外部脚本修改维护
const LalMeetVersion = "v0.3.0"

var (
	LalMeetLibraryName = "lalmeet"
	LalMeetGithubRepo  = "github.com/q191201771/lalmeet"

	// e.g. lalmeet v0.3.0 (github.com/q191201771/lalmeet)
	LalMeetFullInfo = LalMeetLibraryName + " " + LalMeetVersion + " (" + LalMeetGithubRepo + ")"
)
