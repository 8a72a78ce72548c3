// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalmeet
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import (
	"errors"
	"fmt"
)

// ----- 通用的 ---------------------------------------------------------------------------------------------------------

var (
	ErrShortBuffer   = errors.New("lalmeet: buffer too short")
	ErrInvalidParams = errors.New("lalmeet: invalid params")
)

// ----- pkg/aac -------------------------------------------------------------------------------------------------------

var ErrAdts = errors.New("lalmeet.aac: invalid adts header")

// ----- pkg/avc -------------------------------------------------------------------------------------------------------

var ErrAvc = errors.New("lalmeet.avc: fxxk")

// ----- pkg/rtprtcp ---------------------------------------------------------------------------------------------------

var (
	ErrRtpShortBuffer     = errors.New("lalmeet.rtprtcp: buffer too short")
	ErrRtpVersion         = errors.New("lalmeet.rtprtcp: invalid rtp version")
	ErrRtpNoExtension     = errors.New("lalmeet.rtprtcp: rtp extension header missing")
	ErrRtpExtensionLength = errors.New("lalmeet.rtprtcp: invalid rtp extension length")
	ErrRtpPaddingLength   = errors.New("lalmeet.rtprtcp: invalid rtp padding length")
	ErrRtpPayloadLength   = errors.New("lalmeet.rtprtcp: invalid rtp payload length")

	ErrPacketizerOverflow = errors.New("lalmeet.rtprtcp: packetizer buffer overflow")
	ErrAssemblerOverflow  = errors.New("lalmeet.rtprtcp: assembler buffer overflow")
	ErrAssemblerInvalid   = errors.New("lalmeet.rtprtcp: invalid h264 rtp payload")
)

func NewErrRtpShortBuffer(need, actual int) error {
	return fmt.Errorf("%w. need=%d, actual=%d", ErrRtpShortBuffer, need, actual)
}

func NewErrPacketizerOverflow(need, capacity int) error {
	return fmt.Errorf("%w. need=%d, capacity=%d", ErrPacketizerOverflow, need, capacity)
}

// ----- pkg/udptrans --------------------------------------------------------------------------------------------------

var (
	ErrTransmitterNotInit = errors.New("lalmeet.udptrans: transmitter not initialized")
)

// ----- pkg/portmgr ---------------------------------------------------------------------------------------------------

var (
	ErrPortExhausted   = errors.New("lalmeet.portmgr: no available udp port")
	ErrPortPoolNotInit = errors.New("lalmeet.portmgr: port pool not initialized")
	ErrPortPoolInited  = errors.New("lalmeet.portmgr: port pool already initialized")
)

// ----- pkg/rtpsession ------------------------------------------------------------------------------------------------

var ErrSessionNotInit = errors.New("lalmeet.rtpsession: session not initialized")

// ----- pkg/room ------------------------------------------------------------------------------------------------------

var (
	ErrSignalNotInit           = errors.New("lalmeet.room: signal sender not set")
	ErrSignalRateLimited       = errors.New("lalmeet.room: reach max signal api limit")
	ErrSignalSendFailed        = errors.New("lalmeet.room: send signal failed")
	ErrConferenceAlreadyJoined = errors.New("lalmeet.room: conference already joined")
	ErrConferenceNotJoined     = errors.New("lalmeet.room: conference not joined")
	ErrUnknownSsrc             = errors.New("lalmeet.room: ssrc matches neither video nor audio")
)

// ----- pkg/recorder --------------------------------------------------------------------------------------------------

var ErrRecorderClosed = errors.New("lalmeet.recorder: recorder already closed")

// ---------------------------------------------------------------------------------------------------------------------
