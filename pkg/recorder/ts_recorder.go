// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalmeet
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package recorder

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/asticode/go-astits"
	"github.com/q191201771/lalmeet/pkg/aac"
	"github.com/q191201771/lalmeet/pkg/avc"
	"github.com/q191201771/lalmeet/pkg/base"
	"github.com/q191201771/naza/pkg/nazaerrors"
)

const (
	PidVideo uint16 = 0x100
	PidAudio uint16 = 0x101

	streamIdVideo uint8 = 0xE0
	streamIdAudio uint8 = 0xC0
)

// TsRecorder 把收到的h264和aac写入mpegts文件
//
// 时间戳使用rtp包头中的毫秒时间戳，以收到的第一帧为0点，换算成90khz
type TsRecorder struct {
	uniqueKey string
	filename  string

	mu     sync.Mutex
	file   *os.File
	bw     *bufio.Writer
	muxer  *astits.Muxer
	closed bool

	hasBaseTs bool
	baseTs    uint32

	videoFrameCount int
	audioFrameCount int
}

func NewTsRecorder(filename string) (*TsRecorder, error) {
	uk := base.GenUkTsRecorder()
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return nil, err
	}
	fp, err := os.Create(filename)
	if err != nil {
		return nil, err
	}

	r := &TsRecorder{
		uniqueKey: uk,
		filename:  filename,
		file:      fp,
		bw:        bufio.NewWriter(fp),
	}
	r.muxer = astits.NewMuxer(context.Background(), r.bw)
	if err = r.muxer.AddElementaryStream(astits.PMTElementaryStream{
		ElementaryPID: PidVideo,
		StreamType:    astits.StreamTypeH264Video,
	}); err != nil {
		_ = fp.Close()
		return nil, err
	}
	if err = r.muxer.AddElementaryStream(astits.PMTElementaryStream{
		ElementaryPID: PidAudio,
		StreamType:    astits.StreamTypeAACAudio,
	}); err != nil {
		_ = fp.Close()
		return nil, err
	}
	r.muxer.SetPCRPID(PidVideo)

	Log.Infof("[%s] lifecycle new ts recorder. filename=%s", uk, filename)
	return r, nil
}

// WriteAvc
//
// @param annexb: 一个完整的access unit
func (r *TsRecorder) WriteAvc(annexb []byte, timestamp uint32) error {
	isKey := false
	avc.IterateNaluAnnexb(annexb, func(nal []byte) {
		if len(nal) > 0 && avc.CalcNaluType(nal) == avc.NaluTypeIdrSlice {
			isKey = true
		}
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return base.ErrRecorderClosed
	}
	pts := r.calcPts(timestamp)
	af := &astits.PacketAdaptationField{
		RandomAccessIndicator: isKey,
		HasPCR:                true,
		PCR:                   &astits.ClockReference{Base: pts},
	}
	if err := r.write(PidVideo, streamIdVideo, af, pts, annexb); err != nil {
		return err
	}
	r.videoFrameCount++
	return nil
}

// WriteAac
//
// @param adts: 带ADTS头的音频数据，可以包含多帧
func (r *TsRecorder) WriteAac(adts []byte, timestamp uint32) error {
	var frames int
	if err := aac.IterateAdtsFrame(adts, func(frame []byte) {
		frames++
	}); err != nil {
		return err
	}
	if frames == 0 {
		return fmt.Errorf("%w. no complete adts frame. len=%d", base.ErrAdts, len(adts))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return base.ErrRecorderClosed
	}
	pts := r.calcPts(timestamp)
	if err := r.write(PidAudio, streamIdAudio, nil, pts, adts); err != nil {
		return err
	}
	r.audioFrameCount += frames
	return nil
}

func (r *TsRecorder) Filename() string {
	return r.filename
}

func (r *TsRecorder) Dispose() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	Log.Infof("[%s] lifecycle dispose ts recorder. video=%d, audio=%d", r.uniqueKey, r.videoFrameCount, r.audioFrameCount)
	return nazaerrors.CombineErrors(r.bw.Flush(), r.file.Close())
}

// ---------------------------------------------------------------------------------------------------------------------

func (r *TsRecorder) calcPts(timestamp uint32) int64 {
	if !r.hasBaseTs {
		r.hasBaseTs = true
		r.baseTs = timestamp
	}
	// 早于首帧的时间戳按差值的有符号值处理，最小为0
	diff := int64(int32(timestamp - r.baseTs))
	if diff < 0 {
		return 0
	}
	return diff * 90
}

func (r *TsRecorder) write(pid uint16, streamId uint8, af *astits.PacketAdaptationField, pts int64, data []byte) error {
	_, err := r.muxer.WriteData(&astits.MuxerData{
		PID:             pid,
		AdaptationField: af,
		PES: &astits.PESData{
			Header: &astits.PESHeader{
				OptionalHeader: &astits.PESOptionalHeader{
					MarkerBits:      2,
					PTSDTSIndicator: astits.PTSDTSIndicatorOnlyPTS,
					PTS:             &astits.ClockReference{Base: pts},
				},
				StreamID: streamId,
			},
			Data: data,
		},
	})
	if err != nil {
		Log.Warnf("[%s] write ts failed. pid=%d, err=%+v", r.uniqueKey, pid, err)
	}
	return err
}
