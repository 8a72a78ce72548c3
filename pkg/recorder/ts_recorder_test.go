// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalmeet
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package recorder_test

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/asticode/go-astits"
	"github.com/q191201771/lalmeet/pkg/avc"
	"github.com/q191201771/lalmeet/pkg/base"
	"github.com/q191201771/lalmeet/pkg/recorder"
	"github.com/q191201771/naza/pkg/assert"
)

func TestTsRecorder(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "out", "user1.ts")
	r, err := recorder.NewTsRecorder(filename)
	assert.Equal(t, nil, err)
	assert.Equal(t, filename, r.Filename())

	var au []byte
	for _, nal := range [][]byte{{0x67, 0x42, 0x00, 0x1F}, {0x68, 0xCE, 0x3C, 0x80}, {0x65, 0x88, 0x84, 0x00, 0x10}} {
		au = append(au, avc.NaluStartCode4...)
		au = append(au, nal...)
	}
	adts := []byte{0xFF, 0xF1, 0x50, 0x80, 0x01, 0x3F, 0xFC, 0x21, 0x00}

	assert.Equal(t, nil, r.WriteAvc(au, 1000))
	assert.Equal(t, nil, r.WriteAac(adts, 1020))
	assert.Equal(t, nil, r.WriteAvc(au, 1040))
	assert.IsNotNil(t, r.WriteAac([]byte{1, 2, 3, 4, 5, 6, 7, 8}, 1060))
	assert.IsNotNil(t, r.WriteAac(adts[:8], 1060))
	assert.Equal(t, nil, r.Dispose())
	assert.Equal(t, nil, r.Dispose())
	assert.Equal(t, base.ErrRecorderClosed, r.WriteAvc(au, 1080))

	fp, err := os.Open(filename)
	assert.Equal(t, nil, err)
	defer fp.Close()

	dmx := astits.NewDemuxer(context.Background(), bufio.NewReader(fp))
	var videoPts []int64
	var audioPts []int64
	var videoData [][]byte
	var hasVideoStream, hasAudioStream bool
	for {
		d, err := dmx.NextData()
		if err != nil {
			assert.Equal(t, true, errors.Is(err, astits.ErrNoMorePackets))
			break
		}
		if d.PMT != nil {
			for _, es := range d.PMT.ElementaryStreams {
				switch {
				case es.ElementaryPID == recorder.PidVideo && es.StreamType == astits.StreamTypeH264Video:
					hasVideoStream = true
				case es.ElementaryPID == recorder.PidAudio && es.StreamType == astits.StreamTypeAACAudio:
					hasAudioStream = true
				}
			}
		}
		if d.PES == nil {
			continue
		}
		pts := d.PES.Header.OptionalHeader.PTS.Base
		switch d.FirstPacket.Header.PID {
		case recorder.PidVideo:
			videoPts = append(videoPts, pts)
			videoData = append(videoData, d.PES.Data)
		case recorder.PidAudio:
			audioPts = append(audioPts, pts)
			assert.Equal(t, adts, d.PES.Data)
		}
	}
	assert.Equal(t, true, hasVideoStream)
	assert.Equal(t, true, hasAudioStream)
	assert.Equal(t, []int64{0, 40 * 90}, videoPts)
	assert.Equal(t, []int64{20 * 90}, audioPts)
	assert.Equal(t, au, videoData[0])
}

func TestTsRecorder_EarlierTimestamp(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "user2.ts")
	r, err := recorder.NewTsRecorder(filename)
	assert.Equal(t, nil, err)

	au := append(append([]byte{}, avc.NaluStartCode4...), 0x65, 0x88, 0x84, 0x00, 0x10)
	adts := []byte{0xFF, 0xF1, 0x50, 0x80, 0x01, 0x3F, 0xFC, 0x21, 0x00}

	// 音频比首个视频帧早10毫秒
	assert.Equal(t, nil, r.WriteAvc(au, 100000))
	assert.Equal(t, nil, r.WriteAac(adts, 99990))
	assert.Equal(t, nil, r.WriteAac(adts, 100010))
	assert.Equal(t, nil, r.Dispose())

	fp, err := os.Open(filename)
	assert.Equal(t, nil, err)
	defer fp.Close()

	dmx := astits.NewDemuxer(context.Background(), bufio.NewReader(fp))
	var audioPts []int64
	for {
		d, err := dmx.NextData()
		if err != nil {
			break
		}
		if d.PES != nil && d.FirstPacket.Header.PID == recorder.PidAudio {
			audioPts = append(audioPts, d.PES.Header.OptionalHeader.PTS.Base)
		}
	}
	assert.Equal(t, []int64{0, 10 * 90}, audioPts)
}
