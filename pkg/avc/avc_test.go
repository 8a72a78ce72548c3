// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalmeet
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package avc_test

import (
	"bytes"
	"testing"

	"github.com/q191201771/lalmeet/pkg/avc"
	"github.com/q191201771/naza/pkg/assert"
)

// 逐字节查找，用于和 avc.FindStartCode 的结果对比
func naiveFindStartCode(b []byte, pos int) int {
	for p := pos; p < len(b)-3; p++ {
		if b[p] == 0 && b[p+1] == 0 && b[p+2] == 1 {
			if p > pos && b[p-1] == 0 {
				return p - 1
			}
			return p
		}
	}
	return len(b)
}

func TestFindStartCode(t *testing.T) {
	assert.Equal(t, 0, avc.FindStartCode([]byte{0, 0, 0, 1, 0x65}, 0))
	assert.Equal(t, 0, avc.FindStartCode([]byte{0, 0, 1, 0x65}, 0))
	assert.Equal(t, 2, avc.FindStartCode([]byte{0x11, 0x22, 0, 0, 1, 0x65}, 0))
	assert.Equal(t, 1, avc.FindStartCode([]byte{0x11, 0, 0, 0, 1, 0x65}, 0))
	assert.Equal(t, 5, avc.FindStartCode([]byte{1, 2, 3, 4, 5}, 0))
	assert.Equal(t, 0, avc.FindStartCode(nil, 0))

	// 每个对齐位置上都放一个起始码
	for offset := 0; offset < 12; offset++ {
		b := bytes.Repeat([]byte{0xAB}, 32)
		copy(b[offset:], []byte{0, 0, 1, 0x41})
		assert.Equal(t, offset, avc.FindStartCode(b, 0))
		assert.Equal(t, naiveFindStartCode(b, 0), avc.FindStartCode(b, 0))
	}

	// 伪随机数据，大量0字节
	b := make([]byte, 4096)
	var seed uint32 = 7
	for i := range b {
		seed = seed*1103515245 + 12345
		switch (seed >> 16) % 4 {
		case 0, 1:
			b[i] = 0
		case 2:
			b[i] = 1
		default:
			b[i] = byte(seed >> 8)
		}
	}
	for pos := 0; pos < len(b); pos += 13 {
		assert.Equal(t, naiveFindStartCode(b, pos), avc.FindStartCode(b, pos))
	}
}

func TestSplitNaluAnnexb(t *testing.T) {
	sps := []byte{0x67, 0x42, 0xC0, 0x1F}
	pps := []byte{0x68, 0xCE, 0x3C, 0x80}
	idr := []byte{0x65, 0x88, 0x84, 0x00, 0x33}

	var b []byte
	b = append(b, avc.NaluStartCode4...)
	b = append(b, sps...)
	b = append(b, avc.NaluStartCode3...)
	b = append(b, pps...)
	b = append(b, avc.NaluStartCode4...)
	b = append(b, idr...)

	nals := avc.SplitNaluAnnexb(b)
	assert.Equal(t, 3, len(nals))
	assert.Equal(t, sps, nals[0])
	assert.Equal(t, pps, nals[1])
	assert.Equal(t, idr, nals[2])

	assert.Equal(t, avc.NaluTypeSps, avc.CalcNaluType(nals[0]))
	assert.Equal(t, "PPS", avc.CalcNaluTypeReadable(nals[1]))
	assert.Equal(t, "IDR", avc.CalcNaluTypeReadable(nals[2]))

	// 起始码前的垃圾数据被忽略
	nals = avc.SplitNaluAnnexb(append([]byte{0x12, 0x34}, b...))
	assert.Equal(t, 3, len(nals))

	// 没有起始码
	assert.Equal(t, 0, len(avc.SplitNaluAnnexb([]byte{0x65, 0x11, 0x22})))

	// 只有起始码
	assert.Equal(t, 0, len(avc.SplitNaluAnnexb([]byte{0, 0, 0, 1})))
}
