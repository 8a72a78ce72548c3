// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalmeet
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package avc

import (
	"github.com/q191201771/naza/pkg/bele"
)

var (
	NaluStartCode3 = []byte{0x0, 0x0, 0x1}
	NaluStartCode4 = []byte{0x0, 0x0, 0x0, 0x1}
)

var NaluTypeMapping = map[uint8]string{
	NaluTypeSlice:    "SLICE",
	NaluTypeIdrSlice: "IDR",
	NaluTypeSei:      "SEI",
	NaluTypeSps:      "SPS",
	NaluTypePps:      "PPS",
	NaluTypeAud:      "AUD",
}

const (
	NaluTypeSlice    uint8 = 1
	NaluTypeIdrSlice uint8 = 5
	NaluTypeSei      uint8 = 6
	NaluTypeSps      uint8 = 7
	NaluTypePps      uint8 = 8
	NaluTypeAud      uint8 = 9
)

func CalcNaluType(nalu []byte) uint8 {
	return nalu[0] & 0x1f
}

func CalcNaluTypeReadable(nalu []byte) string {
	ret, ok := NaluTypeMapping[CalcNaluType(nalu)]
	if !ok {
		return "unknown"
	}
	return ret
}

// FindStartCode 从 pos 位置开始查找下一个起始码
//
// @return 起始码(3字节或4字节)首字节的位置，找不到时返回 len(b)
//
// 找到的是3字节起始码，且前一个字节为0时，返回前一个字节的位置，即4字节起始码的位置
func FindStartCode(b []byte, pos int) int {
	out := findStartCode(b, pos)
	if pos < out && out < len(b) && b[out-1] == 0 {
		out--
	}
	return out
}

// IterateNaluAnnexb 遍历Annex-B格式的字节流中的所有nalu
//
// 回调中的 nal 不包含起始码，引用的是 b 的内存块
// 第一个起始码之前的数据被忽略；不包含任何起始码时，不回调
func IterateNaluAnnexb(b []byte, handler func(nal []byte)) {
	n := len(b)
	start := FindStartCode(b, 0)
	for {
		for start < n {
			c := b[start]
			start++
			if c != 0 {
				break
			}
		}
		if start >= n {
			break
		}
		end := FindStartCode(b, start)
		handler(b[start:end])
		start = end
	}
}

func SplitNaluAnnexb(b []byte) [][]byte {
	var ret [][]byte
	IterateNaluAnnexb(b, func(nal []byte) {
		ret = append(ret, nal)
	})
	return ret
}

// ---------------------------------------------------------------------------------------------------------------------

// findStartCode 查找 00 00 01
//
// 按4字节对齐后，每次读取4个字节，先判断其中是否存在为0的字节，存在时再逐个位置比较
func findStartCode(b []byte, pos int) int {
	n := len(b)
	p := pos

	aligned := pos + 4 - (pos & 3)
	for ; p < aligned && p < n-3; p++ {
		if b[p] == 0 && b[p+1] == 0 && b[p+2] == 1 {
			return p
		}
	}

	for ; p < n-6; p += 4 {
		x := bele.LeUint32(b[p:])
		if (x-0x01010101)&^x&0x80808080 == 0 {
			continue
		}
		if b[p+1] == 0 {
			if b[p] == 0 && b[p+2] == 1 {
				return p
			}
			if b[p+2] == 0 && b[p+3] == 1 {
				return p + 1
			}
		}
		if b[p+3] == 0 {
			if b[p+2] == 0 && b[p+4] == 1 {
				return p + 2
			}
			if b[p+4] == 0 && b[p+5] == 1 {
				return p + 3
			}
		}
	}

	for ; p < n-3; p++ {
		if b[p] == 0 && b[p+1] == 0 && b[p+2] == 1 {
			return p
		}
	}
	return n
}
