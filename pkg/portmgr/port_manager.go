// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalmeet
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package portmgr

import (
	"fmt"
	"sort"
	"sync"

	"github.com/q191201771/lalmeet/pkg/base"
	"github.com/q191201771/naza/pkg/nazanet"
)

// PortManager 从一段本地UDP端口范围内分配端口
//
// 整个进程只应该有一个实例，由调用方创建后注入给需要分配端口的模块。
// 端口要么在 available 中，要么在 inUse 中。
// available 为空时，会把 inUse 中的所有端口放回 available ，
// 所以端口可能在之前的持有者还未释放时被再次分配
type PortManager struct {
	uniqueKey string

	mu        sync.Mutex
	inited    bool
	available []uint16
	inUse     map[uint16]struct{}

	probe func(port uint16) bool
}

type ModPortManagerOption func(pm *PortManager)

// WithProbe 替换默认的绑定探测
func WithProbe(probe func(port uint16) bool) ModPortManagerOption {
	return func(pm *PortManager) {
		pm.probe = probe
	}
}

func NewPortManager(modOptions ...ModPortManagerOption) *PortManager {
	pm := &PortManager{
		uniqueKey: base.GenUkPortManager(),
		inUse:     make(map[uint16]struct{}),
		probe:     probeUdpPort,
	}
	for _, fn := range modOptions {
		fn(pm)
	}
	return pm
}

// Init 端口范围为 [start, end)，只能调用一次
func (pm *PortManager) Init(start, end uint16) error {
	if end <= start {
		return fmt.Errorf("%w. invalid port range. start=%d, end=%d", base.ErrInvalidParams, start, end)
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.inited {
		return base.ErrPortPoolInited
	}
	pm.available = make([]uint16, 0, int(end)-int(start))
	for p := start; p < end; p++ {
		pm.available = append(pm.available, p)
	}
	pm.inited = true
	Log.Infof("[%s] init udp port pool. range=[%d, %d)", pm.uniqueKey, start, end)
	return nil
}

// GetUdpPort 取出一个当前可绑定的端口
//
// 探测失败的端口也会移到 inUse 中，然后尝试下一个
func (pm *PortManager) GetUdpPort() (uint16, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if !pm.inited {
		return 0, base.ErrPortPoolNotInit
	}

	if len(pm.available) == 0 {
		pm.refill()
	}

	for len(pm.available) > 0 {
		port := pm.available[0]
		pm.available = pm.available[1:]
		pm.inUse[port] = struct{}{}

		if pm.probe(port) {
			Log.Debugf("[%s] get udp port. port=%d", pm.uniqueKey, port)
			return port, nil
		}
		Log.Debugf("[%s] udp port not available. port=%d", pm.uniqueKey, port)
	}

	pm.refill()
	Log.Warnf("[%s] udp port pool exhausted.", pm.uniqueKey)
	return 0, base.ErrPortExhausted
}

// ReleasePort 端口不在 inUse 中时返回false
func (pm *PortManager) ReleasePort(port uint16) bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if _, ok := pm.inUse[port]; !ok {
		return false
	}
	delete(pm.inUse, port)
	pm.available = append(pm.available, port)
	return true
}

// Snapshot 返回两个集合的拷贝，inUse 按端口排序
func (pm *PortManager) Snapshot() (available []uint16, inUse []uint16) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	available = append(available, pm.available...)
	for p := range pm.inUse {
		inUse = append(inUse, p)
	}
	sort.Slice(inUse, func(i, j int) bool { return inUse[i] < inUse[j] })
	return
}

// refill 按端口顺序把 inUse 放回 available
func (pm *PortManager) refill() {
	ports := make([]uint16, 0, len(pm.inUse))
	for p := range pm.inUse {
		ports = append(ports, p)
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i] < ports[j] })
	pm.available = append(pm.available, ports...)
	pm.inUse = make(map[uint16]struct{})
}

// probeUdpPort 绑定后立即关闭，能绑定成功则认为端口空闲
func probeUdpPort(port uint16) bool {
	conn, err := nazanet.NewUdpConnection(func(option *nazanet.UdpConnectionOption) {
		option.LAddr = fmt.Sprintf("0.0.0.0:%d", port)
	})
	if err != nil {
		return false
	}
	_ = conn.Dispose()
	return true
}
