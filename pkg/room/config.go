// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalmeet
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package room

import (
	"encoding/json"
	"time"

	"github.com/q191201771/lalmeet/pkg/base"
	"github.com/q191201771/naza/pkg/nazajson"
	"github.com/q191201771/naza/pkg/nazalog"
)

const ConfVersion = "v0.1.0"

const (
	defaultPortRangeStart       = 30000
	defaultPortRangeEnd         = 40000
	defaultReceiveTickMs        = 4
	defaultReceiveTimeoutUs     = 5
	defaultReceiveReorderLen    = 5
	defaultPinholeEveryTicks    = 2000
	defaultSignalMinIntervalSec = 6
	defaultRecordOutPath        = "./record"
	defaultLogFilename          = "./logs/lalmeet.log"
)

type Config struct {
	ConfVersion string          `json:"conf_version"`
	PortRange   PortRangeConfig `json:"port_range"`
	Receive     ReceiveConfig   `json:"receive"`
	Signal      SignalConfig    `json:"signal"`
	Record      RecordConfig    `json:"record"`
	Log         nazalog.Option  `json:"log"`
}

// PortRangeConfig 接收端口的范围 [start, end)
type PortRangeConfig struct {
	Start uint16 `json:"start"`
	End   uint16 `json:"end"`
}

type ReceiveConfig struct {
	BindIp            string `json:"bind_ip"`
	TickMs            int    `json:"tick_ms"`
	TimeoutUs         int    `json:"timeout_us"`
	Reorder           bool   `json:"reorder"`
	ReorderLen        int    `json:"reorder_len"`
	PinholeEveryTicks int    `json:"pinhole_every_ticks"`
	DumpPath          string `json:"dump_path"` // 不为空时，把每个接收会话收到的udp包写入该目录
}

type SignalConfig struct {
	MinIntervalSec int `json:"min_interval_sec"`
}

type RecordConfig struct {
	Enable  bool   `json:"enable"`
	OutPath string `json:"out_path"`
}

func DefaultConfig() Config {
	return Config{
		ConfVersion: ConfVersion,
		PortRange: PortRangeConfig{
			Start: defaultPortRangeStart,
			End:   defaultPortRangeEnd,
		},
		Receive: ReceiveConfig{
			TickMs:            defaultReceiveTickMs,
			TimeoutUs:         defaultReceiveTimeoutUs,
			Reorder:           true,
			ReorderLen:        defaultReceiveReorderLen,
			PinholeEveryTicks: defaultPinholeEveryTicks,
		},
		Signal: SignalConfig{
			MinIntervalSec: defaultSignalMinIntervalSec,
		},
		Record: RecordConfig{
			Enable:  false,
			OutPath: defaultRecordOutPath,
		},
		Log: nazalog.Option{
			Level:         nazalog.LevelDebug,
			Filename:      defaultLogFilename,
			IsToStdout:    true,
			IsRotateDaily: true,
			ShortFileFlag: true,
		},
	}
}

func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Receive.TickMs) * time.Millisecond
}

func (c *Config) ReceiveTimeout() time.Duration {
	return time.Duration(c.Receive.TimeoutUs) * time.Microsecond
}

func (c *Config) SignalMinInterval() time.Duration {
	return time.Duration(c.Signal.MinIntervalSec) * time.Second
}

// LoadConfFile 加载配置文件，文件中不存在的字段使用默认值
//
// @param confFile: 为空时返回默认配置
func LoadConfFile(confFile string) (*Config, error) {
	config := DefaultConfig()
	rawContent, err := base.ReadConfigFile(confFile)
	if err != nil {
		return nil, err
	}
	if rawContent == nil {
		return &config, nil
	}
	return ParseConf(rawContent)
}

func ParseConf(rawContent []byte) (*Config, error) {
	var config Config
	if err := json.Unmarshal(rawContent, &config); err != nil {
		return nil, err
	}
	j, err := nazajson.New(rawContent)
	if err != nil {
		return nil, err
	}

	dc := DefaultConfig()
	if !j.Exist("conf_version") {
		config.ConfVersion = dc.ConfVersion
	} else if config.ConfVersion != ConfVersion {
		Log.Warnf("config version mismatch. conf=%s, expected=%s", config.ConfVersion, ConfVersion)
	}
	if !j.Exist("port_range.start") {
		config.PortRange.Start = dc.PortRange.Start
	}
	if !j.Exist("port_range.end") {
		config.PortRange.End = dc.PortRange.End
	}
	if !j.Exist("receive.tick_ms") {
		config.Receive.TickMs = dc.Receive.TickMs
	}
	if !j.Exist("receive.timeout_us") {
		config.Receive.TimeoutUs = dc.Receive.TimeoutUs
	}
	if !j.Exist("receive.reorder") {
		config.Receive.Reorder = dc.Receive.Reorder
	}
	if !j.Exist("receive.reorder_len") {
		config.Receive.ReorderLen = dc.Receive.ReorderLen
	}
	if !j.Exist("receive.pinhole_every_ticks") {
		config.Receive.PinholeEveryTicks = dc.Receive.PinholeEveryTicks
	}
	if !j.Exist("signal.min_interval_sec") {
		config.Signal.MinIntervalSec = dc.Signal.MinIntervalSec
	}
	if !j.Exist("record.out_path") {
		config.Record.OutPath = dc.Record.OutPath
	}
	if !j.Exist("log.level") {
		config.Log.Level = dc.Log.Level
	}
	if !j.Exist("log.filename") {
		config.Log.Filename = dc.Log.Filename
	}
	if !j.Exist("log.is_to_stdout") {
		config.Log.IsToStdout = dc.Log.IsToStdout
	}
	if !j.Exist("log.is_rotate_daily") {
		config.Log.IsRotateDaily = dc.Log.IsRotateDaily
	}
	if !j.Exist("log.short_file_flag") {
		config.Log.ShortFileFlag = dc.Log.ShortFileFlag
	}

	if config.PortRange.End <= config.PortRange.Start {
		return nil, base.ErrInvalidParams
	}
	if config.Receive.TickMs <= 0 || config.Receive.PinholeEveryTicks <= 0 {
		return nil, base.ErrInvalidParams
	}
	return &config, nil
}
