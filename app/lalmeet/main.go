// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalmeet
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/q191201771/lalmeet/pkg/base"
	"github.com/q191201771/lalmeet/pkg/portmgr"
	"github.com/q191201771/lalmeet/pkg/room"
	"github.com/q191201771/naza/pkg/bininfo"
	log "github.com/q191201771/naza/pkg/nazalog"
)

const signalTimeout = 3 * time.Second

func main() {
	defer func() {
		log.Info("bye.")
		log.Sync()
	}()

	confFile, duration, fps := parseFlag()
	config := loadConf(confFile)
	initLog(config.Log)
	base.LogoutStartInfo()

	pm := portmgr.NewPortManager()
	if err := pm.Init(config.PortRange.Start, config.PortRange.End); err != nil {
		log.Errorf("init port manager failed. err=%+v", err)
		base.OsExitAndWaitPressIfWindows(1)
	}

	server := newSignalServer()
	alice := newPeer("alice", server, pm, *config)
	bob := newPeer("bob", server, pm, *config)

	if err := setupConference(alice, bob); err != nil {
		log.Errorf("setup conference failed. err=%+v", err)
		alice.Dispose()
		bob.Dispose()
		server.Dispose()
		base.OsExitAndWaitPressIfWindows(1)
	}

	stop := make(chan struct{})
	go alice.runProducer(fps, stop)
	go bob.runProducer(fps, stop)

	exitChan := make(chan struct{})
	go base.RunSignalHandler(func() {
		close(exitChan)
	})
	var timeoutChan <-chan time.Time
	if duration > 0 {
		timeoutChan = time.After(duration)
	}

	statTicker := time.NewTicker(5 * time.Second)
	defer statTicker.Stop()
loop:
	for {
		select {
		case <-statTicker.C:
			logoutStat(alice, bob)
		case <-exitChan:
			break loop
		case <-timeoutChan:
			break loop
		}
	}

	close(stop)
	logoutStat(alice, bob)
	teardownConference(alice, bob)
	alice.Dispose()
	bob.Dispose()
	server.Dispose()
}

// setupConference alice创建会议，bob加入，然后互相拉流
func setupConference(alice, bob *peer) error {
	if err := alice.room.SignalCreateConference("1", alice.name); err != nil {
		return err
	}
	created, err := alice.waitEvent(room.EventConferenceCreated, signalTimeout)
	if err != nil {
		return err
	}
	log.Infof("conference created. id=%s", created.ConferenceId)

	if err = bob.room.SignalJoinConference(created.ConferenceId, "2", bob.name); err != nil {
		return err
	}
	if _, err = bob.waitEvent(room.EventConferenceJoined, signalTimeout); err != nil {
		return err
	}

	if err = alice.pullAll(signalTimeout); err != nil {
		return err
	}
	return bob.pullAll(signalTimeout)
}

func teardownConference(alice, bob *peer) {
	if err := bob.room.SignalExitConference(); err != nil {
		log.Warnf("bob exit failed. err=%+v", err)
	} else if _, err = bob.waitEvent(room.EventConferenceExit, signalTimeout); err != nil {
		log.Warnf("%+v", err)
	}

	if err := alice.room.SignalStopConference(); err != nil {
		log.Warnf("alice stop failed. err=%+v", err)
	} else if _, err = alice.waitEvent(room.EventConferenceStopped, signalTimeout); err != nil {
		log.Warnf("%+v", err)
	}
}

func logoutStat(peers ...*peer) {
	for _, p := range peers {
		stat := p.room.GetStat()
		b, _ := json.Marshal(stat)
		log.Infof("[%s] recv video=%d, audio=%d, bytes=%d. stat=%s",
			p.name, p.recvVideo.Load(), p.recvAudio.Load(), p.recvBytes.Load(), string(b))
	}
}

func parseFlag() (confFile string, duration time.Duration, fps int) {
	binInfoFlag := flag.Bool("v", false, "show bin info")
	cf := flag.String("c", "", "specify conf file, use default config if empty")
	d := flag.Duration("t", 0, "run duration, 0 means until signal")
	f := flag.Int("fps", 25, "video frame rate of the synthetic stream")
	flag.Parse()
	if *binInfoFlag {
		_, _ = fmt.Fprint(os.Stderr, bininfo.StringifyMultiLine())
		_, _ = fmt.Fprintln(os.Stderr, base.LalMeetFullInfo)
		os.Exit(0)
	}
	if *f <= 0 {
		flag.Usage()
		_, _ = fmt.Fprintf(os.Stderr, `
Example:
  %s -c %s -t 30s
`, os.Args[0], "./conf/lalmeet.conf.json")
		base.OsExitAndWaitPressIfWindows(1)
	}
	return *cf, *d, *f
}

func loadConf(confFile string) *room.Config {
	config, err := room.LoadConfFile(confFile)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load conf failed. file=%s err=%+v\n", confFile, err)
		base.OsExitAndWaitPressIfWindows(1)
	}
	return config
}

func initLog(opt log.Option) {
	if err := log.Init(func(option *log.Option) {
		*option = opt
	}); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "initial log failed. err=%+v\n", err)
		base.OsExitAndWaitPressIfWindows(1)
	}
	log.Info("initial log succ.")
}
