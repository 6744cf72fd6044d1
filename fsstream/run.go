// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/NVIDIA/fsstream/blunder"
	"github.com/NVIDIA/fsstream/conf"
	"github.com/NVIDIA/fsstream/halter"
	"github.com/NVIDIA/fsstream/logger"
	"github.com/NVIDIA/fsstream/metrics"
	"github.com/NVIDIA/fsstream/resultstore"
	"github.com/NVIDIA/fsstream/runmgr"
	"github.com/NVIDIA/fsstream/stream"
	"github.com/NVIDIA/fsstream/utils"
)

const (
	failureWarningInterval = 10 * time.Second
	failureWarningBurst    = 5
)

func newRunCmd() (runCmd *cobra.Command) {
	var (
		dumpConfPath string
	)

	runCmd = &cobra.Command{
		Use:   "run <conf file> [<section>.<option>=<value>...]",
		Short: "Run the writers described by a conf file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			var (
				confMap conf.ConfMap
			)

			confMap, err = conf.MakeConfMapFromFile(args[0])
			if nil != err {
				return
			}

			err = confMap.UpdateFromStrings(args[1:])
			if nil != err {
				return
			}

			if "" != dumpConfPath {
				err = confMap.DumpConfMapToFile(dumpConfPath, 0644)
				if nil != err {
					return
				}
			}

			_, err = runFromConfMap(confMap, cmd.OutOrStdout())
			return
		},
	}

	runCmd.Flags().StringVar(&dumpConfPath, "dump-conf", "", "write the effective conf (file plus overrides) to this path before running")

	return
}

// runSetup is everything built from a ConfMap before Execute().
type runSetup struct {
	runManager    *runmgr.RunManager
	writerNames   []string
	store         *resultstore.Store
	collector     *metrics.Collector
	metricsServer *metrics.Server
}

// runFromConfMap brings up logging and fault injection, performs one run,
// prints each writer's Summary to out, and tears everything back down.
//
//   [FSStream]
//   TargetDir:            <path>      ; default for writers without their own
//   ResultPath:           <path>      ; bbolt database; empty -> results not persisted
//   RunName:              <name>      ; empty -> <UTC timestamp>-<uuid>
//   MemorySampleInterval: <duration>  ; default 1s
//   MetricsHTTPAddr:      <host:port> ; empty -> no /metrics endpoint
//   WriterList:           <name> ...  ; each has a [Writer:<name>] section
//
func runFromConfMap(confMap conf.ConfMap, out io.Writer) (runResult runmgr.RunResult, err error) {
	var (
		setup *runSetup
	)

	err = logger.Up(confMap)
	if nil != err {
		return
	}
	defer func() {
		_ = logger.Down()
	}()

	err = halter.Up(confMap)
	if nil != err {
		return
	}
	defer func() {
		_ = halter.Down()
	}()

	setup, err = newRunSetup(confMap)
	if nil != err {
		logger.ErrorfWithError(err, "run setup failed")
		return
	}
	defer setup.close()

	stopSignalLogger := logSignals(setup.runManager)
	defer stopSignalLogger()

	logger.Infof("run %s: %d writers for %v", setup.runManager.Name(), len(setup.writerNames), setup.runManager.Duration())

	runResult, err = setup.runManager.Execute()
	if nil != err {
		logger.ErrorfWithError(err, "run %s failed", setup.runManager.Name())
		return
	}

	printRunResult(out, runResult)

	return
}

func newRunSetup(confMap conf.ConfMap) (setup *runSetup, err error) {
	var (
		config               stream.WriterConfig
		discipline           stream.Discipline
		logObserver          *stream.LogObserver
		memorySampleInterval time.Duration
		metricsHTTPAddr      string
		resultPath           string
		runName              string
		targetDir            string
		writer               stream.Writer
	)

	setup = &runSetup{}

	defer func() {
		if nil != err {
			setup.close()
			setup = nil
		}
	}()

	if !confMap.IsOptionValueEmptyOrMissing("FSStream", "TargetDir") {
		targetDir, err = confMap.FetchOptionValueString("FSStream", "TargetDir")
		if nil != err {
			err = blunder.AddError(err, blunder.InvalidArgError)
			return
		}
	}

	if !confMap.IsOptionValueEmptyOrMissing("FSStream", "RunName") {
		runName, err = confMap.FetchOptionValueString("FSStream", "RunName")
		if nil != err {
			err = blunder.AddError(err, blunder.InvalidArgError)
			return
		}
	}

	setup.writerNames, err = confMap.FetchOptionValueStringSlice("FSStream", "WriterList")
	if nil != err {
		err = blunder.AddError(err, blunder.InvalidArgError)
		return
	}

	setup.runManager = runmgr.New(runName)
	setup.collector = metrics.New()

	if !confMap.IsOptionValueEmptyOrMissing("FSStream", "MemorySampleInterval") {
		memorySampleInterval, err = confMap.FetchOptionValueDuration("FSStream", "MemorySampleInterval")
		if nil != err {
			err = blunder.AddError(err, blunder.InvalidArgError)
			return
		}
		setup.runManager.SetMemorySampleInterval(memorySampleInterval)
	}

	for index, writerName := range setup.writerNames {
		discipline, config, err = stream.FetchWriterConfig(confMap, writerName, index, targetDir)
		if nil != err {
			return
		}
		writer, err = stream.NewWriter(discipline, config)
		if nil != err {
			return
		}
		err = setup.runManager.Register(writer, writerName)
		if nil != err {
			return
		}
	}

	logObserver = stream.NewLogObserver(failureWarningInterval, failureWarningBurst)
	setup.runManager.SetWriterObserver(stream.MultiObserver{logObserver, setup.collector})
	setup.runManager.SetMemoryObserver(setup.collector)

	if !confMap.IsOptionValueEmptyOrMissing("FSStream", "MetricsHTTPAddr") {
		metricsHTTPAddr, err = confMap.FetchOptionValueString("FSStream", "MetricsHTTPAddr")
		if nil != err {
			err = blunder.AddError(err, blunder.InvalidArgError)
			return
		}
		setup.metricsServer, err = setup.collector.Serve(metricsHTTPAddr)
		if nil != err {
			return
		}
	}

	if !confMap.IsOptionValueEmptyOrMissing("FSStream", "ResultPath") {
		resultPath, err = confMap.FetchOptionValueString("FSStream", "ResultPath")
		if nil != err {
			err = blunder.AddError(err, blunder.InvalidArgError)
			return
		}
		setup.store, err = resultstore.Open(resultPath)
		if nil != err {
			return
		}
		setup.runManager.SetSink(setup.store)
	}

	err = nil
	return
}

func (setup *runSetup) close() {
	if nil != setup.metricsServer {
		err := setup.metricsServer.Close()
		if nil != err {
			logger.WarnfWithError(err, "metrics server close failed")
		}
		setup.metricsServer = nil
	}
	if nil != setup.store {
		err := setup.store.Close()
		if nil != err {
			logger.WarnfWithError(err, "result store %s close failed", setup.store.Path())
		}
		setup.store = nil
	}
}

// logSignals reports SIGINT/SIGTERM while a run is in progress. Writers cannot
// be cancelled; a second signal abandons the run without persisting it.
func logSignals(runManager *runmgr.RunManager) (stop func()) {
	var (
		doneChan   chan struct{}
		signalChan chan os.Signal
	)

	// Buffered so a signal arriving before the goroutine blocks is not lost
	signalChan = make(chan os.Signal, 1)
	doneChan = make(chan struct{})

	signal.Notify(signalChan, unix.SIGINT, unix.SIGTERM)

	go func() {
		var (
			received int
		)

		for {
			select {
			case signalReceived := <-signalChan:
				received++
				if 1 == received {
					logger.Warnf("run %s: received %v; writers finish on their own in at most %v (signal again to abandon)", runManager.Name(), signalReceived, runManager.Duration())
				} else {
					logger.Fatalf("run %s: received %v again; abandoning run", runManager.Name(), signalReceived)
				}
			case <-doneChan:
				return
			}
		}
	}()

	stop = func() {
		signal.Stop(signalChan)
		close(doneChan)
	}

	return
}

func printRunResult(out io.Writer, runResult runmgr.RunResult) {
	var (
		writerNames []string
	)

	fmt.Fprintf(out, "run %s started %s lasted %v\n", runResult.Name, runResult.StartTime.Format(time.RFC3339), runResult.Duration)

	writerNames = make([]string, 0, len(runResult.Writers))
	for writerName := range runResult.Writers {
		writerNames = append(writerNames, writerName)
	}
	sort.Strings(writerNames)

	for _, writerName := range writerNames {
		fmt.Fprintf(out, "  %v\n", stream.Summarize(runResult.Writers[writerName]))
		fmt.Fprintf(out, "    config: %s\n", utils.JSONify(runResult.Writers[writerName].Config, false))
	}

	fmt.Fprintf(out, "  %v\n", summarizeMemory(runResult))
}
