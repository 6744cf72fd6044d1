// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/NVIDIA/fsstream/resultstore"
	"github.com/NVIDIA/fsstream/runmgr"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <result db>",
		Short: "List the runs recorded in a result database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			var (
				groups []resultstore.GroupInfo
				store  *resultstore.Store
			)

			store, err = resultstore.Open(args[0])
			if nil != err {
				return
			}
			defer store.Close()

			groups, err = store.Groups()
			if nil != err {
				return
			}

			for _, group := range groups {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %v  writers=%s  memory_samples=%d\n",
					group.Name,
					group.StartTime.Format(time.RFC3339),
					group.Duration,
					strings.Join(group.Writers, ","),
					group.MemorySamples)
			}

			return
		},
	}
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <result db> <group>",
		Short: "Summarize one recorded run",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			var (
				runResult runmgr.RunResult
				store     *resultstore.Store
			)

			store, err = resultstore.Open(args[0])
			if nil != err {
				return
			}
			defer store.Close()

			runResult, err = store.Load(args[1])
			if nil != err {
				return
			}

			printRunResult(cmd.OutOrStdout(), runResult)

			return
		},
	}
}

type memorySummary struct {
	samples        int
	minResidentGB  float64
	maxResidentGB  float64
	meanResidentGB float64
	maxSwapGB      float64
}

func summarizeMemory(runResult runmgr.RunResult) (summary memorySummary) {
	var (
		residentSum float64
	)

	summary.samples = len(runResult.Memory)

	for i, memorySample := range runResult.Memory {
		if (0 == i) || (memorySample.ResidentGB < summary.minResidentGB) {
			summary.minResidentGB = memorySample.ResidentGB
		}
		if memorySample.ResidentGB > summary.maxResidentGB {
			summary.maxResidentGB = memorySample.ResidentGB
		}
		if memorySample.SwapGB > summary.maxSwapGB {
			summary.maxSwapGB = memorySample.SwapGB
		}
		residentSum += memorySample.ResidentGB
	}

	if 0 < summary.samples {
		summary.meanResidentGB = residentSum / float64(summary.samples)
	}

	return
}

func (summary memorySummary) String() string {
	if 0 == summary.samples {
		return "memory: no samples"
	}
	return fmt.Sprintf("memory: %d samples; resident GB min %.3f mean %.3f max %.3f; swap GB max %.3f",
		summary.samples, summary.minResidentGB, summary.meanResidentGB, summary.maxResidentGB, summary.maxSwapGB)
}
