// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

// Program fsstream drives concurrent rate-controlled writers against a target
// filesystem while sampling memory, and records the results in a bbolt database.
//
//   fsstream run  <conf file> [<section>.<option>=<value>...]
//   fsstream list <result db>
//   fsstream show <result db> <group>
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() (rootCmd *cobra.Command) {
	rootCmd = &cobra.Command{
		Use:           "fsstream",
		Short:         "Filesystem write-load generator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newRunCmd(), newListCmd(), newShowCmd())

	return
}

func main() {
	err := newRootCmd().Execute()
	if nil != err {
		fmt.Fprintf(os.Stderr, "fsstream: %v\n", err)
		os.Exit(1)
	}
}
