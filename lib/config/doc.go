// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for ptyshim.
//
// Values come from three layers, each overriding the one before:
//
//   - [Default], the built-in values
//   - a YAML file named by the --config flag or PTYSHIM_CONFIG
//   - PTYSHIM_* environment variables (PTYSHIM_STREAMS,
//     PTYSHIM_OSC52_LIMIT, PTYSHIM_LOG_LEVEL, PTYSHIM_LOG_FILE,
//     PTYSHIM_METRICS_FILE, PTYSHIM_DEBUG)
//
// Command-line flags are applied by the binary on top of [Load]'s
// result, after which [Config.Validate] runs.
//
// There is no automatic file discovery. Without --config or
// PTYSHIM_CONFIG no file is read.
//
// This package depends on no other ptyshim packages.
package config
