// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the bridge configuration.
//
// Configuration comes from a single file named either by the
// CONSOLEBRIDGE_CONFIG environment variable (via [Load]) or by the
// --config flag (via [LoadFile]). There is no search path and no
// per-field environment override, so what the file says is what runs.
//
// Files ending in .json or .jsonc are JSON with comments; everything
// else is YAML. Both decode through the same yaml struct tags.
//
// An environments: table holds partial documents keyed by name. The one
// named by environment: (or CONSOLEBRIDGE_ENV) is decoded over the base
// values after loading, so it only changes the fields it sets.
//
// Path fields then have ${HOME}, ${STATE_DIRECTORY} and ${VAR:-default}
// expanded. [Config.Validate] reports every problem joined into one
// error.
package config
