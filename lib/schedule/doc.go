// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package schedule submits console commands on cron schedules.
//
// Specs are standard five-field cron expressions or descriptors such as
// "@hourly" and "@every 10m". Every spec is parsed by [New], so a bad
// entry fails at startup instead of at its first firing. A run that is
// still blocked submitting when its next firing arrives causes that
// firing to be skipped.
package schedule
