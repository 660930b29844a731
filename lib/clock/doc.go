// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock lets time-dependent code run against either the wall
// clock or a manually advanced fake.
//
// Components that sleep or wait for deadlines (the idle reaper, the
// accept backoff, the host loop ticker) hold a Clock instead of calling
// the time package. Production wiring passes Real(); tests pass a
// FakeClock and drive it with Advance:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go reaper.run(fake)
//	fake.WaitForTimers(1)        // reaper is now sleeping
//	fake.Advance(30 * time.Minute)
//
// WaitForTimers removes the race between a goroutine registering a
// wait and the test moving time forward.
package clock
