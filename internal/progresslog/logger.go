// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package progresslog

import (
	"sync"
	"time"

	"github.com/decred/slog"

	"github.com/ineiti/fledger/flo"
)

// pickNoun returns the singular or plural form of a noun depending on the
// provided count.
func pickNoun(n uint64, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}

// Logger provides periodic logging of progress towards some action involving
// many objects, such as reconciling the held set with the neighbors after a
// restart.
type Logger struct {
	sync.Mutex
	subsystemLogger slog.Logger
	progressAction  string

	// lastLogTime tracks the last time a log statement was shown.
	lastLogTime time.Time

	// These fields accumulate information about objects between log
	// statements.
	receivedFlos    uint64
	receivedEntries uint64
	receivedBytes   uint64
}

// New returns a new object progress logger.
func New(progressAction string, logger slog.Logger) *Logger {
	return &Logger{
		lastLogTime:     time.Now(),
		progressAction:  progressAction,
		subsystemLogger: logger,
	}
}

// LogProgress accumulates details for the provided object and periodically
// (every 10 seconds) logs an information message to show progress to the user
// along with duration and totals included.
//
// The force flag may be used to force a log message to be shown regardless of
// the time the last one was shown.
//
// The progress message is templated as follows:
//
//	{progressAction} {numFlos} {objects|object} in the last {timePeriod}
//	({numEntries} {history entries|history entry}, {numBytes} payload bytes,
//	version {lastVersion}, {lastID})
func (l *Logger) LogProgress(f *flo.Flo, forceLog bool) {
	l.Lock()
	defer l.Unlock()

	wireFlo := f.WireFlo()
	l.receivedFlos++
	l.receivedEntries += uint64(len(wireFlo.History))
	for i := range wireFlo.History {
		l.receivedBytes += uint64(len(wireFlo.History[i].Payload))
	}
	now := time.Now()
	duration := now.Sub(l.lastLogTime)
	if !forceLog && duration < time.Second*10 {
		return
	}

	// Log information about object progress.
	l.subsystemLogger.Infof("%s %d %s in the last %0.2fs (%d %s, %d payload "+
		"bytes, version %d, %s)", l.progressAction,
		l.receivedFlos, pickNoun(l.receivedFlos, "object", "objects"),
		duration.Seconds(),
		l.receivedEntries, pickNoun(l.receivedEntries, "history entry",
			"history entries"),
		l.receivedBytes, wireFlo.Version(), f.ID())

	l.receivedFlos = 0
	l.receivedEntries = 0
	l.receivedBytes = 0
	l.lastLogTime = now
}

// SetLastLogTime updates the last time data was logged to the provided time.
func (l *Logger) SetLastLogTime(time time.Time) {
	l.Lock()
	l.lastLogTime = time
	l.Unlock()
}
