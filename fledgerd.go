// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"runtime/pprof"
	"strings"

	"github.com/ineiti/fledger/flostore"
	"github.com/ineiti/fledger/internal/limits"
	"github.com/ineiti/fledger/internal/version"
)

var cfg *config

// fledgerdMain is the real main function for fledgerd.  It is necessary to
// work around the fact that deferred functions do not run when os.Exit() is
// called.
func fledgerdMain() error {
	// Load configuration and parse command line.  This function also
	// initializes logging and configures it accordingly.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	tcfg, _, err := loadConfig(appName)
	if err != nil {
		usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
		fmt.Fprintln(os.Stderr, err)
		var e errSuppressUsage
		if !errors.As(err, &e) {
			fmt.Fprintln(os.Stderr, usageMessage)
		}
		return err
	}
	cfg = tcfg
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	// Get a context that will be canceled when a shutdown signal has been
	// triggered either from an OS signal such as SIGINT (Ctrl+C) or from
	// another subsystem such as the RPC server.
	ctx := shutdownListener()
	defer fldgLog.Info("Shutdown complete")

	// Show version and home dir at startup.
	fldgLog.Infof("Version %s (Go version %s %s/%s)", version.String(),
		runtime.Version(), runtime.GOOS, runtime.GOARCH)
	fldgLog.Infof("Home dir: %s", cfg.HomeDir)
	if cfg.NoFileLogging {
		fldgLog.Info("File logging disabled")
	}

	// Object replication and synchronization can cause bursty allocations.
	// This limits the garbage collector from excessively overallocating
	// during bursts.
	//
	// Starting with Go 1.19, a soft upper memory limit is imposed and the
	// target GC percentage is left at the default value to significantly
	// reduce the number of GC cycles.  For versions of Go prior to 1.19,
	// the ability to set a soft upper memory limit was not available, so
	// the GC percentage is lowered instead which has the effect of
	// preventing overallocations at the expense of more frequent GC cycles.
	if limits.SupportsMemoryLimit {
		const softMemLimit = 1 << 30 // 1 GiB
		limits.SetMemoryLimit(softMemLimit)
		fldgLog.Infof("Soft memory limit: 1 GiB")
	} else {
		debug.SetGCPercent(20)
	}

	// Enable http profile server if requested.  Note that since the server
	// may be started now or dynamically started and stopped later, the stop
	// call is always deferred to ensure it is always stopped during process
	// shutdown.
	var profiler profileServer
	defer profiler.Stop()
	if cfg.Profile != "" {
		const allowNonLoopback = true
		if err := profiler.Start(cfg.Profile, allowNonLoopback); err != nil {
			fldgLog.Warnf("unable to start profile server: %v", err)
			return err
		}
	}

	// Write cpu profile if requested.
	if cfg.CPUProfile != "" {
		f, err := os.Create(cfg.CPUProfile)
		if err != nil {
			fldgLog.Errorf("Unable to create cpu profile: %v", err.Error())
			return err
		}
		pprof.StartCPUProfile(f)
		defer f.Close()
		defer pprof.StopCPUProfile()
	}

	// Write mem profile if requested.
	if cfg.MemProfile != "" {
		f, err := os.Create(cfg.MemProfile)
		if err != nil {
			fldgLog.Errorf("Unable to create mem profile: %v", err)
			return err
		}
		defer f.Close()
		defer pprof.WriteHeapProfile(f)
	}

	// Return now if a shutdown signal was triggered.
	if shutdownRequested(ctx) {
		return nil
	}

	// Load the object database.
	db, err := flostore.LoadFloDB(cfg.DataDir)
	if err != nil {
		fldgLog.Errorf("%v", err)
		return err
	}
	defer func() {
		// Ensure the database is sync'd and closed on shutdown.
		fldgLog.Infof("Gracefully shutting down the object database...")
		db.Close()
	}()

	// Return now if a shutdown signal was triggered.
	if shutdownRequested(ctx) {
		return nil
	}

	// Create server.
	svr, err := newServer(ctx, cfg.Listeners, db)
	if err != nil {
		fldgLog.Errorf("Unable to start server: %v", err)
		return err
	}

	if shutdownRequested(ctx) {
		return nil
	}

	// Run the server.  This will block until the context is cancelled which
	// happens when the interrupt signal is received from an OS signal or
	// shutdown is requested through one of the subsystems such as the RPC
	// server.
	svr.Run(ctx)
	srvrLog.Infof("Server shutdown complete")
	return nil
}

func main() {
	// Up some limits.
	if err := limits.SetLimits(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to set limits: %v\n", err)
		os.Exit(1)
	}

	// Work around defer not working after os.Exit()
	if err := fledgerdMain(); err != nil {
		os.Exit(1)
	}
}
