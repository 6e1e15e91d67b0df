// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/decred/dcrd/dcrjson/v4"
	"github.com/decred/dcrd/dcrutil/v4"
	flags "github.com/jessevdk/go-flags"

	"github.com/ineiti/fledger/internal/version"
	"github.com/ineiti/fledger/sampleconfig"
)

const (
	// unusableFlags are the command usage flags which this utility are not
	// able to use.  In particular it doesn't support websockets and
	// consequently notifications.
	unusableFlags = dcrjson.UFWebsocketOnly | dcrjson.UFNotification
)

var (
	fledgerdHomeDir     = dcrutil.AppDataDir("fledgerd", false)
	flctlHomeDir        = dcrutil.AppDataDir("flctl", false)
	defaultConfigFile   = filepath.Join(flctlHomeDir, "flctl.conf")
	defaultRPCServer    = "localhost"
	defaultRPCCertFile  = filepath.Join(fledgerdHomeDir, "rpc.cert")
	fledgerdConfigsFile = filepath.Join(fledgerdHomeDir, "fledgerd.conf")
)

// listCommands categorizes and lists all of the usable commands along with
// their one-line usage.
func listCommands() {
	methods := dcrjson.RegisteredCmdMethods()
	var usages []string
	for _, method := range methods {
		flags, err := dcrjson.MethodUsageFlags(method)
		if err != nil {
			// This should never happen since the method was just
			// returned from the package, but be safe.
			fmt.Fprintln(os.Stderr, "Failed to obtain command usage flags:",
				err)
			continue
		}

		// Skip the commands that can't be used by this utility.
		if flags&unusableFlags != 0 {
			continue
		}

		usage, err := dcrjson.MethodUsageText(method)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Failed to obtain command usage:", err)
			continue
		}
		usages = append(usages, usage)
	}

	fmt.Println("Node Server Commands:")
	for _, usage := range usages {
		fmt.Println(usage)
	}
}

// config defines the configuration options for flctl.
//
// See loadConfig for details on the configuration load process.
type config struct {
	ConfigFile    string `short:"C" long:"configfile" description:"Path to configuration file"`
	ListCommands  bool   `short:"l" long:"listcommands" description:"List all of the supported commands and exit"`
	NoTLS         bool   `long:"notls" description:"Disable TLS"`
	Proxy         string `long:"proxy" description:"Connect via SOCKS5 proxy (eg. 127.0.0.1:9050)"`
	ProxyPass     string `long:"proxypass" default-mask:"-" description:"Password for proxy server"`
	ProxyUser     string `long:"proxyuser" description:"Username for proxy server"`
	RPCCert       string `short:"c" long:"rpccert" description:"RPC server certificate chain for validation"`
	RPCPassword   string `short:"P" long:"rpcpass" default-mask:"-" description:"RPC password"`
	RPCServer     string `short:"s" long:"rpcserver" description:"RPC server to connect to"`
	RPCUser       string `short:"u" long:"rpcuser" description:"RPC username"`
	ShowVersion   bool   `short:"V" long:"version" description:"Display version information and exit"`
	SimNet        bool   `long:"simnet" description:"Connect to the simulation overlay network"`
	TestNet       bool   `long:"testnet" description:"Connect to the test overlay network"`
	TLSSkipVerify bool   `long:"skipverify" description:"Do not verify tls certificates (not recommended!)"`
}

// normalizeAddress returns addr with the passed default port appended if
// there is not already a port specified.
func normalizeAddress(addr string, useTestNet, useSimNet bool) string {
	_, _, err := net.SplitHostPort(addr)
	if err != nil {
		var defaultPort string
		switch {
		case useTestNet:
			defaultPort = "17038"
		case useSimNet:
			defaultPort = "27038"
		default:
			defaultPort = "7038"
		}

		return net.JoinHostPort(addr, defaultPort)
	}
	return addr
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Nothing to do when no path is given.
	if path == "" {
		return path
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows cmd.exe-style
	// %VARIABLE%, but the variables can still be expanded via POSIX-style
	// $VARIABLE.
	path = os.ExpandEnv(path)

	if !strings.HasPrefix(path, "~") {
		return filepath.Clean(path)
	}

	// Expand initial ~ to the current user's home directory, or ~otheruser
	// to otheruser's home directory.  On Windows, both forward and backward
	// slashes can be used.
	path = path[1:]

	var pathSeparators string
	if runtime.GOOS == "windows" {
		pathSeparators = string(os.PathSeparator) + "/"
	} else {
		pathSeparators = string(os.PathSeparator)
	}

	userName := ""
	if i := strings.IndexAny(path, pathSeparators); i != -1 {
		userName = path[:i]
		path = path[i:]
	}

	homeDir := ""
	var err error
	if userName == "" {
		// Current user.
		homeDir, err = os.UserHomeDir()
	} else {
		// User home directories are typically located in the same
		// directory as the current user's, so infer the location from
		// there rather than pulling in a dependency on the os/user
		// package for a seldom used expansion.
		var currentHomeDir string
		currentHomeDir, err = os.UserHomeDir()
		if err == nil {
			homeDir = filepath.Join(filepath.Dir(currentHomeDir), userName)
		}
	}

	// Fallback to the current directory if the user home directory cannot
	// be detected.
	if err != nil || homeDir == "" {
		homeDir = "."
	}

	return filepath.Join(homeDir, path)
}

// createDefaultConfigFile creates a basic config file at the given destination
// path.  For this it attempts to read the fledgerd config file at its default
// path, and extract the RPC user and password from it, so the utility works
// against the local node without further setup.
func createDefaultConfigFile(destinationPath string) error {
	// Create the destination directory if it does not exist.
	err := os.MkdirAll(filepath.Dir(destinationPath), 0700)
	if err != nil {
		return err
	}

	// Attempt to acquire the RPC credentials from an existing fledgerd
	// configuration.
	var rpcUser, rpcPass string
	if content, err := os.ReadFile(fledgerdConfigsFile); err == nil {
		userRE := regexp.MustCompile(`(?m)^\s*rpcuser=([^\s]+)`)
		if subs := userRE.FindSubmatch(content); len(subs) == 2 {
			rpcUser = string(subs[1])
		}
		passRE := regexp.MustCompile(`(?m)^\s*rpcpass=([^\s]+)`)
		if subs := passRE.FindSubmatch(content); len(subs) == 2 {
			rpcPass = string(subs[1])
		}
	}

	// Uncomment the credential lines in the sample config when they were
	// found above.
	sample := sampleconfig.Flctl()
	if rpcUser != "" && rpcPass != "" {
		userRE := regexp.MustCompile(`(?m)^;\s*rpcuser=[^\s]*$`)
		passRE := regexp.MustCompile(`(?m)^;\s*rpcpass=[^\s]*$`)
		sample = userRE.ReplaceAllString(sample, "rpcuser="+rpcUser)
		sample = passRE.ReplaceAllString(sample, "rpcpass="+rpcPass)
	}

	return os.WriteFile(destinationPath, []byte(sample), 0600)
}

// fileExists reports whether the named file or directory exists.
func fileExists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}

// loadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in flctl functioning properly without any config settings
// while still allowing the user to override settings with config files and
// command line options.  Command line options always take precedence.
func loadConfig() (*config, []string, error) {
	// Default config.
	cfg := config{
		ConfigFile: defaultConfigFile,
		RPCServer:  defaultRPCServer,
		RPCCert:    defaultRPCCertFile,
	}

	// Pre-parse the command line options to see if an alternative config
	// file, the version flag, or the list commands flag was specified.  Any
	// errors aside from the help message error can be ignored here since
	// they will be caught by the final parse below.
	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.HelpFlag)
	_, err := preParser.Parse()
	if err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprintln(os.Stderr, "")
			fmt.Fprintln(os.Stderr, "The special parameter `-` "+
				"indicates that a parameter should be read "+
				"from the\nnext unread line from standard "+
				"input.")
			os.Exit(0)
		}
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	if preCfg.ShowVersion {
		fmt.Printf("%s version %s (Go version %s %s/%s)\n", appName,
			version.String(), runtime.Version(), runtime.GOOS,
			runtime.GOARCH)
		os.Exit(0)
	}

	// Show the available commands and exit if the associated flag was
	// specified.
	if preCfg.ListCommands {
		listCommands()
		os.Exit(0)
	}

	// When the config file at the default path does not exist, create it
	// with usable defaults so the utility works against a default local
	// node setup without requiring manual configuration first.
	if preCfg.ConfigFile == defaultConfigFile && !fileExists(defaultConfigFile) {
		err := createDefaultConfigFile(preCfg.ConfigFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating a default "+
				"config file: %v\n", err)
		}
	}

	// Load additional config from file.
	parser := flags.NewParser(&cfg, flags.Default)
	err = flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile)
	if err != nil {
		var e *os.PathError
		if !errors.As(err, &e) {
			fmt.Fprintf(os.Stderr, "Error parsing config file: %v\n",
				err)
			fmt.Fprintln(os.Stderr, "Use flctl -h to show options")
			return nil, nil, err
		}
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.Parse()
	if err != nil {
		var e *flags.Error
		if !errors.As(err, &e) || e.Type != flags.ErrHelp {
			fmt.Fprintln(os.Stderr, "Use flctl -h to show options")
		}
		return nil, nil, err
	}

	// Multiple networks can't be selected simultaneously.
	numNets := 0
	if cfg.TestNet {
		numNets++
	}
	if cfg.SimNet {
		numNets++
	}
	if numNets > 1 {
		str := "%s: the testnet and simnet params can't be used " +
			"together -- choose one of the two"
		err := fmt.Errorf(str, "loadConfig")
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	// Handle environment variable expansion in the RPC certificate path.
	cfg.RPCCert = cleanAndExpandPath(cfg.RPCCert)

	// Add default port to RPC server based on the selected network if
	// needed.
	cfg.RPCServer = normalizeAddress(cfg.RPCServer, cfg.TestNet, cfg.SimNet)

	return &cfg, remainingArgs, nil
}
