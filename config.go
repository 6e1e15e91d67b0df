// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/decred/dcrd/crypto/rand"
	"github.com/decred/dcrd/dcrutil/v4"
	"github.com/decred/go-socks/socks"
	flags "github.com/jessevdk/go-flags"

	"github.com/ineiti/fledger/flid"
	"github.com/ineiti/fledger/internal/version"
	"github.com/ineiti/fledger/sampleconfig"
)

const (
	defaultConfigFilename   = "fledgerd.conf"
	defaultDataDirname      = "data"
	defaultLogLevel         = "info"
	defaultLogDirname       = "logs"
	defaultLogFilename      = "fledgerd.log"
	defaultIdentityFilename = "identity.key"
	defaultMaxPeers         = 125
	defaultMaxRPCClients    = 10
	defaultMaxRPCWebsockets = 25
)

var (
	defaultHomeDir    = dcrutil.AppDataDir("fledgerd", false)
	defaultConfigFile = filepath.Join(defaultHomeDir, defaultConfigFilename)
	defaultDataDir    = filepath.Join(defaultHomeDir, defaultDataDirname)
	defaultRPCKeyFile = filepath.Join(defaultHomeDir, "rpc.key")
	defaultRPCCert    = filepath.Join(defaultHomeDir, "rpc.cert")
	defaultLogDir     = filepath.Join(defaultHomeDir, defaultLogDirname)
)

// errSuppressUsage signifies that an error should not cause the usage message
// to be shown when it occurs during the initial configuration phase.  This is
// used for errors that are not the result of malformed options, such as being
// unable to create a directory.
type errSuppressUsage string

// Error implements the error interface.
func (e errSuppressUsage) Error() string {
	return string(e)
}

// config defines the configuration options for fledgerd.
//
// See loadConfig for details on the configuration load process.
type config struct {
	AddPeers         []string `long:"addpeer" description:"Add a peer to connect with at startup"`
	HomeDir          string   `short:"A" long:"appdata" description:"Path to application home directory"`
	ConfigFile       string   `short:"C" long:"configfile" description:"Path to configuration file"`
	ConnectPeers     []string `long:"connect" description:"Connect only to the specified peers at startup"`
	CPUProfile       string   `long:"cpuprofile" description:"Write CPU profile to the specified file"`
	DataDir          string   `short:"b" long:"datadir" description:"Directory to store data"`
	DebugLevel       string   `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	DisableListen    bool     `long:"nolisten" description:"Disable listening for incoming connections -- NOTE: Listening is automatically disabled if the --connect option is used without also specifying listen interfaces via --listen"`
	DisableRPC       bool     `long:"norpc" description:"Disable built-in RPC server -- NOTE: The RPC server is disabled by default if no rpcuser/rpcpass or rpclimituser/rpclimitpass is specified"`
	DisableTLS       bool     `long:"notls" description:"Disable TLS for the RPC server -- NOTE: This is only allowed if the RPC server is bound to localhost"`
	IdentityFile     string   `long:"identityfile" description:"Path to the node identity private key -- A fresh identity is generated there on the first start"`
	Listeners        []string `long:"listen" description:"Add an interface/port to listen for connections (default all interfaces port: 7037, testnet: 17037)"`
	LogDir           string   `long:"logdir" description:"Directory to log output"`
	MaxPeers         int      `long:"maxpeers" description:"Max number of inbound peers"`
	MemProfile       string   `long:"memprofile" description:"Write mem profile to the specified file"`
	NoFileLogging    bool     `long:"nofilelogging" description:"Disable file logging"`
	OwnedRealms      []string `long:"ownedrealm" description:"Treat the given realm id as operated by this node, serving it without regard to its space budget -- May be specified multiple times"`
	Profile          string   `long:"profile" description:"Enable HTTP profiling on given [addr:]port -- NOTE: port must be between 1024 and 65535"`
	Proxy            string   `long:"proxy" description:"Connect via SOCKS5 proxy (eg. 127.0.0.1:9050)"`
	ProxyPass        string   `long:"proxypass" default-mask:"-" description:"Password for proxy server"`
	ProxyUser        string   `long:"proxyuser" description:"Username for proxy server"`
	Realms           []string `long:"realm" description:"Restrict the node to storing objects of the given realm id -- May be specified multiple times; all realms are served when none are given"`
	RPCCert          string   `long:"rpccert" description:"File containing the certificate file"`
	RPCKey           string   `long:"rpckey" description:"File containing the certificate key"`
	RPCLimitPass     string   `long:"rpclimitpass" default-mask:"-" description:"Password for limited RPC connections"`
	RPCLimitUser     string   `long:"rpclimituser" description:"Username for limited RPC connections"`
	RPCListeners     []string `long:"rpclisten" description:"Add an interface/port to listen for RPC connections (default port: 7038, testnet: 17038)"`
	RPCMaxClients    int      `long:"rpcmaxclients" description:"Max number of RPC clients for standard connections"`
	RPCMaxWebsockets int      `long:"rpcmaxwebsockets" description:"Max number of RPC websocket connections"`
	RPCPass          string   `short:"P" long:"rpcpass" default-mask:"-" description:"Password for RPC connections"`
	RPCUser          string   `short:"u" long:"rpcuser" description:"Username for RPC connections"`
	ShowVersion      bool     `short:"V" long:"version" description:"Display version information and exit"`
	SimNet           bool     `long:"simnet" description:"Use the simulation overlay network"`
	TestNet          bool     `long:"testnet" description:"Use the test overlay network"`

	// The rest of the fields are derived from the options above during
	// load and are not settable directly.
	dial        func(ctx context.Context, network, addr string) (net.Conn, error)
	realms      []flid.ID
	ownedRealms []flid.ID
}

// cleanAndExpandPath expands environment variables and leading ~ in the passed
// path, cleans the result, and returns it.
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
	var u *user.User
	var err error
	if userName == "" {
		u, err = user.Current()
	} else {
		u, err = user.Lookup(userName)
	}
	if err == nil {
		homeDir = u.HomeDir
	}
	// Fallback to CWD if user lookup fails or user has no home directory.
	if homeDir == "" {
		homeDir, _ = os.Getwd()
	}

	return filepath.Join(homeDir, path)
}

// removeDuplicateAddresses returns a new slice with all duplicate entries in
// addrs removed.
func removeDuplicateAddresses(addrs []string) []string {
	result := make([]string, 0, len(addrs))
	seen := map[string]struct{}{}
	for _, val := range addrs {
		if _, ok := seen[val]; !ok {
			result = append(result, val)
			seen[val] = struct{}{}
		}
	}
	return result
}

// normalizeAddress returns addr with the passed default port appended if there
// is not already a port specified.
func normalizeAddress(addr, defaultPort string) string {
	_, _, err := net.SplitHostPort(addr)
	if err != nil {
		return net.JoinHostPort(addr, defaultPort)
	}
	return addr
}

// normalizeFunc is a function which normalizes an address to one or more
// normalized forms of it.
type normalizeFunc func(addr, defaultPort string) []string

// normalizeHostPort returns a single-entry slice with the passed address
// normalized with the given default port.  It can be used as the
// normalization function for normalizeAddresses when interface name
// expansion is not desired.
func normalizeHostPort(addr, defaultPort string) []string {
	return []string{normalizeAddress(addr, defaultPort)}
}

// normalizeInterfaceAddrs returns a slice of addresses from the passed address
// where any instance of a network interface name is replaced with the
// addresses assigned to the interface.  Addresses that do not name an
// interface are normalized with the given default port and returned
// unmodified.
func normalizeInterfaceAddrs(addr, defaultPort string) []string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		host, port = addr, defaultPort
	}

	iface, err := net.InterfaceByName(host)
	if err != nil {
		return []string{net.JoinHostPort(host, port)}
	}
	ifaceAddrs, err := iface.Addrs()
	if err != nil {
		return []string{net.JoinHostPort(host, port)}
	}

	addrs := make([]string, 0, len(ifaceAddrs))
	for _, ifaceAddr := range ifaceAddrs {
		ipNet, ok := ifaceAddr.(*net.IPNet)
		if !ok {
			continue
		}
		addrs = append(addrs, net.JoinHostPort(ipNet.IP.String(), port))
	}
	return addrs
}

// normalizeAddresses returns a new slice with all the passed addresses
// normalized by the provided normalization function with the given default
// port and all duplicates removed.
func normalizeAddresses(addrs []string, defaultPort string, normalize normalizeFunc) []string {
	result := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		result = append(result, normalize(addr, defaultPort)...)
	}
	return removeDuplicateAddresses(result)
}

// createDefaultConfigFile copies the sample config to the given destination
// path, and populates it with a randomly generated RPC username and password.
func createDefaultConfigFile(destPath string) error {
	// Create the destination directory if it does not exist.
	err := os.MkdirAll(filepath.Dir(destPath), 0700)
	if err != nil {
		return err
	}

	// Generate a random user and password for the RPC server credentials.
	randomBytes := make([]byte, 20)
	_, err = rand.Read(randomBytes)
	if err != nil {
		return err
	}
	generatedRPCUser := base64.StdEncoding.EncodeToString(randomBytes)

	_, err = rand.Read(randomBytes)
	if err != nil {
		return err
	}
	generatedRPCPass := base64.StdEncoding.EncodeToString(randomBytes)

	// Replace the rpcuser and rpcpass lines in the sample configuration
	// file contents with the generated values.
	rpcUserRE := regexp.MustCompile(`(?m)^;\s*rpcuser=[^\s]*$`)
	rpcPassRE := regexp.MustCompile(`(?m)^;\s*rpcpass=[^\s]*$`)
	s := sampleconfig.Fledgerd()
	s = rpcUserRE.ReplaceAllString(s, fmt.Sprintf("rpcuser=%s", generatedRPCUser))
	s = rpcPassRE.ReplaceAllString(s, fmt.Sprintf("rpcpass=%s", generatedRPCPass))

	// Create config file at the provided path and write the updated sample
	// config contents to it.
	return os.WriteFile(destPath, []byte(s), 0644)
}

// newConfigParser returns a new command line flags parser.
func newConfigParser(cfg *config, options flags.Options) *flags.Parser {
	return flags.NewParser(cfg, options)
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
// The above results in fledgerd functioning properly without any config
// settings while still allowing the user to override settings with config
// files and command line options.  Command line options always take
// precedence.
//
// The appName parameter is the name of the application binary that is used
// when displaying version information and errors.
func loadConfig(appName string) (*config, []string, error) {
	// Default config.
	cfg := config{
		HomeDir:          defaultHomeDir,
		ConfigFile:       defaultConfigFile,
		DebugLevel:       defaultLogLevel,
		MaxPeers:         defaultMaxPeers,
		RPCMaxClients:    defaultMaxRPCClients,
		RPCMaxWebsockets: defaultMaxRPCWebsockets,
		DataDir:          defaultDataDir,
		LogDir:           defaultLogDir,
		RPCKey:           defaultRPCKeyFile,
		RPCCert:          defaultRPCCert,
	}

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.  Any errors aside from the
	// help message error can be ignored here since they will be caught by
	// the final parse below.
	preCfg := cfg
	preParser := newConfigParser(&preCfg, flags.HelpFlag)
	_, err := preParser.Parse()
	if err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			fmt.Println(err)
			os.Exit(0)
		}
	}

	// Show the version and exit if the version flag was specified.
	if preCfg.ShowVersion {
		fmt.Printf("%s version %s (Go version %s %s/%s)\n", appName,
			version.String(), runtime.Version(), runtime.GOOS,
			runtime.GOARCH)
		os.Exit(0)
	}

	// Update the home directory for fledgerd if specified.  Since the home
	// directory is updated, other variables need to be updated to reflect
	// the new changes.
	if preCfg.HomeDir != "" {
		cfg.HomeDir, _ = filepath.Abs(cleanAndExpandPath(preCfg.HomeDir))

		if preCfg.ConfigFile == defaultConfigFile {
			defaultConfigFile = filepath.Join(cfg.HomeDir,
				defaultConfigFilename)
			preCfg.ConfigFile = defaultConfigFile
			cfg.ConfigFile = defaultConfigFile
		} else {
			cfg.ConfigFile = preCfg.ConfigFile
		}
		if preCfg.DataDir == defaultDataDir {
			cfg.DataDir = filepath.Join(cfg.HomeDir, defaultDataDirname)
		} else {
			cfg.DataDir = preCfg.DataDir
		}
		if preCfg.RPCKey == defaultRPCKeyFile {
			cfg.RPCKey = filepath.Join(cfg.HomeDir, "rpc.key")
		} else {
			cfg.RPCKey = preCfg.RPCKey
		}
		if preCfg.RPCCert == defaultRPCCert {
			cfg.RPCCert = filepath.Join(cfg.HomeDir, "rpc.cert")
		} else {
			cfg.RPCCert = preCfg.RPCCert
		}
		if preCfg.LogDir == defaultLogDir {
			cfg.LogDir = filepath.Join(cfg.HomeDir, defaultLogDirname)
		} else {
			cfg.LogDir = preCfg.LogDir
		}
	}

	// Create the home directory if it doesn't already exist.
	funcName := "loadConfig"
	err = os.MkdirAll(cfg.HomeDir, 0700)
	if err != nil {
		// Show a nicer error message if it's because a symlink is
		// linked to a directory that does not exist (probably because
		// it's not mounted).
		var e *os.PathError
		if errors.As(err, &e) && os.IsExist(err) {
			if link, lerr := os.Readlink(e.Path); lerr == nil {
				str := "is symlink %s -> %s mounted?"
				err = fmt.Errorf(str, e.Path, link)
			}
		}

		str := "failed to create home directory: %v"
		return nil, nil, errSuppressUsage(fmt.Sprintf(str, err))
	}

	// Create a default config file when one does not exist and the user
	// did not specify an override.
	if preCfg.ConfigFile == defaultConfigFile {
		if _, err := os.Stat(preCfg.ConfigFile); os.IsNotExist(err) {
			err := createDefaultConfigFile(preCfg.ConfigFile)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error creating a default "+
					"config file: %v\n", err)
			}
		}
	}

	// Load additional config from file.  The config file is ignored on
	// simnet since it is intended for private use and the file is likely
	// tuned for another network.
	var configFileError error
	parser := newConfigParser(&cfg, flags.HelpFlag|flags.PassDoubleDash)
	if !preCfg.SimNet || preCfg.ConfigFile != defaultConfigFile {
		err := flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile)
		if err != nil {
			var e *os.PathError
			if !errors.As(err, &e) {
				str := "%s: failed to parse config file: %v"
				return nil, nil, fmt.Errorf(str, "loadConfig", err)
			}
			configFileError = err
		}
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.Parse()
	if err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			fmt.Println(err)
			os.Exit(0)
		}
		return nil, nil, err
	}

	// Multiple networks can't be selected simultaneously.
	numNets := 0
	if cfg.TestNet {
		numNets++
		activeNetParams = &testNetParams
	}
	if cfg.SimNet {
		numNets++
		activeNetParams = &simNetParams
	}
	if numNets > 1 {
		str := "%s: the testnet and simnet params can't be used " +
			"together -- choose one of the two"
		return nil, nil, fmt.Errorf(str, funcName)
	}

	// Append the network type to the data directory so it is "namespaced"
	// per network.  In addition to making each network have its own place
	// for data, this also prevents the test and simulation networks from
	// polluting the main network.
	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.DataDir = filepath.Join(cfg.DataDir, activeNetParams.Name)

	// Append the network type to the log directory so it is "namespaced"
	// per network in the same fashion as the data directory.
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	cfg.LogDir = filepath.Join(cfg.LogDir, activeNetParams.Name)

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	// Initialize log rotation.  After the log rotation has been
	// initialized, the logger variables may be used.
	if !cfg.NoFileLogging {
		initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename))
	}

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		return nil, nil, fmt.Errorf("%s: %v", funcName, err)
	}

	// Validate profile host/port.
	if cfg.Profile != "" {
		profileAddr := portToLocalHostAddr(cfg.Profile)
		if err := validateProfileAddr(profileAddr); err != nil {
			return nil, nil, fmt.Errorf("%s: invalid profile: %w", funcName,
				err)
		}
		cfg.Profile = profileAddr
	}

	// --addpeer and --connect can not be combined.
	if len(cfg.AddPeers) > 0 && len(cfg.ConnectPeers) > 0 {
		str := "%s: the --addpeer and --connect options can not be mixed"
		return nil, nil, fmt.Errorf(str, funcName)
	}

	// Validate the proxy address when one is specified.
	if cfg.Proxy != "" {
		_, _, err := net.SplitHostPort(cfg.Proxy)
		if err != nil {
			str := "%s: proxy address '%s' is invalid: %v"
			return nil, nil, fmt.Errorf(str, funcName, cfg.Proxy, err)
		}
	}

	// Connect means no listening for inbound connections unless listen
	// addresses were provided.
	if len(cfg.ConnectPeers) > 0 && len(cfg.Listeners) == 0 {
		cfg.DisableListen = true
	}

	// Add the default listener when none were specified.  The default
	// listener is all addresses on the overlay port for the network the
	// node is connected to.
	if len(cfg.Listeners) == 0 {
		cfg.Listeners = []string{
			net.JoinHostPort("", activeNetParams.DefaultPort),
		}
	}

	// The RPC server is disabled when no credentials are provided.
	if cfg.RPCUser == "" && cfg.RPCPass == "" && cfg.RPCLimitUser == "" &&
		cfg.RPCLimitPass == "" {
		cfg.DisableRPC = true
	}
	if cfg.DisableRPC {
		fldgLog.Infof("RPC service is disabled")
	}

	// The RPC server must not share credentials between the limited and
	// admin users.
	if cfg.RPCUser == cfg.RPCLimitUser && cfg.RPCUser != "" {
		str := "%s: --rpcuser and --rpclimituser must not specify the " +
			"same username"
		return nil, nil, fmt.Errorf(str, funcName)
	}
	if cfg.RPCPass == cfg.RPCLimitPass && cfg.RPCPass != "" {
		str := "%s: --rpcpass and --rpclimitpass must not specify the " +
			"same password"
		return nil, nil, fmt.Errorf(str, funcName)
	}

	// Default RPC to listen on localhost only.
	if !cfg.DisableRPC && len(cfg.RPCListeners) == 0 {
		addrs, err := net.LookupHost("localhost")
		if err != nil {
			return nil, nil, errSuppressUsage(err.Error())
		}
		cfg.RPCListeners = make([]string, 0, len(addrs))
		for _, addr := range addrs {
			addr = net.JoinHostPort(addr, activeNetParams.rpcPort)
			cfg.RPCListeners = append(cfg.RPCListeners, addr)
		}
	}

	// Only allow TLS to be disabled when the RPC server is bound to
	// localhost addresses.
	if !cfg.DisableRPC && cfg.DisableTLS {
		allowedTLSListeners := map[string]struct{}{
			"localhost": {},
			"127.0.0.1": {},
			"::1":       {},
		}
		for _, addr := range cfg.RPCListeners {
			host, _, err := net.SplitHostPort(addr)
			if err != nil {
				str := "%s: RPC listen interface '%s' is invalid: %v"
				return nil, nil, fmt.Errorf(str, funcName, addr, err)
			}
			if _, ok := allowedTLSListeners[host]; !ok {
				str := "%s: the --notls option may not be used when " +
					"binding RPC to non localhost addresses: %s"
				return nil, nil, fmt.Errorf(str, funcName, addr)
			}
		}
	}

	// Add the default port to all listener addresses if needed and remove
	// duplicate addresses.  Listen addresses may name a local interface, in
	// which case they are expanded to the addresses the interface carries.
	cfg.Listeners = normalizeAddresses(cfg.Listeners,
		activeNetParams.DefaultPort, normalizeInterfaceAddrs)
	cfg.RPCListeners = normalizeAddresses(cfg.RPCListeners,
		activeNetParams.rpcPort, normalizeInterfaceAddrs)

	// Add the default port to all added peer addresses if needed and remove
	// duplicate addresses.
	cfg.AddPeers = normalizeAddresses(cfg.AddPeers,
		activeNetParams.DefaultPort, normalizeHostPort)
	cfg.ConnectPeers = normalizeAddresses(cfg.ConnectPeers,
		activeNetParams.DefaultPort, normalizeHostPort)

	// Parse the realm identifiers the node is restricted to serve as well
	// as the realm identifiers the node operates itself.
	cfg.realms = make([]flid.ID, 0, len(cfg.Realms))
	for _, realmStr := range cfg.Realms {
		id, err := flid.NewIDFromStr(realmStr)
		if err != nil {
			str := "%s: realm identifier '%s' is invalid: %v"
			return nil, nil, fmt.Errorf(str, funcName, realmStr, err)
		}
		cfg.realms = append(cfg.realms, *id)
	}
	cfg.ownedRealms = make([]flid.ID, 0, len(cfg.OwnedRealms))
	for _, realmStr := range cfg.OwnedRealms {
		id, err := flid.NewIDFromStr(realmStr)
		if err != nil {
			str := "%s: owned realm identifier '%s' is invalid: %v"
			return nil, nil, fmt.Errorf(str, funcName, realmStr, err)
		}
		cfg.ownedRealms = append(cfg.ownedRealms, *id)
	}

	// The node identity key lives under the per-network data directory by
	// default so every network gets its own identity.
	if cfg.IdentityFile == "" {
		cfg.IdentityFile = filepath.Join(cfg.DataDir, defaultIdentityFilename)
	} else {
		cfg.IdentityFile = cleanAndExpandPath(cfg.IdentityFile)
	}

	// Expand the RPC key and cert paths.
	cfg.RPCKey = cleanAndExpandPath(cfg.RPCKey)
	cfg.RPCCert = cleanAndExpandPath(cfg.RPCCert)

	// Setup the dial function depending on the specified options.  The
	// default is the standard net package dialer.  When a proxy is
	// specified, the dial function is set to the proxy specific dial
	// function.
	cfg.dial = new(net.Dialer).DialContext
	if cfg.Proxy != "" {
		proxy := &socks.Proxy{
			Addr:     cfg.Proxy,
			Username: cfg.ProxyUser,
			Password: cfg.ProxyPass,
		}
		cfg.dial = proxy.DialContext
	}

	// Warn about missing config file only after all other configuration is
	// done.  This prevents the warning on help messages and invalid
	// options.  Note this should go directly before the return.
	if configFileError != nil {
		fldgLog.Warnf("%v", configFileError)
	}

	return &cfg, remainingArgs, nil
}
