// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
fledgerd is a fledger overlay node written in Go.

The default options are sane for most users.  This means fledgerd will work
'out of the box' for most users.  However, there are also a wide variety of
flags that can be used to control it.

The following section provides a usage overview which enumerates the flags.  An
interesting point to note is that the long form of all of these options
(except -C) can be specified in a configuration file that is automatically
parsed when fledgerd starts up.  By default, the configuration file is located
at ~/.fledgerd/fledgerd.conf on POSIX-style operating systems and
%LOCALAPPDATA%\fledgerd\fledgerd.conf on Windows.  The -C (--configfile) flag,
as shown below, can be used to override this location.

Usage:

	fledgerd [OPTIONS]

Application Options:

	    --addpeer=           Add a peer to connect with at startup
	-A, --appdata=           Path to application home directory
	-C, --configfile=        Path to configuration file
	    --connect=           Connect only to the specified peers at startup
	    --cpuprofile=        Write CPU profile to the specified file
	-b, --datadir=           Directory to store data
	-d, --debuglevel=        Logging level for all subsystems {trace, debug,
	                         info, warn, error, critical} -- You may also
	                         specify
	                         <subsystem>=<level>,<subsystem2>=<level>,... to
	                         set the log level for individual subsystems --
	                         Use show to list available subsystems (info)
	    --nolisten           Disable listening for incoming connections --
	                         NOTE: Listening is automatically disabled if the
	                         --connect option is used without also specifying
	                         listen interfaces via --listen
	    --norpc              Disable built-in RPC server -- NOTE: The RPC
	                         server is disabled by default if no
	                         rpcuser/rpcpass or rpclimituser/rpclimitpass is
	                         specified
	    --notls              Disable TLS for the RPC server -- NOTE: This is
	                         only allowed if the RPC server is bound to
	                         localhost
	    --identityfile=      Path to the node identity private key -- A fresh
	                         identity is generated there on the first start
	    --listen=            Add an interface/port to listen for connections
	                         (default all interfaces port: 7037, testnet:
	                         17037)
	    --logdir=            Directory to log output
	    --maxpeers=          Max number of inbound peers (125)
	    --memprofile=        Write mem profile to the specified file
	    --nofilelogging      Disable file logging
	    --ownedrealm=        Treat the given realm id as operated by this
	                         node, serving it without regard to its space
	                         budget -- May be specified multiple times
	    --profile=           Enable HTTP profiling on given [addr:]port --
	                         NOTE: port must be between 1024 and 65535
	    --proxy=             Connect via SOCKS5 proxy (eg. 127.0.0.1:9050)
	    --proxypass=         Password for proxy server
	    --proxyuser=         Username for proxy server
	    --realm=             Restrict the node to storing objects of the given
	                         realm id -- May be specified multiple times; all
	                         realms are served when none are given
	    --rpccert=           File containing the certificate file
	    --rpckey=            File containing the certificate key
	    --rpclimitpass=      Password for limited RPC connections
	    --rpclimituser=      Username for limited RPC connections
	    --rpclisten=         Add an interface/port to listen for RPC
	                         connections (default port: 7038, testnet: 17038)
	    --rpcmaxclients=     Max number of RPC clients for standard
	                         connections (10)
	    --rpcmaxwebsockets=  Max number of RPC websocket connections (25)
	-P, --rpcpass=           Password for RPC connections
	-u, --rpcuser=           Username for RPC connections
	-V, --version            Display version information and exit
	    --simnet             Use the simulation overlay network
	    --testnet            Use the test overlay network

Help Options:

	-h, --help           Show this help message
*/
package main
