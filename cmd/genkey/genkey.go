package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ineiti/fledger/ace"
	"os"
)

var (
	o = flag.String("out", "", "Optional command line argument to write the private key to the given file instead of printing it.  The file is created with mode 0600 and the program refuses to overwrite an existing one.  Point fledgerd at it with --identityfile")
)

func main() {
	flag.Parse()

	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		fmt.Print(err)
		os.Exit(1)
	}

	id := ace.NewKeySigner(priv).KeyID()

	if *o != "" {
		f, err := os.OpenFile(*o, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
		if err != nil {
			fmt.Print(err)
			os.Exit(1)
		}
		if _, err := f.Write(priv.Serialize()); err != nil {
			f.Close()
			fmt.Print(err)
			os.Exit(1)
		}
		if err := f.Close(); err != nil {
			fmt.Print(err)
			os.Exit(1)
		}
		fmt.Printf("%v\n", id)
		return
	}

	fmt.Printf("%v\n", hex.EncodeToString(priv.Serialize()))
	fmt.Printf("%v\n", id)
}
