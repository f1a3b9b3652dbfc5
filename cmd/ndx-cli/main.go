// Command ndx-cli manages operator keys and talks to an ndxd node over
// JSON-RPC.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	rpcURLEnv    = "NDX_RPC_URL"
	jwtSecretEnv = "NDX_RPC_JWT_SECRET"
)

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv(rpcURLEnv)); v != "" {
		return v
	}
	return "http://127.0.0.1:8545"
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	switch args[0] {
	case "keygen":
		return runKeygen(args[1:], stdout, stderr)
	case "address":
		return runAddress(args[1:], stdout, stderr)
	case "send":
		return runSend(args[1:], stdout, stderr)
	case "balance":
		return runBalance(args[1:], stdout, stderr)
	case "votes":
		return runVotes(args[1:], stdout, stderr)
	case "proposal":
		return runProposal(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func usage() string {
	return `Usage: ndx-cli <command> [flags]

Commands:
  keygen   -out <keystore>                         create an encrypted key
  address  -key <keystore>                         print the key's address (no passphrase)
  send     -key <keystore> -to <addr> -sig <sig> [-value n] [args...]
                                                   sign and submit a call
  balance  [-rpc url] [-token addr] <address>      token and native balance
  votes    [-rpc url] [-block n] <address>         current or prior votes
  proposal [-rpc url] <id>                         proposal details and state

The RPC endpoint defaults to $NDX_RPC_URL. Keystore passphrases are read
from $NDX_KEYSTORE_PASSPHRASE or prompted. A JWT secret for send is read
from -jwt-secret or $NDX_RPC_JWT_SECRET.`
}
