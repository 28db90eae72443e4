package main

import (
	"fmt"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"
)

var (
	flagConnect     string
	flagListen      string
	flagMinVersion  string
	flagMaxVersion  string
	flagCipher      string
	flagALPN        string
	flagPSKIdentity string
	flagPSKSecret   string
	flagServerName  string
	flagVerbose     int
	flagHelp        bool
)

func init() {
	flag.StringVarP(&flagConnect, "connect", "c", "", "Dial host:port as a client")
	flag.StringVarP(&flagListen, "listen", "l", "", "Listen on host:port as a server")
	flag.StringVar(&flagMinVersion, "min-version", "tls12", "Minimum protocol version (tls12, tls13)")
	flag.StringVar(&flagMaxVersion, "max-version", "tls13", "Maximum protocol version (tls12, tls13)")
	flag.StringVar(&flagCipher, "cipher", "", "Cipher suite name substring filter")
	flag.StringVar(&flagALPN, "alpn", "", "Comma-separated ALPN protocol list")
	flag.StringVar(&flagPSKIdentity, "psk-identity", "", "External PSK identity")
	flag.StringVar(&flagPSKSecret, "psk-secret", "", "External PSK secret, hex-encoded")
	flag.StringVar(&flagServerName, "server-name", "", "TLS server_name to send (client mode)")
	flag.CountVarP(&flagVerbose, "verbose", "v", "Increase log verbosity (repeatable)")
	flag.BoolVarP(&flagHelp, "help", "h", false, "Print usage information and exit")
}

const helpString = `A minimal TLS 1.2/1.3 handshake probe

Usage: tlsengine-probe --connect HOST:PORT [OPTION]...
       tlsengine-probe --listen HOST:PORT [OPTION]...

Connection:
  -c, --connect=HOST:PORT  Dial as a client
  -l, --listen=HOST:PORT   Listen as a server
      --server-name=NAME   SNI host_name to send (client mode)

Negotiation:
      --min-version=VER    Minimum protocol version (default: tls12)
      --max-version=VER    Maximum protocol version (default: tls13)
      --cipher=SUBSTR      Restrict to cipher suites whose name contains SUBSTR
      --alpn=LIST          Comma-separated ALPN protocol list

Pre-shared keys:
      --psk-identity=ID    External PSK identity
      --psk-secret=HEX     External PSK secret, hex-encoded

Miscellaneous:
  -v, --verbose            Increase log verbosity (repeatable)
  -h, --help               Print this help message and exit

Once the handshake completes, stdin is streamed to the peer and whatever
the peer sends back is printed to stdout.`

func help() {
	r := color.New(color.FgRed)
	y := color.New(color.FgYellow)
	b := color.New(color.FgCyan)

	//  _    _                     _
	// | |_ | | ___ ___ _ _  __ _ (_) _ _   ___
	// |  _|| |(_-</ -_)| ' \/ _` || || ' \ / -_)
	//  \__||_|/__/\___||_||_\__, ||_||_||_|\___|
	//                       |___/

	r.Printf(" _   _              ")
	y.Printf("   _")
	b.Println("              ")

	r.Printf("| |_| |___ ___ _ _  ")
	y.Printf("__ _(_)_ _  ___")
	b.Println("")

	r.Printf("|  _| (_-</ -_) ' \\/")
	y.Printf("_` | | ' \\/ -_)")
	b.Println("")

	r.Printf(" \\__|_/__/\\___|_||_\\")
	y.Printf("__,_|_|_||_\\___|")
	b.Println("")

	fmt.Println()
	fmt.Println(helpString)
}
