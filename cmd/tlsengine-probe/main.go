package main

import (
	"bufio"
	"crypto"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"

	"github.com/lanikai/tlsengine"
	"github.com/lanikai/tlsengine/internal/psk"
	"github.com/lanikai/tlsengine/internal/state"
)

func main() {
	flag.Parse()

	if flagHelp {
		help()
		os.Exit(0)
	}

	if flagConnect == "" && flagListen == "" {
		fmt.Fprintln(os.Stderr, "tlsengine-probe: one of --connect or --listen is required")
		help()
		os.Exit(1)
	}

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	config, err := buildConfig()
	if err != nil {
		log.Fatalf("configuration: %v", err)
	}

	var conn *tlsengine.Conn
	if flagConnect != "" {
		conn, err = dial(config)
	} else {
		conn, err = accept(config)
	}
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer conn.Close()

	if err := conn.Handshake(); err != nil {
		log.Fatalf("handshake failed: %v", err)
	}

	reportHandshake(conn)
	pipe(conn)
}

func dial(config *tlsengine.Config) (*tlsengine.Conn, error) {
	green := color.New(color.FgGreen)
	green.Printf("dialing %s\n", flagConnect)
	return tlsengine.Dial("tcp", flagConnect, config)
}

func accept(config *tlsengine.Config) (*tlsengine.Conn, error) {
	if config.Certificates == nil {
		der, _, _, priv, err := tlsengine.GenerateSelfSignedCertificate("tlsengine-probe")
		if err != nil {
			return nil, fmt.Errorf("generating throwaway server certificate: %w", err)
		}
		config.Certificates = state.StaticCertificate{Chain: [][]byte{der}, Signer: priv}
	}

	listener, err := tlsengine.Listen("tcp", flagListen, config)
	if err != nil {
		return nil, err
	}
	defer listener.Close()

	green := color.New(color.FgGreen)
	green.Printf("listening on %s\n", flagListen)

	raw, err := listener.Accept()
	if err != nil {
		return nil, err
	}
	return raw.(*tlsengine.Conn), nil
}

func buildConfig() (*tlsengine.Config, error) {
	config := tlsengine.DefaultConfig()

	minV, err := parseVersion(flagMinVersion)
	if err != nil {
		return nil, err
	}
	maxV, err := parseVersion(flagMaxVersion)
	if err != nil {
		return nil, err
	}
	config.MinVersion = minV
	config.MaxVersion = maxV

	if flagCipher != "" {
		config.CipherNames = []string{flagCipher}
	}
	if flagALPN != "" {
		config.ALPNProtocols = strings.Split(flagALPN, ",")
	}
	config.ServerName = flagServerName

	if flagPSKIdentity != "" {
		secret, err := hex.DecodeString(flagPSKSecret)
		if err != nil {
			return nil, fmt.Errorf("decoding -psk-secret: %w", err)
		}
		identity := flagPSKIdentity
		config.PSKLookup = func(label []byte) (psk.Identity, bool) {
			if string(label) != identity {
				return psk.Identity{}, false
			}
			return psk.Identity{Label: label, Secret: secret, Hash: crypto.SHA256}, true
		}
	}

	return config, nil
}

func parseVersion(s string) (tlsengine.ProtocolVersion, error) {
	switch strings.ToLower(s) {
	case "tls12", "1.2":
		return tlsengine.VersionTLS12, nil
	case "tls13", "1.3":
		return tlsengine.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("unrecognized protocol version %q", s)
	}
}

func reportHandshake(conn *tlsengine.Conn) {
	cyan := color.New(color.FgCyan)
	cs := conn.ConnectionState()
	cyan.Printf("handshake complete: version=0x%04x suite=%s alpn=%q resumed=%v\n",
		uint16(cs.Version), cs.CipherSuite, cs.NegotiatedALPN, cs.ResumedSession)
	for i, der := range cs.PeerCertificates {
		cyan.Printf("peer certificate[%d]: %s\n", i, tlsengine.CertificateFingerprint(der))
	}
}

// pipe copies stdin to conn and conn to stdout until either closes,
// matching the teacher's single-purpose demo-binary style: no
// flow-control or multiplexing beyond what io.Copy already does.
func pipe(conn *tlsengine.Conn) {
	done := make(chan struct{})
	go func() {
		io.Copy(os.Stdout, conn)
		close(done)
	}()

	stdin := bufio.NewReader(os.Stdin)
	for {
		line, err := stdin.ReadString('\n')
		if len(line) > 0 {
			if _, werr := conn.Write([]byte(line)); werr != nil {
				log.Printf("write: %v", werr)
				return
			}
		}
		if err != nil {
			return
		}
	}
}
