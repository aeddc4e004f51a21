// Command tftp is the TFTP client: `tftp <host> {get|put} <source>
// <destination>`.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/go-tftp/tftp"
	"github.com/go-tftp/tftp/internal/cliflags"
	"github.com/go-tftp/tftp/metrics"
	"github.com/go-tftp/tftp/tftpc"
)

var knownFlags = cliflags.Known{
	"port":                          true,
	"timeout":                       true,
	"attempts":                      true,
	"enable-error-message-delivery": false,
	"disable-block-messages":        false,
	"mode":                          true,
	"log-format":                    true,
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(rawArgs []string) int {
	fs := flag.NewFlagSet("tftp", flag.ContinueOnError)
	port := fs.Int("port", 69, "server UDP port")
	timeoutMS := fs.Int("timeout", 5000, "per-datagram receive timeout, in milliseconds")
	attempts := fs.Int("attempts", 3, "maximum retransmission attempts before giving up")
	enableErrMsgs := fs.Bool("enable-error-message-delivery", false, "include message text in ERROR datagrams sent to the server")
	disableBlockMsgs := fs.Bool("disable-block-messages", false, "silence per-block log lines")
	mode := fs.String("mode", "octet", "transfer mode: netascii or octet")
	logFormat := fs.String("log-format", "text", "log output format: text or json")

	if err := fs.Parse(cliflags.Filter(rawArgs, knownFlags)); err != nil {
		return 2
	}

	args := fs.Args()
	if len(args) != 4 {
		fmt.Fprintln(os.Stderr, "usage: tftp [flags] <host> {get|put} <source> <destination>")
		return 2
	}
	host, verb, source, destination := args[0], args[1], args[2], args[3]

	var direction tftpc.Direction
	switch verb {
	case "get":
		direction = tftpc.Get
	case "put":
		direction = tftpc.Put
	default:
		fmt.Fprintf(os.Stderr, "tftp: unknown verb %q, want get or put\n", verb)
		return 2
	}

	transferMode, err := tftp.ParseMode(*mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tftp: %s\n", err)
		return 2
	}

	format := tftp.LogFormat(*logFormat)
	if format != tftp.LogFormatText && format != tftp.LogFormatJSON {
		fmt.Fprintf(os.Stderr, "tftp: unknown --log-format %q\n", *logFormat)
		return 2
	}

	serverAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", host, *port))
	if err != nil {
		fmt.Fprintf(os.Stderr, "tftp: %s\n", err)
		return 1
	}

	opts := tftp.Options{
		Timeout:             time.Duration(*timeoutMS) * time.Millisecond,
		MaxAttempts:         *attempts,
		EnableErrorMessages: *enableErrMsgs,
		LogBlockMessages:    !*disableBlockMsgs,
	}

	logger := tftp.NewLogger(0, opts.LogBlockMessages, format)
	mcol := metrics.New()

	req := tftpc.Request{
		ServerAddr:  serverAddr,
		Direction:   direction,
		Source:      source,
		Destination: destination,
		Mode:        transferMode,
	}

	if err := tftpc.Run(context.Background(), req, tftp.OSFileSystem{}, opts, logger, mcol); err != nil {
		fmt.Fprintf(os.Stderr, "tftp: %s\n", err)
		return 1
	}
	logger.Infof("transfer complete")

	snap := mcol.Snapshot()
	logger.Infof("sessions started=%d completed=%d failed=%d timeouts=%d retransmits=%d",
		snap.SessionsStarted, snap.SessionsCompleted, snap.SessionsFailed, snap.Timeouts, snap.Retransmits)
	return 0
}
