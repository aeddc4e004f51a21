// Command tftpd is the TFTP server: it binds the welcome socket and
// dispatches incoming RRQ/WRQ datagrams to per-transfer sessions.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/go-tftp/tftp"
	"github.com/go-tftp/tftp/internal/cliflags"
	"github.com/go-tftp/tftp/metrics"
	"github.com/go-tftp/tftp/tftpd"
)

var knownFlags = cliflags.Known{
	"port":                          true,
	"timeout":                       true,
	"attempts":                      true,
	"enable-error-message-delivery": false,
	"disable-block-messages":        false,
	"metrics-addr":                  true,
	"log-format":                    true,
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(rawArgs []string) int {
	fs := flag.NewFlagSet("tftpd", flag.ContinueOnError)
	port := fs.Int("port", 69, "UDP port to bind the welcome socket on")
	timeoutMS := fs.Int("timeout", 5000, "per-datagram receive timeout, in milliseconds")
	attempts := fs.Int("attempts", 3, "maximum retransmission attempts before giving up")
	enableErrMsgs := fs.Bool("enable-error-message-delivery", false, "include message text in ERROR datagrams sent to peers")
	disableBlockMsgs := fs.Bool("disable-block-messages", false, "silence per-block log lines")
	metricsAddr := fs.String("metrics-addr", "", "if set, serve Prometheus metrics on this address")
	logFormat := fs.String("log-format", "text", "log output format: text or json")

	if err := fs.Parse(cliflags.Filter(rawArgs, knownFlags)); err != nil {
		return 2
	}

	format := tftp.LogFormat(*logFormat)
	if format != tftp.LogFormatText && format != tftp.LogFormatJSON {
		fmt.Fprintf(os.Stderr, "tftpd: unknown --log-format %q\n", *logFormat)
		return 2
	}

	opts := tftp.Options{
		Timeout:             time.Duration(*timeoutMS) * time.Millisecond,
		MaxAttempts:         *attempts,
		EnableErrorMessages: *enableErrMsgs,
		LogBlockMessages:    !*disableBlockMsgs,
	}

	welcome, err := net.ListenPacket("udp", fmt.Sprintf(":%d", *port))
	if err != nil {
		fmt.Fprintf(os.Stderr, "tftpd: %s\n", err)
		return 1
	}

	logger := tftp.NewLogger(*port, opts.LogBlockMessages, format)
	mcol := metrics.New()
	registry := prometheus.NewRegistry()
	registry.MustRegister(mcol)

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Errorf("metrics server stopped: %s", err)
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	d := tftpd.NewDispatcher(welcome, tftp.OSFileSystem{}, opts, logger, mcol)
	logger.Infof("listening on %s", welcome.LocalAddr())
	if err := d.Run(ctx); err != nil {
		logger.Errorf("dispatcher stopped: %s", err)
		return 1
	}
	return 0
}
