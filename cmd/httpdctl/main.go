// Command httpdctl talks to a running httpd: it queries or stops the server
// over the control port and fetches files from the service port.
//
// Usage:
//
//	httpdctl [-c addr] stats
//	httpdctl [-c addr] shutdown
//	httpdctl [-p addr] get <path>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/iliastsa/httpd/client"
	"github.com/iliastsa/httpd/server"
)

var errUsage = errors.New("usage: httpdctl [flags] stats | shutdown | get <path>")

func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("httpdctl", flag.ContinueOnError)
	control := fs.String("c", "127.0.0.1:8081", "control channel address")
	service := fs.String("p", "127.0.0.1:8080", "HTTP service address")
	timeout := fs.Duration("timeout", client.DefaultTimeout, "per-operation I/O timeout")
	verbose := fs.Bool("v", false, "print the response status and header for get")

	if err := fs.Parse(args); err != nil {
		return err
	}

	c := &client.Client{Timeout: *timeout}

	switch cmd := strings.ToLower(fs.Arg(0)); {
	case cmd == "stats" && fs.NArg() == 1:
		reply, err := c.Command(ctx, *control, server.CommandStats)
		if err != nil {
			return err
		}
		if reply == "" {
			return errors.New("no reply from server")
		}
		_, err = fmt.Fprintln(stdout, reply)
		return err

	case cmd == "shutdown" && fs.NArg() == 1:
		_, err := c.Command(ctx, *control, server.CommandShutdown)
		return err

	case cmd == "get" && fs.NArg() == 2:
		resp, err := c.Get(ctx, *service, fs.Arg(1))
		if err != nil {
			return err
		}

		if *verbose {
			fmt.Fprintf(stdout, "%d %s\n", resp.Code, resp.Reason)
			for k, v := range resp.Header {
				fmt.Fprintf(stdout, "%s: %s\n", k, v)
			}
			fmt.Fprintln(stdout)
		}

		if _, err := stdout.Write(resp.Body); err != nil {
			return err
		}

		if resp.Code != 200 {
			return fmt.Errorf("%d %s", resp.Code, resp.Reason)
		}
		return nil

	default:
		return errUsage
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "httpdctl: %v\n", err)
		cancel()
		stop()
		os.Exit(1)
	}
}
