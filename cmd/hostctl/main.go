package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/moonbridge/internal/client"
	"github.com/GriffinCanCode/moonbridge/internal/shared/types"
)

var errUsage = errors.New("usage: hostctl [-addr URL] [-timeout D] <health|classes|types|type|resolve|scriptable|nav|metrics|events> [args]")

func main() {
	addr := flag.String("addr", envOr("MOON_ADDR", client.DefaultConfig().BaseURL), "Host API base URL")
	timeout := flag.Duration("timeout", client.DefaultConfig().Timeout, "Request timeout")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(client.Config{
		BaseURL:    *addr,
		Timeout:    *timeout,
		RetryCount: client.DefaultConfig().RetryCount,
	})
	if err := run(ctx, c, flag.Args(), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "hostctl:", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "health":
		h, err := c.Health(ctx)
		if err != nil {
			return err
		}
		if err := printJSON(out, h); err != nil {
			return err
		}
		if h.Status != "healthy" {
			return fmt.Errorf("host is %s", h.Status)
		}
		return nil
	case "classes":
		return printResult(out)(c.Classes(ctx))
	case "types":
		return printResult(out)(c.Types(ctx))
	case "type":
		if len(rest) != 1 {
			return errUsage
		}
		return printResult(out)(c.Type(ctx, rest[0]))
	case "resolve":
		if len(rest) == 0 {
			return errUsage
		}
		for _, name := range rest {
			td, err := c.Resolve(ctx, name)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", name, err)
			}
			if err := printJSON(out, td); err != nil {
				return err
			}
		}
		return nil
	case "scriptable":
		return printResult(out)(c.Scriptable(ctx))
	case "nav":
		switch len(rest) {
		case 0:
			return printResult(out)(c.Navigation(ctx))
		case 1:
			return printResult(out)(c.SetNavigation(ctx, rest[0]))
		default:
			return errUsage
		}
	case "metrics":
		text, err := c.Metrics(ctx)
		if err != nil {
			return err
		}
		_, err = io.WriteString(out, text)
		return err
	case "events":
		err := c.Events(ctx, func(msg types.WSMessage) error {
			if msg.Type == types.WSWelcome {
				fmt.Fprintf(out, "subscribed as %s\n", msg.Subscriber)
				return nil
			}
			ev := msg.Event
			fmt.Fprintf(out, "%s  %-40s handle=%d parent=%d\n",
				ev.Time.Format(time.RFC3339), ev.Type, ev.NativeHandle, ev.ParentHandle)
			return nil
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	default:
		return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}
}

func printResult(out io.Writer) func(any, error) error {
	return func(v any, err error) error {
		if err != nil {
			return err
		}
		return printJSON(out, v)
	}
}

func printJSON(out io.Writer, v any) error {
	data, err := sonic.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
