// Command portald runs the portal servers.
//
//	portald [-config FILE] gateway
//	portald [-config FILE] service DOMAIN
//	portald [-config FILE] all
//
// "all" runs the gateway in this process and every microservice as a child process.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"

	"portal-rpc/client"
	"portal-rpc/config"
	"portal-rpc/gateway"
	"portal-rpc/loadbalance"
	"portal-rpc/logging"
	"portal-rpc/message"
	"portal-rpc/microservice"
	"portal-rpc/registry"
	"portal-rpc/service"
)

var errUsage = errors.New("usage: portald [-config FILE] gateway | service DOMAIN | all")

func main() {
	logging.ConfigureRuntime()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "portald: %v\n", err)
		stop()
		os.Exit(1)
	}
}

type command struct {
	configPath string
	mode       string
	domain     message.Domain
}

func parseArgs(args []string) (command, error) {
	fs := flag.NewFlagSet("portald", flag.ContinueOnError)
	var cmd command
	fs.StringVar(&cmd.configPath, "config", "", "TOML configuration file")
	if err := fs.Parse(args); err != nil {
		return command{}, err
	}
	rest := fs.Args()
	if len(rest) == 0 {
		return command{}, errUsage
	}
	cmd.mode = rest[0]
	switch cmd.mode {
	case "gateway", "all":
		if len(rest) != 1 {
			return command{}, errUsage
		}
	case "service":
		if len(rest) != 2 {
			return command{}, errUsage
		}
		d, err := message.ParseDomain(rest[1])
		if err != nil {
			return command{}, err
		}
		cmd.domain = d
	default:
		return command{}, errors.Wrapf(errUsage, "unknown mode %q", cmd.mode)
	}
	return cmd, nil
}

func run(ctx context.Context, args []string) error {
	cmd, err := parseArgs(args)
	if err != nil {
		return err
	}
	cfg, err := config.Load(cmd.configPath)
	if err != nil {
		return err
	}
	switch cmd.mode {
	case "gateway":
		return runGateway(ctx, cfg)
	case "service":
		return runService(ctx, cfg, cmd.domain)
	default:
		return supervise(ctx, cfg, cmd.configPath)
	}
}

func runGateway(ctx context.Context, cfg config.Config) error {
	reg, closeReg, err := cfg.OpenRegistry()
	if err != nil {
		return err
	}
	defer closeReg()
	if cfg.Registry.Kind == config.RegistryEtcd {
		cache := registry.NewCache(reg)
		for _, d := range message.Domains() {
			cache.Follow(ctx, registry.ServiceName(d))
		}
		reg = cache
	}
	bal, err := loadbalance.New(cfg.Balancer)
	if err != nil {
		return err
	}
	gw := gateway.New(client.NewClient(reg, bal, cfg.IOTimeout.Std()), gateway.Options{
		MaxConns:        cfg.MaxConns,
		IOTimeout:       cfg.IOTimeout.Std(),
		ShutdownTimeout: cfg.ShutdownTimeout.Std(),
		BackendTimeout:  cfg.BackendTimeout.Std(),
		RateLimit:       cfg.RateLimit.RPS,
		Burst:           cfg.RateLimit.Burst,
	})
	return gw.ListenAndServe(ctx, cfg.GatewayAddr())
}

func runService(ctx context.Context, cfg config.Config, d message.Domain) error {
	h, err := service.Open(d, cfg.DataDir)
	if err != nil {
		return err
	}
	opts := microservice.Options{
		MaxConns:        cfg.MaxConns,
		IOTimeout:       cfg.IOTimeout.Std(),
		ShutdownTimeout: cfg.ShutdownTimeout.Std(),
		RateLimit:       cfg.RateLimit.RPS,
		Burst:           cfg.RateLimit.Burst,
		TTL:             cfg.Registry.TTL,
	}
	if cfg.Registry.Kind == config.RegistryEtcd {
		reg, closeReg, err := cfg.OpenRegistry()
		if err != nil {
			return err
		}
		defer closeReg()
		opts.Registry = reg
	}
	return microservice.New(h, opts).ListenAndRun(ctx, cfg.ServiceAddr(d))
}
