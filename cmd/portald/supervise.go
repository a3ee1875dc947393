package main

import (
	"context"
	"os"
	"os/exec"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"portal-rpc/config"
	"portal-rpc/logging"
	"portal-rpc/message"
)

const reapTimeout = 10 * time.Second

type child struct {
	domain message.Domain
	cmd    *exec.Cmd
	done   chan struct{}
	err    error
}

// childArgs re-invokes portald as the microservice of d.
func childArgs(configPath string, d message.Domain) []string {
	var args []string
	if configPath != "" {
		args = append(args, "-config", configPath)
	}
	return append(args, "service", d.String())
}

// supervise starts one child per domain, runs the gateway until ctx is done, then stops
// the children and reaps them. A child exiting on its own stops everything.
func supervise(ctx context.Context, cfg config.Config, configPath string) error {
	log := logging.For("supervisor")
	self, err := os.Executable()
	if err != nil {
		return errors.Wrap(err, "locate executable")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var children []*child
	defer func() { reap(log, children) }()
	for _, d := range message.Domains() {
		cmd := exec.Command(self, childArgs(configPath, d)...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			return errors.Wrapf(err, "start %s service", d)
		}
		c := &child{domain: d, cmd: cmd, done: make(chan struct{})}
		go func() {
			c.err = cmd.Wait()
			close(c.done)
		}()
		children = append(children, c)
		log.Info().Stringer("domain", d).Int("pid", cmd.Process.Pid).Msg("service started")
	}

	exited := make(chan message.Domain, len(children))
	for _, c := range children {
		go func() {
			select {
			case <-c.done:
				exited <- c.domain
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	gwErr := runGateway(ctx, cfg)
	select {
	case d := <-exited:
		if gwErr == nil {
			gwErr = errors.Newf("%s service exited", d)
		}
	default:
	}
	return gwErr
}

// reap interrupts the children still running and waits for them, killing the ones that
// outlive reapTimeout.
func reap(log zerolog.Logger, children []*child) {
	for _, c := range children {
		if err := c.cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
			log.Warn().Err(err).Stringer("domain", c.domain).Msg("signal failed")
		}
	}
	deadline := time.After(reapTimeout)
	for _, c := range children {
		select {
		case <-c.done:
			ev := log.Info()
			if c.err != nil {
				ev = log.Warn().Err(c.err)
			}
			ev.Stringer("domain", c.domain).Msg("service stopped")
		case <-deadline:
			log.Error().Stringer("domain", c.domain).Msg("service did not stop, killing")
			_ = c.cmd.Process.Kill()
			<-c.done
		}
	}
}
