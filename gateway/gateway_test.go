package gateway

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"portal-rpc/client"
	"portal-rpc/internal/testlog"
	"portal-rpc/loadbalance"
	"portal-rpc/message"
	"portal-rpc/microservice"
	"portal-rpc/registry"
	"portal-rpc/service"
)

// fixedRegistry resolves every service to one address, so tests can use ephemeral ports.
type fixedRegistry map[string]string

func (f fixedRegistry) Register(context.Context, string, registry.ServiceInstance, int64) error {
	return nil
}

func (f fixedRegistry) Deregister(context.Context, string, string) error { return nil }

func (f fixedRegistry) Discover(_ context.Context, service string) ([]registry.ServiceInstance, error) {
	addr, ok := f[service]
	if !ok {
		return nil, registry.ErrNoInstances
	}
	return []registry.ServiceInstance{{Addr: addr, Weight: 1}}, nil
}

func (f fixedRegistry) Watch(context.Context, string) <-chan []registry.ServiceInstance {
	return nil
}

// panickyRegistry fails every lookup with a panic.
type panickyRegistry struct{ fixedRegistry }

func (panickyRegistry) Discover(context.Context, string) ([]registry.ServiceInstance, error) {
	panic("registry exploded")
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	return ln
}

func runBackend(t *testing.T, d message.Domain, dataDir string) string {
	t.Helper()
	h, err := service.Open(d, dataDir)
	if err != nil {
		t.Fatal(err)
	}
	ln := listen(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		microservice.New(h, microservice.Options{}).Run(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ln.Addr().String()
}

func runGateway(t *testing.T, reg registry.Registry, opts Options) string {
	t.Helper()
	gw := New(client.NewClient(reg, &loadbalance.RoundRobinBalancer{}, time.Second), opts)
	ln := listen(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		gw.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ln.Addr().String()
}

// call sends the request built by a message constructor to addr:
// call(t, addr)(message.NewCurrencyQuery("pesos")).
func call(t *testing.T, addr string) func(message.Request, error) message.Response {
	return func(req message.Request, err error) message.Response {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
		resp, err := client.Send(context.Background(), addr, &req, 2*time.Second)
		if err != nil {
			t.Fatalf("send %s: %v", req.Variant(), err)
		}
		return resp
	}
}

func TestGatewayRelaysStoredQuote(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	state := []byte(`{"pesos": {"quote": 0.0011}}`)
	if err := os.WriteFile(filepath.Join(dir, "currency.json"), state, 0o644); err != nil {
		t.Fatal(err)
	}
	reg := fixedRegistry{"currency": runBackend(t, message.DomainCurrency, dir)}
	gw := runGateway(t, reg, Options{IOTimeout: time.Second, BackendTimeout: time.Second})

	resp := call(t, gw)(message.NewCurrencyQuery("pesos"))
	if resp.Type != message.ResponseCurrency || resp.Currency.Quote != 0.0011 {
		t.Fatalf("unexpected response %s", resp.String())
	}
}

func TestGatewayRoutesByDomain(t *testing.T) {
	testlog.Start(t)
	reg := fixedRegistry{
		"weather":  runBackend(t, message.DomainWeather, ""),
		"currency": runBackend(t, message.DomainCurrency, ""),
	}
	gw := runGateway(t, reg, Options{BackendTimeout: time.Second})

	resp := call(t, gw)(message.NewWeatherUpdate("Mendoza", 31.5, 1013, 40))
	if resp.Type != message.ResponseResult || resp.Result.Message.String() != "updated mendoza" {
		t.Fatalf("unexpected update response %s", resp.String())
	}
	resp = call(t, gw)(message.NewWeatherQuery("MENDOZA"))
	if resp.Type != message.ResponseWeather || resp.Weather.Humidity != 40 || resp.Weather.Temperature != 31.5 {
		t.Fatalf("unexpected weather response %s", resp.String())
	}
	resp = call(t, gw)(message.NewCurrencyQuery("yen"))
	if resp.Type != message.ResponseResult || !strings.Contains(resp.Result.Message.String(), "unknown currency") {
		t.Fatalf("unexpected currency response %s", resp.String())
	}
}

func TestGatewayBackendDown(t *testing.T) {
	testlog.Start(t)
	ln := listen(t)
	dead := ln.Addr().String()
	ln.Close()

	gw := runGateway(t, fixedRegistry{"currency": dead}, Options{BackendTimeout: time.Second})
	resp := call(t, gw)(message.NewCurrencyQuery("pesos"))
	if resp.Type != message.ResponseResult || !strings.Contains(resp.Result.Message.String(), "backend unavailable") {
		t.Fatalf("unexpected response %s", resp.String())
	}

	// no registered backend at all
	resp = call(t, gw)(message.NewWeatherQuery("Salta"))
	if resp.Type != message.ResponseResult || !strings.HasPrefix(resp.Result.Message.String(), "error:") {
		t.Fatalf("unexpected response %s", resp.String())
	}
}

func TestGatewayBackendTimeout(t *testing.T) {
	testlog.Start(t)
	// accepts and never answers
	ln := listen(t)
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			defer c.Close()
		}
	}()

	gw := runGateway(t, fixedRegistry{"currency": ln.Addr().String()}, Options{BackendTimeout: 100 * time.Millisecond})
	start := time.Now()
	resp := call(t, gw)(message.NewCurrencyQuery("pesos"))
	if resp.Type != message.ResponseResult {
		t.Fatalf("unexpected response %s", resp.String())
	}
	if time.Since(start) > time.Second {
		t.Fatalf("backend timeout took %s", time.Since(start))
	}
}

func TestGatewaySurvivesPanicUnderTimeout(t *testing.T) {
	testlog.Start(t)
	gw := runGateway(t, panickyRegistry{}, Options{BackendTimeout: time.Second})

	for range 2 {
		resp := call(t, gw)(message.NewCurrencyQuery("pesos"))
		if resp.Type != message.ResponseResult || !strings.Contains(resp.Result.Message.String(), "panicked") {
			t.Fatalf("unexpected response %s", resp.String())
		}
	}
}
