package client

import (
	"context"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"portal-rpc/internal/testlog"
	"portal-rpc/loadbalance"
	"portal-rpc/message"
	"portal-rpc/registry"
	"portal-rpc/server"
)

// MockRegistry resolves services from a map, without etcd.
type MockRegistry struct {
	mu        sync.Mutex
	instances map[string][]registry.ServiceInstance
}

func NewMockRegistry() *MockRegistry {
	return &MockRegistry{instances: make(map[string][]registry.ServiceInstance)}
}

func (m *MockRegistry) Register(_ context.Context, service string, inst registry.ServiceInstance, _ int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instances[service] = append(m.instances[service], inst)
	return nil
}

func (m *MockRegistry) Deregister(_ context.Context, service, addr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	insts := m.instances[service]
	for i, inst := range insts {
		if inst.Addr == addr {
			m.instances[service] = append(insts[:i:i], insts[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MockRegistry) Discover(_ context.Context, service string) ([]registry.ServiceInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.instances[service]) == 0 {
		return nil, registry.ErrNoInstances
	}
	return append([]registry.ServiceInstance(nil), m.instances[service]...), nil
}

func (m *MockRegistry) Watch(context.Context, string) <-chan []registry.ServiceInstance {
	return nil
}

func startQuoteServer(t *testing.T, quote float32) string {
	t.Helper()
	srv := server.New("quote", func(ctx context.Context, req *message.Request) (message.Response, error) {
		return message.NewCurrencyReport(quote), nil
	})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Serve(ctx, ln)
	return ln.Addr().String()
}

func pesos(t *testing.T) *message.Request {
	t.Helper()
	req, err := message.NewCurrencyQuery("pesos")
	if err != nil {
		t.Fatal(err)
	}
	return &req
}

func TestSend(t *testing.T) {
	testlog.Start(t)
	addr := startQuoteServer(t, 1.5)

	resp, err := Send(context.Background(), addr, pesos(t), time.Second)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if resp.Type != message.ResponseCurrency || resp.Currency.Quote != 1.5 {
		t.Fatalf("unexpected response %s", resp.String())
	}
}

func TestSendConnectFailure(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	if _, err := Send(context.Background(), addr, pesos(t), time.Second); err == nil {
		t.Fatal("expect connect failure")
	}
}

func TestSendCancelWhileWaiting(t *testing.T) {
	testlog.Start(t)
	// accepts and never answers
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
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

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = Send(ctx, ln.Addr().String(), pesos(t), 0)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expect context.DeadlineExceeded, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("cancel took %s", time.Since(start))
	}
}

func TestClientCall(t *testing.T) {
	testlog.Start(t)
	reg := NewMockRegistry()
	reg.Register(context.Background(), "currency", registry.ServiceInstance{Addr: startQuoteServer(t, 2.25)}, 10)

	cli := NewClient(reg, loadbalance.NewConsistentHashBalancer(), time.Second)
	resp, err := cli.Call(context.Background(), pesos(t))
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if resp.Currency.Quote != 2.25 {
		t.Fatalf("unexpected response %s", resp.String())
	}
}

func TestResolveKeyAffinity(t *testing.T) {
	testlog.Start(t)
	reg := NewMockRegistry()
	for i := range 8 {
		addr := net.JoinHostPort("10.0.0."+strconv.Itoa(i+1), "8003")
		reg.Register(context.Background(), "weather", registry.ServiceInstance{Addr: addr, Weight: 1}, 10)
	}
	cli := NewClient(reg, loadbalance.NewConsistentHashBalancer(), time.Second)

	resolve := func(city string) string {
		t.Helper()
		req, err := message.NewWeatherQuery(city)
		if err != nil {
			t.Fatal(err)
		}
		addr, err := cli.Resolve(context.Background(), &req)
		if err != nil {
			t.Fatal(err)
		}
		return addr
	}
	for _, spellings := range [][]string{
		{"buenos aires", "Buenos Aires", " BUENOS AIRES "},
		{"mendoza", "Mendoza", "mendoza\t"},
		{"santiago del estero", "Santiago del Estero", "SANTIAGO DEL ESTERO"},
		{"salta", "SALTA", " Salta"},
	} {
		want := resolve(spellings[0])
		for _, s := range spellings[1:] {
			if got := resolve(s); got != want {
				t.Errorf("%q resolved to %s, %q to %s", s, got, spellings[0], want)
			}
		}
	}

	// an update reaches the instance that answers queries of the same record
	update, err := message.NewWeatherUpdate("Buenos Aires", 20, message.NoValue, message.NoValue)
	if err != nil {
		t.Fatal(err)
	}
	addr, err := cli.Resolve(context.Background(), &update)
	if err != nil {
		t.Fatal(err)
	}
	if want := resolve("buenos aires"); addr != want {
		t.Fatalf("update resolved to %s, query to %s", addr, want)
	}
}

func TestClientCallNoInstances(t *testing.T) {
	testlog.Start(t)
	cli := NewClient(NewMockRegistry(), nil, time.Second)
	req, _ := message.NewWeatherQuery("Salta")
	if _, err := cli.Call(context.Background(), &req); !errors.Is(err, registry.ErrNoInstances) {
		t.Fatalf("expect ErrNoInstances, got %v", err)
	}

	bad := message.Request{Type: 200}
	if _, err := cli.Resolve(context.Background(), &bad); err == nil {
		t.Fatal("expect error for an unknown request type")
	}
}
