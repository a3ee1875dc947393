// Command portal sends one request to the gateway and prints the response.
//
//	portal [-addr HOST:PORT] [-config FILE] [-json] [-timeout D] REQ_TYPE TARGET [OPTIONS]
//
// Run "portal --help" for request types and options.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/cockroachdb/errors"

	"portal-rpc/client"
	"portal-rpc/config"
	"portal-rpc/logging"
	"portal-rpc/message"
)

var (
	errArgs = errors.New("wrong arguments, try --help")
	errAuth = errors.New("authentication error: invalid password")
)

func main() {
	logging.ConfigureRuntime()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdout)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "portal: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: portal [-addr HOST:PORT] [-config FILE] [-json] [-timeout D] REQ_TYPE TARGET [OPTIONS]\n\n")
	fmt.Fprintf(w, "REQ_TYPE:\n")
	fmt.Fprintf(w, "  %d  get weather of city TARGET\n", message.RequestWeather+1)
	fmt.Fprintf(w, "  %d  get quote of currency TARGET\n", message.RequestCurrency+1)
	fmt.Fprintf(w, "  %d  post weather of city TARGET\n", message.RequestPostWeather+1)
	fmt.Fprintf(w, "  %d  post quote of currency TARGET\n", message.RequestPostCurrency+1)
	fmt.Fprintf(w, "\nOPTIONS (posts only, --pass required):\n")
	fmt.Fprintf(w, "  --pass P  administrator password\n")
	fmt.Fprintf(w, "  --c V     currency value\n")
	fmt.Fprintf(w, "  --p V     pressure\n")
	fmt.Fprintf(w, "  --t V     temperature\n")
	fmt.Fprintf(w, "  --h V     humidity\n")
	fmt.Fprintf(w, "\nExamples:\n")
	fmt.Fprintf(w, "  portal %d \"buenos aires\"\n", message.RequestWeather+1)
	fmt.Fprintf(w, "  portal %d Dolar --pass PASS --c 18.00\n", message.RequestPostCurrency+1)
	fmt.Fprintf(w, "  portal %d \"buenos aires\" --p 1001.1 --t 26.2 --pass PASS\n", message.RequestPostWeather+1)
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("portal", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	addr := fs.String("addr", "", "gateway address (default from config)")
	configPath := fs.String("config", "", "TOML configuration file")
	asJSON := fs.Bool("json", false, "print the response as JSON")
	timeout := fs.Duration("timeout", 0, "connect and I/O timeout (default from config)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			usage(stdout)
			return err
		}
		return errors.Wrap(errArgs, err.Error())
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	req, err := buildRequest(fs.Args(), cfg.Secret)
	if errors.Is(err, flag.ErrHelp) {
		usage(stdout)
		return err
	}
	if err != nil {
		return err
	}

	if *addr == "" {
		*addr = cfg.GatewayAddr()
	}
	if *timeout == 0 {
		*timeout = cfg.IOTimeout.Std()
	}
	resp, err := client.Send(ctx, *addr, &req, *timeout)
	if err != nil {
		return errors.Wrap(err, "sending the request")
	}
	if *asJSON {
		return json.NewEncoder(stdout).Encode(&resp)
	}
	return resp.Format(stdout)
}

// buildRequest turns REQ_TYPE TARGET [OPTIONS] into a request. Posts must carry the
// administrator password; weather fields left out are sent as message.NoValue.
func buildRequest(args []string, secret string) (message.Request, error) {
	if len(args) == 1 && (args[0] == "--help" || args[0] == "-help" || args[0] == "-h") {
		return message.Request{}, flag.ErrHelp
	}
	if len(args) < 2 {
		return message.Request{}, errArgs
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > int(message.RequestPostCurrency)+1 {
		return message.Request{}, errors.Wrapf(errArgs, "request type %q", args[0])
	}
	typ := message.RequestType(n - 1)
	target := args[1]

	opts := flag.NewFlagSet("options", flag.ContinueOnError)
	opts.SetOutput(io.Discard)
	pass := opts.String("pass", "", "")
	value := opts.Float64("c", float64(message.NoValue), "")
	pressure := opts.Float64("p", float64(message.NoValue), "")
	temperature := opts.Float64("t", float64(message.NoValue), "")
	humidity := opts.Float64("h", float64(message.NoValue), "")
	if err := opts.Parse(args[2:]); err != nil {
		return message.Request{}, errors.Wrap(errArgs, err.Error())
	}
	if opts.NArg() > 0 {
		return message.Request{}, errors.Wrapf(errArgs, "unexpected %q", opts.Arg(0))
	}
	given := map[string]bool{}
	opts.Visit(func(f *flag.Flag) { given[f.Name] = true })
	for name, v := range map[string]float64{"c": *value, "p": *pressure, "t": *temperature} {
		if f := float32(v); math.IsNaN(v) || math.IsInf(float64(f), 0) {
			return message.Request{}, errors.Wrapf(errArgs, "--%s %v out of range", name, v)
		}
	}

	var req message.Request
	switch typ {
	case message.RequestWeather, message.RequestCurrency:
		if len(given) > 0 {
			return message.Request{}, errors.Wrap(errArgs, "queries take no options")
		}
		if typ == message.RequestWeather {
			req, err = message.NewWeatherQuery(target)
		} else {
			req, err = message.NewCurrencyQuery(target)
		}
		if err != nil {
			return message.Request{}, err
		}
		return req, req.Validate()
	}

	if !given["pass"] {
		return message.Request{}, errors.Wrap(errArgs, "posts require --pass")
	}
	if *pass != secret {
		return message.Request{}, errAuth
	}
	if typ == message.RequestPostCurrency {
		if !given["c"] || given["p"] || given["t"] || given["h"] {
			return message.Request{}, errors.Wrap(errArgs, "a currency post takes --c only")
		}
		req, err = message.NewCurrencyUpdate(target, float32(*value))
	} else {
		if given["c"] {
			return message.Request{}, errors.Wrap(errArgs, "--c applies to currency posts")
		}
		if !given["p"] && !given["t"] && !given["h"] {
			return message.Request{}, errors.Wrap(errArgs, "a weather post needs --p, --t or --h")
		}
		hum, herr := humidityValue(*humidity)
		if herr != nil {
			return message.Request{}, herr
		}
		req, err = message.NewWeatherUpdate(target, float32(*temperature), float32(*pressure), hum)
	}
	if err != nil {
		return message.Request{}, err
	}
	if err := req.Validate(); err != nil {
		return message.Request{}, err
	}
	return req, nil
}

// humidityValue truncates a humidity given as a decimal number, rejecting values outside
// the int32 range.
func humidityValue(v float64) (int32, error) {
	if math.IsNaN(v) || v < math.MinInt32 || v > math.MaxInt32 {
		return 0, errors.Wrapf(errArgs, "humidity %v out of range", v)
	}
	return int32(v), nil
}
