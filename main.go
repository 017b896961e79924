package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // Intentionally exposed on debug port.
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/die-net/socksd/internal/dialer"
	"github.com/die-net/socksd/internal/proxy"
	"github.com/die-net/socksd/internal/resolver"
	"github.com/die-net/socksd/internal/socks"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		listen = pflag.StringSlice("listen", []string{"127.0.0.1:1080"}, "SOCKS4/4a/5 listen addresses (repeatable)")

		upstream = pflag.String("upstream", defaultUpstream(), "Upstream forwarding target URL: direct:// | http://[user:pass@]host:port | https://[user:pass@]host:port | socks5://[user:pass@]host:port")

		username     = pflag.String("username", os.Getenv("SOCKS_USERNAME"), "Username SOCKS5 clients must authenticate with. Empty disables authentication.")
		password     = pflag.String("password", os.Getenv("SOCKS_PASSWORD"), "Password SOCKS5 clients must authenticate with")
		socks4UserID = pflag.String("socks4-userid", "", "Userid SOCKS4 requests must carry. Empty accepts any.")

		debugListen        = pflag.String("debug-listen", "", "Debug HTTP listen address exposing /debug/pprof and /metrics (e.g. 127.0.0.1:6060). Empty disables.")
		dialTimeout        = pflag.Duration("dial-timeout", 10*time.Second, "Timeout for outbound DNS lookup and TCP connect")
		negotiationTimeout = pflag.Duration("negotiation-timeout", 10*time.Second, "Timeout for protocol negotiation to set up connection")
		tcpKeepAlive       = pflag.String("tcp-keepalive", "45:45:3", "TCP keepalive: on|off|keepidle:keepintvl:keepcnt")
		reusePort          = pflag.Bool("reuse-port", false, "Set SO_REUSEPORT on listeners")
		acceptRate         = pflag.Float64("accept-rate", 0, "Maximum accepted connections per second per listener. 0 disables.")
		acceptBurst        = pflag.Int("accept-burst", 64, "Burst size for --accept-rate")
		dnsServer          = pflag.String("dns-server", "", "DNS server (host[:port]) for SOCKS4a names. Empty uses the system resolver.")
		dnsCacheTTL        = pflag.Duration("dns-cache-ttl", time.Minute, "How long to cache SOCKS4a name lookups. 0 disables.")
		verbose            = pflag.Bool("verbose", false, "Enable per-connection error logging")
	)

	pflag.CommandLine.SortFlags = false
	pflag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ka, err := parseTCPKeepAlive(*tcpKeepAlive)
	if err != nil {
		return fmt.Errorf("invalid --tcp-keepalive: %w", err)
	}

	if len(*listen) == 0 {
		return errors.New("no listeners enabled (set --listen)")
	}
	if *username == "" && *password != "" {
		return errors.New("--password requires --username")
	}

	res, err := resolver.New(resolver.Config{
		Server:   *dnsServer,
		Timeout:  *dialTimeout,
		CacheTTL: *dnsCacheTTL,
	})
	if err != nil {
		return fmt.Errorf("invalid --dns-server: %w", err)
	}

	cfg := proxy.Config{
		NegotiationTimeout: *negotiationTimeout,
		KeepAlive:          ka,
		AcceptRate:         *acceptRate,
		AcceptBurst:        *acceptBurst,
		SOCKS: socks.Config{
			Credentials:  socks.Credentials{Username: *username, Password: *password},
			SOCKS4UserID: *socks4UserID,
			Resolver:     res,
			Logger:       logger,
		},
		Logger: logger,
	}

	cfg.Dialer, err = dialer.New(dialer.Config{
		DialTimeout:        *dialTimeout,
		NegotiationTimeout: cfg.NegotiationTimeout,
		KeepAlive:          cfg.KeepAlive,
	}, *upstream)
	if err != nil {
		return fmt.Errorf("invalid --upstream: %w", err)
	}

	g, ctx := errgroup.WithContext(context.Background())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *debugListen != "" {
		http.Handle("/metrics", promhttp.Handler())
		debugSrv := &http.Server{Handler: http.DefaultServeMux} //nolint:gosec // Not concerned about timeouts on debug port.
		lc := net.ListenConfig{KeepAliveConfig: cfg.KeepAlive}
		debugLn, err := lc.Listen(ctx, "tcp", *debugListen)
		if err != nil {
			return fmt.Errorf("debug listen: %w", err)
		}
		context.AfterFunc(ctx, func() {
			_ = debugSrv.Close()
			_ = debugLn.Close()
		})

		g.Go(func() error {
			if err := debugSrv.Serve(debugLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("debug serve: %w", err)
			}
			return nil
		})
		logger.Info("debug listening", "addr", *debugListen)
	}

	for _, addr := range *listen {
		ln, err := proxy.ListenTCP(ctx, "tcp", addr, cfg.KeepAlive, *reusePort)
		if err != nil {
			return fmt.Errorf("socks listen: %w", err)
		}
		srv := proxy.NewSOCKSServer(ctx, cfg)
		context.AfterFunc(ctx, func() {
			_ = ln.Close()
		})

		g.Go(func() error {
			if err := srv.Serve(ln); err != nil {
				return fmt.Errorf("socks serve %s: %w", addr, err)
			}
			return nil
		})
		logger.Info("socks proxy listening", "addr", ln.Addr().String())
	}

	err = g.Wait()
	logger.Info("shutting down")
	return err
}

func parseTCPKeepAlive(s string) (net.KeepAliveConfig, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return net.KeepAliveConfig{}, errors.New("empty")
	}
	if s == "on" {
		return net.KeepAliveConfig{Enable: true}, nil
	}
	if s == "off" {
		return net.KeepAliveConfig{Enable: false}, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return net.KeepAliveConfig{}, errors.New("expected on|off|keepidle:keepintvl:keepcnt")
	}
	keepIdle, err := parsePositiveSeconds(parts[0])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepidle: %w", err)
	}
	keepIntvl, err := parsePositiveSeconds(parts[1])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepintvl: %w", err)
	}
	keepCnt, err := parsePositiveInt(parts[2])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepcnt: %w", err)
	}

	return net.KeepAliveConfig{
		Enable:   true,
		Idle:     keepIdle,
		Interval: keepIntvl,
		Count:    keepCnt,
	}, nil
}

func parsePositiveSeconds(s string) (time.Duration, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be > 0")
	}
	return time.Duration(n) * time.Second, nil
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be > 0")
	}
	return n, nil
}

func defaultUpstream() string {
	if p := os.Getenv("ALL_PROXY"); p != "" {
		return p
	}

	if p := os.Getenv("all_proxy"); p != "" {
		return p
	}

	return "direct://"
}
