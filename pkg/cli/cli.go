package cli

import (
    "context"
    "crypto/tls"
    "encoding/json"
    "fmt"
    "log"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/spf13/cobra"

    "github.com/amirimatin/go-freshness/pkg/bootstrap"
    tracing "github.com/amirimatin/go-freshness/pkg/observability/tracing"
    tlsx "github.com/amirimatin/go-freshness/pkg/security/tlsconfig"
    "github.com/amirimatin/go-freshness/pkg/transport"
    votegrpc "github.com/amirimatin/go-freshness/pkg/transport/grpc"
    "github.com/amirimatin/go-freshness/pkg/transport/httpjson"
)

// AddAll attaches freshness subcommands (run/status/check/set-optime/watch)
// to the provided root command.
func AddAll(root *cobra.Command) {
    root.AddCommand(NewRunCmd())
    root.AddCommand(NewStatusCmd())
    root.AddCommand(NewCheckCmd())
    root.AddCommand(NewSetOpTimeCmd())
    root.AddCommand(NewWatchCmd())
}

// NewFreshnessCommand returns a parent command "freshness" containing
// run/status/check/set-optime/watch as subcommands.
func NewFreshnessCommand() *cobra.Command {
    parent := &cobra.Command{Use: "freshness", Short: "freshness voting commands"}
    parent.AddCommand(NewRunCmd())
    parent.AddCommand(NewStatusCmd())
    parent.AddCommand(NewCheckCmd())
    parent.AddCommand(NewSetOpTimeCmd())
    parent.AddCommand(NewWatchCmd())
    return parent
}

// NewRunCmd returns the "run" command used to start a freshness node.
func NewRunCmd() *cobra.Command {
    var (
        id, set, voteAddr, voteAdv, memBind, memAdv, joinCSV, adminAddr, discoveryKind string
        dnsNames, filePath, fileEnv                                                   string
        memberID, cfgVer                                                              int64
        dnsPort                                                                       int
        discRefresh, checkTimeout, sendTimeout                                        time.Duration
        tlsEnable, tlsSkip, traceEnable                                               bool
        tlsCA, tlsCert, tlsKey, tlsServerName, dataDir                                string
    )
    cmd := &cobra.Command{
        Use:   "run",
        Short: "Run a freshness node",
        RunE: func(cmd *cobra.Command, args []string) error {
            if id == "" { return fmt.Errorf("missing -id") }
            if memberID < 0 { return fmt.Errorf("missing -member-id") }
            ctx, cancel := signalContext()
            defer cancel()

            if traceEnable {
                shutdown, err := tracing.Setup(true)
                if err != nil {
                    log.Printf("tracing setup error: %v", err)
                } else {
                    defer func() { _ = shutdown(context.Background()) }()
                }
            }

            cfg := bootstrap.Config{
                NodeID:        id,
                SetName:       set,
                MemberID:      memberID,
                ConfigVersion: cfgVer,
                VoteAddr:      voteAddr,
                VoteAdvertise: voteAdv,
                MemBind:       memBind,
                MemAdv:        memAdv,
                AdminAddr:     adminAddr,
                DiscoveryKind: discoveryKind,
                SeedsCSV:      joinCSV,
                DNSNamesCSV:   dnsNames,
                DNSPort:       dnsPort,
                DiscRefresh:   discRefresh,
                FilePath:      filePath,
                FileEnv:       fileEnv,
                DataDir:       dataDir,
                CheckTimeout:  checkTimeout,
                SendTimeout:   sendTimeout,
                TLSEnable:     tlsEnable,
                TLSCA:         tlsCA,
                TLSCert:       tlsCert,
                TLSKey:        tlsKey,
                TLSServerName: tlsServerName,
                TLSSkipVerify: tlsSkip,
                Logger:        log.Default(),
            }
            n, err := bootstrap.Run(ctx, cfg)
            if err != nil { return err }
            defer n.Close()

            fmt.Println("freshness node running. Press Ctrl+C to exit.")
            <-ctx.Done()
            return nil
        },
    }
    cmd.Flags().StringVar(&id, "id", "", "node id (required)")
    cmd.Flags().StringVar(&set, "set", "rs0", "replica set name")
    cmd.Flags().Int64Var(&memberID, "member-id", -1, "replica set member id (required)")
    cmd.Flags().Int64Var(&cfgVer, "cfgver", 1, "replica set configuration version")
    cmd.Flags().StringVar(&voteAddr, "vote-addr", ":9521", "vote endpoint bind addr (tcp)")
    cmd.Flags().StringVar(&voteAdv, "vote-adv", "", "vote endpoint advertise addr (host:port, optional)")
    cmd.Flags().StringVar(&memBind, "mem-bind", ":7946", "membership bind addr (host:port)")
    cmd.Flags().StringVar(&memAdv, "mem-adv", "", "membership advertise addr (host:port, optional)")
    cmd.Flags().StringVar(&joinCSV, "join", "", "comma-separated seed nodes (host:port), used by discovery=static")
    cmd.Flags().StringVar(&adminAddr, "admin-addr", ":17946", "admin HTTP address (status/check/optime/metrics)")
    cmd.Flags().StringVar(&discoveryKind, "discovery", "static", "discovery backend: static|dns|file")
    cmd.Flags().StringVar(&dnsNames, "dns-names", "", "comma-separated DNS names or SRV records (e.g., _freshness._tcp.example.com)")
    cmd.Flags().IntVar(&dnsPort, "dns-port", 7946, "port used for A/AAAA lookups")
    cmd.Flags().DurationVar(&discRefresh, "disc-refresh", 5*time.Second, "discovery refresh/cache duration")
    cmd.Flags().StringVar(&filePath, "file-path", "", "path or glob to a file with seeds (one per line or CSV)")
    cmd.Flags().StringVar(&fileEnv, "file-env", "", "ENV var name containing CSV seeds; overrides file when set")
    cmd.Flags().DurationVar(&checkTimeout, "check-timeout", 10*time.Second, "upper bound for one freshness round")
    cmd.Flags().DurationVar(&sendTimeout, "send-timeout", 3*time.Second, "per-peer freshness command timeout")
    cmd.Flags().BoolVar(&tlsEnable, "tls-enable", false, "enable mTLS for vote and admin transports")
    cmd.Flags().StringVar(&tlsCA, "tls-ca", "", "path to CA cert (PEM)")
    cmd.Flags().StringVar(&tlsCert, "tls-cert", "", "path to node certificate (PEM)")
    cmd.Flags().StringVar(&tlsKey, "tls-key", "", "path to node private key (PEM)")
    cmd.Flags().BoolVar(&tlsSkip, "tls-skip-verify", false, "skip server cert verification (DEV ONLY)")
    cmd.Flags().StringVar(&tlsServerName, "tls-server-name", "", "expected server name (for TLS validation)")
    cmd.Flags().BoolVar(&traceEnable, "trace", false, "enable OpenTelemetry stdout tracing (dev)")
    cmd.Flags().StringVar(&dataDir, "data", "", "data dir for the persisted optime")
    return cmd
}

// NewStatusCmd returns the "status" command.
func NewStatusCmd() *cobra.Command {
    var (
        addr    string
        timeout time.Duration
        tlsEnable, tlsSkip bool
        tlsCA, tlsCert, tlsKey, tlsServerName string
    )
    cmd := &cobra.Command{
        Use:   "status",
        Short: "Fetch node status as JSON",
        RunE: func(cmd *cobra.Command, args []string) error {
            client := httpjson.NewClient(timeout)
            if tlsEnable {
                cliTLS, err := clientTLS(tlsCA, tlsCert, tlsKey, tlsServerName, tlsSkip)
                if err != nil { return err }
                client.UseTLS(cliTLS)
            }
            ctx, cancel := context.WithTimeout(context.Background(), timeout)
            defer cancel()
            data, err := client.GetStatus(ctx, addr)
            if err != nil { return fmt.Errorf("status error: %w", err) }
            os.Stdout.Write(data)
            if len(data) == 0 || data[len(data)-1] != '\n' { os.Stdout.Write([]byte("\n")) }
            return nil
        },
    }
    cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:17946", "admin HTTP address of a node (host:port)")
    cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "request timeout")
    addClientTLSFlags(cmd, &tlsEnable, &tlsCA, &tlsCert, &tlsKey, &tlsServerName, &tlsSkip)
    return cmd
}

// NewCheckCmd returns the "check" command, running one freshness round on
// a node and printing the verdict.
func NewCheckCmd() *cobra.Command {
    var (
        addr         string
        timeout      time.Duration
        roundTimeout time.Duration
        tlsEnable, tlsSkip bool
        tlsCA, tlsCert, tlsKey, tlsServerName string
    )
    cmd := &cobra.Command{
        Use:   "check",
        Short: "Run one freshness round on a node",
        RunE: func(cmd *cobra.Command, args []string) error {
            client := httpjson.NewClient(timeout)
            if tlsEnable {
                cliTLS, err := clientTLS(tlsCA, tlsCert, tlsKey, tlsServerName, tlsSkip)
                if err != nil { return err }
                client.UseTLS(cliTLS)
            }
            ctx, cancel := context.WithTimeout(context.Background(), timeout)
            defer cancel()
            req := transport.CheckRequest{}
            if roundTimeout > 0 { req.TimeoutMillis = roundTimeout.Milliseconds() }
            res, err := client.PostCheck(ctx, addr, req)
            if err != nil { return fmt.Errorf("check error: %w", err) }
            return json.NewEncoder(os.Stdout).Encode(res)
        },
    }
    cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:17946", "admin HTTP address of a node (host:port)")
    cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "request timeout")
    cmd.Flags().DurationVar(&roundTimeout, "round-timeout", 0, "optional bound for the round itself")
    addClientTLSFlags(cmd, &tlsEnable, &tlsCA, &tlsCert, &tlsKey, &tlsServerName, &tlsSkip)
    return cmd
}

// NewSetOpTimeCmd returns the "set-optime" command, advancing a node's
// last applied optime.
func NewSetOpTimeCmd() *cobra.Command {
    var (
        addr       string
        secs, inc  uint32
        timeout    time.Duration
        tlsEnable, tlsSkip bool
        tlsCA, tlsCert, tlsKey, tlsServerName string
    )
    cmd := &cobra.Command{
        Use:   "set-optime",
        Short: "Advance a node's last applied optime",
        RunE: func(cmd *cobra.Command, args []string) error {
            client := httpjson.NewClient(timeout)
            if tlsEnable {
                cliTLS, err := clientTLS(tlsCA, tlsCert, tlsKey, tlsServerName, tlsSkip)
                if err != nil { return err }
                client.UseTLS(cliTLS)
            }
            ctx, cancel := context.WithTimeout(context.Background(), timeout)
            defer cancel()
            res, err := client.PostAdvance(ctx, addr, transport.AdvanceRequest{Secs: secs, Inc: inc})
            if err != nil { return fmt.Errorf("set-optime error: %w", err) }
            return json.NewEncoder(os.Stdout).Encode(res)
        },
    }
    cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:17946", "admin HTTP address of a node (host:port)")
    cmd.Flags().Uint32Var(&secs, "secs", 0, "optime seconds component")
    cmd.Flags().Uint32Var(&inc, "inc", 0, "optime increment component")
    cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "request timeout")
    addClientTLSFlags(cmd, &tlsEnable, &tlsCA, &tlsCert, &tlsKey, &tlsServerName, &tlsSkip)
    return cmd
}

// NewWatchCmd returns the "watch" command, streaming round verdicts from
// a node's vote endpoint until interrupted.
func NewWatchCmd() *cobra.Command {
    var (
        addr, id string
        tlsEnable, tlsSkip bool
        tlsCA, tlsCert, tlsKey, tlsServerName string
    )
    cmd := &cobra.Command{
        Use:   "watch",
        Short: "Stream round verdicts from a node's vote endpoint",
        RunE: func(cmd *cobra.Command, args []string) error {
            ctx, cancel := signalContext()
            defer cancel()
            client := votegrpc.NewClient(5 * time.Second)
            defer client.Close()
            if tlsEnable {
                cliTLS, err := clientTLS(tlsCA, tlsCert, tlsKey, tlsServerName, tlsSkip)
                if err != nil { return err }
                client.UseTLS(cliTLS)
            }
            enc := json.NewEncoder(os.Stdout)
            err := client.Watch(ctx, addr, id, func(u transport.RoundUpdate) { _ = enc.Encode(u) })
            if err != nil && ctx.Err() == nil {
                return fmt.Errorf("watch error: %w", err)
            }
            return nil
        },
    }
    cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:9521", "vote gRPC address of a node (host:port)")
    cmd.Flags().StringVar(&id, "id", "freshctl", "watcher id reported to the node")
    addClientTLSFlags(cmd, &tlsEnable, &tlsCA, &tlsCert, &tlsKey, &tlsServerName, &tlsSkip)
    return cmd
}

func addClientTLSFlags(cmd *cobra.Command, enable *bool, ca, cert, key, serverName *string, skip *bool) {
    cmd.Flags().BoolVar(enable, "tls-enable", false, "enable TLS for the connection")
    cmd.Flags().StringVar(ca, "tls-ca", "", "path to CA cert (PEM)")
    cmd.Flags().StringVar(cert, "tls-cert", "", "path to client certificate (PEM)")
    cmd.Flags().StringVar(key, "tls-key", "", "path to client private key (PEM)")
    cmd.Flags().BoolVar(skip, "tls-skip-verify", false, "skip server cert verification (DEV ONLY)")
    cmd.Flags().StringVar(serverName, "tls-server-name", "", "expected server name (for TLS validation)")
}

func clientTLS(ca, cert, key, serverName string, skip bool) (*tls.Config, error) {
    topts := tlsx.Options{Enable: true, CAFile: ca, CertFile: cert, KeyFile: key, InsecureSkipVerify: skip, ServerName: serverName}
    cfg, err := topts.Client()
    if err != nil { return nil, fmt.Errorf("tls client config: %w", err) }
    return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
    ctx, cancel := context.WithCancel(context.Background())
    go func() {
        ch := make(chan os.Signal, 1)
        signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
        <-ch
        cancel()
    }()
    return ctx, cancel
}
