package bootstrap

import (
    "context"
    "crypto/tls"
    "log"
    "path/filepath"
    "strconv"
    "time"

    "github.com/amirimatin/go-freshness/pkg/discovery"
    dDNS "github.com/amirimatin/go-freshness/pkg/discovery/dns"
    dFile "github.com/amirimatin/go-freshness/pkg/discovery/file"
    dStatic "github.com/amirimatin/go-freshness/pkg/discovery/static"
    "github.com/amirimatin/go-freshness/pkg/freshness"
    "github.com/amirimatin/go-freshness/pkg/membership"
    ml "github.com/amirimatin/go-freshness/pkg/membership/memberlist"
    "github.com/amirimatin/go-freshness/pkg/node"
    tlsx "github.com/amirimatin/go-freshness/pkg/security/tlsconfig"
    "github.com/amirimatin/go-freshness/pkg/state"
    "github.com/amirimatin/go-freshness/pkg/state/boltstore"
    "github.com/amirimatin/go-freshness/pkg/state/memstore"
    "github.com/amirimatin/go-freshness/pkg/transport"
    votegrpc "github.com/amirimatin/go-freshness/pkg/transport/grpc"
    "github.com/amirimatin/go-freshness/pkg/transport/httpjson"
)

// Config defines high-level inputs to assemble a freshness node with
// sensible defaults. Applications embed the node by providing this
// structure and calling Build/Run.
type Config struct {
    // Identity
    NodeID        string
    SetName       string
    MemberID      int64
    ConfigVersion int64 // defaults to 1

    // Addresses
    VoteAddr      string // gRPC vote endpoint bind, e.g. ":9521"
    VoteAdvertise string // optional externally dialable vote address
    MemBind       string // membership bind host:port
    MemAdv        string // optional membership advertise host:port
    AdminAddr     string // optional HTTP admin endpoint (status/check/optime/metrics)

    // Discovery settings
    DiscoveryKind string        // "static" (default), "dns", or "file"
    SeedsCSV      string        // used when DiscoveryKind=static
    DNSNamesCSV   string        // used when kind=dns
    DNSPort       int           // used when kind=dns (A/AAAA)
    DiscRefresh   time.Duration // cache/refresh duration for discovery
    FilePath      string        // used when kind=file
    FileEnv       string        // used when kind=file

    // Persistence
    DataDir string // empty → optime kept in memory only

    // Round tuning
    CheckTimeout time.Duration // bound for one freshness round
    SendTimeout  time.Duration // per-peer command timeout (default 3s)

    // TLS (optional) for the vote and admin endpoints
    TLSEnable     bool
    TLSCA         string
    TLSCert       string
    TLSKey        string
    TLSServerName string
    TLSSkipVerify bool

    // Policy (optional) lets the application veto candidates.
    Policy freshness.VetoPolicy

    // Logger (optional). If nil, log.Default() is used.
    Logger *log.Logger
}

// Build assembles a node.Node from Config without starting it.
func Build(cfg Config) (*node.Node, error) {
    if cfg.Logger == nil { cfg.Logger = log.Default() }
    if cfg.ConfigVersion < 1 { cfg.ConfigVersion = 1 }

    // Discovery backend
    var disc discovery.Discovery
    switch cfg.DiscoveryKind {
    case "dns":
        names := dStatic.Parse(cfg.DNSNamesCSV)
        opts := dDNS.Options{Names: names, Port: cfg.DNSPort}
        if cfg.DiscRefresh > 0 { opts.Refresh = cfg.DiscRefresh }
        disc = dDNS.New(opts)
    case "file":
        opts := dFile.Options{Path: cfg.FilePath, Env: cfg.FileEnv}
        if cfg.DiscRefresh > 0 { opts.Refresh = cfg.DiscRefresh }
        disc = dFile.New(opts)
    default:
        seeds := dStatic.Parse(cfg.SeedsCSV)
        disc = dStatic.New(seeds...)
    }

    // Optime persistence
    var store state.OpTimeStore
    if cfg.DataDir != "" {
        s, err := boltstore.Open(filepath.Join(cfg.DataDir, "optime.db"))
        if err != nil { return nil, err }
        store = s
    } else {
        store = memstore.New()
    }

    voteAdv := cfg.VoteAdvertise
    if voteAdv == "" { voteAdv = cfg.VoteAddr }

    // Membership (memberlist), gossiping the vote identity so peers can
    // assemble the replica set view without a configuration service.
    memMeta := map[string]string{
        membership.MetaVoteAddr: voteAdv,
        membership.MetaMemberID: strconv.FormatInt(cfg.MemberID, 10),
    }
    if cfg.AdminAddr != "" { memMeta[membership.MetaAdminAddr] = cfg.AdminAddr }
    mem, err := ml.New(ml.Options{NodeID: cfg.NodeID, Bind: cfg.MemBind, Advertise: cfg.MemAdv, Logger: cfg.Logger, Meta: memMeta})
    if err != nil { return nil, err }

    // Vote transport (gRPC both ways)
    var srvTLS, cliTLS *tls.Config
    if cfg.TLSEnable {
        topts := tlsx.Options{Enable: true, CAFile: cfg.TLSCA, CertFile: cfg.TLSCert, KeyFile: cfg.TLSKey, InsecureSkipVerify: cfg.TLSSkipVerify, ServerName: cfg.TLSServerName}
        // Prefer hot-reload configs to allow manual rotation by replacing files
        if s, err := topts.ServerHotReload(); err == nil { srvTLS = s } else { return nil, err }
        if c, err := topts.ClientHotReload(); err == nil { cliTLS = c } else { return nil, err }
    }
    sendTimeout := cfg.SendTimeout
    if sendTimeout <= 0 { sendTimeout = 3 * time.Second }
    votes := votegrpc.NewServer(cfg.VoteAddr)
    if srvTLS != nil { votes.UseTLS(srvTLS) }
    msgr := votegrpc.NewClient(sendTimeout)
    if cliTLS != nil { msgr.UseTLS(cliTLS) }

    // Admin API
    var admin transport.AdminServer
    if cfg.AdminAddr != "" {
        a := httpjson.NewServer(cfg.AdminAddr, cfg.Logger)
        if srvTLS != nil { a.UseTLS(srvTLS) }
        admin = a
    }

    opts := node.Options{
        NodeID:        cfg.NodeID,
        SetName:       cfg.SetName,
        MemberID:      cfg.MemberID,
        ConfigVersion: cfg.ConfigVersion,
        VoteAddr:      voteAdv,
        Messenger:     msgr,
        Membership:    mem,
        Discovery:     disc,
        VoteServer:    votes,
        AdminServer:   admin,
        Store:         store,
        Policy:        cfg.Policy,
        Logger:        cfg.Logger,
        CheckTimeout:  cfg.CheckTimeout,
    }
    return node.New(context.Background(), opts)
}

// Run builds and starts the node, returning the instance for lifecycle
// control. The caller is responsible for calling Close() when finished.
func Run(ctx context.Context, cfg Config) (*node.Node, error) {
    n, err := Build(cfg)
    if err != nil { return nil, err }
    if err := n.Start(ctx); err != nil { return nil, err }
    return n, nil
}
