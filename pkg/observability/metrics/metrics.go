package metrics

import (
    "sync"

    "github.com/prometheus/client_golang/prometheus"
)

var (
    once sync.Once

    Members = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "go_freshness",
        Name:      "members_total",
        Help:      "Current number of known replica set members",
    })

    RoundsStarted = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "go_freshness",
        Name:      "rounds_started_total",
        Help:      "Total freshness rounds started by this node",
    })

    Rounds = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "go_freshness",
        Name:      "rounds_total",
        Help:      "Total finished freshness rounds by verdict",
    }, []string{"result"})

    RoundDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
        Namespace: "go_freshness",
        Name:      "round_duration_seconds",
        Help:      "Time from scatter to verdict for a freshness round",
    })

    VotesAnswered = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "go_freshness",
        Name:      "votes_answered_total",
        Help:      "Total freshness commands answered for candidate peers",
    }, []string{"verdict"})

    GRPCConnDials = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "go_freshness",
        Subsystem: "grpc_conn",
        Name:      "dials_total",
        Help:      "Total number of new gRPC connections dialed",
    })
    GRPCConnReuse = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "go_freshness",
        Subsystem: "grpc_conn",
        Name:      "reuse_total",
        Help:      "Total number of gRPC connection reuses from cache",
    })
    GRPCConnEvictions = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "go_freshness",
        Subsystem: "grpc_conn",
        Name:      "evictions_total",
        Help:      "Total number of cached gRPC connections evicted",
    })
    GRPCConnActive = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "go_freshness",
        Subsystem: "grpc_conn",
        Name:      "active",
        Help:      "Number of active cached gRPC connections",
    })

    // Watch stream metrics
    WatchSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "go_freshness",
        Subsystem: "watch",
        Name:      "subscribers",
        Help:      "Number of active round watch subscribers",
    })
    WatchUpdates = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "go_freshness",
        Subsystem: "watch",
        Name:      "updates_total",
        Help:      "Total round updates fanned out to watch subscribers",
    })
    WatchDropped = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "go_freshness",
        Subsystem: "watch",
        Name:      "dropped_total",
        Help:      "Total round updates dropped on slow watch subscribers",
    })
)

// Register registers metrics into the default Prometheus registry (idempotent).
func Register() {
    once.Do(func() {
        prometheus.MustRegister(Members)
        prometheus.MustRegister(RoundsStarted)
        prometheus.MustRegister(Rounds)
        prometheus.MustRegister(RoundDuration)
        prometheus.MustRegister(VotesAnswered)
        prometheus.MustRegister(GRPCConnDials)
        prometheus.MustRegister(GRPCConnReuse)
        prometheus.MustRegister(GRPCConnEvictions)
        prometheus.MustRegister(GRPCConnActive)
        // watch
        prometheus.MustRegister(WatchSubscribers)
        prometheus.MustRegister(WatchUpdates)
        prometheus.MustRegister(WatchDropped)
    })
}
