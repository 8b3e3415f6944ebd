package replset

import "testing"

func validConfig() Config {
    return Config{
        Name:    "rs0",
        Version: 10,
        Members: []Member{
            {ID: 0, Host: "h0:27017"},
            {ID: 1, Host: "h1:27017"},
            {ID: 2, Host: "h2:27017"},
        },
    }
}

func TestValidateOK(t *testing.T) {
    if err := validConfig().Validate(); err != nil {
        t.Fatalf("valid config rejected: %v", err)
    }
}

func TestValidateRejects(t *testing.T) {
    cases := []struct {
        name string
        mod  func(*Config)
    }{
        {"empty name", func(c *Config) { c.Name = "" }},
        {"zero version", func(c *Config) { c.Version = 0 }},
        {"no members", func(c *Config) { c.Members = nil }},
        {"empty host", func(c *Config) { c.Members[1].Host = "" }},
        {"duplicate id", func(c *Config) { c.Members[2].ID = 0 }},
        {"duplicate host", func(c *Config) { c.Members[2].Host = "h0:27017" }},
    }
    for _, c := range cases {
        cfg := validConfig()
        c.mod(&cfg)
        if err := cfg.Validate(); err == nil {
            t.Fatalf("%s: expected validation error", c.name)
        }
    }
}

func TestFindHostAndID(t *testing.T) {
    cfg := validConfig()
    m, ok := cfg.FindHost("h1:27017")
    if !ok || m.ID != 1 { t.Fatalf("FindHost: %+v, %v", m, ok) }
    if _, ok := cfg.FindHost("h9:27017"); ok { t.Fatalf("FindHost matched unknown host") }

    m, ok = cfg.FindID(2)
    if !ok || m.Host != "h2:27017" { t.Fatalf("FindID: %+v, %v", m, ok) }
    if _, ok := cfg.FindID(9); ok { t.Fatalf("FindID matched unknown id") }
}

func TestPeers(t *testing.T) {
    cfg := validConfig()
    got := cfg.Peers(1)
    if len(got) != 2 || got[0] != "h0:27017" || got[1] != "h2:27017" {
        t.Fatalf("Peers(1) = %#v", got)
    }
}
