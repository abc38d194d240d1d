// Package config provides loading and environment overlay for the adapter's
// runtime configuration. It exposes a Default() baseline plus file and env
// overlays.
//
// Example:
//
//	cfg := config.Default()
//	if fileCfg, err := config.Load("/etc/fanout.json"); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg)
//	a, _ := adapter.Open(adapter.Options{Nsp: "/", Store: st, Host: host, Config: cfg})
//	defer a.Close()
package config
