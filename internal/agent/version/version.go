package version

import (
	"time"

	"sitepulse/internal/config"
)

type Info struct {
	Service         string `json:"service"`
	Version         string `json:"version"`
	ListenAddr      string `json:"listen_addr"`
	ProbeListenAddr string `json:"probe_listen_addr"`
	StreamMode      string `json:"stream_mode"`
	Targets         int    `json:"targets"`
	CheckedAtUnix   int64  `json:"checked_at_unix"`
}

func Get(cfg config.Config) Info {
	return Info{
		Service:         cfg.ServiceName,
		Version:         cfg.AgentVersion,
		ListenAddr:      cfg.ListenAddr,
		ProbeListenAddr: cfg.ProbeListenAddr,
		StreamMode:      string(cfg.StreamMode),
		Targets:         len(cfg.Targets),
		CheckedAtUnix:   time.Now().UTC().Unix(),
	}
}
