package sshserver

import (
	"time"

	"pkt.systems/jrepl/schema"
)

// Config defines SSH server settings.
type Config struct {
	Addr               string
	HostKeyPath        string
	AuthorizedKeysPath string
	// IdleTimeout closes connections without traffic. Zero disables it.
	IdleTimeout time.Duration
	// Theme selects the transcript palette; schema.ThemePlain disables styling.
	Theme schema.ThemeName
	// HistoryFile is the default target of /save and /load.
	HistoryFile string
}
