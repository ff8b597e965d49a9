// Package config implements raccessd's TOML server configuration,
// grounded on the katzenpost authority server's config package: the
// same Load/LoadFile plus FixupAndValidate shape, one struct per TOML
// table, defaults applied after validation of what the operator did
// supply.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	defaultListenAddress = ":3389"
	defaultLogLevel      = "NOTICE"
	defaultTicketTTL     = 300
)

// Server carries the four configuration options spec.md enumerates,
// plus the listen address a katzenpost-style config always needs.
type Server struct {
	// ListenAddress is the TCP address raccessd binds to.
	ListenAddress string

	// AnonymousAccess is "ENABLE" or "DISABLE": whether identify=ANONYMOUS
	// is accepted at all.
	AnonymousAccess string

	// SessionTypes is the bitmask of session types offered in anonymous
	// mode. Meaningless when AnonymousAccess is DISABLE.
	SessionTypes uint32

	// PrivateKeyHex is the server's X25519 private key, hex-encoded.
	// Empty disables the key-agreement leg of the handshake entirely.
	PrivateKeyHex string

	// TransferType is "DOWNLOADER" or "UPLOADER": which direction this
	// server binds its file-transfer engine to.
	TransferType string

	// ErasureDataShards and ErasureParityShards enable Reed-Solomon
	// erasure coding of FilePacket payloads for every transfer this
	// server drives. Both zero disables erasure coding; otherwise both
	// must be positive.
	ErasureDataShards   int
	ErasureParityShards int
}

func (s *Server) validate() error {
	if s.ListenAddress == "" {
		s.ListenAddress = defaultListenAddress
	}

	access := strings.ToUpper(s.AnonymousAccess)
	switch access {
	case "ENABLE", "DISABLE", "":
		if access == "" {
			access = "DISABLE"
		}
	default:
		return fmt.Errorf("config: Server: AnonymousAccess %q is invalid", s.AnonymousAccess)
	}
	s.AnonymousAccess = access

	if s.AnonymousAccess == "ENABLE" {
		if s.PrivateKeyHex == "" {
			return fmt.Errorf("config: Server: AnonymousAccess requires PrivateKeyHex")
		}
		if s.SessionTypes == 0 {
			return fmt.Errorf("config: Server: AnonymousAccess requires a non-zero SessionTypes mask")
		}
	}

	if s.PrivateKeyHex != "" && len(s.PrivateKeyHex) != 64 {
		return fmt.Errorf("config: Server: PrivateKeyHex must be 32 bytes hex-encoded")
	}

	transfer := strings.ToUpper(s.TransferType)
	switch transfer {
	case "DOWNLOADER", "UPLOADER":
	case "":
		return fmt.Errorf("config: Server: TransferType is required")
	default:
		return fmt.Errorf("config: Server: TransferType %q is invalid", s.TransferType)
	}
	s.TransferType = transfer

	if (s.ErasureDataShards == 0) != (s.ErasureParityShards == 0) {
		return fmt.Errorf("config: Server: ErasureDataShards and ErasureParityShards must both be zero or both be positive")
	}
	if s.ErasureDataShards < 0 || s.ErasureParityShards < 0 {
		return fmt.Errorf("config: Server: erasure shard counts must not be negative")
	}

	return nil
}

// PrivateKey returns the decoded 32-byte private key, and false if none
// was configured.
func (s *Server) PrivateKey() ([32]byte, bool, error) {
	var key [32]byte
	if s.PrivateKeyHex == "" {
		return key, false, nil
	}
	decoded, err := hex.DecodeString(s.PrivateKeyHex)
	if err != nil || len(decoded) != len(key) {
		return key, false, fmt.Errorf("config: Server: PrivateKeyHex is not valid hex")
	}
	copy(key[:], decoded)
	return key, true, nil
}

// Logging is the raccessd logging configuration, the same shape as the
// katzenpost authority's Logging table.
type Logging struct {
	Disable bool
	File    string
	Level   string
}

func (l *Logging) validate() error {
	lvl := strings.ToUpper(l.Level)
	switch lvl {
	case "ERROR", "WARNING", "NOTICE", "INFO", "DEBUG":
	case "":
		lvl = defaultLogLevel
	default:
		return fmt.Errorf("config: Logging: Level %q is invalid", l.Level)
	}
	l.Level = lvl
	return nil
}

// Ticket controls the optional session-resumption fast path described
// in SPEC_FULL.md's data-model extensions; it is additive and never
// required for a correct handshake.
type Ticket struct {
	Enable     bool
	TTLSeconds int
}

func (t *Ticket) applyDefaults() {
	if t.TTLSeconds <= 0 {
		t.TTLSeconds = defaultTicketTTL
	}
}

// Config is the top-level raccessd configuration.
type Config struct {
	Server  *Server
	Logging *Logging
	Ticket  *Ticket
}

// FixupAndValidate applies defaults and validates every section. Most
// callers should use Load or LoadFile instead.
func (cfg *Config) FixupAndValidate() error {
	if cfg.Server == nil {
		return fmt.Errorf("config: no Server block was present")
	}
	if cfg.Logging == nil {
		cfg.Logging = &Logging{Level: defaultLogLevel}
	}
	if cfg.Ticket == nil {
		cfg.Ticket = &Ticket{}
	}

	if err := cfg.Server.validate(); err != nil {
		return err
	}
	if err := cfg.Logging.validate(); err != nil {
		return err
	}
	cfg.Ticket.applyDefaults()

	if cfg.Ticket.Enable && cfg.Server.PrivateKeyHex == "" {
		return fmt.Errorf("config: Ticket: Enable requires Server.PrivateKeyHex, since tickets are sealed under the host's identity key")
	}

	return nil
}

// Load parses and validates b as a TOML config file body.
func Load(b []byte) (*Config, error) {
	cfg := new(Config)
	md, err := toml.Decode(string(b), cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("config: undecoded keys in config file: %v", undecoded)
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads, parses and validates the config file at path f.
func LoadFile(f string) (*Config, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}
