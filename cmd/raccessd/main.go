package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/coreloop/raccess/auth"
	"github.com/coreloop/raccess/config"
	"github.com/coreloop/raccess/filetransfer"
	"github.com/coreloop/raccess/logging"
)

func newRootCommand() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "raccessd",
		Short: "raccess remote-administration host agent",
		Long: `raccessd accepts connections from a remote console, authenticates them
with an SRP-6a or anonymous handshake over an AEAD-sealed channel, and
serves file-transfer requests against the local filesystem once a
session is established.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configFile)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "f", "raccessd.toml",
		"path to the raccessd configuration file (TOML format)")

	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return fmt.Errorf("raccessd: failed to load config file %q: %w", configFile, err)
	}

	if !cfg.Logging.Disable {
		if err := logging.Init(cfg.Logging.File, cfg.Logging.Level); err != nil {
			return fmt.Errorf("raccessd: failed to init logging: %w", err)
		}
	}

	params, err := buildHostParams(cfg)
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", cfg.Server.ListenAddress)
	if err != nil {
		return fmt.Errorf("raccessd: failed to listen on %q: %w", cfg.Server.ListenAddress, err)
	}
	log.Noticef("listening on %s", cfg.Server.ListenAddress)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Notice("shutting down")
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-sigCh:
				return nil
			default:
			}
			log.Warningf("accept failed: %v", err)
			return err
		}
		go serveConnection(conn, params)
	}
}

// buildHostParams translates the loaded TOML configuration into the
// runtime types the auth and filetransfer packages consume.
func buildHostParams(cfg *config.Config) (hostParams, error) {
	seedKey, err := auth.NewRandomSeedKey()
	if err != nil {
		return hostParams{}, fmt.Errorf("raccessd: failed to generate credential seed key: %w", err)
	}

	params := hostParams{
		credentials:  auth.NewCredentialStore(nil, seedKey),
		sessionTypes: cfg.Server.SessionTypes,
	}

	if cfg.Server.AnonymousAccess == "ENABLE" {
		params.anonymousAccess = auth.AnonymousAccessEnable
	} else {
		params.anonymousAccess = auth.AnonymousAccessDisable
	}

	if key, ok, err := cfg.Server.PrivateKey(); err != nil {
		return hostParams{}, fmt.Errorf("raccessd: %w", err)
	} else if ok {
		params.privateKey = key
		params.hasPrivateKey = true
	}

	if cfg.Server.TransferType == "UPLOADER" {
		params.transferType = transfer.Uploader
	} else {
		params.transferType = transfer.Downloader
	}

	params.erasureDataShards = cfg.Server.ErasureDataShards
	params.erasureParityShards = cfg.Server.ErasureParityShards

	if cfg.Ticket.Enable {
		if !params.hasPrivateKey {
			return hostParams{}, fmt.Errorf("raccessd: Ticket.Enable requires Server.PrivateKeyHex")
		}
		store, err := auth.NewTicketStore(params.privateKey[:], time.Duration(cfg.Ticket.TTLSeconds)*time.Second)
		if err != nil {
			return hostParams{}, fmt.Errorf("raccessd: failed to init ticket store: %w", err)
		}
		params.ticketStore = store
	}

	return params, nil
}
