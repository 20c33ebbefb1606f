// Package main is the spibus command: it opens a configured bus and runs
// transfers on it.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	periph "periph.io/x/conn/v3/spi"

	"spibus/host/config"
	"spibus/protocol"
	"spibus/spi"
	"spibus/spi/periphspi"
)

const (
	flagConfig  = "config"
	flagVerbose = "verbose"
	flagTimeout = "timeout"
	flagReverse = "reverse"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:            "spibus",
		Usage:           "run SPI transfers on local, kernel or remote buses",
		Version:         protocol.Version,
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load the bus description from `FILE`",
			},
			&cli.BoolFlag{
				Name:  flagVerbose,
				Usage: "enable debug logging",
			},
			&cli.DurationFlag{
				Name:  flagTimeout,
				Value: 10 * time.Second,
				Usage: "give up opening the bus after `DURATION`",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "transfer",
				Usage:     "send hex bytes and print what comes back",
				ArgsUsage: "HEX [HEX...]",
				Description: "Each argument is one packet. All packets run in one transaction,\n" +
					"so chip select stays asserted between them.",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  flagReverse,
						Usage: "send the bytes last to first",
					},
				},
				Action: transferAction,
			},
			{
				Name:   "modes",
				Usage:  "list the SPI modes",
				Action: modesAction,
			},
			{
				Name:   "info",
				Usage:  "print the identify data of a remote board",
				Action: infoAction,
			},
		},
	}
}

func newLogger(c *cli.Context) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	if c.Bool(flagVerbose) {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Encoding = "console"
	}
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String(flagConfig)
	if path == "" {
		return config.LoadConfig([]byte(`{}`))
	}
	return config.Load(path)
}

// withBus opens the configured bus, runs fn and closes it.
func withBus(c *cli.Context, fn func(b *openBus, logger *zap.SugaredLogger) error) (err error) {
	logger, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() {
		// Syncing stderr fails on some terminals.
		_ = logger.Sync()
	}()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Context, c.Duration(flagTimeout))
	defer cancel()

	b, err := open(ctx, cfg, logger)
	if err != nil {
		return errors.Wrapf(err, "opening %s bus", cfg.Kind)
	}
	defer func() {
		err = multierr.Combine(err, b.Close())
	}()
	logger.Debugw("bus open", "kind", cfg.Kind, "mode", b.bus.Mode().String())
	return fn(b, logger)
}

func transferAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("nothing to transfer")
	}
	packets := make([][]byte, c.NArg())
	for i, arg := range c.Args().Slice() {
		data, err := hex.DecodeString(strings.ReplaceAll(arg, ":", ""))
		if err != nil {
			return errors.Wrapf(err, "argument %d", i+1)
		}
		packets[i] = data
	}

	return withBus(c, func(b *openBus, logger *zap.SugaredLogger) error {
		replies, err := transfer(b, packets, c.Bool(flagReverse))
		if err != nil {
			return err
		}
		for _, r := range replies {
			fmt.Fprintln(c.App.Writer, hex.EncodeToString(r))
		}
		return nil
	})
}

// transfer runs packets in one transaction. Forward transfers go through
// the periph connection; reverse ones use the transaction directly.
func transfer(b *openBus, packets [][]byte, reverse bool) ([][]byte, error) {
	replies := make([][]byte, len(packets))
	for i, p := range packets {
		replies[i] = make([]byte, len(p))
	}

	if reverse {
		spi.Do(b.bus, b.sel, func(tx *spi.Transaction) {
			for i, p := range packets {
				tx.WriteReadReverse(len(p), p, replies[i])
			}
		})
		return replies, spi.Err(b.bus)
	}

	conn := periphspi.NewConn(b.bus, b.sel)
	pp := make([]periph.Packet, len(packets))
	for i, p := range packets {
		pp[i] = periph.Packet{W: p, R: replies[i], KeepCS: i < len(packets)-1}
	}
	return replies, conn.TxPackets(pp)
}

func modesAction(c *cli.Context) error {
	for n := uint8(0); n < 4; n++ {
		mode, err := spi.ModeFromNumber(n, spi.DefaultMode().HalfPeriodNs)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, mode.String())
	}
	return nil
}

func infoAction(c *cli.Context) error {
	return withBus(c, func(b *openBus, logger *zap.SugaredLogger) error {
		if b.mcu == nil {
			return errors.New("info needs a remote bus")
		}
		dict := b.mcu.Dictionary()
		w := c.App.Writer
		fmt.Fprintf(w, "version: %s\n", dict.Version)
		fmt.Fprintf(w, "build: %s\n", dict.BuildVersions)
		for _, name := range sortedKeys(dict.Config) {
			fmt.Fprintf(w, "config %s = %s\n", name, dict.Config[name])
		}
		for _, sig := range sortedKeys(dict.Commands) {
			fmt.Fprintf(w, "command %d: %s\n", dict.Commands[sig], sig)
		}
		for _, sig := range sortedKeys(dict.Responses) {
			fmt.Fprintf(w, "response %d: %s\n", dict.Responses[sig], sig)
		}
		for _, name := range sortedKeys(dict.Enumerations) {
			fmt.Fprintf(w, "enumeration %s: %v\n", name, dict.Enumerations[name])
		}

		state, err := b.mcu.GetConfig(c.Context)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "configured: %t crc: %#x shutdown: %t\n", state.IsConfig, state.CRC, state.IsShutdown)
		return nil
	})
}
