package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/erpc/walletrpc/common"
	"github.com/erpc/walletrpc/erpc"
	"github.com/erpc/walletrpc/server"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

const defaultConfigPath = "./walletrpc.yaml"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newCommand(afero.NewOsFs(), os.Stdout).Run(ctx, os.Args); err != nil {
		log.Error().Err(err).Msg("walletrpc failed")
		os.Exit(1)
	}
}

func newCommand(fs afero.Fs, out io.Writer) *cli.Command {
	configFlag := &cli.StringFlag{
		Name:  "config",
		Value: defaultConfigPath,
		Usage: "path to the yaml config file",
	}

	start := &cli.Command{
		Name:  "start",
		Usage: "serve the json-rpc proxy",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runStart(ctx, fs, configPath(cmd))
		},
	}

	call := &cli.Command{
		Name:      "call",
		Usage:     "send one json-rpc call through the configured networks and print the result",
		ArgsUsage: "<method> [params-json]",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "network",
				Usage: "network id to call, repeat to fan out; defaults to the only configured network",
			},
			&cli.BoolFlag{
				Name:  "no-batching",
				Usage: "bypass multicall aggregation",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runCall(ctx, fs, out, configPath(cmd), cmd.StringSlice("network"), !cmd.Bool("no-batching"), cmd.Args().Slice())
		},
	}

	return &cli.Command{
		Name:     "walletrpc",
		Usage:    "resilient json-rpc layer for wallets",
		Flags:    []cli.Flag{configFlag},
		Commands: []*cli.Command{start, call},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runStart(ctx, fs, configPath(cmd))
		},
	}
}

// configPath accepts the config either as --config, which subcommands
// inherit from the root, or as the first positional argument of start.
func configPath(cmd *cli.Command) string {
	if cmd.IsSet("config") {
		return cmd.String("config")
	}
	if cmd.Name != "call" && cmd.Args().Len() > 0 {
		return cmd.Args().First()
	}
	return cmd.String("config")
}

func loadConfig(fs afero.Fs, path string) (*common.Config, error) {
	if _, err := fs.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config file '%s' does not exist", path)
	}

	log.Info().Msgf("loading configuration from %s", path)
	cfg, err := common.LoadConfig(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		log.Warn().Msgf("invalid log level '%s', defaulting to 'debug': %s", cfg.LogLevel, err)
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(level)
	}

	return cfg, nil
}

func runStart(ctx context.Context, fs afero.Fs, path string) error {
	cfg, err := loadConfig(fs, path)
	if err != nil {
		return err
	}

	registry := erpc.NewNetworksRegistry(&log.Logger, nil)
	if err := registry.Reload(cfg.Networks); err != nil {
		return err
	}
	defer registry.Shutdown()

	log.Info().Object("server", cfg.Server).Msg("starting walletrpc")
	return server.NewHttpServer(&log.Logger, cfg.Server, cfg.Metrics, registry).Run(ctx)
}

func runCall(ctx context.Context, fs afero.Fs, out io.Writer, path string, networkIds []string, useBatching bool, args []string) error {
	if len(args) == 0 {
		return errors.New("method is required")
	}
	method := args[0]

	var params []interface{}
	if len(args) > 1 {
		if err := common.SonicCfg.UnmarshalFromString(args[1], &params); err != nil {
			return fmt.Errorf("params must be a json array: %w", err)
		}
	}

	cfg, err := loadConfig(fs, path)
	if err != nil {
		return err
	}

	registry := erpc.NewNetworksRegistry(&log.Logger, nil)
	if err := registry.Reload(cfg.Networks); err != nil {
		return err
	}
	defer registry.Shutdown()

	if len(networkIds) == 0 {
		networkIds = []string{""}
	}
	networks := make([]*erpc.Network, len(networkIds))
	for i, id := range networkIds {
		nw, err := registry.GetNetwork(id)
		if err != nil {
			return err
		}
		networks[i] = nw
	}

	results := make([]string, len(networks))
	eg, ctx := errgroup.WithContext(ctx)
	for i, nw := range networks {
		i, nw := i, nw
		eg.Go(func() error {
			res, err := nw.Send(ctx, method, params, useBatching)
			if err != nil {
				return fmt.Errorf("%s: %w", nw.Id(), err)
			}
			results[i] = string(res)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	if len(networks) == 1 {
		_, err = fmt.Fprintln(out, results[0])
		return err
	}
	lines := make([]string, len(networks))
	for i, nw := range networks {
		lines[i] = nw.Id() + "\t" + results[i]
	}
	_, err = fmt.Fprintln(out, strings.Join(lines, "\n"))
	return err
}
