package main

import (
	"fmt"
	"sort"

	"github.com/urfave/cli/v2"
)

var (
	rpcFlag = cli.StringFlag{
		Name:  "rpcserver",
		Usage: "broker daemon address host:port",
		Value: "localhost:9090",
	}

	config = cli.Command{
		Name:   "config",
		Usage:  "Print local configuration of the broker CLI",
		Action: configAction,
		Subcommands: []*cli.Command{
			{
				Name:      "set",
				Usage:     "set a <key> <value> in the local state",
				ArgsUsage: "<key> <value>",
				Action:    configSetAction,
			},
			{
				Name:   "init",
				Usage:  "initialize the local state with flags",
				Action: configInitAction,
				Flags: []cli.Flag{
					&rpcFlag,
				},
			},
		},
	}
)

func configAction(ctx *cli.Context) error {
	state, err := getState()
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(state))
	for key := range state {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Println(key + ": " + state[key])
	}

	return nil
}

func configInitAction(ctx *cli.Context) error {
	return setState(map[string]string{
		"rpcserver": ctx.String("rpcserver"),
	})
}

func configSetAction(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return fmt.Errorf("key and value are missing")
	}

	key := ctx.Args().Get(0)
	value := ctx.Args().Get(1)
	if err := setState(map[string]string{key: value}); err != nil {
		return err
	}

	fmt.Printf("%s %s has been set\n", key, value)
	return nil
}
