package main

import (
	"fmt"
	"net/http"

	"github.com/urfave/cli/v2"
)

var (
	singletrade = cli.Command{
		Name:      "singletrade",
		Usage:     "get the state of a single trade",
		ArgsUsage: "<id>",
		Action:    getSingleTradeAction,
	}
	authorize = cli.Command{
		Name:      "authorize",
		Usage:     "solve the two-step verification challenge pausing a single trade",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "account",
				Usage:    "the id of the challenged account",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "code",
				Usage: "the one-time code of the authenticator",
			},
			&cli.StringFlag{
				Name:  "secret",
				Usage: "the totp secret of the authenticator, used to compute codes",
			},
		},
		Action: authorizeAction,
	}
)

func getSingleTradeAction(ctx *cli.Context) error {
	id, err := idArg(ctx)
	if err != nil {
		return err
	}
	client, err := getClient()
	if err != nil {
		return err
	}

	resp, err := client.do(http.MethodGet, "/v1/singletrades/"+id, nil)
	if err != nil {
		return err
	}

	printRespJSON(resp)
	return nil
}

func authorizeAction(ctx *cli.Context) error {
	id, err := idArg(ctx)
	if err != nil {
		return err
	}
	code, secret := ctx.String("code"), ctx.String("secret")
	if code == "" && secret == "" {
		return fmt.Errorf("either code or secret must be specified")
	}
	client, err := getClient()
	if err != nil {
		return err
	}

	if _, err := client.do(
		http.MethodPost, "/v1/singletrades/"+id+"/authorize",
		map[string]string{
			"accountId": ctx.String("account"),
			"code":      code,
			"secret":    secret,
		},
	); err != nil {
		return err
	}

	fmt.Println()
	fmt.Printf("single trade %s authorized\n", id)
	return nil
}
