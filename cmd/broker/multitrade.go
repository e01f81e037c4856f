package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
)

var (
	submit = cli.Command{
		Name:  "submit",
		Usage: "submit a plan of trades read from a json file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "plan",
				Usage:    "path of the json file of the plan",
				Required: true,
			},
		},
		Action: submitAction,
	}
	multitrades = cli.Command{
		Name:  "multitrades",
		Usage: "list multi trades, optionally filtered by status",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "status",
				Usage: "pending, processing, finished or failed",
			},
		},
		Action: listMultiTradesAction,
	}
	multitrade = cli.Command{
		Name:      "multitrade",
		Usage:     "get the state of a multi trade",
		ArgsUsage: "<id>",
		Action:    getMultiTradeAction,
	}
	acknowledge = cli.Command{
		Name:      "acknowledge",
		Usage:     "acknowledge the outcome of a processed multi trade",
		ArgsUsage: "<id>",
		Action:    acknowledgeAction,
	}
)

func submitAction(ctx *cli.Context) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	buf, err := os.ReadFile(ctx.String("plan"))
	if err != nil {
		return fmt.Errorf("failed to read plan: %w", err)
	}
	plan := json.RawMessage(buf)
	if !json.Valid(plan) {
		return fmt.Errorf("plan is not a valid json document")
	}

	resp, err := client.do(http.MethodPost, "/v1/multitrades", plan)
	if err != nil {
		return err
	}

	printRespJSON(resp)
	return nil
}

func listMultiTradesAction(ctx *cli.Context) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	path := "/v1/multitrades"
	if statuses := ctx.StringSlice("status"); len(statuses) > 0 {
		path += "?status=" + url.QueryEscape(strings.Join(statuses, ","))
	}

	resp, err := client.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}

	printRespJSON(resp)
	return nil
}

func getMultiTradeAction(ctx *cli.Context) error {
	id, err := idArg(ctx)
	if err != nil {
		return err
	}
	client, err := getClient()
	if err != nil {
		return err
	}

	resp, err := client.do(http.MethodGet, "/v1/multitrades/"+id, nil)
	if err != nil {
		return err
	}

	printRespJSON(resp)
	return nil
}

func acknowledgeAction(ctx *cli.Context) error {
	id, err := idArg(ctx)
	if err != nil {
		return err
	}
	client, err := getClient()
	if err != nil {
		return err
	}

	if _, err := client.do(
		http.MethodPost, "/v1/multitrades/"+id+"/acknowledge", nil,
	); err != nil {
		return err
	}

	fmt.Println()
	fmt.Printf("multi trade %s acknowledged\n", id)
	return nil
}

func idArg(ctx *cli.Context) (string, error) {
	id := ctx.Args().First()
	if id == "" {
		return "", fmt.Errorf("missing id")
	}
	return url.PathEscape(id), nil
}
