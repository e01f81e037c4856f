package main

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/urfave/cli/v2"
)

var (
	webhook = cli.Command{
		Name:  "webhook",
		Usage: "add or remove webhooks",
		Subcommands: []*cli.Command{
			webhookAddCmd, webhookRemoveCmd,
		},
	}
	listwebhooks = cli.Command{
		Name:  "webhooks",
		Usage: "list all webhooks, optionally filtered by topic",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "topic",
				Usage: "CHALLENGE_PROMPT, MULTI_TRADE_PROCESSED or * for any",
			},
		},
		Action: listWebhooksAction,
	}

	webhookAddCmd = &cli.Command{
		Name:  "add",
		Usage: "add a webhook for a topic",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "topic",
				Usage: "CHALLENGE_PROMPT, MULTI_TRADE_PROCESSED or * for any",
				Value: "*",
			},
			&cli.StringFlag{
				Name:     "endpoint",
				Usage:    "the url the events are posted to",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "secret",
				Usage: "the secret used to sign the requests",
			},
		},
		Action: addWebhookAction,
	}
	webhookRemoveCmd = &cli.Command{
		Name:      "remove",
		Usage:     "remove a webhook",
		ArgsUsage: "<id>",
		Action:    removeWebhookAction,
	}
)

func addWebhookAction(ctx *cli.Context) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	resp, err := client.do(http.MethodPost, "/v1/webhooks", map[string]string{
		"topic":    ctx.String("topic"),
		"endpoint": ctx.String("endpoint"),
		"secret":   ctx.String("secret"),
	})
	if err != nil {
		return err
	}

	printRespJSON(resp)
	return nil
}

func removeWebhookAction(ctx *cli.Context) error {
	id, err := idArg(ctx)
	if err != nil {
		return err
	}
	client, err := getClient()
	if err != nil {
		return err
	}

	if _, err := client.do(http.MethodDelete, "/v1/webhooks/"+id, nil); err != nil {
		return err
	}

	fmt.Println()
	fmt.Printf("webhook %s removed\n", id)
	return nil
}

func listWebhooksAction(ctx *cli.Context) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	path := "/v1/webhooks"
	if topic := ctx.String("topic"); topic != "" {
		path += "?topic=" + url.QueryEscape(topic)
	}

	resp, err := client.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}

	printRespJSON(resp)
	return nil
}
