package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/urfave/cli/v2"
)

var (
	brokerDataDir = btcutil.AppDataDir("tdex-broker-cli", false)
	statePath     = filepath.Join(brokerDataDir, "state.json")

	version = "dev"
)

func main() {
	app := cli.NewApp()

	app.Version = version
	app.Name = "broker"
	app.Usage = "Command line interface for the trade broker daemon"
	app.Commands = append(
		app.Commands,
		&config,
		&submit,
		&multitrades,
		&multitrade,
		&acknowledge,
		&singletrade,
		&authorize,
		&webhook,
		&listwebhooks,
	)

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

func getState() (map[string]string, error) {
	data := map[string]string{}

	file, err := os.ReadFile(statePath)
	if err != nil {
		return nil, errors.New("get config state error: try 'config init'")
	}
	if err := json.Unmarshal(file, &data); err != nil {
		return nil, fmt.Errorf("invalid config state: %w", err)
	}

	return data, nil
}

func setState(data map[string]string) error {
	if err := os.MkdirAll(brokerDataDir, os.ModeDir|0755); err != nil {
		return err
	}

	currentData, err := getState()
	if err != nil {
		currentData = map[string]string{}
	}
	mergedData := merge(currentData, data)

	jsonString, err := json.Marshal(mergedData)
	if err != nil {
		return err
	}
	if err := os.WriteFile(statePath, jsonString, 0644); err != nil {
		return fmt.Errorf("writing to file: %w", err)
	}

	return nil
}

func merge(maps ...map[string]string) map[string]string {
	merge := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			merge[k] = v
		}
	}
	return merge
}

func printRespJSON(resp []byte) {
	if len(resp) <= 0 {
		fmt.Println("{}")
		return
	}

	var out bytes.Buffer
	if err := json.Indent(&out, resp, "", "\t"); err != nil {
		fmt.Println("unable to decode response: ", err)
		return
	}
	fmt.Println(out.String())
}

// brokerClient is a thin client of the broker REST interface.
type brokerClient struct {
	*http.Client
	baseURL string
}

func getClient() (*brokerClient, error) {
	state, err := getState()
	if err != nil {
		return nil, err
	}
	address, ok := state["rpcserver"]
	if !ok || address == "" {
		return nil, errors.New("broker address not set: try 'config init'")
	}
	return newBrokerClient(address), nil
}

func newBrokerClient(address string) *brokerClient {
	baseURL := address
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}
	return &brokerClient{
		Client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// do sends the request and returns the response body. Error responses are
// turned into errors carrying the message returned by the broker.
func (c *brokerClient) do(method, path string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		errResp := struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}{}
		if err := json.Unmarshal(buf, &errResp); err != nil || errResp.Message == "" {
			return nil, fmt.Errorf("request failed with status %s", resp.Status)
		}
		return nil, fmt.Errorf("%s: %s", errResp.Error, errResp.Message)
	}
	return buf, nil
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[broker] %v\n", err)
	os.Exit(1)
}
