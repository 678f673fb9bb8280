package admin

import (
	"context"
	"io/ioutil"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"emperror.dev/errors"
	"github.com/hashicorp/go-cleanhttp"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Client struct {
	addr string
	http *http.Client
}

func NewClient(addr string) *Client {
	return &Client{
		addr: strings.TrimSuffix(addr, "/"),
		http: cleanhttp.DefaultPooledClient(),
	}
}

func (c *Client) do(ctx context.Context, method string, path string, body url.Values, respData interface{}) error {
	var r *strings.Reader
	if body != nil {
		r = strings.NewReader(body.Encode())
	} else {
		r = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.addr+path, r)
	if err != nil {
		return err
	}

	req.Header.Add("content-type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.WithMessage(err, "admin request")
	}
	defer resp.Body.Close()

	fullBody, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if respData != nil {
		err = json.Unmarshal(fullBody, respData)
		if err != nil {
			return errors.WithMessagef(err, "decode response (status %d)", resp.StatusCode)
		}
	}

	return nil
}

func (c *Client) GetStatus(ctx context.Context) (status *StatusResponse, err error) {
	err = c.do(ctx, "GET", "/status", nil, &status)
	return
}

func (c *Client) handleBasicResponse(br *BasicResponse) (msg string, err error) {
	if br.Error {
		return "", errors.New(br.Message)
	}

	return br.Message, nil
}

// RestartShard restarts a shard and returns the outcome message
func (c *Client) RestartShard(ctx context.Context, shardID int, resume bool) (msg string, err error) {
	body := url.Values{
		"shard":  []string{strconv.Itoa(shardID)},
		"resume": []string{strconv.FormatBool(resume)},
	}

	var resp BasicResponse
	err = c.do(ctx, "POST", "/restartshard", body, &resp)
	if err != nil {
		return "", err
	}

	return c.handleBasicResponse(&resp)
}
