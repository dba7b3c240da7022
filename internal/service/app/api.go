package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"secure_chat/internal/model"
)

var ErrUnknownProfile = errors.New("profile does not exist")

// relayAPI talks to the relay's HTTP routes.
type relayAPI struct {
	host   string
	client *http.Client
}

func newRelayAPI(host string) *relayAPI {
	return &relayAPI{host: host, client: http.DefaultClient}
}

func (a *relayAPI) url(scheme, path string, query url.Values) string {
	u := url.URL{
		Scheme:   scheme,
		Host:     a.host,
		Path:     path,
		RawQuery: query.Encode(),
	}
	return u.String()
}

func (a *relayAPI) PublicKey(ctx context.Context, id uuid.UUID) (*model.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url("http", fmt.Sprintf("/keys/%s", id), nil), nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	defer io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrUnknownProfile
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get public key: unexpected status %s", resp.Status)
	}

	var pk model.PublicKey
	if err := json.NewDecoder(resp.Body).Decode(&pk); err != nil {
		return nil, err
	}
	return &pk, nil
}

func (a *relayAPI) register(ctx context.Context, name string, publicKey []byte) (*model.PublicKey, error) {
	data, err := json.Marshal(model.RegisterRequest{Name: name, PublicKey: publicKey})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url("http", "/profiles", nil), bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	defer io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("register profile: unexpected status %s", resp.Status)
	}

	var pk model.PublicKey
	if err := json.NewDecoder(resp.Body).Decode(&pk); err != nil {
		return nil, err
	}
	return &pk, nil
}

func (a *relayAPI) initWebhook(name string, filter bool) (*websocket.Conn, error) {
	params := url.Values{
		"name":   []string{name},
		"filter": []string{strconv.FormatBool(filter)},
	}

	conn, _, err := websocket.DefaultDialer.Dial(a.url("ws", "/init", params), nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
