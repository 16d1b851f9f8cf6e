package actuator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// HTTPRelay controls a Tasmota-compatible smart plug through its /cm command
// endpoint.
type HTTPRelay struct {
	baseURL  string
	user     string
	password string
	client   *http.Client
}

func NewHTTPRelay(baseURL, user, password string) *HTTPRelay {
	return &HTTPRelay{
		baseURL:  strings.TrimRight(baseURL, "/"),
		user:     user,
		password: password,
		client:   &http.Client{},
	}
}

// Connect checks that the device answers a Status command.
func (r *HTTPRelay) Connect(ctx context.Context) error {
	_, err := r.send(ctx, "Status")
	return err
}

func (r *HTTPRelay) On(ctx context.Context) error {
	return r.expect(ctx, "Power On", true)
}

func (r *HTTPRelay) Off(ctx context.Context) error {
	return r.expect(ctx, "Power Off", false)
}

func (r *HTTPRelay) IsOn(ctx context.Context) (bool, error) {
	body, err := r.send(ctx, "Power")
	if err != nil {
		return false, err
	}
	return parsePower(body)
}

func (r *HTTPRelay) expect(ctx context.Context, cmnd string, want bool) error {
	body, err := r.send(ctx, cmnd)
	if err != nil {
		return err
	}
	on, err := parsePower(body)
	if err != nil {
		return err
	}
	if on != want {
		return fmt.Errorf("relay reported power %v after %q", on, cmnd)
	}
	return nil
}

func (r *HTTPRelay) send(ctx context.Context, cmnd string) ([]byte, error) {
	q := url.Values{}
	q.Set("cmnd", cmnd)
	if r.user != "" {
		q.Set("user", r.user)
		q.Set("password", r.password)
	}
	endpoint := r.baseURL + "/cm?" + strings.ReplaceAll(q.Encode(), "+", "%20")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("relay returned %s", resp.Status)
	}
	return body, nil
}

// parsePower reads {"POWER":"ON"} or, on multi-channel devices, {"POWER1":"ON"}.
func parsePower(body []byte) (bool, error) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return false, fmt.Errorf("decode relay response: %w", err)
	}

	for _, key := range []string{"POWER", "POWER1"} {
		if v, ok := payload[key].(string); ok {
			switch strings.ToUpper(v) {
			case "ON":
				return true, nil
			case "OFF":
				return false, nil
			}
			return false, fmt.Errorf("unexpected power value %q", v)
		}
	}
	return false, errors.New("relay response has no power field")
}
