package relay

import (
	"context"
	"io/ioutil"
	"net/http"
	"strconv"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/hashicorp/go-cleanhttp"
	gocache "github.com/patrickmn/go-cache"
)

var ErrRoleNotFound = errors.NewPlain("role not found")

// RoleClientCacheTTL is how long a worker reuses a role it fetched
var RoleClientCacheTTL = time.Minute

// RoleClient looks up roles cached by a gateway process, found roles are kept locally for RoleClientCacheTTL
type RoleClient struct {
	base   string
	client *http.Client
	cache  *gocache.Cache
}

// NewRoleClient creates a client for the relay server at addr (host:port)
func NewRoleClient(addr string) *RoleClient {
	base := addr
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	return &RoleClient{
		base:   strings.TrimSuffix(base, "/"),
		client: cleanhttp.DefaultPooledClient(),
		cache:  gocache.New(RoleClientCacheTTL, RoleClientCacheTTL*2),
	}
}

// Forget drops a locally kept role, call it when the role changes
func (c *RoleClient) Forget(id int64) {
	c.cache.Delete(strconv.FormatInt(id, 10))
}

func (c *RoleClient) Role(ctx context.Context, id int64) (*Role, error) {
	key := strconv.FormatInt(id, 10)
	if v, ok := c.cache.Get(key); ok {
		cop := *v.(*Role)
		return &cop, nil
	}

	req, err := http.NewRequest("GET", c.base+"/roles/"+key, nil)
	if err != nil {
		return nil, errors.WithStackIf(err)
	}

	resp, err := c.client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, errors.WithMessage(err, "roles request")
	}
	defer resp.Body.Close()

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.WithMessage(err, "read body")
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrRoleNotFound
	default:
		return nil, errors.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var role Role
	err = json.Unmarshal(body, &role)
	if err != nil {
		return nil, errors.WithMessage(err, "decode role")
	}

	cop := role
	c.cache.SetDefault(key, &cop)
	return &role, nil
}
