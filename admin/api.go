// Package admin serves the shard status and restart endpoints used by shardctl
package admin

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"emperror.dev/errors"
	"github.com/botlabs-gg/dshardrelay/common"
	"github.com/botlabs-gg/dshardrelay/shard"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

var logger = common.GetFixedPrefixLogger("admin")

// RestartTimeout bounds how long a restart request waits for the new generation
var RestartTimeout = time.Minute

// ErrRestartPending is answered when the restart was accepted but the new generation didn't start within RestartTimeout
var ErrRestartPending = errors.NewPlain("restart still pending, check the shard status")

type API struct {
	registry *shard.Registry

	// RestartLimiter bounds how often restarts can be requested, shared by all shards
	RestartLimiter *rate.Limiter

	g   *gin.Engine
	srv *http.Server
}

func NewAPI(registry *shard.Registry) *API {
	if !common.Testing {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.TestMode)
	}

	g := gin.New()
	g.Use(gin.Recovery())

	api := &API{
		registry:       registry,
		RestartLimiter: rate.NewLimiter(rate.Every(time.Second), 5),
		g:              g,
	}
	api.setupRoutes()
	return api
}

func (a *API) setupRoutes() {
	a.g.GET("/status", a.handleGETStatus)
	a.g.POST("/restartshard", a.handlePOSTRestartShard)
	a.g.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (a *API) Handler() http.Handler {
	return a.g
}

func (a *API) Serve(l net.Listener) error {
	a.srv = &http.Server{Handler: a.g}
	logger.Infof("admin api listening on %s", l.Addr())

	err := a.srv.Serve(l)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (a *API) Shutdown(ctx context.Context) error {
	if a.srv == nil {
		return nil
	}
	return a.srv.Shutdown(ctx)
}

type StatusResponse struct {
	Shards []*shard.ShardStatus
}

func (a *API) handleGETStatus(c *gin.Context) {
	c.JSON(http.StatusOK, &StatusResponse{
		Shards: a.registry.Status(),
	})
}

type BasicResponse struct {
	Message string
	Error   bool
}

func sendBasicResponse(c *gin.Context, status int, err error, successMessage string) {
	if err != nil {
		c.JSON(status, &BasicResponse{
			Error:   true,
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, &BasicResponse{
		Message: successMessage,
	})
}

func (a *API) handlePOSTRestartShard(c *gin.Context) {
	shardStr, _ := c.GetPostForm("shard")
	shardID, err := strconv.Atoi(shardStr)
	if err != nil {
		sendBasicResponse(c, http.StatusBadRequest, errors.WithMessage(err, "invalid shard"), "")
		return
	}

	if !a.RestartLimiter.Allow() {
		sendBasicResponse(c, http.StatusTooManyRequests, errors.New("too many restart requests, slow down"), "")
		return
	}

	kind := shard.RestartNormal
	if resume, _ := c.GetPostForm("resume"); resume != "" {
		b, err := strconv.ParseBool(resume)
		if err != nil {
			sendBasicResponse(c, http.StatusBadRequest, errors.WithMessage(err, "invalid resume"), "")
			return
		}
		if b {
			kind = shard.RestartResume
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), RestartTimeout)
	defer cancel()

	logger.WithField("shard", shardID).Infof("restart requested (%s)", kind)
	outcome, err := a.registry.RestartAndWait(ctx, shardID, kind)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, shard.ErrUnknownShard):
			status = http.StatusNotFound
		case errors.Is(err, context.DeadlineExceeded) && c.Request.Context().Err() == nil:
			// the restart itself went through, only our wait ran out
			status = http.StatusGatewayTimeout
			err = ErrRestartPending
		}
		sendBasicResponse(c, status, err, "")
		return
	}

	sendBasicResponse(c, http.StatusOK, nil, outcome.String())
}
