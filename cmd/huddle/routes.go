package main

import (
	"net/http"
	"path/filepath"

	"github.com/tokmz/huddle"
	"github.com/tokmz/huddle/middleware"
	"github.com/tokmz/huddle/pkg/audit"
	"github.com/tokmz/huddle/pkg/errors"
	"github.com/tokmz/huddle/pkg/presence"
	"github.com/tokmz/huddle/pkg/signal"
)

// api HTTP 接口，只读取网关状态
type api struct {
	gw       *signal.Gateway
	presence *presence.Store
	audit    *audit.Recorder // 未启用时为 nil
	web      string          // 浏览器客户端目录，空则不提供
}

type healthResp struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Rooms       int    `json:"rooms"`
}

type roomUsersResp struct {
	RoomID string   `json:"room_id"`
	Users  []string `json:"users"`
	Count  int      `json:"count"`
}

type presenceReq struct {
	UserID string `uri:"userId" binding:"required"`
}

type activityReq struct {
	RoomID string `uri:"id" binding:"required"`
	Limit  int    `form:"limit"`
}

type activityResp struct {
	RoomID     string           `json:"room_id"`
	Activities []audit.Activity `json:"activities"`
}

func (a *api) register(e *huddle.Engine, rl *middleware.RateLimiterConfig) {
	r := e.RouterGroup()
	r.GET("/ws/:userId", a.serveWS, middleware.RateLimiter(rl))
	huddle.HandleOnly[healthResp](r.GET, "/health", a.health)

	g := r.Group("/api")
	g.GET("/rooms", a.rooms)
	g.GET("/room/:id/users", a.roomUsers)
	huddle.HandleOnly[signal.StatsSnapshot](g.GET, "/stats", a.stats)
	huddle.Handle[presenceReq, presence.Record](g.GET, "/presence/:userId", a.lookupPresence)
	huddle.Handle[activityReq, activityResp](g.GET, "/room/:id/activity", a.activity)

	if a.web != "" {
		a.serveClient(r)
	}
}

// serveClient 同源提供浏览器客户端，默认的同源校验即可放行其 WebSocket
func (a *api) serveClient(r *huddle.RouterGroup) {
	index := filepath.Join(a.web, "index.html")
	r.StaticFile("/", index)
	r.Static("/static", filepath.Join(a.web, "static"))
	r.GET("/room/:roomId", func(c *huddle.Context) {
		if !signal.ValidRoomID(c.Param("roomId")) {
			c.RespondError(errors.ErrNotFound)
			return
		}
		c.File(index)
	})
}

func (a *api) serveWS(c *huddle.Context) {
	// 失败时网关已写出 HTTP 错误
	_ = a.gw.ServeWS(c.Writer(), c.Request(), c.Param("userId"))
}

func (a *api) health(*huddle.Context) (*healthResp, error) {
	return &healthResp{
		Status:      "ok",
		Connections: a.gw.ConnectionCount(),
		Rooms:       a.gw.RoomCount(),
	}, nil
}

// rooms 原样返回排序后的房间 ID 数组
func (a *api) rooms(c *huddle.Context) {
	c.JSON(http.StatusOK, a.gw.Rooms())
}

func (a *api) roomUsers(c *huddle.Context) {
	id := c.Param("id")
	users := a.gw.RoomUsers(id)
	c.JSON(http.StatusOK, roomUsersResp{RoomID: id, Users: users, Count: len(users)})
}

func (a *api) stats(*huddle.Context) (*signal.StatsSnapshot, error) {
	s := a.gw.Stats()
	return &s, nil
}

func (a *api) lookupPresence(c *huddle.Context, req *presenceReq) (*presence.Record, error) {
	rec, err := a.presence.Get(c.RequestContext(), req.UserID)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (a *api) activity(c *huddle.Context, req *activityReq) (*activityResp, error) {
	if a.audit == nil {
		return nil, errors.ErrNotFound.WithMessage("activity log is disabled")
	}
	list, err := a.audit.Recent(c.RequestContext(), req.RoomID, req.Limit)
	if err != nil {
		return nil, errors.ErrServer.WithError(err)
	}
	if list == nil {
		list = []audit.Activity{}
	}
	return &activityResp{RoomID: req.RoomID, Activities: list}, nil
}
