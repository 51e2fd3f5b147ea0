// Package signal implements the WebRTC signaling gateway of the huddle server.
//
// # Components
//
//   - Registry maps a user id to its live session; a newer session with the
//     same id evicts the older one with close code 4001.
//   - Directory maps a room id to its members and whiteboard history. Every
//     mutation and its resulting broadcast happen under the room's lock.
//   - Router dispatches inbound frames to an ordered list of handlers per
//     message type, behind a middleware chain.
//   - Monitor sweeps the registry and force-closes sessions whose last
//     heartbeat is older than the timeout (close code 4002).
//   - Gateway owns the per-connection state machine
//     (Connected -> InRoom -> Closed) and glues the above together.
//
// # Usage
//
//	gw, err := signal.NewGateway(signal.DefaultConfig(),
//	    signal.WithLogger(log),
//	)
//	if err != nil {
//	    return err
//	}
//	gw.Subscribe(signal.EventRoomCreated, func(ev signal.Event) {
//	    log.Info("room created", zap.String("room_id", ev.RoomID))
//	})
//	gw.Start()
//
//	r.GET("/ws/:userId", func(c *huddle.Context) {
//	    _ = gw.ServeWS(c.Writer, c.Request, c.Param("userId"))
//	})
//
//	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
//	defer cancel()
//	_ = gw.Shutdown(ctx)
//
// # Lock order
//
// Conn.mu -> Room.mu -> Conn.sendMu. Nothing acquires a Conn.mu while
// holding a room lock, and send-failure callbacks only close transports.
package signal
