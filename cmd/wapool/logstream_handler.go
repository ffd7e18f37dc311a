package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"wapool/internal/constants"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"
)

// handleLogStream pushes every new audit entry to a websocket client until
// either side closes.
func (s *Server) handleLogStream() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			s.logger.WithError(err).Warn("Failed to accept log stream")
			return
		}
		defer conn.CloseNow()

		entries, unsubscribe := s.deps.Hub.Subscribe()
		defer unsubscribe()

		// The client only listens; CloseRead handles control frames and
		// cancels ctx once the peer goes away.
		ctx := conn.CloseRead(r.Context())
		logger := s.logger.WithField("subscribers", s.deps.Hub.Subscribers())
		logger.Debug("Log stream client connected")

		ping := time.NewTicker(time.Duration(constants.LogStreamPingIntervalSec) * time.Second)
		defer ping.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Debug("Log stream client disconnected")
				return
			case entry, ok := <-entries:
				if !ok {
					_ = conn.Close(websocket.StatusGoingAway, "stream closed")
					return
				}
				if err := writeWithTimeout(ctx, conn, entry); err != nil {
					logStreamError(logger, err)
					return
				}
			case <-ping.C:
				pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				err := conn.Ping(pingCtx)
				cancel()
				if err != nil {
					logStreamError(logger, err)
					return
				}
			}
		}
	}
}

func writeWithTimeout(ctx context.Context, conn *websocket.Conn, v interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}

func logStreamError(logger *logrus.Entry, err error) {
	if errors.Is(err, context.Canceled) || websocket.CloseStatus(err) != -1 {
		logger.Debug("Log stream closed")
		return
	}
	logger.WithError(err).Warn("Log stream write failed")
}
