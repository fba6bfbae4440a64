// Package stream delivers live dashboard updates over websocket
// connections. Each connection runs one goroutine whose only suspension
// point is the interval timer, so disconnects interrupt immediately.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/pulse/internal/clock"
	"github.com/smallbiznis/pulse/internal/config"
	"github.com/smallbiznis/pulse/internal/observability/metrics"
	"github.com/smallbiznis/pulse/internal/realtime"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Conn is the subset of a websocket connection the session needs.
// *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// TextMessage mirrors websocket.TextMessage without importing gorilla here.
const TextMessage = 1

// Message types.
const (
	typeConnectionEstablished = "connection.established"
	typeUpdate                = "dashboard.update"
	typeConfigurationUpdated  = "configuration.updated"
	typePong                  = "pong"
	typeError                 = "error"

	typeConfigure     = "configure"
	typeRequestUpdate = "request_update"
	typePing          = "ping"
)

type inboundMessage struct {
	Type   string `json:"type"`
	Config struct {
		UpdateInterval *int `json:"update_interval"`
	} `json:"config"`

	// malformed marks frames that did not decode. The run loop reports
	// them so it stays the sole writer.
	malformed bool
}

type Params struct {
	fx.In

	Engine *realtime.Engine
	Clock  clock.Clock
	Log    *zap.Logger
	Config config.Config
}

// Factory spawns one Session per accepted connection.
type Factory struct {
	engine *realtime.Engine
	clock  clock.Clock
	log    *zap.Logger
	cfg    config.StreamConfig
}

func NewFactory(p Params) *Factory {
	return &Factory{
		engine: p.Engine,
		clock:  p.Clock,
		log:    p.Log.Named("stream"),
		cfg:    p.Config.Stream,
	}
}

// Session is one live dashboard stream.
type Session struct {
	id     string
	orgID  snowflake.ID
	conn   Conn
	engine *realtime.Engine
	clock  clock.Clock
	log    *zap.Logger
	cfg    config.StreamConfig

	interval time.Duration
}

func (f *Factory) NewSession(orgID snowflake.ID, conn Conn) *Session {
	id := uuid.NewString()
	return &Session{
		id:     id,
		orgID:  orgID,
		conn:   conn,
		engine: f.engine,
		clock:  f.clock,
		log:    f.log.With(zap.String("session_id", id), zap.String("org_id", orgID.String())),
		cfg:    f.cfg,

		interval: f.cfg.DefaultInterval,
	}
}

// clampInterval bounds a requested interval to the configured range.
func (s *Session) clampInterval(d time.Duration) time.Duration {
	if d < s.cfg.MinInterval {
		return s.cfg.MinInterval
	}
	if d > s.cfg.MaxInterval {
		return s.cfg.MaxInterval
	}
	return d
}

// Run drives the session until the context is cancelled or the peer goes
// away. It owns all writes to the connection.
func (s *Session) Run(ctx context.Context) {
	metrics.Default().IncStreamConnections()
	defer metrics.Default().DecStreamConnections()
	defer s.conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.log.Info("stream connected")
	s.writeJSON(map[string]any{
		"type":      typeConnectionEstablished,
		"message":   "Dashboard stream connected",
		"org_id":    s.orgID.String(),
		"timestamp": s.clock.Now(),
	})

	inbound := make(chan inboundMessage)
	go s.readLoop(ctx, cancel, inbound)

	// First payload goes out immediately; the timer paces the rest.
	s.pushUpdate(ctx)

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("stream closed")
			return

		case msg, ok := <-inbound:
			if !ok {
				s.log.Info("stream peer disconnected")
				return
			}
			s.handleMessage(ctx, msg, timer)

		case <-timer.C:
			s.pushUpdate(ctx)
			timer.Reset(s.interval)
		}
	}
}

func (s *Session) handleMessage(ctx context.Context, msg inboundMessage, timer *time.Timer) {
	if msg.malformed {
		s.writeError("Invalid message format")
		return
	}

	switch msg.Type {
	case typeConfigure:
		interval := s.interval
		if msg.Config.UpdateInterval != nil {
			interval = time.Duration(*msg.Config.UpdateInterval) * time.Second
		}
		s.interval = s.clampInterval(interval)

		s.writeJSON(map[string]any{
			"type": typeConfigurationUpdated,
			"config": map[string]any{
				"update_interval": int(s.interval.Seconds()),
			},
			"timestamp": s.clock.Now(),
		})

		// Reconfiguring: the pending wait restarts on the new cadence.
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.interval)

	case typeRequestUpdate:
		// Out-of-band push; the periodic timer keeps its schedule.
		s.pushUpdate(ctx)

	case typePing:
		s.writeJSON(map[string]any{
			"type":      typePong,
			"timestamp": s.clock.Now(),
		})

	default:
		s.writeError(fmt.Sprintf("Unknown message type: %s", msg.Type))
	}
}

func (s *Session) readLoop(ctx context.Context, cancel context.CancelFunc, inbound chan<- inboundMessage) {
	defer close(inbound)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			cancel()
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			msg = inboundMessage{malformed: true}
		}

		select {
		case inbound <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) pushUpdate(ctx context.Context) {
	update, err := s.engine.Dashboard(ctx, s.orgID)
	if err != nil {
		s.log.Warn("dashboard update failed", zap.Error(err))
		s.writeError("Failed to get dashboard update")
		return
	}

	now := s.clock.Now()
	s.writeJSON(map[string]any{
		"type": typeUpdate,
		"data": update,
		"metadata": map[string]any{
			"update_interval": int(s.interval.Seconds()),
			"next_update":     now.Add(s.interval).UnixMilli(),
		},
	})
	metrics.Default().IncStreamPush("update")
}

func (s *Session) writeError(message string) {
	metrics.Default().IncStreamPush("error")
	s.writeJSON(map[string]any{
		"type":      typeError,
		"message":   message,
		"timestamp": s.clock.Now(),
	})
}

func (s *Session) writeJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.log.Error("encode stream message", zap.Error(err))
		return
	}
	if s.cfg.WriteTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	if err := s.conn.WriteMessage(TextMessage, data); err != nil {
		s.log.Debug("stream write failed", zap.Error(err))
	}
}
