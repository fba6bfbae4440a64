package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/smallbiznis/pulse/internal/orgcontext"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origin policy is enforced upstream alongside authentication.
	CheckOrigin: func(*http.Request) bool { return true },
}

// StreamDashboard upgrades the request and runs a streaming session on it.
// The handler blocks until the client disconnects; returning earlier would
// cancel the request context out from under the session.
func (s *Server) StreamDashboard(c *gin.Context) {
	orgID, ok := orgcontext.OrgIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	session := s.streams.NewSession(orgID, conn)
	session.Run(c.Request.Context())
}
