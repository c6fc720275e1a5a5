package ws

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"pieceServer/backend/internal/collab"
)

// 允许本地开发环境的来源；不带 Origin 或为 "null" 的也放行
var allowedOriginPrefixes = []string{
	"http://localhost",
	"http://127.0.0.1",
	"https://localhost",
	"https://127.0.0.1",
}

func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == "null" {
		return true
	}
	for _, p := range allowedOriginPrefixes {
		if strings.HasPrefix(origin, p) {
			return true
		}
	}
	return false
}

var upgrader = websocket.Upgrader{CheckOrigin: checkOrigin}

type Manager struct {
	h   *Hub
	svc collab.Service
	sem *collab.SemaphoreControl
}

func NewManager(h *Hub, svc collab.Service, sem *collab.SemaphoreControl) *Manager {
	return &Manager{h: h, svc: svc, sem: sem}
}

// WebSocketConnect：GET /collab/ws，userId / username 由鉴权中间件写入
// 可选 ?docId= 直接加入房间
func (m *Manager) WebSocketConnect(c *gin.Context) {
	userID := c.GetUint64("userId")
	username := c.GetString("username")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v (origin=%s)", err, c.Request.Header.Get("Origin"))
		return
	}
	wsConn := NewConn(conn, m.h, userID, username, m.svc, m.sem)

	// 先启动写循环，后续写入 send 的消息才能及时发出
	go wsConn.writeLoop()
	wsConn.reply(ServerMessage{Type: "welcome", UserID: userID, Content: "welcome " + username})

	ctx := c.Request.Context()
	if docID := c.Query("docId"); docID != "" {
		wsConn.handleJoin(ctx, ClientMessage{Type: TypeJoinDocument, DocID: docID})
	}
	// 阻塞至连接关闭
	wsConn.readLoop(ctx)
}
