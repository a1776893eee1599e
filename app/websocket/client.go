package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"PosPrint/app/services"
)

// Listen keeps a websocket connection to url open and passes every message
// to onMessage, reconnecting after reconnectDelay until ctx is done
func Listen(ctx context.Context, url string, header http.Header, reconnectDelay time.Duration, logger *services.LoggerService, onMessage func(Message)) {
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}

	for {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
		if err != nil {
			logger.LogDebug("websocket dial failed, retrying", "url", url, "error", err)
		} else {
			logger.LogInfo("Connected to queue notifications", url)
			readLoop(ctx, conn, onMessage)
			logger.LogWarning("Queue notifications disconnected, reconnecting")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func readLoop(ctx context.Context, conn *websocket.Conn, onMessage func(Message)) {
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		onMessage(msg)
	}
}
