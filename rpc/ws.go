package rpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"workescrow/core/types"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsBuffer       = 64
)

// handleEscrowWS streams committed events. The optional payer and payee query
// parameters restrict the stream to one party or one record.
func (s *Server) handleEscrowWS(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}
	filter, err := parseStreamFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	// Reads are not expected; CloseRead ends ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())
	if err := s.streamEvents(ctx, conn, filter); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

type streamFilter struct {
	payer string
	payee string
}

func (f streamFilter) match(evt *types.Event) bool {
	if f.payer != "" && evt.Attributes["payer"] != f.payer {
		return false
	}
	if f.payee != "" && evt.Attributes["payee"] != f.payee {
		return false
	}
	return true
}

func parseStreamFilter(r *http.Request) (streamFilter, error) {
	var f streamFilter
	if raw := strings.TrimSpace(r.URL.Query().Get("payer")); raw != "" {
		addr, err := parseAccount("payer", raw)
		if err != nil {
			return f, err
		}
		f.payer = hex.EncodeToString(addr[:])
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("payee")); raw != "" {
		addr, err := parseAccount("payee", raw)
		if err != nil {
			return f, err
		}
		f.payee = hex.EncodeToString(addr[:])
	}
	return f, nil
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, filter streamFilter) error {
	updates, cancel := s.bus.Subscribe(wsBuffer)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-updates:
			if !ok {
				return nil
			}
			if !filter.match(evt) {
				continue
			}
			if err := writeEvent(ctx, conn, evt); err != nil {
				return err
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, evt *types.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
