package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/KaramelBytes/datachat/internal/engine"
)

// wsFrame is one inbound websocket message. A frame with FileName is an
// upload; Data is base64 in JSON.
type wsFrame struct {
	Text     string `json:"text,omitempty"`
	FileName string `json:"file_name,omitempty"`
	Data     []byte `json:"data,omitempty"`
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn("websocket accept", zap.String("user_id", user), zap.Error(err))
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			s.log.Debug("close websocket", zap.String("user_id", user), zap.Error(closeErr))
		}
	}()
	// base64 inflates uploads by 4/3
	ws.SetReadLimit(MaxUploadBytes/3*4 + 4096)

	ctx := r.Context()
	for {
		_, msg, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				s.log.Warn("websocket read", zap.String("user_id", user), zap.Error(err))
			}
			return
		}
		var frame wsFrame
		if err := json.Unmarshal(msg, &frame); err != nil {
			if err := writeJSON(ctx, ws, map[string]string{"error": "invalid frame"}); err != nil {
				return
			}
			continue
		}
		ev := textEvent(user, frame.Text)
		if frame.FileName != "" {
			ev = engine.Event{UserID: user, Kind: engine.EventFile, FileName: frame.FileName, Data: frame.Data}
		}
		if err := writeJSON(ctx, ws, parts(s.eng.Handle(ctx, ev))); err != nil {
			s.log.Debug("websocket write", zap.String("user_id", user), zap.Error(err))
			return
		}
	}
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
