package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/frootlab/rian-sub004/internal/table"
)

// defaultBatch is the batch size of a stream without a size.
const defaultBatch = 100

var upgrader = websocket.Upgrader{
	WriteBufferSize: 1024 * 10,
	ReadBufferSize:  1024 * 10,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamMessage is one message of a stream. The last message has Done
// set, or Error when the cursor failed.
type StreamMessage struct {
	Columns []string `json:"columns,omitempty"`
	Rows    [][]any  `json:"rows"`
	Done    bool     `json:"done,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// handleStream sends the rows of a cursor over a websocket.
// GET /api/tables/{name}/stream
//
// EDUCATIONAL NOTE:
// -----------------
// The client sends one SelectRequest message after the upgrade. Size is
// the batch size here. The server answers with one message per batch and
// closes the connection after the batch that has Done set. A table
// removed while streaming ends the stream with an error message.
//
// The workspace lock is held while the cursor is built and while each
// batch is fetched, never while a message is written. A slow client
// therefore does not block other requests.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	ws := GetWorkspace(r)
	tableName := chi.URLParam(r, "name")
	if err := validateTableName(tableName); err != nil {
		writeFailure(w, err)
		return
	}
	if _, err := ws.Info(tableName); err != nil {
		writeFailure(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("stream %s: upgrade failed: %v", tableName, err)
		return
	}
	defer conn.Close()

	_, message, err := conn.ReadMessage()
	if err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			s.log.Errorf("stream %s: unexpected close: %v", tableName, err)
		}
		return
	}
	var req SelectRequest
	if err := decodeJSON(message, &req); err != nil {
		s.closeWithError(conn, websocket.CloseUnsupportedData, err)
		return
	}
	if err := req.validate(); err != nil {
		s.closeWithError(conn, websocket.CloseUnsupportedData, err)
		return
	}
	batch := req.Size
	if batch <= 0 {
		batch = defaultBatch
	}
	opts, err := req.options()
	if err != nil {
		s.closeWithError(conn, websocket.CloseUnsupportedData, err)
		return
	}

	var cur *table.Cursor
	err = ws.Do(tableName, func(t *table.Table) error {
		var selErr error
		cur, selErr = t.Select(append(opts, table.BatchSize(batch))...)
		return selErr
	})
	if err != nil {
		s.closeWithError(conn, websocket.CloseUnsupportedData, err)
		return
	}

	columns := cur.Names()
	for sent := 0; ; {
		var rows []any
		err := ws.Do(tableName, func(*table.Table) error {
			var fetchErr error
			rows, fetchErr = cur.Fetch(0)
			return fetchErr
		})
		if err != nil {
			s.closeWithError(conn, websocket.CloseInternalServerErr, err)
			return
		}
		res := table.NewResult(columns, rows)
		// random cursors never run dry; they send a single batch
		msg := StreamMessage{Rows: res.Rows, Done: len(rows) < batch || cur.Mode()&table.Random != 0}
		if sent == 0 {
			msg.Columns = res.Columns
		}
		if err := conn.WriteJSON(msg); err != nil {
			s.log.Debugf("stream %s: write failed: %v", tableName, err)
			return
		}
		sent += len(rows)
		if msg.Done {
			s.log.Debugf("stream %s: sent %d rows", tableName, sent)
			break
		}
	}
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// closeWithError sends a final error message and closes the connection.
func (s *Server) closeWithError(conn *websocket.Conn, code int, err error) {
	s.log.Debugf("stream failed: %v", err)
	conn.WriteJSON(StreamMessage{Rows: [][]any{}, Error: err.Error()})
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, truncate(err.Error(), 120)))
}

// truncate keeps close reasons within the control frame limit.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
