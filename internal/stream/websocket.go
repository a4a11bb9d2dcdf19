package stream

import (
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// WebSocketSink sends every frame as one binary JPEG message
type WebSocketSink struct {
	conn    *websocket.Conn
	url     string
	timeout time.Duration
	logger  logrus.FieldLogger
}

func OpenWebSocket(url string, opts Options, logger logrus.FieldLogger) (*WebSocketSink, error) {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}

	dialer := websocket.Dialer{HandshakeTimeout: opts.WriteTimeout}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, &OpenError{Descriptor: url, Err: err}
	}

	logger.WithField("url", url).Info("WebSocket sink connected")

	return &WebSocketSink{
		conn:    conn,
		url:     url,
		timeout: opts.WriteTimeout,
		logger:  logger,
	}, nil
}

func (s *WebSocketSink) Write(frame gocv.Mat) error {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, frame)
	if err != nil {
		return &WriteError{Err: fmt.Errorf("jpeg encode: %w", err)}
	}
	defer buf.Close()

	if err := s.conn.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
		return &WriteError{Err: err}
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, buf.GetBytes()); err != nil {
		return &WriteError{Err: err}
	}
	return nil
}

func (s *WebSocketSink) Close() error {
	if s.conn == nil {
		return nil
	}
	s.logger.WithField("url", s.url).Info("Closing WebSocket sink")

	deadline := time.Now().Add(s.timeout)
	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := s.conn.WriteControl(websocket.CloseMessage, message, deadline); err != nil {
		s.logger.WithError(err).Debug("Close handshake failed")
	}

	err := s.conn.Close()
	s.conn = nil
	return err
}
