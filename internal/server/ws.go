package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/triamed/voicefront/internal/session"
	"github.com/triamed/voicefront/pkg/audio"
)

// clientMessage is the single client→server frame shape. Control frames
// carry Type; audio frames carry one of the base64 payload fields plus
// optional flag updates.
type clientMessage struct {
	Type string `json:"type,omitempty"`

	// WAVBase64 and AudioData are accepted interchangeably.
	WAVBase64 string `json:"wav_base64,omitempty"`
	AudioData string `json:"audio_data,omitempty"`

	UseWake *bool `json:"use_wake,omitempty"`
	UseSV   *bool `json:"use_sv,omitempty"`
	UseLLM  *bool `json:"use_llm,omitempty"`
}

// handleVoice upgrades the connection and runs the per-session message
// loop. Recoverable errors go back as typed error replies; only a failure
// to create the session or transport loss ends the connection.
func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket accept failed", "error", err)
		return
	}

	ctx := r.Context()

	opts := []session.Option{
		session.WithLogger(s.log),
		// Progress replies go out while the pipeline is still inside
		// ProcessChunk, so the client sees the finalizing signal during
		// recognition rather than after it.
		session.WithNotifier(func(reply session.Reply) {
			s.observeReply(ctx, reply)
			if err := wsjson.Write(ctx, conn, reply); err != nil {
				s.log.Warn("progress write failed", "error", err)
			}
		}),
	}
	if s.deps.Dumper != nil {
		opts = append(opts, session.WithDumper(s.deps.Dumper))
	}
	sess, err := session.New(s.sessCfg, s.deps.Providers, opts...)
	if err != nil {
		s.log.Error("session create failed", "error", err)
		_ = wsjson.Write(ctx, conn, session.NewErrorReply(session.CodeSessionCreate, "无法创建会话"))
		conn.Close(websocket.StatusInternalError, "session create failed")
		return
	}
	defer sess.Close()

	s.metrics.ActiveSessions.Add(ctx, 1)
	defer s.metrics.ActiveSessions.Add(ctx, -1)

	log := s.log.With("session_id", sess.ID())
	log.Info("voice session connected")
	defer log.Info("voice session closed")

	if err := wsjson.Write(ctx, conn, session.NewWelcomeReply(sess.UseWake(), sess.Mode())); err != nil {
		conn.Close(websocket.StatusInternalError, "write failed")
		return
	}

	for {
		replies, fatal := s.handleFrame(ctx, conn, sess, log)
		if fatal {
			return
		}
		for _, reply := range replies {
			s.observeReply(ctx, reply)
			if err := wsjson.Write(ctx, conn, reply); err != nil {
				log.Warn("reply write failed", "error", err)
				return
			}
		}
	}
}

// handleFrame reads and processes one frame. The bool reports transport
// loss; per-message failures come back as error replies instead.
func (s *Server) handleFrame(ctx context.Context, conn *websocket.Conn, sess *session.Session, log *slog.Logger) ([]session.Reply, bool) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return nil, true
	}

	if len(strings.TrimSpace(string(data))) == 0 {
		return []session.Reply{session.NewErrorReply(session.CodeEmptyMessage, "空消息")}, false
	}

	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return []session.Reply{session.NewErrorReply(session.CodeInvalidJSON, "无效的 JSON 格式")}, false
	}

	if msg.Type != "" {
		return []session.Reply{s.handleControl(sess, msg.Type)}, false
	}

	// Flag updates ride on audio frames and apply before the chunk.
	if msg.UseWake != nil {
		sess.SetUseWake(*msg.UseWake)
	}
	if msg.UseSV != nil {
		sess.SetUseSV(*msg.UseSV)
	}
	if msg.UseLLM != nil {
		sess.SetUseLLM(*msg.UseLLM)
	}

	payload := msg.WAVBase64
	if payload == "" {
		payload = msg.AudioData
	}
	if payload == "" {
		return []session.Reply{session.NewErrorReply(session.CodeMissingAudioData, "缺少音频数据")}, false
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return []session.Reply{session.NewErrorReply(session.CodeAudioDecodeError, "音频数据解码失败")}, false
	}
	chunk, err := audio.DecodeToMono16k(raw)
	if err != nil {
		log.Warn("wav decode failed", "error", err)
		return []session.Reply{session.NewErrorReply(session.CodeAudioDecodeError, "音频格式不支持")}, false
	}

	start := time.Now()
	replies, err := sess.ProcessChunk(ctx, chunk)
	s.metrics.ChunkDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		log.Error("chunk processing failed", "error", err)
		return []session.Reply{session.NewErrorReply(session.CodeProcessingError, "处理音频时出错")}, false
	}
	return replies, false
}

// handleControl dispatches a typed control frame.
func (s *Server) handleControl(sess *session.Session, typ string) session.Reply {
	switch typ {
	case "start_asr":
		return sess.StartASR()
	case "cancel_enrollment":
		return sess.CancelEnrollment()
	case "end_conversation":
		return sess.EndConversation()
	default:
		return session.NewErrorReply(session.CodeInvalidJSON, "未知的消息类型: "+typ)
	}
}

// observeReply feeds the outcome counters from outbound replies.
func (s *Server) observeReply(ctx context.Context, reply session.Reply) {
	switch r := reply.(type) {
	case session.WakeupReply:
		s.metrics.Wakeups.Add(ctx, 1)
	case session.ResultReply:
		status := "completed"
		if !r.Success {
			status = "rejected"
		}
		s.metrics.RecordUtterance(ctx, status)
	}
}
