package gateway

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-voicechat/pkg/apierr"
	"github.com/teslashibe/go-voicechat/pkg/capture"
	"github.com/teslashibe/go-voicechat/pkg/conversation"
	"github.com/teslashibe/go-voicechat/pkg/hub"
	"github.com/teslashibe/go-voicechat/pkg/inference"
	"github.com/teslashibe/go-voicechat/pkg/session"
	"github.com/teslashibe/go-voicechat/pkg/tts"
)

const sessionLocal = "session"

// TurnResponse is the body of a successful POST /api/sessions/:id/turns.
type TurnResponse struct {
	User      conversation.Turn `json:"user"`
	Assistant conversation.Turn `json:"assistant"`
	AudioURL  string            `json:"audioUrl,omitempty"`
	State     session.State     `json:"state"`
}

// TurnRequest is the JSON body of a typed turn.
type TurnRequest struct {
	Message string `json:"message"`
}

// TextRequest is the body of PUT /api/sessions/:id/text.
type TextRequest struct {
	Text string `json:"text"`
}

// RecordingRequest is the body of PUT /api/sessions/:id/recording.
type RecordingRequest struct {
	Recording bool `json:"recording"`
}

// sessionFactory wires a new session's orchestrator to the gateway's
// providers. Missing providers answer with the unconfigured error.
func (s *Server) sessionFactory() session.Factory {
	return func(hooks conversation.Hooks, n conversation.Notifier) *conversation.Orchestrator {
		var (
			transcriber conversation.Transcriber = unconfigured{}
			responder   conversation.Responder   = unconfigured{}
			synthesizer conversation.Synthesizer = unconfigured{}
		)
		if s.stt != nil {
			transcriber = conversation.STTTranscriber{Provider: s.stt}
		}
		if s.assistant != nil {
			responder = conversation.AssistantResponder{Assistant: s.assistant}
		}
		if s.tts != nil {
			synthesizer = conversation.TTSSynthesizer{Provider: s.tts}
		}
		return conversation.New(responder,
			conversation.WithTranscriber(transcriber),
			conversation.WithSynthesizer(synthesizer),
			conversation.WithHooks(hooks),
			conversation.WithNotifier(n),
			conversation.WithHistoryWindow(s.cfg.Session.HistoryWindow),
			conversation.WithVoice(s.cfg.ElevenLabs.DefaultVoice),
			conversation.WithLogger(s.logger),
		)
	}
}

func (s *Server) session(c *fiber.Ctx) (*session.Session, error) {
	return s.sessions.Get(c.Params("id"))
}

func (s *Server) handleCreateSession(c *fiber.Ctx) error {
	sess := s.sessions.Create()
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": sess.ID()})
}

func (s *Server) handleGetSession(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	return c.JSON(sess.State())
}

func (s *Server) handleDeleteSession(c *fiber.Ctx) error {
	if err := s.sessions.Delete(c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// handleTurn runs one turn from a multipart "audio" field or a JSON
// {"message"} body.
func (s *Server) handleTurn(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}

	var res *conversation.Result
	if isMultipart(c) {
		blob, err := audioFromForm(c)
		if err != nil {
			return err
		}
		res, err = sess.RunAudio(c.UserContext(), blob)
		if err != nil {
			return err
		}
	} else {
		var req TurnRequest
		if err := decodeJSON(c, &req); err != nil {
			return err
		}
		if strings.TrimSpace(req.Message) == "" {
			return apierr.InvalidInput(apierr.MsgMessageRequired)
		}
		res, err = sess.RunText(c.UserContext(), req.Message)
		if err != nil {
			return err
		}
	}

	st := sess.State()
	out := TurnResponse{User: res.User, Assistant: res.Assistant, State: st}
	if res.Speech != nil {
		out.AudioURL = st.AudioURL
	}
	return c.JSON(out)
}

func (s *Server) handleSpeak(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	var req TTSRequest
	if err := decodeJSON(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Text) == "" {
		return apierr.InvalidInput(apierr.MsgTextRequired)
	}

	voice := ""
	if req.Voice != "" {
		voice = tts.ResolveVoice(req.Voice)
	}
	speech, err := sess.Speak(c.UserContext(), req.Text, voice)
	if err != nil {
		return err
	}
	return sendAudio(c, speech.Audio, speech.ContentType)
}

func (s *Server) handleDictate(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	blob, err := audioFromForm(c)
	if err != nil {
		return err
	}
	text, err := sess.Dictate(c.UserContext(), blob)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"text": text})
}

// handleText syncs the input box so every subscriber sees the draft.
func (s *Server) handleText(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	var req TextRequest
	if err := decodeJSON(c, &req); err != nil {
		return err
	}
	sess.SetText(req.Text)
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleRecording(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	var req RecordingRequest
	if err := decodeJSON(c, &req); err != nil {
		return err
	}
	sess.SetRecording(req.Recording)
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleClearTranscript(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	if err := sess.Clear(); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleSessionAudio(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	speech := sess.LatestSpeech()
	if speech == nil || len(speech.Audio) == 0 {
		return apierr.NotFound(msgNoAudio)
	}
	c.Set(fiber.HeaderCacheControl, "no-store")
	return sendAudio(c, speech.Audio, speech.ContentType)
}

// upgradeSession rejects plain HTTP on /ws and resolves the session before
// the upgrade so unknown ids get a normal 404.
func (s *Server) upgradeSession(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	id := strings.TrimPrefix(c.Path(), "/ws/sessions/")
	sess, err := s.sessions.Get(id)
	if err != nil {
		return err
	}
	c.Locals(sessionLocal, sess)
	return c.Next()
}

// handleSessionWS sends a state snapshot, then every event until the
// client disconnects or the session ends.
func (s *Server) handleSessionWS(c *websocket.Conn) {
	sess, ok := c.Locals(sessionLocal).(*session.Session)
	if !ok {
		c.Close()
		return
	}

	snapshot, err := json.Marshal(sess.Snapshot())
	if err != nil {
		s.logger.Warn("encoding snapshot", "error", err)
		c.Close()
		return
	}

	client := hub.NewClient(sess.Hub(), c, hub.NewJSONMessage(snapshot))
	if client == nil {
		c.Close()
		return
	}
	client.Run()
}

func isMultipart(c *fiber.Ctx) bool {
	return strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm)
}

// unconfigured stands in for a provider whose credential is missing.
type unconfigured struct{}

func (unconfigured) Transcribe(context.Context, capture.Blob) (string, error) {
	return "", apierr.Unconfigured()
}

func (unconfigured) Respond(context.Context, string, []inference.Message) (string, error) {
	return "", apierr.Unconfigured()
}

func (unconfigured) Synthesize(context.Context, string, string) (*conversation.Speech, error) {
	return nil, apierr.Unconfigured()
}
