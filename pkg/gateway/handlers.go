package gateway

import (
	"encoding/json"
	"io"
	"mime/multipart"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-voicechat/pkg/apierr"
	"github.com/teslashibe/go-voicechat/pkg/capture"
	"github.com/teslashibe/go-voicechat/pkg/inference"
	"github.com/teslashibe/go-voicechat/pkg/metrics"
	"github.com/teslashibe/go-voicechat/pkg/stt"
	"github.com/teslashibe/go-voicechat/pkg/tts"
)

// TTSRequest is the body of POST /tts.
type TTSRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message string              `json:"message"`
	History []inference.Message `json:"history,omitempty"`
}

// ChatResponse is the body of a successful POST /chat.
type ChatResponse struct {
	Response       string              `json:"response"`
	UpdatedHistory []inference.Message `json:"updatedHistory"`
}

// STTResponse is the body of a successful POST /stt.
type STTResponse struct {
	Text      string          `json:"text"`
	Alignment json.RawMessage `json:"alignment"`
}

// VoicesResponse is the body of GET /voices.
type VoicesResponse struct {
	Voices []tts.Voice `json:"voices"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"stt":    s.stt != nil,
		"tts":    s.tts != nil,
		"chat":   s.assistant != nil,
	})
}

func (s *Server) handleSTT(c *fiber.Ctx) error {
	blob, err := audioFromForm(c)
	if err != nil {
		return err
	}
	if s.stt == nil {
		return apierr.Unconfigured()
	}

	res, err := s.stt.Transcribe(c.UserContext(), &stt.Audio{
		Data:        blob.Data,
		Filename:    blob.Filename(),
		ContentType: blob.MIMEType,
	})
	if err != nil {
		return apierr.FromSTT(err)
	}
	return c.JSON(STTResponse{Text: res.Text, Alignment: res.Alignment})
}

func (s *Server) handleTTS(c *fiber.Ctx) error {
	var req TTSRequest
	if err := decodeJSON(c, &req); err != nil {
		return err
	}
	if req.Text == "" {
		return apierr.InvalidInput(apierr.MsgTextRequired)
	}
	if s.tts == nil {
		return apierr.Unconfigured()
	}

	voice := s.cfg.ElevenLabs.DefaultVoice
	if req.Voice != "" {
		voice = tts.ResolveVoice(req.Voice)
	}

	res, err := s.tts.Synthesize(c.UserContext(), &tts.Request{Text: req.Text, VoiceID: voice})
	if err != nil {
		return apierr.FromTTS(err)
	}
	return sendAudio(c, res.Audio, res.ContentType)
}

func (s *Server) handleChat(c *fiber.Ctx) error {
	var req ChatRequest
	if err := decodeJSON(c, &req); err != nil {
		return err
	}
	if req.Message == "" {
		return apierr.InvalidInput(apierr.MsgMessageRequired)
	}
	if s.assistant == nil {
		return apierr.Unconfigured()
	}

	history := req.History
	if history == nil {
		history = []inference.Message{}
	}
	reply, err := s.assistant.Reply(c.UserContext(), history, req.Message)
	if err != nil {
		return apierr.FromChat(err)
	}
	return c.JSON(ChatResponse{Response: reply.Response, UpdatedHistory: reply.UpdatedHistory})
}

func (s *Server) handleVoices(c *fiber.Ctx) error {
	var p tts.Provider
	if s.tts != nil {
		p = s.tts
	}
	voices, fellBack := tts.Catalog(c.UserContext(), p, s.logger)
	if fellBack {
		metrics.RecordVoiceFallback()
	}
	return c.JSON(VoicesResponse{Voices: voices})
}

// decodeJSON parses the body regardless of its declared content type.
func decodeJSON(c *fiber.Ctx, v any) error {
	if err := json.Unmarshal(c.Body(), v); err != nil {
		return apierr.InvalidInput(apierr.MsgInvalidBody)
	}
	return nil
}

// audioFromForm reads the multipart "audio" field into a blob.
func audioFromForm(c *fiber.Ctx) (capture.Blob, error) {
	fh, err := c.FormFile("audio")
	if err != nil {
		return capture.Blob{}, apierr.InvalidInput(apierr.MsgAudioRequired)
	}
	data, err := readFile(fh)
	if err != nil {
		return capture.Blob{}, apierr.InvalidInput(apierr.MsgAudioRequired)
	}

	mimeType := fh.Header.Get(fiber.HeaderContentType)
	if mimeType == "" || mimeType == fiber.MIMEOctetStream {
		mimeType = capture.MIMETypeFor(fh.Filename)
	}
	return capture.Blob{Data: data, MIMEType: mimeType, Chunks: 1}, nil
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func sendAudio(c *fiber.Ctx, audio []byte, contentType string) error {
	if contentType == "" {
		contentType = tts.ContentTypeMPEG
	}
	c.Set(fiber.HeaderContentType, contentType)
	return c.Status(fiber.StatusOK).Send(audio)
}
