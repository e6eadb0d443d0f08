package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/dgnsrekt/tts-proxy/internal/tts"
	"github.com/gin-gonic/gin"
)

const (
	msgNoData = "No data provided"

	// Synthesis bodies are small JSON documents.
	maxJSONBody = 1 << 20
)

var errNoData = errors.New("no data provided")

// readObject decodes the request body as a non-empty JSON object. Numbers
// stay json.Number so their source text survives.
func readObject(c *gin.Context) (map[string]any, error) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxJSONBody))
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil || len(fields) == 0 {
		return nil, errNoData
	}
	return fields, nil
}

func stringValue(fields map[string]any, name, def string) string {
	if s, ok := fields[name].(string); ok {
		return s
	}
	return def
}

// rateValue renders the optional rate field for the cache key: a number keeps
// its literal text, a string is used as is, anything else is absent.
func rateValue(fields map[string]any) string {
	switch v := fields["rate"].(type) {
	case json.Number:
		return v.String()
	case string:
		return v
	default:
		return ""
	}
}

func boolValue(fields map[string]any, name string, def bool) bool {
	if b, ok := fields[name].(bool); ok {
		return b
	}
	return def
}

// handleTTS accepts {text, voice?, rate?, useCache?}.
func (s *Server) handleTTS(c *gin.Context) {
	fields, ok := s.bindObject(c)
	if !ok {
		return
	}

	s.synthesize(c, tts.Request{
		Text:     strings.TrimSpace(stringValue(fields, "text", "")),
		Voice:    stringValue(fields, "voice", s.opts.DefaultVoice),
		Model:    s.opts.DefaultModel,
		Rate:     rateValue(fields),
		UseCache: boolValue(fields, "useCache", true),
	}, "text is required")
}

// handleTTSStream accepts {text, voice?}.
func (s *Server) handleTTSStream(c *gin.Context) {
	fields, ok := s.bindObject(c)
	if !ok {
		return
	}

	s.synthesize(c, tts.Request{
		Text:     strings.TrimSpace(stringValue(fields, "text", "")),
		Voice:    stringValue(fields, "voice", s.opts.DefaultVoice),
		Model:    s.opts.DefaultModel,
		UseCache: true,
	}, "text is required")
}

// handleSpeech is the OpenAI-compatible endpoint: {input, voice?, model?}.
func (s *Server) handleSpeech(c *gin.Context) {
	fields, ok := s.bindObject(c)
	if !ok {
		return
	}

	s.synthesize(c, tts.Request{
		Text:     strings.TrimSpace(stringValue(fields, "input", "")),
		Voice:    stringValue(fields, "voice", s.opts.DefaultVoice),
		Model:    stringValue(fields, "model", s.opts.DefaultModel),
		UseCache: true,
	}, "input is required")
}

func (s *Server) bindObject(c *gin.Context) (map[string]any, bool) {
	fields, err := readObject(c)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.error(c, http.StatusRequestEntityTooLarge, "Request body too large")
			return nil, false
		}
		s.error(c, http.StatusBadRequest, msgNoData)
		return nil, false
	}
	return fields, true
}

func (s *Server) synthesize(c *gin.Context, req tts.Request, missingText string) {
	if req.Text == "" {
		s.error(c, http.StatusBadRequest, missingText)
		return
	}

	res, err := s.deps.Synth.Synthesize(c.Request.Context(), req)
	if err != nil {
		te := tts.AsTTSError(err)
		s.error(c, te.HTTPStatus(), te.Detail())
		return
	}

	c.Header("X-Cache", string(res.Cache))
	s.audio(c, res.Audio)
}

// audio writes an audio/mpeg body with an explicit length.
func (s *Server) audio(c *gin.Context, data []byte) {
	c.Header("Content-Length", strconv.Itoa(len(data)))
	c.Data(http.StatusOK, "audio/mpeg", data)
}
