package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"turnkit/core"
	"turnkit/turn"
)

// DeepgramSTTService streams audio to Deepgram over WebSocket and emits
// finalized segments as turn.TranscriptionItem values.
type DeepgramSTTService struct {
	config *DeepgramConfig
	logger *core.Logger
	clock  core.Clock

	conn        *websocket.Conn
	connMu      sync.RWMutex
	isConnected bool

	sequence atomic.Int64

	outChan               chan<- turn.TranscriptionItem
	interimOutputChan     chan<- string
	fatalServiceErrorChan chan<- error

	done        <-chan struct{}
	reconnectMu sync.Mutex
}

// DeepgramConfig holds configuration options for Deepgram STT
type DeepgramConfig struct {
	APIKey         string `json:"api_key"`
	BaseURL        string `json:"base_url"`
	Model          string `json:"model"`
	Language       string `json:"language"`
	InterimResults bool   `json:"interim_results"`
	Punctuate      bool   `json:"punctuate"`
	SmartFormat    bool   `json:"smart_format"`
	SampleRate     int    `json:"sample_rate"`
	// MinMeaningfulWords is the word-count floor below which a final segment
	// is flagged as not meaningful (noise, stray syllables).
	MinMeaningfulWords int `json:"min_meaningful_words"`
}

// DefaultConfig returns a default configuration for Deepgram STT
func DefaultConfig() *DeepgramConfig {
	return &DeepgramConfig{
		BaseURL:            "wss://api.deepgram.com",
		Model:              "nova-2",
		InterimResults:     true,
		Punctuate:          true,
		SmartFormat:        true,
		SampleRate:         16000,
		MinMeaningfulWords: 1,
	}
}

// NewDeepgramSTTService creates a new Deepgram STT service instance.
// Use DefaultConfig() to get a config with sensible defaults and override only what you need.
func NewDeepgramSTTService(config *DeepgramConfig, logger *core.Logger, clock core.Clock) *DeepgramSTTService {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BaseURL == "" {
		config.BaseURL = "wss://api.deepgram.com"
	}
	if clock == nil {
		clock = core.SystemUTC{}
	}
	return &DeepgramSTTService{
		config: config,
		logger: logger,
		clock:  clock,
	}
}

// Init validates configuration and records the session context.
func (d *DeepgramSTTService) Init(ctx context.Context) error {
	if d.config.APIKey == "" {
		return fmt.Errorf("Deepgram API key is required")
	}
	d.done = ctx.Done()
	return nil
}

// Cleanup cleans up resources used by the service
func (d *DeepgramSTTService) Cleanup() error {
	d.closeConnection()
	d.outChan = nil
	d.interimOutputChan = nil
	d.fatalServiceErrorChan = nil
	d.logger.Info("Deepgram STT service cleaned up")
	return nil
}

// Reset asks Deepgram to finalize any buffered audio.
func (d *DeepgramSTTService) Reset() error {
	return d.Flush()
}

// Flush sends a Finalize control message so pending audio becomes a final result.
func (d *DeepgramSTTService) Flush() error {
	msg, err := json.Marshal(struct {
		Type string `json:"type"`
	}{Type: "Finalize"})
	if err != nil {
		return fmt.Errorf("failed to marshal flush message: %w", err)
	}
	d.connMu.Lock()
	defer d.connMu.Unlock()
	if d.isConnected && d.conn != nil {
		_ = d.conn.WriteMessage(websocket.TextMessage, msg)
	}
	return nil
}

// StartTranscriptionSession starts a new transcription session with Deepgram
func (d *DeepgramSTTService) StartTranscriptionSession(
	outChan chan<- turn.TranscriptionItem,
	interimOutputChan chan<- string,
	fatalServiceErrorChan chan<- error,
) {
	d.outChan = outChan
	d.interimOutputChan = interimOutputChan
	d.fatalServiceErrorChan = fatalServiceErrorChan

	go d.runSession()
}

// SendTranscriptionAudio sends PCM16 audio to the active transcription session
func (d *DeepgramSTTService) SendTranscriptionAudio(pcm []byte) error {
	d.connMu.Lock()
	connected := d.isConnected && d.conn != nil
	var err error
	if connected {
		err = d.conn.WriteMessage(websocket.BinaryMessage, pcm)
	}
	d.connMu.Unlock()

	if !connected {
		return fmt.Errorf("not connected to Deepgram")
	}
	if err != nil {
		return fmt.Errorf("failed to send audio: %w", err)
	}
	return nil
}

// runSession manages the WebSocket connection and message handling
func (d *DeepgramSTTService) runSession() {
	for {
		select {
		case <-d.done:
			return
		default:
			if err := d.connectAndListen(); err != nil {
				select {
				case <-d.done:
					return
				default:
					if d.fatalServiceErrorChan != nil {
						select {
						case d.fatalServiceErrorChan <- fmt.Errorf("Deepgram session error: %w", err):
						default:
						}
					}
				}

				// Wait before reconnecting
				select {
				case <-time.After(5 * time.Second):
				case <-d.done:
					return
				}
			}
		}
	}
}

// connectAndListen establishes connection and listens for messages
func (d *DeepgramSTTService) connectAndListen() error {
	d.reconnectMu.Lock()
	defer d.reconnectMu.Unlock()

	wsURL, err := d.buildWebSocketURL()
	if err != nil {
		return fmt.Errorf("failed to build WebSocket URL: %w", err)
	}

	headers := map[string][]string{
		"Authorization": {"Token " + d.config.APIKey},
	}

	conn, _, err := websocket.DefaultDialer.DialContext(context.Background(), wsURL, headers)
	if err != nil {
		return fmt.Errorf("failed to connect to Deepgram: %w", err)
	}

	d.connMu.Lock()
	d.conn = conn
	d.isConnected = true
	d.connMu.Unlock()

	defer d.closeConnection()

	go d.keepAlive()

	for {
		select {
		case <-d.done:
			return nil
		default:
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				return fmt.Errorf("error reading message: %w", err)
			}
			if messageType == websocket.TextMessage {
				if err := d.handleMessage(message); err != nil {
					d.logger.With(map[string]any{"error": err}).Debug("Deepgram message not handled")
				}
			}
		}
	}
}

// buildWebSocketURL constructs the WebSocket URL with query parameters
func (d *DeepgramSTTService) buildWebSocketURL() (string, error) {
	base, err := url.Parse(d.config.BaseURL + "/v1/listen")
	if err != nil {
		return "", err
	}

	q := base.Query()
	if d.config.Model != "" {
		q.Set("model", d.config.Model)
	}
	if d.config.Language != "" {
		q.Set("language", d.config.Language)
	}
	q.Set("interim_results", strconv.FormatBool(d.config.InterimResults))
	q.Set("punctuate", strconv.FormatBool(d.config.Punctuate))
	q.Set("smart_format", strconv.FormatBool(d.config.SmartFormat))
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(d.config.SampleRate))
	q.Set("channels", "1")

	base.RawQuery = q.Encode()
	return base.String(), nil
}

// listenResults is the subset of Deepgram's Results message this service uses.
type listenResults struct {
	Type         string `json:"type"`
	IsFinal      bool   `json:"is_final"`
	SpeechFinal  bool   `json:"speech_final"`
	FromFinalize bool   `json:"from_finalize"`
	Channel      struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// handleMessage processes incoming WebSocket messages
func (d *DeepgramSTTService) handleMessage(message []byte) error {
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &base); err != nil {
		return fmt.Errorf("failed to parse message type: %w", err)
	}

	switch base.Type {
	case "Results":
		var result listenResults
		if err := json.Unmarshal(message, &result); err != nil {
			return fmt.Errorf("failed to parse results: %w", err)
		}
		d.processResults(result)
	case "Metadata", "UtteranceEnd", "SpeechStarted":
		// Informational; nothing to relay.
	default:
		return fmt.Errorf("unknown message type: %s", base.Type)
	}
	return nil
}

// processResults handles transcription results
func (d *DeepgramSTTService) processResults(result listenResults) {
	if len(result.Channel.Alternatives) == 0 {
		return
	}
	transcript := result.Channel.Alternatives[0].Transcript
	if transcript == "" {
		return
	}

	select {
	case <-d.done:
		return
	default:
	}

	if result.IsFinal || result.SpeechFinal || result.FromFinalize {
		item := d.buildItem(transcript)
		d.logger.With(map[string]any{
			"sequence":   item.Sequence,
			"words":      item.WordCount,
			"meaningful": item.IsMeaningful,
		}).Debug("STT final result")
		if d.outChan != nil {
			select {
			case d.outChan <- item:
			default:
			}
		}
	} else {
		if d.interimOutputChan != nil {
			select {
			case d.interimOutputChan <- transcript:
			default:
			}
		}
	}
}

// buildItem stamps a final transcript with sequence, time, and the
// meaningfulness heuristic.
func (d *DeepgramSTTService) buildItem(transcript string) turn.TranscriptionItem {
	words := len(strings.Fields(transcript))
	return turn.TranscriptionItem{
		Sequence:     d.sequence.Add(1),
		TimestampUTC: d.clock.NowUTC(),
		Text:         transcript,
		WordCount:    words,
		IsMeaningful: words >= d.config.MinMeaningfulWords && strings.TrimSpace(transcript) != "",
	}
}

// keepAlive sends periodic keep-alive messages
func (d *DeepgramSTTService) keepAlive() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	msg, _ := json.Marshal(struct {
		Type string `json:"type"`
	}{Type: "KeepAlive"})

	for {
		select {
		case <-d.done:
			return
		case <-ticker.C:
			d.connMu.Lock()
			if d.isConnected && d.conn != nil {
				_ = d.conn.WriteMessage(websocket.TextMessage, msg)
			}
			d.connMu.Unlock()
		}
	}
}

func (d *DeepgramSTTService) closeConnection() {
	d.connMu.Lock()
	defer d.connMu.Unlock()
	if d.conn != nil {
		_ = d.conn.Close()
		d.conn = nil
	}
	d.isConnected = false
}
