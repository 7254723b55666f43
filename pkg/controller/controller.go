package controller

import (
	"context"
	"encoding/json"
	"time"

	"voxcore/pkg/audio/frame"
	"voxcore/pkg/audio/pipeline"
	"voxcore/pkg/logging"
	"voxcore/pkg/protocol"
	"voxcore/pkg/session"
)

// Config tunes the controller's timing behavior.
type Config struct {
	HeartbeatInterval time.Duration
	StaleThreshold    time.Duration
}

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 20 * time.Second
	}
	if c.StaleThreshold <= 0 {
		c.StaleThreshold = 45 * time.Second
	}
	return c
}

// Controller owns session.State and serializes every event source onto a
// single goroutine; no other package mutates session state directly.
type Controller struct {
	cfg    Config
	logger logging.Logger

	net  NetSender
	gui  GUISender
	iot  IoTSender
	play Player

	netEvents  chan NetEvent
	audioIn    chan AudioEvent
	guiEvents  chan GUIEvent
	iotEvents  chan IoTEvent
	toolNotify <-chan toolNotification
	playEvents <-chan pipeline.PlaybackEvent

	onStale func()

	state             session.State
	sessionID         string
	muteMic           bool
	notifiedThisIdle  bool
	pendingNotifs     []toolNotification
	lastPeerMessageAt time.Time
}

// New builds a Controller. toolNotify may be nil if the gateway is disabled.
func New(cfg Config, net NetSender, gui GUISender, iot IoTSender, play Player, toolNotify <-chan toolNotification, onStale func(), logger logging.Logger) *Controller {
	if logger == nil {
		logger = logging.Default("controller")
	}
	c := &Controller{
		cfg:        cfg.withDefaults(),
		logger:     logger,
		net:        net,
		gui:        gui,
		iot:        iot,
		play:       play,
		netEvents:  make(chan NetEvent, 32),
		audioIn:    make(chan AudioEvent, 32),
		guiEvents:  make(chan GUIEvent, 16),
		iotEvents:  make(chan IoTEvent, 16),
		toolNotify: toolNotify,
		onStale:    onStale,
		state:      session.Idle,
	}
	if play != nil {
		c.playEvents = play.Events()
	}
	return c
}

// SubmitNet enqueues a transport event for processing.
func (c *Controller) SubmitNet(ev NetEvent) {
	select {
	case c.netEvents <- ev:
	default:
		c.logger.WarnPrintf("net event queue full, dropping event")
	}
}

// SubmitAudio enqueues an encoded uplink frame for processing.
func (c *Controller) SubmitAudio(ev AudioEvent) {
	select {
	case c.audioIn <- ev:
	default:
		c.logger.WarnPrintf("audio event queue full, dropping frame")
	}
}

// SubmitGUI enqueues a GUI bridge event for processing.
func (c *Controller) SubmitGUI(ev GUIEvent) {
	select {
	case c.guiEvents <- ev:
	default:
		c.logger.WarnPrintf("gui event queue full, dropping event")
	}
}

// SubmitIoT enqueues an IoT bridge event for processing.
func (c *Controller) SubmitIoT(ev IoTEvent) {
	select {
	case c.iotEvents <- ev:
	default:
		c.logger.WarnPrintf("iot event queue full, dropping event")
	}
}

// Run processes events serially until ctx is cancelled. It is the only
// goroutine that ever mutates Controller state.
func (c *Controller) Run(ctx context.Context) {
	heartbeat := time.NewTicker(c.cfg.HeartbeatInterval)
	defer heartbeat.Stop()
	staleCheck := time.NewTicker(c.cfg.StaleThreshold / 2)
	defer staleCheck.Stop()

	c.lastPeerMessageAt = time.Now()

	for {
		select {
		case <-ctx.Done():
			return

		case ev := <-c.netEvents:
			c.handleNetEvent(ev)

		case ev := <-c.audioIn:
			c.handleAudioEvent(ev)

		case ev := <-c.guiEvents:
			c.handleGUIEvent(ev)

		case ev := <-c.iotEvents:
			c.handleIoTEvent(ev)

		case n, ok := <-c.toolNotify:
			if ok {
				c.handleToolNotification(n)
			}

		case ev, ok := <-c.playEvents:
			if ok {
				c.handlePlaybackEvent(ev)
			}

		case <-heartbeat.C:
			if err := c.pingPeer(); err != nil {
				c.logger.WarnPrintf("heartbeat send failed: %v", err)
			}

		case <-staleCheck.C:
			if time.Since(c.lastPeerMessageAt) > c.cfg.StaleThreshold {
				c.logger.WarnPrintf("no peer message for %s, forcing reconnect", c.cfg.StaleThreshold)
				if c.onStale != nil {
					c.onStale()
				}
				c.lastPeerMessageAt = time.Now()
			}
		}
	}
}

func (c *Controller) pingPeer() error {
	if pinger, ok := c.net.(interface{ Ping() error }); ok {
		return pinger.Ping()
	}
	return nil
}

func (c *Controller) handleNetEvent(ev NetEvent) {
	switch {
	case ev.Connected:
		c.logger.InfoPrintf("transport connected")
		c.setState(session.Idle, "connected")
		c.guiState("idle")
		c.iotNetworkState("connected")

	case ev.Disconnected:
		c.logger.InfoPrintf("transport disconnected")
		c.setState(session.NetworkError, "disconnected")
		c.guiState("error")
		c.iotNetworkState("disconnected")

	case ev.Message != nil:
		c.processServerMessage(ev.Message)

	case ev.Binary != nil:
		c.processServerAudio(ev.Binary)
	}
}

func (c *Controller) processServerMessage(env *protocol.Envelope) {
	c.lastPeerMessageAt = time.Now()

	switch msg := env.Payload.(type) {
	case *protocol.Hello:
		if msg.SessionID != "" {
			c.adoptSession(msg.SessionID)
		}
		c.logger.InfoPrintf("server hello received, starting listen mode")
		c.sendListen("auto")

	case *protocol.IoT:
		if msg.SessionID != "" {
			c.adoptSession(msg.SessionID)
		}
		if c.iot != nil {
			if err := c.iot.Send(msg.Payload); err != nil {
				c.logger.ErrorPrintf("forward iot to bridge: %v", err)
			}
		}

	case *protocol.TTS:
		if msg.SessionID != "" {
			c.adoptSession(msg.SessionID)
		}
		switch msg.State {
		case "start":
			c.muteMic = true
			c.setState(session.Speaking, "tts.start")
			c.guiState("speaking")
		case "stop":
			c.muteMic = false
			c.setState(session.Idle, "tts.stop")
			c.guiState("idle")
			c.drainPendingNotification()
			c.sendListen("auto")
		}

	case *protocol.STT:
		if msg.SessionID != "" {
			c.adoptSession(msg.SessionID)
		}
		c.setState(session.Processing, "stt")
		c.notifiedThisIdle = true // cancel further injection for this window

	case *protocol.MCPEnvelope:
		// Dispatched by the gateway owner, not the controller; see cmd wiring.

	case *protocol.Goodbye:
		c.logger.InfoPrintf("server goodbye, returning to idle")
		c.setState(session.Idle, "goodbye")

	case *protocol.Abort:
		if msg.SessionID != "" {
			c.adoptSession(msg.SessionID)
		}
		c.logger.InfoPrintf("server abort (%s), returning to idle", msg.Reason)
		c.muteMic = false
		c.setState(session.Idle, "abort")
		c.guiState("idle")

	default:
		c.logger.InfoPrintf("unhandled message type: %s", env.Type)
	}
}

func (c *Controller) processServerAudio(data []byte) {
	if c.state != session.Speaking {
		c.setState(session.Speaking, "audio")
		c.guiState("speaking")
	}
	if c.play != nil {
		c.play.Enqueue(frame.Opus{Data: data, EpochMillis: frame.Stamp(time.Now())})
	}
}

func (c *Controller) handleAudioEvent(ev AudioEvent) {
	if c.muteMic {
		return
	}
	if c.state != session.Listening {
		c.setState(session.Listening, "mic")
		c.guiState("listening")
	}
	if !c.state.CanEmitUplinkAudio() {
		return
	}
	if err := c.net.SendBinary(ev.Frame.Data); err != nil {
		c.logger.ErrorPrintf("send uplink audio: %v", err)
	}
}

func (c *Controller) handleGUIEvent(ev GUIEvent) {
	switch {
	case ev.Trigger:
		c.setState(session.Listening, "gui-trigger")
		c.guiState("listening")
		c.sendListen("manual")
	case ev.Text != "":
		if err := c.net.SendMessage(&protocol.Notify{SessionID: c.sessionID, Text: ev.Text}); err != nil {
			c.logger.ErrorPrintf("send gui text to cloud: %v", err)
		}
	}
}

func (c *Controller) handleIoTEvent(ev IoTEvent) {
	if err := c.net.SendMessage(&protocol.IoT{SessionID: c.sessionID, Payload: ev.Payload}); err != nil {
		c.logger.ErrorPrintf("forward iot command to cloud: %v", err)
	}
}

func (c *Controller) sendListen(mode string) {
	if err := c.net.SendMessage(&protocol.Listen{SessionID: c.sessionID, State: "start", Mode: mode}); err != nil {
		c.logger.ErrorPrintf("send listen command: %v", err)
	}
}

// handlePlaybackEvent reacts to the downlink queue draining or a decode
// error. A decode error is logged and otherwise ignored: the next packet in
// the queue is unaffected. A drained queue while Speaking means the device
// has finished voicing the current turn, so the controller re-arms listening
// the same way a tts.stop would.
func (c *Controller) handlePlaybackEvent(ev pipeline.PlaybackEvent) {
	if ev.Err != nil {
		c.logger.ErrorPrintf("playback error: %v", ev.Err)
		return
	}
	if ev.Drained && c.state == session.Speaking {
		c.setState(session.Idle, "playback-drained")
		c.guiState("idle")
		c.drainPendingNotification()
		c.sendListen("auto")
	}
}

func (c *Controller) handleToolNotification(n toolNotification) {
	c.pendingNotifs = append(c.pendingNotifs, n)
	c.drainPendingNotification()
}

// drainPendingNotification injects at most one queued notification as a
// synthetic text prompt, and only while idle and undisturbed this window.
func (c *Controller) drainPendingNotification() {
	if c.state != session.Idle {
		return
	}
	if c.notifiedThisIdle {
		return
	}
	if len(c.pendingNotifs) == 0 {
		return
	}

	n := c.pendingNotifs[0]
	c.pendingNotifs = c.pendingNotifs[1:]
	c.notifiedThisIdle = true

	text, err := json.Marshal(n.Payload)
	if err != nil {
		c.logger.ErrorPrintf("marshal pending notification for %q: %v", n.ToolName, err)
		return
	}
	if err := c.net.SendMessage(&protocol.Notify{SessionID: c.sessionID, Text: string(text)}); err != nil {
		c.logger.ErrorPrintf("inject pending notification: %v", err)
	}
}

func (c *Controller) adoptSession(sid string) {
	if c.sessionID != sid {
		c.logger.InfoPrintf("new session id: %s", sid)
		c.sessionID = sid
	}
}

func (c *Controller) setState(s session.State, cause string) {
	if c.state == s {
		return
	}
	prev := c.state
	c.state = s
	if s == session.Idle {
		c.notifiedThisIdle = false
	}
	c.logger.DebugPrintf("state %s -> %s (%s)", prev, s, cause)
}

func (c *Controller) guiState(value string) {
	if c.gui == nil {
		return
	}
	if err := c.gui.Send(map[string]any{"event": "state", "value": value}); err != nil {
		c.logger.ErrorPrintf("send gui state: %v", err)
	}
}

func (c *Controller) iotNetworkState(value string) {
	if c.iot == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{"type": "network", "state": value})
	if err := c.iot.Send(payload); err != nil {
		c.logger.ErrorPrintf("send iot network state: %v", err)
	}
}
