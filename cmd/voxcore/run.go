package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"voxcore/pkg/audio/pipeline"
	"voxcore/pkg/bridge"
	"voxcore/pkg/config"
	"voxcore/pkg/controller"
	"voxcore/pkg/gateway"
	"voxcore/pkg/identity"
	"voxcore/pkg/logging"
	"voxcore/pkg/protocol"
	"voxcore/pkg/transport"
)

const (
	appName    = "voxcore"
	appVersion = "1.0.0"
	boardType  = "generic-linux"

	activationPollInterval = 5 * time.Second
)

func run(ctx context.Context, configPath string) error {
	logger := logging.Default("voxcore")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	id, err := identity.Load(cfg.IdentityPath)
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}

	guiBridge, err := bridge.NewGUI(cfg.Bridge.GUIOutAddr, cfg.Bridge.GUIInAddr, logging.Default("bridge.gui"))
	if err != nil {
		return fmt.Errorf("start gui bridge: %w", err)
	}
	defer guiBridge.Close()

	iotBridge, err := bridge.NewIoT(cfg.Bridge.IoTOutAddr)
	if err != nil {
		return fmt.Errorf("start iot bridge: %w", err)
	}
	defer iotBridge.Close()

	if !id.Activated {
		logger.InfoPrintf("device not activated, starting activation poll")
		httpClient := &http.Client{Timeout: 10 * time.Second}
		err := transport.PollActivation(ctx, httpClient, cfg.Cloud.ActivationURL, id,
			appName, appVersion, boardType, boardName(),
			activationPollInterval,
			logging.Default("transport.activation"),
			func(result *transport.ActivationResult) {
				logger.InfoPrintf("activation pending: %s", result.Message)
				if err := guiBridge.ActivationCode(result.Code); err != nil {
					logger.WarnPrintf("show activation code: %v", err)
				}
			})
		if err != nil {
			return fmt.Errorf("activation: %w", err)
		}
		logger.InfoPrintf("device activated")
	}

	var reg *gateway.Registry
	var gw *gateway.Gateway
	if cfg.MCP.Enabled {
		reg, err = gateway.NewRegistry(cfg.MCP.Tools)
		if err != nil {
			return fmt.Errorf("build tool registry: %w", err)
		}
		gw = gateway.New(reg, 16, logging.Default("gateway"))
	}

	pipelineCfg := pipeline.Config{
		CaptureDevice:    cfg.Audio.CaptureDevice,
		PlaybackDevice:   cfg.Audio.PlaybackDevice,
		CaptureSampleHz:  cfg.Audio.CaptureSampleHz,
		PlaybackSampleHz: cfg.Audio.PlaybackSampleHz,
	}
	capture, err := pipeline.NewCapture(ctx, pipelineCfg, logging.Default("audio.capture"))
	if err != nil {
		return fmt.Errorf("start capture pipeline: %w", err)
	}
	defer capture.Close()

	playback, err := pipeline.NewPlayback(ctx, pipelineCfg, logging.Default("audio.playback"))
	if err != nil {
		return fmt.Errorf("start playback pipeline: %w", err)
	}
	defer playback.Close()

	sender := &sessionSender{}

	var notifyCh <-chan gateway.PendingNotification
	if gw != nil {
		notifyCh = gw.Notifications()
	}

	onStale := func() {
		if session := sender.current.Load(); session != nil {
			session.Close()
		}
	}

	ctrl := controller.New(controller.Config{}, sender, guiBridge, iotBridge, playback, notifyCh, onStale, logging.Default("controller"))
	go ctrl.Run(ctx)

	go guiBridge.Listen(func(ev bridge.GUIEvent) {
		ctrl.SubmitGUI(controller.GUIEvent{Text: ev.Text, Trigger: ev.Trigger})
	})

	go pumpCaptureFrames(ctx, capture, ctrl)

	dial := func(dialCtx context.Context) (*transport.Session, error) {
		session, err := transport.Dial(dialCtx, transport.DialConfig{
			URL:             cfg.Cloud.WebSocketURL,
			AuthToken:       cfg.Cloud.AuthToken,
			DeviceID:        id.DeviceID,
			ClientID:        id.ClientID,
			ProtocolVersion: cfg.Cloud.ProtocolVersion,
		}, logging.Default("transport.ws"))
		if err != nil {
			return nil, err
		}
		if err := sendHello(session, cfg, reg != nil); err != nil {
			session.Close()
			return nil, fmt.Errorf("hello handshake: %w", err)
		}
		return session, nil
	}

	onSession := func(session *transport.Session) {
		sender.set(session)
		ctrl.SubmitNet(controller.NetEvent{Connected: true})

		for f, err := range session.Frames() {
			if err != nil {
				break
			}
			if f.Message != nil {
				handleIncomingMessage(ctx, f.Message, gw, session, ctrl)
				continue
			}
			ctrl.SubmitNet(controller.NetEvent{Binary: f.Binary})
		}

		sender.clear()
		ctrl.SubmitNet(controller.NetEvent{Disconnected: true})
	}

	transport.Maintain(ctx, dial, onSession, logging.Default("transport.reconnect"))
	return nil
}

func boardName() string {
	return "voxcore-embedded"
}

func sendHello(session *transport.Session, cfg *config.Config, mcpEnabled bool) error {
	hello := &protocol.Hello{
		Version:   cfg.Cloud.ProtocolVersion,
		Transport: "websocket",
		AudioParams: &protocol.AudioParams{
			Format:          "opus",
			SampleRate:      cfg.Audio.CaptureSampleHz,
			Channels:        1,
			FrameDurationMs: cfg.Audio.FrameDurationMs,
		},
	}
	if mcpEnabled {
		hello.Features = &protocol.Features{MCP: true}
	}
	return session.SendMessage(hello)
}

func pumpCaptureFrames(ctx context.Context, capture *pipeline.Capture, ctrl *controller.Controller) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-capture.Frames():
			if !ok {
				return
			}
			ctrl.SubmitAudio(controller.AudioEvent{Frame: f})
		}
	}
}

func handleIncomingMessage(ctx context.Context, env *protocol.Envelope, gw *gateway.Gateway, session *transport.Session, ctrl *controller.Controller) {
	mcp, isMCP := env.Payload.(*protocol.MCPEnvelope)
	if !isMCP {
		ctrl.SubmitNet(controller.NetEvent{Message: env})
		return
	}
	if gw == nil {
		return
	}
	resp, err := gw.Handle(ctx, mcp.Payload)
	if err != nil {
		return
	}
	if resp == nil {
		return
	}
	respPayload, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := session.SendMessage(&protocol.MCPEnvelope{SessionID: mcp.SessionID, Payload: respPayload}); err != nil {
		return
	}
}
