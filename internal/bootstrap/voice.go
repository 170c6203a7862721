package bootstrap

import (
	"context"
	"errors"
	"log/slog"

	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"

	"github.com/eleven-am/voice-link/internal/audio"
	"github.com/eleven-am/voice-link/internal/capture"
	"github.com/eleven-am/voice-link/internal/events"
	"github.com/eleven-am/voice-link/internal/metrics"
	"github.com/eleven-am/voice-link/internal/playback"
	"github.com/eleven-am/voice-link/internal/realtime"
	"github.com/eleven-am/voice-link/internal/transport"
)

func ProvideDeviceFactory(cfg *Config, logger *slog.Logger) playback.DeviceFactory {
	switch cfg.AudioOutput {
	case AudioSpeaker:
		return playback.MalgoFactory(logger)
	case AudioNone:
		return playback.NewNullDevice
	default:
		return playback.WAVFileFactory(cfg.AudioOutput)
	}
}

func ProvideScheduler(cfg *Config, factory playback.DeviceFactory, m *metrics.Metrics, logger *slog.Logger) *playback.Scheduler {
	return playback.NewScheduler(playback.Config{
		SampleRate: audio.SampleRate,
		QueueSize:  cfg.PlaybackQueue,
		AgentID:    cfg.AgentID,
	}, factory, m, logger)
}

func ProvideRealtimeClient(
	cfg *Config,
	scheduler *playback.Scheduler,
	publisher events.Publisher,
	forwarder *EventForwarder,
	m *metrics.Metrics,
	logger *slog.Logger,
) (*realtime.Client, error) {
	return realtime.New(realtime.Config{
		URL:           cfg.RealtimeURL,
		AgentID:       cfg.AgentID,
		Token:         cfg.RealtimeToken,
		Session:       cfg.Session(),
		Backoff:       cfg.Reconnect,
		QueueCapacity: cfg.QueueCapacity,
	}, publishingCallbacks(cfg.AgentID, publisher, forwarder, logger), scheduler, m, logger)
}

// publishingCallbacks logs transcripts and hands every status change and
// forwarded event to the forwarder, which publishes them off the read loop.
func publishingCallbacks(agentID string, publisher events.Publisher, forwarder *EventForwarder, logger *slog.Logger) realtime.Callbacks {
	log := logger.With("component", "voice", "agent_id", agentID)

	return realtime.Callbacks{
		OnStatus: func(connected bool) {
			log.Info("connection status changed", "connected", connected)
			forwarder.Enqueue(func(ctx context.Context) error {
				return publisher.PublishStatus(ctx, agentID, connected)
			})
		},
		OnEvent: func(ev transport.ServerEvent) {
			switch e := ev.(type) {
			case *transport.InputTranscriptEvent:
				log.Info("user said", "item_id", e.ItemID, "text", e.Transcript)
			case *transport.TranscriptDoneEvent:
				log.Info("agent said", "item_id", e.ItemID, "text", e.Transcript)
			}
			forwarder.Enqueue(func(ctx context.Context) error {
				return publisher.PublishEvent(ctx, agentID, ev)
			})
		},
		OnError: func(ev *transport.ErrorEvent) {
			log.Error("realtime error", "code", ev.Error.Code, "message", ev.Error.Message)
			forwarder.Enqueue(func(ctx context.Context) error {
				return publisher.PublishEvent(ctx, agentID, ev)
			})
		},
	}
}

func ProvideSource(cfg *Config, logger *slog.Logger) (capture.Source, error) {
	switch cfg.AudioInput {
	case AudioNone:
		return nil, nil
	case AudioMic:
		return capture.NewMicSource(logger), nil
	default:
		src, err := capture.OpenWAV(cfg.AudioInput, true, logger)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
}

func ProvideAgentRegistry() *realtime.Registry {
	return realtime.NewRegistry()
}

type VoiceParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Client    *realtime.Client
	Registry  *realtime.Registry
	Source    capture.Source
	Logger    *slog.Logger
}

// StartVoice registers the client, connects it and pumps the audio input
// into it until shutdown.
func StartVoice(p VoiceParams) error {
	if err := p.Registry.Register(p.Client); err != nil {
		return err
	}
	log := p.Logger.With("component", "voice", "agent_id", p.Client.AgentID())

	var (
		cancel context.CancelFunc
		group  *errgroup.Group
	)

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			group, ctx = errgroup.WithContext(ctx)

			group.Go(func() error {
				if err := p.Client.Connect(ctx); err != nil {
					log.Warn("initial connect failed, retrying in background", "error", err)
				}
				return nil
			})
			if p.Source != nil {
				group.Go(func() error {
					err := pumpAudio(ctx, p.Source, p.Client, log)
					if err != nil {
						log.Error("audio input stopped", "error", err)
					}
					return err
				})
			}
			return nil
		},
		OnStop: func(context.Context) error {
			if cancel != nil {
				cancel()
			}
			var errs []error
			if group != nil {
				errs = append(errs, group.Wait())
			}
			if p.Source != nil {
				errs = append(errs, p.Source.Close())
			}
			p.Registry.Unregister(p.Client.AgentID())
			errs = append(errs, p.Client.Close())
			return errors.Join(errs...)
		},
	})
	return nil
}

// pumpAudio streams the source into the client. When a finite source runs
// out, the partial frame is padded with silence and the input is committed.
func pumpAudio(ctx context.Context, src capture.Source, client *realtime.Client, log *slog.Logger) error {
	err := src.Run(ctx, func(ctx context.Context, samples []int16) error {
		if err := client.SendAudio(ctx, samples); err != nil {
			if ctx.Err() != nil {
				return err
			}
			log.Warn("failed to send audio", "error", err)
		}
		return nil
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return err
	}

	if rest := client.FlushAudio(); len(rest) > 0 {
		frame := make([]int16, audio.FrameSamples)
		copy(frame, rest)
		if err := client.SendAudio(ctx, frame); err != nil {
			log.Warn("failed to send final frame", "error", err)
		}
	}
	if err := client.CommitAudio(ctx); err != nil {
		log.Warn("failed to commit audio", "error", err)
	}
	log.Info("audio input finished")
	return nil
}

var VoiceModule = fx.Options(
	fx.Provide(
		ProvideDeviceFactory,
		ProvideScheduler,
		ProvideEventForwarder,
		ProvideRealtimeClient,
		ProvideSource,
		ProvideAgentRegistry,
	),
	fx.Invoke(StartVoice),
)
