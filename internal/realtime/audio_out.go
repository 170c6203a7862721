package realtime

import (
	"context"
	"errors"

	"github.com/eleven-am/voice-link/internal/audio"
	"github.com/eleven-am/voice-link/internal/transport"
)

// SendAudio frames samples into 1920-sample appends. Samples that do not fill
// a frame are held until the next call. Frames are paced by FrameDelay and
// queued while the connection is not ready. A ctx that is already done
// returns before any sample is taken. Once framing starts the samples belong
// to the client: if ctx ends or a write fails mid-way, the frames not yet
// handed off stay ahead of the carry-over and go out with the next call.
func (c *Client) SendAudio(ctx context.Context, samples []int16) error {
	c.framerMu.Lock()
	defer c.framerMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	frames := c.framer.Frames(samples)
	for i, frame := range frames {
		if i > 0 {
			if err := c.pause(ctx, c.cfg.FrameDelay); err != nil {
				c.framer.Unread(frames[i:])
				return err
			}
		}

		err := c.SendMessage(ctx, transport.InputAudioAppend{Audio: audio.EncodePCM16(frame)})
		if errors.Is(err, ErrQueueFull) {
			continue
		}
		if err != nil {
			c.framer.Unread(frames[i:])
			return err
		}
		c.metrics.FrameSent(c.cfg.AgentID)
	}
	return nil
}

// SendAudioFloat32 validates samples before framing; a NaN or infinite sample
// fails the whole call with audio.ErrInvalidSamples and nothing is sent.
func (c *Client) SendAudioFloat32(ctx context.Context, samples []float32) error {
	if err := audio.ValidateFloat32(samples); err != nil {
		return err
	}
	return c.SendAudio(ctx, audio.Float32ToInt16(samples))
}

// FlushAudio returns and discards the samples still waiting to fill a frame.
func (c *Client) FlushAudio() []int16 {
	c.framerMu.Lock()
	defer c.framerMu.Unlock()
	return c.framer.Flush()
}

func (c *Client) CommitAudio(ctx context.Context) error {
	return c.SendMessage(ctx, transport.InputAudioCommit{})
}

// ClearAudio drops any carried-over samples and clears the server's input
// buffer.
func (c *Client) ClearAudio(ctx context.Context) error {
	c.framerMu.Lock()
	c.framer.Reset()
	c.framerMu.Unlock()
	return c.SendMessage(ctx, transport.InputAudioClear{})
}
